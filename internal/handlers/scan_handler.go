package handlers

import (
	"net/http"
	"strings"

	"github.com/receiptfusion/backend/internal/models"
	"github.com/receiptfusion/backend/internal/services"
	"github.com/receiptfusion/backend/internal/utils"

	"github.com/gin-gonic/gin"
)

type ScanHandler struct {
	scanService *services.ScanService
}

func NewScanHandler(scanService *services.ScanService) *ScanHandler {
	return &ScanHandler{scanService: scanService}
}

// CreateScan godoc
// @Summary      Open a scan session
// @Description  Creates a new receipt scan session; subsequent frames accumulate into one merged receipt
// @Tags         Scans
// @Accept       json
// @Produce      json
// @Param        request  body      models.CreateScanRequest  false  "Optional recognition options"
// @Success      201      {object}  utils.APIResponse{data=models.ScanSessionResponse}
// @Failure      400      {object}  utils.APIResponse
// @Security     BearerAuth
// @Router       /scans [post]
func (h *ScanHandler) CreateScan(c *gin.Context) {
	var req models.CreateScanRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
			return
		}
	}

	resp := h.scanService.CreateSession(req.Options)
	utils.RespondSuccess(c, http.StatusCreated, "Scan session created", resp)
}

// SubmitFrame godoc
// @Summary      Submit a camera frame
// @Description  Feeds one OCR frame (raw lines, image URL or base64 image) into a scan session and returns the merged receipt
// @Tags         Scans
// @Accept       json
// @Produce      json
// @Param        id       path      string                    true  "Session ID"
// @Param        request  body      models.SubmitFrameRequest true  "Frame content"
// @Success      200      {object}  utils.APIResponse{data=models.ScanSessionResponse}
// @Failure      400      {object}  utils.APIResponse
// @Failure      404      {object}  utils.APIResponse
// @Security     BearerAuth
// @Router       /scans/{id}/frames [post]
func (h *ScanHandler) SubmitFrame(c *gin.Context) {
	sessionID := c.Param("id")

	var req models.SubmitFrameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	resp, err := h.scanService.SubmitFrame(c.Request.Context(), sessionID, &req)
	if err != nil {
		utils.RespondError(c, statusForError(err), err.Error())
		return
	}

	utils.RespondSuccess(c, http.StatusOK, "Frame processed", resp)
}

// GetScan godoc
// @Summary      Get the current merged receipt
// @Description  Returns the latest merged snapshot of a scan session
// @Tags         Scans
// @Produce      json
// @Param        id  path      string  true  "Session ID"
// @Success      200 {object}  utils.APIResponse{data=models.ScanSessionResponse}
// @Failure      404 {object}  utils.APIResponse
// @Security     BearerAuth
// @Router       /scans/{id} [get]
func (h *ScanHandler) GetScan(c *gin.Context) {
	resp, err := h.scanService.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.RespondNotFound(c, err.Error())
		return
	}
	utils.RespondSuccess(c, http.StatusOK, "Scan session", resp)
}

// ConfirmScan godoc
// @Summary      Confirm a scan session
// @Description  Persists the merged receipt and closes the session
// @Tags         Scans
// @Produce      json
// @Param        id  path      string  true  "Session ID"
// @Success      200 {object}  utils.APIResponse{data=models.StoredReceipt}
// @Failure      400 {object}  utils.APIResponse
// @Failure      404 {object}  utils.APIResponse
// @Security     BearerAuth
// @Router       /scans/{id}/confirm [post]
func (h *ScanHandler) ConfirmScan(c *gin.Context) {
	userID := ""
	if uid, exists := c.Get("auth_uid"); exists {
		userID = uid.(string)
	}

	stored, err := h.scanService.ConfirmSession(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		utils.RespondError(c, statusForError(err), err.Error())
		return
	}
	utils.RespondSuccess(c, http.StatusOK, "Receipt stored", stored)
}

// AbortScan godoc
// @Summary      Abort a scan session
// @Description  Discards a scan session without persisting anything
// @Tags         Scans
// @Produce      json
// @Param        id  path      string  true  "Session ID"
// @Success      200 {object}  utils.APIResponse
// @Failure      404 {object}  utils.APIResponse
// @Security     BearerAuth
// @Router       /scans/{id} [delete]
func (h *ScanHandler) AbortScan(c *gin.Context) {
	if err := h.scanService.AbortSession(c.Request.Context(), c.Param("id")); err != nil {
		utils.RespondNotFound(c, err.Error())
		return
	}
	utils.RespondSuccess(c, http.StatusOK, "Scan session aborted", nil)
}

func statusForError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if strings.HasSuffix(err.Error(), "not found") {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}
