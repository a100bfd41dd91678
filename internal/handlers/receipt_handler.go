package handlers

import (
	"net/http"

	"github.com/receiptfusion/backend/internal/models"
	"github.com/receiptfusion/backend/internal/repository"
	"github.com/receiptfusion/backend/internal/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ReceiptHandler struct {
	receiptRepo *repository.ReceiptRepository
}

func NewReceiptHandler(receiptRepo *repository.ReceiptRepository) *ReceiptHandler {
	return &ReceiptHandler{receiptRepo: receiptRepo}
}

// ListReceipts godoc
// @Summary      List stored receipts
// @Description  Returns confirmed receipts, newest first, optionally filtered by store
// @Tags         Receipts
// @Produce      json
// @Param        page   query     int     false  "Page number"
// @Param        limit  query     int     false  "Page size"
// @Param        store  query     string  false  "Canonical store name filter"
// @Success      200    {object}  utils.APIResponse{data=utils.PaginatedResponse}
// @Failure      500    {object}  utils.APIResponse
// @Security     BearerAuth
// @Router       /receipts [get]
func (h *ReceiptHandler) ListReceipts(c *gin.Context) {
	pagination := utils.ParsePagination(c)

	var (
		receipts []models.StoredReceipt
		err      error
	)
	if store := c.Query("store"); store != "" {
		receipts, err = h.receiptRepo.ListByStore(c.Request.Context(), store, pagination.Skip(), int64(pagination.Limit))
	} else {
		receipts, err = h.receiptRepo.List(c.Request.Context(), pagination.Skip(), int64(pagination.Limit))
	}
	if err != nil {
		utils.RespondInternalError(c, "Failed to list receipts: "+err.Error())
		return
	}

	total, err := h.receiptRepo.Count(c.Request.Context())
	if err != nil {
		utils.RespondInternalError(c, "Failed to count receipts: "+err.Error())
		return
	}
	pagination.SetTotal(total)

	utils.RespondPaginated(c, http.StatusOK, "Receipts", receipts, pagination)
}

// GetReceipt godoc
// @Summary      Get a stored receipt
// @Description  Returns one confirmed receipt by ID
// @Tags         Receipts
// @Produce      json
// @Param        id  path      string  true  "Receipt ID"
// @Success      200 {object}  utils.APIResponse{data=models.StoredReceipt}
// @Failure      400 {object}  utils.APIResponse
// @Failure      404 {object}  utils.APIResponse
// @Security     BearerAuth
// @Router       /receipts/{id} [get]
func (h *ReceiptHandler) GetReceipt(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.RespondBadRequest(c, "Invalid receipt ID")
		return
	}

	receipt, err := h.receiptRepo.FindByID(c.Request.Context(), id)
	if err != nil {
		utils.RespondNotFound(c, "Receipt not found")
		return
	}
	utils.RespondSuccess(c, http.StatusOK, "Receipt", receipt)
}
