package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PositionCategory classifies a recognized line item by the configured
// keyword sets.
type PositionCategory string

const (
	CategoryFood     PositionCategory = "food"
	CategoryNonFood  PositionCategory = "non_food"
	CategoryDiscount PositionCategory = "discount"
	CategoryDeposit  PositionCategory = "deposit"
	CategoryUnknown  PositionCategory = ""
)

// ReceiptPosition is one recognized line item in transport/persistence
// form.
type ReceiptPosition struct {
	Name             string           `json:"name" bson:"name"`
	NormalizedName   string           `json:"normalized_name" bson:"normalized_name"`
	Price            float64          `json:"price" bson:"price"`
	Quantity         int              `json:"quantity,omitempty" bson:"quantity,omitempty"`
	UnitPrice        float64          `json:"unit_price,omitempty" bson:"unit_price,omitempty"`
	Category         PositionCategory `json:"category,omitempty" bson:"category,omitempty"`
	Confidence       int              `json:"confidence" bson:"confidence"`
	AlternativeNames []string         `json:"alternative_names,omitempty" bson:"alternative_names,omitempty"`
}

// ReceiptResponse is the merged recognition result exposed to callers.
type ReceiptResponse struct {
	Store           string            `json:"store,omitempty"`
	TotalLabel      string            `json:"total_label,omitempty"`
	Total           *float64          `json:"total,omitempty"`
	CalculatedTotal float64           `json:"calculated_total"`
	PurchaseDate    *time.Time        `json:"purchase_date,omitempty"`
	Positions       []ReceiptPosition `json:"positions"`
	IsValid         bool              `json:"is_valid"`
	IsEmpty         bool              `json:"is_empty"`
}

// StoredReceipt is a confirmed merged receipt persisted to MongoDB.
type StoredReceipt struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	SessionID       string             `json:"session_id" bson:"session_id"`
	ConfirmedBy     string             `json:"confirmed_by,omitempty" bson:"confirmed_by,omitempty"`
	Store           string             `json:"store,omitempty" bson:"store,omitempty"`
	TotalLabel      string             `json:"total_label,omitempty" bson:"total_label,omitempty"`
	Total           *float64           `json:"total,omitempty" bson:"total,omitempty"`
	CalculatedTotal float64            `json:"calculated_total" bson:"calculated_total"`
	PurchaseDate    *time.Time         `json:"purchase_date,omitempty" bson:"purchase_date,omitempty"`
	Positions       []ReceiptPosition  `json:"positions" bson:"positions"`
	IsValid         bool               `json:"is_valid" bson:"is_valid"`
	FrameCount      int                `json:"frame_count" bson:"frame_count"`
	CreatedAt       time.Time          `json:"created_at" bson:"created_at"`
}

// ScanSessionResponse describes one live scan session.
type ScanSessionResponse struct {
	SessionID  string           `json:"session_id"`
	FrameCount int              `json:"frame_count"`
	Receipt    *ReceiptResponse `json:"receipt,omitempty"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// CreateScanRequest opens a new scan session. Options follow the
// recognition options schema and merge into the defaults.
type CreateScanRequest struct {
	Options map[string]any `json:"options,omitempty"`
}

// SubmitFrameRequest feeds one camera frame into a session. Exactly one
// of Frame, ImageURL or ImageBase64 must be set; images go through the
// Vision OCR adapter first.
type SubmitFrameRequest struct {
	Frame       *FrameOCR `json:"frame,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	ImageBase64 string    `json:"image_base64,omitempty"`
}

// FrameOCR mirrors the recognition input contract on the wire.
type FrameOCR struct {
	Blocks []FrameBlock `json:"blocks"`
}

// FrameBlock is one OCR block of text lines.
type FrameBlock struct {
	Lines []FrameLine `json:"lines"`
}

// FrameLine is one OCR text line with its bounding box.
type FrameLine struct {
	Text       string    `json:"text"`
	BBox       FrameRect `json:"bbox"`
	Confidence float64   `json:"confidence,omitempty"`
}

// FrameRect is an axis-aligned bounding rectangle.
type FrameRect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}
