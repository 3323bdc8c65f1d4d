package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExtractedLineItem is one line of a scanned bill as reported by the
// extraction service
type ExtractedLineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
}

// ExtractedBillData is the structured output of the external document
// extraction service. The engine consumes it as-is; OCR itself is an
// external collaborator.
type ExtractedBillData struct {
	VendorName string              `json:"vendor_name"`
	Amount     decimal.Decimal     `json:"amount"`
	Currency   string              `json:"currency"`
	DueDate    time.Time           `json:"due_date"`
	LineItems  []ExtractedLineItem `json:"line_items"`
}

// Document is an uploaded source artifact. Read-only once processed;
// a bill references at most one originating document.
type Document struct {
	ID            int64
	OrgID         string
	FileName      string
	ExtractedData ExtractedBillData
	Confidence    float64
	Processed     bool
	CreatedAt     time.Time
}
