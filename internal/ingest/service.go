// Package ingest turns structured document extractions into draft bills.
// OCR and extraction are external collaborators; this service consumes
// their output.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/paylane/billflow/internal/approval"
	"github.com/paylane/billflow/internal/models"
	"github.com/paylane/billflow/internal/port"
)

// ErrVendorUnknown means the extracted vendor name matched no vendor in
// the organization; the document is stored but no bill is created
var ErrVendorUnknown = errors.New("extracted vendor not found")

// Service creates bills from document extractions
type Service struct {
	documents port.DocumentRepository
	vendors   port.VendorRepository
	bills     port.BillRepository
	engine    *approval.Engine
	logger    *zap.Logger

	// confidenceThreshold gates auto-submission: extractions below it
	// produce a draft bill that requires human review first.
	confidenceThreshold float64
}

// NewService creates a new ingestion service
func NewService(
	documents port.DocumentRepository,
	vendors port.VendorRepository,
	bills port.BillRepository,
	engine *approval.Engine,
	confidenceThreshold float64,
	logger *zap.Logger,
) *Service {
	return &Service{
		documents:           documents,
		vendors:             vendors,
		bills:               bills,
		engine:              engine,
		logger:              logger,
		confidenceThreshold: confidenceThreshold,
	}
}

// Input is one extraction delivered by the document pipeline
type Input struct {
	OrgID      string
	FileName   string
	Extracted  models.ExtractedBillData
	Confidence float64
}

// CreateBillFromDocument records the document and creates a draft bill
// from its extraction. High-confidence extractions are submitted into the
// approval flow immediately; low-confidence ones stay in DRAFT flagged
// for human review.
func (s *Service) CreateBillFromDocument(ctx context.Context, in Input) (*models.Bill, error) {
	doc := &models.Document{
		OrgID:         in.OrgID,
		FileName:      in.FileName,
		ExtractedData: in.Extracted,
		Confidence:    in.Confidence,
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, err
	}

	vendor, err := s.vendors.GetByName(ctx, in.OrgID, in.Extracted.VendorName)
	if err != nil {
		if errors.Is(err, port.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrVendorUnknown, in.Extracted.VendorName)
		}
		return nil, err
	}

	currency := in.Extracted.Currency
	if currency == "" {
		currency = "USD"
	}

	needsReview := in.Confidence < s.confidenceThreshold

	bill := &models.Bill{
		OrgID:       in.OrgID,
		VendorID:    vendor.ID,
		Amount:      in.Extracted.Amount,
		Currency:    currency,
		IssueDate:   time.Now(),
		DueDate:     in.Extracted.DueDate,
		Category:    vendor.Category,
		Status:      models.BillStatusDraft,
		DocumentID:  &doc.ID,
		NeedsReview: needsReview,
	}
	if err := bill.Validate(); err != nil {
		return nil, fmt.Errorf("extracted bill is invalid: %w", err)
	}

	if err := s.bills.Create(ctx, bill); err != nil {
		return nil, err
	}
	if err := s.documents.MarkProcessed(ctx, doc.ID); err != nil {
		return nil, err
	}

	s.logger.Info("Bill created from document",
		zap.Int64("bill_id", bill.ID),
		zap.Int64("document_id", doc.ID),
		zap.Float64("confidence", in.Confidence),
		zap.Bool("needs_review", needsReview))

	if needsReview {
		return bill, nil
	}

	submitted, err := s.engine.SubmitBill(ctx, bill.ID)
	if err != nil {
		// NoMatchingWorkflow parks the bill; the caller still gets it.
		if errors.Is(err, approval.ErrNoMatchingWorkflow) {
			return submitted, err
		}
		return nil, err
	}

	return submitted, nil
}
