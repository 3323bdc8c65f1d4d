// Package port defines the repository contracts the engine components
// depend on. Concrete SQL implementations live in internal/repository;
// in-memory substitutes for tests live in internal/storetest.
package port

import (
	"context"
	"errors"
	"time"

	"github.com/paylane/billflow/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict is returned when an optimistic-concurrency write
	// finds the record's version changed since it was read
	ErrVersionConflict = errors.New("version conflict")

	// ErrOpenPaymentExists is returned by PaymentRepository.Create when
	// the bill already has an attempt in a non-terminal state
	ErrOpenPaymentExists = errors.New("bill already has an open payment attempt")
)

// VendorRepository handles vendor persistence
type VendorRepository interface {
	Create(ctx context.Context, vendor *models.Vendor) error
	GetByID(ctx context.Context, id int64) (*models.Vendor, error)
	GetByName(ctx context.Context, orgID, name string) (*models.Vendor, error)
	List(ctx context.Context, orgID string) ([]*models.Vendor, error)
}

// BillRepository handles bill persistence. Update performs a
// compare-and-swap on the bill's version and returns ErrVersionConflict
// when the stored version no longer matches.
type BillRepository interface {
	Create(ctx context.Context, bill *models.Bill) error
	GetByID(ctx context.Context, id int64) (*models.Bill, error)
	Update(ctx context.Context, bill *models.Bill) error
	List(ctx context.Context, orgID string, limit, offset int) ([]*models.Bill, error)
	ListByStatus(ctx context.Context, orgID string, status models.BillStatus) ([]*models.Bill, error)
	// ListSchedulable returns approved bills across all organizations
	// that have no open payment attempt, oldest first.
	ListSchedulable(ctx context.Context, limit int) ([]*models.Bill, error)
}

// WorkflowRepository handles approval workflow policies
type WorkflowRepository interface {
	Create(ctx context.Context, workflow *models.ApprovalWorkflow) error
	GetByID(ctx context.Context, id int64) (*models.ApprovalWorkflow, error)
	ListActive(ctx context.Context, orgID string) ([]*models.ApprovalWorkflow, error)
}

// ApprovalRepository handles BillApproval instances and their append-only
// decision logs. RecordDecision atomically appends the step record and
// applies the new current step and status, guarded by the approval's
// version; a stale version yields ErrVersionConflict.
type ApprovalRepository interface {
	Create(ctx context.Context, approval *models.BillApproval) error
	GetByID(ctx context.Context, id int64) (*models.BillApproval, error)
	GetOpenByBillID(ctx context.Context, billID int64) (*models.BillApproval, error)
	RecordDecision(ctx context.Context, approval *models.BillApproval, record *models.ApprovalStepRecord, newStep int, newStatus models.ApprovalStatus) error
}

// PaymentRepository handles payment attempts. Create enforces at most one
// open attempt per bill and returns ErrOpenPaymentExists otherwise.
// ClaimForProcessing performs the exclusive PENDING -> PROCESSING
// compare-and-swap that prevents two scheduler workers from
// double-submitting the same payment.
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, id int64) (*models.Payment, error)
	GetByProcessorReference(ctx context.Context, ref string) (*models.Payment, error)
	Update(ctx context.Context, payment *models.Payment) error
	HasOpenForBill(ctx context.Context, billID int64) (bool, error)
	CountForBill(ctx context.Context, billID int64) (int, error)
	ListForBill(ctx context.Context, billID int64) ([]*models.Payment, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Payment, error)
	ClaimForProcessing(ctx context.Context, id, version int64) error
}

// DocumentRepository handles scanned source documents
type DocumentRepository interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id int64) (*models.Document, error)
	MarkProcessed(ctx context.Context, id int64) error
}

// AuditRepository appends immutable bill history entries
type AuditRepository interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	ListByBill(ctx context.Context, billID int64) ([]*models.AuditEntry, error)
}
