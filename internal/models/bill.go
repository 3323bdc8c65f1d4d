package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Bill represents an obligation to pay a vendor. Bills are the central
// unit of workflow state; once a bill leaves DRAFT it is never hard-deleted,
// only superseded by CANCELLED so the audit trail stays intact.
type Bill struct {
	ID       int64
	OrgID    string
	VendorID int64

	Amount   decimal.Decimal
	Currency string

	IssueDate time.Time
	DueDate   time.Time
	Category  string
	Priority  string

	Status BillStatus

	// ApprovedAmount captures Amount at the moment of approval so the
	// scheduler can detect late mutation before money moves.
	ApprovedAmount *decimal.Decimal

	ScheduledDate *time.Time
	PaidDate      *time.Time

	// DocumentID links back to the originating scanned document, if any.
	DocumentID *int64

	// NeedsReview marks bills created from low-confidence extractions;
	// they must be reviewed by a human before submission.
	NeedsReview bool

	// Version is the optimistic-concurrency guard for all status writes.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks bill invariants. The issue-date ordering is a soft
// invariant: violations are reported by IssueDateAfterDue, not here.
func (b *Bill) Validate() error {
	if b.VendorID == 0 {
		return fmt.Errorf("bill vendor is required")
	}
	if !b.Amount.IsPositive() {
		return fmt.Errorf("bill amount must be positive: %s", b.Amount)
	}
	if b.Currency == "" {
		return fmt.Errorf("bill currency is required")
	}
	if b.DueDate.IsZero() {
		return fmt.Errorf("bill due date is required")
	}
	return nil
}

// IssueDateAfterDue reports the soft invariant violation issueDate > dueDate
func (b *Bill) IssueDateAfterDue() bool {
	return !b.IssueDate.IsZero() && b.IssueDate.After(b.DueDate)
}

// AmountMatchesApproved returns true if the bill amount still equals the
// amount captured at approval time
func (b *Bill) AmountMatchesApproved() bool {
	return b.ApprovedAmount != nil && b.Amount.Equal(*b.ApprovedAmount)
}
