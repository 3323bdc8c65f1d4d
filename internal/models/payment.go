package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is a single attempt to transfer funds for a bill. A bill may
// accumulate multiple attempts only because earlier ones failed; at most
// one attempt is open (PENDING or PROCESSING) at any time, enforced by
// the scheduler.
type Payment struct {
	ID     int64
	BillID int64
	OrgID  string

	Amount   decimal.Decimal
	Currency string
	Method   string

	// IdempotencyKey is generated when the attempt is created and passed
	// to the processor on submission so a retried submit call cannot
	// produce a second transfer.
	IdempotencyKey string

	// ProcessorReference is assigned by the processor on submission and
	// is unique across all payments once set.
	ProcessorReference string

	Status        PaymentStatus
	ScheduledDate time.Time
	ProcessedDate *time.Time

	Fees         *decimal.Decimal
	ExchangeRate *decimal.Decimal

	// Attempt is 1 for the first payment of a bill and increments for
	// each retry after failure.
	Attempt int

	// SubmitAttempts counts processor submission tries for this payment;
	// bounded by the scheduler's retry policy.
	SubmitAttempts int
	NextSubmitAt   *time.Time
	FailureReason  string

	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}
