// Package processor defines the contract with the external payment
// processor. The engine only ever submits claimed payment intents and
// consumes asynchronous outcomes; credentials and transport belong to
// the adapter implementation.
package processor

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrSubmissionFailed wraps transient submission failures. The scheduler
// retries these with backoff up to its attempt bound.
var ErrSubmissionFailed = errors.New("processor submission failed")

// OutcomeStatus is the terminal status reported by the processor
type OutcomeStatus string

const (
	OutcomeCompleted OutcomeStatus = "completed"
	OutcomeFailed    OutcomeStatus = "failed"
)

// SubmitRequest carries one claimed payment intent to the processor
type SubmitRequest struct {
	PaymentID      int64
	IdempotencyKey string
	Amount         decimal.Decimal
	Currency       string
	Method         string
	VendorName     string
}

// SubmitResult is the processor's synchronous acknowledgement
type SubmitResult struct {
	ProcessorReference string
}

// Outcome is the asynchronous terminal result delivered by webhook or
// poll, keyed by the processor reference
type Outcome struct {
	ProcessorReference string           `json:"processor_reference"`
	Status             OutcomeStatus    `json:"status"`
	Reason             string           `json:"reason,omitempty"`
	Fees               *decimal.Decimal `json:"fees,omitempty"`
	ExchangeRate       *decimal.Decimal `json:"exchange_rate,omitempty"`
}

// Processor submits payment intents. Submit must be safe to call at most
// once per payment given the scheduler's claim discipline; the
// idempotency key protects against transport-level retries.
type Processor interface {
	Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error)
}

// OutcomeSource is an optional poll feed of processor outcomes for
// deployments without webhook delivery
type OutcomeSource interface {
	PollOutcomes(ctx context.Context, limit int) ([]Outcome, error)
}
