// Package reconcile applies asynchronous payment-processor outcomes back
// onto payment and bill state, idempotently.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/paylane/billflow/internal/lifecycle"
	"github.com/paylane/billflow/internal/models"
	"github.com/paylane/billflow/internal/port"
	"github.com/paylane/billflow/internal/processor"
)

var (
	// ErrUnknownReference means no payment carries the delivered
	// processor reference
	ErrUnknownReference = errors.New("unknown processor reference")

	// ErrOutcomeConflict means the payment is already terminal in a
	// different state than the delivered outcome; this is surfaced, never
	// resolved by picking a winner
	ErrOutcomeConflict = errors.New("outcome conflicts with terminal payment state")
)

// Listener consumes processor outcomes keyed by processor reference
type Listener struct {
	bills    port.BillRepository
	payments port.PaymentRepository
	audit    port.AuditRepository
	logger   *zap.Logger
	now      func() time.Time
}

// NewListener creates a new reconciliation listener
func NewListener(
	bills port.BillRepository,
	payments port.PaymentRepository,
	audit port.AuditRepository,
	logger *zap.Logger,
) *Listener {
	return &Listener{
		bills:    bills,
		payments: payments,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
	}
}

// Apply drives the payment and its bill forward according to one
// processor outcome. A replayed delivery for a payment already in the
// target terminal state is a detected no-op, checked before mutation,
// logged but never an error.
func (l *Listener) Apply(ctx context.Context, outcome processor.Outcome) error {
	if outcome.ProcessorReference == "" {
		return fmt.Errorf("%w: empty reference", ErrUnknownReference)
	}

	payment, err := l.payments.GetByProcessorReference(ctx, outcome.ProcessorReference)
	if err != nil {
		if errors.Is(err, port.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownReference, outcome.ProcessorReference)
		}
		return err
	}

	target := models.PaymentStatusCompleted
	if outcome.Status == processor.OutcomeFailed {
		target = models.PaymentStatusFailed
	}

	if payment.Status.IsTerminal() {
		if payment.Status == target {
			l.logger.Info("Reconciliation replay detected, ignoring",
				zap.Int64("payment_id", payment.ID),
				zap.String("processor_reference", outcome.ProcessorReference),
				zap.String("status", payment.Status.String()))
			return nil
		}
		return fmt.Errorf("%w: payment %d is %s, outcome says %s",
			ErrOutcomeConflict, payment.ID, payment.Status, outcome.Status)
	}

	switch outcome.Status {
	case processor.OutcomeCompleted:
		return l.applyCompleted(ctx, payment, outcome)
	case processor.OutcomeFailed:
		return l.applyFailed(ctx, payment, outcome)
	default:
		return fmt.Errorf("unknown outcome status: %q", outcome.Status)
	}
}

func (l *Listener) applyCompleted(ctx context.Context, payment *models.Payment, outcome processor.Outcome) error {
	now := l.now()
	payment.Status = models.PaymentStatusCompleted
	payment.ProcessedDate = &now
	payment.Fees = outcome.Fees
	payment.ExchangeRate = outcome.ExchangeRate

	if err := l.payments.Update(ctx, payment); err != nil {
		return err
	}

	bill, err := l.bills.GetByID(ctx, payment.BillID)
	if err != nil {
		return err
	}

	next, err := lifecycle.Transition(ctx, bill.Status, lifecycle.TriggerMarkPaid)
	if err != nil {
		return err
	}

	from := bill.Status
	bill.Status = next
	bill.PaidDate = &now
	if err := l.bills.Update(ctx, bill); err != nil {
		return err
	}

	if err := l.audit.Append(ctx, &models.AuditEntry{
		BillID:     bill.ID,
		Actor:      models.SystemActor,
		Action:     "payment_completed",
		FromStatus: from,
		ToStatus:   next,
		Detail:     fmt.Sprintf("payment %d completed (%s)", payment.ID, payment.ProcessorReference),
	}); err != nil {
		return err
	}

	l.logger.Info("Payment reconciled as completed",
		zap.Int64("payment_id", payment.ID),
		zap.Int64("bill_id", bill.ID),
		zap.String("processor_reference", payment.ProcessorReference))

	return nil
}

// applyFailed retains the failed payment record for the attempt history
// and reverts the bill to APPROVED so the next scheduler pass opens a
// fresh attempt.
func (l *Listener) applyFailed(ctx context.Context, payment *models.Payment, outcome processor.Outcome) error {
	payment.Status = models.PaymentStatusFailed
	payment.FailureReason = outcome.Reason

	if err := l.payments.Update(ctx, payment); err != nil {
		return err
	}

	bill, err := l.bills.GetByID(ctx, payment.BillID)
	if err != nil {
		return err
	}

	next, err := lifecycle.Transition(ctx, bill.Status, lifecycle.TriggerRetry)
	if err != nil {
		return err
	}

	from := bill.Status
	bill.Status = next
	bill.ScheduledDate = nil
	if err := l.bills.Update(ctx, bill); err != nil {
		return err
	}

	if err := l.audit.Append(ctx, &models.AuditEntry{
		BillID:     bill.ID,
		Actor:      models.SystemActor,
		Action:     "payment_failed",
		FromStatus: from,
		ToStatus:   next,
		Detail:     fmt.Sprintf("payment %d failed: %s", payment.ID, outcome.Reason),
	}); err != nil {
		return err
	}

	l.logger.Warn("Payment reconciled as failed",
		zap.Int64("payment_id", payment.ID),
		zap.Int64("bill_id", bill.ID),
		zap.String("reason", outcome.Reason))

	return nil
}
