// Package scheduler turns approved bills into payment intents and
// submits due intents to the payment processor.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paylane/billflow/internal/lifecycle"
	"github.com/paylane/billflow/internal/models"
	"github.com/paylane/billflow/internal/port"
)

// Scheduler creates payment intents for approved bills
type Scheduler struct {
	bills    port.BillRepository
	vendors  port.VendorRepository
	payments port.PaymentRepository
	audit    port.AuditRepository
	logger   *zap.Logger
	now      func() time.Time
}

// NewScheduler creates a new payment scheduler
func NewScheduler(
	bills port.BillRepository,
	vendors port.VendorRepository,
	payments port.PaymentRepository,
	audit port.AuditRepository,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		bills:    bills,
		vendors:  vendors,
		payments: payments,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
	}
}

// Schedule creates a PENDING payment for an approved bill and moves the
// bill to SCHEDULED. Eligibility failures return named errors rather than
// silently skipping: the vendor must be active, no other attempt may be
// open for the bill, and the amount must still match the approval capture.
func (s *Scheduler) Schedule(ctx context.Context, billID int64) (*models.Payment, error) {
	bill, err := s.bills.GetByID(ctx, billID)
	if err != nil {
		return nil, err
	}
	if bill.Status != models.BillStatusApproved {
		return nil, fmt.Errorf("%w: status is %s", ErrNotApproved, bill.Status)
	}

	vendor, err := s.vendors.GetByID(ctx, bill.VendorID)
	if err != nil {
		return nil, err
	}
	if !vendor.IsActive() {
		return nil, fmt.Errorf("%w: vendor %d", ErrVendorInactive, vendor.ID)
	}

	open, err := s.payments.HasOpenForBill(ctx, bill.ID)
	if err != nil {
		return nil, err
	}
	if open {
		return nil, fmt.Errorf("%w: bill %d", ErrDuplicatePayment, bill.ID)
	}

	if !bill.AmountMatchesApproved() {
		return nil, fmt.Errorf("%w: bill %d", ErrAmountMismatch, bill.ID)
	}

	scheduledDate := s.resolveScheduledDate(bill, vendor)

	attempts, err := s.payments.CountForBill(ctx, bill.ID)
	if err != nil {
		return nil, err
	}

	next, err := lifecycle.Transition(ctx, bill.Status, lifecycle.TriggerSchedule)
	if err != nil {
		return nil, err
	}

	// The bill's version CAS runs before the payment insert: a concurrent
	// scheduler that also passed the open-attempt check loses here with
	// ErrVersionConflict, before it has created anything.
	from := bill.Status
	bill.Status = next
	bill.ScheduledDate = &scheduledDate
	if err := s.bills.Update(ctx, bill); err != nil {
		return nil, err
	}

	method := ""
	if len(vendor.PaymentMethods) > 0 {
		method = vendor.PaymentMethods[0]
	}

	payment := &models.Payment{
		BillID:         bill.ID,
		OrgID:          bill.OrgID,
		Amount:         bill.Amount,
		Currency:       bill.Currency,
		Method:         method,
		IdempotencyKey: uuid.NewString(),
		Status:         models.PaymentStatusPending,
		ScheduledDate:  scheduledDate,
		Attempt:        attempts + 1,
	}

	if err := s.payments.Create(ctx, payment); err != nil {
		if errors.Is(err, port.ErrOpenPaymentExists) {
			return nil, fmt.Errorf("%w: bill %d", ErrDuplicatePayment, bill.ID)
		}
		return nil, err
	}

	if err := s.audit.Append(ctx, &models.AuditEntry{
		BillID:     bill.ID,
		Actor:      models.SystemActor,
		Action:     "schedule",
		FromStatus: from,
		ToStatus:   next,
		Detail:     fmt.Sprintf("payment %d attempt %d scheduled for %s", payment.ID, payment.Attempt, scheduledDate.Format("2006-01-02")),
	}); err != nil {
		return nil, err
	}

	s.logger.Info("Payment scheduled",
		zap.Int64("bill_id", bill.ID),
		zap.Int64("payment_id", payment.ID),
		zap.Int("attempt", payment.Attempt),
		zap.Time("scheduled_date", scheduledDate))

	return payment, nil
}

// resolveScheduledDate honors an explicit bill schedule; otherwise pays
// as late as safely possible, never in the past:
// max(today, dueDate - vendor payment terms buffer).
func (s *Scheduler) resolveScheduledDate(bill *models.Bill, vendor *models.Vendor) time.Time {
	if bill.ScheduledDate != nil {
		return *bill.ScheduledDate
	}

	today := truncateToDay(s.now())
	latest := truncateToDay(bill.DueDate).AddDate(0, 0, -vendor.PaymentTermsDays)
	if latest.Before(today) {
		return today
	}
	return latest
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
