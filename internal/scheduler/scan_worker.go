package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/paylane/billflow/internal/models"
	"github.com/paylane/billflow/internal/port"
	"github.com/paylane/billflow/internal/processor"
)

// ScanWorker is the background loop that schedules approved bills and
// submits due payments to the processor. Multiple workers may run
// concurrently across processes; the version-guarded claim on each
// payment guarantees single submission.
type ScanWorker struct {
	scheduler *Scheduler
	bills     port.BillRepository
	vendors   port.VendorRepository
	payments  port.PaymentRepository
	audit     port.AuditRepository
	proc      processor.Processor
	logger    *zap.Logger

	scanInterval time.Duration
	batchSize    int
	retry        RetryConfig
	now          func() time.Time

	mu        sync.RWMutex
	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewScanWorker creates a new payment scan worker
func NewScanWorker(
	scheduler *Scheduler,
	bills port.BillRepository,
	vendors port.VendorRepository,
	payments port.PaymentRepository,
	audit port.AuditRepository,
	proc processor.Processor,
	scanInterval time.Duration,
	retry RetryConfig,
	logger *zap.Logger,
) *ScanWorker {
	return &ScanWorker{
		scheduler:    scheduler,
		bills:        bills,
		vendors:      vendors,
		payments:     payments,
		audit:        audit,
		proc:         proc,
		logger:       logger,
		scanInterval: scanInterval,
		batchSize:    50,
		retry:        retry,
		now:          time.Now,
	}
}

// Start starts the scan loop
func (w *ScanWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return fmt.Errorf("payment scan worker is already running")
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.isRunning = true

	w.logger.Info("PaymentScanWorker started",
		zap.Duration("scan_interval", w.scanInterval),
		zap.Int("batch_size", w.batchSize))

	go w.scanLoop()

	return nil
}

// Stop stops the scan loop
func (w *ScanWorker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.isRunning {
		return
	}

	w.isRunning = false
	if w.cancel != nil {
		w.cancel()
	}

	w.logger.Info("PaymentScanWorker stopped")
}

// Name returns the worker name for identification
func (w *ScanWorker) Name() string {
	return "PaymentScanWorker"
}

func (w *ScanWorker) scanLoop() {
	ticker := time.NewTicker(w.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(w.ctx)
		}
	}
}

// RunOnce executes a single scan pass: sweep approved bills into the
// schedule, then submit every due pending payment.
func (w *ScanWorker) RunOnce(ctx context.Context) {
	w.sweepApproved(ctx)
	w.submitDue(ctx)
}

// sweepApproved schedules approved bills that have no open payment yet.
// This also covers the retry path: a failed payment reverts its bill to
// APPROVED, and the next pass opens a fresh attempt.
func (w *ScanWorker) sweepApproved(ctx context.Context) {
	bills, err := w.bills.ListSchedulable(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("Failed to list schedulable bills", zap.Error(err))
		return
	}

	for _, bill := range bills {
		if _, err := w.scheduler.Schedule(ctx, bill.ID); err != nil {
			if errors.Is(err, ErrDuplicatePayment) || errors.Is(err, ErrNotApproved) {
				// Another worker got here first.
				continue
			}
			w.logger.Warn("Failed to schedule approved bill",
				zap.Int64("bill_id", bill.ID),
				zap.Error(err))
		}
	}
}

// submitDue claims and submits every pending payment whose time has come
func (w *ScanWorker) submitDue(ctx context.Context) {
	due, err := w.payments.ListDue(ctx, w.now(), w.batchSize)
	if err != nil {
		w.logger.Error("Failed to list due payments", zap.Error(err))
		return
	}

	for _, payment := range due {
		if err := w.submitOne(ctx, payment); err != nil {
			w.logger.Warn("Payment submission pass failed",
				zap.Int64("payment_id", payment.ID),
				zap.Error(err))
		}
	}
}

// submitOne claims a single pending payment and hands it to the
// processor. Losing the claim race is a silent skip; a submission error
// releases the claim with backoff or, once the attempt bound is reached,
// fails the payment terminally and flags the bill for manual intervention.
func (w *ScanWorker) submitOne(ctx context.Context, payment *models.Payment) error {
	if err := w.payments.ClaimForProcessing(ctx, payment.ID, payment.Version); err != nil {
		if errors.Is(err, port.ErrVersionConflict) {
			return nil
		}
		return err
	}
	payment.Version++
	payment.Status = models.PaymentStatusProcessing

	bill, err := w.bills.GetByID(ctx, payment.BillID)
	if err != nil {
		return err
	}
	vendor, err := w.vendors.GetByID(ctx, bill.VendorID)
	if err != nil {
		return err
	}

	result, err := w.proc.Submit(ctx, processor.SubmitRequest{
		PaymentID:      payment.ID,
		IdempotencyKey: payment.IdempotencyKey,
		Amount:         payment.Amount,
		Currency:       payment.Currency,
		Method:         payment.Method,
		VendorName:     vendor.Name,
	})
	if err != nil {
		return w.handleSubmitFailure(ctx, payment, bill, err)
	}

	payment.ProcessorReference = result.ProcessorReference
	payment.SubmitAttempts++
	payment.NextSubmitAt = nil
	if err := w.payments.Update(ctx, payment); err != nil {
		return err
	}

	w.logger.Info("Payment submitted to processor",
		zap.Int64("payment_id", payment.ID),
		zap.String("processor_reference", result.ProcessorReference))

	return nil
}

func (w *ScanWorker) handleSubmitFailure(ctx context.Context, payment *models.Payment, bill *models.Bill, submitErr error) error {
	payment.SubmitAttempts++

	if payment.SubmitAttempts >= w.retry.MaxAttempts {
		payment.Status = models.PaymentStatusFailed
		payment.FailureReason = fmt.Sprintf("submission failed after %d attempts: %v", payment.SubmitAttempts, submitErr)
		payment.NextSubmitAt = nil
		if err := w.payments.Update(ctx, payment); err != nil {
			return err
		}

		if err := w.audit.Append(ctx, &models.AuditEntry{
			BillID:     bill.ID,
			Actor:      models.SystemActor,
			Action:     "manual_intervention_required",
			FromStatus: bill.Status,
			ToStatus:   bill.Status,
			Detail:     payment.FailureReason,
		}); err != nil {
			return err
		}

		w.logger.Error("Payment submission exhausted retries, flagging for manual intervention",
			zap.Int64("payment_id", payment.ID),
			zap.Int64("bill_id", bill.ID),
			zap.Error(submitErr))
		return nil
	}

	// Release the claim and back off before the next try.
	delay := backoff(payment.SubmitAttempts, w.retry)
	next := w.now().Add(delay)
	payment.Status = models.PaymentStatusPending
	payment.NextSubmitAt = &next
	payment.FailureReason = submitErr.Error()
	if err := w.payments.Update(ctx, payment); err != nil {
		return err
	}

	w.logger.Warn("Payment submission failed, will retry",
		zap.Int64("payment_id", payment.ID),
		zap.Int("submit_attempts", payment.SubmitAttempts),
		zap.Duration("backoff", delay))

	return nil
}
