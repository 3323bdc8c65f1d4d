package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/paylane/billflow/internal/models"
	"github.com/paylane/billflow/internal/port"
)

// PaymentRepository handles payment database operations
type PaymentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *sql.DB, logger *zap.Logger) *PaymentRepository {
	return &PaymentRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new payment attempt
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.Status == "" {
		payment.Status = models.PaymentStatusPending
	}
	if payment.Version == 0 {
		payment.Version = 1
	}
	if payment.Attempt == 0 {
		payment.Attempt = 1
	}

	query := `
		INSERT INTO payments (
			bill_id, org_id, amount, currency, method, idempotency_key,
			status, scheduled_date, attempt, submit_attempts, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		payment.BillID,
		payment.OrgID,
		payment.Amount,
		payment.Currency,
		payment.Method,
		payment.IdempotencyKey,
		payment.Status,
		payment.ScheduledDate,
		payment.Attempt,
		payment.SubmitAttempts,
		payment.Version,
	)
	if err != nil {
		// The partial unique index on payments(bill_id) rejects a second
		// open attempt for the same bill.
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique &&
			strings.Contains(sqliteErr.Error(), "payments.bill_id") {
			return port.ErrOpenPaymentExists
		}
		r.logger.Error("Failed to create payment", zap.Int64("bill_id", payment.BillID), zap.Error(err))
		return fmt.Errorf("failed to create payment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	payment.ID = id
	return nil
}

const paymentColumns = `
	id, bill_id, org_id, amount, currency, method, idempotency_key,
	processor_reference, status, scheduled_date, processed_date, fees,
	exchange_rate, attempt, submit_attempts, next_submit_at, failure_reason,
	version, created_at, updated_at
`

func (r *PaymentRepository) scanPayment(row interface {
	Scan(dest ...interface{}) error
}) (*models.Payment, error) {
	var payment models.Payment
	var processorRef sql.NullString
	var processedDate, nextSubmitAt sql.NullTime
	var fees, exchangeRate decimal.NullDecimal

	err := row.Scan(
		&payment.ID,
		&payment.BillID,
		&payment.OrgID,
		&payment.Amount,
		&payment.Currency,
		&payment.Method,
		&payment.IdempotencyKey,
		&processorRef,
		&payment.Status,
		&payment.ScheduledDate,
		&processedDate,
		&fees,
		&exchangeRate,
		&payment.Attempt,
		&payment.SubmitAttempts,
		&nextSubmitAt,
		&payment.FailureReason,
		&payment.Version,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if processorRef.Valid {
		payment.ProcessorReference = processorRef.String
	}
	if processedDate.Valid {
		payment.ProcessedDate = &processedDate.Time
	}
	if nextSubmitAt.Valid {
		payment.NextSubmitAt = &nextSubmitAt.Time
	}
	if fees.Valid {
		payment.Fees = &fees.Decimal
	}
	if exchangeRate.Valid {
		payment.ExchangeRate = &exchangeRate.Decimal
	}

	return &payment, nil
}

// GetByID retrieves a payment by its ID
func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`

	payment, err := r.scanPayment(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get payment", zap.Int64("payment_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	return payment, nil
}

// GetByProcessorReference retrieves a payment by the reference the
// processor assigned at submission
func (r *PaymentRepository) GetByProcessorReference(ctx context.Context, ref string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE processor_reference = ?`

	payment, err := r.scanPayment(r.db.QueryRowContext(ctx, query, ref))
	if err == sql.ErrNoRows {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get payment by processor reference", zap.String("processor_reference", ref), zap.Error(err))
		return nil, fmt.Errorf("failed to get payment by processor reference: %w", err)
	}

	return payment, nil
}

// Update writes all mutable payment fields guarded by the payment's version
func (r *PaymentRepository) Update(ctx context.Context, payment *models.Payment) error {
	var processorRef sql.NullString
	if payment.ProcessorReference != "" {
		processorRef = sql.NullString{String: payment.ProcessorReference, Valid: true}
	}

	var processedDate, nextSubmitAt sql.NullTime
	if payment.ProcessedDate != nil {
		processedDate = sql.NullTime{Time: *payment.ProcessedDate, Valid: true}
	}
	if payment.NextSubmitAt != nil {
		nextSubmitAt = sql.NullTime{Time: *payment.NextSubmitAt, Valid: true}
	}

	var fees, exchangeRate decimal.NullDecimal
	if payment.Fees != nil {
		fees = decimal.NullDecimal{Decimal: *payment.Fees, Valid: true}
	}
	if payment.ExchangeRate != nil {
		exchangeRate = decimal.NullDecimal{Decimal: *payment.ExchangeRate, Valid: true}
	}

	query := `
		UPDATE payments SET
			processor_reference = ?, status = ?, processed_date = ?, fees = ?,
			exchange_rate = ?, submit_attempts = ?, next_submit_at = ?,
			failure_reason = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		processorRef,
		payment.Status,
		processedDate,
		fees,
		exchangeRate,
		payment.SubmitAttempts,
		nextSubmitAt,
		payment.FailureReason,
		payment.ID,
		payment.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update payment", zap.Int64("payment_id", payment.ID), zap.Error(err))
		return fmt.Errorf("failed to update payment: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return port.ErrVersionConflict
	}

	payment.Version++
	return nil
}

// HasOpenForBill reports whether the bill has a payment attempt in a
// non-terminal state. This is the primary duplicate-payment defense.
func (r *PaymentRepository) HasOpenForBill(ctx context.Context, billID int64) (bool, error) {
	query := `
		SELECT COUNT(1) FROM payments
		WHERE bill_id = ? AND status IN (?, ?)
	`

	var count int
	err := r.db.QueryRowContext(ctx, query, billID, models.PaymentStatusPending, models.PaymentStatusProcessing).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to check open payments", zap.Int64("bill_id", billID), zap.Error(err))
		return false, fmt.Errorf("failed to check open payments: %w", err)
	}

	return count > 0, nil
}

// CountForBill returns the number of payment attempts recorded for a bill
func (r *PaymentRepository) CountForBill(ctx context.Context, billID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM payments WHERE bill_id = ?`, billID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count payments: %w", err)
	}
	return count, nil
}

// ListForBill retrieves every payment attempt for a bill in order
func (r *PaymentRepository) ListForBill(ctx context.Context, billID int64) ([]*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE bill_id = ? ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, billID)
	if err != nil {
		r.logger.Error("Failed to list payments for bill", zap.Int64("bill_id", billID), zap.Error(err))
		return nil, fmt.Errorf("failed to list payments for bill: %w", err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		payment, err := r.scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, payment)
	}

	return payments, rows.Err()
}

// ListDue retrieves pending payments whose scheduled date has arrived and
// whose backoff window, if any, has elapsed
func (r *PaymentRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = ? AND scheduled_date <= ?
		  AND (next_submit_at IS NULL OR next_submit_at <= ?)
		ORDER BY scheduled_date
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, models.PaymentStatusPending, now, now, limit)
	if err != nil {
		r.logger.Error("Failed to list due payments", zap.Error(err))
		return nil, fmt.Errorf("failed to list due payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		payment, err := r.scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, payment)
	}

	return payments, rows.Err()
}

// ClaimForProcessing atomically moves a PENDING payment to PROCESSING,
// guarded by the version the caller read. Exactly one concurrent worker
// wins; the others get port.ErrVersionConflict and must skip the payment.
func (r *PaymentRepository) ClaimForProcessing(ctx context.Context, id, version int64) error {
	query := `
		UPDATE payments
		SET status = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query, models.PaymentStatusProcessing, id, version, models.PaymentStatusPending)
	if err != nil {
		r.logger.Error("Failed to claim payment", zap.Int64("payment_id", id), zap.Error(err))
		return fmt.Errorf("failed to claim payment: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return port.ErrVersionConflict
	}

	return nil
}
