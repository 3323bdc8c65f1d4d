package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/paylane/billflow/internal/models"
	"github.com/paylane/billflow/internal/port"
)

// BillRepository handles bill database operations
type BillRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBillRepository creates a new bill repository
func NewBillRepository(db *sql.DB, logger *zap.Logger) *BillRepository {
	return &BillRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new bill record in DRAFT with version 1
func (r *BillRepository) Create(ctx context.Context, bill *models.Bill) error {
	if bill.Status == "" {
		bill.Status = models.BillStatusDraft
	}
	if bill.Version == 0 {
		bill.Version = 1
	}

	query := `
		INSERT INTO bills (
			org_id, vendor_id, amount, currency, issue_date, due_date,
			category, priority, status, document_id, needs_review, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		bill.OrgID,
		bill.VendorID,
		bill.Amount,
		bill.Currency,
		bill.IssueDate,
		bill.DueDate,
		bill.Category,
		bill.Priority,
		bill.Status,
		bill.DocumentID,
		bill.NeedsReview,
		bill.Version,
	)
	if err != nil {
		r.logger.Error("Failed to create bill", zap.Error(err))
		return fmt.Errorf("failed to create bill: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	bill.ID = id
	return nil
}

const billColumns = `
	id, org_id, vendor_id, amount, currency, issue_date, due_date,
	category, priority, status, approved_amount, scheduled_date, paid_date,
	document_id, needs_review, version, created_at, updated_at
`

func (r *BillRepository) scanBill(row interface {
	Scan(dest ...interface{}) error
}) (*models.Bill, error) {
	var bill models.Bill
	var issueDate, scheduledDate, paidDate sql.NullTime
	var approvedAmount decimal.NullDecimal
	var documentID sql.NullInt64

	err := row.Scan(
		&bill.ID,
		&bill.OrgID,
		&bill.VendorID,
		&bill.Amount,
		&bill.Currency,
		&issueDate,
		&bill.DueDate,
		&bill.Category,
		&bill.Priority,
		&bill.Status,
		&approvedAmount,
		&scheduledDate,
		&paidDate,
		&documentID,
		&bill.NeedsReview,
		&bill.Version,
		&bill.CreatedAt,
		&bill.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if issueDate.Valid {
		bill.IssueDate = issueDate.Time
	}
	if scheduledDate.Valid {
		bill.ScheduledDate = &scheduledDate.Time
	}
	if paidDate.Valid {
		bill.PaidDate = &paidDate.Time
	}
	if approvedAmount.Valid {
		bill.ApprovedAmount = &approvedAmount.Decimal
	}
	if documentID.Valid {
		bill.DocumentID = &documentID.Int64
	}

	return &bill, nil
}

// GetByID retrieves a bill by its ID
func (r *BillRepository) GetByID(ctx context.Context, id int64) (*models.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills WHERE id = ?`

	bill, err := r.scanBill(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get bill", zap.Int64("bill_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get bill: %w", err)
	}

	return bill, nil
}

// Update writes all mutable bill fields guarded by the bill's version.
// On success the in-memory version is bumped; a stale version returns
// port.ErrVersionConflict and leaves the record untouched.
func (r *BillRepository) Update(ctx context.Context, bill *models.Bill) error {
	var approvedAmount decimal.NullDecimal
	if bill.ApprovedAmount != nil {
		approvedAmount = decimal.NullDecimal{Decimal: *bill.ApprovedAmount, Valid: true}
	}

	var scheduledDate, paidDate sql.NullTime
	if bill.ScheduledDate != nil {
		scheduledDate = sql.NullTime{Time: *bill.ScheduledDate, Valid: true}
	}
	if bill.PaidDate != nil {
		paidDate = sql.NullTime{Time: *bill.PaidDate, Valid: true}
	}

	query := `
		UPDATE bills SET
			amount = ?, currency = ?, issue_date = ?, due_date = ?,
			category = ?, priority = ?, status = ?, approved_amount = ?,
			scheduled_date = ?, paid_date = ?, needs_review = ?,
			version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		bill.Amount,
		bill.Currency,
		bill.IssueDate,
		bill.DueDate,
		bill.Category,
		bill.Priority,
		bill.Status,
		approvedAmount,
		scheduledDate,
		paidDate,
		bill.NeedsReview,
		bill.ID,
		bill.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update bill", zap.Int64("bill_id", bill.ID), zap.Error(err))
		return fmt.Errorf("failed to update bill: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return port.ErrVersionConflict
	}

	bill.Version++
	return nil
}

// List retrieves bills for an organization, newest first
func (r *BillRepository) List(ctx context.Context, orgID string, limit, offset int) ([]*models.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills WHERE org_id = ? ORDER BY id DESC LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, orgID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list bills", zap.Error(err))
		return nil, fmt.Errorf("failed to list bills: %w", err)
	}
	defer rows.Close()

	return r.collect(rows)
}

// ListByStatus retrieves all bills of an organization in a given status
func (r *BillRepository) ListByStatus(ctx context.Context, orgID string, status models.BillStatus) ([]*models.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills WHERE org_id = ? AND status = ? ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, orgID, status)
	if err != nil {
		r.logger.Error("Failed to list bills by status", zap.String("status", status.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to list bills by status: %w", err)
	}
	defer rows.Close()

	return r.collect(rows)
}

// ListSchedulable retrieves approved bills with no open payment attempt,
// oldest first. This feeds the scheduler sweep, including the retry path
// after a failed payment reverts its bill to APPROVED.
func (r *BillRepository) ListSchedulable(ctx context.Context, limit int) ([]*models.Bill, error) {
	query := `SELECT ` + billColumns + `
		FROM bills
		WHERE status = ?
		  AND NOT EXISTS (
			SELECT 1 FROM payments
			WHERE payments.bill_id = bills.id AND payments.status IN (?, ?)
		  )
		ORDER BY id
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query,
		models.BillStatusApproved,
		models.PaymentStatusPending,
		models.PaymentStatusProcessing,
		limit,
	)
	if err != nil {
		r.logger.Error("Failed to list schedulable bills", zap.Error(err))
		return nil, fmt.Errorf("failed to list schedulable bills: %w", err)
	}
	defer rows.Close()

	return r.collect(rows)
}

func (r *BillRepository) collect(rows *sql.Rows) ([]*models.Bill, error) {
	var bills []*models.Bill
	for rows.Next() {
		bill, err := r.scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bill: %w", err)
		}
		bills = append(bills, bill)
	}
	return bills, rows.Err()
}
