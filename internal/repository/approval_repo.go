package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/paylane/billflow/internal/models"
	"github.com/paylane/billflow/internal/port"
)

// ApprovalRepository handles BillApproval database operations. The step
// log is append-only; advancement is guarded by the approval's version.
type ApprovalRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewApprovalRepository creates a new approval repository
func NewApprovalRepository(db *sql.DB, logger *zap.Logger) *ApprovalRepository {
	return &ApprovalRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new BillApproval instance at step 0
func (r *ApprovalRepository) Create(ctx context.Context, approval *models.BillApproval) error {
	if approval.Status == "" {
		approval.Status = models.ApprovalStatusPending
	}
	if approval.Version == 0 {
		approval.Version = 1
	}

	query := `
		INSERT INTO bill_approvals (bill_id, workflow_id, current_step, status, version)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		approval.BillID,
		approval.WorkflowID,
		approval.CurrentStep,
		approval.Status,
		approval.Version,
	)
	if err != nil {
		r.logger.Error("Failed to create bill approval", zap.Error(err))
		return fmt.Errorf("failed to create bill approval: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	approval.ID = id
	return nil
}

// GetByID retrieves an approval with its full step log
func (r *ApprovalRepository) GetByID(ctx context.Context, id int64) (*models.BillApproval, error) {
	query := `
		SELECT id, bill_id, workflow_id, current_step, status, version, created_at, updated_at
		FROM bill_approvals WHERE id = ?
	`

	approval, err := r.scanApproval(ctx, r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return approval, nil
}

// GetOpenByBillID retrieves the bill's pending approval instance, if any.
// Rejected instances from earlier submissions are never returned here.
func (r *ApprovalRepository) GetOpenByBillID(ctx context.Context, billID int64) (*models.BillApproval, error) {
	query := `
		SELECT id, bill_id, workflow_id, current_step, status, version, created_at, updated_at
		FROM bill_approvals
		WHERE bill_id = ? AND status = ?
		ORDER BY id DESC LIMIT 1
	`

	approval, err := r.scanApproval(ctx, r.db.QueryRowContext(ctx, query, billID, models.ApprovalStatusPending))
	if err != nil {
		return nil, err
	}
	return approval, nil
}

func (r *ApprovalRepository) scanApproval(ctx context.Context, row *sql.Row) (*models.BillApproval, error) {
	var approval models.BillApproval

	err := row.Scan(
		&approval.ID,
		&approval.BillID,
		&approval.WorkflowID,
		&approval.CurrentStep,
		&approval.Status,
		&approval.Version,
		&approval.CreatedAt,
		&approval.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get bill approval", zap.Error(err))
		return nil, fmt.Errorf("failed to get bill approval: %w", err)
	}

	steps, err := r.loadSteps(ctx, approval.ID)
	if err != nil {
		return nil, err
	}
	approval.Steps = steps

	return &approval, nil
}

func (r *ApprovalRepository) loadSteps(ctx context.Context, approvalID int64) ([]models.ApprovalStepRecord, error) {
	query := `
		SELECT id, approval_id, step_index, approver_id, decision, comment, decided_at
		FROM approval_steps
		WHERE approval_id = ?
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, approvalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load approval steps: %w", err)
	}
	defer rows.Close()

	var steps []models.ApprovalStepRecord
	for rows.Next() {
		var s models.ApprovalStepRecord
		if err := rows.Scan(&s.ID, &s.ApprovalID, &s.StepIndex, &s.ApproverID, &s.Decision, &s.Comment, &s.DecidedAt); err != nil {
			return nil, fmt.Errorf("failed to scan approval step: %w", err)
		}
		steps = append(steps, s)
	}

	return steps, rows.Err()
}

// RecordDecision atomically appends a decision record and applies the new
// current step and status. The UPDATE is a compare-and-swap on the version
// the caller read; losing the race rolls the append back and returns
// port.ErrVersionConflict so two concurrent approvals on the same step
// cannot double-advance.
func (r *ApprovalRepository) RecordDecision(ctx context.Context, approval *models.BillApproval, record *models.ApprovalStepRecord, newStep int, newStatus models.ApprovalStatus) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE bill_approvals
		SET current_step = ?, status = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ? AND current_step = ?
	`, newStep, newStatus, approval.ID, approval.Version, approval.CurrentStep)
	if err != nil {
		r.logger.Error("Failed to advance bill approval", zap.Int64("approval_id", approval.ID), zap.Error(err))
		return fmt.Errorf("failed to advance bill approval: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return port.ErrVersionConflict
	}

	insert, err := tx.ExecContext(ctx, `
		INSERT INTO approval_steps (approval_id, step_index, approver_id, decision, comment, decided_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, approval.ID, record.StepIndex, record.ApproverID, record.Decision, record.Comment, record.DecidedAt)
	if err != nil {
		r.logger.Error("Failed to append approval step", zap.Int64("approval_id", approval.ID), zap.Error(err))
		return fmt.Errorf("failed to append approval step: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit decision: %w", err)
	}

	stepID, _ := insert.LastInsertId()
	record.ID = stepID
	record.ApprovalID = approval.ID

	approval.Version++
	approval.CurrentStep = newStep
	approval.Status = newStatus
	approval.Steps = append(approval.Steps, *record)

	return nil
}
