package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/paylane/billflow/internal/models"
	"github.com/paylane/billflow/internal/port"
)

// WorkflowRepository handles approval workflow policy database operations
type WorkflowRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *sql.DB, logger *zap.Logger) *WorkflowRepository {
	return &WorkflowRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new approval workflow policy
func (r *WorkflowRepository) Create(ctx context.Context, workflow *models.ApprovalWorkflow) error {
	categories, err := json.Marshal(workflow.VendorCategories)
	if err != nil {
		return fmt.Errorf("failed to marshal vendor categories: %w", err)
	}
	steps, err := json.Marshal(workflow.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow steps: %w", err)
	}

	query := `
		INSERT INTO approval_workflows (
			org_id, name, amount_threshold, vendor_categories, steps, active
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		workflow.OrgID,
		workflow.Name,
		workflow.AmountThreshold,
		string(categories),
		string(steps),
		workflow.Active,
	)
	if err != nil {
		r.logger.Error("Failed to create workflow", zap.Error(err))
		return fmt.Errorf("failed to create workflow: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	workflow.ID = id
	return nil
}

const workflowColumns = `
	id, org_id, name, amount_threshold, vendor_categories, steps, active,
	created_at, updated_at
`

func (r *WorkflowRepository) scanWorkflow(row interface {
	Scan(dest ...interface{}) error
}) (*models.ApprovalWorkflow, error) {
	var workflow models.ApprovalWorkflow
	var categories, steps string

	err := row.Scan(
		&workflow.ID,
		&workflow.OrgID,
		&workflow.Name,
		&workflow.AmountThreshold,
		&categories,
		&steps,
		&workflow.Active,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(categories), &workflow.VendorCategories); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vendor categories: %w", err)
	}
	if err := json.Unmarshal([]byte(steps), &workflow.Steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow steps: %w", err)
	}

	return &workflow, nil
}

// GetByID retrieves a workflow by its ID
func (r *WorkflowRepository) GetByID(ctx context.Context, id int64) (*models.ApprovalWorkflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM approval_workflows WHERE id = ?`

	workflow, err := r.scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get workflow", zap.Int64("workflow_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	return workflow, nil
}

// ListActive retrieves all active workflows for an organization
func (r *WorkflowRepository) ListActive(ctx context.Context, orgID string) ([]*models.ApprovalWorkflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM approval_workflows WHERE org_id = ? AND active = 1`

	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		r.logger.Error("Failed to list active workflows", zap.Error(err))
		return nil, fmt.Errorf("failed to list active workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*models.ApprovalWorkflow
	for rows.Next() {
		workflow, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		workflows = append(workflows, workflow)
	}

	return workflows, rows.Err()
}
