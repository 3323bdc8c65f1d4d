package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/paylane/billflow/internal/models"
)

// AuditRepository handles the append-only bill history log
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Append records one immutable audit entry
func (r *AuditRepository) Append(ctx context.Context, entry *models.AuditEntry) error {
	query := `
		INSERT INTO audit_entries (bill_id, actor, action, from_status, to_status, detail)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		entry.BillID,
		entry.Actor,
		entry.Action,
		entry.FromStatus,
		entry.ToStatus,
		entry.Detail,
	)
	if err != nil {
		r.logger.Error("Failed to append audit entry", zap.Int64("bill_id", entry.BillID), zap.Error(err))
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	entry.ID = id
	return nil
}

// ListByBill retrieves a bill's audit history in insertion order
func (r *AuditRepository) ListByBill(ctx context.Context, billID int64) ([]*models.AuditEntry, error) {
	query := `
		SELECT id, bill_id, actor, action, from_status, to_status, detail, created_at
		FROM audit_entries
		WHERE bill_id = ?
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, billID)
	if err != nil {
		r.logger.Error("Failed to list audit entries", zap.Int64("bill_id", billID), zap.Error(err))
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.BillID, &e.Actor, &e.Action, &e.FromStatus, &e.ToStatus, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}
