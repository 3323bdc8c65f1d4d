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

// DocumentRepository handles scanned document database operations
type DocumentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *sql.DB, logger *zap.Logger) *DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new document record
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	extracted, err := json.Marshal(doc.ExtractedData)
	if err != nil {
		return fmt.Errorf("failed to marshal extracted data: %w", err)
	}

	query := `
		INSERT INTO documents (org_id, file_name, extracted_data, confidence, processed)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		doc.OrgID,
		doc.FileName,
		string(extracted),
		doc.Confidence,
		doc.Processed,
	)
	if err != nil {
		r.logger.Error("Failed to create document", zap.Error(err))
		return fmt.Errorf("failed to create document: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	doc.ID = id
	return nil
}

// GetByID retrieves a document by its ID
func (r *DocumentRepository) GetByID(ctx context.Context, id int64) (*models.Document, error) {
	query := `
		SELECT id, org_id, file_name, extracted_data, confidence, processed, created_at
		FROM documents WHERE id = ?
	`

	var doc models.Document
	var extracted string

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&doc.ID,
		&doc.OrgID,
		&doc.FileName,
		&extracted,
		&doc.Confidence,
		&doc.Processed,
		&doc.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get document", zap.Int64("document_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	if err := json.Unmarshal([]byte(extracted), &doc.ExtractedData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal extracted data: %w", err)
	}

	return &doc, nil
}

// MarkProcessed flags a document as consumed; documents are read-only
// afterwards
func (r *DocumentRepository) MarkProcessed(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `UPDATE documents SET processed = 1 WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to mark document processed", zap.Int64("document_id", id), zap.Error(err))
		return fmt.Errorf("failed to mark document processed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return port.ErrNotFound
	}

	return nil
}
