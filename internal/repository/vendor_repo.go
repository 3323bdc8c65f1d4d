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

// VendorRepository handles vendor database operations
type VendorRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewVendorRepository creates a new vendor repository
func NewVendorRepository(db *sql.DB, logger *zap.Logger) *VendorRepository {
	return &VendorRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new vendor record
func (r *VendorRepository) Create(ctx context.Context, vendor *models.Vendor) error {
	methods, err := json.Marshal(vendor.PaymentMethods)
	if err != nil {
		return fmt.Errorf("failed to marshal payment methods: %w", err)
	}

	query := `
		INSERT INTO vendors (
			org_id, name, email, category, payment_terms_days, auto_pay,
			approval_required, approval_threshold, payment_methods, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		vendor.OrgID,
		vendor.Name,
		vendor.Email,
		vendor.Category,
		vendor.PaymentTermsDays,
		vendor.AutoPay,
		vendor.ApprovalRequired,
		vendor.ApprovalThreshold,
		string(methods),
		vendor.Status,
	)
	if err != nil {
		r.logger.Error("Failed to create vendor", zap.Error(err))
		return fmt.Errorf("failed to create vendor: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	vendor.ID = id
	return nil
}

const vendorColumns = `
	id, org_id, name, email, category, payment_terms_days, auto_pay,
	approval_required, approval_threshold, payment_methods, status,
	created_at, updated_at
`

func (r *VendorRepository) scanVendor(row interface {
	Scan(dest ...interface{}) error
}) (*models.Vendor, error) {
	var vendor models.Vendor
	var methods string

	err := row.Scan(
		&vendor.ID,
		&vendor.OrgID,
		&vendor.Name,
		&vendor.Email,
		&vendor.Category,
		&vendor.PaymentTermsDays,
		&vendor.AutoPay,
		&vendor.ApprovalRequired,
		&vendor.ApprovalThreshold,
		&methods,
		&vendor.Status,
		&vendor.CreatedAt,
		&vendor.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(methods), &vendor.PaymentMethods); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment methods: %w", err)
	}

	return &vendor, nil
}

// GetByID retrieves a vendor by its ID
func (r *VendorRepository) GetByID(ctx context.Context, id int64) (*models.Vendor, error) {
	query := `SELECT ` + vendorColumns + ` FROM vendors WHERE id = ?`

	vendor, err := r.scanVendor(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get vendor", zap.Int64("vendor_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get vendor: %w", err)
	}

	return vendor, nil
}

// GetByName retrieves a vendor by name within an organization,
// case-insensitively
func (r *VendorRepository) GetByName(ctx context.Context, orgID, name string) (*models.Vendor, error) {
	query := `SELECT ` + vendorColumns + ` FROM vendors WHERE org_id = ? AND name = ? COLLATE NOCASE`

	vendor, err := r.scanVendor(r.db.QueryRowContext(ctx, query, orgID, name))
	if err == sql.ErrNoRows {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get vendor by name", zap.String("name", name), zap.Error(err))
		return nil, fmt.Errorf("failed to get vendor by name: %w", err)
	}

	return vendor, nil
}

// List retrieves all vendors for an organization
func (r *VendorRepository) List(ctx context.Context, orgID string) ([]*models.Vendor, error) {
	query := `SELECT ` + vendorColumns + ` FROM vendors WHERE org_id = ? ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		r.logger.Error("Failed to list vendors", zap.Error(err))
		return nil, fmt.Errorf("failed to list vendors: %w", err)
	}
	defer rows.Close()

	var vendors []*models.Vendor
	for rows.Next() {
		vendor, err := r.scanVendor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vendor: %w", err)
		}
		vendors = append(vendors, vendor)
	}

	return vendors, rows.Err()
}
