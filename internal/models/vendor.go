package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Vendor represents an organization-scoped payee with payment preferences
type Vendor struct {
	ID                int64
	OrgID             string
	Name              string
	Email             string
	Category          string
	PaymentTermsDays  int
	AutoPay           bool
	ApprovalRequired  bool
	ApprovalThreshold decimal.Decimal
	PaymentMethods    []string
	Status            VendorStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsActive returns true if the vendor may receive new payments
func (v *Vendor) IsActive() bool {
	return v.Status == VendorStatusActive
}

// Validate checks vendor invariants
func (v *Vendor) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("vendor name is required")
	}
	if v.ApprovalThreshold.IsNegative() {
		return fmt.Errorf("approval threshold must not be negative: %s", v.ApprovalThreshold)
	}
	if v.PaymentTermsDays < 0 {
		return fmt.Errorf("payment terms must not be negative: %d", v.PaymentTermsDays)
	}
	return nil
}
