package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WorkflowStep is one ordered step of an approval workflow policy.
// A step is satisfied only when every listed approver has approved.
type WorkflowStep struct {
	Approvers []string `json:"approvers"`
}

// ApprovalWorkflow is a named, reusable approval policy. Bills whose
// amount reaches AmountThreshold and whose vendor category matches
// (empty VendorCategories means "applies to all") are routed through
// the ordered Steps.
type ApprovalWorkflow struct {
	ID               int64
	OrgID            string
	Name             string
	AmountThreshold  decimal.Decimal
	VendorCategories []string
	Steps            []WorkflowStep
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AppliesToCategory returns true if the workflow covers the vendor category
func (w *ApprovalWorkflow) AppliesToCategory(category string) bool {
	if len(w.VendorCategories) == 0 {
		return true
	}
	for _, c := range w.VendorCategories {
		if c == category {
			return true
		}
	}
	return false
}
