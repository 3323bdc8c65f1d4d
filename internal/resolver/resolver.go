// Package resolver selects the approval workflow applicable to a bill.
// Resolution is a pure function over the bill, its vendor and the set of
// configured workflows, with no I/O, so the tie-break rule is testable in
// isolation.
package resolver

import (
	"github.com/paylane/billflow/internal/models"
)

// OutcomeKind classifies the resolution result
type OutcomeKind int

const (
	// OutcomeAutoPay means the bill skips human approval entirely
	OutcomeAutoPay OutcomeKind = iota

	// OutcomeRequiresWorkflow means the bill must pass the selected workflow
	OutcomeRequiresWorkflow

	// OutcomeNoMatch means approval is required but no workflow applies;
	// the bill is parked and must be surfaced to an operator
	OutcomeNoMatch
)

// String returns a readable name for the outcome kind
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAutoPay:
		return "AUTO_PAY"
	case OutcomeRequiresWorkflow:
		return "REQUIRES_WORKFLOW"
	case OutcomeNoMatch:
		return "NO_MATCHING_WORKFLOW"
	default:
		return "UNKNOWN"
	}
}

// Outcome is the resolver's decision for one bill
type Outcome struct {
	Kind     OutcomeKind
	Workflow *models.ApprovalWorkflow
}

// Resolve picks the workflow applicable to the bill, or decides the bill
// is auto-payable.
//
// Auto-pay wins first: a vendor with autoPay enabled and a bill below the
// vendor's own approval threshold needs no human decision. Otherwise the
// active workflows covering the vendor's category compete, and the one
// with the largest amountThreshold still <= bill.amount wins, so the
// strictest qualifying policy beats generic low-value ones. If nothing
// qualifies, the vendor's approvalRequired flag decides between parking
// the bill and treating it as auto-payable.
func Resolve(bill *models.Bill, vendor *models.Vendor, workflows []*models.ApprovalWorkflow) Outcome {
	if vendor.AutoPay && bill.Amount.LessThan(vendor.ApprovalThreshold) {
		return Outcome{Kind: OutcomeAutoPay}
	}

	var best *models.ApprovalWorkflow
	for _, w := range workflows {
		if !w.Active {
			continue
		}
		if !w.AppliesToCategory(vendor.Category) {
			continue
		}
		if w.AmountThreshold.GreaterThan(bill.Amount) {
			continue
		}
		if best == nil || w.AmountThreshold.GreaterThan(best.AmountThreshold) {
			best = w
		}
	}

	if best != nil {
		return Outcome{Kind: OutcomeRequiresWorkflow, Workflow: best}
	}

	if vendor.ApprovalRequired {
		return Outcome{Kind: OutcomeNoMatch}
	}

	return Outcome{Kind: OutcomeAutoPay}
}
