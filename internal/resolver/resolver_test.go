package resolver

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/paylane/billflow/internal/models"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func workflow(id int64, threshold string, categories []string, active bool) *models.ApprovalWorkflow {
	return &models.ApprovalWorkflow{
		ID:               id,
		Name:             "wf",
		AmountThreshold:  d(threshold),
		VendorCategories: categories,
		Steps:            []models.WorkflowStep{{Approvers: []string{"alice"}}},
		Active:           active,
	}
}

func TestResolve_AutoPayBelowVendorThreshold(t *testing.T) {
	bill := &models.Bill{Amount: d("100")}
	vendor := &models.Vendor{AutoPay: true, ApprovalThreshold: d("500")}

	got := Resolve(bill, vendor, []*models.ApprovalWorkflow{workflow(1, "0", nil, true)})
	if got.Kind != OutcomeAutoPay {
		t.Errorf("Resolve() = %v, want AUTO_PAY", got.Kind)
	}
}

func TestResolve_AutoPayAtThresholdStillRouted(t *testing.T) {
	// The threshold comparison is strict: an amount equal to the
	// vendor's threshold is not auto-payable.
	bill := &models.Bill{Amount: d("500")}
	vendor := &models.Vendor{AutoPay: true, ApprovalThreshold: d("500")}

	got := Resolve(bill, vendor, []*models.ApprovalWorkflow{workflow(1, "0", nil, true)})
	if got.Kind != OutcomeRequiresWorkflow {
		t.Errorf("Resolve() = %v, want REQUIRES_WORKFLOW", got.Kind)
	}
}

func TestResolve_LargestQualifyingThresholdWins(t *testing.T) {
	bill := &models.Bill{Amount: d("4000")}
	vendor := &models.Vendor{Category: "utilities"}

	workflows := []*models.ApprovalWorkflow{
		workflow(1, "0", nil, true),
		workflow(2, "1000", nil, true),
		workflow(3, "5000", nil, true),
	}

	got := Resolve(bill, vendor, workflows)
	if got.Kind != OutcomeRequiresWorkflow {
		t.Fatalf("Resolve() = %v, want REQUIRES_WORKFLOW", got.Kind)
	}
	if got.Workflow.ID != 2 {
		t.Errorf("Resolve() picked workflow %d, want 2 (largest threshold <= amount)", got.Workflow.ID)
	}
}

func TestResolve_CategoryFilter(t *testing.T) {
	bill := &models.Bill{Amount: d("4000")}
	vendor := &models.Vendor{Category: "utilities"}

	workflows := []*models.ApprovalWorkflow{
		workflow(1, "2000", []string{"travel"}, true),
		workflow(2, "1000", []string{"utilities"}, true),
	}

	got := Resolve(bill, vendor, workflows)
	if got.Kind != OutcomeRequiresWorkflow {
		t.Fatalf("Resolve() = %v, want REQUIRES_WORKFLOW", got.Kind)
	}
	if got.Workflow.ID != 2 {
		t.Errorf("Resolve() picked workflow %d, want 2 (category match)", got.Workflow.ID)
	}
}

func TestResolve_InactiveWorkflowIgnored(t *testing.T) {
	bill := &models.Bill{Amount: d("4000")}
	vendor := &models.Vendor{ApprovalRequired: true}

	got := Resolve(bill, vendor, []*models.ApprovalWorkflow{workflow(1, "1000", nil, false)})
	if got.Kind != OutcomeNoMatch {
		t.Errorf("Resolve() = %v, want NO_MATCHING_WORKFLOW", got.Kind)
	}
}

func TestResolve_NoMatchApprovalNotRequired(t *testing.T) {
	// Nothing qualifies and the vendor does not insist on approval, so
	// the bill is treated as auto-payable.
	bill := &models.Bill{Amount: d("50")}
	vendor := &models.Vendor{ApprovalRequired: false}

	got := Resolve(bill, vendor, []*models.ApprovalWorkflow{workflow(1, "1000", nil, true)})
	if got.Kind != OutcomeAutoPay {
		t.Errorf("Resolve() = %v, want AUTO_PAY", got.Kind)
	}
}

func TestResolve_EmptyCategoriesAppliesToAll(t *testing.T) {
	bill := &models.Bill{Amount: d("4000")}
	vendor := &models.Vendor{Category: "anything"}

	got := Resolve(bill, vendor, []*models.ApprovalWorkflow{workflow(1, "1000", nil, true)})
	if got.Kind != OutcomeRequiresWorkflow {
		t.Errorf("Resolve() = %v, want REQUIRES_WORKFLOW", got.Kind)
	}
}
