package approval

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/paylane/billflow/internal/models"
	"github.com/paylane/billflow/internal/storetest"
)

type fixture struct {
	engine    *Engine
	vendors   *storetest.Vendors
	bills     *storetest.Bills
	workflows *storetest.Workflows
	approvals *storetest.Approvals
	payments  *storetest.Payments
	audit     *storetest.Audits
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	payments := storetest.NewPayments()
	f := &fixture{
		vendors:   storetest.NewVendors(),
		bills:     storetest.NewBills(payments),
		workflows: storetest.NewWorkflows(),
		approvals: storetest.NewApprovals(),
		payments:  payments,
		audit:     storetest.NewAudits(),
	}
	f.engine = NewEngine(f.bills, f.vendors, f.workflows, f.approvals, f.payments, f.audit, zap.NewNop())
	return f
}

func (f *fixture) vendor(t *testing.T, mutate func(*models.Vendor)) *models.Vendor {
	t.Helper()
	v := &models.Vendor{
		OrgID:            "org-1",
		Name:             "Acme Power",
		Category:         "utilities",
		PaymentTermsDays: 3,
		Status:           models.VendorStatusActive,
	}
	if mutate != nil {
		mutate(v)
	}
	require.NoError(t, f.vendors.Create(context.Background(), v))
	return v
}

func (f *fixture) bill(t *testing.T, vendorID int64, amount string) *models.Bill {
	t.Helper()
	b := &models.Bill{
		OrgID:    "org-1",
		VendorID: vendorID,
		Amount:   decimal.RequireFromString(amount),
		Currency: "USD",
		DueDate:  time.Now().AddDate(0, 0, 14),
		Status:   models.BillStatusDraft,
	}
	require.NoError(t, f.bills.Create(context.Background(), b))
	return b
}

func (f *fixture) singleStepWorkflow(t *testing.T, threshold string, approvers ...string) *models.ApprovalWorkflow {
	t.Helper()
	w := &models.ApprovalWorkflow{
		OrgID:           "org-1",
		Name:            "standard",
		AmountThreshold: decimal.RequireFromString(threshold),
		Steps:           []models.WorkflowStep{{Approvers: approvers}},
		Active:          true,
	}
	require.NoError(t, f.workflows.Create(context.Background(), w))
	return w
}

func TestSubmitBill_AutoPay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vendor := f.vendor(t, func(v *models.Vendor) {
		v.AutoPay = true
		v.ApprovalThreshold = decimal.RequireFromString("1000")
	})
	bill := f.bill(t, vendor.ID, "250")

	got, err := f.engine.SubmitBill(ctx, bill.ID)
	require.NoError(t, err)

	assert.Equal(t, models.BillStatusApproved, got.Status)
	require.NotNil(t, got.ApprovedAmount)
	assert.True(t, got.ApprovedAmount.Equal(decimal.RequireFromString("250")))

	// No approval instance is created for auto-pay; the audit trail
	// records the implicit system approval instead.
	_, err = f.approvals.GetOpenByBillID(ctx, bill.ID)
	assert.Error(t, err)

	entries, err := f.audit.ListByBill(ctx, bill.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.SystemActor, entries[0].Actor)
	assert.Equal(t, "auto_approve", entries[0].Action)
}

func TestSubmitBill_RoutesThroughWorkflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vendor := f.vendor(t, nil)
	f.singleStepWorkflow(t, "1000", "alice")
	bill := f.bill(t, vendor.ID, "2000")

	got, err := f.engine.SubmitBill(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BillStatusPendingApproval, got.Status)

	instance, err := f.approvals.GetOpenByBillID(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, instance.CurrentStep)
	assert.Equal(t, models.ApprovalStatusPending, instance.Status)
}

func TestSubmitBill_NoMatchingWorkflowParks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vendor := f.vendor(t, func(v *models.Vendor) {
		v.ApprovalRequired = true
	})
	bill := f.bill(t, vendor.ID, "2000")

	got, err := f.engine.SubmitBill(ctx, bill.ID)
	require.ErrorIs(t, err, ErrNoMatchingWorkflow)
	require.NotNil(t, got)
	assert.Equal(t, models.BillStatusPendingApproval, got.Status)
}

func TestSubmitBill_NeedsReviewBlocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vendor := f.vendor(t, nil)
	bill := f.bill(t, vendor.ID, "2000")
	bill.NeedsReview = true
	require.NoError(t, f.bills.Update(ctx, bill))

	_, err := f.engine.SubmitBill(ctx, bill.ID)
	assert.ErrorIs(t, err, ErrNeedsReview)
}

func TestSubmitBill_NonDraftRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vendor := f.vendor(t, nil)
	f.singleStepWorkflow(t, "0", "alice")
	bill := f.bill(t, vendor.ID, "2000")

	_, err := f.engine.SubmitBill(ctx, bill.ID)
	require.NoError(t, err)

	_, err = f.engine.SubmitBill(ctx, bill.ID)
	assert.Error(t, err)
}

func TestRecordDecision_SingleApproverApproves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vendor := f.vendor(t, nil)
	f.singleStepWorkflow(t, "1000", "alice")
	bill := f.bill(t, vendor.ID, "2000")

	_, err := f.engine.SubmitBill(ctx, bill.ID)
	require.NoError(t, err)

	got, err := f.engine.RecordDecision(ctx, bill.ID, "alice", models.DecisionApprove, "ok")
	require.NoError(t, err)

	assert.Equal(t, models.BillStatusApproved, got.Status)
	require.NotNil(t, got.ApprovedAmount)
	assert.True(t, got.ApprovedAmount.Equal(decimal.RequireFromString("2000")))
}

func TestRecordDecision_AllApproversOfStepRequired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vendor := f.vendor(t, nil)
	f.singleStepWorkflow(t, "1000", "alice", "bob")
	bill := f.bill(t, vendor.ID, "2000")

	_, err := f.engine.SubmitBill(ctx, bill.ID)
	require.NoError(t, err)

	got, err := f.engine.RecordDecision(ctx, bill.ID, "alice", models.DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, models.BillStatusPendingApproval, got.Status, "step not satisfied with one of two approvals")

	got, err = f.engine.RecordDecision(ctx, bill.ID, "bob", models.DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, models.BillStatusApproved, got.Status)
}

func TestRecordDecision_MultiStepAdvances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vendor := f.vendor(t, nil)
	w := &models.ApprovalWorkflow{
		OrgID:           "org-1",
		Name:            "two-step",
		AmountThreshold: decimal.RequireFromString("1000"),
		Steps: []models.WorkflowStep{
			{Approvers: []string{"alice"}},
			{Approvers: []string{"carol"}},
		},
		Active: true,
	}
	require.NoError(t, f.workflows.Create(ctx, w))
	bill := f.bill(t, vendor.ID, "2000")

	_, err := f.engine.SubmitBill(ctx, bill.ID)
	require.NoError(t, err)

	got, err := f.engine.RecordDecision(ctx, bill.ID, "alice", models.DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, models.BillStatusPendingApproval, got.Status)

	instance, err := f.approvals.GetOpenByBillID(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, instance.CurrentStep)

	// Step 0's approver has no say at step 1.
	_, err = f.engine.RecordDecision(ctx, bill.ID, "alice", models.DecisionApprove, "")
	assert.ErrorIs(t, err, ErrApproverNotAssigned)

	got, err = f.engine.RecordDecision(ctx, bill.ID, "carol", models.DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, models.BillStatusApproved, got.Status)
}

func TestRecordDecision_RejectShortCircuits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vendor := f.vendor(t, nil)
	f.singleStepWorkflow(t, "1000", "alice", "bob")
	bill := f.bill(t, vendor.ID, "2000")

	_, err := f.engine.SubmitBill(ctx, bill.ID)
	require.NoError(t, err)

	got, err := f.engine.RecordDecision(ctx, bill.ID, "alice", models.DecisionReject, "over budget")
	require.NoError(t, err)
	assert.Equal(t, models.BillStatusRejected, got.Status)

	// The approval is terminal; the remaining approver is too late.
	_, err = f.engine.RecordDecision(ctx, bill.ID, "bob", models.DecisionApprove, "")
	assert.ErrorIs(t, err, ErrStaleApprovalState)
}

func TestRecordDecision_DuplicateFromSameApprover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vendor := f.vendor(t, nil)
	f.singleStepWorkflow(t, "1000", "alice", "bob")
	bill := f.bill(t, vendor.ID, "2000")

	_, err := f.engine.SubmitBill(ctx, bill.ID)
	require.NoError(t, err)

	_, err = f.engine.RecordDecision(ctx, bill.ID, "alice", models.DecisionApprove, "")
	require.NoError(t, err)

	_, err = f.engine.RecordDecision(ctx, bill.ID, "alice", models.DecisionApprove, "")
	assert.ErrorIs(t, err, ErrDuplicateDecision)
}

func TestRecordDecision_UnassignedApprover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vendor := f.vendor(t, nil)
	f.singleStepWorkflow(t, "1000", "alice")
	bill := f.bill(t, vendor.ID, "2000")

	_, err := f.engine.SubmitBill(ctx, bill.ID)
	require.NoError(t, err)

	_, err = f.engine.RecordDecision(ctx, bill.ID, "mallory", models.DecisionApprove, "")
	assert.ErrorIs(t, err, ErrApproverNotAssigned)
}

func TestCancelBill_RefusedWhileProcessing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vendor := f.vendor(t, nil)
	f.singleStepWorkflow(t, "0", "alice")
	bill := f.bill(t, vendor.ID, "2000")

	_, err := f.engine.SubmitBill(ctx, bill.ID)
	require.NoError(t, err)
	_, err = f.engine.RecordDecision(ctx, bill.ID, "alice", models.DecisionApprove, "")
	require.NoError(t, err)

	require.NoError(t, f.payments.Create(ctx, &models.Payment{
		BillID: bill.ID,
		OrgID:  "org-1",
		Amount: bill.Amount,
		Status: models.PaymentStatusProcessing,
	}))

	_, err = f.engine.CancelBill(ctx, bill.ID, "alice")
	assert.ErrorIs(t, err, ErrPaymentInFlight)
}

func TestCancelBill_FromScheduledTerminatesPendingAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vendor := f.vendor(t, nil)
	bill := f.bill(t, vendor.ID, "2000")
	bill.Status = models.BillStatusScheduled
	require.NoError(t, f.bills.Update(ctx, bill))

	payment := &models.Payment{
		BillID:         bill.ID,
		OrgID:          "org-1",
		Amount:         bill.Amount,
		Currency:       "USD",
		IdempotencyKey: "key-1",
		Status:         models.PaymentStatusPending,
		ScheduledDate:  time.Now().AddDate(0, 0, 7),
	}
	require.NoError(t, f.payments.Create(ctx, payment))

	got, err := f.engine.CancelBill(ctx, bill.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.BillStatusCancelled, got.Status)

	// The never-submitted attempt is terminated so the scan worker cannot
	// pick it up afterwards.
	stored, err := f.payments.GetByID(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCancelled, stored.Status)

	open, err := f.payments.HasOpenForBill(ctx, bill.ID)
	require.NoError(t, err)
	assert.False(t, open)
}

func TestCancelBill_FromDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vendor := f.vendor(t, nil)
	bill := f.bill(t, vendor.ID, "2000")

	got, err := f.engine.CancelBill(ctx, bill.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.BillStatusCancelled, got.Status)
}

func TestResubmitBill_CreatesFreshApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vendor := f.vendor(t, nil)
	f.singleStepWorkflow(t, "1000", "alice")
	bill := f.bill(t, vendor.ID, "2000")

	_, err := f.engine.SubmitBill(ctx, bill.ID)
	require.NoError(t, err)
	_, err = f.engine.RecordDecision(ctx, bill.ID, "alice", models.DecisionReject, "no")
	require.NoError(t, err)

	got, err := f.engine.ResubmitBill(ctx, bill.ID, "dave")
	require.NoError(t, err)
	assert.Equal(t, models.BillStatusPendingApproval, got.Status)
	assert.Nil(t, got.ApprovedAmount)

	instance, err := f.approvals.GetOpenByBillID(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, instance.CurrentStep)
	assert.Empty(t, instance.Steps, "the rejected round's decisions stay on the old instance")
}

func TestResubmitBill_OnlyFromRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vendor := f.vendor(t, nil)
	bill := f.bill(t, vendor.ID, "2000")

	_, err := f.engine.ResubmitBill(ctx, bill.ID, "dave")
	assert.ErrorIs(t, err, ErrNotRejected)
}

func TestReviewBill_ClearsFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vendor := f.vendor(t, nil)
	f.singleStepWorkflow(t, "0", "alice")
	bill := f.bill(t, vendor.ID, "2000")
	bill.NeedsReview = true
	require.NoError(t, f.bills.Update(ctx, bill))

	got, err := f.engine.ReviewBill(ctx, bill.ID, "dave")
	require.NoError(t, err)
	assert.False(t, got.NeedsReview)

	// Submission is now allowed.
	_, err = f.engine.SubmitBill(ctx, bill.ID)
	assert.NoError(t, err)
}
