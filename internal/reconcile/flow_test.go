package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/paylane/billflow/internal/approval"
	"github.com/paylane/billflow/internal/models"
	"github.com/paylane/billflow/internal/processor"
	"github.com/paylane/billflow/internal/scheduler"
	"github.com/paylane/billflow/internal/storetest"
)

// TestBillLifecycle drives one bill through the whole pipeline: manual
// approval, scheduling, processor submission, asynchronous completion.
func TestBillLifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	payments := storetest.NewPayments()
	vendors := storetest.NewVendors()
	bills := storetest.NewBills(payments)
	workflows := storetest.NewWorkflows()
	approvals := storetest.NewApprovals()
	audit := storetest.NewAudits()
	sandbox := processor.NewSandbox()

	engine := approval.NewEngine(bills, vendors, workflows, approvals, payments, audit, zap.NewNop())
	sched := scheduler.NewScheduler(bills, vendors, payments, audit, zap.NewNop())
	worker := scheduler.NewScanWorker(
		sched, bills, vendors, payments, audit, sandbox,
		time.Second, scheduler.DefaultRetryConfig(), zap.NewNop(),
	)
	listener := NewListener(bills, payments, audit, zap.NewNop())
	poller := NewPollWorker(listener, sandbox, time.Second, zap.NewNop())

	vendor := &models.Vendor{
		OrgID:             "org-1",
		Name:              "Acme Power",
		Category:          "utilities",
		PaymentTermsDays:  3,
		PaymentMethods:    []string{"ACH"},
		AutoPay:           true,
		ApprovalThreshold: decimal.RequireFromString("1500"),
		Status:            models.VendorStatusActive,
	}
	require.NoError(t, vendors.Create(ctx, vendor))

	require.NoError(t, workflows.Create(ctx, &models.ApprovalWorkflow{
		OrgID:           "org-1",
		Name:            "standard",
		AmountThreshold: decimal.RequireFromString("1000"),
		Steps:           []models.WorkflowStep{{Approvers: []string{"alice"}}},
		Active:          true,
	}))

	// 2000 is above the vendor's auto-pay threshold, so a human decides.
	bill := &models.Bill{
		OrgID:    "org-1",
		VendorID: vendor.ID,
		Amount:   decimal.RequireFromString("2000"),
		Currency: "USD",
		DueDate:  now.AddDate(0, 0, 2),
		Status:   models.BillStatusDraft,
	}
	require.NoError(t, bills.Create(ctx, bill))

	submitted, err := engine.SubmitBill(ctx, bill.ID)
	require.NoError(t, err)
	require.Equal(t, models.BillStatusPendingApproval, submitted.Status)

	approved, err := engine.RecordDecision(ctx, bill.ID, "alice", models.DecisionApprove, "ok")
	require.NoError(t, err)
	require.Equal(t, models.BillStatusApproved, approved.Status)

	// One scan pass schedules and submits the payment.
	worker.RunOnce(ctx)

	attempts, err := payments.ListForBill(ctx, bill.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	require.Equal(t, models.PaymentStatusProcessing, attempts[0].Status)
	require.NotEmpty(t, attempts[0].ProcessorReference)

	scheduled, err := bills.GetByID(ctx, bill.ID)
	require.NoError(t, err)
	require.Equal(t, models.BillStatusScheduled, scheduled.Status)

	// The processor completes asynchronously; the poller picks it up.
	sandbox.QueueOutcome(processor.Outcome{
		ProcessorReference: attempts[0].ProcessorReference,
		Status:             processor.OutcomeCompleted,
	})
	poller.RunOnce(ctx)

	paid, err := bills.GetByID(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BillStatusPaid, paid.Status)
	assert.NotNil(t, paid.PaidDate)

	attempts, err = payments.ListForBill(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, attempts[0].Status)

	entries, err := audit.ListByBill(ctx, bill.ID)
	require.NoError(t, err)
	var actions []string
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{"submit", "approve", "schedule", "payment_completed"}, actions)
}

// TestBillLifecycle_FailedPaymentRetries verifies that a failed outcome
// reopens the bill and the next scan pass creates a fresh attempt.
func TestBillLifecycle_FailedPaymentRetries(t *testing.T) {
	ctx := context.Background()

	payments := storetest.NewPayments()
	vendors := storetest.NewVendors()
	bills := storetest.NewBills(payments)
	workflows := storetest.NewWorkflows()
	approvals := storetest.NewApprovals()
	audit := storetest.NewAudits()
	sandbox := processor.NewSandbox()

	engine := approval.NewEngine(bills, vendors, workflows, approvals, payments, audit, zap.NewNop())
	sched := scheduler.NewScheduler(bills, vendors, payments, audit, zap.NewNop())
	worker := scheduler.NewScanWorker(
		sched, bills, vendors, payments, audit, sandbox,
		time.Second, scheduler.DefaultRetryConfig(), zap.NewNop(),
	)
	listener := NewListener(bills, payments, audit, zap.NewNop())

	vendor := &models.Vendor{
		OrgID:             "org-1",
		Name:              "Acme Power",
		AutoPay:           true,
		ApprovalThreshold: decimal.RequireFromString("5000"),
		PaymentTermsDays:  1,
		PaymentMethods:    []string{"ACH"},
		Status:            models.VendorStatusActive,
	}
	require.NoError(t, vendors.Create(ctx, vendor))

	bill := &models.Bill{
		OrgID:    "org-1",
		VendorID: vendor.ID,
		Amount:   decimal.RequireFromString("300"),
		Currency: "USD",
		DueDate:  time.Now().AddDate(0, 0, 1),
		Status:   models.BillStatusDraft,
	}
	require.NoError(t, bills.Create(ctx, bill))

	_, err := engine.SubmitBill(ctx, bill.ID)
	require.NoError(t, err)

	worker.RunOnce(ctx)

	attempts, err := payments.ListForBill(ctx, bill.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)

	require.NoError(t, listener.Apply(ctx, processor.Outcome{
		ProcessorReference: attempts[0].ProcessorReference,
		Status:             processor.OutcomeFailed,
		Reason:             "account closed",
	}))

	// The next pass opens attempt 2 against the reopened bill.
	worker.RunOnce(ctx)

	attempts, err = payments.ListForBill(ctx, bill.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, models.PaymentStatusFailed, attempts[0].Status)
	assert.Equal(t, models.PaymentStatusProcessing, attempts[1].Status)
	assert.Equal(t, 2, attempts[1].Attempt)
	assert.NotEqual(t, attempts[0].IdempotencyKey, attempts[1].IdempotencyKey)
}
