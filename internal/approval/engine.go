// Package approval owns the bill lifecycle transitions driven by
// approver decisions: submission, per-step approve/reject, cancellation
// and resubmission after rejection.
package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/paylane/billflow/internal/lifecycle"
	"github.com/paylane/billflow/internal/models"
	"github.com/paylane/billflow/internal/port"
	"github.com/paylane/billflow/internal/resolver"
)

// Engine orchestrates the approval workflow for bills
type Engine struct {
	bills     port.BillRepository
	vendors   port.VendorRepository
	workflows port.WorkflowRepository
	approvals port.ApprovalRepository
	payments  port.PaymentRepository
	audit     port.AuditRepository
	logger    *zap.Logger
	now       func() time.Time
}

// NewEngine creates a new approval engine
func NewEngine(
	bills port.BillRepository,
	vendors port.VendorRepository,
	workflows port.WorkflowRepository,
	approvals port.ApprovalRepository,
	payments port.PaymentRepository,
	audit port.AuditRepository,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		bills:     bills,
		vendors:   vendors,
		workflows: workflows,
		approvals: approvals,
		payments:  payments,
		audit:     audit,
		logger:    logger,
		now:       time.Now,
	}
}

// SubmitBill moves a draft bill into the approval flow. Auto-payable
// bills continue straight to APPROVED with a system audit entry and no
// BillApproval instance; bills matching a workflow get a fresh
// BillApproval at step 0; bills with no matching workflow stay parked in
// PENDING_APPROVAL and the caller receives ErrNoMatchingWorkflow.
func (e *Engine) SubmitBill(ctx context.Context, billID int64) (*models.Bill, error) {
	bill, err := e.bills.GetByID(ctx, billID)
	if err != nil {
		return nil, err
	}

	if bill.NeedsReview {
		return nil, ErrNeedsReview
	}

	if bill.IssueDateAfterDue() {
		e.logger.Warn("Bill issue date is after due date",
			zap.Int64("bill_id", bill.ID),
			zap.Time("issue_date", bill.IssueDate),
			zap.Time("due_date", bill.DueDate))
	}

	vendor, err := e.vendors.GetByID(ctx, bill.VendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load vendor: %w", err)
	}

	next, err := lifecycle.Transition(ctx, bill.Status, lifecycle.TriggerSubmit)
	if err != nil {
		return nil, err
	}

	workflows, err := e.workflows.ListActive(ctx, bill.OrgID)
	if err != nil {
		return nil, err
	}

	outcome := resolver.Resolve(bill, vendor, workflows)

	switch outcome.Kind {
	case resolver.OutcomeAutoPay:
		// Approval is implicit; record it as a system action, not a
		// human decision, and capture the approved amount now.
		next, err = lifecycle.Transition(ctx, next, lifecycle.TriggerAutoApprove)
		if err != nil {
			return nil, err
		}
		approved := bill.Amount.Copy()
		bill.ApprovedAmount = &approved
		if err := e.moveBill(ctx, bill, next, models.SystemActor, "auto_approve", "auto-pay vendor policy"); err != nil {
			return nil, err
		}
		return bill, nil

	case resolver.OutcomeRequiresWorkflow:
		instance := &models.BillApproval{
			BillID:     bill.ID,
			WorkflowID: outcome.Workflow.ID,
			Status:     models.ApprovalStatusPending,
		}
		if err := e.approvals.Create(ctx, instance); err != nil {
			return nil, err
		}
		if err := e.moveBill(ctx, bill, next, models.SystemActor, "submit", fmt.Sprintf("workflow %q attached", outcome.Workflow.Name)); err != nil {
			return nil, err
		}
		return bill, nil

	case resolver.OutcomeNoMatch:
		// The bill is parked pending approval with no instance; this is
		// an operator-visible stuck state, not a silent fallback.
		if err := e.moveBill(ctx, bill, next, models.SystemActor, "submit", "no matching workflow"); err != nil {
			return nil, err
		}
		e.logger.Warn("Bill parked with no matching workflow",
			zap.Int64("bill_id", bill.ID),
			zap.String("vendor_category", vendor.Category),
			zap.String("amount", bill.Amount.String()))
		return bill, ErrNoMatchingWorkflow

	default:
		return nil, fmt.Errorf("unknown resolution outcome: %v", outcome.Kind)
	}
}

// RecordDecision appends one approver decision to the bill's open
// approval instance. All required approvers of a step must approve for
// the step to advance; a single reject short-circuits the whole approval.
// Conflicting concurrent writes surface as ErrStaleApprovalState.
func (e *Engine) RecordDecision(ctx context.Context, billID int64, approverID string, decision models.Decision, comment string) (*models.Bill, error) {
	if !decision.IsValid() {
		return nil, fmt.Errorf("invalid decision: %q", decision)
	}

	bill, err := e.bills.GetByID(ctx, billID)
	if err != nil {
		return nil, err
	}
	if bill.Status != models.BillStatusPendingApproval {
		return nil, fmt.Errorf("%w: bill status is %s", ErrStaleApprovalState, bill.Status)
	}

	instance, err := e.approvals.GetOpenByBillID(ctx, billID)
	if err != nil {
		if errors.Is(err, port.ErrNotFound) {
			return nil, fmt.Errorf("%w: no open approval for bill %d", ErrStaleApprovalState, billID)
		}
		return nil, err
	}
	if instance.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: approval already %s", ErrStaleApprovalState, instance.Status)
	}

	workflow, err := e.workflows.GetByID(ctx, instance.WorkflowID)
	if err != nil {
		return nil, err
	}
	if instance.CurrentStep >= len(workflow.Steps) {
		return nil, fmt.Errorf("%w: current step %d out of range", ErrStaleApprovalState, instance.CurrentStep)
	}

	step := workflow.Steps[instance.CurrentStep]
	if !containsApprover(step.Approvers, approverID) {
		return nil, fmt.Errorf("%w: %s at step %d", ErrApproverNotAssigned, approverID, instance.CurrentStep)
	}
	if instance.HasDecisionFrom(instance.CurrentStep, approverID) {
		return nil, fmt.Errorf("%w: %s at step %d", ErrDuplicateDecision, approverID, instance.CurrentStep)
	}

	record := &models.ApprovalStepRecord{
		StepIndex:  instance.CurrentStep,
		ApproverID: approverID,
		Decision:   decision,
		Comment:    comment,
		DecidedAt:  e.now(),
	}

	newStep := instance.CurrentStep
	newStatus := instance.Status

	if decision == models.DecisionReject {
		// Short-circuit: one reject terminates the approval regardless
		// of other pending approvers at this step.
		newStatus = models.ApprovalStatusRejected
	} else {
		approvalsAtStep := 1
		for _, s := range instance.DecisionsAtStep(instance.CurrentStep) {
			if s.Decision == models.DecisionApprove {
				approvalsAtStep++
			}
		}
		if approvalsAtStep >= len(step.Approvers) {
			newStep = instance.CurrentStep + 1
			if newStep >= len(workflow.Steps) {
				newStatus = models.ApprovalStatusApproved
			}
		}
	}

	if err := e.approvals.RecordDecision(ctx, instance, record, newStep, newStatus); err != nil {
		if errors.Is(err, port.ErrVersionConflict) {
			return nil, fmt.Errorf("%w: concurrent decision won", ErrStaleApprovalState)
		}
		return nil, err
	}

	e.logger.Info("Approval decision recorded",
		zap.Int64("bill_id", billID),
		zap.Int64("approval_id", instance.ID),
		zap.String("approver", approverID),
		zap.String("decision", string(decision)),
		zap.Int("step", record.StepIndex))

	switch newStatus {
	case models.ApprovalStatusApproved:
		next, err := lifecycle.Transition(ctx, bill.Status, lifecycle.TriggerApprove)
		if err != nil {
			return nil, err
		}
		approved := bill.Amount.Copy()
		bill.ApprovedAmount = &approved
		if err := e.moveBill(ctx, bill, next, approverID, "approve", "all approval steps satisfied"); err != nil {
			return nil, err
		}

	case models.ApprovalStatusRejected:
		next, err := lifecycle.Transition(ctx, bill.Status, lifecycle.TriggerReject)
		if err != nil {
			return nil, err
		}
		if err := e.moveBill(ctx, bill, next, approverID, "reject", comment); err != nil {
			return nil, err
		}
	}

	return bill, nil
}

// CancelBill cancels a bill from any non-terminal status. Cancellation is
// refused only once an attempt has entered PROCESSING; the caller must
// wait for reconciliation and handle any reversal externally. A PENDING
// attempt has not reached the processor yet, so it is terminated here and
// the cancellation proceeds.
func (e *Engine) CancelBill(ctx context.Context, billID int64, actor string) (*models.Bill, error) {
	bill, err := e.bills.GetByID(ctx, billID)
	if err != nil {
		return nil, err
	}

	attempts, err := e.payments.ListForBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	for _, p := range attempts {
		if p.Status == models.PaymentStatusProcessing {
			return nil, ErrPaymentInFlight
		}
	}

	next, err := lifecycle.Transition(ctx, bill.Status, lifecycle.TriggerCancel)
	if err != nil {
		return nil, err
	}

	for _, p := range attempts {
		if p.Status != models.PaymentStatusPending {
			continue
		}
		p.Status = models.PaymentStatusCancelled
		// A scan worker claiming the attempt concurrently wins the
		// version CAS; the cancellation then fails instead of racing
		// the submission.
		if err := e.payments.Update(ctx, p); err != nil {
			return nil, err
		}
	}

	if err := e.moveBill(ctx, bill, next, actor, "cancel", ""); err != nil {
		return nil, err
	}
	return bill, nil
}

// ResubmitBill re-enters a rejected bill into the approval flow. The
// rejected BillApproval instance is never mutated; submission creates a
// fresh one, preserving the audit trail of the rejection.
func (e *Engine) ResubmitBill(ctx context.Context, billID int64, actor string) (*models.Bill, error) {
	bill, err := e.bills.GetByID(ctx, billID)
	if err != nil {
		return nil, err
	}
	if bill.Status != models.BillStatusRejected {
		return nil, fmt.Errorf("%w: status is %s", ErrNotRejected, bill.Status)
	}

	next, err := lifecycle.Transition(ctx, bill.Status, lifecycle.TriggerResubmit)
	if err != nil {
		return nil, err
	}

	// Clear the approval capture from the failed round before re-routing.
	bill.ApprovedAmount = nil
	if err := e.moveBill(ctx, bill, next, actor, "resubmit", ""); err != nil {
		return nil, err
	}

	vendor, err := e.vendors.GetByID(ctx, bill.VendorID)
	if err != nil {
		return nil, err
	}
	workflows, err := e.workflows.ListActive(ctx, bill.OrgID)
	if err != nil {
		return nil, err
	}

	outcome := resolver.Resolve(bill, vendor, workflows)
	switch outcome.Kind {
	case resolver.OutcomeAutoPay:
		approvedStatus, err := lifecycle.Transition(ctx, bill.Status, lifecycle.TriggerAutoApprove)
		if err != nil {
			return nil, err
		}
		approved := bill.Amount.Copy()
		bill.ApprovedAmount = &approved
		if err := e.moveBill(ctx, bill, approvedStatus, models.SystemActor, "auto_approve", "auto-pay vendor policy"); err != nil {
			return nil, err
		}
	case resolver.OutcomeRequiresWorkflow:
		instance := &models.BillApproval{
			BillID:     bill.ID,
			WorkflowID: outcome.Workflow.ID,
			Status:     models.ApprovalStatusPending,
		}
		if err := e.approvals.Create(ctx, instance); err != nil {
			return nil, err
		}
	case resolver.OutcomeNoMatch:
		return bill, ErrNoMatchingWorkflow
	}

	return bill, nil
}

// ReviewBill clears the human-review flag on a low-confidence extracted
// bill so it can be submitted
func (e *Engine) ReviewBill(ctx context.Context, billID int64, actor string) (*models.Bill, error) {
	bill, err := e.bills.GetByID(ctx, billID)
	if err != nil {
		return nil, err
	}
	if !bill.NeedsReview {
		return bill, nil
	}

	bill.NeedsReview = false
	if err := e.bills.Update(ctx, bill); err != nil {
		return nil, err
	}
	if err := e.audit.Append(ctx, &models.AuditEntry{
		BillID:     bill.ID,
		Actor:      actor,
		Action:     "review",
		FromStatus: bill.Status,
		ToStatus:   bill.Status,
		Detail:     "extraction reviewed",
	}); err != nil {
		return nil, err
	}
	return bill, nil
}

// moveBill applies a status change and appends the matching audit entry
func (e *Engine) moveBill(ctx context.Context, bill *models.Bill, to models.BillStatus, actor, action, detail string) error {
	from := bill.Status
	bill.Status = to

	if err := e.bills.Update(ctx, bill); err != nil {
		bill.Status = from
		return err
	}

	if err := e.audit.Append(ctx, &models.AuditEntry{
		BillID:     bill.ID,
		Actor:      actor,
		Action:     action,
		FromStatus: from,
		ToStatus:   to,
		Detail:     detail,
	}); err != nil {
		return err
	}

	e.logger.Info("Bill status changed",
		zap.Int64("bill_id", bill.ID),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.String("actor", actor))

	return nil
}

func containsApprover(approvers []string, id string) bool {
	for _, a := range approvers {
		if a == id {
			return true
		}
	}
	return false
}
