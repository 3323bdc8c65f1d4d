package lifecycle

import (
	"context"

	"github.com/paylane/billflow/internal/models"
)

// billBuilder holds the single transition table for the bill lifecycle.
// Cancellation is permitted from every non-terminal status; RETRY returns
// a scheduled bill to APPROVED after a failed payment attempt so the next
// scheduler pass can open a fresh one; RESUBMIT re-enters the approval
// flow from REJECTED with a brand-new BillApproval instance.
var billBuilder = func() Builder {
	b := NewBuilder()

	b.Configure(models.BillStatusDraft).
		Permit(TriggerSubmit, models.BillStatusPendingApproval).
		Permit(TriggerCancel, models.BillStatusCancelled)

	b.Configure(models.BillStatusPendingApproval).
		Permit(TriggerAutoApprove, models.BillStatusApproved).
		Permit(TriggerApprove, models.BillStatusApproved).
		Permit(TriggerReject, models.BillStatusRejected).
		Permit(TriggerCancel, models.BillStatusCancelled)

	b.Configure(models.BillStatusApproved).
		Permit(TriggerSchedule, models.BillStatusScheduled).
		Permit(TriggerCancel, models.BillStatusCancelled)

	b.Configure(models.BillStatusScheduled).
		Permit(TriggerMarkPaid, models.BillStatusPaid).
		Permit(TriggerRetry, models.BillStatusApproved).
		Permit(TriggerCancel, models.BillStatusCancelled)

	b.Configure(models.BillStatusRejected).
		Permit(TriggerResubmit, models.BillStatusPendingApproval)

	return b
}()

// BillMachine builds a machine positioned at the bill's current status
func BillMachine(current models.BillStatus) Machine {
	return billBuilder.Build(current)
}

// Transition validates a trigger against the bill lifecycle and returns
// the resulting status
func Transition(ctx context.Context, from models.BillStatus, trigger Trigger) (models.BillStatus, error) {
	m := BillMachine(from)
	if err := m.Fire(ctx, trigger); err != nil {
		return from, err
	}
	return m.State(), nil
}
