package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/paylane/billflow/internal/models"
)

func TestTransition_AllowedPaths(t *testing.T) {
	tests := []struct {
		from    models.BillStatus
		trigger Trigger
		want    models.BillStatus
	}{
		{models.BillStatusDraft, TriggerSubmit, models.BillStatusPendingApproval},
		{models.BillStatusDraft, TriggerCancel, models.BillStatusCancelled},
		{models.BillStatusPendingApproval, TriggerAutoApprove, models.BillStatusApproved},
		{models.BillStatusPendingApproval, TriggerApprove, models.BillStatusApproved},
		{models.BillStatusPendingApproval, TriggerReject, models.BillStatusRejected},
		{models.BillStatusPendingApproval, TriggerCancel, models.BillStatusCancelled},
		{models.BillStatusApproved, TriggerSchedule, models.BillStatusScheduled},
		{models.BillStatusApproved, TriggerCancel, models.BillStatusCancelled},
		{models.BillStatusScheduled, TriggerMarkPaid, models.BillStatusPaid},
		{models.BillStatusScheduled, TriggerRetry, models.BillStatusApproved},
		{models.BillStatusScheduled, TriggerCancel, models.BillStatusCancelled},
		{models.BillStatusRejected, TriggerResubmit, models.BillStatusPendingApproval},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_"+string(tt.trigger), func(t *testing.T) {
			got, err := Transition(context.Background(), tt.from, tt.trigger)
			if err != nil {
				t.Fatalf("Transition() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Transition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTransition_Rejected(t *testing.T) {
	tests := []struct {
		from    models.BillStatus
		trigger Trigger
	}{
		{models.BillStatusDraft, TriggerApprove},
		{models.BillStatusDraft, TriggerSchedule},
		{models.BillStatusPendingApproval, TriggerSchedule},
		{models.BillStatusApproved, TriggerSubmit},
		{models.BillStatusApproved, TriggerMarkPaid},
		{models.BillStatusScheduled, TriggerSubmit},
		{models.BillStatusPaid, TriggerCancel},
		{models.BillStatusPaid, TriggerSubmit},
		{models.BillStatusCancelled, TriggerSubmit},
		{models.BillStatusCancelled, TriggerResubmit},
		{models.BillStatusRejected, TriggerApprove},
		{models.BillStatusRejected, TriggerCancel},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_"+string(tt.trigger), func(t *testing.T) {
			got, err := Transition(context.Background(), tt.from, tt.trigger)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("Transition() error = %v, want ErrInvalidTransition", err)
			}
			if got != tt.from {
				t.Errorf("Transition() on failure = %v, want unchanged %v", got, tt.from)
			}
		})
	}
}

func TestBillMachine_TerminalStatusesHaveNoTriggers(t *testing.T) {
	for _, status := range []models.BillStatus{models.BillStatusPaid, models.BillStatusCancelled} {
		m := BillMachine(status)
		if triggers := m.PermittedTriggers(); len(triggers) != 0 {
			t.Errorf("BillMachine(%s).PermittedTriggers() = %v, want none", status, triggers)
		}
	}
}

func TestBillMachine_CanFire(t *testing.T) {
	m := BillMachine(models.BillStatusApproved)

	if !m.CanFire(TriggerSchedule) {
		t.Error("CanFire(SCHEDULE) = false, want true")
	}
	if m.CanFire(TriggerMarkPaid) {
		t.Error("CanFire(MARK_PAID) = true, want false")
	}
}

func TestBillMachine_FireAdvancesState(t *testing.T) {
	m := BillMachine(models.BillStatusDraft)

	if err := m.Fire(context.Background(), TriggerSubmit); err != nil {
		t.Fatalf("Fire() error = %v", err)
	}
	if m.State() != models.BillStatusPendingApproval {
		t.Errorf("State() = %v, want %v", m.State(), models.BillStatusPendingApproval)
	}
}
