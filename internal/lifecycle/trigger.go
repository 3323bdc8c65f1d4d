package lifecycle

// Trigger represents an event that can cause a bill status transition
type Trigger string

const (
	TriggerSubmit      Trigger = "SUBMIT"
	TriggerAutoApprove Trigger = "AUTO_APPROVE"
	TriggerApprove     Trigger = "APPROVE"
	TriggerReject      Trigger = "REJECT"
	TriggerSchedule    Trigger = "SCHEDULE"
	TriggerMarkPaid    Trigger = "MARK_PAID"
	TriggerRetry       Trigger = "RETRY"
	TriggerCancel      Trigger = "CANCEL"
	TriggerResubmit    Trigger = "RESUBMIT"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
