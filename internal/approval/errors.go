package approval

import "errors"

var (
	// ErrNoMatchingWorkflow means approval is required but no active
	// workflow covers the bill; the bill stays parked in PENDING_APPROVAL
	// and must be surfaced to an operator, never silently resolved
	ErrNoMatchingWorkflow = errors.New("no matching approval workflow")

	// ErrStaleApprovalState means the caller decided against an approval
	// whose step or version moved underneath it, or one already in a
	// terminal status; the caller must refetch and retry
	ErrStaleApprovalState = errors.New("stale approval state")

	// ErrDuplicateDecision means the approver already recorded a decision
	// at the current step
	ErrDuplicateDecision = errors.New("approver already decided this step")

	// ErrApproverNotAssigned means the caller is not among the required
	// approvers of the current step
	ErrApproverNotAssigned = errors.New("approver not assigned to current step")

	// ErrPaymentInFlight means cancellation was requested while a payment
	// is being processed; the caller must wait for reconciliation
	ErrPaymentInFlight = errors.New("payment already in flight")

	// ErrNotRejected means resubmission was requested for a bill that is
	// not in REJECTED
	ErrNotRejected = errors.New("bill is not rejected")

	// ErrNeedsReview means a low-confidence extracted bill was submitted
	// before a human reviewed it
	ErrNeedsReview = errors.New("bill requires human review before submission")
)
