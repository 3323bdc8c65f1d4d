package models

import "time"

// ApprovalStepRecord is one immutable entry in a BillApproval's decision
// log. The log is append-only; records are never updated or removed.
type ApprovalStepRecord struct {
	ID         int64
	ApprovalID int64
	StepIndex  int
	ApproverID string
	Decision   Decision
	Comment    string
	DecidedAt  time.Time
}

// BillApproval is the stateful instance of a workflow applied to one bill.
// CurrentStep only increases, and once Status is terminal no further step
// mutation is permitted. Version guards concurrent decision writes.
type BillApproval struct {
	ID          int64
	BillID      int64
	WorkflowID  int64
	CurrentStep int
	Status      ApprovalStatus
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Steps []ApprovalStepRecord
}

// DecisionsAtStep returns the recorded decisions for a given step index
func (a *BillApproval) DecisionsAtStep(step int) []ApprovalStepRecord {
	var out []ApprovalStepRecord
	for _, s := range a.Steps {
		if s.StepIndex == step {
			out = append(out, s)
		}
	}
	return out
}

// HasDecisionFrom returns true if the approver already decided at the step
func (a *BillApproval) HasDecisionFrom(step int, approverID string) bool {
	for _, s := range a.Steps {
		if s.StepIndex == step && s.ApproverID == approverID {
			return true
		}
	}
	return false
}
