package models

// BillStatus represents a bill's position in the payment lifecycle
type BillStatus string

const (
	BillStatusDraft           BillStatus = "DRAFT"
	BillStatusPendingApproval BillStatus = "PENDING_APPROVAL"
	BillStatusApproved        BillStatus = "APPROVED"
	BillStatusRejected        BillStatus = "REJECTED"
	BillStatusScheduled       BillStatus = "SCHEDULED"
	BillStatusPaid            BillStatus = "PAID"
	BillStatusCancelled       BillStatus = "CANCELLED"
)

var validBillStatuses = map[BillStatus]bool{
	BillStatusDraft:           true,
	BillStatusPendingApproval: true,
	BillStatusApproved:        true,
	BillStatusRejected:        true,
	BillStatusScheduled:       true,
	BillStatusPaid:            true,
	BillStatusCancelled:       true,
}

// terminalBillStatuses are absorbing: no trigger leaves them except
// an explicit resubmission of a rejected bill, which is modelled as a
// separate trigger rather than a normal transition.
var terminalBillStatuses = map[BillStatus]bool{
	BillStatusPaid:      true,
	BillStatusCancelled: true,
	BillStatusRejected:  true,
}

// IsValid returns true if the status is a known bill status
func (s BillStatus) IsValid() bool {
	return validBillStatuses[s]
}

// IsTerminal returns true if no further transitions are allowed
func (s BillStatus) IsTerminal() bool {
	return terminalBillStatuses[s]
}

// String returns the string representation of the status
func (s BillStatus) String() string {
	return string(s)
}

// ApprovalStatus represents the status of a BillApproval instance
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusRejected ApprovalStatus = "REJECTED"
)

// IsTerminal returns true once the approval has reached a final decision
func (s ApprovalStatus) IsTerminal() bool {
	return s == ApprovalStatusApproved || s == ApprovalStatusRejected
}

// String returns the string representation of the status
func (s ApprovalStatus) String() string {
	return string(s)
}

// PaymentStatus represents the status of a payment attempt
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	// PaymentStatusCancelled marks an attempt terminated before
	// submission, when its bill was cancelled.
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

// IsTerminal returns true if the payment attempt can no longer change
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed || s == PaymentStatusCancelled
}

// IsOpen returns true while the attempt is still in flight
func (s PaymentStatus) IsOpen() bool {
	return s == PaymentStatusPending || s == PaymentStatusProcessing
}

// String returns the string representation of the status
func (s PaymentStatus) String() string {
	return string(s)
}

// VendorStatus represents whether a vendor may receive payments
type VendorStatus string

const (
	VendorStatusActive   VendorStatus = "ACTIVE"
	VendorStatusInactive VendorStatus = "INACTIVE"
)

// String returns the string representation of the status
func (s VendorStatus) String() string {
	return string(s)
}

// Decision is an approver's verdict on a single approval step
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// IsValid returns true for the two recognised decisions
func (d Decision) IsValid() bool {
	return d == DecisionApprove || d == DecisionReject
}
