package scheduler

import "errors"

var (
	// ErrVendorInactive means scheduling was attempted against a
	// deactivated vendor; fatal to this attempt, surfaced to an operator
	ErrVendorInactive = errors.New("vendor is inactive")

	// ErrDuplicatePayment means the bill already has a payment attempt in
	// flight; the new schedule request is rejected, not queued
	ErrDuplicatePayment = errors.New("payment attempt already in flight")

	// ErrAmountMismatch means the bill amount no longer matches the amount
	// captured at approval time
	ErrAmountMismatch = errors.New("bill amount differs from approved amount")

	// ErrNotApproved means scheduling was attempted on a bill that is not
	// in APPROVED
	ErrNotApproved = errors.New("bill is not approved")
)
