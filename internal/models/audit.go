package models

import "time"

// SystemActor identifies audit entries generated by the engine itself,
// such as the implicit approval of an auto-pay bill.
const SystemActor = "system"

// AuditEntry is one immutable record of a bill status change or
// approval action. Entries are append-only.
type AuditEntry struct {
	ID         int64
	BillID     int64
	Actor      string
	Action     string
	FromStatus BillStatus
	ToStatus   BillStatus
	Detail     string
	CreatedAt  time.Time
}
