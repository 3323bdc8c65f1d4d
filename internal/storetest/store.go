// Package storetest provides in-memory implementations of the port
// repositories with the same optimistic-concurrency semantics as the
// SQL implementations. Tests across the engine packages share them
// instead of each rolling their own mocks.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/paylane/billflow/internal/models"
	"github.com/paylane/billflow/internal/port"
)

var (
	_ port.VendorRepository   = (*Vendors)(nil)
	_ port.BillRepository     = (*Bills)(nil)
	_ port.WorkflowRepository = (*Workflows)(nil)
	_ port.ApprovalRepository = (*Approvals)(nil)
	_ port.PaymentRepository  = (*Payments)(nil)
	_ port.DocumentRepository = (*Documents)(nil)
	_ port.AuditRepository    = (*Audits)(nil)
)

// Vendors is an in-memory VendorRepository
type Vendors struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]*models.Vendor
}

// NewVendors creates an empty vendor store
func NewVendors() *Vendors {
	return &Vendors{items: make(map[int64]*models.Vendor)}
}

func (s *Vendors) Create(_ context.Context, vendor *models.Vendor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	vendor.ID = s.nextID
	cp := *vendor
	s.items[vendor.ID] = &cp
	return nil
}

func (s *Vendors) GetByID(_ context.Context, id int64) (*models.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (s *Vendors) GetByName(_ context.Context, orgID, name string) (*models.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.items {
		if v.OrgID == orgID && v.Name == name {
			cp := *v
			return &cp, nil
		}
	}
	return nil, port.ErrNotFound
}

func (s *Vendors) List(_ context.Context, orgID string) ([]*models.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Vendor
	for _, v := range s.items {
		if v.OrgID == orgID {
			cp := *v
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Bills is an in-memory BillRepository. Update performs the same
// version compare-and-swap as the SQL implementation.
type Bills struct {
	mu       sync.Mutex
	nextID   int64
	items    map[int64]*models.Bill
	payments *Payments
}

// NewBills creates an empty bill store. The payment store is consulted
// by ListSchedulable to exclude bills with an open attempt; it may be
// nil when the test never schedules.
func NewBills(payments *Payments) *Bills {
	return &Bills{items: make(map[int64]*models.Bill), payments: payments}
}

func (s *Bills) Create(_ context.Context, bill *models.Bill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bill.Status == "" {
		bill.Status = models.BillStatusDraft
	}
	if bill.Version == 0 {
		bill.Version = 1
	}
	s.nextID++
	bill.ID = s.nextID
	cp := *bill
	s.items[bill.ID] = &cp
	return nil
}

func (s *Bills) GetByID(_ context.Context, id int64) (*models.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.items[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *Bills) Update(_ context.Context, bill *models.Bill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.items[bill.ID]
	if !ok {
		return port.ErrNotFound
	}
	if stored.Version != bill.Version {
		return port.ErrVersionConflict
	}
	bill.Version++
	bill.UpdatedAt = time.Now()
	cp := *bill
	s.items[bill.ID] = &cp
	return nil
}

func (s *Bills) List(_ context.Context, orgID string, limit, offset int) ([]*models.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []*models.Bill
	for _, b := range s.items {
		if b.OrgID == orgID {
			cp := *b
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *Bills) ListByStatus(_ context.Context, orgID string, status models.BillStatus) ([]*models.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Bill
	for _, b := range s.items {
		if b.OrgID == orgID && b.Status == status {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Bills) ListSchedulable(ctx context.Context, limit int) ([]*models.Bill, error) {
	s.mu.Lock()
	var approved []*models.Bill
	for _, b := range s.items {
		if b.Status == models.BillStatusApproved {
			cp := *b
			approved = append(approved, &cp)
		}
	}
	s.mu.Unlock()

	sort.Slice(approved, func(i, j int) bool { return approved[i].ID < approved[j].ID })

	var out []*models.Bill
	for _, b := range approved {
		if s.payments != nil {
			open, err := s.payments.HasOpenForBill(ctx, b.ID)
			if err != nil {
				return nil, err
			}
			if open {
				continue
			}
		}
		out = append(out, b)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Workflows is an in-memory WorkflowRepository
type Workflows struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]*models.ApprovalWorkflow
}

// NewWorkflows creates an empty workflow store
func NewWorkflows() *Workflows {
	return &Workflows{items: make(map[int64]*models.ApprovalWorkflow)}
}

func (s *Workflows) Create(_ context.Context, workflow *models.ApprovalWorkflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	workflow.ID = s.nextID
	cp := *workflow
	s.items[workflow.ID] = &cp
	return nil
}

func (s *Workflows) GetByID(_ context.Context, id int64) (*models.ApprovalWorkflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.items[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (s *Workflows) ListActive(_ context.Context, orgID string) ([]*models.ApprovalWorkflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ApprovalWorkflow
	for _, w := range s.items {
		if w.OrgID == orgID && w.Active {
			cp := *w
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Approvals is an in-memory ApprovalRepository. RecordDecision guards on
// both version and current step, like the SQL transaction.
type Approvals struct {
	mu     sync.Mutex
	nextID int64
	stepID int64
	items  map[int64]*models.BillApproval
}

// NewApprovals creates an empty approval store
func NewApprovals() *Approvals {
	return &Approvals{items: make(map[int64]*models.BillApproval)}
}

func copyApproval(a *models.BillApproval) *models.BillApproval {
	cp := *a
	cp.Steps = append([]models.ApprovalStepRecord(nil), a.Steps...)
	return &cp
}

func (s *Approvals) Create(_ context.Context, approval *models.BillApproval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if approval.Version == 0 {
		approval.Version = 1
	}
	s.nextID++
	approval.ID = s.nextID
	s.items[approval.ID] = copyApproval(approval)
	return nil
}

func (s *Approvals) GetByID(_ context.Context, id int64) (*models.BillApproval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.items[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	return copyApproval(a), nil
}

func (s *Approvals) GetOpenByBillID(_ context.Context, billID int64) (*models.BillApproval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.BillApproval
	for _, a := range s.items {
		if a.BillID == billID && a.Status == models.ApprovalStatusPending {
			if latest == nil || a.ID > latest.ID {
				latest = a
			}
		}
	}
	if latest == nil {
		return nil, port.ErrNotFound
	}
	return copyApproval(latest), nil
}

func (s *Approvals) RecordDecision(_ context.Context, approval *models.BillApproval, record *models.ApprovalStepRecord, newStep int, newStatus models.ApprovalStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.items[approval.ID]
	if !ok {
		return port.ErrNotFound
	}
	if stored.Version != approval.Version || stored.CurrentStep != approval.CurrentStep {
		return port.ErrVersionConflict
	}

	s.stepID++
	record.ID = s.stepID
	record.ApprovalID = approval.ID

	stored.Version++
	stored.CurrentStep = newStep
	stored.Status = newStatus
	stored.Steps = append(stored.Steps, *record)

	approval.Version = stored.Version
	approval.CurrentStep = newStep
	approval.Status = newStatus
	approval.Steps = append(approval.Steps, *record)
	return nil
}

// Payments is an in-memory PaymentRepository with the claim
// compare-and-swap the scheduler relies on and the same
// one-open-attempt-per-bill guard as the SQL schema.
type Payments struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]*models.Payment
}

// NewPayments creates an empty payment store
func NewPayments() *Payments {
	return &Payments{items: make(map[int64]*models.Payment)}
}

func (s *Payments) Create(_ context.Context, payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if payment.Status == "" {
		payment.Status = models.PaymentStatusPending
	}
	if payment.Status.IsOpen() {
		for _, p := range s.items {
			if p.BillID == payment.BillID && p.Status.IsOpen() {
				return port.ErrOpenPaymentExists
			}
		}
	}
	if payment.Version == 0 {
		payment.Version = 1
	}
	s.nextID++
	payment.ID = s.nextID
	cp := *payment
	s.items[payment.ID] = &cp
	return nil
}

func (s *Payments) GetByID(_ context.Context, id int64) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.items[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Payments) GetByProcessorReference(_ context.Context, ref string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.items {
		if p.ProcessorReference == ref {
			cp := *p
			return &cp, nil
		}
	}
	return nil, port.ErrNotFound
}

func (s *Payments) Update(_ context.Context, payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.items[payment.ID]
	if !ok {
		return port.ErrNotFound
	}
	if stored.Version != payment.Version {
		return port.ErrVersionConflict
	}
	payment.Version++
	payment.UpdatedAt = time.Now()
	cp := *payment
	s.items[payment.ID] = &cp
	return nil
}

func (s *Payments) HasOpenForBill(_ context.Context, billID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.items {
		if p.BillID == billID && p.Status.IsOpen() {
			return true, nil
		}
	}
	return false, nil
}

func (s *Payments) CountForBill(_ context.Context, billID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, p := range s.items {
		if p.BillID == billID {
			count++
		}
	}
	return count, nil
}

func (s *Payments) ListForBill(_ context.Context, billID int64) ([]*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Payment
	for _, p := range s.items {
		if p.BillID == billID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Payments) ListDue(_ context.Context, now time.Time, limit int) ([]*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Payment
	for _, p := range s.items {
		if p.Status != models.PaymentStatusPending {
			continue
		}
		if p.ScheduledDate.After(now) {
			continue
		}
		if p.NextSubmitAt != nil && p.NextSubmitAt.After(now) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledDate.Equal(out[j].ScheduledDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScheduledDate.Before(out[j].ScheduledDate)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Payments) ClaimForProcessing(_ context.Context, id, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.items[id]
	if !ok {
		return port.ErrNotFound
	}
	if stored.Version != version || stored.Status != models.PaymentStatusPending {
		return port.ErrVersionConflict
	}
	stored.Status = models.PaymentStatusProcessing
	stored.Version++
	return nil
}

// Documents is an in-memory DocumentRepository
type Documents struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]*models.Document
}

// NewDocuments creates an empty document store
func NewDocuments() *Documents {
	return &Documents{items: make(map[int64]*models.Document)}
}

func (s *Documents) Create(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	doc.ID = s.nextID
	cp := *doc
	s.items[doc.ID] = &cp
	return nil
}

func (s *Documents) GetByID(_ context.Context, id int64) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.items[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *Documents) MarkProcessed(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.items[id]
	if !ok {
		return port.ErrNotFound
	}
	d.Processed = true
	return nil
}

// Audits is an in-memory AuditRepository
type Audits struct {
	mu      sync.Mutex
	nextID  int64
	entries []*models.AuditEntry
}

// NewAudits creates an empty audit store
func NewAudits() *Audits {
	return &Audits{}
}

func (s *Audits) Append(_ context.Context, entry *models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	entry.ID = s.nextID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	cp := *entry
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *Audits) ListByBill(_ context.Context, billID int64) ([]*models.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.AuditEntry
	for _, e := range s.entries {
		if e.BillID == billID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}
