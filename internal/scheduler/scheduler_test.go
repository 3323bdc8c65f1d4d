package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/paylane/billflow/internal/models"
	"github.com/paylane/billflow/internal/port"
	"github.com/paylane/billflow/internal/storetest"
)

type schedFixture struct {
	scheduler *Scheduler
	vendors   *storetest.Vendors
	bills     *storetest.Bills
	payments  *storetest.Payments
	audit     *storetest.Audits
}

func newSchedFixture(t *testing.T, now time.Time) *schedFixture {
	t.Helper()

	payments := storetest.NewPayments()
	f := &schedFixture{
		vendors:  storetest.NewVendors(),
		bills:    storetest.NewBills(payments),
		payments: payments,
		audit:    storetest.NewAudits(),
	}
	f.scheduler = NewScheduler(f.bills, f.vendors, f.payments, f.audit, zap.NewNop())
	f.scheduler.now = func() time.Time { return now }
	return f
}

func (f *schedFixture) vendor(t *testing.T, mutate func(*models.Vendor)) *models.Vendor {
	t.Helper()
	v := &models.Vendor{
		OrgID:            "org-1",
		Name:             "Acme Power",
		PaymentTermsDays: 3,
		PaymentMethods:   []string{"ACH"},
		Status:           models.VendorStatusActive,
	}
	if mutate != nil {
		mutate(v)
	}
	require.NoError(t, f.vendors.Create(context.Background(), v))
	return v
}

func (f *schedFixture) approvedBill(t *testing.T, vendorID int64, amount string, dueDate time.Time) *models.Bill {
	t.Helper()
	amt := decimal.RequireFromString(amount)
	b := &models.Bill{
		OrgID:          "org-1",
		VendorID:       vendorID,
		Amount:         amt,
		Currency:       "USD",
		DueDate:        dueDate,
		Status:         models.BillStatusApproved,
		ApprovedAmount: &amt,
	}
	require.NoError(t, f.bills.Create(context.Background(), b))
	return b
}

func TestSchedule_CreatesPendingPayment(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	f := newSchedFixture(t, now)
	ctx := context.Background()

	vendor := f.vendor(t, nil)
	bill := f.approvedBill(t, vendor.ID, "2000", time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC))

	payment, err := f.scheduler.Schedule(ctx, bill.ID)
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	assert.Equal(t, 1, payment.Attempt)
	assert.Equal(t, "ACH", payment.Method)
	assert.NotEmpty(t, payment.IdempotencyKey)
	// Due 2026-03-20 minus the vendor's 3-day terms buffer.
	assert.Equal(t, time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC), payment.ScheduledDate)

	updated, err := f.bills.GetByID(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BillStatusScheduled, updated.Status)
	require.NotNil(t, updated.ScheduledDate)
	assert.Equal(t, payment.ScheduledDate, *updated.ScheduledDate)
}

func TestSchedule_NeverSchedulesInThePast(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	f := newSchedFixture(t, now)

	vendor := f.vendor(t, func(v *models.Vendor) { v.PaymentTermsDays = 30 })
	bill := f.approvedBill(t, vendor.ID, "2000", time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))

	payment, err := f.scheduler.Schedule(context.Background(), bill.ID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), payment.ScheduledDate)
}

func TestSchedule_HonorsExplicitDate(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	f := newSchedFixture(t, now)
	ctx := context.Background()

	vendor := f.vendor(t, nil)
	bill := f.approvedBill(t, vendor.ID, "2000", time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC))
	explicit := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	bill.ScheduledDate = &explicit
	require.NoError(t, f.bills.Update(ctx, bill))

	payment, err := f.scheduler.Schedule(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, explicit, payment.ScheduledDate)
}

func TestSchedule_RejectsInactiveVendor(t *testing.T) {
	f := newSchedFixture(t, time.Now())

	vendor := f.vendor(t, func(v *models.Vendor) { v.Status = models.VendorStatusInactive })
	bill := f.approvedBill(t, vendor.ID, "2000", time.Now().AddDate(0, 0, 10))

	_, err := f.scheduler.Schedule(context.Background(), bill.ID)
	assert.ErrorIs(t, err, ErrVendorInactive)
}

func TestSchedule_RejectsDuplicateOpenPayment(t *testing.T) {
	f := newSchedFixture(t, time.Now())
	ctx := context.Background()

	vendor := f.vendor(t, nil)
	bill := f.approvedBill(t, vendor.ID, "2000", time.Now().AddDate(0, 0, 10))

	_, err := f.scheduler.Schedule(ctx, bill.ID)
	require.NoError(t, err)

	// Force the bill back to APPROVED without closing the payment.
	got, err := f.bills.GetByID(ctx, bill.ID)
	require.NoError(t, err)
	got.Status = models.BillStatusApproved
	require.NoError(t, f.bills.Update(ctx, got))

	_, err = f.scheduler.Schedule(ctx, bill.ID)
	assert.ErrorIs(t, err, ErrDuplicatePayment)
}

// racingPayments runs a hook after the open-attempt check, letting a test
// interleave a competing Schedule call into the window before the insert.
type racingPayments struct {
	*storetest.Payments
	afterOpenCheck func()
}

func (p *racingPayments) HasOpenForBill(ctx context.Context, billID int64) (bool, error) {
	open, err := p.Payments.HasOpenForBill(ctx, billID)
	if h := p.afterOpenCheck; h != nil {
		p.afterOpenCheck = nil
		h()
	}
	return open, err
}

func TestSchedule_ConcurrentSchedulersCreateOnePayment(t *testing.T) {
	ctx := context.Background()
	payments := &racingPayments{Payments: storetest.NewPayments()}
	vendors := storetest.NewVendors()
	bills := storetest.NewBills(payments.Payments)
	audit := storetest.NewAudits()
	loser := NewScheduler(bills, vendors, payments, audit, zap.NewNop())
	winner := NewScheduler(bills, vendors, payments.Payments, audit, zap.NewNop())

	vendor := &models.Vendor{
		OrgID:          "org-1",
		Name:           "Acme Power",
		PaymentMethods: []string{"ACH"},
		Status:         models.VendorStatusActive,
	}
	require.NoError(t, vendors.Create(ctx, vendor))

	amt := decimal.RequireFromString("2000")
	bill := &models.Bill{
		OrgID:          "org-1",
		VendorID:       vendor.ID,
		Amount:         amt,
		Currency:       "USD",
		DueDate:        time.Now().AddDate(0, 0, 10),
		Status:         models.BillStatusApproved,
		ApprovedAmount: &amt,
	}
	require.NoError(t, bills.Create(ctx, bill))

	// The competing scheduler runs to completion inside the window between
	// this scheduler's open-attempt check and its insert.
	payments.afterOpenCheck = func() {
		_, err := winner.Schedule(ctx, bill.ID)
		require.NoError(t, err)
	}

	_, err := loser.Schedule(ctx, bill.ID)
	assert.ErrorIs(t, err, port.ErrVersionConflict)

	all, err := payments.ListForBill(ctx, bill.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, models.PaymentStatusPending, all[0].Status)

	// Even a direct insert of a second open attempt is refused.
	err = payments.Create(ctx, &models.Payment{
		BillID:         bill.ID,
		OrgID:          "org-1",
		Amount:         amt,
		Currency:       "USD",
		IdempotencyKey: "dup-key",
		Status:         models.PaymentStatusPending,
		ScheduledDate:  time.Now(),
	})
	assert.ErrorIs(t, err, port.ErrOpenPaymentExists)
}

func TestSchedule_RejectsAmountDrift(t *testing.T) {
	f := newSchedFixture(t, time.Now())
	ctx := context.Background()

	vendor := f.vendor(t, nil)
	bill := f.approvedBill(t, vendor.ID, "2000", time.Now().AddDate(0, 0, 10))
	bill.Amount = decimal.RequireFromString("2500")
	require.NoError(t, f.bills.Update(ctx, bill))

	_, err := f.scheduler.Schedule(ctx, bill.ID)
	assert.ErrorIs(t, err, ErrAmountMismatch)
}

func TestSchedule_RejectsUnapprovedBill(t *testing.T) {
	f := newSchedFixture(t, time.Now())
	ctx := context.Background()

	vendor := f.vendor(t, nil)
	b := &models.Bill{
		OrgID:    "org-1",
		VendorID: vendor.ID,
		Amount:   decimal.RequireFromString("100"),
		Currency: "USD",
		DueDate:  time.Now().AddDate(0, 0, 10),
		Status:   models.BillStatusDraft,
	}
	require.NoError(t, f.bills.Create(ctx, b))

	_, err := f.scheduler.Schedule(ctx, b.ID)
	assert.ErrorIs(t, err, ErrNotApproved)
}

func TestSchedule_RetryIncrementsAttempt(t *testing.T) {
	f := newSchedFixture(t, time.Now())
	ctx := context.Background()

	vendor := f.vendor(t, nil)
	bill := f.approvedBill(t, vendor.ID, "2000", time.Now().AddDate(0, 0, 10))

	first, err := f.scheduler.Schedule(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Attempt)

	// Fail the first attempt and revert the bill, as reconciliation does.
	first.Status = models.PaymentStatusFailed
	require.NoError(t, f.payments.Update(ctx, first))
	got, err := f.bills.GetByID(ctx, bill.ID)
	require.NoError(t, err)
	got.Status = models.BillStatusApproved
	got.ScheduledDate = nil
	require.NoError(t, f.bills.Update(ctx, got))

	second, err := f.scheduler.Schedule(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Attempt)
	assert.NotEqual(t, first.IdempotencyKey, second.IdempotencyKey)
}

func TestBackoff_DoublesAndCaps(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts: 5,
		BaseBackoff: 30 * time.Second,
		MaxBackoff:  3 * time.Minute,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 30 * time.Second},
		{1, 30 * time.Second},
		{2, 60 * time.Second},
		{3, 120 * time.Second},
		{4, 3 * time.Minute},
		{10, 3 * time.Minute},
	}

	for _, tt := range tests {
		if got := backoff(tt.attempt, cfg); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
