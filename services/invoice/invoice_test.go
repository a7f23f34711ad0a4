package invoice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"barbershop-billing/pkg/config"
	"barbershop-billing/pkg/db/option"
	"barbershop-billing/pkg/db/pagination"
	"barbershop-billing/pkg/errutil"
	"barbershop-billing/pkg/repository"
	"barbershop-billing/services/appointment"
	"barbershop-billing/services/freetrial"
	"barbershop-billing/services/tenant"
	"barbershop-billing/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeTenants struct {
	mu      sync.Mutex
	tenants map[string]*tenant.Tenant
}

func (f *fakeTenants) GetTenant(_ context.Context, id string) (*tenant.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tenants[id]
	if !ok {
		return nil, errutil.NotFound("tenant not found", nil)
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTenants) setFee(id string, fee decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tenants[id].PlatformFee = fee
}

type fakeAppointments struct {
	rows []*appointment.Appointment
	err  error
}

func (f *fakeAppointments) ListServiced(_ context.Context, tenantID string, from, to time.Time) ([]*appointment.Appointment, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*appointment.Appointment
	for _, a := range f.rows {
		if a.TenantID == tenantID && a.Status == appointment.Serviced && !a.Date.Before(from) && !a.Date.After(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeExemptions struct {
	windows [][2]time.Time
	calls   int
}

func (f *fakeExemptions) LoadExemptions(_ context.Context, _ string, _, _ time.Time) (*freetrial.Exemptions, error) {
	f.calls++
	ex := freetrial.NewExemptions()
	for _, w := range f.windows {
		ex.Add(w[0], w[1])
	}
	return ex, nil
}

type fakeSequence struct {
	mu sync.Mutex
	n  int
}

func (f *fakeSequence) NextInvoiceCode(_ context.Context, year, month int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	return fmt.Sprintf("INV-%02d%02d-%03d", year%100, month, f.n), nil
}

func serviced(id, tenantID string, date time.Time) *appointment.Appointment {
	return &appointment.Appointment{ID: id, TenantID: tenantID, Date: date, Status: appointment.Serviced}
}

type fixture struct {
	svc          *Service
	db           *gorm.DB
	tenants      *fakeTenants
	appointments *fakeAppointments
	exemptions   *fakeExemptions
}

func newFixture(t *testing.T) *fixture {
	db := testutil.NewTestDB(t, &Invoice{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &fixture{
		db: db,
		tenants: &fakeTenants{tenants: map[string]*tenant.Tenant{
			"shop-1": {ID: "shop-1", Name: "Barbearia Um", Active: true, PlatformFee: decimal.RequireFromString("2.50")},
			"shop-2": {ID: "shop-2", Name: "Barbearia Dois", Active: true, PlatformFee: decimal.RequireFromString("1.99")},
		}},
		appointments: &fakeAppointments{},
		exemptions:   &fakeExemptions{},
	}

	cfg := &config.Config{}
	cfg.Billing.Currency = "BRL"

	f.svc = &Service{
		db:      db,
		repo:    repository.ProvideStore[Invoice](db),
		calc:    &Calculator{appointments: f.appointments, exemptions: f.exemptions},
		tenants: f.tenants,
		seq:     &fakeSequence{},
		node:    node,
		config:  cfg,
		now:     time.Now,
	}
	return f
}

func (f *fixture) countInvoices(t *testing.T) int64 {
	var n int64
	require.NoError(t, f.db.Model(&Invoice{}).Count(&n).Error)
	return n
}

func TestCalculatePartitionIsComplete(t *testing.T) {
	f := newFixture(t)
	for i := 1; i <= 31; i++ {
		f.appointments.rows = append(f.appointments.rows, serviced(fmt.Sprintf("a-%d", i), "shop-1", testutil.Date(2026, time.March, i)))
	}
	f.appointments.rows = append(f.appointments.rows,
		serviced("other-tenant", "shop-2", testutil.Date(2026, time.March, 3)),
		serviced("other-month", "shop-1", testutil.Date(2026, time.April, 1)),
	)
	f.exemptions.windows = [][2]time.Time{
		{testutil.Date(2026, time.March, 1), testutil.Date(2026, time.March, 10)},
		{testutil.Date(2026, time.March, 5), testutil.Date(2026, time.March, 12)},
	}

	calc, err := f.svc.calc.Calculate(context.Background(), "shop-1", 3, 2026)
	require.NoError(t, err)
	require.Equal(t, 31, calc.TotalCount)
	require.Equal(t, 12, calc.FreeCount)
	require.Equal(t, 19, calc.BillableCount)
	require.Equal(t, calc.TotalCount, calc.BillableCount+calc.FreeCount)

	again, err := f.svc.calc.Calculate(context.Background(), "shop-1", 3, 2026)
	require.NoError(t, err)
	require.Equal(t, calc, again)
}

func TestCalculateZeroActivitySkipsExemptionLookup(t *testing.T) {
	f := newFixture(t)

	calc, err := f.svc.calc.Calculate(context.Background(), "shop-1", 2, 2026)
	require.NoError(t, err)
	require.Zero(t, calc.TotalCount)
	require.Zero(t, calc.BillableCount)
	require.Zero(t, f.exemptions.calls)
}

func TestCalculateRejectsInvalidPeriod(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.calc.Calculate(context.Background(), "shop-1", 13, 2026)
	require.True(t, errutil.IsValidation(err))

	_, err = f.svc.calc.Calculate(context.Background(), "", 1, 2026)
	require.True(t, errutil.IsValidation(err))
}

func TestCalculatePropagatesStoreError(t *testing.T) {
	f := newFixture(t)
	f.appointments.err = errutil.Internal("failed to list appointments", errors.New("connection reset"))

	_, err := f.svc.calc.Calculate(context.Background(), "shop-1", 3, 2026)
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection reset")
}

func TestMonthBounds(t *testing.T) {
	from, to := MonthBounds(2028, 2)
	require.Equal(t, testutil.Date(2028, time.February, 1), from)
	require.Equal(t, testutil.Date(2028, time.February, 29), to)

	from, to = MonthBounds(2026, 12)
	require.Equal(t, testutil.Date(2026, time.December, 1), from)
	require.Equal(t, testutil.Date(2026, time.December, 31), to)
}

func TestCreateInvoiceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.appointments.rows = []*appointment.Appointment{
		serviced("a-1", "shop-1", testutil.Date(2026, time.March, 2)),
		serviced("a-2", "shop-1", testutil.Date(2026, time.March, 3)),
	}
	req := CreateInvoiceRequest{TenantID: "shop-1", Month: 3, Year: 2026}

	result, err := f.svc.CreateInvoice(context.Background(), req)
	require.NoError(t, err)
	require.True(t, result.Created)
	require.Equal(t, Pending, result.Invoice.PaymentStatus)
	require.Equal(t, MethodPix, result.Invoice.PaymentMethod)
	require.Equal(t, "INV-2603-001", result.Invoice.Code)

	_, err = f.svc.CreateInvoice(context.Background(), req)
	require.Error(t, err)
	require.True(t, errutil.IsAlreadyExists(err))
	require.EqualValues(t, 1, f.countInvoices(t))
}

type blindRepository struct {
	repository.Repository[Invoice]
}

func (blindRepository) FindOne(context.Context, *Invoice, ...option.QueryOption) (*Invoice, error) {
	return nil, nil
}

func TestCreateInvoiceUniqueViolationIsAlreadyExists(t *testing.T) {
	f := newFixture(t)
	f.appointments.rows = []*appointment.Appointment{serviced("a-1", "shop-1", testutil.Date(2026, time.March, 2))}
	f.svc.repo = blindRepository{Repository: f.svc.repo}
	req := CreateInvoiceRequest{TenantID: "shop-1", Month: 3, Year: 2026}

	_, err := f.svc.CreateInvoice(context.Background(), req)
	require.NoError(t, err)

	_, err = f.svc.CreateInvoice(context.Background(), req)
	require.True(t, errutil.IsAlreadyExists(err))
	require.EqualValues(t, 1, f.countInvoices(t))
}

type fixedSequence struct{ code string }

func (f fixedSequence) NextInvoiceCode(context.Context, int, int) (string, error) {
	return f.code, nil
}

func TestCreateInvoiceCodeCollisionIsInternal(t *testing.T) {
	f := newFixture(t)
	f.appointments.rows = []*appointment.Appointment{
		serviced("a-1", "shop-1", testutil.Date(2026, time.March, 2)),
		serviced("a-2", "shop-1", testutil.Date(2026, time.April, 2)),
	}
	f.svc.seq = fixedSequence{code: "INV-2603-001"}

	_, err := f.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{TenantID: "shop-1", Month: 3, Year: 2026})
	require.NoError(t, err)

	_, err = f.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{TenantID: "shop-1", Month: 4, Year: 2026})
	require.Error(t, err)
	require.False(t, errutil.IsAlreadyExists(err))
	require.Equal(t, errutil.KindInternal, errutil.Kind(err))
	require.EqualValues(t, 1, f.countInvoices(t))
}

func TestCreateInvoiceConcurrentCallsYieldOneRow(t *testing.T) {
	f := newFixture(t)
	f.appointments.rows = []*appointment.Appointment{serviced("a-1", "shop-1", testutil.Date(2026, time.March, 2))}
	req := CreateInvoiceRequest{TenantID: "shop-1", Month: 3, Year: 2026}

	var wg sync.WaitGroup
	results := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateInvoice(context.Background(), req)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	created := 0
	for err := range results {
		if err == nil {
			created++
			continue
		}
		require.True(t, errutil.IsAlreadyExists(err), err.Error())
	}
	require.Equal(t, 1, created)
	require.EqualValues(t, 1, f.countInvoices(t))
}

func TestCreateInvoiceSnapshotsFee(t *testing.T) {
	f := newFixture(t)
	for i := 1; i <= 7; i++ {
		f.appointments.rows = append(f.appointments.rows, serviced(fmt.Sprintf("a-%d", i), "shop-2", testutil.Date(2026, time.March, i)))
	}

	result, err := f.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{TenantID: "shop-2", Month: 3, Year: 2026})
	require.NoError(t, err)
	require.Equal(t, 7, result.Invoice.AppointmentsCount)
	require.True(t, decimal.RequireFromString("13.93").Equal(result.Invoice.TotalAmount))
	require.True(t, result.Invoice.PlatformFee.Mul(decimal.NewFromInt(7)).Equal(result.Invoice.TotalAmount))

	f.tenants.setFee("shop-2", decimal.RequireFromString("9.00"))

	stored, err := f.svc.GetInvoice(context.Background(), result.Invoice.ID)
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("13.93").Equal(stored.TotalAmount))
	require.True(t, decimal.RequireFromString("1.99").Equal(stored.PlatformFee))
}

func TestCreateInvoiceNoActivity(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{TenantID: "shop-1", Month: 3, Year: 2026})
	require.NoError(t, err)
	require.False(t, result.Created)
	require.Equal(t, ReasonNoAppointments, result.Reason)
	require.Zero(t, result.Calculation.TotalCount)
	require.Zero(t, f.countInvoices(t))
}

func TestCreateInvoiceAllExempt(t *testing.T) {
	f := newFixture(t)
	f.appointments.rows = []*appointment.Appointment{
		serviced("a-1", "shop-1", testutil.Date(2026, time.March, 2)),
		serviced("a-2", "shop-1", testutil.Date(2026, time.March, 30)),
	}
	f.exemptions.windows = [][2]time.Time{{testutil.Date(2026, time.February, 15), testutil.Date(2026, time.April, 15)}}

	result, err := f.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{TenantID: "shop-1", Month: 3, Year: 2026})
	require.NoError(t, err)
	require.False(t, result.Created)
	require.Equal(t, ReasonAllFree, result.Reason)
	require.Equal(t, 2, result.Calculation.TotalCount)
	require.Zero(t, result.Calculation.BillableCount)
	require.Zero(t, f.countInvoices(t))
}

func TestCreateInvoiceValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{Month: 3, Year: 2026})
	require.True(t, errutil.IsValidation(err))

	_, err = f.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{TenantID: "shop-1", Month: 0, Year: 2026})
	require.True(t, errutil.IsValidation(err))

	_, err = f.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{TenantID: "missing", Month: 3, Year: 2026})
	require.True(t, errutil.IsNotFound(err))
}

func TestPreviewMatchesInvoice(t *testing.T) {
	f := newFixture(t)
	f.appointments.rows = []*appointment.Appointment{
		serviced("a-1", "shop-1", testutil.Date(2026, time.March, 2)),
		serviced("a-2", "shop-1", testutil.Date(2026, time.March, 9)),
		serviced("a-3", "shop-1", testutil.Date(2026, time.March, 20)),
	}
	f.exemptions.windows = [][2]time.Time{{testutil.Date(2026, time.March, 1), testutil.Date(2026, time.March, 5)}}

	preview, err := f.svc.Preview(context.Background(), "shop-1", 3, 2026)
	require.NoError(t, err)
	require.False(t, preview.InvoiceExists)
	require.Equal(t, "BRL", preview.Currency)

	result, err := f.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{TenantID: "shop-1", Month: 3, Year: 2026})
	require.NoError(t, err)
	require.Equal(t, preview.BillableCount, result.Invoice.AppointmentsCount)
	require.True(t, preview.EstimatedAmount.Equal(result.Invoice.TotalAmount))

	preview, err = f.svc.Preview(context.Background(), "shop-1", 3, 2026)
	require.NoError(t, err)
	require.True(t, preview.InvoiceExists)
}

func (f *fixture) seedInvoice(t *testing.T, tenantID string, month, year int, status PaymentStatus, externalID string) *Invoice {
	t.Helper()
	inv := &Invoice{
		ID:                f.svc.node.Generate().String(),
		Code:              fmt.Sprintf("INV-%02d%02d-%s", year%100, month, tenantID),
		TenantID:          tenantID,
		Month:             month,
		Year:              year,
		AppointmentsCount: 4,
		PlatformFee:       decimal.RequireFromString("2.50"),
		TotalAmount:       decimal.RequireFromString("10.00"),
		PaymentStatus:     status,
		PaymentMethod:     MethodPix,
		ExternalPaymentID: externalID,
	}
	require.NoError(t, f.db.Create(inv).Error)
	return inv
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	f := newFixture(t)
	inv := f.seedInvoice(t, "shop-1", 3, 2026, Pending, "mp-123")

	firstAt := time.Date(2026, time.April, 6, 10, 0, 0, 0, time.UTC)
	paid, changed, err := f.svc.MarkPaid(context.Background(), "mp-123", firstAt)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, Paid, paid.PaymentStatus)
	require.Equal(t, inv.ID, paid.ID)

	paid, changed, err = f.svc.MarkPaid(context.Background(), "mp-123", firstAt.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, Paid, paid.PaymentStatus)
	require.NotNil(t, paid.PaymentDate)
	require.True(t, firstAt.Equal(*paid.PaymentDate))
}

func TestMarkPaidUnknownCharge(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.MarkPaid(context.Background(), "mp-unknown", time.Now())
	require.True(t, errutil.IsNotFound(err))

	_, _, err = f.svc.MarkPaid(context.Background(), "", time.Now())
	require.True(t, errutil.IsValidation(err))
}

func TestAttachChargeOnlyOnPending(t *testing.T) {
	f := newFixture(t)
	pending := f.seedInvoice(t, "shop-1", 3, 2026, Pending, "")
	settled := f.seedInvoice(t, "shop-1", 2, 2026, Paid, "mp-old")

	expires := time.Date(2026, time.April, 7, 10, 0, 0, 0, time.UTC)
	inv, err := f.svc.AttachCharge(context.Background(), pending.ID, Charge{
		ExternalPaymentID: "mp-1",
		QRCode:            "000201...",
		QRCodeBase64:      "iVBORw0KGgo=",
		ExpiresAt:         &expires,
	})
	require.NoError(t, err)
	require.Equal(t, "mp-1", inv.ExternalPaymentID)
	require.True(t, inv.HasActiveCharge(expires.Add(-time.Minute)))
	require.False(t, inv.HasActiveCharge(expires.Add(time.Minute)))

	_, err = f.svc.AttachCharge(context.Background(), settled.ID, Charge{ExternalPaymentID: "mp-2", QRCode: "x"})
	require.True(t, errutil.IsValidation(err))

	awaiting, err := f.svc.ListAwaitingPayment(context.Background())
	require.NoError(t, err)
	require.Len(t, awaiting, 1)
	require.Equal(t, pending.ID, awaiting[0].ID)
}

func TestListInvoicesPaginates(t *testing.T) {
	f := newFixture(t)
	for m := 1; m <= 5; m++ {
		f.seedInvoice(t, "shop-1", m, 2026, Pending, "")
	}
	f.seedInvoice(t, "shop-2", 1, 2026, Pending, "")

	page, info, err := f.svc.ListInvoices(context.Background(), "shop-1", paginationOf("", 3))
	require.NoError(t, err)
	require.Len(t, page, 3)
	require.True(t, info.HasMore)
	require.Equal(t, 5, page[0].Month)

	rest, info, err := f.svc.ListInvoices(context.Background(), "shop-1", paginationOf(info.NextCursor, 3))
	require.NoError(t, err)
	require.Len(t, rest, 2)
	require.False(t, info.HasMore)

	_, _, err = f.svc.ListInvoices(context.Background(), "", paginationOf("", 3))
	require.True(t, errutil.IsValidation(err))
}

func TestGetPaymentStatus(t *testing.T) {
	f := newFixture(t)
	inv := f.seedInvoice(t, "shop-1", 3, 2026, Pending, "")

	status, err := f.svc.GetPaymentStatus(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, Pending, status)

	_, err = f.svc.GetPaymentStatus(context.Background(), "nope")
	require.True(t, errutil.IsNotFound(err))
}

func paginationOf(cursor string, limit int) pagination.Pagination {
	return pagination.Pagination{Cursor: cursor, Limit: limit}
}
