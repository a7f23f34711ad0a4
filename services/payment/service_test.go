package payment

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"barbershop-billing/pkg/config"
	"barbershop-billing/pkg/errutil"
	"barbershop-billing/pkg/mercadopago"
	"barbershop-billing/pkg/middleware"
	"barbershop-billing/services/invoice"
	"barbershop-billing/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var testNow = time.Date(2026, time.April, 6, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	gateway  *MockGateway
	invoices *invoice.Service
	db       *gorm.DB
	node     *snowflake.Node
	month    int
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	db := testutil.NewTestDB(t, &invoice.Invoice{}, &Event{})
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	invoices := invoice.NewService(invoice.ServiceParams{DB: db, Node: node, Config: &config.Config{}})
	gateway := NewMockGateway(ctrl)

	return &fixture{
		svc: &Service{
			db:       db,
			gateway:  gateway,
			invoices: invoices,
			node:     node,
			now:      testutil.Clock(testNow),
		},
		gateway:  gateway,
		invoices: invoices,
		db:       db,
		node:     node,
	}
}

func (f *fixture) seedInvoice(t *testing.T, status invoice.PaymentStatus, chargeID string, expiresAt *time.Time) *invoice.Invoice {
	t.Helper()
	f.month++
	inv := &invoice.Invoice{
		ID:                 f.node.Generate().String(),
		Code:               fmt.Sprintf("INV-25%02d-%03d", f.month, f.month),
		TenantID:           "shop-1",
		Month:              f.month,
		Year:               2025,
		AppointmentsCount:  10,
		PlatformFee:        decimal.RequireFromString("2.50"),
		TotalAmount:        decimal.RequireFromString("25.00"),
		PaymentStatus:      status,
		PaymentMethod:      invoice.MethodPix,
		ExternalPaymentID:  chargeID,
		PixQRCodeExpiresAt: expiresAt,
	}
	if chargeID != "" {
		inv.PixQRCode = "00020126-old"
	}
	require.NoError(t, f.db.Create(inv).Error)
	return inv
}

func (f *fixture) events(t *testing.T) []Event {
	var out []Event
	require.NoError(t, f.db.Find(&out).Error)
	return out
}

var payer = Payer{Email: "dono@barbearia.com", FirstName: "Joao", LastName: "Silva"}

func TestChargeInvoiceAttachesCharge(t *testing.T) {
	f := newFixture(t)
	inv := f.seedInvoice(t, invoice.Pending, "", nil)
	expires := testNow.Add(24 * time.Hour)

	f.gateway.EXPECT().
		CreateCharge(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req ChargeRequest) (*Charge, error) {
			require.True(t, decimal.RequireFromString("25").Equal(req.Amount))
			require.Equal(t, inv.ID, req.ExternalReference)
			require.Equal(t, payer, req.Payer)
			return &Charge{ID: "9001", Status: "pending", QRCode: "00020126-new", QRCodeBase64: "iVBOR", ExpiresAt: &expires}, nil
		}).
		Times(1)

	charged, err := f.svc.ChargeInvoice(context.Background(), inv.ID, payer)
	require.NoError(t, err)
	require.Equal(t, "9001", charged.ExternalPaymentID)
	require.Equal(t, "00020126-new", charged.PixQRCode)

	again, err := f.svc.ChargeInvoice(context.Background(), inv.ID, payer)
	require.NoError(t, err)
	require.Equal(t, "9001", again.ExternalPaymentID)
}

func TestChargeInvoiceReplacesExpiredCharge(t *testing.T) {
	f := newFixture(t)
	expired := testNow.Add(-time.Minute)
	inv := f.seedInvoice(t, invoice.Pending, "8000", &expired)
	expires := testNow.Add(24 * time.Hour)

	f.gateway.EXPECT().CreateCharge(gomock.Any(), gomock.Any()).
		Return(&Charge{ID: "8001", QRCode: "fresh", ExpiresAt: &expires}, nil)

	charged, err := f.svc.ChargeInvoice(context.Background(), inv.ID, payer)
	require.NoError(t, err)
	require.Equal(t, "8001", charged.ExternalPaymentID)
}

func TestChargeInvoiceRejectsPaid(t *testing.T) {
	f := newFixture(t)
	inv := f.seedInvoice(t, invoice.Paid, "7000", nil)

	_, err := f.svc.ChargeInvoice(context.Background(), inv.ID, payer)
	require.True(t, errutil.IsValidation(err))

	_, err = f.svc.ChargeInvoice(context.Background(), "missing", payer)
	require.True(t, errutil.IsNotFound(err))
}

func TestChargeInvoiceConcurrentCallsCreateOneCharge(t *testing.T) {
	f := newFixture(t)
	inv := f.seedInvoice(t, invoice.Pending, "", nil)
	expires := testNow.Add(time.Hour)

	f.gateway.EXPECT().CreateCharge(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, ChargeRequest) (*Charge, error) {
			time.Sleep(20 * time.Millisecond)
			return &Charge{ID: "6001", QRCode: "qr", ExpiresAt: &expires}, nil
		}).
		Times(1)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.svc.ChargeInvoice(context.Background(), inv.ID, payer)
			require.NoError(t, err)
			require.Equal(t, "6001", got.ExternalPaymentID)
		}()
	}
	wg.Wait()
}

func TestChargeInvoiceOutlivesCallerCancellation(t *testing.T) {
	f := newFixture(t)
	inv := f.seedInvoice(t, invoice.Pending, "", nil)
	expires := testNow.Add(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	f.gateway.EXPECT().CreateCharge(gomock.Any(), gomock.Any()).
		DoAndReturn(func(gctx context.Context, _ ChargeRequest) (*Charge, error) {
			cancel()
			if err := gctx.Err(); err != nil {
				return nil, err
			}
			return &Charge{ID: "6101", QRCode: "qr", ExpiresAt: &expires}, nil
		})

	got, err := f.svc.ChargeInvoice(ctx, inv.ID, payer)
	require.NoError(t, err)
	require.Equal(t, "6101", got.ExternalPaymentID)
}

func TestChargeInvoiceProviderFailure(t *testing.T) {
	f := newFixture(t)
	inv := f.seedInvoice(t, invoice.Pending, "", nil)

	f.gateway.EXPECT().CreateCharge(gomock.Any(), gomock.Any()).
		Return(nil, errutil.BadGateway("failed to create pix charge", &mercadopago.APIError{StatusCode: 400, Body: `{"message":"invalid"}`}))

	_, err := f.svc.ChargeInvoice(context.Background(), inv.ID, payer)
	require.True(t, errutil.IsDependency(err))
	require.Contains(t, err.Error(), `{"message":"invalid"}`)

	stored, err := f.invoices.GetInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Empty(t, stored.ExternalPaymentID)
}

func TestHandleNotificationApprovedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	inv := f.seedInvoice(t, invoice.Pending, "5001", nil)
	approvedAt := time.Date(2026, time.April, 6, 8, 55, 0, 0, time.UTC)

	f.gateway.EXPECT().GetChargeStatus(gomock.Any(), "5001").
		Return(&ChargeStatus{ID: "5001", Status: mercadopago.StatusApproved, ApprovedAt: &approvedAt}, nil).
		Times(2)

	n := Notification{ChargeID: "5001", Type: "payment", Payload: []byte(`{"type":"payment","data":{"id":"5001"}}`)}

	first, err := f.svc.HandleNotification(context.Background(), n)
	require.NoError(t, err)
	require.Equal(t, OutcomePaid, first.Outcome)
	require.Equal(t, inv.ID, first.InvoiceID)

	second, err := f.svc.HandleNotification(context.Background(), n)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, second.Outcome)

	stored, err := f.invoices.GetInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, invoice.Paid, stored.PaymentStatus)
	require.True(t, approvedAt.Equal(*stored.PaymentDate))

	var outcomes []string
	for _, e := range f.events(t) {
		require.Equal(t, "5001", e.ExternalPaymentID)
		require.Equal(t, inv.ID, e.InvoiceID)
		outcomes = append(outcomes, e.Outcome)
	}
	require.ElementsMatch(t, []string{string(OutcomePaid), string(OutcomeDuplicate)}, outcomes)
}

func TestHandleNotificationNonApprovedIsNoop(t *testing.T) {
	f := newFixture(t)
	inv := f.seedInvoice(t, invoice.Pending, "5002", nil)

	f.gateway.EXPECT().GetChargeStatus(gomock.Any(), "5002").
		Return(&ChargeStatus{ID: "5002", Status: mercadopago.StatusPending}, nil)

	result, err := f.svc.HandleNotification(context.Background(), Notification{ChargeID: "5002"})
	require.NoError(t, err)
	require.True(t, result.Received)
	require.Equal(t, OutcomeIgnored, result.Outcome)

	stored, err := f.invoices.GetInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, invoice.Pending, stored.PaymentStatus)
}

func TestHandleNotificationErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.HandleNotification(context.Background(), Notification{})
	require.True(t, errutil.IsValidation(err))

	f.gateway.EXPECT().GetChargeStatus(gomock.Any(), "404").
		Return(nil, errutil.NotFound("charge not found", mercadopago.ErrNotFound))

	_, err = f.svc.HandleNotification(context.Background(), Notification{ChargeID: "404"})
	require.True(t, errutil.IsNotFound(err))
}

func TestHandleNotificationUnmatchedCharge(t *testing.T) {
	f := newFixture(t)

	f.gateway.EXPECT().GetChargeStatus(gomock.Any(), "3001").
		Return(&ChargeStatus{ID: "3001", Status: mercadopago.StatusApproved}, nil)

	result, err := f.svc.HandleNotification(context.Background(), Notification{ChargeID: "3001"})
	require.NoError(t, err)
	require.Equal(t, OutcomeUnmatched, result.Outcome)
}

func TestHandleNotificationIgnoresOtherTopics(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.HandleNotification(context.Background(), Notification{ChargeID: "1", Type: "merchant_order"})
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, result.Outcome)
}

func TestHandleNotificationSignature(t *testing.T) {
	f := newFixture(t)
	f.svc.webhookSecret = "s3cret"
	f.seedInvoice(t, invoice.Pending, "2001", nil)

	_, err := f.svc.HandleNotification(context.Background(), Notification{ChargeID: "2001", Signature: "ts=1,v1=deadbeef"})
	require.Equal(t, errutil.KindUnauthorized, errutil.Kind(err))

	_, err = f.svc.HandleNotification(context.Background(), Notification{Type: "payment"})
	require.True(t, errutil.IsValidation(err))

	f.gateway.EXPECT().GetChargeStatus(gomock.Any(), "2001").
		Return(&ChargeStatus{ID: "2001", Status: mercadopago.StatusApproved}, nil)

	sig := mercadopago.Sign("s3cret", mercadopago.Manifest("2001", "req-9", "1700000000"))
	result, err := f.svc.HandleNotification(context.Background(), Notification{
		ChargeID:  "2001",
		RequestID: "req-9",
		Signature: "ts=1700000000,v1=" + sig,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomePaid, result.Outcome)
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	approved := f.seedInvoice(t, invoice.Pending, "1001", nil)
	f.seedInvoice(t, invoice.Pending, "1002", nil)
	f.seedInvoice(t, invoice.Pending, "1003", nil)
	f.seedInvoice(t, invoice.Pending, "", nil)

	f.gateway.EXPECT().GetChargeStatus(gomock.Any(), "1001").Return(&ChargeStatus{ID: "1001", Status: mercadopago.StatusApproved}, nil)
	f.gateway.EXPECT().GetChargeStatus(gomock.Any(), "1002").Return(&ChargeStatus{ID: "1002", Status: mercadopago.StatusPending}, nil)
	f.gateway.EXPECT().GetChargeStatus(gomock.Any(), "1003").Return(nil, errutil.BadGateway("failed to get pix charge", nil))

	summary, err := f.svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.Equal(t, &ReconcileSummary{Checked: 3, Paid: 1, Errors: 1}, summary)

	stored, err := f.invoices.GetInvoice(context.Background(), approved.ID)
	require.NoError(t, err)
	require.True(t, stored.IsPaid())
}

func newTestEngine(f *fixture) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(middleware.Error())
	RegisterRoutes(engine, NewHandler(f.svc))
	return engine
}

func TestWebhookEndpoint(t *testing.T) {
	f := newFixture(t)
	f.seedInvoice(t, invoice.Pending, "123456", nil)
	engine := newTestEngine(f)

	f.gateway.EXPECT().GetChargeStatus(gomock.Any(), "123456").
		Return(&ChargeStatus{ID: "123456", Status: mercadopago.StatusApproved}, nil).
		Times(2)

	post := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w
	}

	w := post("/api/billing/pix/webhook", `{"type":"payment","action":"payment.updated","data":{"id":123456}}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"received":true`)

	w = post("/api/billing/pix/webhook?type=payment&data.id=123456", ``)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"outcome":"duplicate"`)

	w = post("/api/billing/pix/webhook", `{"type":"payment","data":{}}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateChargeEndpoint(t *testing.T) {
	f := newFixture(t)
	engine := newTestEngine(f)

	f.gateway.EXPECT().CreateCharge(gomock.Any(), gomock.Any()).
		Return(nil, errutil.BadGateway("failed to create pix charge", &mercadopago.APIError{StatusCode: 401, Body: `{"message":"invalid token"}`}))

	req := httptest.NewRequest(http.MethodPost, "/api/billing/pix/charges",
		bytes.NewBufferString(`{"amount":"10.50","description":"Taxa","payer":{"email":"dono@barbearia.com"}}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), "invalid token")

	req = httptest.NewRequest(http.MethodPost, "/api/billing/pix/charges",
		bytes.NewBufferString(`{"amount":"10.50","description":"Taxa","payer":{"email":"not-an-email"}}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
