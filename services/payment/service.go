package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"barbershop-billing/pkg/config"
	"barbershop-billing/pkg/errutil"
	"barbershop-billing/pkg/mercadopago"
	"barbershop-billing/services/invoice"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("barbershop-billing/services/payment")

type InvoiceStore interface {
	GetInvoice(ctx context.Context, invoiceID string) (*invoice.Invoice, error)
	AttachCharge(ctx context.Context, invoiceID string, charge invoice.Charge) (*invoice.Invoice, error)
	MarkPaid(ctx context.Context, externalPaymentID string, paidAt time.Time) (*invoice.Invoice, bool, error)
	ListAwaitingPayment(ctx context.Context) ([]*invoice.Invoice, error)
}

type Service struct {
	db            *gorm.DB
	gateway       Gateway
	invoices      InvoiceStore
	node          *snowflake.Node
	webhookSecret string
	now           func() time.Time

	group singleflight.Group
}

type Params struct {
	fx.In
	DB       *gorm.DB
	Gateway  Gateway
	Invoices *invoice.Service
	Node     *snowflake.Node
	Config   *config.Config
}

func NewService(p Params) *Service {
	return &Service{
		db:            p.DB,
		gateway:       p.Gateway,
		invoices:      p.Invoices,
		node:          p.Node,
		webhookSecret: p.Config.MercadoPago.WebhookSecret,
		now:           time.Now,
	}
}

// CreateCharge creates a standalone PIX charge.
func (s *Service) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	ctx, span := tracer.Start(ctx, "payment.CreateCharge")
	defer span.End()

	return s.gateway.CreateCharge(ctx, req)
}

// ChargeInvoice returns a payable PIX charge for the invoice, creating one
// when none is attached or the attached one expired. Concurrent calls for the
// same invoice share a single provider request.
func (s *Service) ChargeInvoice(ctx context.Context, invoiceID string, payer Payer) (*invoice.Invoice, error) {
	ctx, span := tracer.Start(ctx, "payment.ChargeInvoice")
	defer span.End()

	v, err, shared := s.group.Do(invoiceID, func() (any, error) {
		return s.chargeInvoice(context.WithoutCancel(ctx), invoiceID, payer)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		zap.L().Debug("pix charge shared between callers", zap.String("invoice_id", invoiceID))
	}
	return v.(*invoice.Invoice), nil
}

func (s *Service) chargeInvoice(ctx context.Context, invoiceID string, payer Payer) (*invoice.Invoice, error) {
	zapLog := zap.L().With(zap.String("invoice_id", invoiceID))

	inv, err := s.invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.IsPaid() {
		return nil, errutil.ValidationFailed("invoice is already paid", nil)
	}
	if inv.HasActiveCharge(s.now()) {
		return inv, nil
	}

	charge, err := s.gateway.CreateCharge(ctx, ChargeRequest{
		Amount:            inv.TotalAmount,
		Description:       fmt.Sprintf("Platform fee %02d/%d (%s)", inv.Month, inv.Year, inv.Code),
		Payer:             payer,
		ExternalReference: inv.ID,
	})
	if err != nil {
		zapLog.Error("failed to create charge for invoice", zap.Error(err))
		return nil, err
	}

	updated, err := s.invoices.AttachCharge(ctx, invoiceID, invoice.Charge{
		ExternalPaymentID: charge.ID,
		QRCode:            charge.QRCode,
		QRCodeBase64:      charge.QRCodeBase64,
		ExpiresAt:         charge.ExpiresAt,
	})
	if err != nil {
		zapLog.Error("failed to persist charge", zap.String("charge_id", charge.ID), zap.Error(err))
		return nil, err
	}

	zapLog.Info("pix charge attached", zap.String("charge_id", charge.ID))
	return updated, nil
}

// HandleNotification applies one webhook delivery. Only an approved charge
// changes state, and applying it twice is a no-op.
func (s *Service) HandleNotification(ctx context.Context, n Notification) (*NotificationResult, error) {
	ctx, span := tracer.Start(ctx, "payment.HandleNotification")
	defer span.End()

	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
		zap.String("charge_id", n.ChargeID),
		zap.String("type", n.Type),
	)

	if n.ChargeID == "" {
		webhookNotifications.WithLabelValues("bad_request").Inc()
		return nil, errutil.BadRequest("payment id is required", nil)
	}

	if s.webhookSecret != "" {
		if err := mercadopago.VerifySignature(s.webhookSecret, n.Signature, n.RequestID, n.ChargeID); err != nil {
			webhookNotifications.WithLabelValues("unauthorized").Inc()
			zapLog.Warn("rejected webhook with bad signature")
			return nil, errutil.Unauthorized("invalid webhook signature", err)
		}
	}

	event := &Event{
		ID:                s.node.Generate().String(),
		Provider:          "mercadopago",
		ExternalPaymentID: n.ChargeID,
		Type:              n.Type,
		Action:            n.Action,
		RequestID:         n.RequestID,
		Payload:           payloadJSON(n.Payload),
	}
	defer s.recordEvent(ctx, event)

	if n.Type != "" && n.Type != "payment" {
		event.Outcome = string(OutcomeIgnored)
		webhookNotifications.WithLabelValues(string(OutcomeIgnored)).Inc()
		return &NotificationResult{Received: true, Outcome: OutcomeIgnored}, nil
	}

	status, err := s.gateway.GetChargeStatus(ctx, n.ChargeID)
	if err != nil {
		event.Error = err.Error()
		event.Outcome = errutil.Kind(err).String()
		webhookNotifications.WithLabelValues(event.Outcome).Inc()
		zapLog.Warn("failed to fetch charge status", zap.Error(err))
		return nil, err
	}
	event.ProviderStatus = status.Status

	result, err := s.apply(ctx, status)
	if err != nil {
		event.Error = err.Error()
		event.Outcome = errutil.Kind(err).String()
		webhookNotifications.WithLabelValues(event.Outcome).Inc()
		return nil, err
	}

	event.Outcome = string(result.Outcome)
	event.InvoiceID = result.InvoiceID
	webhookNotifications.WithLabelValues(string(result.Outcome)).Inc()
	zapLog.Info("webhook processed", zap.String("status", status.Status), zap.String("outcome", string(result.Outcome)))
	return result, nil
}

func (s *Service) apply(ctx context.Context, status *ChargeStatus) (*NotificationResult, error) {
	result := &NotificationResult{Received: true, Status: status.Status, Outcome: OutcomeIgnored}
	if status.Status != mercadopago.StatusApproved {
		return result, nil
	}

	paidAt := s.now()
	if status.ApprovedAt != nil {
		paidAt = *status.ApprovedAt
	}

	inv, changed, err := s.invoices.MarkPaid(ctx, status.ID, paidAt)
	if err != nil {
		if errutil.IsNotFound(err) {
			result.Outcome = OutcomeUnmatched
			return result, nil
		}
		return nil, err
	}

	result.InvoiceID = inv.ID
	result.Outcome = OutcomeDuplicate
	if changed {
		result.Outcome = OutcomePaid
	}
	return result, nil
}

func (s *Service) recordEvent(ctx context.Context, event *Event) {
	if s.db == nil {
		return
	}
	if err := s.db.WithContext(context.WithoutCancel(ctx)).Create(event).Error; err != nil {
		zap.L().Error("failed to record payment event", zap.String("charge_id", event.ExternalPaymentID), zap.Error(err))
	}
}

func payloadJSON(b []byte) datatypes.JSON {
	if len(b) == 0 {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(b)
}

// Reconcile asks the provider about every pending invoice with a charge and
// settles the approved ones, the same way a webhook would.
func (s *Service) Reconcile(ctx context.Context) (*ReconcileSummary, error) {
	ctx, span := tracer.Start(ctx, "payment.Reconcile")
	defer span.End()

	invoices, err := s.invoices.ListAwaitingPayment(ctx)
	if err != nil {
		return nil, err
	}

	summary := &ReconcileSummary{}
	for _, inv := range invoices {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Checked++

		status, err := s.gateway.GetChargeStatus(ctx, inv.ExternalPaymentID)
		if err != nil {
			summary.Errors++
			zap.L().Warn("reconcile: failed to fetch charge status",
				zap.String("invoice_id", inv.ID),
				zap.String("charge_id", inv.ExternalPaymentID),
				zap.Error(err),
			)
			continue
		}

		result, err := s.apply(ctx, status)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return summary, err
			}
			summary.Errors++
			zap.L().Error("reconcile: failed to settle invoice", zap.String("invoice_id", inv.ID), zap.Error(err))
			continue
		}
		if result.Outcome == OutcomePaid {
			summary.Paid++
		}
	}

	zap.L().Info("reconcile finished",
		zap.Int("checked", summary.Checked),
		zap.Int("paid", summary.Paid),
		zap.Int("errors", summary.Errors),
	)
	return summary, nil
}
