package payment

import (
	"context"
	"errors"
	"strconv"
	"time"

	"barbershop-billing/pkg/config"
	"barbershop-billing/pkg/errutil"
	"barbershop-billing/pkg/mercadopago"

	"go.uber.org/zap"
)

//go:generate mockgen -source=gateway.go -destination=mock_gateway_test.go -package=payment

// Gateway creates PIX charges and reads their status. It never touches storage.
type Gateway interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	GetChargeStatus(ctx context.Context, chargeID string) (*ChargeStatus, error)
}

type mercadoPagoGateway struct {
	client          *mercadopago.Client
	notificationURL string
	expiration      time.Duration
	now             func() time.Time
}

func NewMercadoPagoGateway(cfg *config.Config, client *mercadopago.Client) Gateway {
	return &mercadoPagoGateway{
		client:          client,
		notificationURL: cfg.MercadoPago.NotificationURL,
		expiration:      cfg.MercadoPago.PixExpiration,
		now:             time.Now,
	}
}

func providerError(msg string, err error) error {
	if errors.Is(err, mercadopago.ErrNotFound) {
		return errutil.NotFound("charge not found", err)
	}
	return errutil.BadGateway(msg, err)
}

func (g *mercadoPagoGateway) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	if !req.Amount.IsPositive() {
		return nil, errutil.ValidationFailed("amount must be positive", nil,
			errutil.WithDetails(errutil.Detail{Field: "amount", Message: "must be > 0"}))
	}

	body := mercadopago.CreatePaymentRequest{
		TransactionAmount: req.Amount.Round(2).InexactFloat64(),
		Description:       req.Description,
		PaymentMethodID:   mercadopago.PaymentMethodPix,
		Payer: mercadopago.Payer{
			Email:     req.Payer.Email,
			FirstName: req.Payer.FirstName,
			LastName:  req.Payer.LastName,
		},
		ExternalReference: req.ExternalReference,
		NotificationURL:   g.notificationURL,
	}
	if g.expiration > 0 {
		body.DateOfExpiration = mercadopago.ExpiresAt(g.now().Add(g.expiration))
	}

	payment, err := g.client.CreatePayment(ctx, body)
	if err != nil {
		zap.L().Error("failed to create pix charge", zap.String("external_reference", req.ExternalReference), zap.Error(err))
		return nil, providerError("failed to create pix charge", err)
	}

	return &Charge{
		ID:           strconv.FormatInt(payment.ID, 10),
		Status:       payment.Status,
		QRCode:       payment.PointOfInteraction.TransactionData.QRCode,
		QRCodeBase64: payment.PointOfInteraction.TransactionData.QRCodeBase64,
		ExpiresAt:    payment.DateOfExpiration,
	}, nil
}

func (g *mercadoPagoGateway) GetChargeStatus(ctx context.Context, chargeID string) (*ChargeStatus, error) {
	payment, err := g.client.GetPayment(ctx, chargeID)
	if err != nil {
		return nil, providerError("failed to get pix charge", err)
	}

	return &ChargeStatus{
		ID:         strconv.FormatInt(payment.ID, 10),
		Status:     payment.Status,
		ApprovedAt: payment.DateApproved,
	}, nil
}
