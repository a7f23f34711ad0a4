package mercadopago

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"barbershop-billing/pkg/config"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("mercadopago: payment not found")

var Module = fx.Module("mercadopago", fx.Provide(New))

// Client talks to the Mercado Pago payments API.
type Client struct {
	http *resty.Client
}

func New(cfg *config.Config) *Client {
	return NewWithClient(cfg.MercadoPago, resty.New())
}

func NewWithClient(cfg config.MercadoPagoConfig, rc *resty.Client) *Client {
	rc.SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.AccessToken).
		SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		rc.SetTimeout(cfg.Timeout)
	}

	return &Client{http: rc}
}

func asAPIError(resp *resty.Response) error {
	apiErr, _ := resp.Error().(*APIError)
	if apiErr == nil {
		apiErr = &APIError{}
	}
	apiErr.StatusCode = resp.StatusCode()
	apiErr.Body = string(resp.Body())

	if resp.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, apiErr.Body)
	}
	return apiErr
}

// CreatePayment posts a new payment. Every call carries a fresh
// X-Idempotency-Key, callers that retry must dedupe on their side.
func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error) {
	var out Payment
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Idempotency-Key", uuid.NewString()).
		SetBody(req).
		SetResult(&out).
		SetError(&APIError{}).
		Post("/v1/payments")
	if err != nil {
		zap.L().Error("mercadopago create payment failed", zap.Error(err))
		return nil, err
	}

	if resp.IsError() {
		return nil, asAPIError(resp)
	}

	return &out, nil
}

func (c *Client) GetPayment(ctx context.Context, id string) (*Payment, error) {
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return nil, fmt.Errorf("%w: invalid id %q", ErrNotFound, id)
	}

	var out Payment
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&out).
		SetError(&APIError{}).
		Get("/v1/payments/{id}")
	if err != nil {
		zap.L().Error("mercadopago get payment failed", zap.String("payment_id", id), zap.Error(err))
		return nil, err
	}

	if resp.IsError() {
		return nil, asAPIError(resp)
	}

	return &out, nil
}
