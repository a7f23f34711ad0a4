package mercadopago

import (
	"fmt"
	"time"
)

const (
	StatusPending    = "pending"
	StatusApproved   = "approved"
	StatusAuthorized = "authorized"
	StatusInProcess  = "in_process"
	StatusRejected   = "rejected"
	StatusCancelled  = "cancelled"
	StatusRefunded   = "refunded"

	PaymentMethodPix = "pix"
)

// expirationLayout is the timestamp format accepted by date_of_expiration.
const expirationLayout = "2006-01-02T15:04:05.000-07:00"

type Payer struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

type CreatePaymentRequest struct {
	TransactionAmount float64 `json:"transaction_amount"`
	Description       string  `json:"description"`
	PaymentMethodID   string  `json:"payment_method_id"`
	Payer             Payer   `json:"payer"`
	ExternalReference string  `json:"external_reference,omitempty"`
	NotificationURL   string  `json:"notification_url,omitempty"`
	DateOfExpiration  string  `json:"date_of_expiration,omitempty"`
}

// ExpiresAt formats t for CreatePaymentRequest.DateOfExpiration.
func ExpiresAt(t time.Time) string {
	return t.Format(expirationLayout)
}

type TransactionData struct {
	QRCode       string `json:"qr_code"`
	QRCodeBase64 string `json:"qr_code_base64"`
	TicketURL    string `json:"ticket_url"`
}

type PointOfInteraction struct {
	Type            string          `json:"type"`
	TransactionData TransactionData `json:"transaction_data"`
}

type Payment struct {
	ID                 int64              `json:"id"`
	Status             string             `json:"status"`
	StatusDetail       string             `json:"status_detail"`
	TransactionAmount  float64            `json:"transaction_amount"`
	Description        string             `json:"description"`
	ExternalReference  string             `json:"external_reference"`
	DateCreated        *time.Time         `json:"date_created"`
	DateApproved       *time.Time         `json:"date_approved"`
	DateOfExpiration   *time.Time         `json:"date_of_expiration"`
	PointOfInteraction PointOfInteraction `json:"point_of_interaction"`
}

type Cause struct {
	Code        any    `json:"code"`
	Description string `json:"description"`
}

// APIError is a non-2xx answer from the API. Body keeps the raw payload.
type APIError struct {
	StatusCode int     `json:"-"`
	Message    string  `json:"message"`
	Code       string  `json:"error"`
	Cause      []Cause `json:"cause"`
	Body       string  `json:"-"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("mercadopago: status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("mercadopago: status %d: %s (%s)", e.StatusCode, e.Message, e.Body)
}
