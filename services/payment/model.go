package payment

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Payer struct {
	Email     string `json:"email" binding:"required,email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type ChargeRequest struct {
	Amount            decimal.Decimal `json:"amount"`
	Description       string          `json:"description" binding:"required"`
	Payer             Payer           `json:"payer"`
	ExternalReference string          `json:"-"`
}

// Charge is a PIX charge as created by the provider.
type Charge struct {
	ID           string     `json:"id"`
	Status       string     `json:"status"`
	QRCode       string     `json:"qr_code"`
	QRCodeBase64 string     `json:"qr_code_base64"`
	ExpiresAt    *time.Time `json:"expires_at"`
}

type ChargeStatus struct {
	ID         string
	Status     string
	ApprovedAt *time.Time
}

type InvoiceChargeRequest struct {
	Payer Payer `json:"payer"`
}

// Notification is one webhook delivery.
type Notification struct {
	ChargeID  string
	Type      string
	Action    string
	RequestID string
	Signature string
	Payload   []byte
}

type Outcome string

var (
	OutcomePaid      Outcome = "paid"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeUnmatched Outcome = "unmatched"
)

type NotificationResult struct {
	Received  bool    `json:"received"`
	Outcome   Outcome `json:"outcome"`
	Status    string  `json:"status,omitempty"`
	InvoiceID string  `json:"invoice_id,omitempty"`
}

// Event is the audit row of a webhook delivery.
type Event struct {
	ID                string         `gorm:"column:id;primaryKey"`
	Provider          string         `gorm:"column:provider;type:varchar(32)"`
	ExternalPaymentID string         `gorm:"column:external_payment_id;index;type:varchar(64)"`
	Type              string         `gorm:"column:type;type:varchar(64)"`
	Action            string         `gorm:"column:action;type:varchar(64)"`
	RequestID         string         `gorm:"column:request_id;type:varchar(128)"`
	ProviderStatus    string         `gorm:"column:provider_status;type:varchar(32)"`
	Outcome           string         `gorm:"column:outcome;type:varchar(32)"`
	InvoiceID         string         `gorm:"column:invoice_id;index"`
	Error             string         `gorm:"column:error;type:text"`
	Payload           datatypes.JSON `gorm:"column:payload"`
	CreatedAt         time.Time      `gorm:"column:created_at"`
}

func (Event) TableName() string {
	return "platform_payment_events"
}

type ReconcileSummary struct {
	Checked int `json:"checked"`
	Paid    int `json:"paid"`
	Errors  int `json:"errors"`
}
