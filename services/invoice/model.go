package invoice

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

var (
	Pending PaymentStatus = "pending"
	Paid    PaymentStatus = "paid"
)

func (s PaymentStatus) String() string {
	switch s {
	case Pending, Paid:
		return string(s)
	default:
		return ""
	}
}

type PaymentMethod string

var (
	MethodPix    PaymentMethod = "pix"
	MethodManual PaymentMethod = "manual"
)

// Invoice is the monthly platform fee charged to one tenant. A tenant has at
// most one invoice per calendar month.
type Invoice struct {
	ID                 string          `gorm:"column:id;primaryKey" json:"id"`
	Code               string          `gorm:"column:code;uniqueIndex;type:varchar(32)" json:"code"`
	TenantID           string          `gorm:"column:tenant_id;not null;uniqueIndex:idx_platform_payments_period" json:"tenant_id"`
	Month              int             `gorm:"column:month;not null;uniqueIndex:idx_platform_payments_period" json:"month"`
	Year               int             `gorm:"column:year;not null;uniqueIndex:idx_platform_payments_period" json:"year"`
	AppointmentsCount  int             `gorm:"column:appointments_count;not null" json:"appointments_count"`
	PlatformFee        decimal.Decimal `gorm:"column:platform_fee;type:numeric(10,2);not null" json:"platform_fee"`
	TotalAmount        decimal.Decimal `gorm:"column:total_amount;type:numeric(12,2);not null" json:"total_amount"`
	PaymentStatus      PaymentStatus   `gorm:"column:payment_status;type:varchar(20);index;not null" json:"payment_status"`
	PaymentMethod      PaymentMethod   `gorm:"column:payment_method;type:varchar(20)" json:"payment_method"`
	PixQRCode          string          `gorm:"column:pix_qr_code;type:text" json:"pix_qr_code,omitempty"`
	PixQRCodeBase64    string          `gorm:"column:pix_qr_code_base64;type:text" json:"pix_qr_code_base64,omitempty"`
	PixQRCodeExpiresAt *time.Time      `gorm:"column:pix_qr_code_expires_at" json:"pix_qr_code_expires_at,omitempty"`
	ExternalPaymentID  string          `gorm:"column:external_payment_id;index;type:varchar(64)" json:"external_payment_id,omitempty"`
	PaymentDate        *time.Time      `gorm:"column:payment_date" json:"payment_date,omitempty"`
	CreatedAt          time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Invoice) TableName() string {
	return "platform_payments"
}

func (m *Invoice) IsPaid() bool {
	return m.PaymentStatus == Paid
}

// HasActiveCharge reports whether a PIX charge is attached and still payable at now.
func (m *Invoice) HasActiveCharge(now time.Time) bool {
	if m.ExternalPaymentID == "" || m.PixQRCode == "" {
		return false
	}
	return m.PixQRCodeExpiresAt == nil || m.PixQRCodeExpiresAt.After(now)
}

// Calculation partitions the serviced appointments of one tenant month.
// TotalCount is zero only when the month had no activity at all.
type Calculation struct {
	TenantID      string `json:"tenant_id"`
	Month         int    `json:"month"`
	Year          int    `json:"year"`
	BillableCount int    `json:"billable_count"`
	FreeCount     int    `json:"free_count"`
	TotalCount    int    `json:"total_count"`
}

type Preview struct {
	Calculation
	PlatformFee     decimal.Decimal `json:"platform_fee"`
	EstimatedAmount decimal.Decimal `json:"estimated_amount"`
	Currency        string          `json:"currency"`
	InvoiceExists   bool            `json:"invoice_exists"`
}

type NoOpReason string

var (
	ReasonNone           NoOpReason = ""
	ReasonNoAppointments NoOpReason = "no_appointments"
	ReasonAllFree        NoOpReason = "all_free"
)

// CreateResult is returned by CreateInvoice. When Created is false Reason
// tells why nothing was billed.
type CreateResult struct {
	Created     bool         `json:"created"`
	Reason      NoOpReason   `json:"reason,omitempty"`
	Message     string       `json:"message"`
	Invoice     *Invoice     `json:"invoice,omitempty"`
	Calculation *Calculation `json:"calculation"`
}

type CreateInvoiceRequest struct {
	TenantID      string        `json:"tenant_id" form:"tenant_id" binding:"required"`
	Month         int           `json:"month" form:"month" binding:"required,gte=1,lte=12"`
	Year          int           `json:"year" form:"year" binding:"required,gte=2000"`
	PaymentMethod PaymentMethod `json:"payment_method"`
}

type PreviewRequest struct {
	TenantID string `form:"tenant_id" binding:"required"`
	Month    int    `form:"month" binding:"required,gte=1,lte=12"`
	Year     int    `form:"year" binding:"required,gte=2000"`
}

// Charge holds the PIX data persisted on an invoice once a charge is created.
type Charge struct {
	ExternalPaymentID string
	QRCode            string
	QRCodeBase64      string
	ExpiresAt         *time.Time
}

// Decision is the outcome of the delinquency gate.
type Decision struct {
	TenantID        string     `json:"tenant_id"`
	Blocked         bool       `json:"blocked"`
	Reason          string     `json:"reason"`
	PendingInvoices []*Invoice `json:"pending_invoices"`
}
