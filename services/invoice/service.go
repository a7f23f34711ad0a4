package invoice

import (
	"context"
	"fmt"
	"time"

	"barbershop-billing/pkg/config"
	"barbershop-billing/pkg/db"
	"barbershop-billing/pkg/db/option"
	"barbershop-billing/pkg/db/pagination"
	"barbershop-billing/pkg/errutil"
	"barbershop-billing/pkg/repository"
	"barbershop-billing/pkg/sequence"
	"barbershop-billing/services/tenant"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("barbershop-billing/services/invoice")

type TenantGetter interface {
	GetTenant(ctx context.Context, tenantID string) (*tenant.Tenant, error)
}

type Service struct {
	db      *gorm.DB
	repo    repository.Repository[Invoice]
	calc    *Calculator
	tenants TenantGetter
	seq     sequence.Generator
	node    *snowflake.Node
	config  *config.Config
	now     func() time.Time
}

type ServiceParams struct {
	fx.In
	DB         *gorm.DB
	Calculator *Calculator
	Tenants    *tenant.Service
	Seq        sequence.Generator
	Node       *snowflake.Node
	Config     *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		repo:    repository.ProvideStore[Invoice](p.DB),
		calc:    p.Calculator,
		tenants: p.Tenants,
		seq:     p.Seq,
		node:    p.Node,
		config:  p.Config,
		now:     time.Now,
	}
}

func amountFor(count int, fee decimal.Decimal) decimal.Decimal {
	return fee.Mul(decimal.NewFromInt(int64(count))).Round(2)
}

func (s *Service) findPeriod(ctx context.Context, tenantID string, month, year int) (*Invoice, error) {
	return s.repo.FindOne(ctx, &Invoice{TenantID: tenantID, Month: month, Year: year})
}

// periodExists reads the period row straight from the store, after a unique
// violation tells us some row won the insert.
func (s *Service) periodExists(ctx context.Context, tenantID string, month, year int) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Invoice{}).
		Where("tenant_id = ? AND month = ? AND year = ?", tenantID, month, year).
		Count(&n).Error
	return n > 0, err
}

// Preview runs the calculator and prices it at the tenant's current fee
// without writing anything.
func (s *Service) Preview(ctx context.Context, tenantID string, month, year int) (*Preview, error) {
	ctx, span := tracer.Start(ctx, "invoice.Preview")
	defer span.End()

	t, err := s.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	calc, err := s.calc.Calculate(ctx, tenantID, month, year)
	if err != nil {
		return nil, err
	}

	existing, err := s.findPeriod(ctx, tenantID, month, year)
	if err != nil {
		return nil, errutil.Internal("failed to check existing invoice", err)
	}

	return &Preview{
		Calculation:     *calc,
		PlatformFee:     t.PlatformFee,
		EstimatedAmount: amountFor(calc.BillableCount, t.PlatformFee),
		Currency:        s.config.Billing.Currency,
		InvoiceExists:   existing != nil,
	}, nil
}

// CreateInvoice bills one tenant month. A second call for the same period
// fails with a conflict and writes nothing; the unique index on
// (tenant_id, month, year) covers concurrent callers that pass the
// existence check together.
func (s *Service) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*CreateResult, error) {
	ctx, span := tracer.Start(ctx, "invoice.CreateInvoice")
	defer span.End()

	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
		zap.String("tenant_id", req.TenantID),
		zap.Int("month", req.Month),
		zap.Int("year", req.Year),
	)

	if req.TenantID == "" {
		return nil, errutil.ValidationFailed("tenant_id is required", nil,
			errutil.WithDetails(errutil.Detail{Field: "tenant_id", Message: "required"}))
	}
	if err := validatePeriod(req.Month, req.Year); err != nil {
		return nil, err
	}

	method := req.PaymentMethod
	if method == "" {
		method = MethodPix
	}

	t, err := s.tenants.GetTenant(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	existing, err := s.findPeriod(ctx, req.TenantID, req.Month, req.Year)
	if err != nil {
		zapLog.Error("failed to check existing invoice", zap.Error(err))
		return nil, errutil.Internal("failed to check existing invoice", err)
	}
	if existing != nil {
		zapLog.Info("invoice already exists", zap.String("invoice_id", existing.ID))
		return nil, errutil.Conflict(fmt.Sprintf("invoice for %02d/%d already exists", req.Month, req.Year), nil)
	}

	calc, err := s.calc.Calculate(ctx, req.TenantID, req.Month, req.Year)
	if err != nil {
		return nil, err
	}

	if calc.BillableCount == 0 {
		result := &CreateResult{Calculation: calc}
		if calc.TotalCount == 0 {
			result.Reason = ReasonNoAppointments
			result.Message = "no serviced appointments in the period, nothing to bill"
		} else {
			result.Reason = ReasonAllFree
			result.Message = fmt.Sprintf("all %d serviced appointments fall in a free trial, nothing to bill", calc.TotalCount)
		}
		zapLog.Info("invoice not created", zap.String("reason", string(result.Reason)))
		return result, nil
	}

	code, err := s.seq.NextInvoiceCode(ctx, req.Year, req.Month)
	if err != nil {
		zapLog.Error("failed to generate invoice code", zap.Error(err))
		return nil, errutil.Internal("failed to generate invoice code", err)
	}

	inv := &Invoice{
		ID:                s.node.Generate().String(),
		Code:              code,
		TenantID:          req.TenantID,
		Month:             req.Month,
		Year:              req.Year,
		AppointmentsCount: calc.BillableCount,
		PlatformFee:       t.PlatformFee,
		TotalAmount:       amountFor(calc.BillableCount, t.PlatformFee),
		PaymentStatus:     Pending,
		PaymentMethod:     method,
	}

	if err := s.repo.Create(ctx, inv); err != nil {
		if db.IsUniqueViolation(err) {
			exists, lookupErr := s.periodExists(ctx, req.TenantID, req.Month, req.Year)
			if lookupErr == nil && exists {
				zapLog.Info("invoice created concurrently", zap.Error(err))
				return nil, errutil.Conflict(fmt.Sprintf("invoice for %02d/%d already exists", req.Month, req.Year), err)
			}
			zapLog.Error("unique violation without a period invoice", zap.String("code", code), zap.Error(err))
			return nil, errutil.Internal("failed to create invoice", err)
		}
		zapLog.Error("failed to create invoice", zap.Error(err))
		return nil, errutil.Internal("failed to create invoice", err)
	}

	invoicesCreated.Inc()
	zapLog.Info("invoice created",
		zap.String("invoice_id", inv.ID),
		zap.String("code", inv.Code),
		zap.Int("appointments", inv.AppointmentsCount),
		zap.String("total_amount", inv.TotalAmount.StringFixed(2)),
	)

	return &CreateResult{
		Created:     true,
		Message:     fmt.Sprintf("invoice %s created", inv.Code),
		Invoice:     inv,
		Calculation: calc,
	}, nil
}

func (s *Service) GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	if invoiceID == "" {
		return nil, errutil.BadRequest("id is required", nil)
	}

	inv, err := s.repo.FindOne(ctx, &Invoice{ID: invoiceID})
	if err != nil {
		return nil, errutil.Internal("failed to get invoice", err)
	}
	if inv == nil {
		return nil, errutil.NotFound("invoice not found", nil)
	}
	return inv, nil
}

func (s *Service) GetPaymentStatus(ctx context.Context, invoiceID string) (PaymentStatus, error) {
	inv, err := s.GetInvoice(ctx, invoiceID)
	if err != nil {
		return "", err
	}
	return inv.PaymentStatus, nil
}

// ListInvoices pages through a tenant's invoices, newest first.
func (s *Service) ListInvoices(ctx context.Context, tenantID string, page pagination.Pagination) ([]*Invoice, *pagination.PageInfo, error) {
	ctx, span := tracer.Start(ctx, "invoice.ListInvoices")
	defer span.End()

	if tenantID == "" {
		return nil, nil, errutil.ValidationFailed("tenant_id is required", nil)
	}

	limit := page.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > 250 {
		limit = 250
	}
	page.Limit = limit

	invoices, err := s.repo.Find(ctx, &Invoice{TenantID: tenantID}, option.ApplyPagination(page))
	if err != nil {
		zap.L().Error("failed to list invoices", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, nil, errutil.Internal("failed to list invoices", err)
	}

	out, info := pagination.BuildCursorPageInfo(invoices, limit, func(m *Invoice) pagination.Cursor {
		return pagination.Cursor{ID: m.ID, CreatedAt: m.CreatedAt.Format(time.RFC3339Nano)}
	})
	return out, info, nil
}

// ListOverdue returns the tenant's invoices for the given periods that are not paid.
func (s *Service) ListOverdue(ctx context.Context, tenantID string, periods []int) ([]*Invoice, error) {
	if len(periods) == 0 {
		return nil, nil
	}

	out, err := s.repo.Find(ctx, &Invoice{TenantID: tenantID},
		option.WithWhere("payment_status <> ?", Paid),
		option.WithWhere("(year * 100 + month) IN ?", periods),
		option.WithSortBy(option.QuerySortBy{SortBy: "year", OrderBy: "asc", Allow: map[string]bool{"year": true}}),
	)
	if err != nil {
		return nil, errutil.Internal("failed to list overdue invoices", err)
	}
	return out, nil
}

// ListAwaitingPayment returns pending invoices that carry a provider charge.
func (s *Service) ListAwaitingPayment(ctx context.Context) ([]*Invoice, error) {
	out, err := s.repo.Find(ctx, &Invoice{PaymentStatus: Pending},
		option.WithWhere("external_payment_id <> ''"),
	)
	if err != nil {
		return nil, errutil.Internal("failed to list invoices awaiting payment", err)
	}
	return out, nil
}

// AttachCharge stores the PIX charge on a pending invoice.
func (s *Service) AttachCharge(ctx context.Context, invoiceID string, charge Charge) (*Invoice, error) {
	ctx, span := tracer.Start(ctx, "invoice.AttachCharge")
	defer span.End()

	res := s.db.WithContext(ctx).Model(&Invoice{}).
		Where("id = ? AND payment_status = ?", invoiceID, Pending).
		Updates(map[string]any{
			"payment_method":         MethodPix,
			"pix_qr_code":            charge.QRCode,
			"pix_qr_code_base64":     charge.QRCodeBase64,
			"pix_qr_code_expires_at": charge.ExpiresAt,
			"external_payment_id":    charge.ExternalPaymentID,
		})
	if res.Error != nil {
		zap.L().Error("failed to attach charge", zap.String("invoice_id", invoiceID), zap.Error(res.Error))
		return nil, errutil.Internal("failed to attach charge", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, errutil.ValidationFailed("invoice is not pending", nil)
	}

	return s.GetInvoice(ctx, invoiceID)
}

// MarkPaid flags the invoice holding externalPaymentID as paid. Repeated
// calls leave the first payment date in place and report changed=false.
func (s *Service) MarkPaid(ctx context.Context, externalPaymentID string, paidAt time.Time) (*Invoice, bool, error) {
	ctx, span := tracer.Start(ctx, "invoice.MarkPaid")
	defer span.End()

	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
		zap.String("external_payment_id", externalPaymentID),
	)

	if externalPaymentID == "" {
		return nil, false, errutil.BadRequest("external payment id is required", nil)
	}

	res := s.db.WithContext(ctx).Model(&Invoice{}).
		Where("external_payment_id = ? AND payment_status <> ?", externalPaymentID, Paid).
		Updates(map[string]any{
			"payment_status": Paid,
			"payment_date":   paidAt,
		})
	if res.Error != nil {
		zapLog.Error("failed to mark invoice paid", zap.Error(res.Error))
		return nil, false, errutil.Internal("failed to mark invoice paid", res.Error)
	}

	inv, err := s.repo.FindOne(ctx, &Invoice{ExternalPaymentID: externalPaymentID})
	if err != nil {
		return nil, false, errutil.Internal("failed to get invoice", err)
	}
	if inv == nil {
		zapLog.Warn("no invoice for approved payment")
		return nil, false, errutil.NotFound("no invoice for payment", nil)
	}

	changed := res.RowsAffected > 0
	if changed {
		invoicesPaid.Inc()
		zapLog.Info("invoice paid", zap.String("invoice_id", inv.ID), zap.String("tenant_id", inv.TenantID))
	}

	return inv, changed, nil
}
