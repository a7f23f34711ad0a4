package tenant

import (
	"context"

	"barbershop-billing/pkg/db/option"
	"barbershop-billing/pkg/errutil"
	"barbershop-billing/pkg/repository"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("barbershop-billing/services/tenant")

type Service struct {
	repo repository.Repository[Tenant]
}

type ServiceParams struct {
	fx.In
	DB *gorm.DB
}

func NewService(p ServiceParams) *Service {
	return &Service{
		repo: repository.ProvideStore[Tenant](p.DB),
	}
}

func (s *Service) GetTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	ctx, span := tracer.Start(ctx, "tenant.GetTenant")
	defer span.End()

	traceOpt := []zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
		zap.String("tenant_id", tenantID),
	}
	zapLog := zap.L().With(traceOpt...)

	if tenantID == "" {
		return nil, errutil.BadRequest("tenant_id is required", nil)
	}

	tenant, err := s.repo.FindOne(ctx, &Tenant{ID: tenantID})
	if err != nil {
		zapLog.Error("failed to get tenant", zap.Error(err))
		return nil, errutil.Internal("failed to get tenant", err)
	}

	if tenant == nil {
		return nil, errutil.NotFound("tenant not found", nil)
	}

	return tenant, nil
}

// ListActiveTenants returns every tenant flagged active, oldest first.
func (s *Service) ListActiveTenants(ctx context.Context) ([]*Tenant, error) {
	ctx, span := tracer.Start(ctx, "tenant.ListActiveTenants")
	defer span.End()

	tenants, err := s.repo.Find(ctx, &Tenant{Active: true}, option.WithSortBy(option.QuerySortBy{
		SortBy:  "created_at",
		OrderBy: "asc",
		Allow:   map[string]bool{"created_at": true},
	}))
	if err != nil {
		zap.L().Error("failed to list active tenants", zap.Error(err))
		return nil, errutil.Internal("failed to list active tenants", err)
	}

	return tenants, nil
}

// UpdatePlatformFee changes the per-appointment rate. Invoices already issued
// keep the rate they were created with.
func (s *Service) UpdatePlatformFee(ctx context.Context, tenantID string, fee decimal.Decimal) (*Tenant, error) {
	ctx, span := tracer.Start(ctx, "tenant.UpdatePlatformFee")
	defer span.End()

	if fee.IsNegative() {
		return nil, errutil.ValidationFailed("platform_fee must not be negative", nil,
			errutil.WithDetails(errutil.Detail{Field: "platform_fee", Message: "must be >= 0"}))
	}

	if _, err := s.GetTenant(ctx, tenantID); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, tenantID, map[string]any{
		"platform_fee": fee.Round(2),
	}); err != nil {
		zap.L().Error("failed to update platform fee", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, errutil.Internal("failed to update platform fee", err)
	}

	return s.GetTenant(ctx, tenantID)
}
