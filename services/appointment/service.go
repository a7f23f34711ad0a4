package appointment

import (
	"context"
	"time"

	"barbershop-billing/pkg/db/option"
	"barbershop-billing/pkg/errutil"
	"barbershop-billing/pkg/repository"

	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("barbershop-billing/services/appointment")

type Service struct {
	repo repository.Repository[Appointment]
}

type Params struct {
	fx.In
	DB *gorm.DB
}

func NewService(p Params) *Service {
	return &Service{
		repo: repository.ProvideStore[Appointment](p.DB),
	}
}

// ListServiced returns the serviced appointments of a tenant dated within
// [from, to], both inclusive.
func (s *Service) ListServiced(ctx context.Context, tenantID string, from, to time.Time) ([]*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.ListServiced")
	defer span.End()

	out, err := s.repo.Find(ctx, &Appointment{TenantID: tenantID, Status: Serviced},
		option.WithWhere("date >= ? AND date <= ?", from, to),
		option.WithSortBy(option.QuerySortBy{SortBy: "date", OrderBy: "asc", Allow: map[string]bool{"date": true}}),
	)
	if err != nil {
		zap.L().Error("failed to list serviced appointments",
			zap.String("tenant_id", tenantID),
			zap.Time("from", from),
			zap.Time("to", to),
			zap.Error(err),
		)
		return nil, errutil.Internal("failed to list appointments", err)
	}

	return out, nil
}
