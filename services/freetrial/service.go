package freetrial

import (
	"context"
	"time"

	"barbershop-billing/pkg/config"
	"barbershop-billing/pkg/db/option"
	"barbershop-billing/pkg/errutil"
	"barbershop-billing/pkg/repository"
	"barbershop-billing/services/tenant"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("barbershop-billing/services/freetrial")

type TenantGetter interface {
	GetTenant(ctx context.Context, tenantID string) (*tenant.Tenant, error)
}

// Evaluator answers whether a tenant's calendar day is exempt from the
// platform fee.
//
// Two paths exist on purpose. The billing path (IsDateExempt, LoadExemptions)
// matches periods by date range only so that deactivating a period later
// never makes an already elapsed month billable. The display path (Status,
// IsInFreeTrial) only counts periods that are still active.
type Evaluator struct {
	tenants TenantGetter
	repo    repository.Repository[Period]
	node    *snowflake.Node
	loc     *time.Location
	now     func() time.Time
}

type Params struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Config  *config.Config
	Tenants *tenant.Service
}

func NewEvaluator(p Params) *Evaluator {
	return &Evaluator{
		tenants: p.Tenants,
		repo:    repository.ProvideStore[Period](p.DB),
		node:    p.Node,
		loc:     p.Config.Location(),
		now:     time.Now,
	}
}

func (e *Evaluator) today() time.Time {
	return DateOf(e.now().In(e.loc))
}

// LoadExemptions collects the global trial window and every period that
// overlaps [from, to], whatever its active flag.
func (e *Evaluator) LoadExemptions(ctx context.Context, tenantID string, from, to time.Time) (*Exemptions, error) {
	ctx, span := tracer.Start(ctx, "freetrial.LoadExemptions")
	defer span.End()

	t, err := e.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	return e.loadExemptions(ctx, t, DateOf(from), DateOf(to))
}

func (e *Evaluator) loadExemptions(ctx context.Context, t *tenant.Tenant, from, to time.Time) (*Exemptions, error) {
	ex := NewExemptions()
	if t.HasGlobalTrial() {
		ex.Add(*t.FreeTrialStartDate, *t.FreeTrialEndDate)
	}

	periods, err := e.repo.Find(ctx, &Period{TenantID: t.ID},
		option.WithWhere("start_date <= ? AND end_date >= ?", to, from),
	)
	if err != nil {
		zap.L().Error("failed to load free trial periods", zap.String("tenant_id", t.ID), zap.Error(err))
		return nil, errutil.Internal("failed to load free trial periods", err)
	}

	for _, p := range periods {
		ex.Add(p.StartDate, p.EndDate)
	}

	return ex, nil
}

// IsDateExempt is the billing check for a single day.
func (e *Evaluator) IsDateExempt(ctx context.Context, tenantID string, date time.Time) (bool, error) {
	ex, err := e.LoadExemptions(ctx, tenantID, date, date)
	if err != nil {
		return false, err
	}
	return ex.Covers(date), nil
}

// Status reports the display-facing trial state for today.
func (e *Evaluator) Status(ctx context.Context, tenantID string) (*Status, error) {
	ctx, span := tracer.Start(ctx, "freetrial.Status")
	defer span.End()

	t, err := e.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	today := e.today()
	status := &Status{TenantID: tenantID}

	if t.HasGlobalTrial() && newWindow(*t.FreeTrialStartDate, *t.FreeTrialEndDate).contains(today) {
		end := DateOf(*t.FreeTrialEndDate)
		status.InFreeTrial = true
		status.Source = SourceGlobal
		status.EndsOn = &end
	}

	periods, err := e.repo.Find(ctx, &Period{TenantID: tenantID, Active: true},
		option.WithWhere("start_date <= ? AND end_date >= ?", today, today),
	)
	if err != nil {
		zap.L().Error("failed to load active free trial periods", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, errutil.Internal("failed to load free trial periods", err)
	}

	for _, p := range periods {
		if !p.Active || !newWindow(p.StartDate, p.EndDate).contains(today) {
			continue
		}
		end := DateOf(p.EndDate)
		if status.EndsOn == nil || end.After(*status.EndsOn) {
			if !status.InFreeTrial {
				status.Source = SourcePeriod
			}
			status.InFreeTrial = true
			status.EndsOn = &end
		}
	}

	if status.EndsOn != nil {
		status.DaysRemaining = int(status.EndsOn.Sub(today).Hours()/24) + 1
	}

	return status, nil
}

// IsInFreeTrial is the display check used by the delinquency gate.
func (e *Evaluator) IsInFreeTrial(ctx context.Context, tenantID string) (bool, error) {
	status, err := e.Status(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return status.InFreeTrial, nil
}

func (e *Evaluator) CreatePeriod(ctx context.Context, tenantID string, req CreatePeriodRequest) (*Period, error) {
	ctx, span := tracer.Start(ctx, "freetrial.CreatePeriod")
	defer span.End()

	start, err := ParseDate(req.StartDate)
	if err != nil {
		return nil, errutil.ValidationFailed("invalid start_date", err,
			errutil.WithDetails(errutil.Detail{Field: "start_date", Message: "expected YYYY-MM-DD"}))
	}
	end, err := ParseDate(req.EndDate)
	if err != nil {
		return nil, errutil.ValidationFailed("invalid end_date", err,
			errutil.WithDetails(errutil.Detail{Field: "end_date", Message: "expected YYYY-MM-DD"}))
	}
	if end.Before(start) {
		return nil, errutil.ValidationFailed("end_date must not be before start_date", nil)
	}

	if _, err := e.tenants.GetTenant(ctx, tenantID); err != nil {
		return nil, err
	}

	period := &Period{
		ID:        e.node.Generate().String(),
		TenantID:  tenantID,
		StartDate: start,
		EndDate:   end,
		Reason:    req.Reason,
		Active:    true,
	}
	if err := e.repo.Create(ctx, period); err != nil {
		zap.L().Error("failed to create free trial period", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, errutil.Internal("failed to create free trial period", err)
	}

	return period, nil
}

func (e *Evaluator) ListPeriods(ctx context.Context, tenantID string) ([]*Period, error) {
	periods, err := e.repo.Find(ctx, &Period{TenantID: tenantID}, option.WithSortBy(option.QuerySortBy{
		SortBy:  "start_date",
		OrderBy: "desc",
		Allow:   map[string]bool{"start_date": true},
	}))
	if err != nil {
		return nil, errutil.Internal("failed to list free trial periods", err)
	}
	return periods, nil
}

// DeactivatePeriod hides a period from the display check. Months it already
// covered stay exempt for billing.
func (e *Evaluator) DeactivatePeriod(ctx context.Context, tenantID, periodID string) error {
	period, err := e.repo.FindOne(ctx, &Period{ID: periodID, TenantID: tenantID})
	if err != nil {
		return errutil.Internal("failed to get free trial period", err)
	}
	if period == nil {
		return errutil.NotFound("free trial period not found", nil)
	}

	if err := e.repo.Update(ctx, periodID, map[string]any{"active": false}); err != nil {
		return errutil.Internal("failed to deactivate free trial period", err)
	}
	return nil
}
