package task

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"barbershop-billing/pkg/config"
	"barbershop-billing/pkg/errutil"
	"barbershop-billing/pkg/rediskey"
	"barbershop-billing/pkg/taskname"
	"barbershop-billing/services/invoice"
	"barbershop-billing/services/payment"
	"barbershop-billing/services/tenant"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("barbershop-billing/services/task")

const runLockTTL = 30 * time.Minute

type TenantLister interface {
	ListActiveTenants(ctx context.Context) ([]*tenant.Tenant, error)
}

type InvoiceCreator interface {
	CreateInvoice(ctx context.Context, req invoice.CreateInvoiceRequest) (*invoice.CreateResult, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context) (*payment.ReconcileSummary, error)
}

// Runner bills every active tenant for the previous month.
type Runner struct {
	db         *gorm.DB
	tenants    TenantLister
	invoices   InvoiceCreator
	reconciler Reconciler
	locker     Locker
	node       *snowflake.Node
	startDay   int
	loc        *time.Location
	now        func() time.Time
}

type Params struct {
	fx.In
	DB       *gorm.DB
	Tenants  *tenant.Service
	Invoices *invoice.Service
	Payments *payment.Service
	Redis    *redis.Client `optional:"true"`
	Node     *snowflake.Node
	Config   *config.Config
}

func NewRunner(p Params) *Runner {
	r := &Runner{
		db:         p.DB,
		tenants:    p.Tenants,
		invoices:   p.Invoices,
		reconciler: p.Payments,
		node:       p.Node,
		startDay:   p.Config.Billing.InvoiceStartDay,
		loc:        p.Config.Location(),
		now:        time.Now,
	}
	if p.Redis != nil {
		r.locker = NewRedisLocker(p.Redis)
	}
	if r.startDay <= 0 {
		r.startDay = 5
	}
	return r
}

// previousMonth returns the calendar month before the one containing t.
func previousMonth(t time.Time) (year, month int) {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	prev := first.AddDate(0, -1, 0)
	return prev.Year(), int(prev.Month())
}

// Run executes the monthly batch. Before the start day it returns a skipped
// result and touches nothing. A failing tenant is recorded and the loop goes
// on; only failing to list tenants aborts the run.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	ctx, span := tracer.Start(ctx, "task.Run")
	defer span.End()

	now := r.now().In(r.loc)
	if now.Day() < r.startDay {
		msg := fmt.Sprintf("invoices are generated from day %d of the month, today is day %d", r.startDay, now.Day())
		zap.L().Info("billing run skipped", zap.Int("day", now.Day()), zap.Int("start_day", r.startDay))
		batchRuns.WithLabelValues("skipped").Inc()
		return &RunResult{Success: true, Skipped: true, Message: msg, Results: []TenantResult{}}, nil
	}

	year, month := previousMonth(now)
	period := fmt.Sprintf("%04d-%02d", year, month)

	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
		zap.String("period", period),
	)

	if r.locker != nil {
		release, ok, err := r.locker.Acquire(ctx, rediskey.BuildBillingRunKey(year, month), runLockTTL)
		if err != nil {
			zapLog.Error("failed to acquire run lock", zap.Error(err))
			return nil, errutil.Internal("failed to acquire run lock", err)
		}
		if !ok {
			batchRuns.WithLabelValues("locked").Inc()
			return nil, errutil.Conflict(fmt.Sprintf("billing run for %s already in progress", period), nil)
		}
		defer release()
	}

	job := r.startJob(ctx, period)

	tenants, err := r.tenants.ListActiveTenants(ctx)
	if err != nil {
		zapLog.Error("failed to list active tenants", zap.Error(err))
		r.finishJob(ctx, job, nil, err)
		batchRuns.WithLabelValues("failed").Inc()
		return nil, err
	}

	result := &RunResult{Period: period, Results: make([]TenantResult, 0, len(tenants))}
	for _, t := range tenants {
		if err := ctx.Err(); err != nil {
			r.finishJob(ctx, job, result, err)
			batchRuns.WithLabelValues("failed").Inc()
			return nil, errutil.Internal("billing run interrupted", err)
		}

		res := r.billTenant(ctx, t, year, month)
		result.Results = append(result.Results, res)
		result.Summary.Total++
		if res.Success {
			result.Summary.Success++
		} else {
			result.Summary.Errors++
		}
		if res.Created {
			result.Summary.Created++
		}
	}

	result.Success = true
	result.Message = fmt.Sprintf("processed %d tenants for %s: %d invoices created, %d errors",
		result.Summary.Total, period, result.Summary.Created, result.Summary.Errors)
	r.finishJob(ctx, job, result, nil)
	batchRuns.WithLabelValues("success").Inc()

	zapLog.Info("billing run finished",
		zap.Int("total", result.Summary.Total),
		zap.Int("success", result.Summary.Success),
		zap.Int("errors", result.Summary.Errors),
		zap.Int("created", result.Summary.Created),
	)
	return result, nil
}

func (r *Runner) billTenant(ctx context.Context, t *tenant.Tenant, year, month int) (res TenantResult) {
	res = TenantResult{TenantID: t.ID, TenantName: t.Name}

	defer func() {
		if rec := recover(); rec != nil {
			zap.L().Error("panic while billing tenant", zap.String("tenant_id", t.ID), zap.Any("panic", rec))
			res.Success = false
			res.Created = false
			res.Message = fmt.Sprintf("panic: %v", rec)
		}
	}()

	out, err := r.invoices.CreateInvoice(ctx, invoice.CreateInvoiceRequest{
		TenantID:      t.ID,
		Month:         month,
		Year:          year,
		PaymentMethod: invoice.MethodPix,
	})
	switch {
	case errutil.IsAlreadyExists(err):
		res.Success = true
		res.Message = "invoice already exists"
	case err != nil:
		zap.L().Warn("failed to bill tenant", zap.String("tenant_id", t.ID), zap.Error(err))
		res.Message = err.Error()
	default:
		res.Success = true
		res.Created = out.Created
		res.Message = out.Message
		if out.Invoice != nil {
			res.InvoiceID = out.Invoice.ID
		}
	}
	return res
}

func (r *Runner) startJob(ctx context.Context, period string) *Job {
	if r.db == nil {
		return nil
	}
	now := r.now()
	job := &Job{
		ID:        r.node.Generate().String(),
		Name:      taskname.BillingInvoicesGenerate,
		Period:    period,
		Status:    JobRunning,
		StartedAt: &now,
	}
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		zap.L().Error("failed to record job", zap.String("period", period), zap.Error(err))
		return nil
	}
	return job
}

func (r *Runner) finishJob(ctx context.Context, job *Job, result *RunResult, runErr error) {
	if job == nil {
		return
	}

	updates := map[string]any{
		"status":       JobSuccess,
		"completed_at": r.now(),
	}
	if runErr != nil {
		updates["status"] = JobFailed
		updates["error_msg"] = runErr.Error()
	}
	if result != nil {
		if b, err := json.Marshal(result.Summary); err == nil {
			updates["metadata"] = datatypes.JSON(b)
		}
	}

	if err := r.db.WithContext(context.WithoutCancel(ctx)).Model(&Job{}).Where("id = ?", job.ID).Updates(updates).Error; err != nil {
		zap.L().Error("failed to update job", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// Reconcile settles approved PIX charges that never produced a webhook.
func (r *Runner) Reconcile(ctx context.Context) (*payment.ReconcileSummary, error) {
	ctx, span := tracer.Start(ctx, "task.Reconcile")
	defer span.End()

	return r.reconciler.Reconcile(ctx)
}
