package task

import (
	"context"
	"errors"
	"time"

	"barbershop-billing/pkg/config"
	pkgtask "barbershop-billing/pkg/task"
	"barbershop-billing/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	dailyRunHour      = 6
	reconcileInterval = time.Hour
)

// Scheduler enqueues the invoice batch once a day and the PIX reconcile
// every hour. Re-running the batch after the start day is safe since
// existing invoices are skipped.
type Scheduler struct {
	enqueuer pkgtask.Enqueuer
	loc      *time.Location
	now      func() time.Time
}

func NewScheduler(enqueuer pkgtask.Enqueuer, cfg *config.Config) *Scheduler {
	return &Scheduler{
		enqueuer: enqueuer,
		loc:      cfg.Location(),
		now:      time.Now,
	}
}

// StartScheduler runs the loops for the app lifetime.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.runDaily(ctx)
			go s.runHourly(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func (s *Scheduler) runDaily(ctx context.Context) {
	zap.L().Info("[Scheduler] started billing scheduler")

	for {
		now := s.now().In(s.loc)
		next := nextRunTime(now, dailyRunHour, 0)

		sleepDuration := next.Sub(now)
		zap.L().Info("[Scheduler] next run scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", sleepDuration),
		)
		select {
		case <-time.After(sleepDuration):
			s.EnqueueGenerateInvoices(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) runHourly(ctx context.Context) {
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.EnqueueReconcile(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) EnqueueGenerateInvoices(ctx context.Context) {
	s.enqueue(ctx, asynq.NewTask(taskname.BillingInvoicesGenerate, nil),
		asynq.Queue(taskname.QueueCritical),
		asynq.Unique(12*time.Hour),
		asynq.MaxRetry(0),
	)
}

func (s *Scheduler) EnqueueReconcile(ctx context.Context) {
	s.enqueue(ctx, asynq.NewTask(taskname.BillingPixReconcile, nil),
		asynq.Queue(taskname.QueueDefault),
		asynq.Unique(reconcileInterval),
		asynq.MaxRetry(0),
	)
}

func (s *Scheduler) enqueue(ctx context.Context, t *asynq.Task, opts ...asynq.Option) {
	info, err := s.enqueuer.Enqueue(ctx, t, opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			zap.L().Info("[Scheduler] task already queued", zap.String("task_type", t.Type()))
			return
		}
		zap.L().Error("[Scheduler] failed to enqueue task", zap.String("task_type", t.Type()), zap.Error(err))
		return
	}
	zap.L().Info("[Scheduler] task enqueued",
		zap.String("task_type", t.Type()),
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
	)
}

// nextRunTime returns the next occurrence of hour:minute after now.
func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
