package task

import (
	"context"
	"fmt"

	"barbershop-billing/pkg/errutil"
	"barbershop-billing/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type Worker struct {
	runner *Runner
}

func NewWorker(runner *Runner) *Worker {
	return &Worker{runner: runner}
}

// HandleGenerateInvoices runs the monthly batch from the queue. Tenant level
// failures are part of the result, so only infrastructure errors are retried.
func (w *Worker) HandleGenerateInvoices(ctx context.Context, t *asynq.Task) error {
	result, err := w.runner.Run(ctx)
	if err != nil {
		if errutil.IsAlreadyExists(err) {
			zap.L().Info("billing run already in progress, skipping", zap.Error(err))
			return nil
		}
		zap.L().Error("billing run failed", zap.String("task_type", t.Type()), zap.Error(err))
		return err
	}

	if result.Summary.Errors > 0 {
		zap.L().Warn("billing run finished with tenant errors",
			zap.String("period", result.Period),
			zap.Int("errors", result.Summary.Errors),
		)
	}
	return nil
}

func (w *Worker) HandleReconcile(ctx context.Context, t *asynq.Task) error {
	summary, err := w.runner.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("reconcile pix charges: %w", err)
	}
	zap.L().Info("pix reconcile task done", zap.String("task_type", t.Type()), zap.Int("paid", summary.Paid))
	return nil
}

func RegisterHandlers(mux *asynq.ServeMux, w *Worker) {
	mux.HandleFunc(taskname.BillingInvoicesGenerate, w.HandleGenerateInvoices)
	mux.HandleFunc(taskname.BillingPixReconcile, w.HandleReconcile)
}
