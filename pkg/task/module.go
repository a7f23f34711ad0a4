package task

import (
	"context"
	"fmt"

	"barbershop-billing/pkg/config"
	"barbershop-billing/pkg/taskname"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var failedTasks = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "billing_task_failures_total",
	Help: "Billing tasks that exhausted their retries, by task type.",
}, []string{"task_type"})

// Client provides the Enqueuer used to push billing tasks.
var Client = fx.Module("asynq:client",
	fx.Provide(NewClient, NewEnqueuer),
)

// Server runs the asynq worker. Handlers are registered on the provided
// ServeMux before the app starts.
var Server = fx.Module("asynq:server",
	fx.Provide(asynq.NewServeMux),
	fx.Invoke(RunServer),
)

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}
}

func NewClient(lc fx.Lifecycle, cfg *config.Config) (*asynq.Client, error) {
	client := asynq.NewClient(redisOpt(cfg))
	if err := client.Ping(); err != nil {
		return nil, fmt.Errorf("asynq ping %s: %w", cfg.Redis.Addr, err)
	}
	zap.L().Info("[Asynq] client connected", zap.String("addr", cfg.Redis.Addr))

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func RunServer(lc fx.Lifecycle, cfg *config.Config, mux *asynq.ServeMux) {
	server := asynq.NewServer(redisOpt(cfg), asynq.Config{
		Concurrency:    4,
		RetryDelayFunc: asynq.DefaultRetryDelayFunc,
		Queues: map[string]int{
			taskname.QueueCritical: 6,
			taskname.QueueDefault:  3,
			taskname.QueueLow:      1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			if retried < maxRetry {
				zap.L().Warn("billing task failed, will retry", zap.String("task_type", t.Type()), zap.Int("retry", retried), zap.Error(err))
				return
			}
			failedTasks.WithLabelValues(t.Type()).Inc()
			zap.L().Error("billing task permanently failed", zap.String("task_type", t.Type()), zap.Error(err))
		}),
	})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if err := server.Start(mux); err != nil {
				return fmt.Errorf("start asynq server: %w", err)
			}
			zap.L().Info("[Asynq] worker started", zap.String("addr", cfg.Redis.Addr))
			return nil
		},
		OnStop: func(context.Context) error {
			server.Shutdown()
			return nil
		},
	})
}
