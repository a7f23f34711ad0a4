package main

import (
	"log"
	"os"

	"barbershop-billing/pkg/config"
	"barbershop-billing/pkg/db"
	"barbershop-billing/pkg/featureflags"
	"barbershop-billing/pkg/gen"
	"barbershop-billing/pkg/hashistack/secretmanager"
	"barbershop-billing/pkg/logger"
	"barbershop-billing/pkg/otelcol"
	"barbershop-billing/pkg/profiling"
	"barbershop-billing/pkg/redis"
	"barbershop-billing/pkg/sequence"
	pkgtask "barbershop-billing/pkg/task"
	"barbershop-billing/services/appointment"
	"barbershop-billing/services/freetrial"
	"barbershop-billing/services/invoice"
	"barbershop-billing/services/payment"
	"barbershop-billing/services/task"
	"barbershop-billing/services/tenant"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	opts := []fx.Option{
		config.Select(),
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		gen.Module,
		sequence.Module,
		featureflags.Module,
		pkgtask.Client,
		pkgtask.Server,
		tenant.Module,
		freetrial.Module,
		appointment.Module,
		invoice.Module,
		payment.Module,
		task.WorkerModule,
		fxLogger,
	}

	if os.Getenv("VAULT_ADDR") != "" {
		opts = append(opts, secretmanager.Module)
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
