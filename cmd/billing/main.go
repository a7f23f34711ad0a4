package main

import (
	"log"
	"os"

	"barbershop-billing/pkg/config"
	"barbershop-billing/pkg/db"
	"barbershop-billing/pkg/featureflags"
	"barbershop-billing/pkg/gen"
	"barbershop-billing/pkg/hashistack/secretmanager"
	"barbershop-billing/pkg/health"
	"barbershop-billing/pkg/httpapi"
	"barbershop-billing/pkg/logger"
	"barbershop-billing/pkg/otelcol"
	"barbershop-billing/pkg/profiling"
	"barbershop-billing/pkg/redis"
	"barbershop-billing/pkg/sequence"
	"barbershop-billing/pkg/server"
	"barbershop-billing/services/appointment"
	"barbershop-billing/services/freetrial"
	"barbershop-billing/services/invoice"
	"barbershop-billing/services/payment"
	"barbershop-billing/services/task"
	"barbershop-billing/services/tenant"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"
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
		health.Module,
		httpapi.Module,
		fx.Invoke(migrate),
		tenant.Server,
		freetrial.Server,
		appointment.Module,
		invoice.Server,
		payment.Server,
		task.Server,
		server.ProvideHTTPServer,
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

// migrate creates the billing tables when DATABASE.AUTO_MIGRATE is set.
func migrate(cfg *config.Config, conn *gorm.DB) error {
	if !cfg.Database.AutoMigrate {
		return nil
	}

	zap.L().Info("[DB] running auto migration")
	return conn.AutoMigrate(
		&tenant.Tenant{},
		&freetrial.Period{},
		&appointment.Appointment{},
		&invoice.Invoice{},
		&payment.Event{},
		&task.Job{},
	)
}
