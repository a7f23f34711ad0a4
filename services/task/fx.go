package task

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

func RegisterRoutes(engine *gin.Engine, h *Handler) {
	g := engine.Group("/api/billing/cron")
	g.Any("/generate-invoices", h.GenerateInvoices)
	g.Any("/reconcile", h.Reconcile)
}

var Module = fx.Module("task.module",
	fx.Provide(NewRunner),
)

// Server exposes the cron trigger endpoints on the API.
var Server = fx.Module("task.server",
	Module,
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)

// Worker consumes the billing tasks and schedules them.
var WorkerModule = fx.Module("task.worker",
	Module,
	fx.Provide(NewWorker, NewScheduler),
	fx.Invoke(RegisterHandlers, StartScheduler),
)
