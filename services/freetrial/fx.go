package freetrial

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

func RegisterRoutes(engine *gin.Engine, h *Handler) {
	g := engine.Group("/api/billing/tenants/:id")
	g.GET("/free-trial", h.GetStatus)
	g.GET("/free-trial-periods", h.ListPeriods)
	g.POST("/free-trial-periods", h.CreatePeriod)
	g.DELETE("/free-trial-periods/:period_id", h.DeactivatePeriod)
}

var Module = fx.Module("freetrial.module",
	fx.Provide(NewEvaluator),
)

var Server = fx.Module("freetrial.server",
	Module,
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
