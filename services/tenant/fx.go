package tenant

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

func RegisterRoutes(engine *gin.Engine, h *Handler) {
	engine.PUT("/api/billing/tenants/:id/platform-fee", h.UpdatePlatformFee)
}

var Module = fx.Module("tenant.module",
	fx.Provide(
		NewService,
	),
)

var Server = fx.Module("tenant.server",
	Module,
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
