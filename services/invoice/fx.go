package invoice

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

func RegisterRoutes(engine *gin.Engine, h *Handler) {
	g := engine.Group("/api/billing")
	g.GET("/invoices", h.ListInvoices)
	g.POST("/invoices", h.CreateInvoice)
	g.GET("/invoices/preview", h.Preview)
	g.GET("/invoices/status", h.GetPaymentStatus)
	g.GET("/invoices/:id", h.GetInvoice)
	g.GET("/invoices/:id/wait", h.WaitPaid)
	g.GET("/tenants/:id/standing", h.Standing)
}

// ProvideGateMiddleware exposes the delinquency check to the shared engine.
func ProvideGateMiddleware(g *Gate) gin.HandlerFunc {
	return g.Middleware("/api/billing/")
}

var Module = fx.Module("invoice.module",
	fx.Provide(
		NewCalculator,
		NewService,
		NewGate,
		NewPoller,
	),
)

var Server = fx.Module("invoice.server",
	Module,
	fx.Provide(
		NewHandler,
		fx.Annotate(ProvideGateMiddleware, fx.ResultTags(`group:"http.middleware"`)),
	),
	fx.Invoke(RegisterRoutes),
)
