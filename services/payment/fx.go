package payment

import (
	"barbershop-billing/pkg/mercadopago"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

func RegisterRoutes(engine *gin.Engine, h *Handler) {
	g := engine.Group("/api/billing")
	g.POST("/pix/charges", h.CreateCharge)
	g.POST("/pix/webhook", h.Webhook)
	g.POST("/invoices/:id/pix", h.ChargeInvoice)
}

var Module = fx.Module("payment.module",
	mercadopago.Module,
	fx.Provide(
		NewMercadoPagoGateway,
		NewService,
	),
)

var Server = fx.Module("payment.server",
	Module,
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
