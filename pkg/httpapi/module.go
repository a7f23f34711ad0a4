package httpapi

import (
	"barbershop-billing/pkg/config"
	"barbershop-billing/pkg/health"
	"barbershop-billing/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewEngine),
	fx.Invoke(registerHealthEndpoint),
)

type EngineParams struct {
	fx.In
	Config      *config.Config
	Middlewares []gin.HandlerFunc `group:"http.middleware"`
}

// NewEngine builds the gin engine shared by every service module. Modules
// contribute request middleware through the "http.middleware" group so it
// is installed before any route is registered.
func NewEngine(p EngineParams) *gin.Engine {
	cfg := p.Config
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		middleware.Tenant(),
		middleware.Error(),
	)
	engine.Use(p.Middlewares...)

	return engine
}

func registerHealthEndpoint(engine *gin.Engine, h health.HealthService) {
	engine.GET("/healthz", h.Liveness)
	engine.GET("/readyz", h.Readiness)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
