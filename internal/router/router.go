package router // package router registers every HTTP route of the convention desk

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/convention-desk/internal/config"
	"github.com/iliyamo/convention-desk/internal/handler"
	"github.com/iliyamo/convention-desk/internal/metrics"
	"github.com/iliyamo/convention-desk/internal/middleware"
)

// Deps is everything the routes need.  Redis may be nil.
type Deps struct {
	DB        handler.Pinger
	Redis     *redis.Client
	JWTSecret string
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig

	Webhook *handler.WebhookHandler
	Intake  *handler.IntakeHandler
	Tickets *handler.TicketHandler
	Staff   *handler.StaffHandler
}

// New builds the echo instance with all routes registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Metrics())

	RegisterRoutes(e, d)
	RegisterPublic(e, d)
	RegisterStaff(e, d)
	return e
}

// RegisterRoutes registers the probes, the metrics endpoint and the payment
// webhook (plus its legacy alias).
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)
	if d.DB != nil {
		e.GET("/readyz", handler.Ready(d.DB))
	}
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	e.POST("/v1/payments/webhook", d.Webhook.Paystack)
	e.POST("/webhooks/paystack", d.Webhook.Paystack)
}

// RegisterPublic registers unauthenticated attendee endpoints: intake and
// pricing.  Quotes are served through the response cache.
func RegisterPublic(e *echo.Echo, d Deps) {
	e.POST("/v1/intake/:type", d.Intake.Create)
	e.GET("/v1/pricing/:type", d.Intake.Quote, middleware.NewRedisCache(d.Cache, d.Redis))
}
