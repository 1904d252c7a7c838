package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/convention-desk/internal/middleware"
	"github.com/iliyamo/convention-desk/internal/model"
)

// RegisterStaff registers the desk endpoints.  Lookups and transitions need
// a SCANNER or ADMIN token; token reset needs ADMIN.  Every staff route,
// login included, is rate limited.
func RegisterStaff(e *echo.Echo, d Deps) {
	limit := middleware.NewTokenBucket(d.RateLimit, d.Redis)

	e.POST("/v1/staff/login", d.Staff.Login, limit)

	g := e.Group(
		"/v1",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(model.RoleScanner, model.RoleAdmin),
		limit,
	)
	g.GET("/staff/me", d.Staff.Me)

	// ---- Lookup ----
	g.GET("/tickets", d.Tickets.ByEmail)
	g.GET("/tickets/:id", d.Tickets.Get)
	g.GET("/tickets/reference/:reference", d.Tickets.ByReference)

	// ---- Transitions ----
	g.POST("/checkin", d.Tickets.CheckIn)
	g.POST("/checkout", d.Tickets.CheckOut)
	g.POST("/collect", d.Tickets.Collect)
	g.POST("/tokens/redeem", d.Tickets.Redeem)

	admin := e.Group(
		"/v1/admin",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(model.RoleAdmin),
		limit,
	)
	admin.POST("/tokens/reset", d.Tickets.ResetToken)
}
