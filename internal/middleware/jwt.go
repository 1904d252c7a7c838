package middleware // middleware holds the HTTP middleware shared by the staff and public routes

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/convention-desk/internal/utils"
)

// Context keys set by JWTAuth.
const (
	CtxStaffID   = "user_id"
	CtxStaffName = "staff_name"
	CtxRole      = "role"
)

// JWTAuth returns an Echo middleware that validates a Bearer staff access
// token and injects the subject, name and role claims into the request
// context.  Handlers read them back with StaffFrom.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// A valid header starts with "Bearer " followed by the JWT.
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

			claims, err := utils.ParseAccessToken(secret, raw, nil)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			c.Set(CtxStaffID, claims.Subject)
			c.Set(CtxStaffName, claims.Name)
			c.Set(CtxRole, claims.Role)
			return next(c)
		}
	}
}
