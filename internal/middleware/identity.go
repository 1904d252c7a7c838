package middleware

import "github.com/labstack/echo/v4"

// Staff is the authenticated official behind a request.
type Staff struct {
	ID   string
	Name string
	Role string
}

// StaffFrom returns the official injected by JWTAuth.  ok is false on
// unauthenticated routes.
func StaffFrom(c echo.Context) (Staff, bool) {
	id, _ := c.Get(CtxStaffID).(string)
	if id == "" {
		return Staff{}, false
	}
	name, _ := c.Get(CtxStaffName).(string)
	role, _ := c.Get(CtxRole).(string)
	return Staff{ID: id, Name: name, Role: role}, true
}

// userID is the rate-limit identity: the staff id, or "anon".
func userID(c echo.Context) string {
	if s, ok := StaffFrom(c); ok {
		return s.ID
	}
	return "anon"
}
