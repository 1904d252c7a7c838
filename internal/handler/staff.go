package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/convention-desk/internal/middleware"
	"github.com/iliyamo/convention-desk/internal/staff"
	"github.com/iliyamo/convention-desk/internal/utils"
)

// StaffHandler issues access tokens to officials from the staff directory.
type StaffHandler struct {
	Directory *staff.Directory
	Secret    string
	TTLMin    int
	Log       *slog.Logger
	Now       func() time.Time
}

func NewStaffHandler(dir *staff.Directory, secret string, ttlMin int, logger *slog.Logger) *StaffHandler {
	return &StaffHandler{Directory: dir, Secret: secret, TTLMin: ttlMin, Log: orDefaultLogger(logger).With("component", "staff"), Now: time.Now}
}

type staffLoginReq struct {
	PIN string `json:"pin"`
}

type staffPart struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type staffLoginResp struct {
	Staff  staffPart         `json:"staff"`
	Access utils.AccessToken `json:"access"`
}

// Login: POST /v1/staff/login
func (h *StaffHandler) Login(c echo.Context) error {
	var req staffLoginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if strings.TrimSpace(req.PIN) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "pin required"})
	}
	s, err := h.Directory.Login(req.PIN)
	if errors.Is(err, staff.ErrInvalidPIN) {
		h.Log.Warn("staff login rejected", "remote", c.RealIP())
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid pin"})
	}
	if err != nil {
		return fail(c, h.Log, err)
	}
	at, err := utils.NewAccessToken(h.Secret, s.ID, s.Name, s.Role, h.TTLMin, h.Now())
	if err != nil {
		return fail(c, h.Log, err)
	}
	h.Log.Info("staff logged in", "staff", s.ID, "role", s.Role)
	return c.JSON(http.StatusOK, staffLoginResp{
		Staff:  staffPart{ID: s.ID, Name: s.Name, Role: s.Role},
		Access: at,
	})
}

// Me: GET /v1/staff/me.  The directory entry must still be active.
func (h *StaffHandler) Me(c echo.Context) error {
	who, ok := middleware.StaffFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	}
	s, err := h.Directory.Get(who.ID)
	if errors.Is(err, staff.ErrNotFound) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "staff member no longer active"})
	}
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, staffPart{ID: s.ID, Name: s.Name, Role: s.Role})
}
