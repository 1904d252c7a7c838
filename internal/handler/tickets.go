package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/convention-desk/internal/checkin"
	"github.com/iliyamo/convention-desk/internal/locator"
	"github.com/iliyamo/convention-desk/internal/model"
	"github.com/iliyamo/convention-desk/internal/qrtoken"
)

// TicketHandler serves the staff desk: lookups, state transitions and
// token redemption.
type TicketHandler struct {
	Locator *locator.Locator
	Machine *checkin.Machine
	Tokens  *qrtoken.Generator
	Log     *slog.Logger
}

func NewTicketHandler(loc *locator.Locator, m *checkin.Machine, tokens *qrtoken.Generator, logger *slog.Logger) *TicketHandler {
	if loc == nil || m == nil || tokens == nil {
		panic("nil dependency passed to NewTicketHandler")
	}
	return &TicketHandler{Locator: loc, Machine: m, Tokens: tokens, Log: orDefaultLogger(logger).With("component", "tickets")}
}

// ----- DTOs -----

type transitionReq struct {
	TicketID     string `json:"ticketId"`
	TicketType   string `json:"ticketType"`
	OfficialID   string `json:"officialId"`
	OfficialName string `json:"officialName"`
}

type tokenReq struct {
	Payload      string `json:"payload"`
	OfficialID   string `json:"officialId"`
	OfficialName string `json:"officialName"`
}

const requestTimeout = 5 * time.Second

// Get: GET /v1/tickets/:id
func (h *TicketHandler) Get(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ticket id required"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	view, err := h.Locator.FindByTicketID(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, view)
}

// ByReference: GET /v1/tickets/reference/:reference
func (h *TicketHandler) ByReference(c echo.Context) error {
	ref := strings.TrimSpace(c.Param("reference"))
	if ref == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reference required"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	view, err := h.Locator.FindByReference(ctx, ref)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, view)
}

// ByEmail: GET /v1/tickets?email=
func (h *TicketHandler) ByEmail(c echo.Context) error {
	email := strings.TrimSpace(c.QueryParam("email"))
	if email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email query parameter required"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	view, err := h.Locator.FindByEmail(ctx, email)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, view)
}

// bindTransition decodes and validates a transition body.
func bindTransition(c echo.Context) (transitionReq, model.Official, error) {
	var req transitionReq
	if err := c.Bind(&req); err != nil {
		return req, model.Official{}, echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	req.TicketID = strings.TrimSpace(req.TicketID)
	if req.TicketID == "" {
		return req, model.Official{}, echo.NewHTTPError(http.StatusBadRequest, "ticketId required")
	}
	return req, officialFrom(c, req.OfficialID, req.OfficialName), nil
}

func badRequest(c echo.Context, err error) error {
	if he, ok := err.(*echo.HTTPError); ok {
		return c.JSON(he.Code, echo.Map{"error": he.Message})
	}
	return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
}

// CheckIn: POST /v1/checkin
func (h *TicketHandler) CheckIn(c echo.Context) error {
	req, official, err := bindTransition(c)
	if err != nil {
		return badRequest(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	view, err := h.Machine.CheckIn(ctx, req.TicketID, official)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, view)
}

// CheckOut: POST /v1/checkout
func (h *TicketHandler) CheckOut(c echo.Context) error {
	req, official, err := bindTransition(c)
	if err != nil {
		return badRequest(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	view, err := h.Machine.CheckOut(ctx, req.TicketID, official)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, view)
}

// Collect: POST /v1/collect.  ticketType is optional; when given it must
// name a scannable ledger.
func (h *TicketHandler) Collect(c echo.Context) error {
	req, official, err := bindTransition(c)
	if err != nil {
		return badRequest(c, err)
	}
	kind := model.ServiceUnknown
	if strings.TrimSpace(req.TicketType) != "" {
		kind = model.ParseServiceType(req.TicketType)
		if kind == model.ServiceUnknown {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown ticketType"})
		}
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	view, err := h.Machine.Collect(ctx, req.TicketID, kind, official)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, view)
}

// Redeem: POST /v1/tokens/redeem
func (h *TicketHandler) Redeem(c echo.Context) error {
	var req tokenReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Payload = strings.TrimSpace(req.Payload)
	if req.Payload == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "payload required"})
	}
	official := officialFrom(c, req.OfficialID, req.OfficialName)
	if official.ID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": checkin.ErrMissingOfficial.Error()})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	tok, err := h.Tokens.Redeem(ctx, req.Payload, official)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, tok)
}

// ResetToken: POST /v1/admin/tokens/reset
func (h *TicketHandler) ResetToken(c echo.Context) error {
	var req tokenReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Payload = strings.TrimSpace(req.Payload)
	if req.Payload == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "payload required"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	tok, err := h.Tokens.Reset(ctx, req.Payload)
	if err != nil {
		return fail(c, h.Log, err)
	}
	admin := officialFrom(c, "", "")
	h.Log.Warn("token reset by admin", "admin", admin.ID, "service", tok.RecordType.String(), "record", tok.RecordID, "unit", tok.UnitIndex)
	return c.JSON(http.StatusOK, tok)
}
