package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/convention-desk/internal/ledger"
	"github.com/iliyamo/convention-desk/internal/model"
)

// IntakeHandler creates unpaid records and quotes prices.
type IntakeHandler struct {
	Ledgers *ledger.Registry
	Log     *slog.Logger
}

func NewIntakeHandler(reg *ledger.Registry, logger *slog.Logger) *IntakeHandler {
	return &IntakeHandler{Ledgers: reg, Log: orDefaultLogger(logger).With("component", "intake")}
}

type intakeReq struct {
	Contact model.Contact   `json:"contact"`
	Details json.RawMessage `json:"details"`
}

type intakeResp struct {
	ID               string            `json:"id"`
	Type             model.ServiceType `json:"type"`
	PaymentReference string            `json:"paymentReference"`
	Amount           int64             `json:"amount"`
	Confirmed        bool              `json:"confirmed"`
}

func (h *IntakeHandler) adapter(c echo.Context) (ledger.Adapter, bool) {
	kind := model.ParseServiceType(c.Param("type"))
	if kind == model.ServiceUnknown {
		return nil, false
	}
	return h.Ledgers.Get(kind)
}

// Create: POST /v1/intake/:type
func (h *IntakeHandler) Create(c echo.Context) error {
	a, ok := h.adapter(c)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown service type"})
	}
	var req intakeReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if len(strings.TrimSpace(string(req.Details))) == 0 {
		req.Details = json.RawMessage(`{}`)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	rec, err := a.Create(ctx, req.Contact, req.Details)
	if err != nil {
		return fail(c, h.Log, err)
	}
	b := rec.Base()
	h.Log.Info("record created", "service", a.Kind().String(), "id", b.ID, "reference", b.PaymentReference, "amount", b.Amount)
	return c.JSON(http.StatusCreated, intakeResp{
		ID:               b.ID,
		Type:             rec.Kind(),
		PaymentReference: b.PaymentReference,
		Amount:           b.Amount,
		Confirmed:        b.Confirmed,
	})
}

// Quote: GET /v1/pricing/:type
func (h *IntakeHandler) Quote(c echo.Context) error {
	a, ok := h.adapter(c)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown service type"})
	}
	amount, err := a.Quote(c.QueryParams())
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"type": a.Kind(), "amount": amount})
}
