package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/convention-desk/internal/metrics"
	"github.com/iliyamo/convention-desk/internal/reconcile"
)

// DefaultWebhookBodyLimit caps the raw webhook body.
const DefaultWebhookBodyLimit = 1 << 20

// WebhookHandler receives payment gateway callbacks.
type WebhookHandler struct {
	Engine  *reconcile.Engine
	MaxBody int64
	Log     *slog.Logger
}

func NewWebhookHandler(engine *reconcile.Engine, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{Engine: engine, MaxBody: DefaultWebhookBodyLimit, Log: orDefaultLogger(logger).With("component", "webhook")}
}

// Paystack verifies the signature over the exact body bytes and processes
// the event.  Only a bad signature (or an unreadable body) is refused; every
// processed event is acknowledged with 200 so the gateway stops retrying.
func (h *WebhookHandler) Paystack(c echo.Context) error {
	limit := h.MaxBody
	if limit <= 0 {
		limit = DefaultWebhookBodyLimit
	}
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, limit+1))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
	}
	if int64(len(body)) > limit {
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "body too large"})
	}

	if err := h.Engine.Verify(body, c.Request().Header.Get(reconcile.SignatureHeader)); err != nil {
		metrics.WebhookRejectedTotal.Inc()
		h.Log.Warn("webhook rejected", "remote", c.RealIP(), "error", err)
		if errors.Is(err, reconcile.ErrInvalidSignature) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid signature"})
		}
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	res := h.Engine.Process(c.Request().Context(), body)
	return c.JSON(http.StatusOK, echo.Map{
		"success":   true,
		"outcome":   res.Outcome,
		"reference": res.Reference,
		"service":   res.Service.String(),
	})
}
