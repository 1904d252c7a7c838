package handler // handler holds the HTTP handlers for intake, webhooks, staff and the check-in desk

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/convention-desk/internal/checkin"
	"github.com/iliyamo/convention-desk/internal/ledger"
	"github.com/iliyamo/convention-desk/internal/locator"
	"github.com/iliyamo/convention-desk/internal/middleware"
	"github.com/iliyamo/convention-desk/internal/model"
	"github.com/iliyamo/convention-desk/internal/qrtoken"
	"github.com/iliyamo/convention-desk/internal/repository"
)

// statusFor maps domain errors to an HTTP status.  Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, locator.ErrNotFound),
		errors.Is(err, repository.ErrNotFound),
		errors.Is(err, qrtoken.ErrUnknownToken):
		return http.StatusNotFound
	case errors.Is(err, checkin.ErrAlreadyCheckedIn),
		errors.Is(err, checkin.ErrNotCheckedIn),
		errors.Is(err, checkin.ErrAlreadyCollected),
		errors.Is(err, qrtoken.ErrAlreadyUsed),
		errors.Is(err, qrtoken.ErrNotConfirmed),
		errors.Is(err, repository.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, checkin.ErrMissingOfficial),
		errors.Is(err, ledger.ErrInvalidDetails),
		errors.Is(err, qrtoken.ErrInvalidToken),
		errors.Is(err, qrtoken.ErrExpiredToken):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// fail writes err as {"error": ...}.  Internal errors are logged and hidden.
func fail(c echo.Context, log *slog.Logger, err error) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
		return c.JSON(status, echo.Map{"error": "internal error"})
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}

// officialFrom fills missing official fields from the staff token.
func officialFrom(c echo.Context, id, name string) model.Official {
	o := model.Official{ID: strings.TrimSpace(id), Name: strings.TrimSpace(name)}
	if s, ok := middleware.StaffFrom(c); ok {
		if o.ID == "" {
			o.ID = s.ID
		}
		if o.Name == "" {
			o.Name = s.Name
		}
	}
	return o
}

func orDefaultLogger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
