// Package checkin drives the on-site ticket state machine:
//
//	not checked in --CheckIn--> checked in --CheckOut--> not checked in
//	not collected  --Collect--> collected (one way)
//
// Every transition is a conditional update plus an appended history row in
// one transaction, so two scanners racing on the same ticket cannot both
// succeed.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iliyamo/convention-desk/internal/locator"
	"github.com/iliyamo/convention-desk/internal/metrics"
	"github.com/iliyamo/convention-desk/internal/model"
	"github.com/iliyamo/convention-desk/internal/repository"
)

var (
	ErrAlreadyCheckedIn = errors.New("ticket already checked in")
	ErrNotCheckedIn     = errors.New("ticket is not checked in")
	ErrAlreadyCollected = errors.New("ticket already collected")
	ErrMissingOfficial  = errors.New("officialId is required")
)

// Issuer generates tokens for a record confirmed at the door.
type Issuer interface {
	Generate(ctx context.Context, rec model.Record) ([]model.RedeemableToken, error)
}

// Machine applies transitions and returns the post-transition view.
type Machine struct {
	loc    *locator.Locator
	issuer Issuer
	log    *slog.Logger
}

// New returns a Machine.  issuer may be nil.
func New(loc *locator.Locator, issuer Issuer, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{loc: loc, issuer: issuer, log: logger.With("component", "checkin")}
}

// CheckIn marks the ticket present.  A ticket the gateway never confirmed is
// confirmed here; that is logged and counted.
func (m *Machine) CheckIn(ctx context.Context, ticketID string, official model.Official) (model.TicketView, error) {
	if official.ID == "" {
		return model.TicketView{}, ErrMissingOfficial
	}
	a, _, err := m.loc.Resolve(ctx, model.ServiceUnknown, ticketID)
	if err != nil {
		return model.TicketView{}, err
	}
	kind := a.Kind().String()
	forced, err := a.Repo().CheckIn(ctx, ticketID, official)
	if err != nil {
		return model.TicketView{}, translate(err, ErrAlreadyCheckedIn)
	}
	metrics.CheckinTransitionsTotal.WithLabelValues(string(model.ActionCheckIn), kind).Inc()
	if forced {
		metrics.ForcedConfirmationsTotal.WithLabelValues(kind).Inc()
		m.log.Warn("unconfirmed ticket confirmed at check-in", "service", kind, "id", ticketID, "official", official.ID)
	}
	rec, err := a.Repo().GetByID(ctx, ticketID)
	if err != nil {
		return model.TicketView{}, err
	}
	// Check-in leaves the record confirmed, so its token set must exist.
	// Generate is a no-op when it already does.
	if m.issuer != nil {
		if _, err := m.issuer.Generate(ctx, rec); err != nil {
			m.log.Error("token generation at check-in failed", "service", kind, "id", ticketID, "forced", forced, "error", err)
		}
	}
	m.log.Info("checked in", "service", kind, "id", ticketID, "official", official.ID)
	return m.loc.View(ctx, rec)
}

// CheckOut marks a checked-in ticket as out.
func (m *Machine) CheckOut(ctx context.Context, ticketID string, official model.Official) (model.TicketView, error) {
	if official.ID == "" {
		return model.TicketView{}, ErrMissingOfficial
	}
	a, _, err := m.loc.Resolve(ctx, model.ServiceUnknown, ticketID)
	if err != nil {
		return model.TicketView{}, err
	}
	if err := a.Repo().CheckOut(ctx, ticketID, official); err != nil {
		return model.TicketView{}, translate(err, ErrNotCheckedIn)
	}
	metrics.CheckinTransitionsTotal.WithLabelValues(string(model.ActionCheckOut), a.Kind().String()).Inc()
	m.log.Info("checked out", "service", a.Kind().String(), "id", ticketID, "official", official.ID)
	return m.loc.FindTyped(ctx, a.Kind(), ticketID)
}

// Collect sets the collected flag.  For brochures a second collection is
// an error; for other types it returns the current view without appending
// history.  kind narrows the search to one ledger when set.
func (m *Machine) Collect(ctx context.Context, ticketID string, kind model.ServiceType, official model.Official) (model.TicketView, error) {
	if official.ID == "" {
		return model.TicketView{}, ErrMissingOfficial
	}
	a, _, err := m.loc.Resolve(ctx, kind, ticketID)
	if err != nil {
		return model.TicketView{}, err
	}
	strict := a.Kind() == model.ServiceBrochure
	changed, err := a.Repo().Collect(ctx, ticketID, official, strict)
	if err != nil {
		return model.TicketView{}, translate(err, ErrAlreadyCollected)
	}
	if changed {
		metrics.CheckinTransitionsTotal.WithLabelValues(string(model.ActionCollected), a.Kind().String()).Inc()
		m.log.Info("collected", "service", a.Kind().String(), "id", ticketID, "official", official.ID)
	}
	return m.loc.FindTyped(ctx, a.Kind(), ticketID)
}

func translate(err, conflict error) error {
	switch {
	case errors.Is(err, repository.ErrConflict):
		return conflict
	case errors.Is(err, repository.ErrNotFound):
		return locator.ErrNotFound
	}
	return fmt.Errorf("transition: %w", err)
}
