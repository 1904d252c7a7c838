// Package locator finds a ticket across the scannable ledgers and projects
// it into a model.TicketView.
package locator

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/convention-desk/internal/ledger"
	"github.com/iliyamo/convention-desk/internal/model"
	"github.com/iliyamo/convention-desk/internal/repository"
)

// ErrNotFound means no scannable ledger holds the ticket.
var ErrNotFound = errors.New("ticket not found")

// Tokens lists a record's issued tokens.
type Tokens interface {
	ListByRecord(ctx context.Context, kind model.ServiceType, recordID string) ([]model.RedeemableToken, error)
}

// Locator searches registration, dinner, accommodation and brochure, in
// that order; the first hit wins.
type Locator struct {
	adapters []ledger.Adapter
	byKind   map[model.ServiceType]ledger.Adapter
	users    *repository.UserRepo
	tokens   Tokens
}

func New(reg *ledger.Registry, users *repository.UserRepo, tokens Tokens) *Locator {
	l := &Locator{
		adapters: reg.CheckInEligible(),
		byKind:   make(map[model.ServiceType]ledger.Adapter),
		users:    users,
		tokens:   tokens,
	}
	for _, a := range l.adapters {
		l.byKind[a.Kind()] = a
	}
	return l
}

// FindByTicketID looks the id up in each ledger in priority order.
func (l *Locator) FindByTicketID(ctx context.Context, id string) (model.TicketView, error) {
	return l.first(ctx, func(a ledger.Adapter) (model.Record, error) {
		return a.Repo().GetByID(ctx, id)
	})
}

// FindByReference looks the payment reference up in each ledger in
// priority order.
func (l *Locator) FindByReference(ctx context.Context, ref string) (model.TicketView, error) {
	return l.first(ctx, func(a ledger.Adapter) (model.Record, error) {
		return a.Repo().GetByReference(ctx, ref)
	})
}

// FindByEmail returns the attendee's most recently created ticket across
// all scannable ledgers.
func (l *Locator) FindByEmail(ctx context.Context, email string) (model.TicketView, error) {
	u, err := l.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return model.TicketView{}, ErrNotFound
	}
	if err != nil {
		return model.TicketView{}, err
	}
	var latest model.Record
	for _, a := range l.adapters {
		rec, err := a.Repo().LatestByUser(ctx, u.ID)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return model.TicketView{}, fmt.Errorf("search %s: %w", a.Kind(), err)
		}
		if latest == nil || rec.Base().CreatedAt.After(latest.Base().CreatedAt) {
			latest = rec
		}
	}
	if latest == nil {
		return model.TicketView{}, ErrNotFound
	}
	return l.View(ctx, latest)
}

// FindTyped looks the id up in one ledger only.
func (l *Locator) FindTyped(ctx context.Context, kind model.ServiceType, id string) (model.TicketView, error) {
	a, ok := l.byKind[kind]
	if !ok {
		return model.TicketView{}, ErrNotFound
	}
	rec, err := a.Repo().GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.TicketView{}, ErrNotFound
	}
	if err != nil {
		return model.TicketView{}, err
	}
	return l.View(ctx, rec)
}

// Resolve returns the adapter and record holding the ticket.  With kind
// set only that ledger is searched.
func (l *Locator) Resolve(ctx context.Context, kind model.ServiceType, id string) (ledger.Adapter, model.Record, error) {
	candidates := l.adapters
	if kind != model.ServiceUnknown {
		a, ok := l.byKind[kind]
		if !ok {
			return nil, nil, ErrNotFound
		}
		candidates = []ledger.Adapter{a}
	}
	for _, a := range candidates {
		rec, err := a.Repo().GetByID(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("search %s: %w", a.Kind(), err)
		}
		return a, rec, nil
	}
	return nil, nil, ErrNotFound
}

// View attaches history and tokens to a record.
func (l *Locator) View(ctx context.Context, rec model.Record) (model.TicketView, error) {
	a, ok := l.byKind[rec.Kind()]
	if !ok {
		return model.TicketView{}, ErrNotFound
	}
	id := rec.Base().ID
	history, err := a.Repo().History(ctx, id)
	if err != nil {
		return model.TicketView{}, fmt.Errorf("load history: %w", err)
	}
	tokens, err := l.tokens.ListByRecord(ctx, rec.Kind(), id)
	if err != nil {
		return model.TicketView{}, fmt.Errorf("load tokens: %w", err)
	}
	return model.NewTicketView(rec, history, tokens), nil
}

func (l *Locator) first(ctx context.Context, get func(ledger.Adapter) (model.Record, error)) (model.TicketView, error) {
	for _, a := range l.adapters {
		rec, err := get(a)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return model.TicketView{}, fmt.Errorf("search %s: %w", a.Kind(), err)
		}
		return l.View(ctx, rec)
	}
	return model.TicketView{}, ErrNotFound
}
