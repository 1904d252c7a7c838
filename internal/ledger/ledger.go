// Package ledger holds one adapter per service type.  An adapter knows how
// to create a pre-payment record from intake details, how to price it, and
// how to confirm it when the gateway reports a successful charge.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"

	"github.com/iliyamo/convention-desk/internal/metrics"
	"github.com/iliyamo/convention-desk/internal/model"
	"github.com/iliyamo/convention-desk/internal/reference"
	"github.com/iliyamo/convention-desk/internal/repository"
)

var (
	// ErrInvalidDetails wraps every intake validation failure.
	ErrInvalidDetails = errors.New("invalid details")
	// ErrAmountMismatch is returned when the paid amount differs from the
	// expected amount and strict checking is on.
	ErrAmountMismatch = errors.New("amount mismatch")
)

// ConfirmResult is what Confirm hands back to reconciliation.  Newly is true
// for exactly one caller per record.
type ConfirmResult struct {
	Record model.Record
	Newly  bool
}

// Adapter is the per-type ledger contract.
type Adapter interface {
	Kind() model.ServiceType
	CheckInEligible() bool
	Create(ctx context.Context, contact model.Contact, details json.RawMessage) (model.Record, error)
	Confirm(ctx context.Context, reference string, paid int64) (ConfirmResult, error)
	ValidateDetails(details json.RawMessage) error
	ValidateAmount(rec model.Record, paid int64) error
	Quote(params url.Values) (int64, error)
	Repo() *repository.LedgerRepo
}

// Options tune every adapter.
type Options struct {
	Prices Prices
	// AmountScale converts gateway minor units into stored major units.
	AmountScale int64
	// StrictAmount blocks confirmation on a mismatch instead of only
	// logging it.
	StrictAmount bool
	Logger       *slog.Logger
}

type adapter struct {
	spec  kindSpec
	repo  *repository.LedgerRepo
	users *repository.UserRepo
	opts  Options
	log   *slog.Logger
}

func (a *adapter) Kind() model.ServiceType       { return a.spec.kind }
func (a *adapter) CheckInEligible() bool         { return a.spec.eligible }
func (a *adapter) Repo() *repository.LedgerRepo { return a.repo }

func (a *adapter) ValidateDetails(details json.RawMessage) error {
	rec, err := a.spec.build(details)
	if err != nil {
		return err
	}
	_, err = a.spec.price(a.opts.Prices, rec)
	return err
}

func (a *adapter) Quote(params url.Values) (int64, error) {
	return a.spec.quote(a.opts.Prices, params)
}

// Create validates the details, prices the record, attaches it to the
// attendee identified by the contact email and stores it unconfirmed under a
// fresh payment reference.
func (a *adapter) Create(ctx context.Context, contact model.Contact, details json.RawMessage) (model.Record, error) {
	contact, err := normalizeContact(contact)
	if err != nil {
		return nil, err
	}
	rec, err := a.spec.build(details)
	if err != nil {
		return nil, err
	}
	amount, err := a.spec.price(a.opts.Prices, rec)
	if err != nil {
		return nil, err
	}
	user, err := a.users.FindOrCreate(ctx, contact.Email, contact.Name, contact.Phone)
	if err != nil {
		return nil, fmt.Errorf("resolve attendee: %w", err)
	}
	b := rec.Base()
	b.UserID = user.ID
	b.Contact = contact
	b.Amount = amount

	// Retry once on a reference collision.
	for attempt := 0; attempt < 2; attempt++ {
		ref, err := reference.NewReference(a.spec.kind, contact.Phone)
		if err != nil {
			return nil, err
		}
		b.PaymentReference = ref
		err = a.repo.Insert(ctx, rec)
		if err == nil {
			a.log.Info("record created", "service", a.spec.kind.String(), "id", b.ID, "reference", ref, "amount", amount)
			return rec, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("create %s: %w", a.spec.kind, repository.ErrDuplicate)
}

// ValidateAmount compares the gateway amount (minor units) with the stored
// expected amount.
func (a *adapter) ValidateAmount(rec model.Record, paid int64) error {
	scale := a.opts.AmountScale
	if scale <= 0 {
		scale = 1
	}
	expected := rec.Base().Amount
	if paid%scale != 0 || paid/scale != expected {
		return fmt.Errorf("%w: expected %d, paid %d (scale %d)", ErrAmountMismatch, expected, paid, scale)
	}
	return nil
}

// Confirm flips the record owning ref to confirmed.  The amount check only
// runs while the record is still unconfirmed; replays skip straight to the
// no-op flip.
func (a *adapter) Confirm(ctx context.Context, ref string, paid int64) (ConfirmResult, error) {
	current, err := a.repo.GetByReference(ctx, ref)
	if err != nil {
		return ConfirmResult{}, err
	}
	if !current.Base().Confirmed {
		if err := a.ValidateAmount(current, paid); err != nil {
			metrics.AmountMismatchTotal.WithLabelValues(a.spec.kind.String()).Inc()
			a.log.Warn("paid amount differs from expected",
				"service", a.spec.kind.String(), "reference", ref, "error", err, "strict", a.opts.StrictAmount)
			if a.opts.StrictAmount {
				return ConfirmResult{Record: current}, err
			}
		}
	}
	rec, newly, err := a.repo.Confirm(ctx, ref)
	if err != nil {
		return ConfirmResult{}, err
	}
	return ConfirmResult{Record: rec, Newly: newly}, nil
}

func normalizeContact(c model.Contact) (model.Contact, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = repository.NormalizeEmail(c.Email)
	c.Phone = strings.TrimSpace(c.Phone)
	if c.Name == "" {
		return c, fmt.Errorf("%w: contact name is required", ErrInvalidDetails)
	}
	if tooLong(c.Name, maxNameLength) {
		return c, fmt.Errorf("%w: contact name longer than %d characters", ErrInvalidDetails, maxNameLength)
	}
	if len(c.Email) > 191 || tooLong(c.Phone, 32) {
		return c, fmt.Errorf("%w: contact email or phone too long", ErrInvalidDetails)
	}
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return c, fmt.Errorf("%w: contact email is invalid", ErrInvalidDetails)
	}
	return c, nil
}

// Registry holds one adapter per service type.
type Registry struct {
	adapters map[model.ServiceType]Adapter
}

// NewRegistry builds the six adapters over db.
func NewRegistry(db *sql.DB, opts Options) *Registry {
	if opts.Prices.RegistrationByCategory == nil {
		opts.Prices = DefaultPrices()
	}
	if opts.AmountScale <= 0 {
		opts.AmountScale = 100
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	users := repository.NewUserRepo(db)
	r := &Registry{adapters: make(map[model.ServiceType]Adapter, len(specs))}
	for _, s := range specs {
		r.adapters[s.kind] = &adapter{
			spec:  s,
			repo:  repository.NewLedgerRepo(db, s.kind),
			users: users,
			opts:  opts,
			log:   logger.With("component", "ledger"),
		}
	}
	return r
}

// Get returns the adapter for kind.
func (r *Registry) Get(kind model.ServiceType) (Adapter, bool) {
	a, ok := r.adapters[kind]
	return a, ok
}

// All returns every adapter in model.AllServices order.
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.adapters))
	for _, k := range model.AllServices {
		if a, ok := r.adapters[k]; ok {
			out = append(out, a)
		}
	}
	return out
}

// CheckInEligible returns the scannable ledgers in lookup priority order:
// registration, dinner, accommodation, brochure.
func (r *Registry) CheckInEligible() []Adapter {
	var out []Adapter
	for _, a := range r.All() {
		if a.CheckInEligible() {
			out = append(out, a)
		}
	}
	return out
}
