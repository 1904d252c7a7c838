package locator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/convention-desk/internal/database"
	"github.com/iliyamo/convention-desk/internal/ledger"
	"github.com/iliyamo/convention-desk/internal/logging"
	"github.com/iliyamo/convention-desk/internal/model"
	"github.com/iliyamo/convention-desk/internal/repository"
)

type fixture struct {
	reg *ledger.Registry
	loc *Locator
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = database.Migrate(context.Background(), db, database.DriverSQLite)
	require.NoError(t, err)
	reg := ledger.NewRegistry(db, ledger.Options{Logger: logging.Discard()})

	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Minute) }
	for _, a := range reg.All() {
		a.Repo().SetClock(clock)
	}
	return fixture{reg: reg, loc: New(reg, repository.NewUserRepo(db), repository.NewTokenRepo(db))}
}

func (f fixture) create(t *testing.T, kind model.ServiceType, email, details string) model.Record {
	t.Helper()
	a, ok := f.reg.Get(kind)
	require.True(t, ok)
	rec, err := a.Create(context.Background(), model.Contact{Name: "Ada", Email: email}, json.RawMessage(details))
	require.NoError(t, err)
	return rec
}

func TestFindByTicketIDAndReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.create(t, model.ServiceAccommodation, "ada@example.com",
		`{"checkInDate":"2026-05-01","checkOutDate":"2026-05-03","rooms":1}`)

	view, err := f.loc.FindByTicketID(ctx, rec.Base().ID)
	require.NoError(t, err)
	require.Equal(t, model.ServiceAccommodation, view.Type)
	require.Equal(t, int64(120), view.Amount)
	require.NotNil(t, view.History)
	require.NotNil(t, view.Tokens)

	view, err = f.loc.FindByReference(ctx, rec.Base().PaymentReference)
	require.NoError(t, err)
	require.Equal(t, rec.Base().ID, view.ID)

	_, err = f.loc.FindByTicketID(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGoodwillIsNotScannable(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t, model.ServiceGoodwill, "ada@example.com", `{"message":"Welcome all"}`)
	_, err := f.loc.FindByTicketID(context.Background(), rec.Base().ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = f.loc.FindTyped(context.Background(), model.ServiceGoodwill, rec.Base().ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFindByEmailReturnsLatestAcrossTypes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, model.ServiceRegistration, "ada@example.com", `{}`)
	latest := f.create(t, model.ServiceBrochure, "ada@example.com", `{"quantity":1}`)
	f.create(t, model.ServiceDinner, "bola@example.com", `{"guestCount":1}`)

	view, err := f.loc.FindByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	require.Equal(t, latest.Base().ID, view.ID)
	require.Equal(t, model.ServiceBrochure, view.Type)

	_, err = f.loc.FindByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFindTypedAndResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.create(t, model.ServiceDinner, "ada@example.com", `{"guestCount":2}`)

	view, err := f.loc.FindTyped(ctx, model.ServiceDinner, rec.Base().ID)
	require.NoError(t, err)
	require.Equal(t, rec.Base().ID, view.ID)

	_, err = f.loc.FindTyped(ctx, model.ServiceBrochure, rec.Base().ID)
	require.ErrorIs(t, err, ErrNotFound)

	a, got, err := f.loc.Resolve(ctx, model.ServiceUnknown, rec.Base().ID)
	require.NoError(t, err)
	require.Equal(t, model.ServiceDinner, a.Kind())
	require.Equal(t, rec.Base().ID, got.Base().ID)
}
