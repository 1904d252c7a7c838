package checkin

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/convention-desk/internal/database"
	"github.com/iliyamo/convention-desk/internal/ledger"
	"github.com/iliyamo/convention-desk/internal/locator"
	"github.com/iliyamo/convention-desk/internal/logging"
	"github.com/iliyamo/convention-desk/internal/metrics"
	"github.com/iliyamo/convention-desk/internal/model"
	"github.com/iliyamo/convention-desk/internal/qrtoken"
	"github.com/iliyamo/convention-desk/internal/repository"
)

var gate = model.Official{ID: "staff-1", Name: "Gate A"}

type fixture struct {
	reg    *ledger.Registry
	tokens *repository.TokenRepo
	m      *Machine
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = database.Migrate(context.Background(), db, database.DriverSQLite)
	require.NoError(t, err)
	reg := ledger.NewRegistry(db, ledger.Options{Logger: logging.Discard()})
	tokens := repository.NewTokenRepo(db)
	gen, err := qrtoken.New("qr-secret", tokens, nil, logging.Discard())
	require.NoError(t, err)
	loc := locator.New(reg, repository.NewUserRepo(db), tokens)
	return fixture{reg: reg, tokens: tokens, m: New(loc, gen, logging.Discard())}
}

func (f fixture) create(t *testing.T, kind model.ServiceType, details string) model.Record {
	t.Helper()
	a, _ := f.reg.Get(kind)
	rec, err := a.Create(context.Background(), model.Contact{Name: "Ada", Email: "ada@example.com"}, json.RawMessage(details))
	require.NoError(t, err)
	return rec
}

func TestDoubleCheckInRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.create(t, model.ServiceRegistration, `{}`)
	_, err := f.reg.All()[0].Confirm(ctx, rec.Base().PaymentReference, 20000)
	require.NoError(t, err)

	view, err := f.m.CheckIn(ctx, rec.Base().ID, gate)
	require.NoError(t, err)
	require.True(t, view.CheckedIn)
	require.Len(t, view.History, 1)

	_, err = f.m.CheckIn(ctx, rec.Base().ID, gate)
	require.ErrorIs(t, err, ErrAlreadyCheckedIn)

	view, err = f.m.CheckOut(ctx, rec.Base().ID, gate)
	require.NoError(t, err)
	require.False(t, view.CheckedIn)
	require.NotNil(t, view.CheckedOutAt)
	require.Len(t, view.History, 2)

	_, err = f.m.CheckOut(ctx, rec.Base().ID, gate)
	require.ErrorIs(t, err, ErrNotCheckedIn)

	view, err = f.m.CheckIn(ctx, rec.Base().ID, gate)
	require.NoError(t, err)
	require.Nil(t, view.CheckedOutAt)
	require.Len(t, view.History, 3)
}

func TestCheckInForcesConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := testutil.ToFloat64(metrics.ForcedConfirmationsTotal.WithLabelValues("dinner"))
	rec := f.create(t, model.ServiceDinner, `{"guestCount":2}`)

	view, err := f.m.CheckIn(ctx, rec.Base().ID, gate)
	require.NoError(t, err)
	require.True(t, view.Confirmed)
	require.True(t, view.CheckedIn)
	require.Len(t, view.Tokens, 2)
	require.Equal(t, before+1, testutil.ToFloat64(metrics.ForcedConfirmationsTotal.WithLabelValues("dinner")))
}

func TestBrochureCollectIsOneWay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.create(t, model.ServiceBrochure, `{"quantity":3}`)

	view, err := f.m.Collect(ctx, rec.Base().ID, model.ServiceBrochure, gate)
	require.NoError(t, err)
	require.True(t, view.Collected)
	require.NotNil(t, view.CollectedAt)

	_, err = f.m.Collect(ctx, rec.Base().ID, model.ServiceBrochure, gate)
	require.ErrorIs(t, err, ErrAlreadyCollected)

	view, err = f.m.Collect(ctx, rec.Base().ID, model.ServiceUnknown, gate)
	require.ErrorIs(t, err, ErrAlreadyCollected)
	require.Empty(t, view.ID)
}

func TestCollectIdempotentForOtherTypes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.create(t, model.ServiceRegistration, `{"category":"student"}`)

	_, err := f.m.Collect(ctx, rec.Base().ID, model.ServiceUnknown, gate)
	require.NoError(t, err)
	view, err := f.m.Collect(ctx, rec.Base().ID, model.ServiceUnknown, gate)
	require.NoError(t, err)
	require.True(t, view.Collected)
	require.Len(t, view.History, 1)
}

func TestTransitionErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.m.CheckIn(ctx, "missing", gate)
	require.ErrorIs(t, err, locator.ErrNotFound)
	_, err = f.m.CheckOut(ctx, "missing", gate)
	require.ErrorIs(t, err, locator.ErrNotFound)
	_, err = f.m.Collect(ctx, "missing", model.ServiceBrochure, gate)
	require.ErrorIs(t, err, locator.ErrNotFound)

	rec := f.create(t, model.ServiceDinner, `{"guestCount":1}`)
	_, err = f.m.CheckIn(ctx, rec.Base().ID, model.Official{})
	require.ErrorIs(t, err, ErrMissingOfficial)

	_, err = f.m.Collect(ctx, rec.Base().ID, model.ServiceBrochure, gate)
	require.ErrorIs(t, err, locator.ErrNotFound)
}

func TestConcurrentCheckInsAdmitOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.create(t, model.ServiceDinner, `{"guestCount":1}`)

	const scanners = 8
	var (
		wg   sync.WaitGroup
		errs [scanners]error
	)
	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.m.CheckIn(ctx, rec.Base().ID, model.Official{ID: "staff-" + string(rune('a'+i))})
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, err := range errs {
		if err == nil {
			admitted++
			continue
		}
		require.ErrorIs(t, err, ErrAlreadyCheckedIn)
	}
	require.Equal(t, 1, admitted)

	view, err := f.m.loc.FindByTicketID(ctx, rec.Base().ID)
	require.NoError(t, err)
	require.True(t, view.CheckedIn)
	require.Len(t, view.History, 1)
}

func TestCheckInRacingCheckOutKeepsHistoryConsistent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.create(t, model.ServiceRegistration, `{}`)
	_, err := f.m.CheckIn(ctx, rec.Base().ID, gate)
	require.NoError(t, err)

	const rounds = 6
	var (
		wg      sync.WaitGroup
		inErrs  [rounds]error
		outErrs [rounds]error
	)
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, inErrs[i] = f.m.CheckIn(ctx, rec.Base().ID, gate)
		}(i)
		go func(i int) {
			defer wg.Done()
			_, outErrs[i] = f.m.CheckOut(ctx, rec.Base().ID, gate)
		}(i)
	}
	wg.Wait()

	ins, outs := 0, 0
	for i := 0; i < rounds; i++ {
		if inErrs[i] == nil {
			ins++
		} else {
			require.ErrorIs(t, inErrs[i], ErrAlreadyCheckedIn)
		}
		if outErrs[i] == nil {
			outs++
		} else {
			require.ErrorIs(t, outErrs[i], ErrNotCheckedIn)
		}
	}
	// starting checked in, successful transitions alternate out, in, out...
	require.Contains(t, []int{0, 1}, outs-ins)

	view, err := f.m.loc.FindByTicketID(ctx, rec.Base().ID)
	require.NoError(t, err)
	require.Len(t, view.History, 1+ins+outs)
	require.Equal(t, outs == ins, view.CheckedIn)
}

func TestCheckInIssuesMissingTokensForConfirmedTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.create(t, model.ServiceDinner, `{"guestCount":2}`)
	a, _ := f.reg.Get(model.ServiceDinner)
	confirmed, err := a.Confirm(ctx, rec.Base().PaymentReference, 15000)
	require.NoError(t, err)
	require.True(t, confirmed.Newly)

	toks, err := f.tokens.ListByRecord(ctx, model.ServiceDinner, rec.Base().ID)
	require.NoError(t, err)
	require.Empty(t, toks)

	view, err := f.m.CheckIn(ctx, rec.Base().ID, gate)
	require.NoError(t, err)
	require.True(t, view.Confirmed)
	require.Len(t, view.Tokens, 2)
}
