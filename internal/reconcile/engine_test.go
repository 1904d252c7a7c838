package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/convention-desk/internal/database"
	"github.com/iliyamo/convention-desk/internal/ledger"
	"github.com/iliyamo/convention-desk/internal/logging"
	"github.com/iliyamo/convention-desk/internal/model"
	"github.com/iliyamo/convention-desk/internal/qrtoken"
	"github.com/iliyamo/convention-desk/internal/queue"
	"github.com/iliyamo/convention-desk/internal/repository"
)

const secret = "sk_test_secret"

type stubNotifier struct {
	mu  sync.Mutex
	got []queue.PaymentConfirmedEvent
}

func (s *stubNotifier) Enqueue(ev queue.PaymentConfirmedEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, ev)
	return true
}

func (s *stubNotifier) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

type fixture struct {
	engine   *Engine
	reg      *ledger.Registry
	tokens   *repository.TokenRepo
	audit    *repository.PaymentEventRepo
	gen      *qrtoken.Generator
	notifier *stubNotifier
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = database.Migrate(context.Background(), db, database.DriverSQLite)
	require.NoError(t, err)

	reg := ledger.NewRegistry(db, ledger.Options{AmountScale: 100, Logger: logging.Discard()})
	tokens := repository.NewTokenRepo(db)
	gen, err := qrtoken.New("qr-secret", tokens, nil, logging.Discard())
	require.NoError(t, err)
	audit := repository.NewPaymentEventRepo(db)
	n := &stubNotifier{}
	e, err := New(secret, Deps{Ledgers: reg, Tokens: gen, Notifier: n, Audit: audit, Logger: logging.Discard()})
	require.NoError(t, err)
	return fixture{engine: e, reg: reg, tokens: tokens, audit: audit, gen: gen, notifier: n}
}

func (f fixture) createDinner(t *testing.T, guests int) model.Record {
	t.Helper()
	a, _ := f.reg.Get(model.ServiceDinner)
	rec, err := a.Create(context.Background(),
		model.Contact{Name: "Ada Obi", Email: "ada@example.com", Phone: "080"},
		json.RawMessage(fmt.Sprintf(`{"guestCount":%d,"guests":["Ada","Bola"]}`, guests)))
	require.NoError(t, err)
	return rec
}

func webhook(event, ref, status string, amount int64) []byte {
	return []byte(fmt.Sprintf(`{"event":%q,"data":{"reference":%q,"status":%q,"amount":%d}}`, event, ref, status, amount))
}

func TestVerify(t *testing.T) {
	f := newFixture(t)
	body := webhook(ChargeSuccess, "DIN-1_080", "success", 15000)
	sig := Sign([]byte(secret), body)

	require.NoError(t, f.engine.Verify(body, sig))
	require.NoError(t, f.engine.Verify(body, strings.ToUpper(sig)))
	require.ErrorIs(t, f.engine.Verify(body, ""), ErrInvalidSignature)
	require.ErrorIs(t, f.engine.Verify(body, "zz"), ErrInvalidSignature)
	require.ErrorIs(t, f.engine.Verify(body, sig[:64]), ErrInvalidSignature)
	require.ErrorIs(t, f.engine.Verify(append(body, ' '), sig), ErrInvalidSignature)
	require.ErrorIs(t, f.engine.Verify(body, Sign([]byte("other"), body)), ErrInvalidSignature)
}

func TestNewRequiresSecret(t *testing.T) {
	_, err := New("  ", Deps{})
	require.ErrorIs(t, err, ErrMissingSecret)
}

func TestDinnerConfirmIssuesOneTokenPerGuest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.createDinner(t, 2)
	require.Equal(t, int64(150), rec.Base().Amount)
	ref := rec.Base().PaymentReference

	res := f.engine.Process(ctx, webhook(ChargeSuccess, ref, "success", 15000))
	require.Equal(t, OutcomeConfirmed, res.Outcome)
	require.Equal(t, model.ServiceDinner, res.Service)
	require.Equal(t, 2, res.Tokens)

	a, _ := f.reg.Get(model.ServiceDinner)
	got, err := a.Repo().GetByReference(ctx, ref)
	require.NoError(t, err)
	require.True(t, got.Base().Confirmed)

	toks, err := f.tokens.ListByRecord(ctx, model.ServiceDinner, rec.Base().ID)
	require.NoError(t, err)
	require.Len(t, toks, 2)
	require.Equal(t, 1, f.notifier.count())
	require.Equal(t, []string{"Ada", "Bola"}, f.notifier.got[0].Units)

	// replay
	res = f.engine.Process(ctx, webhook(ChargeSuccess, ref, "success", 15000))
	require.Equal(t, OutcomeAlreadyConfirmed, res.Outcome)
	again, err := f.tokens.ListByRecord(ctx, model.ServiceDinner, rec.Base().ID)
	require.NoError(t, err)
	require.Equal(t, toks, again)
	require.Equal(t, 1, f.notifier.count())

	events, err := f.audit.ListByReference(ctx, ref)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "confirmed", events[0].Outcome)
	require.Equal(t, "already_confirmed", events[1].Outcome)
}

func TestConcurrentDeliveriesConfirmOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.createDinner(t, 3)
	body := webhook(ChargeSuccess, rec.Base().PaymentReference, "success", 22500)

	const n = 8
	var (
		wg      sync.WaitGroup
		results [n]Result
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.engine.Process(ctx, body)
		}(i)
	}
	wg.Wait()

	confirmed := 0
	for _, r := range results {
		require.Contains(t, []Outcome{OutcomeConfirmed, OutcomeAlreadyConfirmed}, r.Outcome)
		if r.Outcome == OutcomeConfirmed {
			confirmed++
		}
	}
	require.Equal(t, 1, confirmed)
	toks, err := f.tokens.ListByRecord(ctx, model.ServiceDinner, rec.Base().ID)
	require.NoError(t, err)
	require.Len(t, toks, 3)
	require.Equal(t, 1, f.notifier.count())
}

func TestFailedChargeIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.createDinner(t, 2)

	res := f.engine.Process(ctx, webhook("charge.failed", rec.Base().PaymentReference, "failed", 15000))
	require.Equal(t, OutcomeIgnored, res.Outcome)

	res = f.engine.Process(ctx, webhook(ChargeSuccess, rec.Base().PaymentReference, "abandoned", 15000))
	require.Equal(t, OutcomeIgnored, res.Outcome)

	a, _ := f.reg.Get(model.ServiceDinner)
	got, err := a.Repo().GetByID(ctx, rec.Base().ID)
	require.NoError(t, err)
	require.False(t, got.Base().Confirmed)
	toks, err := f.tokens.ListByRecord(ctx, model.ServiceDinner, rec.Base().ID)
	require.NoError(t, err)
	require.Empty(t, toks)
	require.Zero(t, f.notifier.count())
}

func TestOutcomes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.Equal(t, OutcomeMalformed, f.engine.Process(ctx, []byte(`{not json`)).Outcome)
	require.Equal(t, OutcomeMalformed, f.engine.Process(ctx, webhook(ChargeSuccess, "", "success", 100)).Outcome)
	require.Equal(t, OutcomeUnknownService, f.engine.Process(ctx, webhook(ChargeSuccess, "T999_080", "success", 100)).Outcome)

	res := f.engine.Process(ctx, webhook(ChargeSuccess, "DIN-DEADBEEF_080", "success", 100))
	require.Equal(t, OutcomeNotFound, res.Outcome)
	require.Equal(t, model.ServiceDinner, res.Service)
}

func TestMetadataOverridesReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.createDinner(t, 1)
	ref := rec.Base().PaymentReference

	for _, meta := range []string{`{"service_type":"dinner"}`, `"{\"serviceType\":\"dinner\"}"`} {
		body := []byte(fmt.Sprintf(`{"event":"charge.success","data":{"reference":%q,"status":"success","amount":7500,"metadata":%s}}`, ref, meta))
		res := f.engine.Process(ctx, body)
		require.Equal(t, model.ServiceDinner, res.Service, meta)
		require.Contains(t, []Outcome{OutcomeConfirmed, OutcomeAlreadyConfirmed}, res.Outcome)
	}

	body := []byte(fmt.Sprintf(`{"event":"charge.success","data":{"reference":%q,"amount":7500,"metadata":{"type":"brochure"}}}`, ref))
	res := f.engine.Process(ctx, body)
	require.Equal(t, model.ServiceBrochure, res.Service)
	require.Equal(t, OutcomeNotFound, res.Outcome)
}

func TestDecodeMetadata(t *testing.T) {
	require.Nil(t, decodeMetadata(nil))
	require.Nil(t, decodeMetadata(json.RawMessage(`null`)))
	require.Nil(t, decodeMetadata(json.RawMessage(`""`)))
	require.Nil(t, decodeMetadata(json.RawMessage(`[1,2]`)))
	require.Equal(t, "x", decodeMetadata(json.RawMessage(`{"a":"x"}`))["a"])
	require.Equal(t, "x", decodeMetadata(json.RawMessage(`"{\"a\":\"x\"}"`))["a"])
}

// flakyIssuer fails the first fails calls, then delegates.
type flakyIssuer struct {
	mu    sync.Mutex
	fails int
	next  TokenIssuer
}

func (f *flakyIssuer) Issue(ctx context.Context, rec model.Record) ([]model.RedeemableToken, bool, error) {
	f.mu.Lock()
	if f.fails > 0 {
		f.fails--
		f.mu.Unlock()
		return nil, false, errors.New("db write failed")
	}
	f.mu.Unlock()
	return f.next.Issue(ctx, rec)
}

func TestReplayRepairsFailedIssueAndNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e, err := New(secret, Deps{
		Ledgers:  f.reg,
		Tokens:   &flakyIssuer{fails: 1, next: f.gen},
		Notifier: f.notifier,
		Audit:    f.audit,
		Logger:   logging.Discard(),
	})
	require.NoError(t, err)
	rec := f.createDinner(t, 2)
	body := webhook(ChargeSuccess, rec.Base().PaymentReference, "success", 15000)

	res := e.Process(ctx, body)
	require.Equal(t, OutcomeError, res.Outcome)
	require.Zero(t, f.notifier.count())
	a, _ := f.reg.Get(model.ServiceDinner)
	got, err := a.Repo().GetByID(ctx, rec.Base().ID)
	require.NoError(t, err)
	require.True(t, got.Base().Confirmed)

	res = e.Process(ctx, body)
	require.Equal(t, OutcomeAlreadyConfirmed, res.Outcome)
	require.Equal(t, 2, res.Tokens)
	require.Equal(t, 1, f.notifier.count())
	require.Equal(t, 2, f.notifier.got[0].TokenCount)

	res = e.Process(ctx, body)
	require.Equal(t, OutcomeAlreadyConfirmed, res.Outcome)
	require.Equal(t, 1, f.notifier.count())
}
