package qrtoken

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/convention-desk/internal/database"
	"github.com/iliyamo/convention-desk/internal/logging"
	"github.com/iliyamo/convention-desk/internal/model"
	"github.com/iliyamo/convention-desk/internal/repository"
)

var confirmedAt = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

func newGenerator(t *testing.T) *Generator {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = database.Migrate(context.Background(), db, database.DriverSQLite)
	require.NoError(t, err)
	g, err := New("qr-secret", repository.NewTokenRepo(db), nil, logging.Discard())
	require.NoError(t, err)
	g.SetClock(func() time.Time { return confirmedAt.Add(time.Hour) })
	return g
}

func dinner(guests int) *model.DinnerReservation {
	at := confirmedAt
	return &model.DinnerReservation{
		RecordBase: model.RecordBase{
			ID:          "rec-1",
			UserID:      7,
			Contact:     model.Contact{Name: "Ada Obi"},
			Confirmed:   true,
			ConfirmedAt: &at,
			Amount:      int64(75 * guests),
		},
		GuestCount: guests,
		Guests:     model.GuestList{"Ada"},
	}
}

func TestNewRequiresSecret(t *testing.T) {
	_, err := New("", nil, nil, nil)
	require.ErrorIs(t, err, ErrMissingSecret)
}

func TestGenerateOneTokenPerUnit(t *testing.T) {
	g := newGenerator(t)
	ctx := context.Background()

	set, err := g.Generate(ctx, dinner(2))
	require.NoError(t, err)
	require.Len(t, set, 2)
	require.Equal(t, "Ada", set[0].OwnerLabel)
	require.Equal(t, "Guest 2", set[1].OwnerLabel)
	require.NotEqual(t, set[0].Payload, set[1].Payload)

	again, err := g.Generate(ctx, dinner(2))
	require.NoError(t, err)
	require.Equal(t, set, again)

	claims, err := g.Verify(set[1].Payload)
	require.NoError(t, err)
	require.Equal(t, model.ServiceDinner, claims.Type)
	require.Equal(t, "rec-1", claims.RecordID)
	require.Equal(t, uint64(7), claims.OwnerID)
	require.Equal(t, 1, claims.Unit)
	require.Equal(t, confirmedAt.Unix(), claims.Timestamp)
	require.Equal(t, confirmedAt.Add(30*day).Unix(), claims.ValidUntil)
}

func TestSigningIsDeterministic(t *testing.T) {
	g := newGenerator(t)
	a, err := g.Generate(context.Background(), dinner(1))
	require.NoError(t, err)

	other := newGenerator(t)
	b, err := other.Generate(context.Background(), dinner(1))
	require.NoError(t, err)
	require.Equal(t, a[0].Payload, b[0].Payload)
}

func TestGenerateRejectsUnconfirmed(t *testing.T) {
	g := newGenerator(t)
	rec := dinner(1)
	rec.Confirmed = false
	_, err := g.Generate(context.Background(), rec)
	require.ErrorIs(t, err, ErrNotConfirmed)
}

func TestConcurrentGenerateIssuesOneSet(t *testing.T) {
	g := newGenerator(t)
	ctx := context.Background()
	const n = 6
	var (
		wg   sync.WaitGroup
		sets [n][]model.RedeemableToken
		errs [n]error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sets[i], errs[i] = g.Generate(ctx, dinner(3))
		}(i)
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Len(t, sets[i], 3)
		require.Equal(t, sets[0], sets[i])
	}
}

func TestRedeemAndReset(t *testing.T) {
	g := newGenerator(t)
	ctx := context.Background()
	set, err := g.Generate(ctx, dinner(1))
	require.NoError(t, err)
	off := model.Official{ID: "s1", Name: "Gate"}

	tok, err := g.Redeem(ctx, set[0].Payload, off)
	require.NoError(t, err)
	require.True(t, tok.Used)
	require.Equal(t, "s1", tok.UsedBy)

	_, err = g.Redeem(ctx, set[0].Payload, off)
	require.ErrorIs(t, err, ErrAlreadyUsed)

	tok, err = g.Reset(ctx, set[0].Payload)
	require.NoError(t, err)
	require.False(t, tok.Used)

	_, err = g.Redeem(ctx, set[0].Payload, off)
	require.NoError(t, err)
}

func TestVerifyRejectsForgedAndExpired(t *testing.T) {
	g := newGenerator(t)
	ctx := context.Background()
	set, err := g.Generate(ctx, dinner(1))
	require.NoError(t, err)

	_, err = g.Verify(set[0].Payload + "x")
	require.ErrorIs(t, err, ErrInvalidToken)
	_, err = g.Verify("not-a-jwt")
	require.ErrorIs(t, err, ErrInvalidToken)

	forger, err := New("other-secret", nil, nil, logging.Discard())
	require.NoError(t, err)
	_, err = forger.Verify(set[0].Payload)
	require.ErrorIs(t, err, ErrInvalidToken)

	g.SetClock(func() time.Time { return confirmedAt.Add(31 * day) })
	_, err = g.Verify(set[0].Payload)
	require.ErrorIs(t, err, ErrExpiredToken)
	_, err = g.Redeem(ctx, set[0].Payload, model.Official{ID: "s1"})
	require.ErrorIs(t, err, ErrExpiredToken)

	// an admin can still reset an expired token
	_, err = g.Reset(ctx, set[0].Payload)
	require.NoError(t, err)
}

func TestRedeemUnknownPayload(t *testing.T) {
	g := newGenerator(t)
	payload, err := g.sign(Claims{Type: model.ServiceBrochure, RecordID: "ghost"})
	require.NoError(t, err)
	_, err = g.Redeem(context.Background(), payload, model.Official{ID: "s1"})
	require.ErrorIs(t, err, ErrUnknownToken)
}

func TestAccommodationValidUntilEndOfCheckOut(t *testing.T) {
	rec := &model.AccommodationBooking{
		CheckInDate:  time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		CheckOutDate: time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC),
		Rooms:        2,
	}
	p := DefaultPolicies()[model.ServiceAccommodation]
	got := p.ValidUntil(rec, confirmedAt)
	require.Equal(t, time.Date(2026, 5, 4, 23, 59, 59, 0, time.UTC), got)

	reg := DefaultPolicies()[model.ServiceRegistration]
	require.Equal(t, confirmedAt.Add(365*day), reg.ValidUntil(&model.Registration{}, confirmedAt))
}

func TestEveryServiceHasAPolicy(t *testing.T) {
	policies := DefaultPolicies()
	for _, k := range model.AllServices {
		_, ok := policies[k]
		require.True(t, ok, k)
	}
}

func confirmedBase(id string) model.RecordBase {
	at := confirmedAt
	return model.RecordBase{
		ID:          id,
		UserID:      7,
		Contact:     model.Contact{Name: "Ada Obi"},
		Confirmed:   true,
		ConfirmedAt: &at,
	}
}

func TestTokenCountPerServiceType(t *testing.T) {
	g := newGenerator(t)
	ctx := context.Background()
	cases := []struct {
		rec    model.Record
		count  int
		labels []string
	}{
		{&model.Registration{RecordBase: confirmedBase("reg-1")}, 1, []string{"Ada Obi"}},
		{&model.DinnerReservation{RecordBase: confirmedBase("din-1"), GuestCount: 3, Guests: model.GuestList{"Ada", "Bola"}},
			3, []string{"Ada", "Bola", "Guest 3"}},
		{&model.AccommodationBooking{
			RecordBase:   confirmedBase("acc-1"),
			CheckInDate:  time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
			CheckOutDate: time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC),
			Rooms:        2,
		}, 2, []string{"Ada Obi - room 1", "Ada Obi - room 2"}},
		{&model.BrochureOrder{RecordBase: confirmedBase("bro-1"), Quantity: 4}, 4, []string{"Copy 1", "Copy 2", "Copy 3", "Copy 4"}},
		{&model.GoodwillMessage{RecordBase: confirmedBase("gw-1"), Message: "Congratulations"}, 1, []string{"Ada Obi"}},
		{&model.Donation{RecordBase: confirmedBase("don-1"), Anonymous: true}, 1, []string{"Anonymous donor"}},
	}
	for _, tc := range cases {
		set, err := g.Generate(ctx, tc.rec)
		require.NoError(t, err, tc.rec.Kind())
		require.Len(t, set, tc.count, tc.rec.Kind())
		require.Len(t, tc.rec.Units(), tc.count, tc.rec.Kind())
		labels := make([]string, 0, len(set))
		for i, tok := range set {
			require.Equal(t, i, tok.UnitIndex)
			require.Equal(t, tc.rec.Kind(), tok.RecordType)
			labels = append(labels, tok.OwnerLabel)
		}
		require.Equal(t, tc.labels, labels, tc.rec.Kind())
	}
}

func TestIssueReportsOnlyTheInsertingCall(t *testing.T) {
	g := newGenerator(t)
	ctx := context.Background()

	set, issued, err := g.Issue(ctx, dinner(2))
	require.NoError(t, err)
	require.True(t, issued)
	require.Len(t, set, 2)

	again, issued, err := g.Issue(ctx, dinner(2))
	require.NoError(t, err)
	require.False(t, issued)
	require.Equal(t, set, again)

	const n = 6
	var (
		wg     sync.WaitGroup
		wins   [n]bool
		errs   [n]error
		record = dinner(3)
	)
	record.ID = "rec-2"
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, wins[i], errs[i] = g.Issue(ctx, record)
		}(i)
	}
	wg.Wait()
	issuedCount := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		if wins[i] {
			issuedCount++
		}
	}
	require.Equal(t, 1, issuedCount)
}
