package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/convention-desk/internal/model"
)

func TestTokenSetLifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewTokenRepo(db)
	ctx := context.Background()

	set := []model.RedeemableToken{
		{RecordType: model.ServiceDinner, RecordID: "r1", UnitIndex: 0, OwnerLabel: "Ada", Payload: "p0"},
		{RecordType: model.ServiceDinner, RecordID: "r1", UnitIndex: 1, OwnerLabel: "Bola", Payload: "p1"},
	}
	require.NoError(t, repo.InsertSet(ctx, set))
	require.ErrorIs(t, repo.InsertSet(ctx, set), ErrDuplicate)

	got, err := repo.ListByRecord(ctx, model.ServiceDinner, "r1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Bola", got[1].OwnerLabel)

	at := time.Date(2026, 5, 1, 19, 0, 0, 0, time.UTC)
	tok, err := repo.MarkUsed(ctx, model.ServiceDinner, "p0", "s1", at)
	require.NoError(t, err)
	require.True(t, tok.Used)
	require.Equal(t, "s1", tok.UsedBy)

	_, err = repo.MarkUsed(ctx, model.ServiceDinner, "p0", "s2", at)
	require.ErrorIs(t, err, ErrConflict)

	_, err = repo.MarkUsed(ctx, model.ServiceDinner, "nope", "s1", at)
	require.ErrorIs(t, err, ErrNotFound)

	// payloads are scoped per ledger
	_, err = repo.GetByPayload(ctx, model.ServiceRegistration, "p0")
	require.ErrorIs(t, err, ErrNotFound)

	tok, err = repo.Reset(ctx, model.ServiceDinner, "p0")
	require.NoError(t, err)
	require.False(t, tok.Used)
	require.Nil(t, tok.UsedAt)

	_, err = repo.MarkUsed(ctx, model.ServiceDinner, "p0", "s2", at)
	require.NoError(t, err)
}

func TestPaymentEventAppend(t *testing.T) {
	db := newTestDB(t)
	repo := NewPaymentEventRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, PaymentEvent{Event: "charge.success", Reference: "R_1", ServiceType: "dinner", Status: "success", Amount: 150, Outcome: "confirmed"}))
	require.NoError(t, repo.Append(ctx, PaymentEvent{Event: "charge.success", Reference: "R_1", ServiceType: "dinner", Status: "success", Amount: 150, Outcome: "already_confirmed"}))

	evs, err := repo.ListByReference(ctx, "R_1")
	require.NoError(t, err)
	require.Len(t, evs, 2)
	require.Equal(t, "already_confirmed", evs[1].Outcome)
}
