package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/convention-desk/internal/model"
)

// TokenRepo persists redeemable tokens (redeemable_tokens table).  A record
// owns one row per unit; the (record_type, payload) pair is unique so a
// payload can be looked up within its ledger.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

const tokenColumns = "id, record_type, record_id, unit_index, owner_label, payload, used, used_at, used_by, created_at"

func scanToken(row rowScanner) (model.RedeemableToken, error) {
	var (
		t      model.RedeemableToken
		kind   string
		usedAt sql.NullTime
	)
	err := row.Scan(&t.ID, &kind, &t.RecordID, &t.UnitIndex, &t.OwnerLabel, &t.Payload, &t.Used, &usedAt, &t.UsedBy, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.RecordType = model.ServiceType(kind)
	t.UsedAt = timePtr(usedAt)
	return t, nil
}

// ListByRecord returns the record's tokens ordered by unit index.
func (r *TokenRepo) ListByRecord(ctx context.Context, kind model.ServiceType, recordID string) ([]model.RedeemableToken, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+tokenColumns+" FROM redeemable_tokens WHERE record_type=? AND record_id=? ORDER BY unit_index",
		string(kind), recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.RedeemableToken, 0)
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertSet stores a record's whole token set in one transaction.  If any
// row collides with an existing one nothing is written and ErrDuplicate is
// returned, which callers treat as "someone else already issued the set".
func (r *TokenRepo) InsertSet(ctx context.Context, tokens []model.RedeemableToken) error {
	if len(tokens) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO redeemable_tokens (record_type, record_id, unit_index, owner_label, payload, used, used_by, created_at) VALUES (?,?,?,?,?,0,'',?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, t := range tokens {
		created := t.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, string(t.RecordType), t.RecordID, t.UnitIndex, t.OwnerLabel, t.Payload, created); err != nil {
			if isDuplicate(err) {
				return ErrDuplicate
			}
			return err
		}
	}
	return tx.Commit()
}

// GetByPayload looks a token up within its ledger.
func (r *TokenRepo) GetByPayload(ctx context.Context, kind model.ServiceType, payload string) (model.RedeemableToken, error) {
	return scanToken(r.DB.QueryRowContext(ctx,
		"SELECT "+tokenColumns+" FROM redeemable_tokens WHERE record_type=? AND payload=? LIMIT 1",
		string(kind), payload))
}

// MarkUsed flips used=false→true.  Exactly one of several concurrent
// callers succeeds; the others get ErrConflict.  ErrNotFound means the
// payload was never issued.
func (r *TokenRepo) MarkUsed(ctx context.Context, kind model.ServiceType, payload, usedBy string, at time.Time) (model.RedeemableToken, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE redeemable_tokens SET used=1, used_at=?, used_by=? WHERE record_type=? AND payload=? AND used=0",
		at, usedBy, string(kind), payload)
	if err != nil {
		return model.RedeemableToken{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.RedeemableToken{}, err
	}
	t, err := r.GetByPayload(ctx, kind, payload)
	if err != nil {
		return t, err
	}
	if n == 0 {
		return t, ErrConflict
	}
	return t, nil
}

// Reset clears the used flag.  Resetting an unused token is a no-op.
func (r *TokenRepo) Reset(ctx context.Context, kind model.ServiceType, payload string) (model.RedeemableToken, error) {
	if _, err := r.DB.ExecContext(ctx,
		"UPDATE redeemable_tokens SET used=0, used_at=NULL, used_by='' WHERE record_type=? AND payload=?",
		string(kind), payload); err != nil {
		return model.RedeemableToken{}, err
	}
	return r.GetByPayload(ctx, kind, payload)
}
