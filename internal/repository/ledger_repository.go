package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/convention-desk/internal/model"
)

// baseColumns are shared by all six ledger tables, in scan order.
var baseColumns = []string{
	"id", "user_id", "contact_name", "contact_email", "contact_phone",
	"payment_reference", "amount", "confirmed", "confirmed_at",
	"checked_in", "checked_in_at", "checked_out_at",
	"collected", "collected_at", "created_at",
}

// LedgerRepo is the table gateway for one service ledger.  The same code
// serves all six tables; the type-specific columns come from the model.
// Every state change is a single conditional UPDATE so that concurrent
// webhooks and scanners cannot both win the same transition.
type LedgerRepo struct {
	db      *sql.DB
	kind    model.ServiceType
	table   string
	columns []string
	now     func() time.Time
}

// NewLedgerRepo returns the gateway for the given ledger.  It panics on an
// unknown kind since that is a wiring mistake, not a runtime condition.
func NewLedgerRepo(db *sql.DB, kind model.ServiceType) *LedgerRepo {
	proto := model.NewRecord(kind)
	if proto == nil {
		panic(fmt.Sprintf("no ledger for service type %q", kind))
	}
	cols := append(append([]string{}, baseColumns...), proto.Columns()...)
	return &LedgerRepo{
		db:      db,
		kind:    kind,
		table:   kind.Table(),
		columns: cols,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Kind returns the ledger this gateway serves.
func (r *LedgerRepo) Kind() model.ServiceType { return r.kind }

// SetClock overrides the time source; tests use it for deterministic stamps.
func (r *LedgerRepo) SetClock(now func() time.Time) { r.now = now }

func (r *LedgerRepo) selectSQL(where string) string {
	return "SELECT " + strings.Join(r.columns, ", ") + " FROM " + r.table + " WHERE " + where
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *LedgerRepo) scan(row rowScanner) (model.Record, error) {
	rec := model.NewRecord(r.kind)
	b := rec.Base()
	var confirmedAt, checkedInAt, checkedOutAt, collectedAt sql.NullTime
	dest := []any{
		&b.ID, &b.UserID, &b.Contact.Name, &b.Contact.Email, &b.Contact.Phone,
		&b.PaymentReference, &b.Amount, &b.Confirmed, &confirmedAt,
		&b.CheckedIn, &checkedInAt, &checkedOutAt,
		&b.Collected, &collectedAt, &b.CreatedAt,
	}
	dest = append(dest, rec.ScanDest()...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	b.ConfirmedAt = timePtr(confirmedAt)
	b.CheckedInAt = timePtr(checkedInAt)
	b.CheckedOutAt = timePtr(checkedOutAt)
	b.CollectedAt = timePtr(collectedAt)
	return rec, nil
}

// Insert stores a new, unconfirmed record.  The id and creation time are
// filled in when empty.  A repeated payment reference yields ErrDuplicate.
func (r *LedgerRepo) Insert(ctx context.Context, rec model.Record) error {
	if rec.Kind() != r.kind {
		return fmt.Errorf("ledger %s cannot store %s records", r.kind, rec.Kind())
	}
	b := rec.Base()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = r.now()
	}
	args := []any{
		b.ID, b.UserID, b.Contact.Name, b.Contact.Email, b.Contact.Phone,
		b.PaymentReference, b.Amount, b.Confirmed, nullable(b.ConfirmedAt),
		b.CheckedIn, nullable(b.CheckedInAt), nullable(b.CheckedOutAt),
		b.Collected, nullable(b.CollectedAt), b.CreatedAt,
	}
	args = append(args, rec.Values()...)
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")
	q := "INSERT INTO " + r.table + " (" + strings.Join(r.columns, ", ") + ") VALUES (" + placeholders + ")"
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetByID returns the record with the given ticket id.
func (r *LedgerRepo) GetByID(ctx context.Context, id string) (model.Record, error) {
	return r.scan(r.db.QueryRowContext(ctx, r.selectSQL("id = ?"), id))
}

// GetByReference returns the record owning the payment reference.
func (r *LedgerRepo) GetByReference(ctx context.Context, ref string) (model.Record, error) {
	return r.scan(r.db.QueryRowContext(ctx, r.selectSQL("payment_reference = ?"), ref))
}

// LatestByUser returns the user's most recently created record in this ledger.
func (r *LedgerRepo) LatestByUser(ctx context.Context, userID uint64) (model.Record, error) {
	q := r.selectSQL("user_id = ?") + " ORDER BY created_at DESC, id DESC LIMIT 1"
	return r.scan(r.db.QueryRowContext(ctx, q, userID))
}

// Confirm flips confirmed=false→true for the record owning ref.  The flip is
// one conditional UPDATE, so among concurrent callers exactly one observes
// newly=true.  Everyone gets the current record back; an unknown reference
// yields ErrNotFound.
func (r *LedgerRepo) Confirm(ctx context.Context, ref string) (rec model.Record, newly bool, err error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE "+r.table+" SET confirmed = 1, confirmed_at = ? WHERE payment_reference = ? AND confirmed = 0",
		r.now(), ref)
	if err != nil {
		return nil, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	rec, err = r.GetByReference(ctx, ref)
	if err != nil {
		return nil, false, err
	}
	return rec, n == 1, nil
}

// CheckIn marks the ticket present.  It fails with ErrConflict when the
// ticket is already checked in.  Any stale check-out time is cleared and the
// record is forced to confirmed; forced reports whether it was unconfirmed.
func (r *LedgerRepo) CheckIn(ctx context.Context, id string, official model.Official) (forced bool, err error) {
	now := r.now()
	err = r.withTx(ctx, func(tx *sql.Tx) error {
		var confirmed bool
		if err := tx.QueryRowContext(ctx, "SELECT confirmed FROM "+r.table+" WHERE id = ?", id).Scan(&confirmed); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		res, err := tx.ExecContext(ctx,
			"UPDATE "+r.table+" SET checked_in = 1, checked_in_at = ?, checked_out_at = NULL, confirmed = 1, confirmed_at = COALESCE(confirmed_at, ?) WHERE id = ? AND checked_in = 0",
			now, now, id)
		if err != nil {
			return err
		}
		if err := expectOne(res); err != nil {
			return err
		}
		forced = !confirmed
		return r.appendEventTx(ctx, tx, id, model.ActionCheckIn, official, now)
	})
	return forced, err
}

// CheckOut marks a checked-in ticket as temporarily out.  It fails with
// ErrConflict when the ticket is not checked in.
func (r *LedgerRepo) CheckOut(ctx context.Context, id string, official model.Official) error {
	now := r.now()
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE "+r.table+" SET checked_in = 0, checked_out_at = ? WHERE id = ? AND checked_in = 1",
			now, id)
		if err != nil {
			return err
		}
		if err := r.expectOneOrMissing(ctx, tx, res, id); err != nil {
			return err
		}
		return r.appendEventTx(ctx, tx, id, model.ActionCheckOut, official, now)
	})
}

// Collect sets the one-way collected flag.  With strict set, collecting an
// already collected record fails with ErrConflict; otherwise it is a no-op
// and changed is false.
func (r *LedgerRepo) Collect(ctx context.Context, id string, official model.Official, strict bool) (changed bool, err error) {
	now := r.now()
	err = r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE "+r.table+" SET collected = 1, collected_at = ? WHERE id = ? AND collected = 0",
			now, id)
		if err != nil {
			return err
		}
		err = r.expectOneOrMissing(ctx, tx, res, id)
		if errors.Is(err, ErrConflict) && !strict {
			return nil
		}
		if err != nil {
			return err
		}
		changed = true
		return r.appendEventTx(ctx, tx, id, model.ActionCollected, official, now)
	})
	return changed, err
}

// History returns the record's check-in events, oldest first.
func (r *LedgerRepo) History(ctx context.Context, id string) ([]model.CheckInEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT action, created_at, official_id, official_name FROM checkin_events WHERE record_type = ? AND record_id = ? ORDER BY id",
		string(r.kind), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.CheckInEvent, 0)
	for rows.Next() {
		var ev model.CheckInEvent
		var action string
		if err := rows.Scan(&action, &ev.Timestamp, &ev.OfficialID, &ev.OfficialName); err != nil {
			return nil, err
		}
		ev.Action = model.CheckInAction(action)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *LedgerRepo) appendEventTx(ctx context.Context, tx *sql.Tx, id string, action model.CheckInAction, official model.Official, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO checkin_events (record_type, record_id, action, official_id, official_name, created_at) VALUES (?,?,?,?,?,?)",
		string(r.kind), id, string(action), official.ID, official.Name, at)
	return err
}

// expectOneOrMissing distinguishes a missing row from a state conflict
// after a conditional update touched nothing.
func (r *LedgerRepo) expectOneOrMissing(ctx context.Context, tx *sql.Tx, res sql.Result, id string) error {
	err := expectOne(res)
	if !errors.Is(err, ErrConflict) {
		return err
	}
	var one int
	if err := tx.QueryRowContext(ctx, "SELECT 1 FROM "+r.table+" WHERE id = ?", id).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return ErrConflict
}

func (r *LedgerRepo) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func nullable(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
