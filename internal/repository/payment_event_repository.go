package repository

import (
	"context"
	"database/sql"
	"time"
)

// PaymentEvent is one row of the webhook audit log.  Every verified webhook
// is recorded, whatever its outcome.
type PaymentEvent struct {
	ID          uint64    `json:"id"`
	Event       string    `json:"event"`
	Reference   string    `json:"reference"`
	ServiceType string    `json:"serviceType"`
	Status      string    `json:"status"`
	Amount      int64     `json:"amount"`
	Outcome     string    `json:"outcome"`
	Error       string    `json:"error,omitempty"`
	ReceivedAt  time.Time `json:"receivedAt"`
}

// PaymentEventRepo appends to and reads from payment_events.
type PaymentEventRepo struct{ DB *sql.DB }

func NewPaymentEventRepo(db *sql.DB) *PaymentEventRepo { return &PaymentEventRepo{DB: db} }

// Append stores the event.  The audit log is append-only.
func (r *PaymentEventRepo) Append(ctx context.Context, ev PaymentEvent) error {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO payment_events (event, reference, service_type, status, amount, outcome, error, received_at) VALUES (?,?,?,?,?,?,?,?)",
		ev.Event, ev.Reference, ev.ServiceType, ev.Status, ev.Amount, ev.Outcome, ev.Error, ev.ReceivedAt)
	return err
}

// ListByReference returns the events seen for a reference, oldest first.
func (r *PaymentEventRepo) ListByReference(ctx context.Context, ref string) ([]PaymentEvent, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, event, reference, service_type, status, amount, outcome, error, received_at FROM payment_events WHERE reference=? ORDER BY id",
		ref)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]PaymentEvent, 0)
	for rows.Next() {
		var ev PaymentEvent
		if err := rows.Scan(&ev.ID, &ev.Event, &ev.Reference, &ev.ServiceType, &ev.Status, &ev.Amount, &ev.Outcome, &ev.Error, &ev.ReceivedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
