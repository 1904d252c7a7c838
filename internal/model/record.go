package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Contact is the owner information captured at intake.  It is stored on
// every ledger row so that notifications and the ticket view never need a
// second lookup.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// RecordBase holds the columns shared by all six ledger tables.
//
// Fields:
//
//	ID               – public ticket id (uuid), primary key of the row.
//	UserID           – owning attendee (users.id).
//	Contact          – name, email and phone captured at intake.
//	PaymentReference – unique idempotency key, never mutated after insert.
//	Amount           – expected amount in major currency units.
//	Confirmed        – flips false→true exactly once, by reconciliation.
//	ConfirmedAt      – when the flip happened (nil while unconfirmed).
//	CheckedIn        – current presence state.
//	CheckedInAt      – last check-in time.
//	CheckedOutAt     – last check-out time, cleared on re-entry.
//	Collected        – one-way collection flag (brochure pickup).
//	CollectedAt      – when the collection happened.
//	CreatedAt        – intake time.
type RecordBase struct {
	ID               string     `json:"id"`
	UserID           uint64     `json:"userId"`
	Contact          Contact    `json:"contact"`
	PaymentReference string     `json:"paymentReference"`
	Amount           int64      `json:"amount"`
	Confirmed        bool       `json:"confirmed"`
	ConfirmedAt      *time.Time `json:"confirmedAt,omitempty"`
	CheckedIn        bool       `json:"checkedIn"`
	CheckedInAt      *time.Time `json:"checkedInAt,omitempty"`
	CheckedOutAt     *time.Time `json:"checkedOutAt,omitempty"`
	Collected        bool       `json:"collected"`
	CollectedAt      *time.Time `json:"collectedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// Base lets concrete records satisfy the Record interface by embedding.
func (b *RecordBase) Base() *RecordBase { return b }

// Unit is one redeemable thing inside a record: a guest, a room, a copy.
type Unit struct {
	Index int
	Label string
}

// Record is implemented by each of the six ledger row types.  The
// repository layer uses Columns/Values/ScanDest to persist the
// type-specific attributes without knowing the concrete type.
type Record interface {
	Base() *RecordBase
	Kind() ServiceType
	// Columns lists the type-specific columns, in a fixed order.
	Columns() []string
	// Values returns insert arguments matching Columns.
	Values() []any
	// ScanDest returns scan destinations matching Columns.
	ScanDest() []any
	// Units enumerates the redeemable units a confirmed record issues tokens for.
	Units() []Unit
}

// NewRecord returns an empty record of the given kind, ready to be scanned
// into.  It returns nil for ServiceUnknown.
func NewRecord(kind ServiceType) Record {
	switch kind {
	case ServiceRegistration:
		return &Registration{}
	case ServiceDinner:
		return &DinnerReservation{}
	case ServiceAccommodation:
		return &AccommodationBooking{}
	case ServiceBrochure:
		return &BrochureOrder{}
	case ServiceGoodwill:
		return &GoodwillMessage{}
	case ServiceDonation:
		return &Donation{}
	}
	return nil
}

// GuestList is stored as a JSON array in a TEXT column.
type GuestList []string

// Value implements driver.Valuer.
func (g GuestList) Value() (driver.Value, error) {
	if g == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(g))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (g *GuestList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*g = GuestList{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("guest list: unsupported type %T", src)
	}
	if len(raw) == 0 {
		*g = GuestList{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return errors.New("guest list: invalid json")
	}
	*g = out
	return nil
}
