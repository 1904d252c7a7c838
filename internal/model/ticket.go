package model

import "time"

// CheckInAction is one of the transitions recorded in a ticket's history.
type CheckInAction string

const (
	ActionCheckIn   CheckInAction = "check-in"
	ActionCheckOut  CheckInAction = "check-out"
	ActionCollected CheckInAction = "collected"
)

// Official identifies the staff member performing a scan.
type Official struct {
	ID   string `json:"officialId"`
	Name string `json:"officialName"`
}

// CheckInEvent is one append-only history entry (checkin_events table).
type CheckInEvent struct {
	Action       CheckInAction `json:"action"`
	Timestamp    time.Time     `json:"timestamp"`
	OfficialID   string        `json:"officialId"`
	OfficialName string        `json:"officialName"`
}

// RedeemableToken is the scannable payload bound to one unit of a confirmed
// record.  Used flips false→true once on redemption; only an explicit admin
// reset turns it back.
type RedeemableToken struct {
	ID         uint64      `json:"-"`
	RecordType ServiceType `json:"type"`
	RecordID   string      `json:"recordId"`
	UnitIndex  int         `json:"unit"`
	OwnerLabel string      `json:"ownerLabel"`
	Payload    string      `json:"payload"`
	Used       bool        `json:"used"`
	UsedAt     *time.Time  `json:"usedAt,omitempty"`
	UsedBy     string      `json:"usedBy,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// TicketView is the normalised, read-only projection handed to staff
// tooling.  It is derived from a ledger row and never persisted.
type TicketView struct {
	ID               string            `json:"id"`
	Type             ServiceType       `json:"type"`
	OwnerContact     Contact           `json:"ownerContact"`
	Amount           int64             `json:"amount"`
	PaymentReference string            `json:"paymentReference"`
	Confirmed        bool              `json:"confirmed"`
	CheckedIn        bool              `json:"checkedIn"`
	CheckedInAt      *time.Time        `json:"checkedInAt"`
	CheckedOutAt     *time.Time        `json:"checkedOutAt"`
	Collected        bool              `json:"collected"`
	CollectedAt      *time.Time        `json:"collectedAt"`
	CreatedAt        time.Time         `json:"createdAt"`
	History          []CheckInEvent    `json:"history"`
	Tokens           []RedeemableToken `json:"tokens"`
}

// NewTicketView projects a record plus its history and tokens.
func NewTicketView(rec Record, history []CheckInEvent, tokens []RedeemableToken) TicketView {
	b := rec.Base()
	if history == nil {
		history = []CheckInEvent{}
	}
	if tokens == nil {
		tokens = []RedeemableToken{}
	}
	return TicketView{
		ID:               b.ID,
		Type:             rec.Kind(),
		OwnerContact:     b.Contact,
		Amount:           b.Amount,
		PaymentReference: b.PaymentReference,
		Confirmed:        b.Confirmed,
		CheckedIn:        b.CheckedIn,
		CheckedInAt:      b.CheckedInAt,
		CheckedOutAt:     b.CheckedOutAt,
		Collected:        b.Collected,
		CollectedAt:      b.CollectedAt,
		CreatedAt:        b.CreatedAt,
		History:          history,
		Tokens:           tokens,
	}
}
