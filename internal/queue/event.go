// Package queue defines the messages exchanged over the message broker and
// the AMQP publisher and consumer that move them.
package queue

// PaymentConfirmedEvent is published once per record, when reconciliation
// flips it to confirmed.  It carries enough to notify the owner without
// querying the ledgers.
type PaymentConfirmedEvent struct {
	Service     string   `json:"service"`
	RecordID    string   `json:"record_id"`
	UserID      uint64   `json:"user_id"`
	Reference   string   `json:"payment_reference"`
	Amount      int64    `json:"amount"`
	OwnerName   string   `json:"owner_name"`
	OwnerEmail  string   `json:"owner_email"`
	OwnerPhone  string   `json:"owner_phone"`
	Units       []string `json:"units"`
	TokenCount  int      `json:"token_count"`
	ConfirmedAt string   `json:"confirmed_at"`
}
