package qrtoken

import (
	"time"

	"github.com/iliyamo/convention-desk/internal/model"
)

const day = 24 * time.Hour

// ValidityPolicy decides how long a record's tokens stay valid.  Either a
// fixed TTL from issue, or a record-derived deadline.
type ValidityPolicy struct {
	TTL   time.Duration
	Until func(rec model.Record) time.Time
}

// ValidUntil returns the expiry for tokens issued at issued.
func (p ValidityPolicy) ValidUntil(rec model.Record, issued time.Time) time.Time {
	if p.Until != nil {
		return p.Until(rec)
	}
	return issued.Add(p.TTL)
}

// DefaultPolicies is the per-type validity table.  Supporting a new service
// type means adding a row here.
func DefaultPolicies() map[model.ServiceType]ValidityPolicy {
	return map[model.ServiceType]ValidityPolicy{
		model.ServiceRegistration:  {TTL: 365 * day},
		model.ServiceDinner:        {TTL: 30 * day},
		model.ServiceAccommodation: {Until: endOfCheckOut},
		model.ServiceBrochure:      {TTL: 90 * day},
		model.ServiceGoodwill:      {TTL: 365 * day},
		model.ServiceDonation:      {TTL: 365 * day},
	}
}

// endOfCheckOut is the last second of the booking's check-out date, UTC.
func endOfCheckOut(rec model.Record) time.Time {
	a, ok := rec.(*model.AccommodationBooking)
	if !ok {
		return time.Time{}
	}
	y, m, d := a.CheckOutDate.UTC().Date()
	return time.Date(y, m, d, 23, 59, 59, 0, time.UTC)
}
