package model

import "strings"

// ServiceType identifies which ledger a record or payment belongs to.  The
// zero value is ServiceUnknown, which is a valid classification result and
// never an error on its own.
type ServiceType string

const (
	ServiceUnknown       ServiceType = ""
	ServiceRegistration  ServiceType = "registration"
	ServiceDinner        ServiceType = "dinner"
	ServiceAccommodation ServiceType = "accommodation"
	ServiceBrochure      ServiceType = "brochure"
	ServiceGoodwill      ServiceType = "goodwill"
	ServiceDonation      ServiceType = "donation"
)

// AllServices lists every known ledger in check-in priority order followed by
// the ledgers that never produce scannable tickets.
var AllServices = []ServiceType{
	ServiceRegistration,
	ServiceDinner,
	ServiceAccommodation,
	ServiceBrochure,
	ServiceGoodwill,
	ServiceDonation,
}

// ParseServiceType maps the canonical lowercase name back to a ServiceType.
// Unrecognised input yields ServiceUnknown.
func ParseServiceType(s string) ServiceType {
	v := ServiceType(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range AllServices {
		if k == v {
			return k
		}
	}
	return ServiceUnknown
}

// Known reports whether the type names one of the six ledgers.
func (t ServiceType) Known() bool { return t != ServiceUnknown && ParseServiceType(string(t)) == t }

// Table returns the name of the table backing this ledger.
func (t ServiceType) Table() string {
	switch t {
	case ServiceRegistration:
		return "registrations"
	case ServiceDinner:
		return "dinner_reservations"
	case ServiceAccommodation:
		return "accommodation_bookings"
	case ServiceBrochure:
		return "brochure_orders"
	case ServiceGoodwill:
		return "goodwill_messages"
	case ServiceDonation:
		return "donations"
	}
	return ""
}

// Prefix is the abbreviation used when minting payment references.
func (t ServiceType) Prefix() string {
	switch t {
	case ServiceRegistration:
		return "REG"
	case ServiceDinner:
		return "DIN"
	case ServiceAccommodation:
		return "ACC"
	case ServiceBrochure:
		return "BRO"
	case ServiceGoodwill:
		return "GW"
	case ServiceDonation:
		return "DON"
	}
	return "UNK"
}

func (t ServiceType) String() string {
	if t == ServiceUnknown {
		return "unknown"
	}
	return string(t)
}
