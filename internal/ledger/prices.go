package ledger

import (
	"fmt"
	"sort"
	"strings"
)

// DiscountTier applies Percent off once the quantity reaches MinQuantity.
type DiscountTier struct {
	MinQuantity int
	Percent     int64
}

// Prices is the price list in major currency units.  All arithmetic is
// integer; discounts round down.
type Prices struct {
	RegistrationByCategory map[string]int64
	DinnerPerGuest         int64
	RoomPerNight           int64
	BrochurePerCopy        int64
	BrochureTiers          []DiscountTier
	GoodwillStandard       int64
	GoodwillFeatured       int64
	DonationMinimum        int64
}

// DefaultPrices returns the convention's standard price list.
func DefaultPrices() Prices {
	return Prices{
		RegistrationByCategory: map[string]int64{
			"delegate": 200,
			"student":  100,
			"guest":    150,
		},
		DinnerPerGuest:   75,
		RoomPerNight:     60,
		BrochurePerCopy:  10,
		BrochureTiers:    []DiscountTier{{MinQuantity: 10, Percent: 10}, {MinQuantity: 50, Percent: 20}},
		GoodwillStandard: 50,
		GoodwillFeatured: 100,
		DonationMinimum:  1,
	}
}

// Registration returns the fee for a category.
func (p Prices) Registration(category string) (int64, error) {
	fee, ok := p.RegistrationByCategory[strings.ToLower(strings.TrimSpace(category))]
	if !ok {
		return 0, fmt.Errorf("%w: unknown registration category %q", ErrInvalidDetails, category)
	}
	return fee, nil
}

// Dinner returns the price for the given number of guests.
func (p Prices) Dinner(guests int) int64 { return p.DinnerPerGuest * int64(guests) }

// Accommodation returns the price for rooms × nights.
func (p Prices) Accommodation(rooms, nights int) int64 {
	if nights < 1 {
		nights = 1
	}
	return p.RoomPerNight * int64(rooms) * int64(nights)
}

// Brochure returns the price for a number of copies after the best
// applicable tier discount.
func (p Prices) Brochure(quantity int) int64 {
	subtotal := p.BrochurePerCopy * int64(quantity)
	tiers := append([]DiscountTier(nil), p.BrochureTiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinQuantity > tiers[j].MinQuantity })
	for _, t := range tiers {
		if quantity >= t.MinQuantity {
			return subtotal * (100 - t.Percent) / 100
		}
	}
	return subtotal
}

// Goodwill returns the price of a message.
func (p Prices) Goodwill(featured bool) int64 {
	if featured {
		return p.GoodwillFeatured
	}
	return p.GoodwillStandard
}

// Donation validates a donor-chosen amount and returns it.
func (p Prices) Donation(amount int64) (int64, error) {
	if amount < p.DonationMinimum {
		return 0, fmt.Errorf("%w: donation must be at least %d", ErrInvalidDetails, p.DonationMinimum)
	}
	return amount, nil
}

// WithOverrides returns a copy of p with named prices replaced.  Names are
// REGISTRATION_<CATEGORY>, DINNER_PER_GUEST, ROOM_PER_NIGHT,
// BROCHURE_PER_COPY, GOODWILL_STANDARD, GOODWILL_FEATURED and
// DONATION_MINIMUM.  An unknown name is an error.
func (p Prices) WithOverrides(overrides map[string]int64) (Prices, error) {
	out := p
	out.RegistrationByCategory = make(map[string]int64, len(p.RegistrationByCategory))
	for k, v := range p.RegistrationByCategory {
		out.RegistrationByCategory[k] = v
	}
	out.BrochureTiers = append([]DiscountTier(nil), p.BrochureTiers...)

	for name, v := range overrides {
		key := strings.ToUpper(strings.TrimSpace(name))
		switch key {
		case "DINNER_PER_GUEST":
			out.DinnerPerGuest = v
		case "ROOM_PER_NIGHT":
			out.RoomPerNight = v
		case "BROCHURE_PER_COPY":
			out.BrochurePerCopy = v
		case "GOODWILL_STANDARD":
			out.GoodwillStandard = v
		case "GOODWILL_FEATURED":
			out.GoodwillFeatured = v
		case "DONATION_MINIMUM":
			out.DonationMinimum = v
		default:
			category, ok := strings.CutPrefix(key, "REGISTRATION_")
			if !ok || category == "" {
				return p, fmt.Errorf("unknown price override %q", name)
			}
			out.RegistrationByCategory[strings.ToLower(category)] = v
		}
	}
	return out, nil
}
