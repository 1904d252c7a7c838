package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iliyamo/convention-desk/internal/model"
)

const (
	dateLayout       = "2006-01-02"
	maxGuests        = 20
	maxRooms         = 10
	maxCopies        = 500
	maxNights        = 60
	maxMessageLength = 500
	// maxNameLength keeps names and the token labels built from them
	// ("<name> - room N") inside the 191 character columns.
	maxNameLength = 120
	maxNoteLength = 500
)

// kindSpec is what differs between the six adapters: how to turn intake
// details into a record, how to price that record, and how to quote a price
// from query parameters.
type kindSpec struct {
	kind     model.ServiceType
	eligible bool
	build    func(details json.RawMessage) (model.Record, error)
	price    func(p Prices, rec model.Record) (int64, error)
	quote    func(p Prices, q url.Values) (int64, error)
}

var specs = []kindSpec{
	{
		kind:     model.ServiceRegistration,
		eligible: true,
		build:    buildRegistration,
		price: func(p Prices, rec model.Record) (int64, error) {
			return p.Registration(rec.(*model.Registration).Category)
		},
		quote: func(p Prices, q url.Values) (int64, error) {
			return p.Registration(orDefault(q.Get("category"), "delegate"))
		},
	},
	{
		kind:     model.ServiceDinner,
		eligible: true,
		build:    buildDinner,
		price: func(p Prices, rec model.Record) (int64, error) {
			return p.Dinner(rec.(*model.DinnerReservation).GuestCount), nil
		},
		quote: func(p Prices, q url.Values) (int64, error) {
			n, err := intParam(q, "guests", 1, 1, maxGuests)
			if err != nil {
				return 0, err
			}
			return p.Dinner(n), nil
		},
	},
	{
		kind:     model.ServiceAccommodation,
		eligible: true,
		build:    buildAccommodation,
		price: func(p Prices, rec model.Record) (int64, error) {
			a := rec.(*model.AccommodationBooking)
			return p.Accommodation(a.Rooms, a.Nights()), nil
		},
		quote: func(p Prices, q url.Values) (int64, error) {
			rooms, err := intParam(q, "rooms", 1, 1, maxRooms)
			if err != nil {
				return 0, err
			}
			nights, err := intParam(q, "nights", 1, 1, maxNights)
			if err != nil {
				return 0, err
			}
			return p.Accommodation(rooms, nights), nil
		},
	},
	{
		kind:     model.ServiceBrochure,
		eligible: true,
		build:    buildBrochure,
		price: func(p Prices, rec model.Record) (int64, error) {
			return p.Brochure(rec.(*model.BrochureOrder).Quantity), nil
		},
		quote: func(p Prices, q url.Values) (int64, error) {
			n, err := intParam(q, "quantity", 1, 1, maxCopies)
			if err != nil {
				return 0, err
			}
			return p.Brochure(n), nil
		},
	},
	{
		kind:  model.ServiceGoodwill,
		build: buildGoodwill,
		price: func(p Prices, rec model.Record) (int64, error) {
			return p.Goodwill(rec.(*model.GoodwillMessage).Featured), nil
		},
		quote: func(p Prices, q url.Values) (int64, error) {
			featured, _ := strconv.ParseBool(q.Get("featured"))
			return p.Goodwill(featured), nil
		},
	},
	{
		kind:  model.ServiceDonation,
		build: buildDonation,
		price: func(p Prices, rec model.Record) (int64, error) {
			return p.Donation(rec.(*model.Donation).Amount)
		},
		quote: func(p Prices, q url.Values) (int64, error) {
			v, err := strconv.ParseInt(q.Get("amount"), 10, 64)
			if err != nil {
				return 0, fmt.Errorf("%w: amount must be an integer", ErrInvalidDetails)
			}
			return p.Donation(v)
		},
	},
}

func decodeStrict(details json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(details)) == 0 {
		details = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(details))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDetails, err)
	}
	return nil
}

func buildRegistration(details json.RawMessage) (model.Record, error) {
	var in struct {
		Category     string `json:"category"`
		Organization string `json:"organization"`
	}
	if err := decodeStrict(details, &in); err != nil {
		return nil, err
	}
	org := strings.TrimSpace(in.Organization)
	if tooLong(org, maxNameLength) {
		return nil, fmt.Errorf("%w: organization longer than %d characters", ErrInvalidDetails, maxNameLength)
	}
	return &model.Registration{
		Category:     strings.ToLower(orDefault(in.Category, "delegate")),
		Organization: org,
	}, nil
}

func buildDinner(details json.RawMessage) (model.Record, error) {
	var in struct {
		GuestCount int      `json:"guestCount"`
		Guests     []string `json:"guests"`
	}
	if err := decodeStrict(details, &in); err != nil {
		return nil, err
	}
	if in.GuestCount == 0 {
		in.GuestCount = len(in.Guests)
	}
	if in.GuestCount < 1 || in.GuestCount > maxGuests {
		return nil, fmt.Errorf("%w: guestCount must be between 1 and %d", ErrInvalidDetails, maxGuests)
	}
	if len(in.Guests) > in.GuestCount {
		return nil, fmt.Errorf("%w: more guest names than guestCount", ErrInvalidDetails)
	}
	guests := make(model.GuestList, 0, len(in.Guests))
	for _, g := range in.Guests {
		g = strings.TrimSpace(g)
		if tooLong(g, maxNameLength) {
			return nil, fmt.Errorf("%w: guest name longer than %d characters", ErrInvalidDetails, maxNameLength)
		}
		guests = append(guests, g)
	}
	return &model.DinnerReservation{GuestCount: in.GuestCount, Guests: guests}, nil
}

func buildAccommodation(details json.RawMessage) (model.Record, error) {
	var in struct {
		CheckInDate  string `json:"checkInDate"`
		CheckOutDate string `json:"checkOutDate"`
		Rooms        int    `json:"rooms"`
		RoomType     string `json:"roomType"`
	}
	if err := decodeStrict(details, &in); err != nil {
		return nil, err
	}
	in.Rooms = max(in.Rooms, 1)
	if in.Rooms > maxRooms {
		return nil, fmt.Errorf("%w: at most %d rooms per booking", ErrInvalidDetails, maxRooms)
	}
	checkIn, err := time.Parse(dateLayout, strings.TrimSpace(in.CheckInDate))
	if err != nil {
		return nil, fmt.Errorf("%w: checkInDate must be YYYY-MM-DD", ErrInvalidDetails)
	}
	checkOut, err := time.Parse(dateLayout, strings.TrimSpace(in.CheckOutDate))
	if err != nil {
		return nil, fmt.Errorf("%w: checkOutDate must be YYYY-MM-DD", ErrInvalidDetails)
	}
	if !checkOut.After(checkIn) {
		return nil, fmt.Errorf("%w: checkOutDate must be after checkInDate", ErrInvalidDetails)
	}
	b := &model.AccommodationBooking{
		CheckInDate:  checkIn,
		CheckOutDate: checkOut,
		Rooms:        in.Rooms,
		RoomType:     strings.ToLower(orDefault(in.RoomType, "standard")),
	}
	if b.Nights() > maxNights {
		return nil, fmt.Errorf("%w: at most %d nights per booking", ErrInvalidDetails, maxNights)
	}
	if tooLong(b.RoomType, 32) {
		return nil, fmt.Errorf("%w: roomType longer than 32 characters", ErrInvalidDetails)
	}
	return b, nil
}

func buildBrochure(details json.RawMessage) (model.Record, error) {
	var in struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeStrict(details, &in); err != nil {
		return nil, err
	}
	if in.Quantity < 1 || in.Quantity > maxCopies {
		return nil, fmt.Errorf("%w: quantity must be between 1 and %d", ErrInvalidDetails, maxCopies)
	}
	return &model.BrochureOrder{Quantity: in.Quantity}, nil
}

func buildGoodwill(details json.RawMessage) (model.Record, error) {
	var in struct {
		Message     string `json:"message"`
		SenderTitle string `json:"senderTitle"`
		Featured    bool   `json:"featured"`
	}
	if err := decodeStrict(details, &in); err != nil {
		return nil, err
	}
	msg := strings.TrimSpace(in.Message)
	if msg == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidDetails)
	}
	if tooLong(msg, maxMessageLength) {
		return nil, fmt.Errorf("%w: message longer than %d characters", ErrInvalidDetails, maxMessageLength)
	}
	title := strings.TrimSpace(in.SenderTitle)
	if tooLong(title, maxNameLength) {
		return nil, fmt.Errorf("%w: senderTitle longer than %d characters", ErrInvalidDetails, maxNameLength)
	}
	return &model.GoodwillMessage{Message: msg, SenderTitle: title, Featured: in.Featured}, nil
}

func buildDonation(details json.RawMessage) (model.Record, error) {
	var in struct {
		Amount    int64  `json:"amount"`
		Note      string `json:"note"`
		Anonymous bool   `json:"anonymous"`
	}
	if err := decodeStrict(details, &in); err != nil {
		return nil, err
	}
	d := &model.Donation{Note: strings.TrimSpace(in.Note), Anonymous: in.Anonymous}
	if tooLong(d.Note, maxNoteLength) {
		return nil, fmt.Errorf("%w: note longer than %d characters", ErrInvalidDetails, maxNoteLength)
	}
	d.Amount = in.Amount
	return d, nil
}

func intParam(q url.Values, key string, def, lo, hi int) (int, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return 0, fmt.Errorf("%w: %s must be between %d and %d", ErrInvalidDetails, key, lo, hi)
	}
	return v, nil
}

func tooLong(s string, limit int) bool { return utf8.RuneCountInString(s) > limit }

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}
