package model

import (
	"fmt"
	"time"
)

// Registration is a conference registration (registrations table).  One
// token covers the whole record.
type Registration struct {
	RecordBase
	Category     string `json:"category"`
	Organization string `json:"organization"`
}

func (r *Registration) Kind() ServiceType { return ServiceRegistration }
func (r *Registration) Columns() []string { return []string{"category", "organization"} }
func (r *Registration) Values() []any     { return []any{r.Category, r.Organization} }
func (r *Registration) ScanDest() []any   { return []any{&r.Category, &r.Organization} }
func (r *Registration) Units() []Unit     { return []Unit{{Index: 0, Label: r.Contact.Name}} }

// DinnerReservation books seats at the convention dinner.  Each guest gets
// one token.
type DinnerReservation struct {
	RecordBase
	GuestCount int       `json:"guestCount"`
	Guests     GuestList `json:"guests"`
}

func (r *DinnerReservation) Kind() ServiceType { return ServiceDinner }
func (r *DinnerReservation) Columns() []string { return []string{"guest_count", "guests"} }
func (r *DinnerReservation) Values() []any     { return []any{r.GuestCount, r.Guests} }
func (r *DinnerReservation) ScanDest() []any   { return []any{&r.GuestCount, &r.Guests} }

// Units returns one unit per guest.  Missing names fall back to "Guest N".
func (r *DinnerReservation) Units() []Unit {
	units := make([]Unit, 0, r.GuestCount)
	for i := 0; i < r.GuestCount; i++ {
		label := fmt.Sprintf("Guest %d", i+1)
		if i < len(r.Guests) && r.Guests[i] != "" {
			label = r.Guests[i]
		}
		units = append(units, Unit{Index: i, Label: label})
	}
	return units
}

// AccommodationBooking reserves rooms between two dates.  Tokens are issued
// per room and expire at the end of the check-out date.
type AccommodationBooking struct {
	RecordBase
	CheckInDate  time.Time `json:"checkInDate"`
	CheckOutDate time.Time `json:"checkOutDate"`
	Rooms        int       `json:"rooms"`
	RoomType     string    `json:"roomType"`
}

func (r *AccommodationBooking) Kind() ServiceType { return ServiceAccommodation }
func (r *AccommodationBooking) Columns() []string {
	return []string{"check_in_date", "check_out_date", "rooms", "room_type"}
}
func (r *AccommodationBooking) Values() []any {
	return []any{r.CheckInDate, r.CheckOutDate, r.Rooms, r.RoomType}
}
func (r *AccommodationBooking) ScanDest() []any {
	return []any{&r.CheckInDate, &r.CheckOutDate, &r.Rooms, &r.RoomType}
}

// Nights is the number of nights between the two dates, at least one.
func (r *AccommodationBooking) Nights() int {
	n := int(r.CheckOutDate.Sub(r.CheckInDate).Hours() / 24)
	if n < 1 {
		return 1
	}
	return n
}

func (r *AccommodationBooking) Units() []Unit {
	units := make([]Unit, 0, r.Rooms)
	for i := 0; i < r.Rooms; i++ {
		units = append(units, Unit{Index: i, Label: fmt.Sprintf("%s - room %d", r.Contact.Name, i+1)})
	}
	return units
}

// BrochureOrder buys printed copies of the convention brochure, picked up
// at the desk.  One token per copy.
type BrochureOrder struct {
	RecordBase
	Quantity int `json:"quantity"`
}

func (r *BrochureOrder) Kind() ServiceType { return ServiceBrochure }
func (r *BrochureOrder) Columns() []string { return []string{"quantity"} }
func (r *BrochureOrder) Values() []any     { return []any{r.Quantity} }
func (r *BrochureOrder) ScanDest() []any   { return []any{&r.Quantity} }

func (r *BrochureOrder) Units() []Unit {
	units := make([]Unit, 0, r.Quantity)
	for i := 0; i < r.Quantity; i++ {
		units = append(units, Unit{Index: i, Label: fmt.Sprintf("Copy %d", i+1)})
	}
	return units
}

// GoodwillMessage is a paid message printed in the brochure.
type GoodwillMessage struct {
	RecordBase
	Message     string `json:"message"`
	SenderTitle string `json:"senderTitle"`
	Featured    bool   `json:"featured"`
}

func (r *GoodwillMessage) Kind() ServiceType { return ServiceGoodwill }
func (r *GoodwillMessage) Columns() []string { return []string{"message", "sender_title", "featured"} }
func (r *GoodwillMessage) Values() []any     { return []any{r.Message, r.SenderTitle, r.Featured} }
func (r *GoodwillMessage) ScanDest() []any   { return []any{&r.Message, &r.SenderTitle, &r.Featured} }
func (r *GoodwillMessage) Units() []Unit     { return []Unit{{Index: 0, Label: r.Contact.Name}} }

// Donation is a free-amount contribution.
type Donation struct {
	RecordBase
	Note      string `json:"note"`
	Anonymous bool   `json:"anonymous"`
}

func (r *Donation) Kind() ServiceType { return ServiceDonation }
func (r *Donation) Columns() []string { return []string{"note", "anonymous"} }
func (r *Donation) Values() []any     { return []any{r.Note, r.Anonymous} }
func (r *Donation) ScanDest() []any   { return []any{&r.Note, &r.Anonymous} }

func (r *Donation) Units() []Unit {
	label := r.Contact.Name
	if r.Anonymous {
		label = "Anonymous donor"
	}
	return []Unit{{Index: 0, Label: label}}
}
