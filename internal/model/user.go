package model

import "time"

// User represents an attendee row in the `users` table.  Ledger records
// point at their owner through user_id; the ticket locator resolves an email
// address to a User before searching the ledgers.
//
// Fields:
//
//	ID        – primary key identifier of the user.
//	Email     – unique, lower-cased email address.
//	FullName  – display name captured at first intake.
//	Phone     – phone number captured at first intake.
//	CreatedAt – timestamp of creation.
type User struct {
	ID        uint64    // users.id
	Email     string    // users.email
	FullName  string    // users.full_name
	Phone     string    // users.phone
	CreatedAt time.Time // users.created_at
}

// Staff roles recognised by the check-in endpoints.
const (
	RoleScanner = "SCANNER"
	RoleAdmin   = "ADMIN"
)

// Staff is an entry of the staff directory file.  The PIN itself is never
// stored, only its bcrypt hash.
type Staff struct {
	ID      string `yaml:"id" json:"id"`
	Name    string `yaml:"name" json:"name"`
	Role    string `yaml:"role" json:"role"`
	PINHash string `yaml:"pin_hash" json:"-"`
	Active  *bool  `yaml:"active,omitempty" json:"-"`
}

// IsActive treats a missing flag as active.
func (s Staff) IsActive() bool { return s.Active == nil || *s.Active }
