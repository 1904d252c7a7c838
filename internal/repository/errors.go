// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers and the reconciliation engine to distinguish between different
// failure scenarios without inspecting driver errors.
package repository

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when no row matches the lookup key. Handlers
// translate it into a 404; the reconciliation engine logs it and
// acknowledges the webhook.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional update matched the row but
// its current state forbids the transition (already checked in, already
// collected, token already used). Handlers translate it into a 409.
var ErrConflict = errors.New("conflict")

// ErrDuplicate is returned when an insert violates a unique index, such
// as a repeated payment reference or a token generated twice for the same
// unit.
var ErrDuplicate = errors.New("duplicate key")

// isDuplicate recognises unique violations from both supported drivers:
// MySQL error 1062 and SQLite's "UNIQUE constraint failed".
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "1062") || strings.Contains(msg, "unique constraint failed")
}
