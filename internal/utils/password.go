package utils

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// MinPINLength is the shortest PIN hash-pin accepts.
const MinPINLength = 4

// ErrWeakPIN is returned by HashPIN for PINs shorter than MinPINLength.
var ErrWeakPIN = errors.New("pin too short")

// HashPIN returns the bcrypt hash of a staff PIN using the given cost.
func HashPIN(pin string, cost int) (string, error) {
	pin = strings.TrimSpace(pin)
	if len(pin) < MinPINLength {
		return "", ErrWeakPIN
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(pin), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPIN safely compares a bcrypt hash and a plain PIN.
func VerifyPIN(hash, pin string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(strings.TrimSpace(pin))) == nil
}
