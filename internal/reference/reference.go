// Package reference encodes, decodes and classifies payment references of
// the form <gatewayTxID>_<suffix>.  The reference is the idempotency key
// shared by the gateway and the ledgers, so everything here is pure and
// deterministic.
package reference

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/iliyamo/convention-desk/internal/model"
)

// ErrMalformed is returned when a reference cannot be split into its parts.
var ErrMalformed = errors.New("malformed payment reference")

const separator = "_"

// Parts is a decoded reference.
type Parts struct {
	GatewayTxID string
	Suffix      string
}

// Encode joins a gateway transaction id and a suffix.  The suffix is usually
// a phone number; anything that is not a letter or digit is dropped from it.
func Encode(gatewayTxID, suffix string) (string, error) {
	tx := strings.TrimSpace(gatewayTxID)
	if tx == "" {
		return "", ErrMalformed
	}
	s := normalizeSuffix(suffix)
	if s == "" {
		return "", fmt.Errorf("%w: empty suffix", ErrMalformed)
	}
	return tx + separator + s, nil
}

// Decode splits a reference at its last underscore.  Transaction ids may
// themselves contain underscores; suffixes never do.
func Decode(ref string) (Parts, error) {
	ref = strings.TrimSpace(ref)
	i := strings.LastIndex(ref, separator)
	if i <= 0 || i == len(ref)-1 {
		return Parts{}, ErrMalformed
	}
	return Parts{GatewayTxID: ref[:i], Suffix: ref[i+1:]}, nil
}

// NewReference mints a fresh reference for a ledger record at intake time.
func NewReference(kind model.ServiceType, suffix string) (string, error) {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return Encode(kind.Prefix()+"-"+strings.ToUpper(id[:12]), suffixOrDefault(suffix))
}

func suffixOrDefault(s string) string {
	if normalizeSuffix(s) == "" {
		return "0"
	}
	return s
}

func normalizeSuffix(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
