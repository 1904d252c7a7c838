package utils // package utils provides helpers for staff access tokens and PIN hashing

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// ErrInvalidAccessToken is returned for any access token that fails
// signature, algorithm or expiry checks.
var ErrInvalidAccessToken = errors.New("invalid access token")

// AccessToken represents a signed JWT access token along with its expiry.
// The Token field contains the JWT string.  Exp stores the expiration
// timestamp.  Staff send it in the Authorization header when calling the
// check-in endpoints.
type AccessToken struct {
	Token string    `json:"access_token"` // the serialized JWT string
	Exp   time.Time `json:"expires_at"`   // the UTC expiration time
}

// StaffClaims is the claim set of a staff access token.  Subject holds the
// staff id from the directory.
type StaffClaims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// NewAccessToken builds and signs an HS256 JWT for a staff member.  It takes
// the signing secret, the staff id, name and role, and a TTL in minutes.  The
// JWT carries sub, name, role, exp and iat.
func NewAccessToken(secret, staffID, name, role string, ttlMin int, now time.Time) (AccessToken, error) {
	if secret == "" {
		return AccessToken{}, errors.New("access token secret is empty")
	}
	if ttlMin <= 0 {
		ttlMin = 60
	}
	// Calculate the expiration time by adding the TTL to the issue time.
	now = now.UTC().Truncate(time.Second)
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	claims := StaffClaims{
		Name: name,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   staffID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	// Sign the token with the provided secret and obtain the string form.
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, fmt.Errorf("sign access token: %w", err)
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken validates raw against secret and returns its claims.
// Only HS256 is accepted.  The now function drives expiry checks; pass nil
// for the wall clock.
func ParseAccessToken(secret, raw string, now func() time.Time) (StaffClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if now != nil {
		opts = append(opts, jwt.WithTimeFunc(now))
	}
	var claims StaffClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		// Return the secret bytes used to sign the token.
		return []byte(secret), nil
	}, opts...)
	if err != nil || !tok.Valid {
		return StaffClaims{}, ErrInvalidAccessToken
	}
	if claims.Subject == "" || claims.Role == "" {
		return StaffClaims{}, ErrInvalidAccessToken
	}
	return claims, nil
}
