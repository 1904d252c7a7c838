// Package qrtoken issues, verifies and redeems the scannable payloads bound
// to each redeemable unit of a confirmed record.
//
// A payload is an HS256 JWT.  Its claims are derived only from the record
// (type, id, owner, unit, confirmation time) so generating twice for the same
// unit yields the same string.  Storage and the used flag live in
// redeemable_tokens; the JWT itself is never mutated.
package qrtoken

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/convention-desk/internal/metrics"
	"github.com/iliyamo/convention-desk/internal/model"
	"github.com/iliyamo/convention-desk/internal/repository"
)

var (
	ErrNotConfirmed  = errors.New("record is not confirmed")
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token expired")
	ErrUnknownToken  = errors.New("token was never issued")
	ErrAlreadyUsed   = errors.New("token already used")
	ErrNoPolicy      = errors.New("no validity policy for service type")
	ErrMissingSecret = errors.New("token signing secret is empty")
)

// Claims is the payload carried by every token.
type Claims struct {
	Type       model.ServiceType `json:"type"`
	RecordID   string            `json:"id"`
	OwnerID    uint64            `json:"ownerId"`
	OwnerLabel string            `json:"ownerLabel"`
	Unit       int               `json:"unit"`
	ValidUntil int64             `json:"validUntil"`
	Timestamp  int64             `json:"timestamp"`
	jwt.RegisteredClaims
}

// Store is the persistence the generator needs.  *repository.TokenRepo
// satisfies it.
type Store interface {
	ListByRecord(ctx context.Context, kind model.ServiceType, recordID string) ([]model.RedeemableToken, error)
	InsertSet(ctx context.Context, tokens []model.RedeemableToken) error
	MarkUsed(ctx context.Context, kind model.ServiceType, payload, usedBy string, at time.Time) (model.RedeemableToken, error)
	Reset(ctx context.Context, kind model.ServiceType, payload string) (model.RedeemableToken, error)
}

// Generator issues and redeems tokens.
type Generator struct {
	secret   []byte
	store    Store
	policies map[model.ServiceType]ValidityPolicy
	log      *slog.Logger
	now      func() time.Time
}

// New returns a generator signing with secret.  A nil policies map selects
// DefaultPolicies.
func New(secret string, store Store, policies map[model.ServiceType]ValidityPolicy, logger *slog.Logger) (*Generator, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if policies == nil {
		policies = DefaultPolicies()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		secret:   []byte(secret),
		store:    store,
		policies: policies,
		log:      logger.With("component", "qrtoken"),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetClock overrides the time source used for expiry checks and redemption
// stamps.
func (g *Generator) SetClock(now func() time.Time) { g.now = now }

// Generate returns the record's token set, issuing it on first call.  A
// concurrent generator losing the insert race gets the winner's set back.
func (g *Generator) Generate(ctx context.Context, rec model.Record) ([]model.RedeemableToken, error) {
	set, _, err := g.Issue(ctx, rec)
	return set, err
}

// Issue is Generate that also reports whether this call inserted the set.
// Exactly one caller per record sees issued == true.
func (g *Generator) Issue(ctx context.Context, rec model.Record) (set []model.RedeemableToken, issued bool, err error) {
	b := rec.Base()
	if !b.Confirmed {
		return nil, false, ErrNotConfirmed
	}
	kind := rec.Kind()
	existing, err := g.store.ListByRecord(ctx, kind, b.ID)
	if err != nil {
		return nil, false, fmt.Errorf("list tokens: %w", err)
	}
	if len(existing) > 0 {
		return existing, false, nil
	}

	policy, ok := g.policies[kind]
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrNoPolicy, kind)
	}
	issuedAt := issueTime(b)
	validUntil := policy.ValidUntil(rec, issuedAt)

	units := rec.Units()
	set = make([]model.RedeemableToken, 0, len(units))
	for _, u := range units {
		payload, err := g.sign(Claims{
			Type:       kind,
			RecordID:   b.ID,
			OwnerID:    b.UserID,
			OwnerLabel: u.Label,
			Unit:       u.Index,
			ValidUntil: validUntil.Unix(),
			Timestamp:  issuedAt.Unix(),
			RegisteredClaims: jwt.RegisteredClaims{
				IssuedAt:  jwt.NewNumericDate(issuedAt),
				ExpiresAt: jwt.NewNumericDate(validUntil),
			},
		})
		if err != nil {
			return nil, false, err
		}
		set = append(set, model.RedeemableToken{
			RecordType: kind,
			RecordID:   b.ID,
			UnitIndex:  u.Index,
			OwnerLabel: u.Label,
			Payload:    payload,
			CreatedAt:  g.now(),
		})
	}

	if err := g.store.InsertSet(ctx, set); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			set, err = g.store.ListByRecord(ctx, kind, b.ID)
			return set, false, err
		}
		return nil, false, fmt.Errorf("store tokens: %w", err)
	}
	metrics.TokensIssuedTotal.WithLabelValues(kind.String()).Add(float64(len(set)))
	g.log.Info("tokens issued", "service", kind.String(), "id", b.ID, "count", len(set))
	set, err = g.store.ListByRecord(ctx, kind, b.ID)
	return set, err == nil, err
}

// Verify checks the signature and expiry of a payload.
func (g *Generator) Verify(payload string) (Claims, error) {
	return g.parse(payload, true)
}

// Redeem marks the token used by official.  A second redemption fails with
// ErrAlreadyUsed until an admin resets it.
func (g *Generator) Redeem(ctx context.Context, payload string, official model.Official) (model.RedeemableToken, error) {
	claims, err := g.Verify(payload)
	if err != nil {
		metrics.TokensRedeemedTotal.WithLabelValues("unknown", "invalid").Inc()
		return model.RedeemableToken{}, err
	}
	tok, err := g.store.MarkUsed(ctx, claims.Type, payload, official.ID, g.now())
	switch {
	case errors.Is(err, repository.ErrConflict):
		metrics.TokensRedeemedTotal.WithLabelValues(claims.Type.String(), "already_used").Inc()
		return tok, ErrAlreadyUsed
	case errors.Is(err, repository.ErrNotFound):
		metrics.TokensRedeemedTotal.WithLabelValues(claims.Type.String(), "unknown").Inc()
		return tok, ErrUnknownToken
	case err != nil:
		return tok, err
	}
	metrics.TokensRedeemedTotal.WithLabelValues(claims.Type.String(), "redeemed").Inc()
	g.log.Info("token redeemed", "service", claims.Type.String(), "id", claims.RecordID, "unit", claims.Unit, "official", official.ID)
	return tok, nil
}

// Reset returns a used token to unused.  Expired tokens can still be reset;
// the signature must be valid.
func (g *Generator) Reset(ctx context.Context, payload string) (model.RedeemableToken, error) {
	claims, err := g.parse(payload, false)
	if err != nil {
		return model.RedeemableToken{}, err
	}
	tok, err := g.store.Reset(ctx, claims.Type, payload)
	if errors.Is(err, repository.ErrNotFound) {
		return tok, ErrUnknownToken
	}
	if err == nil {
		g.log.Warn("token reset", "service", claims.Type.String(), "id", claims.RecordID, "unit", claims.Unit)
	}
	return tok, err
}

func (g *Generator) sign(c Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(g.secret)
}

func (g *Generator) parse(payload string, checkExpiry bool) (Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(g.now),
	}
	if !checkExpiry {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}
	var c Claims
	_, err := jwt.ParseWithClaims(payload, &c, func(*jwt.Token) (any, error) { return g.secret, nil }, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return c, ErrExpiredToken
		}
		return c, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !c.Type.Known() || c.RecordID == "" {
		return c, ErrInvalidToken
	}
	return c, nil
}

// issueTime is the confirmation time, so re-signing is deterministic.
func issueTime(b *model.RecordBase) time.Time {
	if b.ConfirmedAt != nil {
		return b.ConfirmedAt.UTC().Truncate(time.Second)
	}
	return b.CreatedAt.UTC().Truncate(time.Second)
}
