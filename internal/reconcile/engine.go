// Package reconcile turns verified payment-gateway webhooks into confirmed
// ledger records, issued tokens and owner notifications.
//
// The gateway delivers at least once, so every step after verification is
// idempotent: the confirm flip is a conditional update, token issuance is
// guarded by a unique index, and the notification goes out from the
// delivery that inserted the token set.
package reconcile

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/iliyamo/convention-desk/internal/ledger"
	"github.com/iliyamo/convention-desk/internal/metrics"
	"github.com/iliyamo/convention-desk/internal/model"
	"github.com/iliyamo/convention-desk/internal/queue"
	"github.com/iliyamo/convention-desk/internal/reference"
	"github.com/iliyamo/convention-desk/internal/repository"
)

// SignatureHeader carries the hex HMAC-SHA512 of the raw body.
const SignatureHeader = "x-signature"

// ChargeSuccess is the only event that confirms a record.
const ChargeSuccess = "charge.success"

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMissingSecret    = errors.New("webhook secret is empty")
)

// Outcome classifies what happened to one webhook.
type Outcome string

const (
	OutcomeConfirmed        Outcome = "confirmed"
	OutcomeAlreadyConfirmed Outcome = "already_confirmed"
	OutcomeIgnored          Outcome = "ignored"
	OutcomeUnknownService   Outcome = "unknown_service"
	OutcomeNotFound         Outcome = "not_found"
	OutcomeMalformed        Outcome = "malformed"
	OutcomeAmountMismatch   Outcome = "amount_mismatch"
	OutcomeError            Outcome = "error"
)

// Result is returned for every processed webhook.  Err is set for the
// failure outcomes and is never shown to the gateway.
type Result struct {
	Outcome   Outcome           `json:"outcome"`
	Event     string            `json:"event,omitempty"`
	Reference string            `json:"reference,omitempty"`
	Service   model.ServiceType `json:"service,omitempty"`
	Tokens    int               `json:"tokens,omitempty"`
	Err       error             `json:"-"`
}

// TokenIssuer is satisfied by *qrtoken.Generator.  issued is true only for
// the call that inserted the set.
type TokenIssuer interface {
	Issue(ctx context.Context, rec model.Record) (tokens []model.RedeemableToken, issued bool, err error)
}

// Notifier is satisfied by *notify.Queue.  Enqueue must not block.
type Notifier interface {
	Enqueue(ev queue.PaymentConfirmedEvent) bool
}

// Audit is satisfied by *repository.PaymentEventRepo.
type Audit interface {
	Append(ctx context.Context, ev repository.PaymentEvent) error
}

// Engine verifies and processes webhooks.
type Engine struct {
	secret   []byte
	ledgers  *ledger.Registry
	tokens   TokenIssuer
	notifier Notifier
	audit    Audit
	log      *slog.Logger
	now      func() time.Time
}

// Deps groups the engine's collaborators.  Notifier and Audit are optional.
type Deps struct {
	Ledgers  *ledger.Registry
	Tokens   TokenIssuer
	Notifier Notifier
	Audit    Audit
	Logger   *slog.Logger
}

func New(secret string, d Deps) (*Engine, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrMissingSecret
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		secret:   []byte(secret),
		ledgers:  d.Ledgers,
		tokens:   d.Tokens,
		notifier: d.Notifier,
		audit:    d.Audit,
		log:      logger.With("component", "reconcile"),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Sign returns the hex signature the gateway would send for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha512.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against the HMAC-SHA512 of the exact body bytes.
// Hex case is irrelevant; the comparison is constant time.
func (e *Engine) Verify(body []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrInvalidSignature
	}
	decoded, err := hex.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha512.New, e.secret)
	mac.Write(body)
	if !hmac.Equal(decoded, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

type envelope struct {
	Event string `json:"event"`
	Data  struct {
		Reference string          `json:"reference"`
		Status    string          `json:"status"`
		Amount    int64           `json:"amount"`
		Metadata  json.RawMessage `json:"metadata"`
	} `json:"data"`
}

// Process runs a verified body through parse, filter, classify, dispatch
// and post-confirm.  It never fails; the outcome says what happened.
func (e *Engine) Process(ctx context.Context, body []byte) Result {
	var (
		env envelope
		res Result
	)
	if err := json.Unmarshal(body, &env); err != nil {
		res = Result{Outcome: OutcomeMalformed, Err: fmt.Errorf("decode body: %w", err)}
		e.finish(ctx, res, env)
		return res
	}
	res.Event = env.Event
	res.Reference = strings.TrimSpace(env.Data.Reference)

	if env.Event != ChargeSuccess || (env.Data.Status != "" && !strings.EqualFold(env.Data.Status, "success")) {
		res.Outcome = OutcomeIgnored
		e.finish(ctx, res, env)
		return res
	}
	if res.Reference == "" {
		res.Outcome = OutcomeMalformed
		res.Err = reference.ErrMalformed
		e.finish(ctx, res, env)
		return res
	}

	res.Service = reference.Classify(res.Reference, decodeMetadata(env.Data.Metadata))
	adapter, ok := e.ledgers.Get(res.Service)
	if !ok {
		res.Outcome = OutcomeUnknownService
		e.finish(ctx, res, env)
		return res
	}

	confirmed, err := adapter.Confirm(ctx, res.Reference, env.Data.Amount)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		res.Outcome, res.Err = OutcomeNotFound, err
	case errors.Is(err, ledger.ErrAmountMismatch):
		res.Outcome, res.Err = OutcomeAmountMismatch, err
	case err != nil:
		res.Outcome, res.Err = OutcomeError, err
	case confirmed.Newly:
		res.Outcome = OutcomeConfirmed
	default:
		res.Outcome = OutcomeAlreadyConfirmed
	}
	if err != nil {
		e.finish(ctx, res, env)
		return res
	}

	// Replays also reach here; Issue returns the existing set or issues a
	// missing one.  The owner is notified by whichever delivery issued the
	// set, so a failed issue on the first delivery is repaired by a replay.
	tokens, issued, err := e.tokens.Issue(ctx, confirmed.Record)
	if err != nil {
		res.Outcome, res.Err = OutcomeError, fmt.Errorf("generate tokens: %w", err)
		e.finish(ctx, res, env)
		return res
	}
	res.Tokens = len(tokens)

	if issued && e.notifier != nil {
		e.notifier.Enqueue(confirmationEvent(confirmed.Record, tokens))
	}
	e.finish(ctx, res, env)
	return res
}

// finish logs, counts and audits one outcome.
func (e *Engine) finish(ctx context.Context, res Result, env envelope) {
	service := res.Service.String()
	metrics.WebhookEventsTotal.WithLabelValues(string(res.Outcome), service).Inc()

	attrs := []any{"outcome", string(res.Outcome), "event", res.Event, "reference", res.Reference, "service", service}
	if res.Err != nil {
		attrs = append(attrs, "error", res.Err.Error())
	}
	switch res.Outcome {
	case OutcomeConfirmed, OutcomeAlreadyConfirmed:
		e.log.Info("webhook processed", append(attrs, "tokens", res.Tokens)...)
	case OutcomeIgnored:
		e.log.Debug("webhook ignored", attrs...)
	case OutcomeError:
		e.log.Error("webhook processing failed", attrs...)
	default:
		e.log.Warn("webhook not applied", attrs...)
	}

	if e.audit == nil {
		return
	}
	ev := repository.PaymentEvent{
		Event:       res.Event,
		Reference:   res.Reference,
		ServiceType: string(res.Service),
		Status:      env.Data.Status,
		Amount:      env.Data.Amount,
		Outcome:     string(res.Outcome),
		ReceivedAt:  e.now(),
	}
	if res.Err != nil {
		ev.Error = res.Err.Error()
	}
	// Audit outlives the request context.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.audit.Append(actx, ev); err != nil {
		e.log.Error("audit append failed", "reference", res.Reference, "error", err)
	}
}

// decodeMetadata accepts the metadata as an object or as a JSON-encoded
// string holding an object.  Anything else yields nil.
func decodeMetadata(raw json.RawMessage) map[string]any {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err == nil {
		return m
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if err := json.Unmarshal([]byte(s), &m); err == nil {
			return m
		}
	}
	return nil
}

func confirmationEvent(rec model.Record, tokens []model.RedeemableToken) queue.PaymentConfirmedEvent {
	b := rec.Base()
	units := make([]string, 0, len(tokens))
	for _, t := range tokens {
		units = append(units, t.OwnerLabel)
	}
	ev := queue.PaymentConfirmedEvent{
		Service:    rec.Kind().String(),
		RecordID:   b.ID,
		UserID:     b.UserID,
		Reference:  b.PaymentReference,
		Amount:     b.Amount,
		OwnerName:  b.Contact.Name,
		OwnerEmail: b.Contact.Email,
		OwnerPhone: b.Contact.Phone,
		Units:      units,
		TokenCount: len(tokens),
	}
	if b.ConfirmedAt != nil {
		ev.ConfirmedAt = b.ConfirmedAt.UTC().Format(time.RFC3339)
	}
	return ev
}
