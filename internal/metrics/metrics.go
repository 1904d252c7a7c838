// Package metrics holds the Prometheus collectors exported at /metrics.
// Collectors are package-level so any component can count without plumbing;
// Register attaches them to a registry once at startup.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "convention"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Verified payment webhooks by outcome and service type",
		},
		[]string{"outcome", "service"},
	)

	WebhookRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_rejected_total",
			Help:      "Webhooks rejected for a missing or invalid signature",
		},
	)

	AmountMismatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_amount_mismatch_total",
			Help:      "Confirmations where the paid amount differed from the expected amount",
		},
		[]string{"service"},
	)

	TokensIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Redeemable tokens issued",
		},
		[]string{"service"},
	)

	TokensRedeemedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_redeemed_total",
			Help:      "Token redemption attempts by result",
		},
		[]string{"service", "result"},
	)

	CheckinTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkin_transitions_total",
			Help:      "Check-in state transitions by action and service type",
		},
		[]string{"action", "service"},
	)

	ForcedConfirmationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkin_forced_confirmations_total",
			Help:      "Check-ins that confirmed a ticket the gateway never confirmed",
		},
		[]string{"service"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Outbound notifications by result (enqueued, dropped, published, failed, delivered)",
		},
		[]string{"result"},
	)

	RateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		},
		[]string{"route"},
	)
)

var (
	registerOnce sync.Once
	registry     = prometheus.NewRegistry()
)

// Register attaches every collector plus the Go runtime collectors to the
// service registry.  Safe to call more than once.
func Register() *prometheus.Registry {
	registerOnce.Do(func() {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			HTTPRequestsTotal,
			HTTPRequestDuration,
			WebhookEventsTotal,
			WebhookRejectedTotal,
			AmountMismatchTotal,
			TokensIssuedTotal,
			TokensRedeemedTotal,
			CheckinTransitionsTotal,
			ForcedConfirmationsTotal,
			NotificationsTotal,
			RateLimitedTotal,
		)
	})
	return registry
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Register(), promhttp.HandlerOpts{})
}
