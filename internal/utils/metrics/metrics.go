package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/talkmeter/server/internal/port/outbound"
)

// Metrics holds all application metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Ledger metrics
	DecisionsTotal    *prometheus.CounterVec
	InteractionsTotal *prometheus.CounterVec
	PaymentsTotal     *prometheus.CounterVec
	ActivationsTotal  *prometheus.CounterVec

	// Upstream metrics
	UpstreamRequestsTotal   *prometheus.CounterVec
	UpstreamRequestDuration *prometheus.HistogramVec
	BreakerState            *prometheus.GaugeVec
}

// New creates a new Metrics instance registered on reg. A nil reg uses the
// default registerer.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "chatledger"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		// Ledger metrics
		DecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "decisions_total",
				Help:      "Quota gate decisions by outcome",
			},
			[]string{"outcome"}, // allowed, banned, rate_abuse, quota_exhausted
		),
		InteractionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "interactions_total",
				Help:      "Recorded interactions by tier",
			},
			[]string{"paid"},
		),
		PaymentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "payments_total",
				Help:      "Payment status changes by provider",
			},
			[]string{"provider", "status"},
		),
		ActivationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "activations_total",
				Help:      "Subscription activations by source",
			},
			[]string{"source"}, // token, card, admin
		),

		// Upstream metrics
		UpstreamRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "requests_total",
				Help:      "Total number of upstream API calls",
			},
			[]string{"upstream", "status"},
		),
		UpstreamRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "request_duration_seconds",
				Help:      "Upstream API call duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"upstream"},
		),
		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"upstream"},
		),
	}
}

// --- Convenience methods ---

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusStr := statusCodeToString(status)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordUpstream records one upstream API call.
func (m *Metrics) RecordUpstream(upstream string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.UpstreamRequestsTotal.WithLabelValues(upstream, status).Inc()
	m.UpstreamRequestDuration.WithLabelValues(upstream).Observe(duration.Seconds())
}

// SetBreakerState sets the circuit breaker state of an upstream.
func (m *Metrics) SetBreakerState(upstream string, state int) {
	m.BreakerState.WithLabelValues(upstream).Set(float64(state))
}

// RecordDecision implements outbound.LedgerMetricsPort.
func (m *Metrics) RecordDecision(reason string) {
	m.DecisionsTotal.WithLabelValues(reason).Inc()
}

// RecordInteraction implements outbound.LedgerMetricsPort.
func (m *Metrics) RecordInteraction(paid bool) {
	m.InteractionsTotal.WithLabelValues(strconv.FormatBool(paid)).Inc()
}

// RecordPayment implements outbound.LedgerMetricsPort.
func (m *Metrics) RecordPayment(provider, status string) {
	m.PaymentsTotal.WithLabelValues(provider, status).Inc()
}

// RecordActivation implements outbound.LedgerMetricsPort.
func (m *Metrics) RecordActivation(source string) {
	m.ActivationsTotal.WithLabelValues(source).Inc()
}

// statusCodeToString converts an HTTP status code to a string category.
func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

// Compile-time check
var _ outbound.LedgerMetricsPort = (*Metrics)(nil)
