// Package metrics exposes Prometheus collectors for the services client.
//
// Collectors are registered on an injected Registerer so tests and
// embedding applications can use their own registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "services"

// Request outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeTimeout  = "timeout"
	OutcomeSpooled  = "spooled"
	OutcomeSent     = "sent"
	OutcomeError    = "error"
)

// Metrics holds the client's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	requests           *prometheus.CounterVec
	attempts           *prometheus.HistogramVec
	latency            *prometheus.HistogramVec
	alertsPublished    *prometheus.CounterVec
	slowControlChanges *prometheus.CounterVec
	outboxDepth        prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests to the middleman by kind and outcome.",
		}, []string{"kind", "outcome"}),
		attempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_attempts",
			Help:      "Exchange attempts per acknowledged request.",
			Buckets:   []float64{1, 2, 3, 5, 10, 25, 50, 100},
		}, []string{"kind"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Wall-clock time per acknowledged request, retries included.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"kind"}),
		alertsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_published_total",
			Help:      "Alerts delivered to local subscribers, by alert name.",
		}, []string{"alert"}),
		slowControlChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slowcontrol_changes_total",
			Help:      "Committed slow-control changes, by variable.",
		}, []string{"variable"}),
		outboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_depth",
			Help:      "Requests spooled while the broker is unreachable.",
		}),
	}

	reg.MustRegister(m.requests, m.attempts, m.latency, m.alertsPublished, m.slowControlChanges, m.outboxDepth)
	return m
}

// ObserveRequest records one acknowledged request.
func (m *Metrics) ObserveRequest(kind, outcome string, attempts int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(kind, outcome).Inc()
	m.attempts.WithLabelValues(kind).Observe(float64(attempts))
	m.latency.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// CountRequest records a fire-and-forget request.
func (m *Metrics) CountRequest(kind, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(kind, outcome).Inc()
}

// AlertPublished counts an alert fan-out.
func (m *Metrics) AlertPublished(name string) {
	if m == nil {
		return
	}
	m.alertsPublished.WithLabelValues(name).Inc()
}

// SlowControlChanged counts a committed change.
func (m *Metrics) SlowControlChanged(variable string) {
	if m == nil {
		return
	}
	m.slowControlChanges.WithLabelValues(variable).Inc()
}

// SetOutboxDepth sets the spool depth gauge.
func (m *Metrics) SetOutboxDepth(n int) {
	if m == nil {
		return
	}
	m.outboxDepth.Set(float64(n))
}
