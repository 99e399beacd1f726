// Package metrics exposes Prometheus metrics for the rate limiter.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ChecksTotal         *prometheus.CounterVec
	DeniedTotal         *prometheus.CounterVec
	AllowlistBypasses   prometheus.Counter
	AbuseTripsTotal     prometheus.Counter
	StoreFallbacksTotal prometheus.Counter
}

// New creates and registers all rate limiter metrics on the default
// registry. Call once per process.
func New() *Metrics {
	return &Metrics{
		ChecksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_ratelimit_checks_total",
			Help: "Rate limit checks by limiter class and outcome",
		}, []string{"class", "outcome"}),
		DeniedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_ratelimit_denied_total",
			Help: "Denied requests by cause (policy or abuse)",
		}, []string{"reason"}),
		AllowlistBypasses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_ratelimit_allowlist_bypasses_total",
			Help: "Requests that bypassed rate limiting via the allow-list",
		}),
		AbuseTripsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_ratelimit_abuse_trips_total",
			Help: "Times a source address crossed the brute-force threshold",
		}),
		StoreFallbacksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_ratelimit_store_fallbacks_total",
			Help: "Times a check failed open because the counter store errored",
		}),
	}
}

// RecordCheck counts one limiter decision. Outcome is allowed, denied,
// bypass or degraded.
func (m *Metrics) RecordCheck(class, outcome string) {
	if m == nil {
		return
	}
	m.ChecksTotal.WithLabelValues(class, outcome).Inc()
}

// RecordDenied counts one rejected request by cause.
func (m *Metrics) RecordDenied(reason string) {
	if m == nil {
		return
	}
	m.DeniedTotal.WithLabelValues(reason).Inc()
}

// RecordAllowlistBypass counts one allow-list bypass.
func (m *Metrics) RecordAllowlistBypass() {
	if m == nil {
		return
	}
	m.AllowlistBypasses.Inc()
}

// RecordAbuseTrip counts one brute-force threshold crossing.
func (m *Metrics) RecordAbuseTrip() {
	if m == nil {
		return
	}
	m.AbuseTripsTotal.Inc()
}

// RecordStoreFallback counts one fail-open on store error.
func (m *Metrics) RecordStoreFallback() {
	if m == nil {
		return
	}
	m.StoreFallbacksTotal.Inc()
}
