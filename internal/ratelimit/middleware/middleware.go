// Package middleware wires the rate limiting subsystem into the HTTP
// request path: classify, check the per-class limit, apply the abuse
// override, then either pass through or reject.
package middleware

import (
	"log/slog"
	"net/http"

	"gatekeeper/internal/ratelimit/classify"
	"gatekeeper/internal/ratelimit/events"
	"gatekeeper/internal/ratelimit/metrics"
	"gatekeeper/internal/ratelimit/service/abuse"
	"gatekeeper/internal/ratelimit/service/limiter"
)

type Middleware struct {
	classifier *classify.Classifier
	limiter    *limiter.Service
	abuse      *abuse.Service
	sink       events.Sink
	logger     *slog.Logger
	metrics    *metrics.Metrics
	disabled   bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for testing/demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func WithSink(sink events.Sink) Option {
	return func(m *Middleware) {
		m.sink = sink
	}
}

func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = mx
	}
}

func New(classifier *classify.Classifier, lim *limiter.Service, det *abuse.Service, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		classifier: classifier,
		limiter:    lim,
		abuse:      det,
		sink:       events.NopSink{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled && logger != nil {
		logger.Info("rate limiting disabled")
	}
	return m
}

// Protect is the request-path middleware. Flow: classify → allow-list
// bypass → limiter check → abuse override → decision reporter. On allow the
// response status is observed so authentication failures and error-class
// responses feed the abuse counter from the response path.
func (m *Middleware) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.disabled {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		cls := m.classifier.Classify(r)

		if cls.Bypass {
			m.metrics.RecordAllowlistBypass()
			next.ServeHTTP(w, r)
			return
		}

		result, err := m.limiter.Check(ctx, cls.Class, cls.CallerKey, cls.SourceIP)
		if err != nil {
			// Unknown class: a wiring bug, not the caller's fault. Fail open.
			if m.logger != nil {
				m.logger.ErrorContext(ctx, "rate limit check misconfigured", "class", cls.Class, "error", err)
			}
			next.ServeHTTP(w, r)
			return
		}

		// The abuse override is independent of per-class limiter state: a
		// blocked address is denied even on endpoints it never touched.
		if blocked, retryAfter, resetAt := m.abuse.Check(ctx, cls.SourceIP); blocked {
			m.metrics.RecordCheck(string(cls.Class), "denied")
			m.metrics.RecordDenied("abuse")
			m.denyAbuse(w, r, cls, retryAfter, resetAt)
			return
		}

		addRateLimitHeaders(w, result)
		if result.Degraded {
			w.Header().Set("X-RateLimit-Status", "degraded")
			m.reportDegraded(r, cls)
		}

		if !result.Allowed {
			m.metrics.RecordCheck(string(cls.Class), "denied")
			m.metrics.RecordDenied("policy")
			m.denyPolicy(w, r, cls, result)
			return
		}

		outcome := "allowed"
		switch {
		case result.Degraded:
			outcome = "degraded"
		case result.Bypassed:
			outcome = "bypass"
		}
		m.metrics.RecordCheck(string(cls.Class), outcome)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// Response path: failed auth attempts and error-class responses
		// feed the brute-force counter.
		if rec.status >= http.StatusBadRequest {
			m.abuse.RecordFailure(ctx, cls.SourceIP)
		}
	})
}
