// Package abuse implements the brute-force detector: a coarse counter per
// source address, fed from the response path, that overrides ordinary
// per-class limiting once a failure threshold is crossed.
package abuse

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gatekeeper/internal/ratelimit/events"
	"gatekeeper/internal/ratelimit/metrics"
	"gatekeeper/internal/ratelimit/models"
	"gatekeeper/internal/ratelimit/ports"
	"gatekeeper/pkg/platform/privacy"
)

const (
	// DefaultThreshold is the number of failures within the window after
	// which every request from the address is denied.
	DefaultThreshold = 20
	// DefaultWindow is the fixed lockout window, anchored at the first
	// qualifying failure. The expiry is set once on first increment; when
	// within the hour the counter crosses the threshold does not move it.
	DefaultWindow = time.Hour

	// ErrorCode is the distinct rejection code for abuse denials, separate
	// from ordinary rate-limit codes.
	ErrorCode = "SUSPICIOUS_ACTIVITY"
	// Message is the human text of the abuse rejection.
	Message = "Suspicious activity detected from this address. Access is temporarily blocked."

	storeTimeout = 500 * time.Millisecond
)

type Service struct {
	store     ports.CounterStore
	sink      events.Sink
	logger    *slog.Logger
	metrics   *metrics.Metrics
	threshold int64
	window    time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithSink(sink events.Sink) Option {
	return func(s *Service) {
		s.sink = sink
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithThreshold overrides the failure threshold and window. Intended for
// tests; production uses the defaults.
func WithThreshold(threshold int, window time.Duration) Option {
	return func(s *Service) {
		s.threshold = int64(threshold)
		s.window = window
	}
}

func New(store ports.CounterStore, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("counter store is required")
	}

	svc := &Service{
		store:     store,
		sink:      events.NopSink{},
		threshold: DefaultThreshold,
		window:    DefaultWindow,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.threshold <= 0 || svc.window <= 0 {
		return nil, errors.New("abuse threshold and window must be positive")
	}
	return svc, nil
}

// Check reports whether the source address is currently blocked, and if so
// for how many more seconds. Runs on the request path and must stay cheap:
// one store read, failing open on any store error.
func (s *Service) Check(ctx context.Context, sourceIP string) (blocked bool, retryAfter int, resetAt time.Time) {
	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	hits, resetAt, err := s.store.Get(storeCtx, models.BruteForceKey(sourceIP))
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "abuse check failed open",
				"source", privacy.AnonymizeIP(sourceIP),
				"error", err,
			)
		}
		s.metrics.RecordStoreFallback()
		return false, 0, time.Time{}
	}

	if hits < s.threshold {
		return false, 0, resetAt
	}
	return true, max(int(time.Until(resetAt).Seconds()), 1), resetAt
}

// RecordFailure counts one qualifying failure (failed authentication or an
// error-class response) against the source address. Crossing the threshold
// is logged at error severity and emitted to the event sink exactly once,
// on the crossing increment. Store errors are absorbed: the detector never
// blocks traffic because its own counter is unreachable.
func (s *Service) RecordFailure(ctx context.Context, sourceIP string) {
	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	hits, resetAt, err := s.store.Increment(storeCtx, models.BruteForceKey(sourceIP), s.window)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to record abuse failure",
				"source", privacy.AnonymizeIP(sourceIP),
				"error", err,
			)
		}
		return
	}

	if hits != s.threshold {
		return
	}

	source := privacy.AnonymizeIP(sourceIP)
	if s.logger != nil {
		s.logger.ErrorContext(ctx, "brute-force threshold crossed, blocking source",
			"source", source,
			"failures", hits,
			"blocked_until", resetAt,
		)
	}
	s.metrics.RecordAbuseTrip()

	event := events.New(events.KindAbuseDetected, events.SeverityError)
	event.Source = source
	event.Hits = hits
	event.Limit = int(s.threshold)
	s.sink.Emit(ctx, event)
}

// Clear removes the brute-force counter for an address, unblocking it.
// Operator surface for false positives.
func (s *Service) Clear(ctx context.Context, sourceIP string) error {
	return s.store.Reset(ctx, models.BruteForceKey(sourceIP))
}
