// Package limiter implements the per-class rate limit check.
package limiter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gatekeeper/internal/ratelimit/metrics"
	"gatekeeper/internal/ratelimit/models"
	"gatekeeper/internal/ratelimit/policy"
	"gatekeeper/internal/ratelimit/ports"
	"gatekeeper/pkg/platform/privacy"
)

// storeTimeout bounds each counter round trip so a slow store stalls a
// request by at most this long before the check fails open.
const storeTimeout = 500 * time.Millisecond

type Service struct {
	store    ports.CounterStore
	policies *policy.Table
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store ports.CounterStore, policies *policy.Table, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("counter store is required")
	}
	if policies == nil {
		return nil, errors.New("policy table is required")
	}

	svc := &Service{store: store, policies: policies}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Check reserves one request slot for (class, callerKey) and decides
// allow/deny against the class's policy. Counter state per key walks
// no-record → within-limit → at-limit (hits == max, still allowed) →
// over-limit (denied) and back to no-record when the window expires.
//
// Store errors never deny: the check fails open with a single warning and a
// Degraded annotation so the reporter can flag the response.
func (s *Service) Check(ctx context.Context, class models.Class, callerKey, sourceIP string) (*models.RateLimitResult, error) {
	pol, err := s.policies.Resolve(class)
	if err != nil {
		return nil, err
	}

	result := &models.RateLimitResult{
		Class:      class,
		Key:        callerKey,
		Limit:      pol.Max,
		RetryAfter: pol.RetryAfter,
	}

	if pol.Skip != nil && pol.Skip(sourceIP) {
		result.Allowed = true
		result.Bypassed = true
		result.Remaining = pol.Max
		result.ResetAt = time.Now().Add(pol.Window)
		return result, nil
	}

	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	hits, resetAt, err := s.store.Increment(storeCtx, models.ClassKey(class, callerKey), pol.Window)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "rate limit check failed open",
				"class", class,
				"source", privacy.AnonymizeIP(sourceIP),
				"error", err,
			)
		}
		s.metrics.RecordStoreFallback()
		result.Allowed = true
		result.Degraded = true
		result.Remaining = pol.Max
		result.ResetAt = time.Now().Add(pol.Window)
		return result, nil
	}

	result.Hits = hits
	result.ResetAt = resetAt
	result.Allowed = hits <= int64(pol.Max)
	result.Remaining = max(pol.Max-int(hits), 0)
	if !result.Allowed {
		result.RetryAfter = max(int(time.Until(resetAt).Seconds()), 1)
	}
	return result, nil
}

// Policy exposes the resolved policy for a class so the decision reporter
// can build the rejection payload without re-owning the table.
func (s *Service) Policy(class models.Class) (policy.Policy, error) {
	return s.policies.Resolve(class)
}
