package counter

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"gatekeeper/internal/platform/config"
	platformredis "gatekeeper/internal/platform/redis"
	"gatekeeper/internal/ratelimit/ports"
)

// Selector decides, lazily on first use, whether counters live in Redis or
// in the process-local fallback, and presents the chosen store behind the
// plain CounterStore interface so callers never care which one they got.
//
// The decision is made once per process: a failed connect demotes to the
// local store permanently (retry is an operational action via Close, not a
// per-request cost). All limiter instances share the one selection and the
// one underlying connection pool.
type Selector struct {
	cfg      config.RedisConfig
	disabled bool
	local    *MemoryStore
	logger   *slog.Logger

	group   singleflight.Group
	current atomic.Pointer[selection]
}

type selection struct {
	store  ports.CounterStore
	client *platformredis.Client // nil when running on the local store
}

// NewSelector builds a selector over the given fallback store. When disabled
// is set (test/demo mode) the selector never dials Redis.
func NewSelector(cfg config.RedisConfig, disabled bool, local *MemoryStore, logger *slog.Logger) *Selector {
	return &Selector{
		cfg:      cfg,
		disabled: disabled,
		local:    local,
		logger:   logger,
	}
}

// UsingFallback reports whether the current selection is the local store.
// False until the first store use forces a decision.
func (s *Selector) UsingFallback() bool {
	sel := s.current.Load()
	return sel != nil && sel.client == nil
}

// Close releases the Redis connection, if any, and clears the selection so
// the next use re-decides. This is the operator's retry lever after an
// outage is fixed.
func (s *Selector) Close() error {
	sel := s.current.Swap(nil)
	if sel == nil || sel.client == nil {
		return nil
	}
	return sel.client.Close()
}

// defaultDialTimeout bounds the one-shot connect when no dial timeout is
// configured.
const defaultDialTimeout = 2 * time.Second

// resolve returns the selected store, connecting on first need. Concurrent
// first callers share a single bounded connect attempt via singleflight.
func (s *Selector) resolve(ctx context.Context) ports.CounterStore {
	if sel := s.current.Load(); sel != nil {
		return sel.store
	}

	v, _, _ := s.group.Do("select", func() (any, error) {
		if sel := s.current.Load(); sel != nil {
			return sel.store, nil
		}
		sel := s.connect(ctx)
		s.current.Store(sel)
		return sel.store, nil
	})
	return v.(ports.CounterStore)
}

func (s *Selector) connect(ctx context.Context) *selection {
	if s.disabled || s.cfg.URL == "" {
		if s.logger != nil {
			s.logger.Info("rate limit counters using local store", "reason", selectReason(s.disabled))
		}
		return &selection{store: s.local}
	}

	// The decision outlives whichever request happened to arrive first, so
	// the dial must not inherit that request's deadline or cancellation: a
	// caller that hung up must not demote the process while Redis is healthy.
	timeout := s.cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	dialCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	client, err := platformredis.Connect(dialCtx, s.cfg)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("redis unreachable, rate limit counters falling back to local store", "error", err)
		}
		return &selection{store: s.local}
	}

	if s.logger != nil {
		s.logger.Info("rate limit counters using redis")
	}
	return &selection{store: NewRedisStore(client.Client), client: client}
}

func selectReason(disabled bool) string {
	if disabled {
		return "disabled"
	}
	return "not configured"
}

// The selector itself satisfies CounterStore by delegating to the current
// selection, so engines receive one injected handle and fallback stays
// transparent to them.

func (s *Selector) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	return s.resolve(ctx).Increment(ctx, key, window)
}

func (s *Selector) Decrement(ctx context.Context, key string) (int64, error) {
	return s.resolve(ctx).Decrement(ctx, key)
}

func (s *Selector) Get(ctx context.Context, key string) (int64, time.Time, error) {
	return s.resolve(ctx).Get(ctx, key)
}

func (s *Selector) Reset(ctx context.Context, key string) error {
	return s.resolve(ctx).Reset(ctx, key)
}
