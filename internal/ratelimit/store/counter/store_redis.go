package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements ports.CounterStore on a shared Redis instance so
// counters are consistent across process replicas. Increments are atomic
// INCRs; the expiry is set alongside the first increment of a window.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore wraps an already-connected client. Connection lifecycle
// (pooling, close) belongs to whoever constructed the client.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Increment atomically increments the key and returns the new count plus the
// window reset time. On the first hit of a window the key's expiry is set to
// the window; a concurrent reader may briefly see the key without an expiry,
// which at worst extends its life by one round trip.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	ttl := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, fmt.Errorf("increment %s: %w", key, err)
	}

	hits := incr.Val()
	now := time.Now()

	// Fresh window, or a counter that lost its expiry (TTL < 0 covers both
	// "no expiry" and transient replication gaps): (re)arm it.
	if hits == 1 || ttl.Val() < 0 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("set expiry on %s: %w", key, err)
		}
		return hits, now.Add(window), nil
	}

	return hits, now.Add(ttl.Val()), nil
}

// Decrement atomically decrements the key, clamping the returned value at
// zero. The stored value may go negative; clamping on read avoids the extra
// round trip of a conditional decrement.
func (s *RedisStore) Decrement(ctx context.Context, key string) (int64, error) {
	val, err := s.client.Decr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("decrement %s: %w", key, err)
	}
	return max(val, 0), nil
}

// Get reads the current count and reset time without mutating the counter.
func (s *RedisStore) Get(ctx context.Context, key string) (int64, time.Time, error) {
	pipe := s.client.TxPipeline()
	get := pipe.Get(ctx, key)
	ttl := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, time.Time{}, fmt.Errorf("get %s: %w", key, err)
	}

	now := time.Now()
	hits, err := get.Int64()
	if err == redis.Nil {
		return 0, now, nil
	}
	if err != nil {
		// Corrupted counter: reset rather than propagate a parse error.
		if delErr := s.client.Del(ctx, key).Err(); delErr != nil {
			return 0, time.Time{}, fmt.Errorf("reset corrupted counter %s: %w", key, delErr)
		}
		return 0, now, nil
	}

	resetAt := now
	if ttl.Val() > 0 {
		resetAt = now.Add(ttl.Val())
	}
	return max(hits, 0), resetAt, nil
}

// Reset deletes the key outright.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("reset %s: %w", key, err)
	}
	return nil
}
