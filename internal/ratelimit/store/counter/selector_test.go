package counter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gatekeeper/internal/platform/config"
	"gatekeeper/internal/ratelimit/ports"
)

var _ ports.CounterStore = (*Selector)(nil)

func testRedisConfig(url string) config.RedisConfig {
	return config.RedisConfig{
		URL:         url,
		DialTimeout: 100 * time.Millisecond,
	}
}

func TestSelectorDisabledNeverDials(t *testing.T) {
	local := NewMemoryStore(nil)
	defer local.Close()

	// A URL pointing nowhere: if the selector dialed it despite being
	// disabled, the dial timeout would surface as latency or an error.
	sel := NewSelector(testRedisConfig("redis://192.0.2.1:6379"), true, local, nil)

	start := time.Now()
	hits, _, err := sel.Increment(context.Background(), "rl:test:disabled", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), hits)
	require.Less(t, time.Since(start), 50*time.Millisecond)
	require.True(t, sel.UsingFallback())
}

func TestSelectorFallsBackWhenUnreachable(t *testing.T) {
	local := NewMemoryStore(nil)
	defer local.Close()

	// TEST-NET-1 address: the bounded connect attempt fails, and the
	// selector demotes to the local store permanently.
	sel := NewSelector(testRedisConfig("redis://192.0.2.1:6379"), false, local, nil)

	hits, _, err := sel.Increment(context.Background(), "rl:test:fallback", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), hits)
	require.True(t, sel.UsingFallback())

	// No per-request retry: the second call reuses the decision.
	start := time.Now()
	_, _, err = sel.Increment(context.Background(), "rl:test:fallback", time.Minute)
	require.NoError(t, err)
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestSelectorNoURLUsesLocal(t *testing.T) {
	local := NewMemoryStore(nil)
	defer local.Close()

	sel := NewSelector(testRedisConfig(""), false, local, nil)

	require.NoError(t, sel.Reset(context.Background(), "rl:test:nourl"))
	require.True(t, sel.UsingFallback())
}

func TestSelectorCloseAllowsRedecide(t *testing.T) {
	local := NewMemoryStore(nil)
	defer local.Close()

	sel := NewSelector(testRedisConfig(""), false, local, nil)
	_, _, err := sel.Increment(context.Background(), "rl:test:close", time.Minute)
	require.NoError(t, err)
	require.True(t, sel.UsingFallback())

	require.NoError(t, sel.Close())

	// After Close the next use decides again (and lands on local again
	// here, since there is still no URL).
	_, _, err = sel.Increment(context.Background(), "rl:test:close", time.Minute)
	require.NoError(t, err)
	require.True(t, sel.UsingFallback())
}

func TestSelectorDialIgnoresCallerCancellation(t *testing.T) {
	local := NewMemoryStore(nil)
	defer local.Close()

	sel := NewSelector(testRedisConfig("redis://192.0.2.1:6379"), false, local, nil)

	// A first caller whose client already hung up. The connect attempt must
	// run on its own deadline, not return instantly on the dead context.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	hits, _, err := sel.Increment(ctx, "rl:test:canceled", time.Minute)
	require.Less(t, 80*time.Millisecond, time.Since(start),
		"dial gave up on the caller's canceled context instead of its own timeout")
	require.True(t, sel.UsingFallback())

	// The local store landed on does not consult the caller's context.
	require.NoError(t, err)
	require.Equal(t, int64(1), hits)
}

func TestSelectorConcurrentFirstUse(t *testing.T) {
	local := NewMemoryStore(nil)
	defer local.Close()

	sel := NewSelector(testRedisConfig("redis://192.0.2.1:6379"), false, local, nil)

	const goroutines = 50
	var wg sync.WaitGroup
	for range goroutines {
		wg.Go(func() {
			_, _, err := sel.Increment(context.Background(), "rl:test:race", time.Minute)
			require.NoError(t, err)
		})
	}
	wg.Wait()

	hits, _, err := sel.Get(context.Background(), "rl:test:race")
	require.NoError(t, err)
	require.Equal(t, int64(goroutines), hits)
}
