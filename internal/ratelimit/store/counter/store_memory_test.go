package counter

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

const (
	testWindow = time.Minute
)

type MemoryStoreSuite struct {
	suite.Suite
	store *MemoryStore
	ctx   context.Context
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewMemoryStore(nil)
	s.ctx = context.Background()
}

func (s *MemoryStoreSuite) TearDownTest() {
	s.store.Close()
}

func (s *MemoryStoreSuite) TestIncrement() {
	s.Run("counts up within a window", func() {
		for want := int64(1); want <= 5; want++ {
			hits, _, err := s.store.Increment(s.ctx, "rl:test:counts", testWindow)
			s.Require().NoError(err)
			s.Equal(want, hits)
		}
	})

	s.Run("first increment anchors the reset time", func() {
		before := time.Now()
		_, resetAt, err := s.store.Increment(s.ctx, "rl:test:anchor", testWindow)
		s.Require().NoError(err)
		s.WithinDuration(before.Add(testWindow), resetAt, time.Second)

		// Later increments keep the original anchor.
		_, resetAt2, err := s.store.Increment(s.ctx, "rl:test:anchor", testWindow)
		s.Require().NoError(err)
		s.Equal(resetAt, resetAt2)
	})

	s.Run("expired window starts fresh", func() {
		_, _, err := s.store.Increment(s.ctx, "rl:test:expire", 20*time.Millisecond)
		s.Require().NoError(err)
		time.Sleep(30 * time.Millisecond)

		hits, _, err := s.store.Increment(s.ctx, "rl:test:expire", 20*time.Millisecond)
		s.Require().NoError(err)
		s.Equal(int64(1), hits)
	})

	s.Run("corrupted negative count is reset before incrementing", func() {
		_, _, err := s.store.Increment(s.ctx, "rl:test:corrupt", testWindow)
		s.Require().NoError(err)

		s.store.mu.Lock()
		s.store.entries["rl:test:corrupt"].count = -42
		s.store.mu.Unlock()

		hits, _, err := s.store.Increment(s.ctx, "rl:test:corrupt", testWindow)
		s.Require().NoError(err)
		s.Equal(int64(1), hits)
	})
}

func (s *MemoryStoreSuite) TestDecrement() {
	s.Run("returns the decremented value", func() {
		for range 3 {
			_, _, err := s.store.Increment(s.ctx, "rl:test:decr", testWindow)
			s.Require().NoError(err)
		}
		val, err := s.store.Decrement(s.ctx, "rl:test:decr")
		s.Require().NoError(err)
		s.Equal(int64(2), val)
	})

	s.Run("clamps at zero", func() {
		val, err := s.store.Decrement(s.ctx, "rl:test:decr:missing")
		s.Require().NoError(err)
		s.Equal(int64(0), val)

		_, _, err = s.store.Increment(s.ctx, "rl:test:decr:clamp", testWindow)
		s.Require().NoError(err)
		for range 3 {
			val, err = s.store.Decrement(s.ctx, "rl:test:decr:clamp")
			s.Require().NoError(err)
		}
		s.Equal(int64(0), val)
	})
}

func (s *MemoryStoreSuite) TestGet() {
	s.Run("missing key reads as zero", func() {
		hits, _, err := s.store.Get(s.ctx, "rl:test:get:missing")
		s.Require().NoError(err)
		s.Equal(int64(0), hits)
	})

	s.Run("does not mutate the counter", func() {
		_, _, err := s.store.Increment(s.ctx, "rl:test:get", testWindow)
		s.Require().NoError(err)

		for range 3 {
			hits, _, err := s.store.Get(s.ctx, "rl:test:get")
			s.Require().NoError(err)
			s.Equal(int64(1), hits)
		}
	})

	s.Run("expired key reads as zero", func() {
		_, _, err := s.store.Increment(s.ctx, "rl:test:get:expired", 10*time.Millisecond)
		s.Require().NoError(err)
		time.Sleep(20 * time.Millisecond)

		hits, _, err := s.store.Get(s.ctx, "rl:test:get:expired")
		s.Require().NoError(err)
		s.Equal(int64(0), hits)
	})
}

func (s *MemoryStoreSuite) TestReset() {
	s.Run("next increment starts from one", func() {
		for range 7 {
			_, _, err := s.store.Increment(s.ctx, "rl:test:reset", testWindow)
			s.Require().NoError(err)
		}
		s.Require().NoError(s.store.Reset(s.ctx, "rl:test:reset"))

		hits, _, err := s.store.Increment(s.ctx, "rl:test:reset", testWindow)
		s.Require().NoError(err)
		s.Equal(int64(1), hits)
	})

	s.Run("resetting a missing key is a no-op", func() {
		s.Require().NoError(s.store.Reset(s.ctx, "rl:test:reset:missing"))
		s.Require().NoError(s.store.Reset(s.ctx, "rl:test:reset:missing"))
	})
}

// 1000 increments split across 10 keys leave exactly 10 live keys counting
// 100 each.
func (s *MemoryStoreSuite) TestManyKeys() {
	for i := range 10 {
		key := fmt.Sprintf("rl:test:many:%d", i)
		for range 100 {
			_, _, err := s.store.Increment(s.ctx, key, testWindow)
			s.Require().NoError(err)
		}
	}

	s.Equal(10, s.store.Len())
	for i := range 10 {
		hits, _, err := s.store.Get(s.ctx, fmt.Sprintf("rl:test:many:%d", i))
		s.Require().NoError(err)
		s.Equal(int64(100), hits)
	}
}

func (s *MemoryStoreSuite) TestConcurrent() {
	const goroutines = 200
	var wg sync.WaitGroup

	for range goroutines {
		wg.Go(func() {
			_, _, err := s.store.Increment(s.ctx, "rl:test:concurrent", testWindow)
			s.Require().NoError(err)
		})
	}
	wg.Wait()

	hits, _, err := s.store.Get(s.ctx, "rl:test:concurrent")
	s.Require().NoError(err)
	s.Equal(int64(goroutines), hits)
}
