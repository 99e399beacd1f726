//go:build integration

package counter

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"gatekeeper/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	client *redis.Client
	store  *RedisStore
	ctx    context.Context
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.redis = containers.NewRedisContainer(s.T())
	s.client = s.redis.Client
	s.store = NewRedisStore(s.client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisStoreSuite) TestIncrementSetsExpiryOnFirstHit() {
	hits, resetAt, err := s.store.Increment(s.ctx, "rl:it:expiry", time.Minute)
	s.Require().NoError(err)
	s.Equal(int64(1), hits)
	s.WithinDuration(time.Now().Add(time.Minute), resetAt, 2*time.Second)

	ttl, err := s.client.TTL(s.ctx, "rl:it:expiry").Result()
	s.Require().NoError(err)
	s.Greater(ttl, 50*time.Second)

	// Subsequent increments keep the original window.
	time.Sleep(time.Second)
	hits, resetAt2, err := s.store.Increment(s.ctx, "rl:it:expiry", time.Minute)
	s.Require().NoError(err)
	s.Equal(int64(2), hits)
	s.True(resetAt2.Before(resetAt.Add(time.Second)))
}

func (s *RedisStoreSuite) TestIncrementRearmsLostExpiry() {
	s.Require().NoError(s.client.Set(s.ctx, "rl:it:lost", 3, 0).Err())

	_, _, err := s.store.Increment(s.ctx, "rl:it:lost", time.Minute)
	s.Require().NoError(err)

	ttl, err := s.client.TTL(s.ctx, "rl:it:lost").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
}

func (s *RedisStoreSuite) TestDecrementClampsAtZero() {
	_, _, err := s.store.Increment(s.ctx, "rl:it:decr", time.Minute)
	s.Require().NoError(err)

	val, err := s.store.Decrement(s.ctx, "rl:it:decr")
	s.Require().NoError(err)
	s.Equal(int64(0), val)

	// The raw value may go negative; the clamp is on the return.
	val, err = s.store.Decrement(s.ctx, "rl:it:decr")
	s.Require().NoError(err)
	s.Equal(int64(0), val)
}

func (s *RedisStoreSuite) TestGetMissingKeyReadsZero() {
	hits, _, err := s.store.Get(s.ctx, "rl:it:missing")
	s.Require().NoError(err)
	s.Equal(int64(0), hits)
}

func (s *RedisStoreSuite) TestGetResetsCorruptedCounter() {
	s.Require().NoError(s.client.Set(s.ctx, "rl:it:corrupt", "not-a-number", time.Minute).Err())

	hits, _, err := s.store.Get(s.ctx, "rl:it:corrupt")
	s.Require().NoError(err)
	s.Equal(int64(0), hits)

	exists, err := s.client.Exists(s.ctx, "rl:it:corrupt").Result()
	s.Require().NoError(err)
	s.Equal(int64(0), exists)
}

func (s *RedisStoreSuite) TestReset() {
	for range 5 {
		_, _, err := s.store.Increment(s.ctx, "rl:it:reset", time.Minute)
		s.Require().NoError(err)
	}
	s.Require().NoError(s.store.Reset(s.ctx, "rl:it:reset"))

	hits, _, err := s.store.Increment(s.ctx, "rl:it:reset", time.Minute)
	s.Require().NoError(err)
	s.Equal(int64(1), hits)
}
