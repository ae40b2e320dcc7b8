//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"titulaciones/internal/ratelimit/models"
	"titulaciones/internal/ratelimit/store"
	"titulaciones/pkg/testutil/containers"
)

type RedisBucketStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *store.RedisBucketStore
}

func TestRedisBucketStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisBucketStoreSuite))
}

func (s *RedisBucketStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.store = store.NewRedisBucketStore(s.redis.Client)
}

func (s *RedisBucketStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisBucketStoreSuite) TestSlidingWindow() {
	ctx := context.Background()
	limit := models.Limit{Requests: 2, Window: time.Minute}
	now := time.Now().Truncate(time.Millisecond)
	key := models.Key(models.ClassToken, "192.0.2.10")

	s.Run("admits up to the limit", func() {
		res, err := s.store.Allow(ctx, key, limit, now)
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.Equal(1, res.Remaining)

		res, err = s.store.Allow(ctx, key, limit, now.Add(time.Second))
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.Equal(0, res.Remaining)
	})

	s.Run("denies the next request with a retry hint", func() {
		res, err := s.store.Allow(ctx, key, limit, now.Add(2*time.Second))
		s.Require().NoError(err)
		s.False(res.Allowed)
		s.Equal(58, res.RetryAfter)
		s.True(res.ResetAt.Equal(now.Add(time.Minute)))
	})

	s.Run("admits again once the oldest request leaves the window", func() {
		res, err := s.store.Allow(ctx, key, limit, now.Add(time.Minute+time.Millisecond))
		s.Require().NoError(err)
		s.True(res.Allowed)
	})

	s.Run("key carries an expiry", func() {
		ttl, err := s.redis.Client.PTTL(ctx, key).Result()
		s.Require().NoError(err)
		s.Greater(ttl, time.Duration(0))
		s.LessOrEqual(ttl, time.Minute)
	})
}
