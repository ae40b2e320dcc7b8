//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"titulaciones/internal/revocation"
	"titulaciones/internal/revocation/cache"
	"titulaciones/pkg/testutil/containers"
)

type RedisStatusCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *cache.RedisStatusCache
}

func TestRedisStatusCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStatusCacheSuite))
}

func (s *RedisStatusCacheSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.cache = cache.NewRedisStatusCache(s.redis.Client, cache.WithStatusTTL(time.Minute))
}

func (s *RedisStatusCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStatusCacheSuite) TestMarkAndRead() {
	ctx := context.Background()
	h := revocation.ContentHash{0xab, 0xcd}

	revoked, err := s.cache.IsRevoked(ctx, h)
	s.Require().NoError(err)
	s.False(revoked)

	s.Require().NoError(s.cache.MarkRevoked(ctx, h))
	revoked, err = s.cache.IsRevoked(ctx, h)
	s.Require().NoError(err)
	s.True(revoked)

	ttl, err := s.redis.Client.TTL(ctx, "revocation:hash:"+h.String()).Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
	s.LessOrEqual(ttl, time.Minute)
}

func (s *RedisStatusCacheSuite) TestLedgerUsesCache() {
	ctx := context.Background()
	registry := revocation.NewInMemoryRegistry()
	ledger := revocation.NewLedger(registry, revocation.WithCache(s.cache))
	h := revocation.ContentHash{0x01}

	_, err := ledger.Revoke(ctx, h)
	s.Require().NoError(err)

	revoked, err := s.cache.IsRevoked(ctx, h)
	s.Require().NoError(err)
	s.True(revoked)
}
