package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"titulaciones/internal/revocation"
)

const (
	revokedHashKeyPrefix = "revocation:hash:"
	defaultStatusTTL     = 24 * time.Hour
)

// RedisStatusCache shares known-revoked hashes across issuer instances.
type RedisStatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisStatusCacheOption configures a RedisStatusCache.
type RedisStatusCacheOption func(*RedisStatusCache)

// WithStatusTTL bounds how long a positive answer is trusted without
// re-reading the registry.
func WithStatusTTL(ttl time.Duration) RedisStatusCacheOption {
	return func(c *RedisStatusCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// NewRedisStatusCache constructs a Redis-backed status cache.
func NewRedisStatusCache(client *redis.Client, opts ...RedisStatusCacheOption) *RedisStatusCache {
	c := &RedisStatusCache{
		client: client,
		ttl:    defaultStatusTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// MarkRevoked records hash as revoked.
func (c *RedisStatusCache) MarkRevoked(ctx context.Context, hash revocation.ContentHash) error {
	return c.client.Set(ctx, revokedHashKeyPrefix+hash.String(), "1", c.ttl).Err()
}

// IsRevoked reports a cached positive; a missing key means unknown.
func (c *RedisStatusCache) IsRevoked(ctx context.Context, hash revocation.ContentHash) (bool, error) {
	_, err := c.client.Get(ctx, revokedHashKeyPrefix+hash.String()).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
