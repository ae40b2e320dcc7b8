package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"titulaciones/internal/ratelimit/models"
)

// slidingWindowScript trims the window, admits the request when there is
// room and returns {allowed, count, oldest_ms}. Times are unix milliseconds.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
	redis.call('ZADD', key, now, ARGV[4])
	redis.call('PEXPIRE', key, window)
	count = count + 1
	allowed = 1
end
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldestMs = now
if oldest[2] then
	oldestMs = tonumber(oldest[2])
end
return {allowed, count, oldestMs}
`)

// RedisBucketStore shares sliding-window counters across issuer instances.
// Keys expire with their window so no sweeping is needed.
type RedisBucketStore struct {
	client *redis.Client
}

func NewRedisBucketStore(client *redis.Client) *RedisBucketStore {
	return &RedisBucketStore{client: client}
}

// Allow records one request for key at now unless that would exceed limit.
func (s *RedisBucketStore) Allow(ctx context.Context, key string, limit models.Limit, now time.Time) (*models.RateLimitResult, error) {
	windowMs := limit.Window.Milliseconds()
	nowMs := now.UnixMilli()
	member := fmt.Sprintf("%d-%s", nowMs, uuid.NewString())

	vals, err := slidingWindowScript.Run(ctx, s.client, []string{key},
		nowMs, windowMs, limit.Requests, member).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit script: %w", err)
	}
	if len(vals) != 3 {
		return nil, fmt.Errorf("rate limit script: unexpected reply length %d", len(vals))
	}

	resetAt := time.UnixMilli(vals[2]).Add(limit.Window).UTC()
	res := &models.RateLimitResult{
		Allowed:   vals[0] == 1,
		Limit:     limit.Requests,
		Remaining: max(limit.Requests-int(vals[1]), 0),
		ResetAt:   resetAt,
	}
	if !res.Allowed {
		res.Remaining = 0
		res.RetryAfter = retryAfter(resetAt, now)
	}
	return res, nil
}
