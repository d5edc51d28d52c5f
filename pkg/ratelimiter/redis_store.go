package ratelimiter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces bucket keys in Redis.
const DefaultRedisPrefix = "ratelimit"

// hitScript applies one request to a bucket hash and mirrors Bucket.hit.
// Times are unix milliseconds. Returns {window_start, count, locked_until, allowed}.
var hitScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local penalty = tonumber(ARGV[4])

local state = redis.call("HMGET", KEYS[1], "ws", "count", "lock")
local ws = tonumber(state[1]) or 0
local count = tonumber(state[2]) or 0
local lock = tonumber(state[3]) or 0

if now < lock then
  return {ws, count, lock, 0}
end

if now >= ws + window then
  ws = now
  count = 0
end

count = count + 1
local allowed = 1
if count > max then
  lock = now + penalty
  allowed = 0
end

redis.call("HSET", KEYS[1], "ws", ws, "count", count, "lock", lock)
redis.call("PEXPIRE", KEYS[1], window + penalty)
return {ws, count, lock, allowed}
`)

// RedisStore implements Store on Redis so several instances share quotas.
// Each Hit is a single Lua script call.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithRedisPrefix sets the key prefix. Empty keeps the default.
func WithRedisPrefix(prefix string) RedisStoreOption {
	return func(rs *RedisStore) {
		if p := strings.TrimSpace(prefix); p != "" {
			rs.prefix = p
		}
	}
}

// NewRedisStore creates a store backed by client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) (*RedisStore, error) {
	if client == nil {
		return nil, ErrNilStore
	}

	rs := &RedisStore{
		client: client,
		prefix: DefaultRedisPrefix,
	}
	for _, opt := range opts {
		opt(rs)
	}
	return rs, nil
}

// Hit applies one request to the bucket under key.
func (rs *RedisStore) Hit(ctx context.Context, key string, rule Rule, now time.Time) (Bucket, bool, error) {
	vals, err := hitScript.Run(ctx, rs.client, []string{rs.key(key)},
		now.UnixMilli(),
		rule.Window.Milliseconds(),
		rule.Max,
		rule.Penalty.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Bucket{}, false, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if len(vals) != 4 {
		return Bucket{}, false, fmt.Errorf("%w: unexpected script reply of %d values", ErrStoreUnavailable, len(vals))
	}

	b := Bucket{
		WindowStart: time.UnixMilli(vals[0]),
		Count:       int(vals[1]),
	}
	if vals[2] > 0 {
		b.LockedUntil = time.UnixMilli(vals[2])
	}
	return b, vals[3] == 1, nil
}

// Reset drops the bucket under key.
func (rs *RedisStore) Reset(ctx context.Context, key string) error {
	if err := rs.client.Del(ctx, rs.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Healthcheck pings Redis.
func (rs *RedisStore) Healthcheck(ctx context.Context) error {
	if err := rs.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func (rs *RedisStore) key(key string) string {
	return rs.prefix + ":" + key
}
