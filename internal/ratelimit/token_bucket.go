package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "pixelcache:ratelimit"

type Decision struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
}

// takeScript refills the bucket for the elapsed time and takes ARGV[4]
// tokens when enough are left. Returns {allowed, remaining, retry_after_ms}.
var takeScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or capacity
local ts = tonumber(state[2]) or now
tokens = math.min(capacity, tokens + math.max(0, now - ts) * rate)

local allowed = 0
local wait = 0
if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
else
  wait = math.ceil((cost - tokens) / rate)
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ARGV[5])
return {allowed, math.floor(tokens), wait}
`)

// RedisTokenBucket keeps one bucket per key in a Redis hash so every api
// replica draws from the same budget. Requests carry a cost in tokens.
type RedisTokenBucket struct {
	client    redis.UniversalClient
	capacity  int64
	perMS     float64
	ttl       time.Duration
	keyPrefix string
	now       func() time.Time
}

func NewRedisTokenBucket(client redis.UniversalClient, capacity int, window time.Duration, keyPrefix string) (*RedisTokenBucket, error) {
	switch {
	case client == nil:
		return nil, errors.New("redis client is required")
	case capacity <= 0:
		return nil, errors.New("capacity must be positive")
	case window <= 0:
		return nil, errors.New("window must be positive")
	}
	if strings.TrimSpace(keyPrefix) == "" {
		keyPrefix = defaultKeyPrefix
	}

	return &RedisTokenBucket{
		client:    client,
		capacity:  int64(capacity),
		perMS:     float64(capacity) / float64(max(1, window.Milliseconds())),
		ttl:       2 * window,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}, nil
}

// Take charges cost tokens to key. Costs above the bucket capacity are
// clamped so expensive requests are slowed down, never locked out.
func (b *RedisTokenBucket) Take(ctx context.Context, key string, cost int) (Decision, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	charge := min(max(int64(cost), 1), b.capacity)

	values, err := takeScript.Run(
		ctx,
		b.client,
		[]string{b.keyPrefix + ":" + key},
		b.capacity,
		b.perMS,
		b.now().UTC().UnixMilli(),
		charge,
		b.ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("take %d tokens for %s: %w", charge, key, err)
	}
	if len(values) != 3 {
		return Decision{}, fmt.Errorf("token bucket returned %d values", len(values))
	}

	return Decision{
		Allowed:    values[0] == 1,
		Limit:      b.capacity,
		Remaining:  values[1],
		RetryAfter: time.Duration(values[2]) * time.Millisecond,
	}, nil
}
