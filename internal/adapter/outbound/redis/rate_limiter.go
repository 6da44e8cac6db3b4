package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/paygate/server/internal/port/outbound"
)

const rateLimitKeyPrefix = "paygate:ratelimit:"

// takeScript trims the window and charges cost entries only if they fit.
// KEYS[1] window key. ARGV: now(ms), window(ms), cost, limit, member prefix.
// Returns {allowed, remaining, retry_after_ms}.
var takeScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local limit = tonumber(ARGV[4])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
local used = redis.call("ZCARD", KEYS[1])
if used + cost > limit then
	local retry = window
	local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
	if oldest[2] then
		retry = tonumber(oldest[2]) + window - now
	end
	return {0, math.max(limit - used, 0), retry}
end
for i = 1, cost do
	redis.call("ZADD", KEYS[1], now, ARGV[5] .. ":" .. i)
end
redis.call("PEXPIRE", KEYS[1], window)
return {1, limit - used - cost, 0}
`)

// rateLimiter keeps one sorted set of request timestamps per key.
type rateLimiter struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRateLimiter creates a Redis sliding-window limiter.
func NewRateLimiter(client redis.UniversalClient) outbound.RateLimiterPort {
	return &rateLimiter{client: client, now: time.Now}
}

func (r *rateLimiter) Take(ctx context.Context, key string, cost, limit int, window time.Duration) (outbound.RateDecision, error) {
	if cost < 1 {
		cost = 1
	}
	res, err := takeScript.Run(ctx, r.client, []string{rateLimitKeyPrefix + key},
		r.now().UnixMilli(),
		window.Milliseconds(),
		cost,
		limit,
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return outbound.RateDecision{}, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if len(res) != 3 {
		return outbound.RateDecision{}, fmt.Errorf("rate limit %s: unexpected reply %v", key, res)
	}
	return outbound.RateDecision{
		Allowed:    res[0] == 1,
		Remaining:  int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}

var _ outbound.RateLimiterPort = (*rateLimiter)(nil)
