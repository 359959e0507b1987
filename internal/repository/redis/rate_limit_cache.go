package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"zksteam-api/internal/client"
	"zksteam-api/internal/ratelimit"
	"zksteam-api/internal/util"
)

const defaultRateLimitPrefix = "zkp_rate_limit:"

// fixedWindowScript increments the counter and arms the expiry on the first hit
// of a window. Returns {count, pttl_ms}.
var fixedWindowScript = goredis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RateLimitCache is a ratelimit.WindowStore shared by every instance pointing at
// the same Redis. Key expiry stands in for the in-memory sweep.
type RateLimitCache struct {
	client  *client.RedisClient
	prefix  string
	timeout time.Duration
	now     func() time.Time
}

func NewRateLimitCache(client *client.RedisClient, prefix string) *RateLimitCache {
	if prefix == "" {
		prefix = defaultRateLimitPrefix
	}
	return &RateLimitCache{
		client:  client,
		prefix:  prefix,
		timeout: 2 * time.Second,
		now:     time.Now,
	}
}

var _ ratelimit.WindowStore = (*RateLimitCache)(nil)

func (c *RateLimitCache) Hit(ctx context.Context, key string, window time.Duration) (ratelimit.RateWindow, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	redisKey := c.prefix + key
	res, err := c.client.RunScript(ctx, fixedWindowScript, []string{redisKey}, window.Milliseconds())
	if err != nil {
		util.Error("Failed to increment rate limit window",
			zap.String("key", key),
			zap.Duration("window", window),
			zap.Error(err))
		return ratelimit.RateWindow{}, fmt.Errorf("failed to increment rate limit window: %w", err)
	}

	count, ttl, err := parseWindowReply(res)
	if err != nil {
		return ratelimit.RateWindow{}, err
	}

	return ratelimit.RateWindow{
		Attempts: int(count),
		ResetAt:  c.now().Add(time.Duration(ttl) * time.Millisecond),
	}, nil
}

func parseWindowReply(res interface{}) (int64, int64, error) {
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return 0, 0, fmt.Errorf("unexpected rate limit script reply: %v", res)
	}
	count, ok1 := vals[0].(int64)
	ttl, ok2 := vals[1].(int64)
	if !ok1 || !ok2 {
		return 0, 0, fmt.Errorf("unexpected rate limit script reply types: %T, %T", vals[0], vals[1])
	}
	return count, ttl, nil
}
