package redisstate

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimiter counts requests per key inside a fixed window.
type RateLimiter struct {
	client *redis.Client
	keys   keys
}

func NewRateLimiter(client *redis.Client, keyPrefix string) *RateLimiter {
	if client == nil {
		panic("redis client cannot be nil for RateLimiter")
	}
	return &RateLimiter{client: client, keys: newKeys(keyPrefix)}
}

// Exceeded increments the counter for scope/subject and reports whether it went
// past limit within window.
func (l *RateLimiter) Exceeded(ctx context.Context, scope, subject string, limit int, window time.Duration) (bool, error) {
	key := l.keys.rateLimit(scope, subject)
	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: pipeline failed for rate limit check on key %s: %w", key, err)
	}
	count, err := incr.Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to get incr result for rate limit on key %s: %w", key, err)
	}
	return count > int64(limit), nil
}
