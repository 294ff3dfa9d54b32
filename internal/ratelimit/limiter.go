package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "rate-limit:"

// allowScript counts a request in the caller's current window.
// The counter expires with the window, so each client starts fresh once it
// elapses. Returns {allowed, remaining, ttl seconds}.
var allowScript = redis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])

	local current = tonumber(redis.call('GET', key) or '0')
	if current >= limit then
		return {0, 0, redis.call('TTL', key)}
	end

	current = redis.call('INCR', key)
	if current == 1 then
		redis.call('EXPIRE', key, window)
	end
	return {1, limit - current, redis.call('TTL', key)}
`)

// Limiter is a fixed-window request limiter shared by every server instance
// through the Redis write node. It guards link creation, the only operation
// that grows the keyspace.
type Limiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewLimiter allows limit requests per client in each window.
func NewLimiter(client *redis.Client, limit int, window time.Duration) *Limiter {
	if window < time.Second {
		window = time.Second
	}
	return &Limiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Allow counts one request for client and reports whether it fits the window,
// how many requests remain and when the window resets.
func (l *Limiter) Allow(ctx context.Context, client string) (bool, int, time.Time, error) {
	res, err := allowScript.Run(
		ctx,
		l.client,
		[]string{keyPrefix + client},
		l.limit,
		int(l.window.Seconds()),
	).Int64Slice()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(res) != 3 {
		return false, 0, time.Time{}, fmt.Errorf("rate limit check failed: unexpected reply %v", res)
	}

	ttl := time.Duration(res[2]) * time.Second
	if ttl < 0 {
		ttl = 0
	}

	return res[0] == 1, int(res[1]), time.Now().Add(ttl), nil
}

// Reset forgets the current window of client.
func (l *Limiter) Reset(ctx context.Context, client string) error {
	return l.client.Del(ctx, keyPrefix+client).Err()
}

// MaxRequests returns the per-window limit.
func (l *Limiter) MaxRequests() int {
	return l.limit
}
