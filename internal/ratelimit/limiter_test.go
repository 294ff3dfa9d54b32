package ratelimit

import (
	"context"
	"testing"
	"time"

	"shortly/internal/testutils"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, limit int) *Limiter {
	t.Helper()
	addr := testutils.StartRedis(t)

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	return NewLimiter(client, limit, time.Minute)
}

func TestLimiter_AllowsUpToLimit(t *testing.T) {
	ctx := context.Background()
	l := newTestLimiter(t, 3)

	for want := 2; want >= 0; want-- {
		allowed, remaining, reset, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, want, remaining)
		assert.WithinDuration(t, time.Now().Add(time.Minute), reset, 2*time.Second)
	}

	allowed, remaining, _, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 0, remaining)
}

func TestLimiter_ClientsAreIndependent(t *testing.T) {
	ctx := context.Background()
	l := newTestLimiter(t, 1)

	allowed, _, _, err := l.Allow(ctx, "a")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, _, _, err = l.Allow(ctx, "a")
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, _, _, err = l.Allow(ctx, "b")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestLimiter_Reset(t *testing.T) {
	ctx := context.Background()
	l := newTestLimiter(t, 1)

	_, _, _, err := l.Allow(ctx, "c")
	require.NoError(t, err)
	require.NoError(t, l.Reset(ctx, "c"))

	allowed, _, _, err := l.Allow(ctx, "c")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestLimiter_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	l := NewLimiter(client, 10, time.Minute)
	assert.Equal(t, 10, l.MaxRequests())

	allowed, _, _, err := l.Allow(context.Background(), "x")
	assert.Error(t, err)
	assert.False(t, allowed)
}
