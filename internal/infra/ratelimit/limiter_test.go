package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/valkey-io/valkey-go"
)

func TestMemoryLimiter_BurstAndRefill(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(60, 2, func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = limiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	require.True(t, ok, "keys are limited independently")

	now = now.Add(2 * time.Second)
	ok, err = limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryLimiter_ForgetsIdleKeys(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(1, 1, func() time.Time { return now })
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "a")
	require.NoError(t, err)
	now = now.Add(10 * time.Minute)
	_, err = limiter.Allow(ctx, "b")
	require.NoError(t, err)

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	require.NotContains(t, limiter.visitors, "a")
	require.Contains(t, limiter.visitors, "b")
}

func TestMemoryLimiter_CleanupRunsOnInterval(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	limiter := NewMemoryLimiter(1, 1, func() time.Time { return now })
	ctx := context.Background()
	allowAt := func(offset time.Duration, key string) {
		now = start.Add(offset)
		_, err := limiter.Allow(ctx, key)
		require.NoError(t, err)
	}
	hasVisitor := func(key string) bool {
		limiter.mu.Lock()
		defer limiter.mu.Unlock()
		_, ok := limiter.visitors[key]
		return ok
	}

	allowAt(0, "x")
	allowAt(4*time.Minute+30*time.Second, "y") // sweep; x is not idle long enough
	require.True(t, hasVisitor("x"))

	allowAt(5*time.Minute+10*time.Second, "y") // x expired, next sweep not due
	require.True(t, hasVisitor("x"))

	allowAt(5*time.Minute+40*time.Second, "y")
	require.False(t, hasVisitor("x"))
	require.True(t, hasVisitor("y"))
}

// TestValkeyLimiter runs against TEST_VALKEY_ADDR when it is set.
func TestValkeyLimiter(t *testing.T) {
	addr := os.Getenv("TEST_VALKEY_ADDR")
	if addr == "" {
		t.Skip("TEST_VALKEY_ADDR not set")
	}
	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	limiter := NewValkeyLimiter(client, "todoauth-test-"+time.Now().Format("150405.000000"), 2)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(ctx, "ip")
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := limiter.Allow(ctx, "ip")
	require.NoError(t, err)
	require.False(t, ok)
}
