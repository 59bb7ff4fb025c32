package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests run the Lua script against an in-process redis so the
// prune/count/add semantics themselves are exercised, not a stub reply.

func newScriptTestLimiter(t *testing.T) (*Limiter, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := New(client, "test", logger)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	l.nowFn = func() time.Time { return now }
	return l, &now
}

func TestLimiter_Script_ExactBudgetThenRejects(t *testing.T) {
	l, _ := newScriptTestLimiter(t)
	cfg := Config{Max: 3, Window: time.Minute}

	for i := 0; i < 3; i++ {
		res := l.Allow(context.Background(), "user-1", cfg)
		require.True(t, res.Allowed, "request %d within budget", i+1)
	}

	res := l.Allow(context.Background(), "user-1", cfg)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
}

func TestLimiter_Script_WindowSlidesInsteadOfResetting(t *testing.T) {
	l, now := newScriptTestLimiter(t)
	cfg := Config{Max: 2, Window: 10 * time.Second}
	start := *now

	require.True(t, l.Allow(context.Background(), "user-1", cfg).Allowed)
	require.True(t, l.Allow(context.Background(), "user-1", cfg).Allowed)

	// A burst at t=0 still counts at t=window-1: the lookback slides.
	*now = start.Add(9 * time.Second)
	assert.False(t, l.Allow(context.Background(), "user-1", cfg).Allowed)

	// Once the first entries age out of the lookback, the slot frees.
	*now = start.Add(10 * time.Second)
	assert.True(t, l.Allow(context.Background(), "user-1", cfg).Allowed)
}

func TestLimiter_Script_IdentifiersAreIndependent(t *testing.T) {
	l, _ := newScriptTestLimiter(t)
	cfg := Config{Max: 1, Window: time.Minute}

	require.True(t, l.Allow(context.Background(), "user-1", cfg).Allowed)
	assert.False(t, l.Allow(context.Background(), "user-1", cfg).Allowed)
	assert.True(t, l.Allow(context.Background(), "user-2", cfg).Allowed)
}
