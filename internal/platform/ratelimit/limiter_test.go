package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubScripter satisfies redis.Scripter and returns a canned reply for
// every script evaluation.
type stubScripter struct {
	reply interface{}
	err   error
}

func (s *stubScripter) cmd(ctx context.Context) *redis.Cmd {
	return redis.NewCmdResult(s.reply, s.err)
}

func (s *stubScripter) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return s.cmd(ctx)
}

func (s *stubScripter) EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return s.cmd(ctx)
}

func (s *stubScripter) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return s.cmd(ctx)
}

func (s *stubScripter) EvalShaRO(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return s.cmd(ctx)
}

func (s *stubScripter) ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult([]bool{true}, nil)
}

func (s *stubScripter) ScriptLoad(ctx context.Context, script string) *redis.StringCmd {
	return redis.NewStringResult("sha", nil)
}

func newTestLimiter(stub *stubScripter, now time.Time) *Limiter {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := New(stub, "test", logger)
	l.nowFn = func() time.Time { return now }
	return l
}

func TestLimiter_Allow_Admitted(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	stub := &stubScripter{reply: []interface{}{int64(1), int64(3), now.UnixMilli()}}
	l := newTestLimiter(stub, now)

	res := l.Allow(context.Background(), "user-1", Config{Max: 10, Window: time.Minute})

	assert.True(t, res.Allowed)
	assert.Equal(t, 10, res.Limit)
	assert.Equal(t, 7, res.Remaining)
}

func TestLimiter_Allow_Rejected(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	oldest := now.Add(-40 * time.Second)
	stub := &stubScripter{reply: []interface{}{int64(0), int64(10), oldest.UnixMilli()}}
	l := newTestLimiter(stub, now)

	res := l.Allow(context.Background(), "user-1", Config{Max: 10, Window: time.Minute})

	require.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	// The window slides: the slot frees when the oldest entry ages out.
	assert.Equal(t, oldest.Add(time.Minute), res.ResetAt)
}

func TestLimiter_Allow_FailsOpenOnStoreError(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	stub := &stubScripter{err: errors.New("connection refused")}
	l := newTestLimiter(stub, now)

	res := l.Allow(context.Background(), "user-1", Config{Max: 5, Window: time.Minute})

	assert.True(t, res.Allowed, "limiter outage must never block traffic")
	assert.Equal(t, 5, res.Remaining)
}

func TestLimiter_AllowNamed_UnknownPolicyFailsOpen(t *testing.T) {
	stub := &stubScripter{reply: []interface{}{int64(1), int64(1), int64(0)}}
	l := newTestLimiter(stub, time.Now())

	res := l.AllowNamed(context.Background(), "no-such-policy", "user-1")
	assert.True(t, res.Allowed)
}
