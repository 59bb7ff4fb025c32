package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Config describes one rate-limit policy.
type Config struct {
	Max    int
	Window time.Duration
}

// Named policies per call site. Static by design: call sites look up a
// policy, they never compute one.
var Configs = map[string]Config{
	"api_default":  {Max: 120, Window: time.Minute},
	"enqueue":      {Max: 30, Window: time.Minute},
	"ai_narrative": {Max: 10, Window: time.Minute},
}

// Result is the outcome of an admission check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// slidingWindowScript prunes expired entries, counts the remainder, and
// records the new entry in a single atomic redis operation. Returns
// {allowed, count_after, oldest_score}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count < max then
    redis.call('ZADD', key, now, member)
    redis.call('PEXPIRE', key, window)
    return {1, count + 1, now}
end
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
return {0, count, tonumber(oldest[2])}
`)

// Limiter is a sliding-window rate limiter backed by redis, shared
// across all worker processes. It fails open: if the backing store is
// unreachable the request is admitted and the failure logged.
type Limiter struct {
	client redis.Scripter
	prefix string
	logger *slog.Logger
	nowFn  func() time.Time
}

func New(client redis.Scripter, prefix string, logger *slog.Logger) *Limiter {
	return &Limiter{
		client: client,
		prefix: prefix,
		logger: logger.With("component", "ratelimit"),
		nowFn:  time.Now,
	}
}

// Allow checks whether the identifier may proceed under the given
// policy and records the request if admitted.
func (l *Limiter) Allow(ctx context.Context, identifier string, cfg Config) Result {
	now := l.nowFn()
	key := fmt.Sprintf("%s:%s", l.prefix, identifier)
	windowMs := cfg.Window.Milliseconds()

	raw, err := slidingWindowScript.Run(ctx, l.client,
		[]string{key},
		now.UnixMilli(), windowMs, cfg.Max, strconv.FormatInt(now.UnixNano(), 10)+":"+uuid.NewString(),
	).Result()
	if err != nil {
		// Fail open: a limiter outage must never block legitimate traffic.
		l.logger.ErrorContext(ctx, "Rate limit store unreachable, failing open",
			"error", err, "identifier", identifier)
		return Result{Allowed: true, Limit: cfg.Max, Remaining: cfg.Max, ResetAt: now.Add(cfg.Window)}
	}

	vals, ok := raw.([]interface{})
	if !ok || len(vals) < 3 {
		l.logger.ErrorContext(ctx, "Unexpected rate limit script reply, failing open", "reply", raw)
		return Result{Allowed: true, Limit: cfg.Max, Remaining: cfg.Max, ResetAt: now.Add(cfg.Window)}
	}

	allowed := toInt64(vals[0]) == 1
	count := int(toInt64(vals[1]))
	oldestMs := toInt64(vals[2])

	remaining := cfg.Max - count
	if remaining < 0 {
		remaining = 0
	}

	// The window slides: it frees up when the oldest recorded entry ages out.
	resetAt := time.UnixMilli(oldestMs).UTC().Add(cfg.Window)

	return Result{
		Allowed:   allowed,
		Limit:     cfg.Max,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// AllowNamed looks up a named policy from Configs. Unknown names admit
// the request; a missing policy is a programming error, not a reason to
// block traffic.
func (l *Limiter) AllowNamed(ctx context.Context, name, identifier string) Result {
	cfg, ok := Configs[name]
	if !ok {
		l.logger.WarnContext(ctx, "Unknown rate limit policy, failing open", "policy", name)
		return Result{Allowed: true}
	}
	return l.Allow(ctx, name+":"+identifier, cfg)
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		parsed, _ := strconv.ParseInt(n, 10, 64)
		return parsed
	default:
		return 0
	}
}
