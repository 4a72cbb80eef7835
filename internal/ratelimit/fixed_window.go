package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultPrefix = "mindseye:ratelimit"

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// FixedWindowLimiter counts requests per key in fixed windows stored in Redis,
// so every gateway replica shares the same budget.
type FixedWindowLimiter struct {
	name   string
	limit  int
	window time.Duration
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

// NewFixedWindowLimiter builds a limiter on an existing client. name separates
// budgets that share a prefix, e.g. "login" and "generate".
func NewFixedWindowLimiter(client redis.Cmdable, prefix, name string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if limit <= 0 || window < time.Millisecond {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	if client == nil {
		return nil, errors.New("rate limiter redis client is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("rate limiter name is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &FixedWindowLimiter{
		name:   name,
		limit:  limit,
		window: window,
		client: client,
		prefix: prefix,
		now:    time.Now,
	}, nil
}

// Allow counts one request for key. On Redis failures it fails closed.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) Decision {
	if l == nil {
		return Decision{RetryAfter: time.Minute}
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	windowMs := l.window.Milliseconds()
	nowMs := l.now().UTC().UnixMilli()
	slot := nowMs / windowMs
	retryAfter := time.Duration((slot+1)*windowMs-nowMs) * time.Millisecond
	redisKey := fmt.Sprintf("%s:%s:%s:%d", l.prefix, l.name, key, slot)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	count, err := fixedWindowScript.Run(ctx, l.client, []string{redisKey}, windowMs).Int64()
	if err != nil {
		slog.Warn("rate limiter unavailable", "limiter", l.name, "err", err)
		return Decision{RetryAfter: retryAfter}
	}
	if count > int64(l.limit) {
		return Decision{RetryAfter: retryAfter}
	}
	return Decision{Allowed: true, Remaining: l.limit - int(count)}
}
