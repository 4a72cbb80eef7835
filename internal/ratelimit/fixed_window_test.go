package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiter(t *testing.T, mr *miniredis.Miniredis, name string, limit int, window time.Duration) *FixedWindowLimiter {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	l, err := NewFixedWindowLimiter(client, "test:ratelimit", name, limit, window)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	return l
}

func TestFixedWindowLimiterBlocksOverLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	l := newLimiter(t, mr, "generate", 2, time.Minute)
	fixed := time.Date(2026, 3, 1, 12, 0, 15, 0, time.UTC)
	l.now = func() time.Time { return fixed }
	ctx := context.Background()

	first := l.Allow(ctx, "203.0.113.5")
	if !first.Allowed || first.Remaining != 1 {
		t.Fatalf("first = %+v", first)
	}
	if d := l.Allow(ctx, "203.0.113.5"); !d.Allowed || d.Remaining != 0 {
		t.Fatalf("second = %+v", d)
	}
	third := l.Allow(ctx, "203.0.113.5")
	if third.Allowed {
		t.Fatal("third request should be blocked")
	}
	if third.RetryAfter != 45*time.Second {
		t.Fatalf("retry after = %v, want 45s", third.RetryAfter)
	}
	if d := l.Allow(ctx, "198.51.100.1"); !d.Allowed {
		t.Fatal("other keys have their own budget")
	}

	l.now = func() time.Time { return fixed.Add(time.Minute) }
	if d := l.Allow(ctx, "203.0.113.5"); !d.Allowed {
		t.Fatal("next window should reset the budget")
	}
}

func TestFixedWindowLimiterNamesAreIndependent(t *testing.T) {
	mr := miniredis.RunT(t)
	login := newLimiter(t, mr, "login", 1, time.Minute)
	generate := newLimiter(t, mr, "generate", 1, time.Minute)
	ctx := context.Background()

	if !login.Allow(ctx, "ip").Allowed || login.Allow(ctx, "ip").Allowed {
		t.Fatal("login limiter should allow exactly one")
	}
	if !generate.Allow(ctx, "ip").Allowed {
		t.Fatal("generate budget should be untouched by login")
	}
}

func TestFixedWindowLimiterFailsClosed(t *testing.T) {
	mr := miniredis.RunT(t)
	l := newLimiter(t, mr, "login", 1, time.Second)
	mr.Close()
	if l.Allow(context.Background(), "ip-1").Allowed {
		t.Fatal("limiter should fail closed on redis errors")
	}
}

func TestNewFixedWindowLimiterValidates(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })
	if _, err := NewFixedWindowLimiter(nil, "", "x", 1, time.Second); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := NewFixedWindowLimiter(client, "", "x", 0, time.Second); err == nil {
		t.Fatal("expected error for zero limit")
	}
	if _, err := NewFixedWindowLimiter(client, "", " ", 1, time.Second); err == nil {
		t.Fatal("expected error for blank name")
	}
	l, err := NewFixedWindowLimiter(client, "", "x", 1, time.Second)
	if err != nil || l.prefix != DefaultPrefix {
		t.Fatalf("default prefix: %v %v", l, err)
	}
}
