package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func setupTestLimiter(t *testing.T) (*Limiter, context.Context) {
	t.Helper()

	rdb := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // use DB 15 for tests to avoid conflicts
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping: Redis not available: %v", err)
	}

	rdb.FlushDB(ctx)
	t.Cleanup(func() {
		rdb.FlushDB(ctx)
		rdb.Close()
	})

	return NewLimiter(rdb), ctx
}

func TestAllow_UpToLimitThenDeny(t *testing.T) {
	l, ctx := setupTestLimiter(t)

	rule := Rule{Key: "rl:test:", Limit: 3, Window: time.Minute}
	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "alice", rule)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	ok, err := l.Allow(ctx, "alice", rule)
	if err != nil {
		t.Fatalf("allow over limit: %v", err)
	}
	if ok {
		t.Error("request over the limit should be denied")
	}
}

func TestAllow_PerIdentifier(t *testing.T) {
	l, ctx := setupTestLimiter(t)

	rule := Rule{Key: "rl:test:", Limit: 1, Window: time.Minute}
	if ok, _ := l.Allow(ctx, "alice", rule); !ok {
		t.Fatal("alice's first request should pass")
	}
	if ok, _ := l.Allow(ctx, "alice", rule); ok {
		t.Error("alice's second request should be denied")
	}
	// Bob's budget is separate.
	if ok, _ := l.Allow(ctx, "bob", rule); !ok {
		t.Error("bob's first request should pass")
	}
}
