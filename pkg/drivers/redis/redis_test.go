package redis

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pimeys/tang-go/errs"
	"github.com/pimeys/tang-go/pkg/pool"
)

func TestNewManagerRequiresAddress(t *testing.T) {
	if _, err := NewManager(nil); errs.CodeOf(err) != errs.CodeInvalid {
		t.Fatalf("nil options: got %v, want invalid", err)
	}
	if _, err := NewManager(&goredis.Options{}); errs.CodeOf(err) != errs.CodeInvalid {
		t.Fatalf("empty addr: got %v, want invalid", err)
	}
}

func TestPoolRoundTripAgainstLiveRedis(t *testing.T) {
	addr := os.Getenv("TANG_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TANG_REDIS_ADDR to run against a live Redis")
	}

	mgr, err := NewManager(&goredis.Options{Addr: addr})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer mgr.Shutdown()

	ctx := context.Background()
	b := pool.NewBuilder().
		Name("redis-test").
		MaxSize(2).
		MinIdle(1).
		ConnTimeout(5 * time.Second).
		WaitTimeout(5 * time.Second).
		ReaperRate(time.Second).
		ValidateOnCheckout(true)
	p, err := pool.Build[*goredis.Conn](ctx, b, mgr)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer p.Close(ctx)

	conn, err := p.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer conn.Release()

	key := "tang-go:test:" + conn.ID().String()
	if err := conn.Raw().Set(ctx, key, "42", time.Minute).Err(); err != nil {
		t.Fatalf("SET failed: %v", err)
	}
	got, err := conn.Raw().Get(ctx, key).Result()
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	if got != "42" {
		t.Fatalf("GET = %q, want 42", got)
	}
	_ = conn.Raw().Del(ctx, key).Err()
}
