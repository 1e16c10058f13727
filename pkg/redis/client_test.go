package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/stockledger-backend/pkg/config"
)

func TestSetNXClaimsKeyOnce(t *testing.T) {
	ctx := context.Background()
	client := &Client{Keyspace: NewKeyspace("sl"), cmd: newFakeCommands()}
	key := client.IdempotencyKey("evt:processed:stock-orders", "evt-1")

	won, err := client.SetNX(ctx, key, "1", time.Hour)
	if err != nil || !won {
		t.Fatalf("expected first SetNX to win, won=%v err=%v", won, err)
	}
	won, err = client.SetNX(ctx, key, "1", time.Hour)
	if err != nil || won {
		t.Fatalf("expected second SetNX to lose, won=%v err=%v", won, err)
	}

	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := client.Get(ctx, key); err != redis.Nil {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestReleaseIfOwnerKeepsForeignLock(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCommands()
	client := &Client{cmd: fake}
	key := client.LockKey("cron-worker", "prod")
	fake.data[key] = "owner-a"

	released, err := client.ReleaseIfOwner(ctx, key, "owner-b")
	if err != nil || released {
		t.Fatalf("foreign owner must not release, released=%v err=%v", released, err)
	}
	if _, ok := fake.data[key]; !ok {
		t.Fatal("lock was dropped by a foreign owner")
	}

	released, err = client.ReleaseIfOwner(ctx, key, "owner-a")
	if err != nil || !released {
		t.Fatalf("owner should release, released=%v err=%v", released, err)
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected error for uninitialized client")
	}
	if _, err := client.ReleaseIfOwner(context.Background(), "k", "v"); err == nil {
		t.Fatal("expected error for uninitialized client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on empty client should be a no-op, got %v", err)
	}
}

func TestKeyspace(t *testing.T) {
	keys := NewKeyspace(" stockledger: ")
	if got := keys.IdempotencyKey("scope", "id"); got != "stockledger:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := keys.IdempotencyKey("scope", ""); got != "stockledger:idempotency:scope" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
	if got := keys.LockKey("cron-worker", ""); got != "stockledger:lock:cron-worker:local" {
		t.Fatalf("unexpected lock key %s", got)
	}
	var zero Keyspace
	if got := zero.Key("x"); got != "sl:x" {
		t.Fatalf("zero keyspace should use the default prefix, got %s", got)
	}
}

func TestDialOptions(t *testing.T) {
	if _, err := dialOptions(config.RedisConfig{}); err == nil {
		t.Fatal("expected error without url or address")
	}
	opts, err := dialOptions(config.RedisConfig{URL: "redis://localhost:6379/2", PoolSize: 7, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.DB != 2 || opts.PoolSize != 7 || opts.DialTimeout != time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}
	opts, err = dialOptions(config.RedisConfig{Address: "cache:6379", DB: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "cache:6379" || opts.DB != 3 {
		t.Fatalf("unexpected address options %+v", opts)
	}
}

type fakeCommands struct {
	data map[string]string
}

func newFakeCommands() *fakeCommands {
	return &fakeCommands{data: map[string]string{}}
}

func (f *fakeCommands) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeCommands) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeCommands) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCommands) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeCommands) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(f.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

// Eval only understands the owner-checked release script.
func (f *fakeCommands) Eval(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	if f.data[keys[0]] != fmt.Sprint(args[0]) {
		return redis.NewCmdResult(int64(0), nil)
	}
	delete(f.data, keys[0])
	return redis.NewCmdResult(int64(1), nil)
}
