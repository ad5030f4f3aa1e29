package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/goliatone/go-connections/core"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newRedisTestStore(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("CONNECTIONS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CONNECTIONS_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	store, err := NewRedisStore(client, "connections-test:"+uuid.NewString(), time.Minute)
	if err != nil {
		t.Fatalf("new redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRedisStore_RoundTrip(t *testing.T) {
	store := newRedisTestStore(t)
	ctx := context.Background()

	if err := store.SaveState(ctx, "s1", core.ProviderFacebook, "st"); err != nil {
		t.Fatalf("save: %v", err)
	}
	state, ok, err := store.LoadState(ctx, "s1", core.ProviderFacebook)
	if err != nil || !ok || state != "st" {
		t.Fatalf("unexpected load %q %v %v", state, ok, err)
	}
	if err := store.ClearState(ctx, "s1", core.ProviderFacebook); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, err := store.LoadState(ctx, "s1", core.ProviderFacebook); ok || err != nil {
		t.Fatalf("expected cleared state, got ok=%v err=%v", ok, err)
	}

	if err := store.SaveState(ctx, "s1", core.ProviderFacebook, "st2"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if state, ok, err := store.TakeState(ctx, "s1", core.ProviderFacebook); err != nil || !ok || state != "st2" {
		t.Fatalf("unexpected take %q %v %v", state, ok, err)
	}
	if _, ok, err := store.TakeState(ctx, "s1", core.ProviderFacebook); ok || err != nil {
		t.Fatalf("expected second take to miss, got ok=%v err=%v", ok, err)
	}

	if err := store.BindUser(ctx, "s1", "u1"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if uid, ok, _ := store.BoundUser(ctx, "s1"); !ok || uid != "u1" {
		t.Fatalf("unexpected bound user %q", uid)
	}
}

func TestNewRedisStore_RequiresClient(t *testing.T) {
	if _, err := NewRedisStore(nil, "", 0); err == nil {
		t.Fatalf("expected nil client to fail")
	}
}
