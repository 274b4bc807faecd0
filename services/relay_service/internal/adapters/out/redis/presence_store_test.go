package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/EthanQC/relay/services/relay_service/internal/domain/entity"
	relayerrors "github.com/EthanQC/relay/services/relay_service/pkg/errors"
)

func newTestStore(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *PresenceStoreRedis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewPresenceStoreRedis(client, "", ttl).(*PresenceStoreRedis)
}

func TestSetGetUsesStatusKey(t *testing.T) {
	mr, store := newTestStore(t, 0)
	ctx := context.Background()

	rec := &entity.PresenceRecord{Online: true, SocketID: "sock-1"}
	if err := store.Set(ctx, "alice", rec); err != nil {
		t.Fatalf("set: %v", err)
	}

	raw, err := mr.Get("user:status:alice")
	if err != nil {
		t.Fatalf("raw key missing: %v", err)
	}
	if raw != `{"online":true,"isBusy":false,"socketId":"sock-1"}` {
		t.Fatalf("stored %s", raw)
	}
	if mr.TTL("user:status:alice") != 0 {
		t.Fatal("zero ttl should not expire")
	}

	got, err := store.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if *got != *rec {
		t.Fatalf("got %+v, want %+v", got, rec)
	}
}

func TestGetNotFound(t *testing.T) {
	_, store := newTestStore(t, 0)
	if _, err := store.Get(context.Background(), "nobody"); !errors.Is(err, relayerrors.ErrPresenceNotFound) {
		t.Fatalf("err = %v, want ErrPresenceNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	mr, store := newTestStore(t, 0)
	ctx := context.Background()
	_ = store.Set(ctx, "bob", &entity.PresenceRecord{Online: true})

	if err := store.Delete(ctx, "bob"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("user:status:bob") {
		t.Fatal("key still present")
	}
	if err := store.Delete(ctx, "bob"); err != nil {
		t.Fatalf("deleting a missing key: %v", err)
	}
}

func TestTTL(t *testing.T) {
	mr, store := newTestStore(t, time.Minute)
	ctx := context.Background()
	_ = store.Set(ctx, "carol", &entity.PresenceRecord{Online: true})

	if mr.TTL("user:status:carol") != time.Minute {
		t.Fatalf("ttl = %v", mr.TTL("user:status:carol"))
	}
	mr.FastForward(2 * time.Minute)
	if _, err := store.Get(ctx, "carol"); !errors.Is(err, relayerrors.ErrPresenceNotFound) {
		t.Fatalf("expired record: %v", err)
	}
}

func TestStoreErrors(t *testing.T) {
	mr, store := newTestStore(t, 0)
	ctx := context.Background()
	mr.SetError("READONLY simulated outage")

	var storeErr *relayerrors.StoreError
	if err := store.Set(ctx, "dave", &entity.PresenceRecord{}); !errors.As(err, &storeErr) || storeErr.Op != "set" {
		t.Fatalf("set err = %v", err)
	}
	if _, err := store.Get(ctx, "dave"); !errors.As(err, &storeErr) || storeErr.Op != "get" {
		t.Fatalf("get err = %v", err)
	}
	if err := store.Delete(ctx, "dave"); !errors.As(err, &storeErr) || storeErr.Key != "user:status:dave" {
		t.Fatalf("delete err = %v", err)
	}
}

func TestCorruptRecord(t *testing.T) {
	mr, store := newTestStore(t, 0)
	mr.Set("user:status:eve", "not-json")

	_, err := store.Get(context.Background(), "eve")
	var storeErr *relayerrors.StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("err = %v, want StoreError", err)
	}
	if errors.Is(err, relayerrors.ErrPresenceNotFound) {
		t.Fatal("corrupt record must not look like NotFound")
	}
}
