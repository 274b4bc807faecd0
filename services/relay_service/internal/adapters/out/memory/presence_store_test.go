package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/EthanQC/relay/services/relay_service/internal/domain/entity"
	relayerrors "github.com/EthanQC/relay/services/relay_service/pkg/errors"
)

func TestPresenceStoreMemory(t *testing.T) {
	ctx := context.Background()
	store := NewPresenceStoreMemory()

	if _, err := store.Get(ctx, "alice"); !errors.Is(err, relayerrors.ErrPresenceNotFound) {
		t.Fatalf("err = %v", err)
	}

	rec := &entity.PresenceRecord{Online: true, SocketID: "s1"}
	if err := store.Set(ctx, "alice", rec); err != nil {
		t.Fatal(err)
	}
	// 返回的是副本
	rec.Online = false
	got, err := store.Get(ctx, "alice")
	if err != nil || !got.Online || got.SocketID != "s1" {
		t.Fatalf("got %+v, %v", got, err)
	}
	got.IsBusy = true
	again, _ := store.Get(ctx, "alice")
	if again.IsBusy {
		t.Fatal("caller mutation leaked into store")
	}

	if err := store.Delete(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, "alice"); !errors.Is(err, relayerrors.ErrPresenceNotFound) {
		t.Fatalf("after delete err = %v", err)
	}
}
