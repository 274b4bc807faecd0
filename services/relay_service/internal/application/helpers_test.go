package application

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/EthanQC/relay/services/relay_service/internal/adapters/out/memory"
	"github.com/EthanQC/relay/services/relay_service/internal/adapters/out/room"
	"github.com/EthanQC/relay/services/relay_service/internal/domain/entity"
	"github.com/EthanQC/relay/services/relay_service/internal/domain/event"
	"github.com/EthanQC/relay/services/relay_service/internal/ports/out"
	relayerrors "github.com/EthanQC/relay/services/relay_service/pkg/errors"
)

// testConn 记录收到的帧
type testConn struct {
	id     entity.ConnectionID
	mu     sync.Mutex
	frames []event.Frame
}

func (c *testConn) ID() entity.ConnectionID { return c.id }

func (c *testConn) Send(b []byte) error {
	f, err := event.Decode(b)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.frames = append(c.frames, *f)
	c.mu.Unlock()
	return nil
}

func (c *testConn) Close() error { return nil }

func (c *testConn) named(name string) []event.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var res []event.Frame
	for _, f := range c.frames {
		if f.Event == name {
			res = append(res, f)
		}
	}
	return res
}

func (c *testConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

// flakyStore 可以让单个操作失败的存储
type flakyStore struct {
	out.PresenceStore
	mu      sync.Mutex
	failGet bool
	failSet bool
	failDel bool
}

var errStoreDown = &relayerrors.StoreError{Op: "test", Key: "-", Err: errors.New("connection refused")}

func (f *flakyStore) fail(get, set, del bool) {
	f.mu.Lock()
	f.failGet, f.failSet, f.failDel = get, set, del
	f.mu.Unlock()
}

func (f *flakyStore) Get(ctx context.Context, id entity.UserID) (*entity.PresenceRecord, error) {
	f.mu.Lock()
	fail := f.failGet
	f.mu.Unlock()
	if fail {
		return nil, errStoreDown
	}
	return f.PresenceStore.Get(ctx, id)
}

func (f *flakyStore) Set(ctx context.Context, id entity.UserID, rec *entity.PresenceRecord) error {
	f.mu.Lock()
	fail := f.failSet
	f.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return f.PresenceStore.Set(ctx, id, rec)
}

func (f *flakyStore) Delete(ctx context.Context, id entity.UserID) error {
	f.mu.Lock()
	fail := f.failDel
	f.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return f.PresenceStore.Delete(ctx, id)
}

type recordingPublisher struct {
	mu      sync.Mutex
	changes []entity.PresenceChange
}

func (p *recordingPublisher) PublishPresenceChange(_ context.Context, c *entity.PresenceChange) error {
	p.mu.Lock()
	p.changes = append(p.changes, *c)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type fixture struct {
	t      *testing.T
	store  *flakyStore
	router *room.Router
	pub    *recordingPublisher
	coord  *SessionCoordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:      t,
		store:  &flakyStore{PresenceStore: memory.NewPresenceStoreMemory()},
		router: room.NewRouter(),
		pub:    &recordingPublisher{},
	}
	f.coord = NewSessionCoordinator(f.store, f.router, f.pub, nil)
	return f
}

func (f *fixture) connect(connID, userID string) *testConn {
	f.t.Helper()
	conn := &testConn{id: entity.ConnectionID(connID)}
	if _, err := f.coord.Connect(context.Background(), conn, entity.UserID(userID)); err != nil {
		f.t.Fatalf("connect %s: %v", userID, err)
	}
	return conn
}

func (f *fixture) send(conn *testConn, name string, payload interface{}) error {
	f.t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		f.t.Fatal(err)
	}
	return f.coord.HandleEvent(context.Background(), conn.id, name, raw)
}

func (f *fixture) record(userID string) *entity.PresenceRecord {
	f.t.Helper()
	rec, err := f.store.PresenceStore.Get(context.Background(), entity.UserID(userID))
	if err != nil {
		f.t.Fatalf("get %s: %v", userID, err)
	}
	return rec
}

func decodeData(t *testing.T, f event.Frame, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(f.Data, v); err != nil {
		t.Fatalf("decode %s data %s: %v", f.Event, f.Data, err)
	}
}
