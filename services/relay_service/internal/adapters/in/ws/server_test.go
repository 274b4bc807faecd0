package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/EthanQC/relay/services/relay_service/internal/adapters/out/auth"
	"github.com/EthanQC/relay/services/relay_service/internal/adapters/out/memory"
	"github.com/EthanQC/relay/services/relay_service/internal/adapters/out/room"
	"github.com/EthanQC/relay/services/relay_service/internal/application"
	"github.com/EthanQC/relay/services/relay_service/internal/domain/event"
	"github.com/EthanQC/relay/services/relay_service/internal/ports/out"
	relayerrors "github.com/EthanQC/relay/services/relay_service/pkg/errors"
)

type testEnv struct {
	t        *testing.T
	store    out.PresenceStore
	verifier *auth.HMACVerifier
	server   *Server
	http     *httptest.Server
	wsURL    string
}

func newTestEnv(t *testing.T, origins ...string) *testEnv {
	t.Helper()
	verifier, err := auth.NewHMACVerifier("test-secret", "")
	if err != nil {
		t.Fatal(err)
	}
	store := memory.NewPresenceStoreMemory()
	coord := application.NewSessionCoordinator(store, room.NewRouter(), nil, nil)
	resolver := application.NewIdentityResolver(verifier, "")

	srv := NewServer(resolver, coord, Options{AllowedOrigins: origins})
	ts := httptest.NewServer(http.HandlerFunc(srv.HandleConnection))
	t.Cleanup(ts.Close)

	return &testEnv{
		t:        t,
		store:    store,
		verifier: verifier,
		server:   srv,
		http:     ts,
		wsURL:    "ws" + strings.TrimPrefix(ts.URL, "http"),
	}
}

func (e *testEnv) dial(userID string, header http.Header) (*websocket.Conn, *http.Response, error) {
	e.t.Helper()
	if header == nil {
		header = http.Header{}
	}
	if userID != "" {
		token, err := e.verifier.Issue(userID, time.Minute)
		if err != nil {
			e.t.Fatal(err)
		}
		header.Set("Cookie", "__session="+token)
	}
	return websocket.DefaultDialer.Dial(e.wsURL, header)
}

func (e *testEnv) mustDial(userID string) *websocket.Conn {
	e.t.Helper()
	c, _, err := e.dial(userID, nil)
	if err != nil {
		e.t.Fatalf("dial %s: %v", userID, err)
	}
	e.t.Cleanup(func() { c.Close() })
	return c
}

func sendFrame(t *testing.T, c *websocket.Conn, name string, data interface{}) {
	t.Helper()
	raw, err := event.Encode(name, data)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatal(err)
	}
}

// readUntil 读到指定事件为止，期间的其他帧丢弃
func readUntil(t *testing.T, c *websocket.Conn, name string) event.Frame {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", name, err)
		}
		f, err := event.Decode(raw)
		if err != nil {
			t.Fatalf("bad frame %s: %v", raw, err)
		}
		if f.Event == name {
			return *f
		}
	}
}

func TestRejectsMissingCredential(t *testing.T) {
	env := newTestEnv(t)
	_, resp, err := env.dial("", nil)
	if !errors.Is(err, websocket.ErrBadHandshake) {
		t.Fatalf("err = %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["reason"] != relayerrors.ErrMissingCredential.Error() {
		t.Fatalf("body = %v", body)
	}
	if env.server.GetStats()["ws_rejected_total"] != 1 {
		t.Fatal("rejection not counted")
	}
}

func TestRejectsInvalidCredential(t *testing.T) {
	env := newTestEnv(t)
	_, resp, err := env.dial("", http.Header{"Cookie": {"__session=forged.token.value"}})
	if err == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("err = %v", err)
	}
}

func TestRejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t, "http://localhost:3000")
	_, resp, err := env.dial("alice", http.Header{"Origin": {"http://evil.example"}})
	if err == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign origin accepted: %v", err)
	}

	c, _, err := env.dial("alice", http.Header{"Origin": {"http://localhost:3000"}})
	if err != nil {
		t.Fatalf("allowed origin rejected: %v", err)
	}
	c.Close()
}

func TestConnectAndSubscribe(t *testing.T) {
	env := newTestEnv(t)
	alice := env.mustDial("alice")

	welcome := readUntil(t, alice, "connected")
	var cp struct {
		UserID   string `json:"userId"`
		SocketID string `json:"socketId"`
	}
	json.Unmarshal(welcome.Data, &cp)
	if cp.UserID != "alice" || cp.SocketID == "" {
		t.Fatalf("welcome = %s", welcome.Data)
	}

	online := readUntil(t, alice, "online:status:alice")
	if string(online.Data) != `{"userId":"alice","online":true}` {
		t.Fatalf("online frame = %s", online.Data)
	}
	rec, err := env.store.Get(context.Background(), "alice")
	if err != nil || !rec.Online || string(rec.SocketID) != cp.SocketID {
		t.Fatalf("record = %+v, %v", rec, err)
	}

	bob := env.mustDial("bob")
	readUntil(t, bob, "connected")
	sendFrame(t, bob, "join:status", "alice")
	got := readUntil(t, bob, "online:status:alice")
	if string(got.Data) != `{"targetId":"alice","online":true}` {
		t.Fatalf("status = %s", got.Data)
	}
}

func TestPingAndBadFrames(t *testing.T) {
	env := newTestEnv(t)
	c := env.mustDial("carol")
	readUntil(t, c, "connected")

	sendFrame(t, c, "ping", map[string]int{"n": 1})
	pong := readUntil(t, c, "pong")
	if string(pong.Data) != `{"n":1}` {
		t.Fatalf("pong = %s", pong.Data)
	}

	c.WriteMessage(websocket.TextMessage, []byte("{not json"))
	errFrame := readUntil(t, c, "error")
	if !strings.Contains(string(errFrame.Data), "protocol_error") {
		t.Fatalf("error = %s", errFrame.Data)
	}

	// 连接仍然可用
	sendFrame(t, c, "ping", nil)
	readUntil(t, c, "pong")
}

func TestDisconnectClearsPresence(t *testing.T) {
	env := newTestEnv(t)
	c := env.mustDial("dave")
	readUntil(t, c, "online:status:dave")

	c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.Close()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := env.store.Get(context.Background(), "dave"); errors.Is(err, relayerrors.ErrPresenceNotFound) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("presence not cleared after disconnect")
}

func TestShutdownClosesSessions(t *testing.T) {
	env := newTestEnv(t)
	c := env.mustDial("erin")
	readUntil(t, c, "online:status:erin")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := env.server.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if _, err := env.store.Get(context.Background(), "erin"); !errors.Is(err, relayerrors.ErrPresenceNotFound) {
		t.Fatalf("presence after shutdown: %v", err)
	}
	if env.server.GetStats()["ws_connections"] != 0 {
		t.Fatal("connections still tracked")
	}

	c.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}

	if _, resp, err := env.dial("frank", nil); err == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("accepted a connection after shutdown: %v", err)
	}
}
