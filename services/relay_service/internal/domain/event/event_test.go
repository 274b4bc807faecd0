package event

import (
	"encoding/json"
	"testing"
)

func TestNames(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{OnlineStatus("alice"), "online:status:alice"},
		{ChatMessage("c1"), "chat:message:c1"},
		{InputFocusIn("c1"), "chat:input:focus:c1"},
		{InputBlurIn("c1"), "chat:input:blur:c1"},
		{Busy("bob"), "busy:bob"},
		{Ring("bob"), "bob:ring"},
		{Unavailable("bob"), "unavailable:bob"},
		{CallJoined("call-9"), "call-9joined:call"},
		{CallLeft("call-9"), "call-9left:call"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestEncodePassesRawPayloadThrough(t *testing.T) {
	raw := json.RawMessage(`{"chat_id":"c1","text":"hi","n":1}`)
	b, err := Encode(ChatMessage("c1"), raw)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	f, err := Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Event != "chat:message:c1" {
		t.Fatalf("event = %q", f.Event)
	}
	if string(f.Data) != string(raw) {
		t.Fatalf("data = %s, want %s", f.Data, raw)
	}
	if f.Ts == 0 {
		t.Fatal("ts not set")
	}
}

func TestEncodeWithoutPayload(t *testing.T) {
	b, err := Encode(Pong, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	if _, ok := m["data"]; ok {
		t.Fatalf("unexpected data field: %s", b)
	}
}

func TestDecodeRejects(t *testing.T) {
	for _, raw := range []string{`not json`, `{"data":1}`, `{"event":""}`} {
		if _, err := Decode([]byte(raw)); err == nil {
			t.Errorf("Decode(%s) should fail", raw)
		}
	}
}
