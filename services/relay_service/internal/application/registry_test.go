package application

import (
	"testing"

	"github.com/EthanQC/relay/services/relay_service/internal/domain/entity"
	"github.com/EthanQC/relay/services/relay_service/internal/domain/session"
)

func activeSession(t *testing.T, connID, userID string) *session.Session {
	t.Helper()
	s := session.New(entity.ConnectionID(connID))
	if err := s.Activate(entity.UserID(userID)); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSessionRegistry(t *testing.T) {
	r := NewSessionRegistry()
	a1 := activeSession(t, "c2", "alice")
	a2 := activeSession(t, "c1", "alice")
	b := activeSession(t, "c3", "bob")

	for _, s := range []*session.Session{a1, a2, b} {
		if err := r.Add(s); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.Add(activeSession(t, "c1", "mallory")); err == nil {
		t.Fatal("duplicate connection id accepted")
	}

	if r.Len() != 3 || r.Users() != 2 {
		t.Fatalf("len=%d users=%d", r.Len(), r.Users())
	}
	own := r.ByUser("alice")
	if len(own) != 2 || own[0].ID() != "c1" || own[1].ID() != "c2" {
		t.Fatalf("ByUser = %v", own)
	}
	all := r.All()
	if len(all) != 3 || all[0].ID() != "c1" || all[2].ID() != "c3" {
		t.Fatal("All not sorted by connection id")
	}

	if _, ok := r.Remove("c1"); !ok {
		t.Fatal("remove c1")
	}
	if _, ok := r.Remove("c1"); ok {
		t.Fatal("second remove should report false")
	}
	if r.Users() != 2 || len(r.ByUser("alice")) != 1 {
		t.Fatal("alice still has one session")
	}
	r.Remove("c2")
	if r.Users() != 1 || len(r.ByUser("alice")) != 0 {
		t.Fatal("alice should be gone")
	}
	if s, ok := r.Get("c3"); !ok || s != b {
		t.Fatal("bob lost")
	}
}
