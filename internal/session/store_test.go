package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"vpainless/pkg/sdk"

	"github.com/rs/zerolog"
)

func TestGetAbsentByDefault(t *testing.T) {
	s := NewStore()
	if s.Get() != nil {
		t.Error("expected no principal in a fresh store")
	}
	if s.Token() != "" {
		t.Error("expected empty token in a fresh store")
	}

	// Unrelated reads must not materialise a principal.
	_ = s.Get()
	if s.Get() != nil {
		t.Error("principal appeared without a Set")
	}
}

func TestSetVisibleToImmediateGet(t *testing.T) {
	s := NewStore()
	s.Set(&Principal{Name: "alice", Token: "tok"})

	// The authoritative value must not lag: a reader on another goroutine
	// sees the swap as soon as Set returns.
	var wg sync.WaitGroup
	wg.Add(1)
	var got *Principal
	go func() {
		defer wg.Done()
		got = s.Get()
	}()
	wg.Wait()

	if got == nil || got.Name != "alice" {
		t.Fatalf("got %+v", got)
	}
	if s.Token() != "tok" {
		t.Errorf("Token = %q", s.Token())
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore()
	s.Set(&Principal{Name: "alice"})

	snap := s.Get()
	snap.Name = "mallory"

	if s.Get().Name != "alice" {
		t.Error("mutating a snapshot leaked into the store")
	}
}

func TestSubscribe(t *testing.T) {
	s := NewStore()

	var seen []*Principal
	cancel := s.Subscribe(func(p *Principal) {
		seen = append(seen, p)
	})

	s.Set(&Principal{Name: "alice"})
	s.Set(nil)
	cancel()
	s.Set(&Principal{Name: "bob"})

	if len(seen) != 2 {
		t.Fatalf("got %d notifications, want 2", len(seen))
	}
	if seen[0] == nil || seen[0].Name != "alice" {
		t.Errorf("first notification = %+v", seen[0])
	}
	if seen[1] != nil {
		t.Errorf("logout notification = %+v, want nil", seen[1])
	}
}

func TestLoginBackfillsPrincipal(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte(`{"id": "u1", "username": "alice", "group_id": "g1", "role": "admin"}`))
	}))
	defer srv.Close()

	store := NewStore()
	client := sdk.NewClient(srv.URL, store, zerolog.Nop())

	p, err := Login(context.Background(), client, store, "alice", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if auth != "Basic "+sdk.BasicToken("alice", "secret") {
		t.Errorf("identity lookup went out with Authorization = %q", auth)
	}
	if p.ID != "u1" || p.GroupID != "g1" || p.Role != sdk.RoleAdmin {
		t.Errorf("principal not backfilled: %+v", p)
	}
	if store.Get().ID != "u1" {
		t.Error("store not updated with the backfilled principal")
	}
}

func TestLoginFailureClearsStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "bad credentials"}`))
	}))
	defer srv.Close()

	store := NewStore()
	client := sdk.NewClient(srv.URL, store, zerolog.Nop())

	if _, err := Login(context.Background(), client, store, "alice", "wrong"); err == nil {
		t.Fatal("expected login to fail")
	}
	if store.Get() != nil {
		t.Error("failed login left a principal in the store")
	}
}
