package ui

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"vpainless/internal/lifecycle"
	"vpainless/internal/session"
	"vpainless/pkg/sdk"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
)

func TestStatusKeyIssuesRefresh(t *testing.T) {
	var gets int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || !strings.HasPrefix(r.URL.Path, "/instances/") {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(&gets, 1)
		json.NewEncoder(w).Encode(sdk.Instance{ID: "i1", IP: "10.0.0.1", Status: sdk.StatusOK})
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := session.NewStore()
	store.Set(&session.Principal{ID: "p1", Name: "alice", Role: sdk.RoleClient})
	client := sdk.NewClient(srv.URL, store, zerolog.Nop())
	mgr := lifecycle.New(client, time.Minute, zerolog.Nop())
	t.Cleanup(mgr.Close)

	m := newClientModel(client, store, mgr)
	mgr.Adopt(&sdk.Instance{ID: "i1", Status: sdk.StatusOK})
	m.state = mgr.Current()

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	if cmd == nil {
		t.Fatal("status key produced no command")
	}
	msg := cmd()
	op, ok := msg.(opDoneMsg)
	if !ok {
		t.Fatalf("expected opDoneMsg, got %T", msg)
	}
	if op.err != nil {
		t.Fatalf("refresh failed: %v", op.err)
	}
	if atomic.LoadInt32(&gets) != 1 {
		t.Errorf("expected one status fetch, got %d", atomic.LoadInt32(&gets))
	}
	if st := mgr.Current(); st.Instance == nil || st.Instance.IP != "10.0.0.1" {
		t.Errorf("refreshed state not folded in: %+v", st)
	}
}

func TestStatusKeyWithoutInstance(t *testing.T) {
	store := session.NewStore()
	client := sdk.NewClient("http://localhost:0", store, zerolog.Nop())
	mgr := lifecycle.New(client, time.Minute, zerolog.Nop())
	t.Cleanup(mgr.Close)

	m := newClientModel(client, store, mgr)
	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")}); cmd != nil {
		t.Error("refresh issued with no instance to refresh")
	}
}
