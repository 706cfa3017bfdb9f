package cmd

import (
	"bytes"
	"strings"
	"testing"

	"vpainless/internal/session"
	"vpainless/pkg/sdk"

	"github.com/rs/zerolog"
)

func TestAuditSessionLogsPrincipalSwaps(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	store := session.NewStore()
	auditSession(store, log)

	store.Set(&session.Principal{ID: "p1", Name: "alice", Role: sdk.RoleAdmin})
	out := buf.String()
	if !strings.Contains(out, "alice") || !strings.Contains(out, "session changed") {
		t.Errorf("login swap not logged: %q", out)
	}

	buf.Reset()
	store.Set(nil)
	if out := buf.String(); !strings.Contains(out, "session cleared") {
		t.Errorf("logout swap not logged: %q", out)
	}
}
