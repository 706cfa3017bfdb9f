// Package session holds the authenticated principal for the whole process.
// It is the single source of truth for "who is logged in": the request layer
// reads it synchronously when attaching credentials, and interactive pages
// subscribe to it for re-rendering. The record is swapped whole on every
// change, so a reader never observes a half-updated principal.
package session

import (
	"context"
	"sync"

	"vpainless/pkg/sdk"
)

// Principal is the identity the portal authenticated. GroupID is empty for
// ungrouped users; Role is empty until the identity lookup backfills it.
type Principal struct {
	ID      string
	Name    string
	GroupID string
	Token   string
	Role    sdk.Role
}

type Store struct {
	mu      sync.RWMutex
	current *Principal
	subs    map[int]func(*Principal)
	nextSub int
}

func NewStore() *Store {
	return &Store{subs: make(map[int]func(*Principal))}
}

// Get returns a snapshot of the current principal, or nil when logged out.
// The snapshot is a copy; mutating it does not affect the store.
func (s *Store) Get() *Principal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	p := *s.current
	return &p
}

// Set replaces the whole principal record. nil means logged out. Subscribers
// are notified with their own snapshot after the swap is visible to Get.
func (s *Store) Set(p *Principal) {
	s.mu.Lock()
	if p != nil {
		cp := *p
		s.current = &cp
	} else {
		s.current = nil
	}
	subs := make([]func(*Principal), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(s.Get())
	}
}

// Subscribe registers fn to run after every Set. The returned cancel func
// removes the subscription.
func (s *Store) Subscribe(fn func(*Principal)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Token implements sdk.TokenSource so the gateway client can attach the
// credential without threading the principal through every call site.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.Token
}

// Login computes the Basic credential, seeds a provisional principal so the
// identity lookup goes out authenticated, then backfills ID, group and role
// from /me with a fresh whole-record Set. On failure the store is cleared.
func Login(ctx context.Context, client *sdk.Client, store *Store, username, password string) (*Principal, error) {
	token := sdk.BasicToken(username, password)
	store.Set(&Principal{Name: username, Token: token})

	me, err := client.Me(ctx)
	if err != nil {
		store.Set(nil)
		return nil, err
	}

	p := &Principal{
		ID:      me.ID,
		Name:    username,
		GroupID: me.GroupID,
		Token:   token,
		Role:    me.Role,
	}
	store.Set(p)
	return store.Get(), nil
}
