package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vpainless/pkg/sdk"

	"github.com/rs/zerolog"
)

type fakeAPI struct {
	mu      sync.Mutex
	creates int
	gets    int
	deletes []string

	createFn func() (*sdk.Instance, error)
	getFn    func(n int) (*sdk.Instance, error)
	deleteFn func(id string) error
}

func (f *fakeAPI) CreateInstance(ctx context.Context) (*sdk.Instance, error) {
	f.mu.Lock()
	f.creates++
	fn := f.createFn
	f.mu.Unlock()
	if fn == nil {
		return &sdk.Instance{ID: "i1", Status: sdk.StatusOff}, nil
	}
	return fn()
}

func (f *fakeAPI) GetInstance(ctx context.Context, id string) (*sdk.Instance, error) {
	f.mu.Lock()
	f.gets++
	n := f.gets
	fn := f.getFn
	f.mu.Unlock()
	if fn == nil {
		return &sdk.Instance{ID: id, Status: sdk.StatusOK}, nil
	}
	return fn(n)
}

func (f *fakeAPI) DeleteInstance(ctx context.Context, id string) error {
	f.mu.Lock()
	f.deletes = append(f.deletes, id)
	fn := f.deleteFn
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(id)
}

func (f *fakeAPI) getCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

func (f *fakeAPI) createCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

func newTestManager(t *testing.T, api *fakeAPI) *Manager {
	t.Helper()
	m := New(api, 5*time.Millisecond, zerolog.Nop())
	t.Cleanup(m.Close)
	return m
}

func waitForPhase(t *testing.T, m *Manager, phase Phase) State {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if st := m.Current(); st.Phase == phase {
			return st
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for phase %v, at %v", phase, m.Current().Phase)
		case <-time.After(time.Millisecond):
		}
	}
}

func TestCreateArmsPollerUntilReady(t *testing.T) {
	api := &fakeAPI{
		createFn: func() (*sdk.Instance, error) {
			return &sdk.Instance{ID: "i1", Status: sdk.StatusOff}, nil
		},
		getFn: func(n int) (*sdk.Instance, error) {
			if n < 3 {
				return &sdk.Instance{ID: "i1", Status: sdk.StatusInitializing}, nil
			}
			return &sdk.Instance{ID: "i1", Status: sdk.StatusOK, ConnectionString: "vless://..."}, nil
		},
	}
	m := newTestManager(t, api)

	if err := m.Create(context.Background()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if st := m.Current(); st.Phase != PhaseProvisioning && st.Phase != PhaseTransient && st.Phase != PhaseReady {
		t.Fatalf("phase after Create = %v", st.Phase)
	}

	st := waitForPhase(t, m, PhaseReady)
	if st.Instance == nil || st.Instance.ConnectionString == "" {
		t.Errorf("ready state missing instance: %+v", st)
	}
	if st.Label != "" {
		t.Errorf("ready state has label %q", st.Label)
	}

	// The loop must stop once the status is terminal.
	calls := api.getCalls()
	time.Sleep(30 * time.Millisecond)
	if got := api.getCalls(); got != calls {
		t.Errorf("poller kept fetching after Ready: %d -> %d", calls, got)
	}
}

func TestTransientStatusKeepsPolling(t *testing.T) {
	release := make(chan struct{})
	api := &fakeAPI{
		getFn: func(n int) (*sdk.Instance, error) {
			select {
			case <-release:
				return &sdk.Instance{ID: "i1", Status: sdk.StatusOK}, nil
			default:
				return &sdk.Instance{ID: "i1", Status: sdk.StatusInitializing}, nil
			}
		},
	}
	m := newTestManager(t, api)

	if err := m.Create(context.Background()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	st := waitForPhase(t, m, PhaseTransient)
	if st.Label != "initializing..." {
		t.Errorf("label = %q, want initializing...", st.Label)
	}

	// Still transient, so fetches keep getting scheduled.
	before := api.getCalls()
	time.Sleep(30 * time.Millisecond)
	if api.getCalls() <= before {
		t.Error("no further fetch was scheduled while transient")
	}

	close(release)
	waitForPhase(t, m, PhaseReady)
}

func TestPollRetriesIndefinitelyOnError(t *testing.T) {
	api := &fakeAPI{
		getFn: func(n int) (*sdk.Instance, error) {
			if n <= 2 {
				return nil, errors.New("connection refused")
			}
			return &sdk.Instance{ID: "i1", Status: sdk.StatusOK}, nil
		},
	}
	m := newTestManager(t, api)

	if err := m.Create(context.Background()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Tick failures surface through updates but never stop the loop.
	sawTickError := false
	deadline := time.After(2 * time.Second)
	for {
		var st State
		select {
		case st = <-m.Updates():
		case <-deadline:
			t.Fatal("timed out waiting for Ready")
		}
		if st.Err != nil && st.Phase != PhaseReady {
			sawTickError = true
		}
		if st.Phase == PhaseReady {
			if !sawTickError {
				t.Error("tick error never surfaced")
			}
			return
		}
	}
}

func TestRenewDeletesBeforeCreating(t *testing.T) {
	var order []string
	var mu sync.Mutex
	api := &fakeAPI{}
	api.deleteFn = func(id string) error {
		mu.Lock()
		order = append(order, "delete "+id)
		mu.Unlock()
		return nil
	}
	api.createFn = func() (*sdk.Instance, error) {
		mu.Lock()
		order = append(order, "create")
		mu.Unlock()
		return &sdk.Instance{ID: "i2", Status: sdk.StatusOK}, nil
	}
	m := newTestManager(t, api)
	m.Adopt(&sdk.Instance{ID: "i1", Status: sdk.StatusOK})

	if err := m.Renew(context.Background()); err != nil {
		t.Fatalf("Renew: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "delete i1" || order[1] != "create" {
		t.Errorf("order = %v", order)
	}
	if st := m.Current(); st.Phase != PhaseReady || st.Instance.ID != "i2" {
		t.Errorf("state after renew = %+v", st)
	}
}

func TestRenewAbortsWhenDeleteFails(t *testing.T) {
	api := &fakeAPI{
		deleteFn: func(id string) error { return errors.New("provider unavailable") },
	}
	m := newTestManager(t, api)
	inst := &sdk.Instance{ID: "i1", Status: sdk.StatusOK, ConnectionString: "vless://..."}
	m.Adopt(inst)

	err := m.Renew(context.Background())
	if err == nil {
		t.Fatal("expected renew to fail")
	}
	if api.createCalls() != 0 {
		t.Error("create was issued after a failed delete")
	}

	st := m.Current()
	if st.Phase != PhaseReady || st.Instance == nil || st.Instance.ID != "i1" {
		t.Errorf("last known state not preserved: %+v", st)
	}
	if st.Err == nil {
		t.Error("delete failure not surfaced")
	}
}

func TestDeleteClearsState(t *testing.T) {
	api := &fakeAPI{}
	m := newTestManager(t, api)
	m.Adopt(&sdk.Instance{ID: "i1", Status: sdk.StatusOK})

	if err := m.Delete(context.Background()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if st := m.Current(); st.Phase != PhaseNone || st.Instance != nil {
		t.Errorf("state after delete = %+v", st)
	}
}

func TestDeleteFailureLeavesStateUnchanged(t *testing.T) {
	api := &fakeAPI{
		deleteFn: func(id string) error { return errors.New("not found") },
	}
	m := newTestManager(t, api)
	m.Adopt(&sdk.Instance{ID: "i1", Status: sdk.StatusOK})

	if err := m.Delete(context.Background()); err == nil {
		t.Fatal("expected delete to fail")
	}
	if st := m.Current(); st.Phase != PhaseReady || st.Instance == nil || st.Instance.ID != "i1" {
		t.Errorf("state after failed delete = %+v", st)
	}
}

func TestCreateRefusedWhileInstanceExists(t *testing.T) {
	api := &fakeAPI{}
	m := newTestManager(t, api)
	m.Adopt(&sdk.Instance{ID: "i1", Status: sdk.StatusOK})

	if err := m.Create(context.Background()); !errors.Is(err, ErrInstanceExists) {
		t.Errorf("err = %v, want ErrInstanceExists", err)
	}
	if api.createCalls() != 0 {
		t.Error("create call went out anyway")
	}
}

func TestAdoptTerminalInstanceDoesNotPoll(t *testing.T) {
	api := &fakeAPI{}
	m := newTestManager(t, api)
	m.Adopt(&sdk.Instance{ID: "i1", Status: sdk.StatusOK})

	time.Sleep(25 * time.Millisecond)
	if api.getCalls() != 0 {
		t.Errorf("adopting a ready instance started the poller: %d fetches", api.getCalls())
	}
	if m.Current().Phase != PhaseReady {
		t.Errorf("phase = %v", m.Current().Phase)
	}
}

func TestRefreshWithoutInstance(t *testing.T) {
	m := newTestManager(t, &fakeAPI{})
	if err := m.Refresh(context.Background()); !errors.Is(err, ErrNoInstance) {
		t.Errorf("err = %v, want ErrNoInstance", err)
	}
}

func TestRefreshCollapsesIntoArmedLoop(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	api := &fakeAPI{
		getFn: func(n int) (*sdk.Instance, error) {
			once.Do(func() { close(entered) })
			<-release
			return &sdk.Instance{ID: "i1", Status: sdk.StatusOK}, nil
		},
	}
	m := newTestManager(t, api)
	m.Adopt(&sdk.Instance{ID: "i1", Status: sdk.StatusInitializing})

	// The armed loop's fetch is now in flight and blocked.
	<-entered

	refreshed := make(chan error, 1)
	go func() { refreshed <- m.Refresh(context.Background()) }()

	// Give the refresh time to join the in-flight fetch, then let it settle.
	time.Sleep(50 * time.Millisecond)
	close(release)

	if err := <-refreshed; err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	waitForPhase(t, m, PhaseReady)
	if got := api.getCalls(); got != 1 {
		t.Errorf("refresh issued its own fetch alongside the loop's: %d calls", got)
	}
}

func TestRenewDiscardsStalePollFetch(t *testing.T) {
	getEntered := make(chan struct{})
	getRelease := make(chan struct{})
	var getOnce sync.Once
	deleteEntered := make(chan struct{})
	deleteRelease := make(chan struct{})

	api := &fakeAPI{
		getFn: func(n int) (*sdk.Instance, error) {
			getOnce.Do(func() { close(getEntered) })
			<-getRelease
			return &sdk.Instance{ID: "i1", Status: sdk.StatusInitializing}, nil
		},
		deleteFn: func(id string) error {
			close(deleteEntered)
			<-deleteRelease
			return nil
		},
		createFn: func() (*sdk.Instance, error) {
			return &sdk.Instance{ID: "i2", Status: sdk.StatusOK}, nil
		},
	}
	m := newTestManager(t, api)
	m.Adopt(&sdk.Instance{ID: "i1", Status: sdk.StatusInitializing})

	// A poll fetch for i1 is in flight when the renew starts.
	<-getEntered
	renewed := make(chan error, 1)
	go func() { renewed <- m.Renew(context.Background()) }()
	<-deleteEntered

	// The old fetch settles while the delete is still in flight. Its result
	// must not overwrite Deleting, even though the instance ID still matches.
	close(getRelease)
	settle := time.After(30 * time.Millisecond)
loop:
	for {
		if st := m.Current(); st.Phase != PhaseDeleting {
			t.Fatalf("stale fetch overwrote deleting state with %v", st.Phase)
		}
		select {
		case <-settle:
			break loop
		case <-time.After(time.Millisecond):
		}
	}

	close(deleteRelease)
	if err := <-renewed; err != nil {
		t.Fatalf("Renew: %v", err)
	}
	if st := m.Current(); st.Phase != PhaseReady || st.Instance == nil || st.Instance.ID != "i2" {
		t.Errorf("state after renew = %+v", st)
	}
}
