// Package lifecycle drives a client's single VPN instance through its
// provisioning states. It owns the status poll loop: a cooperative
// single-flight loop that fetches the live status, settles, waits the
// configured interval and repeats until the instance reports OK or the
// manager is shut down. At most one loop runs per manager; arming while
// armed is a no-op.
package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"vpainless/pkg/sdk"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

type Phase int

const (
	// PhaseNone means no instance exists.
	PhaseNone Phase = iota
	// PhaseProvisioning means create was requested and the first status is
	// still pending.
	PhaseProvisioning
	// PhaseTransient means the server reports a non-terminal status.
	PhaseTransient
	// PhaseDeleting means delete was requested and has not resolved yet.
	PhaseDeleting
	// PhaseReady means the server reported OK; polling has stopped.
	PhaseReady
	// PhaseError means the last operation failed and left no instance.
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseNone:
		return "none"
	case PhaseProvisioning:
		return "provisioning"
	case PhaseTransient:
		return "transient"
	case PhaseDeleting:
		return "deleting"
	case PhaseReady:
		return "ready"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// State is a snapshot of the lifecycle. Err carries the most recent failure;
// a non-nil Err with a non-terminal Phase means the poll loop is still
// running and will retry on its own.
type State struct {
	Phase    Phase
	Instance *sdk.Instance
	Label    string
	Err      error
}

// InstanceAPI is the subset of the portal client the manager needs.
type InstanceAPI interface {
	CreateInstance(ctx context.Context) (*sdk.Instance, error)
	GetInstance(ctx context.Context, id string) (*sdk.Instance, error)
	DeleteInstance(ctx context.Context, id string) error
}

var (
	ErrInstanceExists = errors.New("an instance already exists")
	ErrNoInstance     = errors.New("no instance exists")
)

type Manager struct {
	api      InstanceAPI
	interval time.Duration
	log      zerolog.Logger

	ctx  context.Context
	stop context.CancelFunc

	opMu sync.Mutex

	mu         sync.Mutex
	state      State
	armed      bool
	gen        uint64
	loopCancel context.CancelFunc

	flight  singleflight.Group
	updates chan State
}

func New(api InstanceAPI, interval time.Duration, log zerolog.Logger) *Manager {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Manager{
		api:      api,
		interval: interval,
		log:      log,
		ctx:      ctx,
		stop:     stop,
		state:    State{Phase: PhaseNone},
		updates:  make(chan State, 32),
	}
}

// Updates delivers state snapshots as they change. The channel is never
// closed; consumers select on Done to stop reading.
func (m *Manager) Updates() <-chan State {
	return m.updates
}

// Done is closed when the manager shuts down.
func (m *Manager) Done() <-chan struct{} {
	return m.ctx.Done()
}

func (m *Manager) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Close stops the poll loop and any in-flight fetch.
func (m *Manager) Close() {
	m.disarm()
	m.stop()
}

// Adopt seeds the manager from a listing snapshot. A non-terminal instance
// arms the poller; a terminal one settles straight into Ready.
func (m *Manager) Adopt(inst *sdk.Instance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inst == nil {
		m.setLocked(State{Phase: PhaseNone})
		return
	}
	if inst.Status.Terminal() {
		m.setLocked(State{Phase: PhaseReady, Instance: inst})
		return
	}
	m.setLocked(State{Phase: PhaseTransient, Instance: inst, Label: statusLabel(inst.Status)})
	m.armLocked()
}

// Create provisions a new instance and arms the poller. Only valid when no
// instance exists; the portal allows one instance per client.
func (m *Manager) Create(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.state.Instance != nil || m.state.Phase == PhaseProvisioning || m.state.Phase == PhaseDeleting {
		m.mu.Unlock()
		return ErrInstanceExists
	}
	m.setLocked(State{Phase: PhaseProvisioning, Label: statusLabel(sdk.StatusOff)})
	m.mu.Unlock()

	return m.create(ctx)
}

// Renew replaces the current instance: delete first, then create. A failed
// delete aborts the renew, the instance stays as it last was, and no create
// is attempted.
func (m *Manager) Renew(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	cur := m.state.Instance
	if cur == nil {
		m.mu.Unlock()
		return ErrNoInstance
	}
	prev := m.state
	m.mu.Unlock()

	m.disarm()
	m.set(State{Phase: PhaseDeleting, Instance: cur, Label: "deleting..."})

	if err := m.api.DeleteInstance(ctx, cur.ID); err != nil {
		m.log.Warn().Err(err).Str("instance", cur.ID).Msg("renew aborted: delete failed")
		prev.Err = err
		m.restore(prev)
		return err
	}

	m.set(State{Phase: PhaseProvisioning, Label: statusLabel(sdk.StatusOff)})
	return m.create(ctx)
}

// Delete tears the instance down outside of a renew. On failure the state is
// left as it was, with the error surfaced.
func (m *Manager) Delete(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	cur := m.state.Instance
	if cur == nil {
		m.mu.Unlock()
		return ErrNoInstance
	}
	prev := m.state
	m.mu.Unlock()

	m.disarm()
	m.set(State{Phase: PhaseDeleting, Instance: cur, Label: "deleting..."})

	if err := m.api.DeleteInstance(ctx, cur.ID); err != nil {
		prev.Err = err
		m.restore(prev)
		return err
	}

	m.set(State{Phase: PhaseNone})
	return nil
}

// Refresh forces an immediate status fetch. When the loop is armed the fetch
// collapses into it via singleflight, so the instance is never polled twice
// concurrently.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	cur := m.state.Instance
	m.mu.Unlock()
	if cur == nil {
		return ErrNoInstance
	}
	_, err := m.fetch(ctx, cur.ID)
	return err
}

func (m *Manager) create(ctx context.Context) error {
	inst, err := m.api.CreateInstance(ctx)
	if err != nil {
		m.set(State{Phase: PhaseError, Err: err})
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if inst.Status.Terminal() {
		m.setLocked(State{Phase: PhaseReady, Instance: inst})
		return nil
	}
	m.setLocked(State{Phase: PhaseProvisioning, Instance: inst, Label: statusLabel(inst.Status)})
	m.armLocked()
	return nil
}

// restore puts back the last known state after a failed operation and
// re-arms the poller when that state is still transient.
func (m *Manager) restore(prev State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(prev)
	if prev.Instance != nil && !prev.Instance.Status.Terminal() {
		m.armLocked()
	}
}

func (m *Manager) armLocked() {
	if m.armed || m.state.Instance == nil {
		return
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.armed = true
	m.loopCancel = cancel
	go m.poll(ctx, m.state.Instance.ID)
}

// disarm stops the loop and bumps the generation, so a fetch that settled
// just before the stop cannot fold its result into the state afterwards.
func (m *Manager) disarm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loopCancel != nil {
		m.loopCancel()
		m.loopCancel = nil
	}
	m.armed = false
	m.gen++
}

// poll is the single-flight loop: fetch, settle, wait, repeat. Fetch errors
// are surfaced but never stop the loop; only a terminal status or
// cancellation does.
func (m *Manager) poll(ctx context.Context, id string) {
	defer m.disarm()
	for {
		done, err := m.fetch(ctx, id)
		if err != nil && !sdk.IsCanceled(err) {
			m.log.Warn().Err(err).Str("instance", id).Msg("status poll failed; retrying")
		}
		if done || ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.interval):
		}
	}
}

// fetch performs one status read and folds the result into the state.
// It reports done=true when polling should stop.
func (m *Manager) fetch(ctx context.Context, id string) (done bool, err error) {
	m.mu.Lock()
	gen := m.gen
	m.mu.Unlock()

	v, err, _ := m.flight.Do(id, func() (any, error) {
		return m.api.GetInstance(ctx, id)
	})
	if err != nil {
		if sdk.IsCanceled(err) {
			return true, err
		}
		m.tickError(id, gen, err)
		return false, err
	}

	inst := v.(*sdk.Instance)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.state.Instance == nil || m.state.Instance.ID != id {
		// The instance was renewed or deleted while this fetch was in
		// flight; its result no longer applies. The generation check
		// covers a renew of the same instance, where the ID alone would
		// not tell the fetch it raced a disarm.
		return true, nil
	}
	if inst.Status.Terminal() {
		m.setLocked(State{Phase: PhaseReady, Instance: inst})
		return true, nil
	}
	m.setLocked(State{Phase: PhaseTransient, Instance: inst, Label: statusLabel(inst.Status)})
	return false, nil
}

func (m *Manager) tickError(id string, gen uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.state.Instance == nil || m.state.Instance.ID != id {
		return
	}
	st := m.state
	st.Err = err
	m.setLocked(st)
}

func (m *Manager) set(st State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(st)
}

func (m *Manager) setLocked(st State) {
	m.state = st
	select {
	case m.updates <- st:
	default:
		// A slow consumer drops intermediate snapshots; the latest state is
		// always available through Current.
	}
}

func statusLabel(status sdk.InstanceStatus) string {
	switch status {
	case sdk.StatusInitializing:
		return "initializing..."
	case sdk.StatusOK:
		return ""
	default:
		return "creating..."
	}
}
