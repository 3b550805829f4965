package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaoslab/faultplane/internal/apierrors"
)

// fakeOwned is a minimal OwnedResources used by fakeModule below.
type fakeOwned struct {
	mu      sync.Mutex
	empty   bool
	rolled  int
	forced  bool
}

func (o *fakeOwned) Empty() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.empty
}

// fakeModule is a hand-written registry.Module used to drive Engine
// through its state machine without any real fault package's adapters.
type fakeModule struct {
	kind           Kind
	selfTerminate  bool
	injectErr      error
	rollbackErr    error
	observeBlocked int
}

func (m *fakeModule) Kind() Kind { return m.kind }

func (m *fakeModule) Validate(raw map[string]any) (any, error) {
	if raw["reject"] == true {
		return nil, errors.New("rejected by validation")
	}
	return raw, nil
}

func (m *fakeModule) Inject(ctx context.Context, params any) (OwnedResources, Result, error) {
	if m.injectErr != nil {
		return nil, Result{}, m.injectErr
	}
	if m.selfTerminate {
		return nil, Result{TwoXX: 1}, nil
	}
	return &fakeOwned{empty: false}, Result{BlockedCount: m.observeBlocked}, nil
}

func (m *fakeModule) Observe(ctx context.Context, owned OwnedResources) (Result, error) {
	return Result{BlockedCount: m.observeBlocked}, nil
}

func (m *fakeModule) Rollback(ctx context.Context, owned OwnedResources, force bool) error {
	o := owned.(*fakeOwned)
	o.mu.Lock()
	o.empty = true
	o.rolled++
	o.forced = force
	o.mu.Unlock()
	return m.rollbackErr
}

// fakeGate is a permissive registry.Gate, overridable per test.
type fakeGate struct {
	killed       bool
	denyConc     bool
	denyTarget   bool
}

func (g *fakeGate) KillSwitchEngaged() bool { return g.killed }
func (g *fakeGate) AllowConcurrency(kind Kind, global, perKind int) bool {
	return !g.denyConc
}
func (g *fakeGate) AllowTarget(identifier string) bool { return !g.denyTarget }

func newTestEngine(modules map[Kind]Module, gate Gate) *Engine {
	return NewEngine(modules, gate, nil)
}

func TestCreate_UnknownKindIsNotFound(t *testing.T) {
	e := newTestEngine(map[Kind]Module{}, &fakeGate{})
	_, err := e.Create(KindDBPool, nil)
	require.Error(t, err)

	var apiErr *apierrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, apierrors.NotFound, apiErr.Kind())
}

func TestCreate_RejectedByKillSwitch(t *testing.T) {
	module := &fakeModule{kind: KindDBPool}
	e := newTestEngine(map[Kind]Module{KindDBPool: module}, &fakeGate{killed: true})

	_, err := e.Create(KindDBPool, map[string]any{})
	require.Error(t, err)
}

func TestCreate_InvalidParamsRejected(t *testing.T) {
	module := &fakeModule{kind: KindDBPool}
	e := newTestEngine(map[Kind]Module{KindDBPool: module}, &fakeGate{})

	_, err := e.Create(KindDBPool, map[string]any{"reject": true})
	require.Error(t, err)
}

func TestCreate_ResourceHoldingTransitionsToRunningThenRolledBack(t *testing.T) {
	module := &fakeModule{kind: KindDBPool}
	e := newTestEngine(map[Kind]Module{KindDBPool: module}, &fakeGate{})

	id, err := e.Create(KindDBPool, map[string]any{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, err := e.Status(context.Background(), id)
		return err == nil && snap.State == StateRunning
	}, time.Second, 5*time.Millisecond)

	state, err := e.Stop(context.Background(), id, false)
	require.NoError(t, err)
	assert.Equal(t, StateRolledBack, state)

	// Stop is idempotent on an already-terminal attack.
	state, err = e.Stop(context.Background(), id, false)
	require.NoError(t, err)
	assert.Equal(t, StateRolledBack, state)
}

func TestCreate_SelfTerminatingGoesStraightToCompleted(t *testing.T) {
	module := &fakeModule{kind: KindRateLimit, selfTerminate: true}
	e := newTestEngine(map[Kind]Module{KindRateLimit: module}, &fakeGate{})

	id, err := e.Create(KindRateLimit, map[string]any{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, err := e.Status(context.Background(), id)
		return err == nil && snap.State == StateCompleted
	}, time.Second, 5*time.Millisecond)
}

func TestCreate_InjectFailureMarksFailed(t *testing.T) {
	module := &fakeModule{kind: KindDBPool, injectErr: errors.New("boom")}
	e := newTestEngine(map[Kind]Module{KindDBPool: module}, &fakeGate{})

	id, err := e.Create(KindDBPool, map[string]any{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, err := e.Status(context.Background(), id)
		return err == nil && snap.State == StateFailed
	}, time.Second, 5*time.Millisecond)
}

func TestKillAll_StopsEveryNonTerminalAttack(t *testing.T) {
	module := &fakeModule{kind: KindDBPool}
	e := newTestEngine(map[Kind]Module{KindDBPool: module}, &fakeGate{})

	id1, err := e.Create(KindDBPool, map[string]any{})
	require.NoError(t, err)
	id2, err := e.Create(KindDBPool, map[string]any{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s1, _ := e.Status(context.Background(), id1)
		s2, _ := e.Status(context.Background(), id2)
		return s1.State == StateRunning && s2.State == StateRunning
	}, time.Second, 5*time.Millisecond)

	e.KillAll(context.Background())

	s1, _ := e.Status(context.Background(), id1)
	s2, _ := e.Status(context.Background(), id2)
	assert.Equal(t, StateRolledBack, s1.State)
	assert.Equal(t, StateRolledBack, s2.State)
}

// slowInjectModule blocks Inject until release is closed, so a test can
// call Stop while the attack is still in StateStarting.
type slowInjectModule struct {
	fakeModule
	release chan struct{}
}

func (m *slowInjectModule) Inject(ctx context.Context, params any) (OwnedResources, Result, error) {
	<-m.release
	return m.fakeModule.Inject(ctx, params)
}

func TestStop_DuringInFlightInjectDefersRollbackInsteadOfPublishingRunning(t *testing.T) {
	module := &slowInjectModule{fakeModule: fakeModule{kind: KindDBPool}, release: make(chan struct{})}
	e := newTestEngine(map[Kind]Module{KindDBPool: module}, &fakeGate{})

	id, err := e.Create(KindDBPool, map[string]any{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, err := e.Status(context.Background(), id)
		return err == nil && snap.State == StateStarting
	}, time.Second, 5*time.Millisecond)

	stopDone := make(chan State, 1)
	go func() {
		state, err := e.Stop(context.Background(), id, false)
		require.NoError(t, err)
		stopDone <- state
	}()

	// Give Stop a moment to observe StateStarting and mark stopRequested
	// before Inject is allowed to return.
	time.Sleep(20 * time.Millisecond)
	close(module.release)

	state := <-stopDone
	assert.Equal(t, StateRolledBack, state, "Stop must never finalize ahead of Inject's real resources")

	// Status after Stop returns must agree with Stop's own result: the
	// attack's recorded state is rolled_back.
	snap, err := e.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StateRolledBack, snap.State)
}

func TestStop_ForceRetriesAfterRollbackFailed(t *testing.T) {
	module := &fakeModule{kind: KindDBPool, rollbackErr: errors.New("rollback timed out")}
	e := newTestEngine(map[Kind]Module{KindDBPool: module}, &fakeGate{})

	id, err := e.Create(KindDBPool, map[string]any{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, err := e.Status(context.Background(), id)
		return err == nil && snap.State == StateRunning
	}, time.Second, 5*time.Millisecond)

	state, err := e.Stop(context.Background(), id, false)
	require.NoError(t, err)
	require.Equal(t, StateRollbackFailed, state)

	// A plain (non-forced) Stop against a terminal rollback_failed attack
	// is still a no-op.
	state, err = e.Stop(context.Background(), id, false)
	require.NoError(t, err)
	assert.Equal(t, StateRollbackFailed, state)

	module.rollbackErr = nil
	state, err = e.Stop(context.Background(), id, true)
	require.NoError(t, err)
	assert.Equal(t, StateRolledBack, state, "force=true must re-enter doStop and retry the rollback")
}

// slowRollbackModule sleeps for delay in Rollback, so a test can tell a
// concurrent fan-out of Stop calls apart from a sequential one.
type slowRollbackModule struct {
	fakeModule
	delay time.Duration
}

func (m *slowRollbackModule) Rollback(ctx context.Context, owned OwnedResources, force bool) error {
	time.Sleep(m.delay)
	return m.fakeModule.Rollback(ctx, owned, force)
}

func TestKillAll_BoundedByOneGracePeriodRegardlessOfAttackCount(t *testing.T) {
	const rollbackDelay = 200 * time.Millisecond
	ids := make([]string, 0, 5)
	modules := map[Kind]Module{}

	// Engine keys modules by Kind, so driving several concurrently-stopped
	// attacks needs one module per distinct kind; each Rollback sleeps, so
	// a sequential KillAll would take roughly len(kinds)*rollbackDelay
	// while a concurrent one takes roughly one rollbackDelay.
	kinds := []Kind{KindDBPool, KindLongTransaction, KindEnvVar, KindAPICrash, KindRateLimit}
	for _, k := range kinds {
		modules[k] = &slowRollbackModule{fakeModule: fakeModule{kind: k}, delay: rollbackDelay}
	}
	e := newTestEngine(modules, &fakeGate{})

	for _, k := range kinds {
		id, err := e.Create(k, map[string]any{})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	require.Eventually(t, func() bool {
		for _, id := range ids {
			snap, err := e.Status(context.Background(), id)
			if err != nil || snap.State != StateRunning {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond)

	start := time.Now()
	e.KillAll(context.Background())
	elapsed := time.Since(start)

	assert.Less(t, elapsed, time.Duration(len(kinds))*rollbackDelay, "KillAll must fan Stop calls out concurrently, not sum len(kinds) rollback delays")
	for _, id := range ids {
		snap, err := e.Status(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, StateRolledBack, snap.State)
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, StateRolledBack.Terminal())
	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.True(t, StateRollbackFailed.Terminal())
	assert.False(t, StateStarting.Terminal())
	assert.False(t, StateRunning.Terminal())
	assert.False(t, StateCancelling.Terminal())
}
