package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chaoslab/faultplane/internal/apierrors"
)

// ObserveProbeTimeout bounds how long Status waits for a running attack's
// Module.Observe before returning a stale snapshot.
const ObserveProbeTimeout = 500 * time.Millisecond

// StopGracePeriod bounds how long Stop waits for graceful rollback before
// the caller must pass force=true.
const StopGracePeriod = 10 * time.Second

// Engine implements Create/Start/Status/Stop/List over the registry's
// attack map, enforcing the safety gate and resource-claim serialization
// described in spec.md §4.1 and §5.
type Engine struct {
	mu      sync.Mutex
	attacks map[string]*Attack
	claims  map[string]string // resource key -> owning attack id
	modules map[Kind]Module
	gate    Gate
	logger  *slog.Logger
}

// NewEngine builds an Engine with the given fault modules and safety gate.
func NewEngine(modules map[Kind]Module, gate Gate, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		attacks: make(map[string]*Attack),
		claims:  make(map[string]string),
		modules: modules,
		gate:    gate,
		logger:  logger,
	}
}

// Create allocates a record, applies the safety gate and module bounds
// validation, and returns the new attack's id.
func (e *Engine) Create(kind Kind, rawParams map[string]any) (string, error) {
	module, ok := e.modules[kind]
	if !ok {
		return "", apierrors.NotFoundf("unknown fault kind %q", kind)
	}

	typedParams, err := module.Validate(rawParams)
	if err != nil {
		return "", apierrors.InvalidParamsf("%s", err.Error())
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.gate.KillSwitchEngaged() {
		return "", apierrors.Rejectedf("kill switch engaged")
	}

	global, perKind := e.liveCountsLocked(kind)
	if !e.gate.AllowConcurrency(kind, global, perKind) {
		return "", apierrors.Rejectedf("concurrency cap reached for kind %q", kind)
	}

	if key, has := resourceKeyOf(typedParams); has {
		if !e.gate.AllowTarget(key) {
			return "", apierrors.Rejectedf("target %q is not allowlisted", key)
		}
		if owner, claimed := e.claims[key]; claimed {
			if other, ok := e.attacks[owner]; ok && !other.State.Terminal() {
				return "", apierrors.Rejectedf("target %q is already claimed by attack %s", key, owner)
			}
		}
	}

	id := uuid.New().String()
	now := time.Now()
	attack := &Attack{
		ID:            id,
		Kind:          kind,
		Params:        rawParams,
		State:         StateStarting,
		CreatedAt:     now,
		DurationBound: durationOf(typedParams),
	}
	e.attacks[id] = attack
	if key, has := resourceKeyOf(typedParams); has {
		e.claims[key] = id
	}

	e.logger.Info("attack created", "attack_id", id, "kind", kind)
	return id, e.startLocked(attack, module, typedParams)
}

// liveCountsLocked must be called with e.mu held.
func (e *Engine) liveCountsLocked(kind Kind) (global, perKind int) {
	for _, a := range e.attacks {
		if a.State.Terminal() {
			continue
		}
		global++
		if a.Kind == kind {
			perKind++
		}
	}
	return
}

// startLocked transitions starting->running and launches the module's
// background activity. Must be called with e.mu held.
func (e *Engine) startLocked(attack *Attack, module Module, typedParams any) error {
	ctx, cancel := context.WithCancel(context.Background())
	attack.cancel = cancel
	attack.injectDone = make(chan struct{})

	go e.run(ctx, attack, module, typedParams)
	return nil
}

func (e *Engine) run(ctx context.Context, attack *Attack, module Module, typedParams any) {
	owned, result, err := module.Inject(ctx, typedParams)
	selfTerminated := false
	deferredRollback := false
	var stopForce bool
	attack.WithLock(func() {
		attack.Result = result
		if err != nil {
			attack.State = StateFailed
			attack.Error = err.Error()
			attack.EndedAt = time.Now()
			e.logger.Error("attack inject failed", "attack_id", attack.ID, "kind", attack.Kind, "error", err)
			if owned != nil && !owned.Empty() {
				e.bestEffortRollback(attack, module, owned)
			}
			return
		}
		attack.StartedAt = time.Now()
		if owned == nil || owned.Empty() {
			// The fault performed and reverted its entire scenario inside
			// Inject (e.g. rate_limit's flood completes and restores the
			// prior limits by the time Inject returns) — nothing is left
			// to hold open or roll back.
			selfTerminated = true
			attack.State = StateCompleted
			attack.EndedAt = time.Now()
			return
		}
		attack.OwnedResources = owned
		if attack.stopRequested {
			// A Stop call arrived while Inject was still in flight and
			// found no OwnedResources to roll back yet, so it deferred to
			// here rather than publishing a terminal state ahead of the
			// real side effects. Never publish StateRunning in that case —
			// roll the just-acquired resources back immediately.
			attack.State = StateCancelling
			stopForce = attack.stopForce
			deferredRollback = true
			return
		}
		attack.State = StateRunning
	})

	if !deferredRollback {
		close(attack.injectDone)
	}
	e.logger.Info("attack transitioned", "attack_id", attack.ID, "from_state", StateStarting, "to_state", attack.Snapshot().State)

	if err != nil || selfTerminated {
		e.releaseClaim(attack)
		return
	}

	if deferredRollback {
		e.finishStop(attack, module, owned, stopForce)
		close(attack.injectDone)
		return
	}

	if attack.DurationBound > 0 {
		e.armTimer(attack, module)
	}

	<-ctx.Done()
}

func (e *Engine) bestEffortRollback(attack *Attack, module Module, owned OwnedResources) {
	rctx, cancel := context.WithTimeout(context.Background(), StopGracePeriod)
	defer cancel()
	if rbErr := module.Rollback(rctx, owned, true); rbErr != nil {
		attack.State = StateRollbackFailed
		attack.Error = rbErr.Error()
		e.logger.Error("best-effort rollback failed", "attack_id", attack.ID, "error", rbErr)
	}
}

// armTimer arms the rollback timer exactly once per attack (spec.md §3's
// "fires exactly once" invariant, enforced by Attack.rollback sync.Once).
func (e *Engine) armTimer(attack *Attack, module Module) {
	attack.timer = time.AfterFunc(attack.DurationBound, func() {
		attack.rollback.Do(func() {
			e.doStop(attack, module, false)
		})
	})
}

// Status returns a snapshot, probing Observe (bounded) when running.
func (e *Engine) Status(ctx context.Context, id string) (Attack, error) {
	e.mu.Lock()
	attack, ok := e.attacks[id]
	module := e.moduleFor(attack)
	e.mu.Unlock()
	if !ok {
		return Attack{}, apierrors.NotFoundf("unknown attack id %s", id)
	}

	if attack.Snapshot().State == StateRunning && module != nil {
		probeCtx, cancel := context.WithTimeout(ctx, ObserveProbeTimeout)
		defer cancel()

		attack.WithLock(func() {
			owned := attack.OwnedResources
			if owned == nil {
				return
			}
			result, err := module.Observe(probeCtx, owned)
			if err != nil {
				attack.Result.ObserveError = err.Error()
				return
			}
			attack.Result = result
		})
	}

	return attack.Snapshot(), nil
}

func (e *Engine) moduleFor(attack *Attack) Module {
	if attack == nil {
		return nil
	}
	return e.modules[attack.Kind]
}

// Stop requests cancellation and awaits rollback up to StopGracePeriod;
// force=true escalates to hard termination on timeout. Idempotent: a
// second Stop on an already-terminal attack returns the current state,
// except that force=true against a StateRollbackFailed attack re-enters
// doStop to retry the rollback the first attempt left stranded (spec.md
// §8 S2's escalation path), since that's the one terminal state whose
// OwnedResources were deliberately never released.
func (e *Engine) Stop(ctx context.Context, id string, force bool) (State, error) {
	e.mu.Lock()
	attack, ok := e.attacks[id]
	module := e.moduleFor(attack)
	e.mu.Unlock()
	if !ok {
		return "", apierrors.NotFoundf("unknown attack id %s", id)
	}

	state := attack.Snapshot().State
	if state.Terminal() && !(force && state == StateRollbackFailed) {
		return state, nil
	}

	return e.doStop(attack, module, force), nil
}

func (e *Engine) doStop(attack *Attack, module Module, force bool) State {
	var owned OwnedResources
	already := false
	deferred := false
	attack.WithLock(func() {
		if attack.State.Terminal() {
			if force && attack.State == StateRollbackFailed {
				// The prior graceful rollback errored without releasing
				// OwnedResources precisely so this retry could still act
				// on them (e.g. terminate the backend PID a failed
				// ROLLBACK left connected).
				attack.stopRequested = true
				attack.stopForce = true
				attack.State = StateCancelling
				owned = attack.OwnedResources
				return
			}
			already = true
			return
		}
		attack.stopRequested = true
		attack.stopForce = force
		if attack.State == StateStarting {
			// Inject hasn't returned yet, so there are no OwnedResources
			// to roll back — defer to run()'s post-Inject transition,
			// which will perform the rollback as soon as they exist
			// instead of this call finalizing a terminal state early.
			deferred = true
			return
		}
		attack.State = StateCancelling
		owned = attack.OwnedResources
	})
	if already {
		return attack.Snapshot().State
	}

	if attack.cancel != nil {
		attack.cancel()
	}
	if attack.timer != nil {
		attack.timer.Stop()
	}

	if deferred {
		select {
		case <-attack.injectDone:
		case <-time.After(StopGracePeriod):
		}
		return attack.Snapshot().State
	}

	return e.finishStop(attack, module, owned, force)
}

// finishStop runs module.Rollback against owned (bounded by
// StopGracePeriod) and publishes the resulting terminal state. Shared by
// doStop's normal path and run()'s deferred-rollback path for a Stop that
// arrived while Inject was still in flight.
func (e *Engine) finishStop(attack *Attack, module Module, owned OwnedResources, force bool) State {
	rctx, cancel := context.WithTimeout(context.Background(), StopGracePeriod)
	defer cancel()

	var rbErr error
	if owned != nil && !owned.Empty() && module != nil {
		rbErr = module.Rollback(rctx, owned, force)
	}

	attack.WithLock(func() {
		attack.EndedAt = time.Now()
		if rbErr != nil {
			attack.State = StateRollbackFailed
			attack.Error = rbErr.Error()
			e.logger.Error("rollback failed", "attack_id", attack.ID, "error", rbErr)
			return
		}
		attack.State = StateRolledBack
		attack.OwnedResources = nil
	})

	e.releaseClaim(attack)
	e.logger.Info("attack transitioned", "attack_id", attack.ID, "to_state", attack.Snapshot().State)
	return attack.Snapshot().State
}

func (e *Engine) releaseClaim(attack *Attack) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, owner := range e.claims {
		if owner == attack.ID {
			delete(e.claims, key)
		}
	}
}

// List returns a snapshot of every non-evicted attack.
func (e *Engine) List() []Attack {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Attack, 0, len(e.attacks))
	for _, a := range e.attacks {
		out = append(out, a.Snapshot())
	}
	return out
}

// KillAll stops every non-terminal attack, used by the global kill
// switch. Stops fan out concurrently so the whole call is bounded by one
// StopGracePeriod regardless of how many attacks are live, matching
// spec.md §8 S6's "every running attack becomes terminal within
// grace_period" invariant.
func (e *Engine) KillAll(ctx context.Context) {
	e.mu.Lock()
	ids := make([]string, 0, len(e.attacks))
	for id, a := range e.attacks {
		if !a.Snapshot().State.Terminal() {
			ids = append(ids, id)
		}
	}
	e.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(len(ids))
	for _, id := range ids {
		go func(id string) {
			defer wg.Done()
			_, _ = e.Stop(ctx, id, false)
		}(id)
	}
	wg.Wait()
}
