// Package registry implements the Attack Registry & Lifecycle Engine:
// Create/Start/Status/Stop/List over a uniform Module contract that each
// fault package in internal/faults implements.
package registry

import (
	"sync"
	"time"
)

// Kind identifies one of the six fault types this control plane supports.
type Kind string

const (
	KindDBPool          Kind = "db_pool"
	KindLongTransaction Kind = "long_transaction"
	KindEnvVar          Kind = "env_var"
	KindAPICrash        Kind = "api_crash"
	KindRateLimit       Kind = "rate_limit"
	KindMigration       Kind = "migration"
)

// State is a node in the attack state machine (spec.md §4.1).
type State string

const (
	StateStarting      State = "starting"
	StateRunning       State = "running"
	StateCancelling    State = "cancelling"
	StateRolledBack    State = "rolled_back"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
	StateRollbackFailed State = "rollback_failed"
)

// Terminal reports whether s is one of the four terminal states.
func (s State) Terminal() bool {
	switch s {
	case StateRolledBack, StateCompleted, StateFailed, StateRollbackFailed:
		return true
	default:
		return false
	}
}

// Result carries a fault module's observable progress, populated by
// Inject and refreshed by Observe.
type Result struct {
	BlockedCount   int               `json:"blocked_count,omitempty"`
	BlockedQueries []string          `json:"blocked_queries,omitempty"`
	TwoXX          int               `json:"two_xx,omitempty"`
	RateLimited    int               `json:"rate_limited,omitempty"`
	Errors         int               `json:"errors,omitempty"`
	ObserveError   string            `json:"observe_error,omitempty"`
	Detail         map[string]string `json:"detail,omitempty"`
}

// OwnedResources is an opaque per-kind handle: every fault module defines
// its own concrete type and the registry only ever stores and returns it
// to that same module's Rollback, never inspecting its internals.
type OwnedResources interface {
	// Empty reports whether the resources have already been released.
	Empty() bool
}

// Attack is the registry's record for one fault run, matching spec.md §3
// exactly plus the embedded mutex enforcing single-writer semantics while
// running.
type Attack struct {
	mu sync.Mutex

	ID             string
	Kind           Kind
	Params         map[string]any
	State          State
	CreatedAt      time.Time
	StartedAt      time.Time
	EndedAt        time.Time
	DurationBound  time.Duration
	Result         Result
	Error          string
	OwnedResources OwnedResources

	cancel        func()
	rollback      sync.Once
	timer         *time.Timer
	stopRequested bool
	stopForce     bool
	injectDone    chan struct{}
}

// WithLock runs fn with the attack's record locked, enforcing that only
// one goroutine mutates an Attack at a time.
func (a *Attack) WithLock(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn()
}

// Snapshot returns a copy of the record safe to serialize without racing
// the owning background task.
func (a *Attack) Snapshot() Attack {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := *a
	cp.mu = sync.Mutex{}
	cp.rollback = sync.Once{}
	return cp
}
