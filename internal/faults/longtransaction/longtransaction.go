// Package longtransaction implements the Long-Running Transaction fault
// (spec.md §4.2.b): hold a lock open on a dedicated connection until an
// operator stops the attack or its duration timer fires.
package longtransaction

import (
	"context"
	"fmt"
	"time"

	"github.com/chaoslab/faultplane/internal/adapters/dbadapter"
	"github.com/chaoslab/faultplane/internal/apierrors"
	"github.com/chaoslab/faultplane/internal/faults/faultutil"
	"github.com/chaoslab/faultplane/internal/registry"
)

// LockType selects how the held transaction blocks other backends.
type LockType string

const (
	LockTable     LockType = "table_lock"
	LockRow       LockType = "row_lock"
	LockAdvisory  LockType = "advisory_lock"
)

// Params are the validated inputs for a long_transaction attack.
type Params struct {
	LockType        LockType `mapstructure:"lock_type" validate:"required,oneof=table_lock row_lock advisory_lock"`
	TargetTable     string   `mapstructure:"target_table" validate:"required_if=LockType table_lock,required_if=LockType row_lock"`
	LockCount       int      `mapstructure:"lock_count" validate:"omitempty,min=1,max=10000"`
	DurationSeconds int      `mapstructure:"duration_seconds" validate:"omitempty,min=1,max=3600"`
}

// Duration implements registry.Durationed when the operator supplied a
// bound; a zero value leaves the attack running until an explicit stop.
func (p Params) Duration() time.Duration {
	if p.DurationSeconds == 0 {
		return 0
	}
	return time.Duration(p.DurationSeconds) * time.Second
}

// ResourceKey implements registry.ResourceKeyed: two long_transaction (or a
// long_transaction and a db_pool) attacks cannot hold the same target
// database's connections concurrently.
func (p Params) ResourceKey() string { return "db" }

func (p Params) lockCount() int {
	if p.LockCount == 0 {
		return 1
	}
	return p.LockCount
}

// owned is the dedicated connection holding the lock open.
type owned struct {
	conn *dbadapter.ScopedConn
}

func (o *owned) Empty() bool { return o == nil || o.conn == nil }

// Module implements registry.Module for long_transaction.
type Module struct {
	DB *dbadapter.Pool
}

// Kind implements registry.Module.
func (Module) Kind() registry.Kind { return registry.KindLongTransaction }

// Validate implements registry.Module.
func (Module) Validate(rawParams map[string]any) (any, error) {
	var p Params
	if err := faultutil.Decode(rawParams, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// Inject opens a dedicated connection, begins a transaction and acquires
// the requested lock, recording the backend PID in the result.
func (m Module) Inject(ctx context.Context, params any) (registry.OwnedResources, registry.Result, error) {
	p := params.(Params)

	conn, err := m.DB.OpenScoped(ctx)
	if err != nil {
		return nil, registry.Result{}, fmt.Errorf("open connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "BEGIN"); err != nil {
		conn.Release()
		return nil, registry.Result{}, fmt.Errorf("begin transaction: %w", err)
	}

	if err := m.acquireLock(ctx, conn, p); err != nil {
		_, _ = conn.Exec(ctx, "ROLLBACK")
		conn.Release()
		return nil, registry.Result{}, err
	}

	return &owned{conn: conn}, registry.Result{
		Detail: map[string]string{
			"backend_pid": fmt.Sprintf("%d", conn.PID()),
			"lock_type":   string(p.LockType),
		},
	}, nil
}

func (m Module) acquireLock(ctx context.Context, conn *dbadapter.ScopedConn, p Params) error {
	switch p.LockType {
	case LockTable:
		sql := fmt.Sprintf("LOCK TABLE %s IN ACCESS EXCLUSIVE MODE", quoteIdent(p.TargetTable))
		if _, err := conn.Exec(ctx, sql); err != nil {
			return fmt.Errorf("acquire table lock: %w", err)
		}
	case LockRow:
		sql := fmt.Sprintf("SELECT 1 FROM %s LIMIT %d FOR UPDATE", quoteIdent(p.TargetTable), p.lockCount())
		if _, err := conn.Exec(ctx, sql); err != nil {
			return fmt.Errorf("acquire row locks: %w", err)
		}
	case LockAdvisory:
		for i := 0; i < p.lockCount(); i++ {
			if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", int64(i+1)); err != nil {
				return fmt.Errorf("acquire advisory lock %d: %w", i+1, err)
			}
		}
	default:
		return apierrors.InvalidParamsf("unknown lock_type %q", p.LockType)
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}

// Observe probes pg_stat_activity for queries blocked waiting on this
// backend's locks.
func (m Module) Observe(ctx context.Context, resources registry.OwnedResources) (registry.Result, error) {
	o, ok := resources.(*owned)
	if !ok || o.Empty() {
		return registry.Result{}, nil
	}

	rows, err := m.DB.QueryRowsBlockedBy(ctx, o.conn.PID())
	if err != nil {
		return registry.Result{ObserveError: err.Error()}, nil
	}

	return registry.Result{
		BlockedCount:   len(rows),
		BlockedQueries: rows,
		Detail: map[string]string{
			"backend_pid": fmt.Sprintf("%d", o.conn.PID()),
		},
	}, nil
}

// Rollback performs a graceful ROLLBACK+close, or a pg_terminate_backend
// when force is set. A failed graceful ROLLBACK is returned as is, without
// escalating; the connection stays owned so a later forced Rollback can
// terminate its backend.
func (m Module) Rollback(ctx context.Context, resources registry.OwnedResources, force bool) error {
	o, ok := resources.(*owned)
	if !ok || o.Empty() {
		return nil
	}

	if force {
		err := m.DB.TerminateBackend(ctx, o.conn.PID())
		o.conn.Release()
		o.conn = nil
		return err
	}

	if _, err := o.conn.Exec(ctx, "ROLLBACK"); err != nil {
		// Leave the connection owned on error: a forced retry still needs
		// its PID to issue pg_terminate_backend against it.
		return err
	}
	o.conn.Release()
	o.conn = nil
	return nil
}

// Plan implements registry.Planner for the safety gate's dry-run preview.
func (Module) Plan(params any) registry.Plan {
	p := params.(Params)
	risk := "medium"
	if p.LockType == LockTable {
		risk = "high"
	}
	return registry.Plan{
		Description: fmt.Sprintf("acquire %s on %s (count=%d) and hold it open", p.LockType, p.TargetTable, p.lockCount()),
		Risk:        risk,
		Detail: map[string]string{
			"lock_type":    string(p.LockType),
			"target_table": p.TargetTable,
		},
	}
}
