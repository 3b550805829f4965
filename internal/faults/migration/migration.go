// Package migration implements the Migration Version Corruption fault
// (spec.md §4.2.f): record the target database's current migration
// version token, then write an invalid/missing/future/older one into its
// goose-shaped version table.
package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/chaoslab/faultplane/internal/adapters/dbadapter"
	"github.com/chaoslab/faultplane/internal/apierrors"
	"github.com/chaoslab/faultplane/internal/faults/faultutil"
	"github.com/chaoslab/faultplane/internal/registry"
)

// CorruptionType selects how the version token is corrupted.
type CorruptionType string

const (
	CorruptionInvalid CorruptionType = "invalid"
	CorruptionNoRow   CorruptionType = "no_row"
	CorruptionFuture  CorruptionType = "future"
	CorruptionOlder   CorruptionType = "older"
)

const defaultVersionTable = "goose_db_version"

// invalidVersionID is an out-of-band marker the goose tooling never
// assigns itself, used for CorruptionInvalid.
const invalidVersionID = -1

// Params are the validated inputs for a migration attack.
type Params struct {
	CorruptionType CorruptionType `mapstructure:"corruption_type" validate:"required,oneof=invalid no_row future older"`
	VersionTable   string         `mapstructure:"version_table"`
	FutureVersion  int64          `mapstructure:"future_version" validate:"omitempty,min=1"`
	OlderVersion   int64          `mapstructure:"older_version" validate:"omitempty,min=1"`
}

func (p Params) versionTable() string {
	if p.VersionTable == "" {
		return defaultVersionTable
	}
	return p.VersionTable
}

// ResourceKey implements registry.ResourceKeyed: only one attack may
// corrupt a given migration table at a time.
func (p Params) ResourceKey() string { return "migrationtable:" + p.versionTable() }

// owned records the original row so Rollback can restore it exactly.
type owned struct {
	table      string
	hadRow     bool
	versionID  int64
	isApplied  bool
	restored   bool
}

func (o *owned) Empty() bool { return o == nil || o.restored }

// Module implements registry.Module for migration.
type Module struct {
	DB *dbadapter.Pool
}

// Kind implements registry.Module.
func (Module) Kind() registry.Kind { return registry.KindMigration }

// Validate implements registry.Module.
func (Module) Validate(rawParams map[string]any) (any, error) {
	var p Params
	if err := faultutil.Decode(rawParams, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// Inject reads and records the current version row, then overwrites the
// table per CorruptionType.
func (m Module) Inject(ctx context.Context, params any) (registry.OwnedResources, registry.Result, error) {
	p := params.(Params)
	table := p.versionTable()

	o, err := m.recordCurrent(ctx, table)
	if err != nil {
		return nil, registry.Result{}, fmt.Errorf("record current version: %w", err)
	}

	if err := m.corrupt(ctx, table, p); err != nil {
		return nil, registry.Result{}, fmt.Errorf("corrupt version table: %w", err)
	}

	return o, registry.Result{
		Detail: map[string]string{
			"corruption_type":  string(p.CorruptionType),
			"had_row":          fmt.Sprintf("%t", o.hadRow),
			"original_version": fmt.Sprintf("%d", o.versionID),
		},
	}, nil
}

func (m Module) recordCurrent(ctx context.Context, table string) (*owned, error) {
	sql := fmt.Sprintf("SELECT version_id, is_applied FROM %s ORDER BY id DESC LIMIT 1", quoteIdent(table))
	row := m.DB.QueryRow(ctx, sql)

	o := &owned{table: table}
	var versionID int64
	var isApplied bool
	if err := row.Scan(&versionID, &isApplied); err != nil {
		// No row present yet; the corruption (if CorruptionNoRow) is already
		// the current state. Treat as hadRow=false.
		return o, nil
	}
	o.hadRow = true
	o.versionID = versionID
	o.isApplied = isApplied
	return o, nil
}

func (m Module) corrupt(ctx context.Context, table string, p Params) error {
	switch p.CorruptionType {
	case CorruptionInvalid:
		return m.setVersion(ctx, table, invalidVersionID, false)
	case CorruptionNoRow:
		_, err := m.DB.Exec(ctx, fmt.Sprintf("DELETE FROM %s", quoteIdent(table)))
		return err
	case CorruptionFuture:
		future := p.FutureVersion
		if future == 0 {
			future = time.Now().Unix()
		}
		return m.setVersion(ctx, table, future, true)
	case CorruptionOlder:
		return m.setVersion(ctx, table, p.OlderVersion, true)
	default:
		return apierrors.InvalidParamsf("unknown corruption_type %q", p.CorruptionType)
	}
}

func (m Module) setVersion(ctx context.Context, table string, versionID int64, applied bool) error {
	sql := fmt.Sprintf("INSERT INTO %s (version_id, is_applied, tstamp) VALUES ($1, $2, now())", quoteIdent(table))
	_, err := m.DB.Exec(ctx, sql, versionID, applied)
	return err
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}

// Observe is a no-op: the corrupted version token stays in effect until
// Rollback, nothing to poll in between.
func (Module) Observe(ctx context.Context, resources registry.OwnedResources) (registry.Result, error) {
	return registry.Result{}, nil
}

// Rollback restores the recorded row exactly (or removes the row this
// attack introduced if none existed before).
func (m Module) Rollback(ctx context.Context, resources registry.OwnedResources, force bool) error {
	o, ok := resources.(*owned)
	if !ok || o.Empty() {
		return nil
	}

	if _, err := m.DB.Exec(ctx, fmt.Sprintf("DELETE FROM %s", quoteIdent(o.table))); err != nil {
		return fmt.Errorf("clear corrupted rows: %w", err)
	}

	if o.hadRow {
		if err := m.setVersion(ctx, o.table, o.versionID, o.isApplied); err != nil {
			return fmt.Errorf("restore original version: %w", err)
		}
	}

	o.restored = true
	return nil
}

// Plan implements registry.Planner for the safety gate's dry-run preview.
func (Module) Plan(params any) registry.Plan {
	p := params.(Params)
	return registry.Plan{
		Description: fmt.Sprintf("corrupt %s with a %s version token", p.versionTable(), p.CorruptionType),
		Risk:        "high",
		Detail: map[string]string{
			"corruption_type": string(p.CorruptionType),
			"version_table":   p.versionTable(),
		},
	}
}
