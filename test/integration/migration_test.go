//go:build integration
// +build integration

package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaoslab/faultplane/internal/faults/migration"
)

func TestMigrationModule_InjectThenRollbackRestoresOriginalVersion(t *testing.T) {
	ctx := context.Background()
	infra, err := SetupPostgres(ctx, "../../migrations")
	require.NoError(t, err)
	defer infra.Teardown(ctx)

	mod := migration.Module{DB: infra.DB}

	raw, err := mod.Validate(map[string]any{"corruption_type": "future", "future_version": int64(99999999)})
	require.NoError(t, err)

	owned, result, err := mod.Inject(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, "future", result.Detail["corruption_type"])
	assert.Equal(t, "true", result.Detail["had_row"])
	require.NotNil(t, owned)

	var row struct {
		VersionID int64
		IsApplied bool
	}
	err = infra.DB.QueryRow(ctx, `SELECT version_id, is_applied FROM goose_db_version ORDER BY id DESC LIMIT 1`).
		Scan(&row.VersionID, &row.IsApplied)
	require.NoError(t, err)
	assert.Equal(t, int64(99999999), row.VersionID)

	err = mod.Rollback(ctx, owned, false)
	require.NoError(t, err)

	err = infra.DB.QueryRow(ctx, `SELECT version_id, is_applied FROM goose_db_version ORDER BY id DESC LIMIT 1`).
		Scan(&row.VersionID, &row.IsApplied)
	require.NoError(t, err)
	assert.Equal(t, int64(1), row.VersionID)
	assert.True(t, row.IsApplied)
}

func TestMigrationModule_NoRowCorruptionThenRollback(t *testing.T) {
	ctx := context.Background()
	infra, err := SetupPostgres(ctx, "../../migrations")
	require.NoError(t, err)
	defer infra.Teardown(ctx)

	mod := migration.Module{DB: infra.DB}

	raw, err := mod.Validate(map[string]any{"corruption_type": "no_row"})
	require.NoError(t, err)

	owned, _, err := mod.Inject(ctx, raw)
	require.NoError(t, err)

	err = infra.DB.QueryRow(ctx, `SELECT version_id FROM goose_db_version LIMIT 1`).Scan(new(int64))
	assert.Error(t, err, "expected no_row corruption to leave the version table empty")

	err = mod.Rollback(ctx, owned, false)
	require.NoError(t, err)

	var versionID int64
	err = infra.DB.QueryRow(ctx, `SELECT version_id FROM goose_db_version ORDER BY id DESC LIMIT 1`).Scan(&versionID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), versionID)
}
