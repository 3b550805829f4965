package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_AcceptsDefaultVersionTable(t *testing.T) {
	typed, err := Module{}.Validate(map[string]any{
		"corruption_type": "invalid",
	})
	require.NoError(t, err)

	p := typed.(Params)
	assert.Equal(t, defaultVersionTable, p.versionTable())
	assert.Equal(t, "migrationtable:"+defaultVersionTable, p.ResourceKey())
}

func TestValidate_AcceptsCustomVersionTable(t *testing.T) {
	typed, err := Module{}.Validate(map[string]any{
		"corruption_type": "future",
		"version_table":   "schema_migrations",
		"future_version":  99999999,
	})
	require.NoError(t, err)

	p := typed.(Params)
	assert.Equal(t, "schema_migrations", p.versionTable())
	assert.Equal(t, "migrationtable:schema_migrations", p.ResourceKey())
}

func TestValidate_RejectsUnknownCorruptionType(t *testing.T) {
	_, err := Module{}.Validate(map[string]any{
		"corruption_type": "bogus",
	})
	assert.Error(t, err)
}

func TestOwned_EmptyReflectsRestoredState(t *testing.T) {
	o := &owned{hadRow: true, versionID: 3, restored: false}
	assert.False(t, o.Empty())

	o.restored = true
	assert.True(t, o.Empty())
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"goose_db_version"`, quoteIdent("goose_db_version"))
}
