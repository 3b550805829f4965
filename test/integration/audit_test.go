//go:build integration
// +build integration

package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaoslab/faultplane/internal/audit"
)

func TestPostgresSink_RecordThenQueryRoundTrips(t *testing.T) {
	ctx := context.Background()
	infra, err := SetupPostgres(ctx, "../../migrations")
	require.NoError(t, err)
	defer infra.Teardown(ctx)

	sink, err := audit.NewPostgresSink(ctx, infra.DSN, "../../migrations", nil)
	require.NoError(t, err)
	defer sink.Close()

	sink.Record(ctx, audit.Entry{Action: "attack_create", AttackID: "itest-1", Kind: "db_pool", Detail: map[string]string{"connections": "10"}})
	sink.Record(ctx, audit.Entry{Action: "attack_stop", AttackID: "itest-1", Kind: "db_pool"})
	sink.Record(ctx, audit.Entry{Action: "attack_create", AttackID: "itest-2", Kind: "env_var"})

	entries, err := sink.Query(ctx, "itest-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "attack_stop", entries[0].Action, "expected newest first")
	assert.Equal(t, "10", entries[1].Detail["connections"])

	all, err := sink.Query(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
