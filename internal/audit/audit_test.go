package audit

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogSink_RecordDoesNotPanic(t *testing.T) {
	sink := NewLogSink(slog.Default())
	assert.NotPanics(t, func() {
		sink.Record(context.Background(), Entry{
			Action:   "attack_create",
			AttackID: "a1",
			Kind:     "db_pool",
			Detail:   map[string]string{"connections": "20"},
		})
	})
}

func TestLogSink_NilLoggerFallsBackToDefault(t *testing.T) {
	sink := NewLogSink(nil)
	require.NotNil(t, sink.logger)
}

func TestLogSink_QueryReturnsNoHistoryBeforeAnyRecord(t *testing.T) {
	sink := NewLogSink(slog.Default())
	entries, err := sink.Query(context.Background(), "a1", 10)
	assert.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLogSink_QueryReturnsRecordedEntriesForAttack(t *testing.T) {
	sink := NewLogSink(slog.Default())
	sink.Record(context.Background(), Entry{Action: "attack_created", AttackID: "a1", Kind: "db_pool"})
	sink.Record(context.Background(), Entry{Action: "attack_stopped", AttackID: "a1", Kind: "db_pool"})
	sink.Record(context.Background(), Entry{Action: "attack_created", AttackID: "a2", Kind: "env_var"})

	entries, err := sink.Query(context.Background(), "a1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "attack_created", entries[0].Action)
	assert.Equal(t, "attack_stopped", entries[1].Action)
}

func TestLogSink_QueryWithoutAttackIDReturnsAllRecent(t *testing.T) {
	sink := NewLogSink(slog.Default())
	sink.Record(context.Background(), Entry{Action: "attack_created", AttackID: "a1"})
	sink.Record(context.Background(), Entry{Action: "attack_created", AttackID: "a2"})

	entries, err := sink.Query(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestLogSink_QueryRespectsLimit(t *testing.T) {
	sink := NewLogSink(slog.Default())
	for i := 0; i < 5; i++ {
		sink.Record(context.Background(), Entry{Action: "attack_created", AttackID: "a1"})
	}

	entries, err := sink.Query(context.Background(), "a1", 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
