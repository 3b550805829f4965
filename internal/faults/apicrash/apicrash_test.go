package apicrash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_AcceptsStopAndRestart(t *testing.T) {
	typed, err := Module{}.Validate(map[string]any{
		"action":         "stop",
		"container_name": "target-api",
	})
	require.NoError(t, err)
	p := typed.(Params)
	assert.Equal(t, ActionStop, p.Action)
	assert.Equal(t, "container:target-api", p.ResourceKey())

	typed, err = Module{}.Validate(map[string]any{
		"action":         "restart",
		"container_name": "target-api",
	})
	require.NoError(t, err)
	p = typed.(Params)
	assert.Equal(t, ActionRestart, p.Action)
}

func TestValidate_RejectsUnknownAction(t *testing.T) {
	_, err := Module{}.Validate(map[string]any{
		"action":         "pause",
		"container_name": "target-api",
	})
	assert.Error(t, err)
}

func TestDuration_RestartIsAlwaysZero(t *testing.T) {
	p := Params{Action: ActionRestart, DurationSeconds: 30}
	assert.Zero(t, p.Duration())
}

func TestDuration_StopUsesConfiguredSeconds(t *testing.T) {
	p := Params{Action: ActionStop, DurationSeconds: 30}
	assert.Equal(t, int64(30), int64(p.Duration().Seconds()))
}
