package dbpool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_AcceptsWithinBounds(t *testing.T) {
	typed, err := Module{}.Validate(map[string]any{
		"connections":  20,
		"hold_seconds": 5,
	})
	require.NoError(t, err)

	p := typed.(Params)
	assert.Equal(t, 20, p.Connections)
	assert.Equal(t, 5*time.Second, p.Duration())
	assert.Equal(t, "db", p.ResourceKey())
}

func TestValidate_RejectsConnectionsOverMax(t *testing.T) {
	_, err := Module{}.Validate(map[string]any{
		"connections":  501,
		"hold_seconds": 5,
	})
	assert.Error(t, err)
}

func TestValidate_RejectsMissingHoldSeconds(t *testing.T) {
	_, err := Module{}.Validate(map[string]any{
		"connections": 10,
	})
	assert.Error(t, err)
}

func TestOwned_EmptyReflectsReleasedState(t *testing.T) {
	o := &owned{}
	assert.True(t, o.Empty(), "no connections or cancels means already empty")
}
