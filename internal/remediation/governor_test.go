package remediation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGovernor_AllowsBurstThenDenies(t *testing.T) {
	g := newGovernor(3)

	allowed := 0
	for i := 0; i < 10; i++ {
		if g.allow(actionRestartAPI) {
			allowed++
		}
	}

	assert.Equal(t, 3, allowed, "burst should match perMinute, further calls denied until refill")
}

func TestGovernor_TracksActionsIndependently(t *testing.T) {
	g := newGovernor(1)

	assert.True(t, g.allow(actionRestartAPI))
	assert.False(t, g.allow(actionRestartAPI))

	// A different action has its own limiter and its own budget.
	assert.True(t, g.allow(actionRestartDB))
}
