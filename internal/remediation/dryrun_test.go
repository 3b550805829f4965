package remediation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDryRunRemediateDBPoolExhaustion_WithoutEscalation(t *testing.T) {
	e := NewEngine(nil, nil, "target-api", "target-db", "http://target-api/healthz")

	plan := e.DryRunRemediateDBPoolExhaustion(false)
	require.Len(t, plan, 2)
	assert.Equal(t, actionRestartAPI, plan[0].Action)
	assert.Contains(t, plan[0].Command, "target-api")
	assert.Equal(t, actionVerifyHealth, plan[1].Action)
}

func TestDryRunRemediateDBPoolExhaustion_WithEscalation(t *testing.T) {
	e := NewEngine(nil, nil, "target-api", "target-db", "http://target-api/healthz")

	plan := e.DryRunRemediateDBPoolExhaustion(true)
	require.Len(t, plan, 4)
	assert.Equal(t, actionRestartDB, plan[2].Action)
	assert.Contains(t, plan[2].Command, "target-db")
	assert.Equal(t, "high", plan[2].Risk)
	assert.Equal(t, actionVerifyHealth, plan[3].Action)
}
