package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_AcceptsWithinBounds(t *testing.T) {
	typed, err := Module{}.Validate(map[string]any{
		"max_requests":     10,
		"window_seconds":   60,
		"flood_requests":   100,
		"flood_rate":       20,
		"target_endpoint":  "http://target-api/orders",
		"limit_config_url": "http://target-api/admin/rate-limit",
	})
	require.NoError(t, err)

	p := typed.(Params)
	assert.Equal(t, "ratelimit:http://target-api/orders", p.ResourceKey())
}

func TestValidate_RejectsMissingTargetEndpoint(t *testing.T) {
	_, err := Module{}.Validate(map[string]any{
		"max_requests":     10,
		"window_seconds":   60,
		"flood_requests":   100,
		"flood_rate":       20,
		"limit_config_url": "http://target-api/admin/rate-limit",
	})
	assert.Error(t, err)
}

func TestValidate_RejectsFloodRateOverMax(t *testing.T) {
	_, err := Module{}.Validate(map[string]any{
		"max_requests":     10,
		"window_seconds":   60,
		"flood_requests":   100,
		"flood_rate":       1001,
		"target_endpoint":  "http://target-api/orders",
		"limit_config_url": "http://target-api/admin/rate-limit",
	})
	assert.Error(t, err)
}

func TestExpectedRateLimited_CapsAtFloodRequests(t *testing.T) {
	p := Params{MaxRequests: 10, FloodRequests: 100}
	assert.Equal(t, 90, expectedRateLimited(p))
}

func TestExpectedRateLimited_ZeroWhenLimitExceedsFlood(t *testing.T) {
	p := Params{MaxRequests: 1000, FloodRequests: 100}
	assert.Equal(t, 0, expectedRateLimited(p))
}

func TestWithinTolerance_AcceptsWithinBand(t *testing.T) {
	assert.True(t, withinTolerance(88, 90))
	assert.True(t, withinTolerance(90, 90))
}

func TestWithinTolerance_RejectsFarBelowExpected(t *testing.T) {
	assert.False(t, withinTolerance(10, 90))
}

func TestEmptyOwned_AlwaysEmpty(t *testing.T) {
	assert.True(t, emptyOwned{}.Empty())
}
