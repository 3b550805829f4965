package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry_ReturnsSameInstance(t *testing.T) {
	a := DefaultRegistry()
	b := DefaultRegistry()
	assert.Same(t, a, b)
}

func TestChaos_LazyInitIsIdempotent(t *testing.T) {
	r := NewRegistry("faultplane_test_chaos")
	first := r.Chaos()
	second := r.Chaos()
	assert.Same(t, first, second)
}

func TestRemediation_LazyInitIsIdempotent(t *testing.T) {
	r := NewRegistry("faultplane_test_remediation")
	first := r.Remediation()
	second := r.Remediation()
	assert.Same(t, first, second)
}

func TestNewRegistry_EmptyNamespaceFallsBackToDefault(t *testing.T) {
	r := NewRegistry("")
	assert.Equal(t, defaultNamespace, r.namespace)
}

func TestRecordStep_IncrementsCounter(t *testing.T) {
	r := NewRegistry("faultplane_test_recordstep")
	m := r.Remediation()
	assert.NotPanics(t, func() {
		m.RecordStep("restart_target_api", "ok")
	})

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	var got float64
	for _, mf := range families {
		if mf.GetName() == "faultplane_test_recordstep_remediation_steps_total" {
			for _, metric := range mf.GetMetric() {
				got += metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, got)
}
