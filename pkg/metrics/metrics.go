// Package metrics provides the Prometheus metrics exposed by chaosd and
// actiond, registered lazily behind a singleton Registry so every adapter
// and engine shares one set of collectors.
//
// Naming follows <namespace>_<subsystem>_<name>_<unit>, e.g.
// faultplane_attacks_total, faultplane_remediation_steps_total.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const defaultNamespace = "faultplane"

// Registry is the central collector holder for one process (chaosd or
// actiond); each is lazily initialized and safe for concurrent use.
type Registry struct {
	namespace string

	chaos       *ChaosMetrics
	remediation *RemediationMetrics

	chaosOnce       sync.Once
	remediationOnce sync.Once
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the global singleton Registry, initialized once
// on first call.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry(defaultNamespace)
	})
	return defaultRegistry
}

// NewRegistry builds a Registry with the given namespace. Most callers
// should use DefaultRegistry instead.
func NewRegistry(namespace string) *Registry {
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &Registry{namespace: namespace}
}

// Chaos returns the chaosd-side metrics, lazy-initialized on first access.
func (r *Registry) Chaos() *ChaosMetrics {
	r.chaosOnce.Do(func() {
		r.chaos = newChaosMetrics(r.namespace)
	})
	return r.chaos
}

// Remediation returns the actiond-side metrics, lazy-initialized on first
// access.
func (r *Registry) Remediation() *RemediationMetrics {
	r.remediationOnce.Do(func() {
		r.remediation = newRemediationMetrics(r.namespace)
	})
	return r.remediation
}

// ChaosMetrics tracks attack lifecycle counts and durations for chaosd.
type ChaosMetrics struct {
	AttacksTotal      *prometheus.CounterVec
	AttacksInFlight   *prometheus.GaugeVec
	AttackDuration    *prometheus.HistogramVec
	RollbackFailures  *prometheus.CounterVec
	KillSwitchEngaged prometheus.Gauge
}

func newChaosMetrics(namespace string) *ChaosMetrics {
	return &ChaosMetrics{
		AttacksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "attacks",
				Name:      "total",
				Help:      "Total attacks created, labeled by kind and the state reported at creation.",
			},
			[]string{"kind", "state"},
		),
		AttacksInFlight: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "attacks",
				Name:      "in_flight",
				Help:      "Attacks currently in a non-terminal state, labeled by kind.",
			},
			[]string{"kind"},
		),
		AttackDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "attacks",
				Name:      "duration_seconds",
				Help:      "Wall-clock time an attack spent between starting and its terminal state.",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
			},
			[]string{"kind"},
		),
		RollbackFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rollback",
				Name:      "failures_total",
				Help:      "Rollback attempts that left resources stranded, labeled by kind.",
			},
			[]string{"kind"},
		),
		KillSwitchEngaged: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "safety",
				Name:      "kill_switch_engaged",
				Help:      "1 if the global kill switch is currently engaged, 0 otherwise.",
			},
		),
	}
}

// RemediationMetrics tracks remediation step and workflow outcomes for
// actiond.
type RemediationMetrics struct {
	StepsTotal        *prometheus.CounterVec
	WorkflowsTotal     *prometheus.CounterVec
	WorkflowDuration   *prometheus.HistogramVec
}

func newRemediationMetrics(namespace string) *RemediationMetrics {
	return &RemediationMetrics{
		StepsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "remediation",
				Name:      "steps_total",
				Help:      "Remediation atomic action executions, labeled by action and status.",
			},
			[]string{"action", "status"},
		),
		WorkflowsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "remediation",
				Name:      "workflows_total",
				Help:      "Completed remediation workflow runs, labeled by outcome.",
			},
			[]string{"outcome"},
		),
		WorkflowDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "remediation",
				Name:      "workflow_duration_seconds",
				Help:      "Wall-clock time a remediation workflow took end to end.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"workflow"},
		),
	}
}

// RecordStep records one atomic action's outcome.
func (m *RemediationMetrics) RecordStep(action, status string) {
	m.StepsTotal.WithLabelValues(action, status).Inc()
}
