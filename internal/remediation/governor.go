package remediation

import (
	"sync"

	"golang.org/x/time/rate"
)

// governor caps how often each atomic action may execute, grounded on the
// teacher's per-client token-bucket rate limiter reused here as a
// server-side per-action limiter rather than a per-client HTTP gate.
type governor struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perMin   int
}

// newGovernor builds a governor allowing at most perMinute executions of
// any single action per rolling minute.
func newGovernor(perMinute int) *governor {
	return &governor{
		limiters: make(map[string]*rate.Limiter),
		perMin:   perMinute,
	}
}

func (g *governor) allow(action string) bool {
	g.mu.Lock()
	limiter, ok := g.limiters[action]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(g.perMin)/60.0), g.perMin)
		g.limiters[action] = limiter
	}
	g.mu.Unlock()

	return limiter.Allow()
}
