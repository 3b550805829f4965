// Package safety implements the Safety & Policy Gate: bounds validation
// lives in each fault module, but kill switch, concurrency caps, target
// allowlisting, and dry-run previews are cross-cutting and live here.
package safety

import (
	"context"
	"log/slog"
	"sync"

	"github.com/chaoslab/faultplane/internal/config"
	"github.com/chaoslab/faultplane/internal/registry"
)

// Gate implements registry.Gate plus the dry-run preview spec.md §4.3
// requires. It is safe for concurrent use.
type Gate struct {
	mu sync.RWMutex

	globalCap  int
	perKindCap map[registry.Kind]int
	allowlist  map[string]bool // empty map = no allowlist configured

	killSwitch killSwitch
	logger     *slog.Logger
}

// NewGate builds a Gate from config. When cfg.KillSwitch.Redis.Addr is
// set, the kill switch is backed by Redis so multiple chaosd replicas
// observe the same state; otherwise it's a single-process atomic.Bool.
func NewGate(cfg config.Config, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}

	perKind := make(map[registry.Kind]int, len(cfg.Concurrency.PerKindCap))
	for k, v := range cfg.Concurrency.PerKindCap {
		perKind[registry.Kind(k)] = v
	}

	allow := make(map[string]bool, len(cfg.TargetStack.Allowlist))
	for _, id := range cfg.TargetStack.Allowlist {
		allow[id] = true
	}

	g := &Gate{
		globalCap:  cfg.Concurrency.GlobalCap,
		perKindCap: perKind,
		allowlist:  allow,
		logger:     logger,
	}

	if cfg.KillSwitch.Redis.Addr != "" {
		g.killSwitch = newRedisKillSwitch(cfg.KillSwitch.Redis, cfg.KillSwitch.InitiallyEngaged, logger)
	} else {
		g.killSwitch = newLocalKillSwitch(cfg.KillSwitch.InitiallyEngaged)
	}

	return g
}

// KillSwitchEngaged implements registry.Gate.
func (g *Gate) KillSwitchEngaged() bool {
	return g.killSwitch.Engaged(context.Background())
}

// Engage trips the kill switch: no new attacks may start.
func (g *Gate) Engage(ctx context.Context) error {
	g.logger.Warn("kill switch engaged")
	return g.killSwitch.Set(ctx, true)
}

// Disengage clears the kill switch.
func (g *Gate) Disengage(ctx context.Context) error {
	g.logger.Info("kill switch disengaged")
	return g.killSwitch.Set(ctx, false)
}

// AllowConcurrency implements registry.Gate.
func (g *Gate) AllowConcurrency(kind registry.Kind, global, perKind int) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.globalCap > 0 && global >= g.globalCap {
		return false
	}
	if cap, ok := g.perKindCap[kind]; ok && cap > 0 && perKind >= cap {
		return false
	}
	return true
}

// AllowTarget implements registry.Gate.
func (g *Gate) AllowTarget(identifier string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(g.allowlist) == 0 {
		return true
	}
	return g.allowlist[identifier]
}
