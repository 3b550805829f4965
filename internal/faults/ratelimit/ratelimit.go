// Package ratelimit implements the Rate-Limit Misconfiguration fault
// (spec.md §4.2.e): set restrictive limits on the target, flood it, and
// classify the responses, then restore the prior configuration — the
// whole scenario runs to completion inside Inject.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chaoslab/faultplane/internal/adapters/httpadapter"
	"github.com/chaoslab/faultplane/internal/faults/faultutil"
	"github.com/chaoslab/faultplane/internal/registry"
)

const floodRequestTimeout = 5 * time.Second

// Params are the validated inputs for a rate_limit attack.
type Params struct {
	MaxRequests    int    `mapstructure:"max_requests" validate:"required,min=1,max=100000"`
	WindowSeconds  int    `mapstructure:"window_seconds" validate:"required,min=1,max=3600"`
	FloodRequests  int    `mapstructure:"flood_requests" validate:"required,min=1,max=100000"`
	FloodRate      int    `mapstructure:"flood_rate" validate:"required,min=1,max=1000"`
	TargetEndpoint string `mapstructure:"target_endpoint" validate:"required"`
	LimitConfigURL string `mapstructure:"limit_config_url" validate:"required"`
}

// limitConfig is the admin payload read/written against LimitConfigURL.
type limitConfig struct {
	MaxRequests   int `json:"max_requests"`
	WindowSeconds int `json:"window_seconds"`
}

// ResourceKey implements registry.ResourceKeyed: only one rate_limit
// attack may be floodin a given target endpoint at a time.
func (p Params) ResourceKey() string { return "ratelimit:" + p.TargetEndpoint }

// Module implements registry.Module for rate_limit. It has no owned
// resources — the whole scenario (back up, corrupt, flood, restore) runs
// to completion inside Inject, so the attack is self-terminating.
type Module struct {
	HTTP *httpadapter.Client
}

// Kind implements registry.Module.
func (Module) Kind() registry.Kind { return registry.KindRateLimit }

// Validate implements registry.Module.
func (Module) Validate(rawParams map[string]any) (any, error) {
	var p Params
	if err := faultutil.Decode(rawParams, &p); err != nil {
		return nil, err
	}
	return p, nil
}

type emptyOwned struct{}

func (emptyOwned) Empty() bool { return true }

// Inject backs up the current limit config, writes a restrictive one,
// floods target_endpoint, classifies responses, restores the backed-up
// config, and returns flood statistics plus a verification verdict.
func (m Module) Inject(ctx context.Context, params any) (registry.OwnedResources, registry.Result, error) {
	p := params.(Params)

	original, err := m.readLimitConfig(ctx, p.LimitConfigURL)
	if err != nil {
		return nil, registry.Result{}, fmt.Errorf("back up limit config: %w", err)
	}

	restrictive := limitConfig{MaxRequests: p.MaxRequests, WindowSeconds: p.WindowSeconds}
	if err := m.writeLimitConfig(ctx, p.LimitConfigURL, restrictive); err != nil {
		return nil, registry.Result{}, fmt.Errorf("set restrictive limit config: %w", err)
	}

	flood, floodErr := m.HTTP.Flood(ctx, p.TargetEndpoint, p.FloodRequests, p.FloodRate, floodRequestTimeout)

	restoreErr := m.writeLimitConfig(ctx, p.LimitConfigURL, original)

	expected := expectedRateLimited(p)
	verified := withinTolerance(flood.RateLimited, expected)

	result := registry.Result{
		TwoXX:       flood.TwoXX,
		RateLimited: flood.RateLimited,
		Errors:      flood.Errors,
		Detail: map[string]string{
			"verified":          fmt.Sprintf("%t", verified),
			"expected_blocked":  fmt.Sprintf("%d", expected),
			"observed_blocked":  fmt.Sprintf("%d", flood.RateLimited),
		},
	}

	if floodErr != nil {
		result.Detail["flood_error"] = floodErr.Error()
	}
	if restoreErr != nil {
		result.Detail["restore_error"] = restoreErr.Error()
	}

	return emptyOwned{}, result, floodErr
}

// expectedRateLimited estimates how many of the flood's requests should
// have been rejected: every request beyond MaxRequests, as if the whole
// flood landed inside one window. The window length and flood rate are
// not taken into account.
func expectedRateLimited(p Params) int {
	allowed := p.MaxRequests
	if allowed > p.FloodRequests {
		allowed = p.FloodRequests
	}
	expected := p.FloodRequests - allowed
	if expected < 0 {
		expected = 0
	}
	return expected
}

// withinTolerance accepts an observed blocked count no more than 20% (at
// least 1) below the expected count; any count above it is accepted, a
// lower-bound check in line with spec.md §8 S4.
func withinTolerance(observed, expected int) bool {
	tolerance := expected / 5
	if tolerance < 1 {
		tolerance = 1
	}
	return observed >= expected-tolerance
}

// Observe is never called: self-terminating kinds like rate_limit
// transition straight to completed once Inject returns.
func (Module) Observe(ctx context.Context, resources registry.OwnedResources) (registry.Result, error) {
	return registry.Result{}, nil
}

// Rollback is a safety-net no-op: Inject already restores the prior
// limit config itself before returning.
func (Module) Rollback(ctx context.Context, resources registry.OwnedResources, force bool) error {
	return nil
}

func (m Module) readLimitConfig(ctx context.Context, url string) (limitConfig, error) {
	_, body, err := m.HTTP.Get(ctx, url)
	if err != nil {
		return limitConfig{}, err
	}
	var cfg limitConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return limitConfig{}, fmt.Errorf("parse limit config: %w", err)
	}
	return cfg, nil
}

func (m Module) writeLimitConfig(ctx context.Context, url string, cfg limitConfig) error {
	body, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode limit config: %w", err)
	}
	_, _, err = m.HTTP.Post(ctx, url, "application/json", body)
	return err
}

// Plan implements registry.Planner for the safety gate's dry-run preview.
func (Module) Plan(params any) registry.Plan {
	p := params.(Params)
	return registry.Plan{
		Description: fmt.Sprintf("set limit to %d/%ds on %s, flood with %d requests at %d/s", p.MaxRequests, p.WindowSeconds, p.TargetEndpoint, p.FloodRequests, p.FloodRate),
		Risk:        "medium",
		Detail: map[string]string{
			"target_endpoint": p.TargetEndpoint,
		},
	}
}
