package registry

import "context"

// Module is the uniform contract every fault package under
// internal/faults implements (spec.md §4.2).
type Module interface {
	// Kind identifies which fault this module implements.
	Kind() Kind
	// Validate parses and bounds-checks raw request params, returning a
	// typed value this module's Inject/Observe/Rollback understand.
	Validate(params map[string]any) (any, error)
	// Inject starts the fault against the target, returning the resources
	// it now owns and an initial observation.
	Inject(ctx context.Context, params any) (OwnedResources, Result, error)
	// Observe refreshes a running attack's Result from its owned resources.
	Observe(ctx context.Context, owned OwnedResources) (Result, error)
	// Rollback releases owned resources, restoring the target to its
	// pre-attack state. force escalates to hard termination when the
	// graceful path doesn't complete in time.
	Rollback(ctx context.Context, owned OwnedResources, force bool) error
}

// Plan describes what Inject would do without doing it, returned by a
// Module that implements Planner for the Safety Gate's dry-run preview.
type Plan struct {
	Description string            `json:"description"`
	Risk        string            `json:"risk"` // "low", "medium", "high"
	Detail      map[string]string `json:"detail,omitempty"`
}

// Planner is implemented by fault modules to support dry-run previews.
type Planner interface {
	Plan(params any) Plan
}
