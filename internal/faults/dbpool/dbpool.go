// Package dbpool implements the DB Pool Exhaustion fault (spec.md
// §4.2.a): open N direct connections and/or drive N concurrent hits
// against the target's hold endpoint, each occupying a pooled connection
// for hold_seconds.
package dbpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chaoslab/faultplane/internal/adapters/dbadapter"
	"github.com/chaoslab/faultplane/internal/adapters/httpadapter"
	"github.com/chaoslab/faultplane/internal/faults/faultutil"
	"github.com/chaoslab/faultplane/internal/registry"
)

// Params are the validated inputs for a db_pool attack.
type Params struct {
	Connections int `mapstructure:"connections" validate:"required,min=1,max=500"`
	HoldSeconds int `mapstructure:"hold_seconds" validate:"required,min=1,max=600"`
	// HoldEndpoint, when set, drives HTTP hits against a target endpoint
	// that itself occupies a pooled DB connection; when empty, this
	// module opens direct connections instead.
	HoldEndpoint string `mapstructure:"hold_endpoint"`
}

// Duration implements registry.Durationed: the registry arms its rollback
// timer for hold_seconds so the held connections are always released even
// if the operator never calls stop.
func (p Params) Duration() time.Duration {
	return time.Duration(p.HoldSeconds) * time.Second
}

// ResourceKey implements registry.ResourceKeyed: a db_pool attack claims
// the whole target database, so a second destructive attack against it
// (another db_pool, or a long_transaction) cannot start concurrently.
func (p Params) ResourceKey() string { return "db" }

// owned tracks the connections (or in-flight HTTP holds) this attack owns.
type owned struct {
	mu      sync.Mutex
	conns   []*dbadapter.ScopedConn
	cancels []context.CancelFunc
}

func (o *owned) Empty() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.conns) == 0 && len(o.cancels) == 0
}

func (o *owned) activeCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.conns) + len(o.cancels)
}

// Module implements registry.Module for db_pool.
type Module struct {
	DB   *dbadapter.Pool
	HTTP *httpadapter.Client
}

// Kind implements registry.Module.
func (Module) Kind() registry.Kind { return registry.KindDBPool }

// Validate implements registry.Module.
func (Module) Validate(rawParams map[string]any) (any, error) {
	var p Params
	if err := faultutil.Decode(rawParams, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// Inject opens Connections direct connections or HTTP holds and returns
// immediately; the registry's rollback timer (armed from Duration())
// releases them after HoldSeconds unless an operator stops the attack
// sooner.
func (m Module) Inject(ctx context.Context, params any) (registry.OwnedResources, registry.Result, error) {
	p := params.(Params)
	o := &owned{}

	if p.HoldEndpoint != "" {
		m.injectHTTPHolds(ctx, p, o)
	} else {
		if err := m.injectDirectConns(ctx, p, o); err != nil {
			m.release(o)
			return o, registry.Result{}, err
		}
	}

	return o, registry.Result{BlockedCount: o.activeCount()}, nil
}

func (m Module) injectDirectConns(ctx context.Context, p Params, o *owned) error {
	for i := 0; i < p.Connections; i++ {
		conn, err := m.DB.OpenScoped(ctx)
		if err != nil {
			return fmt.Errorf("open connection %d/%d: %w", i+1, p.Connections, err)
		}
		o.mu.Lock()
		o.conns = append(o.conns, conn)
		o.mu.Unlock()
	}
	return nil
}

// injectHTTPHolds fires Connections concurrent requests against
// HoldEndpoint, each expected to occupy a pooled connection on the target
// until it responds; the requests are cancelled on Rollback.
func (m Module) injectHTTPHolds(ctx context.Context, p Params, o *owned) {
	for i := 0; i < p.Connections; i++ {
		reqCtx, cancel := context.WithCancel(ctx)
		o.mu.Lock()
		o.cancels = append(o.cancels, cancel)
		o.mu.Unlock()

		go func() {
			_, _, _ = m.HTTP.Get(reqCtx, p.HoldEndpoint)
		}()
	}
}

// Observe reports how many direct connections and HTTP holds this attack
// still owns. An HTTP hold whose request has already returned stays
// counted until Rollback; the count does not track holds still in flight.
func (Module) Observe(ctx context.Context, resources registry.OwnedResources) (registry.Result, error) {
	o, ok := resources.(*owned)
	if !ok {
		return registry.Result{}, nil
	}
	return registry.Result{BlockedCount: o.activeCount()}, nil
}

// Rollback releases any still-open connections and cancels any in-flight
// holds. Idempotent.
func (m Module) Rollback(ctx context.Context, resources registry.OwnedResources, force bool) error {
	o, ok := resources.(*owned)
	if !ok {
		return nil
	}
	m.release(o)
	return nil
}

func (m Module) release(o *owned) {
	o.mu.Lock()
	conns := o.conns
	o.conns = nil
	cancels := o.cancels
	o.cancels = nil
	o.mu.Unlock()

	for _, c := range conns {
		c.Release()
	}
	for _, cancel := range cancels {
		cancel()
	}
}
