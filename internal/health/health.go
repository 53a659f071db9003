// Package health aggregates liveness signals from the gate's dependencies
// (database, policy authority) for the /health endpoint. Checks are cheap
// probes, not diagnostics; anything slow belongs behind the caller's timeout.
package health

import (
	"context"
	"sync"
)

// Status is the outcome of one dependency probe.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker probes a single dependency. It must respect ctx.
type Checker func(ctx context.Context) Status

// Registry holds dependency checkers keyed by name. Registering the same
// name twice replaces the earlier checker; report order follows first
// registration.
type Registry struct {
	mu     sync.RWMutex
	checks map[string]Checker
	order  []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{checks: make(map[string]Checker)}
}

// Register adds or replaces the checker for name.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.checks[name]; !exists {
		r.order = append(r.order, name)
	}
	r.checks[name] = check
}

// CheckAll probes every dependency in registration order. The aggregate is
// healthy only when every probe is; an empty registry reports healthy.
func (r *Registry) CheckAll(ctx context.Context) (bool, []Status) {
	r.mu.RLock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	checks := make(map[string]Checker, len(r.checks))
	for name, check := range r.checks {
		checks[name] = check
	}
	r.mu.RUnlock()

	healthy := true
	statuses := make([]Status, 0, len(names))
	for _, name := range names {
		st := checks[name](ctx)
		if !st.Healthy {
			healthy = false
		}
		statuses = append(statuses, st)
	}
	return healthy, statuses
}
