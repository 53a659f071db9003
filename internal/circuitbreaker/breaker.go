// Package circuitbreaker guards the gate's outbound calls, most importantly
// the policy webhook: a run of consecutive failures opens the circuit so
// callers fail fast into the degraded decision, and one probe is admitted
// once the cooldown expires.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// State of one circuit.
type State int

const (
	StateClosed   State = iota // calls flow normally
	StateOpen                  // failing fast until the cooldown expires
	StateHalfOpen              // a single probe is in flight
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return "unknown"
}

var stateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "paypilot",
	Subsystem: "circuitbreaker",
	Name:      "state_transitions_total",
	Help:      "Circuit breaker state transitions by key, from-state, and to-state.",
}, []string{"key", "from_state", "to_state"})

func init() {
	prometheus.MustRegister(stateTransitions)
}

// circuit is the state for a single key.
type circuit struct {
	state       State
	failures    int
	lastFailure time.Time
}

// Breaker keeps one circuit per key, so a failing policy webhook cannot trip
// calls guarded under other keys.
type Breaker struct {
	mu       sync.Mutex
	circuits map[string]*circuit
	trip     int           // consecutive failures that open a circuit
	cooldown time.Duration // time spent open before a probe is allowed
}

// New creates a breaker that opens a circuit after trip consecutive failures
// and holds it open for cooldown before probing.
func New(trip int, cooldown time.Duration) *Breaker {
	if trip <= 0 {
		trip = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		circuits: make(map[string]*circuit),
		trip:     trip,
		cooldown: cooldown,
	}
}

// Allow reports whether a call under key may proceed. An open circuit whose
// cooldown has elapsed moves to half-open and admits exactly one probe.
func (b *Breaker) Allow(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok {
		return true // untouched keys are closed
	}

	switch c.state {
	case StateOpen:
		if time.Since(c.lastFailure) < b.cooldown {
			return false
		}
		b.moveTo(c, key, StateHalfOpen)
		return true
	case StateHalfOpen:
		return false // probe already in flight
	}
	return true
}

// RecordSuccess ends the failure run for key; a successful probe closes the
// circuit again.
func (b *Breaker) RecordSuccess(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok {
		return
	}
	if c.state == StateHalfOpen {
		b.moveTo(c, key, StateClosed)
	}
	c.failures = 0
}

// RecordFailure extends the failure run for key. The circuit opens once the
// run reaches the trip threshold; a failed probe reopens it immediately.
func (b *Breaker) RecordFailure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok {
		c = &circuit{}
		b.circuits[key] = c
	}

	c.failures++
	c.lastFailure = time.Now()

	switch {
	case c.state == StateHalfOpen:
		b.moveTo(c, key, StateOpen)
	case c.state == StateClosed && c.failures >= b.trip:
		b.moveTo(c, key, StateOpen)
	}
}

// State returns the circuit state for key. Unknown keys are closed.
func (b *Breaker) State(key string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.circuits[key]; ok {
		return c.state
	}
	return StateClosed
}

// moveTo records the transition metric and applies the new state.
// Caller holds b.mu.
func (b *Breaker) moveTo(c *circuit, key string, to State) {
	if c.state == to {
		return
	}
	stateTransitions.WithLabelValues(key, c.state.String(), to.String()).Inc()
	c.state = to
}
