// Package breaker implements agentcage's named circuit breakers on top of
// github.com/sony/gobreaker, grounded on jordigilh-kubernaut's integration
// wiring of gobreaker.Settings with ReadyToTrip/OnStateChange callbacks
// (test/integration/notification/suite_test.go), adapted to expose the
// spec's named fields (rolling failure timestamps, totalTrips, trippedAt)
// alongside gobreaker's own state machine.
package breaker

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/cuemby/agentcage/pkg/idgen"
	"github.com/cuemby/agentcage/pkg/metrics"
	"github.com/cuemby/agentcage/pkg/types"
)

// Breaker wraps a gobreaker.CircuitBreaker, translating its generic
// closed/open/half-open machine into agentcage's domain view.
type Breaker struct {
	name     string
	settings types.BreakerSettings
	clock    idgen.Clock

	mu                sync.Mutex
	cb                *gobreaker.CircuitBreaker
	failureTimestamps []time.Time
	successCount      int
	totalTrips        int
	trippedAt         time.Time
}

// New returns a named Breaker configured from settings.
func New(name string, settings types.BreakerSettings, clock idgen.Clock) *Breaker {
	if clock == nil {
		clock = idgen.SystemClock{}
	}
	b := &Breaker{name: name, settings: settings, clock: clock}
	b.cb = b.newGobreaker()
	return b
}

func (b *Breaker) newGobreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        b.name,
		MaxRequests: uint32(b.settings.HalfOpenMaxAttempts),
		Interval:    b.settings.MonitorWindow,
		Timeout:     b.settings.ResetTimeout,
		// gobreaker's own Counts.ConsecutiveFailures resets on any
		// interleaved success, which would miss the spec's windowed trip
		// condition (fail/success/fail/success/fail still trips at
		// threshold 3). Drive the decision off our own pruned,
		// timestamp-windowed failure count instead; recordOutcome has
		// already appended and pruned it by the time this runs, since it
		// executes inside the same Execute call as the failing fn.
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			b.mu.Lock()
			defer b.mu.Unlock()
			return len(b.failureTimestamps) >= b.settings.FailureThreshold
		},
		OnStateChange: b.onStateChange,
	})
}

func (b *Breaker) onStateChange(name string, from, to gobreaker.State) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch to {
	case gobreaker.StateOpen:
		b.totalTrips++
		b.trippedAt = b.clock.Now()
		b.successCount = 0
		metrics.CircuitBreakerTripsTotal.WithLabelValues(name).Inc()
	case gobreaker.StateClosed:
		b.failureTimestamps = nil
		b.successCount = 0
	case gobreaker.StateHalfOpen:
		b.successCount = 0
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(gaugeValue(to))
}

func gaugeValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// State returns the breaker's current observable state. Reading state is
// itself the "next query" that lazily advances open -> half-open once
// resetTimeoutMs has elapsed, per gobreaker's own semantics.
func (b *Breaker) State() types.BreakerState {
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return types.BreakerOpen
	case gobreaker.StateHalfOpen:
		return types.BreakerHalfOpen
	default:
		return types.BreakerClosed
	}
}

// Execute runs fn if the breaker permits it, recording the outcome.
// Rejected calls return types.ErrCircuitOpen.
func (b *Breaker) Execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(func() (any, error) {
		res, fnErr := fn()
		b.recordOutcome(fnErr)
		return res, fnErr
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, types.ErrCircuitOpen
	}
	return result, err
}

func (b *Breaker) recordOutcome(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clock.Now()
	if err != nil {
		b.failureTimestamps = append(b.failureTimestamps, now)
		b.pruneLocked(now)
		return
	}
	b.successCount++
}

func (b *Breaker) pruneLocked(now time.Time) {
	if b.settings.MonitorWindow <= 0 {
		return
	}
	cutoff := now.Add(-b.settings.MonitorWindow)
	kept := b.failureTimestamps[:0]
	for _, ts := range b.failureTimestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	b.failureTimestamps = kept
}

// Snapshot returns a point-in-time read of the breaker's domain state.
func (b *Breaker) Snapshot() types.BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	ts := make([]time.Time, len(b.failureTimestamps))
	copy(ts, b.failureTimestamps)
	return types.BreakerSnapshot{
		Name:              b.name,
		State:             b.State(),
		FailureTimestamps: ts,
		SuccessCount:      b.successCount,
		TotalTrips:        b.totalTrips,
		TrippedAt:         b.trippedAt,
	}
}

// Reset forces the breaker closed and clears all counters, replacing the
// underlying gobreaker instance.
func (b *Breaker) Reset() {
	b.mu.Lock()
	b.failureTimestamps = nil
	b.successCount = 0
	b.trippedAt = time.Time{}
	b.mu.Unlock()
	b.cb = b.newGobreaker()
}

// Manager owns a registry of named breakers.
type Manager struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	clock    idgen.Clock
}

// NewManager returns an empty breaker Manager.
func NewManager(clock idgen.Clock) *Manager {
	if clock == nil {
		clock = idgen.SystemClock{}
	}
	return &Manager{breakers: make(map[string]*Breaker), clock: clock}
}

// GetOrCreate returns the named breaker, creating it with settings on
// first use.
func (m *Manager) GetOrCreate(name string, settings types.BreakerSettings) *Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[name]; ok {
		return b
	}
	b := New(name, settings, m.clock)
	m.breakers[name] = b
	return b
}

// Get returns the named breaker if it exists.
func (m *Manager) Get(name string) (*Breaker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.breakers[name]
	return b, ok
}

// All returns every registered breaker's current snapshot.
func (m *Manager) All() []types.BreakerSnapshot {
	m.mu.Lock()
	names := make([]string, 0, len(m.breakers))
	for n := range m.breakers {
		names = append(names, n)
	}
	breakers := m.breakers
	m.mu.Unlock()

	out := make([]types.BreakerSnapshot, 0, len(names))
	for _, n := range names {
		out = append(out, breakers[n].Snapshot())
	}
	return out
}
