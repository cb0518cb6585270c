package types

import "time"

// BreakerState is the circuit breaker's externally observable state.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// BreakerSnapshot is a point-in-time read of a named breaker's state,
// exposed to callers and the observer bridge.
type BreakerSnapshot struct {
	Name              string       `json:"name"`
	State             BreakerState `json:"state"`
	FailureTimestamps []time.Time  `json:"failure_timestamps"`
	SuccessCount      int          `json:"success_count"`
	TotalTrips        int          `json:"total_trips"`
	TrippedAt         time.Time    `json:"tripped_at,omitempty"`
}

// BreakerSettings configures a named breaker instance.
type BreakerSettings struct {
	FailureThreshold    int
	MonitorWindow       time.Duration
	ResetTimeout        time.Duration
	HalfOpenMaxAttempts int
}

// DefaultBreakerSettings mirrors the reference defaults used across the
// recovery orchestrator's built-in strategies.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		FailureThreshold:    5,
		MonitorWindow:       60 * time.Second,
		ResetTimeout:        30 * time.Second,
		HalfOpenMaxAttempts: 2,
	}
}
