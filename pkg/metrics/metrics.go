package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Sandbox lifecycle metrics
	SandboxesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentcage_sandboxes_total",
			Help: "Total number of sandboxes by backend and lifecycle state",
		},
		[]string{"backend", "state"},
	)

	SandboxSpawnDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agentcage_sandbox_spawn_duration_seconds",
			Help:    "Time taken to spawn a sandbox, from spec to running",
			Buckets: prometheus.DefBuckets,
		},
	)

	SandboxTerminateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agentcage_sandbox_terminate_duration_seconds",
			Help:    "Time taken to terminate a sandbox",
			Buckets: prometheus.DefBuckets,
		},
	)

	TasksExecutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentcage_tasks_executed_total",
			Help: "Total number of tasks executed by sandboxes, by outcome",
		},
		[]string{"success"},
	)

	TaskExecuteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agentcage_task_execute_duration_seconds",
			Help:    "Time taken to execute a task over the VSOCK channel",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Isolation / capability metrics
	CapabilityViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentcage_capability_violations_total",
			Help: "Total number of capability enforcement violations by severity",
		},
		[]string{"severity"},
	)

	// Network policy metrics
	PolicyDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentcage_policy_decisions_total",
			Help: "Total number of network policy decisions by action",
		},
		[]string{"action"},
	)

	// Resource monitor metrics
	ResourceAlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentcage_resource_alerts_total",
			Help: "Total number of resource threshold alerts by metric and severity",
		},
		[]string{"metric", "severity"},
	)

	// Audit trail metrics
	AuditEntriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agentcage_audit_entries_total",
			Help: "Total number of audit log entries appended",
		},
	)

	AuditIntegrityFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agentcage_audit_integrity_failures_total",
			Help: "Total number of audit chain integrity verification failures",
		},
	)

	// Circuit breaker metrics
	CircuitBreakerTripsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentcage_circuit_breaker_trips_total",
			Help: "Total number of circuit breaker trips by breaker name",
		},
		[]string{"breaker"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentcage_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"breaker"},
	)

	// Recovery orchestrator metrics
	RecoveryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentcage_recovery_attempts_total",
			Help: "Total number of recovery strategy attempts by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	// Offline engine metrics
	SyncQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentcage_sync_queue_depth",
			Help: "Current number of pending/retrying sync queue entries",
		},
	)

	SyncFlushTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentcage_sync_flush_total",
			Help: "Total number of sync queue flush outcomes",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		SandboxesTotal,
		SandboxSpawnDuration,
		SandboxTerminateDuration,
		TasksExecutedTotal,
		TaskExecuteDuration,
		CapabilityViolationsTotal,
		PolicyDecisionsTotal,
		ResourceAlertsTotal,
		AuditEntriesTotal,
		AuditIntegrityFailuresTotal,
		CircuitBreakerTripsTotal,
		CircuitBreakerState,
		RecoveryAttemptsTotal,
		SyncQueueDepth,
		SyncFlushTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
