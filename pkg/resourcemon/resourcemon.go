// Package resourcemon tracks rolling per-sandbox resource usage snapshots
// and fans out threshold alerts, grounded on the teacher's component
// registry style in pkg/metrics/health.go.
package resourcemon

import (
	"sync"

	"github.com/cuemby/agentcage/pkg/idgen"
	"github.com/cuemby/agentcage/pkg/metrics"
	"github.com/cuemby/agentcage/pkg/types"
)

// DefaultBufferSize bounds the rolling snapshot buffer per sandbox.
const DefaultBufferSize = 120

const (
	warningRatio  = 0.80
	criticalRatio = 0.95
)

type sandboxState struct {
	snapshots []types.ResourceSnapshot
	threshold *types.ResourceThreshold
}

// Monitor owns rolling snapshot buffers and thresholds for every
// monitored sandbox.
type Monitor struct {
	mu         sync.Mutex
	bufferSize int
	sandboxes  map[string]*sandboxState
	listeners  []func(types.ResourceAlert)
}

// NewMonitor returns an empty Monitor with the given rolling buffer size
// (DefaultBufferSize if 0).
func NewMonitor(bufferSize int) *Monitor {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Monitor{bufferSize: bufferSize, sandboxes: make(map[string]*sandboxState)}
}

// SetThreshold configures (or clears, with nil) the alert threshold for a
// sandbox.
func (m *Monitor) SetThreshold(sandboxID string, threshold *types.ResourceThreshold) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state(sandboxID)
	st.threshold = threshold
}

func (m *Monitor) state(sandboxID string) *sandboxState {
	st, ok := m.sandboxes[sandboxID]
	if !ok {
		st = &sandboxState{}
		m.sandboxes[sandboxID] = st
	}
	return st
}

// RecordSnapshot pushes a new snapshot, trims the rolling buffer, and
// emits any threshold alerts triggered by the update.
func (m *Monitor) RecordSnapshot(snap types.ResourceSnapshot) []types.ResourceAlert {
	m.mu.Lock()
	st := m.state(snap.SandboxID)
	st.snapshots = append(st.snapshots, snap)
	if len(st.snapshots) > m.bufferSize {
		st.snapshots = st.snapshots[len(st.snapshots)-m.bufferSize:]
	}
	threshold := st.threshold
	m.mu.Unlock()

	if threshold == nil {
		return nil
	}

	var alerts []types.ResourceAlert
	metricsToCheck := []struct {
		name    string
		current int
		limit   int
	}{
		{"cpu_millicores", snap.CPUMillicores, threshold.CPUMillicores},
		{"memory_mb", snap.MemoryMB, threshold.MemoryMB},
		{"disk_mb", snap.DiskMB, threshold.DiskMB},
	}

	for _, mc := range metricsToCheck {
		if mc.limit <= 0 {
			continue
		}
		ratio := float64(mc.current) / float64(mc.limit)
		var severity types.AlertSeverity
		switch {
		case ratio >= criticalRatio:
			severity = types.SeverityCritical
		case ratio >= warningRatio:
			severity = types.SeverityWarning
		default:
			continue
		}
		alert := types.ResourceAlert{
			SandboxID: snap.SandboxID,
			Metric:    mc.name,
			Current:   mc.current,
			Threshold: mc.limit,
			Severity:  severity,
			Timestamp: snap.Timestamp,
		}
		alerts = append(alerts, alert)
		metrics.ResourceAlertsTotal.WithLabelValues(mc.name, string(severity)).Inc()
	}

	m.mu.Lock()
	listeners := make([]func(types.ResourceAlert), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, alert := range alerts {
		for _, l := range listeners {
			if l != nil {
				l(alert)
			}
		}
	}
	return alerts
}

// GetSnapshots returns the newest n snapshots for a sandbox (all if n<=0
// or n exceeds the buffer).
func (m *Monitor) GetSnapshots(sandboxID string, n int) []types.ResourceSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sandboxes[sandboxID]
	if !ok {
		return nil
	}
	all := st.snapshots
	if n <= 0 || n >= len(all) {
		out := make([]types.ResourceSnapshot, len(all))
		copy(out, all)
		return out
	}
	out := make([]types.ResourceSnapshot, n)
	copy(out, all[len(all)-n:])
	return out
}

// Average and Peak compute over the sandbox's current snapshot buffer.
func (m *Monitor) Average(sandboxID string) types.ResourceSnapshot {
	snaps := m.GetSnapshots(sandboxID, 0)
	if len(snaps) == 0 {
		return types.ResourceSnapshot{SandboxID: sandboxID}
	}
	var cpu, mem, disk int
	for _, s := range snaps {
		cpu += s.CPUMillicores
		mem += s.MemoryMB
		disk += s.DiskMB
	}
	n := len(snaps)
	return types.ResourceSnapshot{
		SandboxID:     sandboxID,
		CPUMillicores: cpu / n,
		MemoryMB:      mem / n,
		DiskMB:        disk / n,
		Timestamp:     snaps[n-1].Timestamp,
	}
}

func (m *Monitor) Peak(sandboxID string) types.ResourceSnapshot {
	snaps := m.GetSnapshots(sandboxID, 0)
	peak := types.ResourceSnapshot{SandboxID: sandboxID}
	for _, s := range snaps {
		if s.CPUMillicores > peak.CPUMillicores {
			peak.CPUMillicores = s.CPUMillicores
		}
		if s.MemoryMB > peak.MemoryMB {
			peak.MemoryMB = s.MemoryMB
		}
		if s.DiskMB > peak.DiskMB {
			peak.DiskMB = s.DiskMB
		}
	}
	return peak
}

// RemoveSandbox clears both snapshots and threshold for a sandbox.
func (m *Monitor) RemoveSandbox(sandboxID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sandboxes, sandboxID)
}

// GetAggregatedMetrics sums the latest snapshot per sandbox.
func (m *Monitor) GetAggregatedMetrics() types.AggregatedMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	var agg types.AggregatedMetrics
	for _, st := range m.sandboxes {
		if len(st.snapshots) == 0 {
			continue
		}
		latest := st.snapshots[len(st.snapshots)-1]
		agg.TotalCPUMillicores += latest.CPUMillicores
		agg.TotalMemoryMB += latest.MemoryMB
		agg.TotalDiskMB += latest.DiskMB
		agg.SandboxCount++
	}
	return agg
}

// Subscribe registers an alert listener and returns an idempotent
// unsubscribe function.
func (m *Monitor) Subscribe(fn func(types.ResourceAlert)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := len(m.listeners)
	m.listeners = append(m.listeners, fn)
	unsubscribed := false
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if unsubscribed || idx >= len(m.listeners) {
			return
		}
		m.listeners[idx] = nil
		unsubscribed = true
	}
}
