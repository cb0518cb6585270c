// Package isolation manages per-sandbox namespace and capability contexts
// derived from a fixed isolation-tier table, grounded on the teacher's
// constructor-plus-queryable-state pattern in pkg/security/ca.go and the
// listener-set idiom from pkg/events/events.go.
package isolation

import (
	"sort"
	"sync"

	"github.com/cuemby/agentcage/pkg/idgen"
	"github.com/cuemby/agentcage/pkg/metrics"
	"github.com/cuemby/agentcage/pkg/types"
)

var allNamespaces = []string{"pid", "net", "ipc", "mnt", "uts", "user", "cgroup"}

var allCapabilities = []string{
	"CAP_CHOWN", "CAP_NET_RAW", "CAP_SYS_ADMIN", "CAP_SYS_PTRACE",
	"CAP_NET_BIND_SERVICE", "CAP_SETUID", "CAP_SETGID",
}

// tierTable maps each tier to its namespaces and allowed capabilities.
// Invariant enforced by construction: higher tier's namespaces are a
// superset of every lower tier's, and its capabilities are a subset.
var tierTable = map[types.IsolationTier]struct {
	namespaces   []string
	capabilities []string
}{
	types.TierNone:      {namespaces: nil, capabilities: allCapabilities},
	types.TierProcess:   {namespaces: []string{"pid"}, capabilities: []string{"CAP_CHOWN", "CAP_NET_BIND_SERVICE", "CAP_SETUID", "CAP_SETGID"}},
	types.TierNamespace: {namespaces: []string{"pid", "net", "ipc"}, capabilities: []string{"CAP_CHOWN", "CAP_NET_BIND_SERVICE"}},
	types.TierVM:        {namespaces: []string{"pid", "net", "ipc", "mnt"}, capabilities: []string{"CAP_CHOWN"}},
	types.TierUltra:     {namespaces: allNamespaces, capabilities: nil},
}

func setOf(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, i := range items {
		m[i] = true
	}
	return m
}

// NamespacesForTier returns the namespace set a tier enables.
func NamespacesForTier(t types.IsolationTier) map[string]bool {
	return setOf(tierTable[t].namespaces)
}

// CapabilitiesForTier returns the capability set a tier allows.
func CapabilitiesForTier(t types.IsolationTier) map[string]bool {
	return setOf(tierTable[t].capabilities)
}

func severityForTier(t types.IsolationTier) string {
	switch t {
	case types.TierUltra:
		return "critical"
	case types.TierVM:
		return "high"
	case types.TierNamespace:
		return "medium"
	case types.TierProcess:
		return "low"
	default:
		return "info"
	}
}

// Manager owns isolation contexts keyed by sandbox id.
type Manager struct {
	mu         sync.Mutex
	contexts   map[string]*types.IsolationContext
	violations []types.IsolationViolation
	listeners  []func(types.IsolationViolation)
	clock      idgen.Clock
}

// NewManager returns an empty Manager.
func NewManager(clock idgen.Clock) *Manager {
	if clock == nil {
		clock = idgen.SystemClock{}
	}
	return &Manager{contexts: make(map[string]*types.IsolationContext), clock: clock}
}

// CreateContext is idempotent in id: a second call for the same sandbox
// returns the existing context unchanged, ignoring the tier argument.
func (m *Manager) CreateContext(sandboxID string, tier types.IsolationTier) *types.IsolationContext {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.contexts[sandboxID]; ok {
		return existing
	}

	ctx := &types.IsolationContext{
		SandboxID:    sandboxID,
		Tier:         tier,
		Namespaces:   NamespacesForTier(tier),
		Capabilities: CapabilitiesForTier(tier),
		State:        "active",
	}
	m.contexts[sandboxID] = ctx
	return ctx
}

// RemoveContext releases the context, used on sandbox termination.
func (m *Manager) RemoveContext(sandboxID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.contexts, sandboxID)
}

// EnforceCapability returns true iff cap is allowed and the context is
// active; otherwise it records a violation and returns false.
func (m *Manager) EnforceCapability(sandboxID, cap, reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, ok := m.contexts[sandboxID]
	if !ok || ctx.State == "suspended" || !ctx.Capabilities[cap] {
		severity := "info"
		if ok {
			severity = severityForTier(ctx.Tier)
		}
		v := types.IsolationViolation{
			SandboxID:  sandboxID,
			Capability: cap,
			Reason:     reason,
			Timestamp:  m.clock.Now(),
			Severity:   severity,
		}
		m.violations = append(m.violations, v)
		metrics.CapabilityViolationsTotal.WithLabelValues(severity).Inc()
		for _, l := range m.listeners {
			if l != nil {
				l(v)
			}
		}
		return false
	}
	return true
}

// SuspendContext / ResumeContext flip a context between active and
// suspended; capability enforcement always fails while suspended.
func (m *Manager) SuspendContext(sandboxID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx, ok := m.contexts[sandboxID]; ok {
		ctx.State = "suspended"
	}
}

func (m *Manager) ResumeContext(sandboxID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx, ok := m.contexts[sandboxID]; ok {
		ctx.State = "active"
	}
}

// Violations returns all recorded violations, newest first.
func (m *Manager) Violations() []types.IsolationViolation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.IsolationViolation, len(m.violations))
	copy(out, m.violations)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// Subscribe registers a violation listener and returns an idempotent
// unsubscribe function.
func (m *Manager) Subscribe(fn func(types.IsolationViolation)) func() {
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
