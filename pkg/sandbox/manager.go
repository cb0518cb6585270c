// Package sandbox implements agentcage's sandbox manager: the entry
// point for agent execution. It owns the sandbox registry, dispatches to
// backend providers, attaches isolation contexts, evaluates policy, and
// multiplexes tasks over a per-sandbox VSOCK channel, grounded on the
// teacher's pkg/manager/manager.go end-to-end (a struct holding every
// collaborator, NewManager wiring them together, and a graceful
// Shutdown() teardown sequence).
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/agentcage/pkg/idgen"
	"github.com/cuemby/agentcage/pkg/isolation"
	"github.com/cuemby/agentcage/pkg/log"
	"github.com/cuemby/agentcage/pkg/metrics"
	"github.com/cuemby/agentcage/pkg/netpolicy"
	"github.com/cuemby/agentcage/pkg/resourcemon"
	"github.com/cuemby/agentcage/pkg/types"
	"github.com/cuemby/agentcage/pkg/vsock"
)

// DefaultBootTimeout is used when a spec omits boot_timeout_ms.
const DefaultBootTimeout = 30 * time.Second

// DefaultTaskTimeout is used when a payload omits timeout_ms.
const DefaultTaskTimeout = 30 * time.Second

// ProviderFactory resolves a backend tag to a freshly constructed
// Provider for one sandbox.
type ProviderFactory func(types.Backend) (Provider, error)

// Config wires a Manager's collaborators.
type Config struct {
	MaxConcurrent   int
	Clock           idgen.Clock
	Isolation       *isolation.Manager
	NetPolicy       *netpolicy.Manager
	ResourceMon     *resourcemon.Monitor
	ProviderFactory ProviderFactory
}

// Manager owns the sandbox registry keyed by id and is the entry point
// for agent execution.
type Manager struct {
	mu            sync.Mutex
	initialized   bool
	maxConcurrent int
	clock         idgen.Clock

	instances map[string]*types.SandboxInstance
	providers map[string]Provider
	channels  map[string]*vsock.Channel
	policies  map[string]types.Policy
	listeners []func(types.Event)

	isolation   *isolation.Manager
	netpolicy   *netpolicy.Manager
	resourcemon *resourcemon.Monitor
	providerFor ProviderFactory
}

// NewManager returns an uninitialized Manager. Call Initialize before
// Spawn.
func NewManager(cfg Config) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = idgen.SystemClock{}
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 64
	}
	if cfg.ProviderFactory == nil {
		cfg.ProviderFactory = DefaultProviderFactory(cfg.Clock)
	}
	return &Manager{
		maxConcurrent: cfg.MaxConcurrent,
		clock:         cfg.Clock,
		instances:     make(map[string]*types.SandboxInstance),
		providers:     make(map[string]Provider),
		channels:      make(map[string]*vsock.Channel),
		policies:      make(map[string]types.Policy),
		isolation:     cfg.Isolation,
		netpolicy:     cfg.NetPolicy,
		resourcemon:   cfg.ResourceMon,
		providerFor:   cfg.ProviderFactory,
	}
}

// Initialize marks the manager ready to accept Spawn calls and emits a
// "ready" event.
func (m *Manager) Initialize() {
	m.mu.Lock()
	m.initialized = true
	m.mu.Unlock()
	m.emit(types.Event{Type: types.EventReady})
}

func (m *Manager) runningCount() int {
	n := 0
	for _, inst := range m.instances {
		if inst.IsNonTerminal() {
			n++
		}
	}
	return n
}

// Spawn creates and boots a sandbox from spec, returning its generated
// id. On provider failure the sandbox transitions to error and the id is
// still returned alongside the error so observers can see the failure.
func (m *Manager) Spawn(ctx context.Context, spec types.SandboxSpec) (string, error) {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return "", types.ErrNotInitialized
	}
	if m.runningCount() >= m.maxConcurrent {
		m.mu.Unlock()
		return "", types.ErrTooManySandboxes
	}

	id := idgen.SandboxID()
	inst := &types.SandboxInstance{
		ID:        id,
		Spec:      spec,
		State:     types.SandboxCreating,
		CreatedAt: m.clock.Now(),
	}
	m.instances[id] = inst
	metrics.SandboxesTotal.WithLabelValues(string(spec.Backend), string(types.SandboxCreating)).Inc()

	provider, err := m.providerFor(spec.Backend)
	m.mu.Unlock()

	if err != nil {
		m.mu.Lock()
		inst.State = types.SandboxError
		m.mu.Unlock()
		metrics.SandboxesTotal.WithLabelValues(string(spec.Backend), string(types.SandboxCreating)).Dec()
		metrics.SandboxesTotal.WithLabelValues(string(spec.Backend), string(types.SandboxError)).Inc()
		m.emit(types.Event{Type: types.EventError, SandboxID: id, Message: err.Error()})
		return id, err
	}

	timer := metrics.NewTimer()
	bootTimeout := time.Duration(spec.BootTimeoutMs) * time.Millisecond
	if bootTimeout <= 0 {
		bootTimeout = DefaultBootTimeout
	}
	bootCtx, cancel := context.WithTimeout(ctx, bootTimeout)
	bootErr := provider.Boot(bootCtx, spec)
	cancel()

	m.mu.Lock()
	metrics.SandboxesTotal.WithLabelValues(string(spec.Backend), string(types.SandboxCreating)).Dec()
	if bootErr != nil {
		inst.State = types.SandboxError
		m.providers[id] = provider
		m.mu.Unlock()
		metrics.SandboxesTotal.WithLabelValues(string(spec.Backend), string(types.SandboxError)).Inc()
		log.WithComponent("sandbox").Error().Err(bootErr).Str("sandbox_id", id).Msg("provider boot failed")
		m.emit(types.Event{Type: types.EventError, SandboxID: id, Message: bootErr.Error()})
		return id, bootErr
	}

	inst.State = types.SandboxRunning
	inst.StartedAt = m.clock.Now()
	m.providers[id] = provider

	ch := vsock.NewChannel()
	ch.OnPayload(provider.Execute)
	m.channels[id] = ch
	m.mu.Unlock()

	timer.ObserveDuration(metrics.SandboxSpawnDuration)
	metrics.SandboxesTotal.WithLabelValues(string(spec.Backend), string(types.SandboxRunning)).Inc()

	if m.isolation != nil {
		m.isolation.CreateContext(id, spec.IsolationLevel)
	}

	m.emit(types.Event{Type: types.EventSpawned, SandboxID: id, Fields: map[string]any{"backend": string(spec.Backend)}})
	return id, nil
}

func (m *Manager) get(id string) (*types.SandboxInstance, bool) {
	inst, ok := m.instances[id]
	return inst, ok
}

// Terminate stops a sandbox, releases its isolation context, resource
// snapshots, and per-sandbox network rules, and marks it stopped. The
// instance itself is retained in the registry for audit and stats.
func (m *Manager) Terminate(ctx context.Context, id string) error {
	m.mu.Lock()
	inst, ok := m.get(id)
	if !ok {
		m.mu.Unlock()
		return types.ErrNotFound
	}
	provider := m.providers[id]
	backend := inst.Spec.Backend
	m.mu.Unlock()

	timer := metrics.NewTimer()
	if provider != nil {
		if err := provider.Shutdown(ctx); err != nil {
			log.WithComponent("sandbox").Error().Err(err).Str("sandbox_id", id).Msg("provider shutdown failed")
		}
	}

	m.mu.Lock()
	prevState := inst.State
	inst.State = types.SandboxStopped
	inst.StoppedAt = m.clock.Now()
	delete(m.channels, id)
	m.mu.Unlock()
	timer.ObserveDuration(metrics.SandboxTerminateDuration)

	if m.resourcemon != nil {
		m.resourcemon.RemoveSandbox(id)
	}
	if m.isolation != nil {
		m.isolation.RemoveContext(id)
	}
	if m.netpolicy != nil {
		m.netpolicy.ClearRules(id)
	}

	metrics.SandboxesTotal.WithLabelValues(string(backend), string(prevState)).Dec()
	metrics.SandboxesTotal.WithLabelValues(string(backend), string(types.SandboxStopped)).Inc()

	m.emit(types.Event{Type: types.EventTerminated, SandboxID: id})
	return nil
}

// Pause transitions a running sandbox to paused.
func (m *Manager) Pause(ctx context.Context, id string) error {
	return m.toggle(ctx, id, types.SandboxRunning, types.SandboxPaused, types.EventPaused, func(p Provider) error { return p.Pause(ctx) }, func() {
		if m.isolation != nil {
			m.isolation.SuspendContext(id)
		}
	})
}

// Resume transitions a paused sandbox back to running.
func (m *Manager) Resume(ctx context.Context, id string) error {
	return m.toggle(ctx, id, types.SandboxPaused, types.SandboxRunning, types.EventResumed, func(p Provider) error { return p.Resume(ctx) }, func() {
		if m.isolation != nil {
			m.isolation.ResumeContext(id)
		}
	})
}

func (m *Manager) toggle(ctx context.Context, id string, from, to types.SandboxState, event string, call func(Provider) error, after func()) error {
	m.mu.Lock()
	inst, ok := m.get(id)
	if !ok {
		m.mu.Unlock()
		return types.ErrNotFound
	}
	if inst.State != from {
		m.mu.Unlock()
		return types.ErrInvalidTransition
	}
	provider := m.providers[id]
	m.mu.Unlock()

	if provider != nil {
		if err := call(provider); err != nil {
			return err
		}
	}

	m.mu.Lock()
	inst.State = to
	m.mu.Unlock()
	after()

	m.emit(types.Event{Type: event, SandboxID: id})
	return nil
}

func actionCapability(action string) string {
	switch action {
	case "network":
		return "CAP_NET_RAW"
	case "mount":
		return "CAP_SYS_ADMIN"
	case "ptrace":
		return "CAP_SYS_PTRACE"
	case "setuid":
		return "CAP_SETUID"
	case "setgid":
		return "CAP_SETGID"
	default:
		return "CAP_CHOWN"
	}
}

// intFromArg reads an int-like value out of a TaskPayload.Args entry. Args
// arriving over the wire are JSON-decoded into map[string]any, so numbers
// surface as float64; args built programmatically in-process may already be
// int.
func intFromArg(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	default:
		return 0
	}
}

// ExecuteTask enforces isolation, policy, and network rules, then
// dispatches payload over the sandbox's channel. Structural failures
// (unknown sandbox, wrong lifecycle state, policy denial) are returned
// as errors; once dispatched, every outcome — including a timeout — is
// folded into the returned TaskResult.
func (m *Manager) ExecuteTask(ctx context.Context, id string, payload types.TaskPayload) (types.TaskResult, error) {
	m.mu.Lock()
	inst, ok := m.get(id)
	if !ok {
		m.mu.Unlock()
		return types.TaskResult{}, types.ErrNotFound
	}
	if inst.State != types.SandboxRunning {
		m.mu.Unlock()
		return types.TaskResult{}, types.ErrInvalidTransition
	}
	ch := m.channels[id]
	m.mu.Unlock()

	if m.isolation != nil && !m.isolation.EnforceCapability(id, actionCapability(payload.Action), payload.Action) {
		return types.TaskResult{}, types.ErrPolicyDenied
	}

	if allowed, _ := m.EvaluatePolicy(payload.AgentID, payload.Action); !allowed {
		return types.TaskResult{}, types.ErrPolicyDenied
	}

	if host, hasHost := payload.Args["host"].(string); hasHost && m.netpolicy != nil {
		port := intFromArg(payload.Args["port"])
		decision := m.netpolicy.Evaluate(types.PacketIntent{
			SandboxID: id,
			Direction: types.DirectionEgress,
			Protocol:  types.ProtocolAny,
			Host:      host,
			Port:      port,
		})
		if !decision.Allowed {
			return types.TaskResult{}, types.ErrPolicyDenied
		}
	}

	timeout := time.Duration(payload.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}

	timer := metrics.NewTimer()
	result, err := ch.Execute(ctx, payload, timeout)
	timer.ObserveDuration(metrics.TaskExecuteDuration)
	if err != nil {
		result = types.TaskResult{TaskID: payload.TaskID, Success: false, Error: err.Error()}
	}

	metrics.TasksExecutedTotal.WithLabelValues(fmt.Sprintf("%t", result.Success)).Inc()
	m.emit(types.Event{Type: types.EventTaskExecuted, SandboxID: id, TaskID: payload.TaskID, Success: result.Success})
	return result, nil
}

// RegisterPolicy installs (overwriting) the policy for policy.AgentID.
func (m *Manager) RegisterPolicy(policy types.Policy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[policy.AgentID] = policy
}

// EvaluatePolicy reports whether agentID may perform op. With no policy
// registered, the default is deny. Deny wins over allow; unknown
// operations deny.
func (m *Manager) EvaluatePolicy(agentID, op string) (bool, string) {
	m.mu.Lock()
	policy, ok := m.policies[agentID]
	m.mu.Unlock()

	if !ok {
		return false, "no policy registered for agent"
	}
	for _, blocked := range policy.BlockedOperations {
		if blocked == op {
			return false, fmt.Sprintf("operation %q is blocked", op)
		}
	}
	for _, allowed := range policy.AllowedOperations {
		if allowed == op {
			return true, "operation allowed"
		}
	}
	return false, fmt.Sprintf("operation %q not in allowed list", op)
}

// VerifyCleanup reports whether id has been fully torn down: its state
// is stopped or destroyed and its provider reports no residual files.
func (m *Manager) VerifyCleanup(id string) (types.CleanupReport, error) {
	m.mu.Lock()
	inst, ok := m.get(id)
	if !ok {
		m.mu.Unlock()
		return types.CleanupReport{}, types.ErrNotFound
	}
	provider := m.providers[id]
	state := inst.State
	m.mu.Unlock()

	var residuals []string
	if provider != nil {
		residuals = provider.Residuals()
	}
	cleaned := (state == types.SandboxStopped || state == types.SandboxDestroyed) && len(residuals) == 0
	return types.CleanupReport{Cleaned: cleaned, ResidualFiles: residuals}, nil
}

// Get returns a copy of the sandbox instance for id.
func (m *Manager) Get(id string) (types.SandboxInstance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.get(id)
	if !ok {
		return types.SandboxInstance{}, false
	}
	return *inst, true
}

// List returns every sandbox instance currently in the registry.
func (m *Manager) List() []types.SandboxInstance {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.SandboxInstance, 0, len(m.instances))
	for _, inst := range m.instances {
		out = append(out, *inst)
	}
	return out
}

// Close terminates every non-terminal sandbox and detaches observers.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.instances))
	for id, inst := range m.instances {
		if inst.IsNonTerminal() {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := m.Terminate(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	m.mu.Lock()
	m.initialized = false
	m.listeners = nil
	m.mu.Unlock()
	return firstErr
}

// Subscribe registers an event listener and returns an idempotent
// unsubscribe function.
func (m *Manager) Subscribe(fn func(types.Event)) func() {
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

func (m *Manager) emit(ev types.Event) {
	ev.Timestamp = m.clock.Now()
	m.mu.Lock()
	listeners := make([]func(types.Event), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()
	for _, l := range listeners {
		if l != nil {
			l(ev)
		}
	}
}
