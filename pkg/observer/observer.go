// Package observer implements agentcage's observer and hypercore bridge:
// event subscription, derived fleet metrics, and an append-only mirror
// store, grounded on the teacher's Broker subscriber-map-plus-broadcast
// shape in pkg/events/events.go.
package observer

import (
	"sync"
	"time"

	"github.com/cuemby/agentcage/pkg/idgen"
	"github.com/cuemby/agentcage/pkg/types"
)

// ManagerSource is the subset of the sandbox manager the observer needs:
// something it can subscribe to for events.
type ManagerSource interface {
	Subscribe(fn func(types.Event)) func()
}

// DefaultRingSize bounds the observer's recent-events ring buffer.
const DefaultRingSize = 200

// Metrics is the observer's derived view of fleet health.
type Metrics struct {
	Spawned            int            `json:"spawned"`
	Terminated         int            `json:"terminated"`
	Running            int            `json:"running"`
	ProviderBreakdown  map[string]int `json:"provider_breakdown"`
	SecurityViolations int            `json:"security_violations"`
}

// Config tunes the observer's unhealthy-detection window.
type Config struct {
	RingSize           int
	UnhealthyThreshold int
	UnhealthyWindow    time.Duration
	Clock              idgen.Clock
}

// Observer attaches to one sandbox manager at a time, deriving rolling
// fleet metrics from its event stream.
type Observer struct {
	mu       sync.Mutex
	cfg      Config
	detach   func()
	spawned  int
	terminated int
	backend  map[string]string
	provider map[string]int
	violations int
	ring     []types.Event
	errorTs  []time.Time
}

// New returns an unattached Observer.
func New(cfg Config) *Observer {
	if cfg.RingSize <= 0 {
		cfg.RingSize = DefaultRingSize
	}
	if cfg.Clock == nil {
		cfg.Clock = idgen.SystemClock{}
	}
	return &Observer{
		cfg:      cfg,
		backend:  make(map[string]string),
		provider: make(map[string]int),
	}
}

// Attach subscribes to manager's event stream, detaching any previously
// attached manager first.
func (o *Observer) Attach(manager ManagerSource) {
	o.Detach()
	unsub := manager.Subscribe(o.onEvent)
	o.mu.Lock()
	o.detach = unsub
	o.mu.Unlock()
}

// Detach unsubscribes from the currently attached manager, if any.
func (o *Observer) Detach() {
	o.mu.Lock()
	detach := o.detach
	o.detach = nil
	o.mu.Unlock()
	if detach != nil {
		detach()
	}
}

func (o *Observer) onEvent(e types.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch e.Type {
	case types.EventSpawned:
		o.spawned++
		backend, _ := e.Fields["backend"].(string)
		o.backend[e.SandboxID] = backend
		if backend != "" {
			o.provider[backend]++
		}
	case types.EventTerminated:
		o.terminated++
		if backend, ok := o.backend[e.SandboxID]; ok {
			if backend != "" {
				o.provider[backend]--
			}
			delete(o.backend, e.SandboxID)
		}
	case types.EventError:
		now := o.cfg.Clock.Now()
		o.errorTs = append(o.errorTs, now)
		if o.cfg.UnhealthyWindow > 0 {
			cutoff := now.Add(-o.cfg.UnhealthyWindow)
			kept := o.errorTs[:0]
			for _, ts := range o.errorTs {
				if ts.After(cutoff) {
					kept = append(kept, ts)
				}
			}
			o.errorTs = kept
		}
		if category, _ := e.Fields["category"].(string); category == "security" {
			o.violations++
		}
	}

	o.ring = append([]types.Event{e}, o.ring...)
	if len(o.ring) > o.cfg.RingSize {
		o.ring = o.ring[:o.cfg.RingSize]
	}
}

// Metrics returns the observer's current derived view.
func (o *Observer) Metrics() Metrics {
	o.mu.Lock()
	defer o.mu.Unlock()
	breakdown := make(map[string]int, len(o.provider))
	for k, v := range o.provider {
		breakdown[k] = v
	}
	return Metrics{
		Spawned:            o.spawned,
		Terminated:         o.terminated,
		Running:            o.spawned - o.terminated,
		ProviderBreakdown:  breakdown,
		SecurityViolations: o.violations,
	}
}

// RecentEvents returns up to n of the most recent events, newest first
// (all buffered events if n<=0).
func (o *Observer) RecentEvents(n int) []types.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	if n <= 0 || n > len(o.ring) {
		n = len(o.ring)
	}
	out := make([]types.Event, n)
	copy(out, o.ring[:n])
	return out
}

// IsUnhealthy reports whether at least UnhealthyThreshold error-severity
// events have landed within UnhealthyWindow.
func (o *Observer) IsUnhealthy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.errorTs) >= o.cfg.UnhealthyThreshold
}

// Bridge additionally mirrors every observed event into an append-only
// store, filtered to sandboxes it has seen spawned (events without a
// sandbox id always pass through).
type Bridge struct {
	mu       sync.Mutex
	detach   func()
	attached map[string]bool
	store    []types.Event
}

// NewBridge returns an unattached Bridge.
func NewBridge() *Bridge {
	return &Bridge{attached: make(map[string]bool)}
}

// Attach subscribes to manager's event stream, detaching any previously
// attached manager first.
func (b *Bridge) Attach(manager ManagerSource) {
	b.Detach()
	unsub := manager.Subscribe(b.onEvent)
	b.mu.Lock()
	b.detach = unsub
	b.mu.Unlock()
}

// Detach unsubscribes from the currently attached manager, if any.
func (b *Bridge) Detach() {
	b.mu.Lock()
	detach := b.detach
	b.detach = nil
	b.mu.Unlock()
	if detach != nil {
		detach()
	}
}

func (b *Bridge) onEvent(e types.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e.Type == types.EventSpawned {
		b.attached[e.SandboxID] = true
	}

	if e.SandboxID == "" || b.attached[e.SandboxID] {
		b.store = append(b.store, e)
	}

	if e.Type == types.EventTerminated {
		delete(b.attached, e.SandboxID)
	}
}

// ReadAll returns every stored event in append order.
func (b *Bridge) ReadAll() []types.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.Event, len(b.store))
	copy(out, b.store)
	return out
}

// ReadBySandbox returns stored events for a single sandbox id, in
// append order.
func (b *Bridge) ReadBySandbox(sandboxID string) []types.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []types.Event
	for _, e := range b.store {
		if e.SandboxID == sandboxID {
			out = append(out, e)
		}
	}
	return out
}

// ReadByType returns stored events of a single type, in append order.
func (b *Bridge) ReadByType(eventType string) []types.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []types.Event
	for _, e := range b.store {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// SyncMetrics reports how many events are mirrored and how many distinct
// sandboxes are currently attached.
func (b *Bridge) SyncMetrics() (storedEvents, attachedSandboxes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.store), len(b.attached)
}
