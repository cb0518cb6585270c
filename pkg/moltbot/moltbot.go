// Package moltbot implements the named-agent to sandbox binding registry
// that sits above the sandbox manager, grounded on the teacher's
// map+mutex node-registry bookkeeping in pkg/manager/manager.go, scaled
// down to a single binding table.
package moltbot

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/agentcage/pkg/idgen"
)

// Binding records which sandbox a named agent ("moltbot") is currently
// deployed to.
type Binding struct {
	AgentName string    `json:"agent_name"`
	SandboxID string    `json:"sandbox_id"`
	BoundAt   time.Time `json:"bound_at"`
}

// Deployer owns the agent-name -> sandbox binding table.
type Deployer struct {
	mu       sync.Mutex
	bindings map[string]Binding
	clock    idgen.Clock
}

// NewDeployer returns an empty Deployer.
func NewDeployer(clock idgen.Clock) *Deployer {
	if clock == nil {
		clock = idgen.SystemClock{}
	}
	return &Deployer{bindings: make(map[string]Binding), clock: clock}
}

// Bind records that agentName is now deployed to sandboxID, overwriting
// any prior binding for that agent.
func (d *Deployer) Bind(agentName, sandboxID string) Binding {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := Binding{AgentName: agentName, SandboxID: sandboxID, BoundAt: d.clock.Now()}
	d.bindings[agentName] = b
	return b
}

// Unbind removes agentName's binding, if any.
func (d *Deployer) Unbind(agentName string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.bindings, agentName)
}

// Lookup returns agentName's current sandbox binding.
func (d *Deployer) Lookup(agentName string) (Binding, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.bindings[agentName]
	if !ok {
		return Binding{}, fmt.Errorf("no binding for agent %q", agentName)
	}
	return b, nil
}

// BySandbox returns every agent currently bound to sandboxID.
func (d *Deployer) BySandbox(sandboxID string) []Binding {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Binding
	for _, b := range d.bindings {
		if b.SandboxID == sandboxID {
			out = append(out, b)
		}
	}
	return out
}

// All returns every current binding.
func (d *Deployer) All() []Binding {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Binding, 0, len(d.bindings))
	for _, b := range d.bindings {
		out = append(out, b)
	}
	return out
}

// UnbindSandbox removes every binding pointing at sandboxID, used when a
// sandbox terminates.
func (d *Deployer) UnbindSandbox(sandboxID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for agent, b := range d.bindings {
		if b.SandboxID == sandboxID {
			delete(d.bindings, agent)
		}
	}
}
