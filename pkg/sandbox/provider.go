package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/agentcage/pkg/idgen"
	"github.com/cuemby/agentcage/pkg/types"
)

// Provider is the per-sandbox lifecycle trait every backend implements.
// Real namespace/virtualization bring-up is an explicit spec Non-goal —
// production backends are opaque to this package; Provider is the seam a
// real implementation would fill in behind the same closed set of tags.
type Provider interface {
	Backend() types.Backend
	Boot(ctx context.Context, spec types.SandboxSpec) error
	Shutdown(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Execute(ctx context.Context, payload types.TaskPayload) (types.TaskResult, error)
	// Residuals reports files verifyCleanup should consider left behind.
	Residuals() []string
}

// simulatedProvider is the in-process stand-in shared by all three
// backend tags. Each constructor below binds a fixed Backend value,
// giving the manager a closed sum type to dispatch over even though the
// underlying bring-up logic (simulated, per the spec's Non-goals) is
// identical across tags.
type simulatedProvider struct {
	backend types.Backend
	clock   idgen.Clock
}

// NewMicroVMProvider, NewFullVMProvider, and NewContainerProvider are the
// three backend tags a SandboxSpec can select.
func NewMicroVMProvider(clock idgen.Clock) Provider {
	return &simulatedProvider{backend: types.BackendMicroVM, clock: clock}
}
func NewFullVMProvider(clock idgen.Clock) Provider {
	return &simulatedProvider{backend: types.BackendFullVM, clock: clock}
}
func NewContainerProvider(clock idgen.Clock) Provider {
	return &simulatedProvider{backend: types.BackendContainer, clock: clock}
}

// DefaultProviderFactory resolves a backend tag to its provider,
// returning an error for any value outside the closed set.
func DefaultProviderFactory(clock idgen.Clock) func(types.Backend) (Provider, error) {
	return func(backend types.Backend) (Provider, error) {
		switch backend {
		case types.BackendMicroVM:
			return NewMicroVMProvider(clock), nil
		case types.BackendFullVM:
			return NewFullVMProvider(clock), nil
		case types.BackendContainer:
			return NewContainerProvider(clock), nil
		default:
			return nil, fmt.Errorf("unknown backend: %s", backend)
		}
	}
}

func (p *simulatedProvider) Backend() types.Backend { return p.backend }

// Boot simulates bring-up: it honors the caller's deadline (spec's
// boot_timeout_ms) but otherwise always succeeds, since real
// virtualization is opaque to this spec.
func (p *simulatedProvider) Boot(ctx context.Context, spec types.SandboxSpec) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("boot %s: %w", p.backend, ctx.Err())
	default:
		return nil
	}
}

func (p *simulatedProvider) Shutdown(ctx context.Context) error { return nil }
func (p *simulatedProvider) Pause(ctx context.Context) error    { return nil }
func (p *simulatedProvider) Resume(ctx context.Context) error   { return nil }

// Execute simulates running payload.Action inside the sandbox, returning
// a deterministic, successful result. A real backend would invoke the
// action against its isolated runtime instead.
func (p *simulatedProvider) Execute(ctx context.Context, payload types.TaskPayload) (types.TaskResult, error) {
	start := time.Now()
	return types.TaskResult{
		TaskID:     payload.TaskID,
		Success:    true,
		Output:     fmt.Sprintf("executed %s on %s", payload.Action, p.backend),
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// Residuals reports no leftover files; the simulated provider never
// writes any.
func (p *simulatedProvider) Residuals() []string { return nil }
