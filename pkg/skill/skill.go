// Package skill implements agentcage's skill registry and runner: ordered,
// validated multi-step tool invocations executed inside a sandbox,
// grounded on theRebelliousNerd-codenerd's tool_registry.go (map+mutex
// registry, validated registration, exported Tool struct) adapted into a
// step-based runner that never throws.
package skill

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/agentcage/pkg/idgen"
	"github.com/cuemby/agentcage/pkg/types"
)

// Step is one ordered action within a skill. BuildArgs derives the tool's
// arguments from the accumulated context; ValidateResult, if set,
// additionally gates success on the tool's output.
type Step struct {
	Name           string
	Tool           string
	BuildArgs      func(ctx *types.SkillContext) map[string]any
	ValidateResult func(output string) bool
}

// Skill is a named, ordered sequence of steps. Agents empty means the
// skill is available to every agent; otherwise it is filtered by name.
type Skill struct {
	Name          string
	Description   string
	Agents        []string
	RequiredTools []string
	Steps         []Step
	Version       string
}

func (s Skill) availableTo(agent string) bool {
	if len(s.Agents) == 0 {
		return true
	}
	for _, a := range s.Agents {
		if a == agent {
			return true
		}
	}
	return false
}

// ToolFunc executes a registered tool and returns its typed result.
type ToolFunc func(args map[string]any) types.ToolResult

// ToolRegistry resolves tool names to executable functions.
type ToolRegistry struct {
	mu    sync.Mutex
	tools map[string]ToolFunc
}

// NewToolRegistry returns an empty ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]ToolFunc)}
}

// Register adds (or overwrites) a tool under name.
func (r *ToolRegistry) Register(name string, fn ToolFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = fn
}

// Resolve reports whether name is registered, returning its function.
func (r *ToolRegistry) Resolve(name string) (ToolFunc, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn, ok := r.tools[name]
	return fn, ok
}

// Registry holds registered skills, keyed by name. Duplicate
// registrations overwrite the prior entry.
type Registry struct {
	mu     sync.Mutex
	skills map[string]Skill
}

// NewRegistry returns an empty skill Registry.
func NewRegistry() *Registry {
	return &Registry{skills: make(map[string]Skill)}
}

// Register adds (or overwrites) a skill.
func (r *Registry) Register(s Skill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skills[s.Name] = s
}

// Get looks up a skill by name.
func (r *Registry) Get(name string) (Skill, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.skills[name]
	return s, ok
}

// ForAgent returns every skill available to agent (Agents empty or
// containing agent's name).
func (r *Registry) ForAgent(agent string) []Skill {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Skill
	for _, s := range r.skills {
		if s.availableTo(agent) {
			out = append(out, s)
		}
	}
	return out
}

// Runner executes skills against a tool registry. It never throws:
// every failure mode, including an unexpected panic inside a step, is
// converted into a typed SkillRunResult.
type Runner struct {
	skills *Registry
	tools  *ToolRegistry
	clock  idgen.Clock
}

// NewRunner returns a Runner wired to the given registries.
func NewRunner(skills *Registry, tools *ToolRegistry, clock idgen.Clock) *Runner {
	if clock == nil {
		clock = idgen.SystemClock{}
	}
	return &Runner{skills: skills, tools: tools, clock: clock}
}

// Execute runs skillName's steps in order against skillCtx, verifying
// every RequiredTools entry resolves before the first step.
func (r *Runner) Execute(skillName, agent string, skillCtx *types.SkillContext) (result types.SkillRunResult) {
	start := r.clock.Now()

	defer func() {
		if rec := recover(); rec != nil {
			result = types.SkillRunResult{
				Success:        false,
				StepsCompleted: 0,
				Error:          fmt.Sprintf("%v", rec),
				DurationMs:     time.Since(start).Milliseconds(),
			}
		}
	}()

	s, ok := r.skills.Get(skillName)
	if !ok {
		return types.SkillRunResult{Success: false, Error: fmt.Sprintf("skill not found: %s", skillName), DurationMs: time.Since(start).Milliseconds()}
	}
	if agent != "" && !s.availableTo(agent) {
		return types.SkillRunResult{Success: false, Error: fmt.Sprintf("skill %s not available to agent %s", skillName, agent), DurationMs: time.Since(start).Milliseconds()}
	}

	var missing []string
	for _, t := range s.RequiredTools {
		if _, ok := r.tools.Resolve(t); !ok {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		return types.SkillRunResult{
			Success: false,
			Error:   fmt.Sprintf("Missing required tools: %s", joinComma(missing)),
			DurationMs: time.Since(start).Milliseconds(),
		}
	}

	if skillCtx.StepOutputs == nil {
		skillCtx.StepOutputs = make(map[string]string)
	}

	completed := 0
	for _, step := range s.Steps {
		fn, ok := r.tools.Resolve(step.Tool)
		if !ok {
			return types.SkillRunResult{Success: false, StepsCompleted: completed, FailedStep: step.Name, Error: fmt.Sprintf("tool not registered: %s", step.Tool), DurationMs: time.Since(start).Milliseconds()}
		}

		var args map[string]any
		if step.BuildArgs != nil {
			args = step.BuildArgs(skillCtx)
		}

		out := fn(args)
		if !out.Success {
			return types.SkillRunResult{Success: false, StepsCompleted: completed, FailedStep: step.Name, Error: out.Error, DurationMs: time.Since(start).Milliseconds()}
		}
		if step.ValidateResult != nil && !step.ValidateResult(out.Output) {
			return types.SkillRunResult{Success: false, StepsCompleted: completed, FailedStep: step.Name, Error: fmt.Sprintf("validation failed for step %s", step.Name), DurationMs: time.Since(start).Milliseconds()}
		}

		skillCtx.StepOutputs[step.Name] = out.Output
		completed++
	}

	return types.SkillRunResult{Success: true, StepsCompleted: completed, DurationMs: time.Since(start).Milliseconds()}
}

func joinComma(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}

// maxPromptResultLen bounds FormatResultForPrompt's output.
const maxPromptResultLen = 1000

// FormatResultForPrompt renders a SkillRunResult as prompt-ready text,
// truncated to at most 1000 characters.
func FormatResultForPrompt(result types.SkillRunResult) string {
	var text string
	if result.Success {
		text = fmt.Sprintf("Skill completed successfully (%d steps, %dms)", result.StepsCompleted, result.DurationMs)
	} else {
		text = fmt.Sprintf("Skill failed at step %q after %d steps: %s", result.FailedStep, result.StepsCompleted, result.Error)
	}
	if len(text) > maxPromptResultLen {
		return text[:maxPromptResultLen]
	}
	return text
}
