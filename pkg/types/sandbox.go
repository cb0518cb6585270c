package types

import "time"

// Backend selects the hypervisor backend a sandbox boots under.
type Backend string

const (
	BackendMicroVM    Backend = "microVM"
	BackendFullVM      Backend = "full-VM"
	BackendContainer  Backend = "container"
)

// IsolationTier orders the strength of namespace/capability confinement.
type IsolationTier string

const (
	TierNone      IsolationTier = "none"
	TierProcess   IsolationTier = "process"
	TierNamespace IsolationTier = "namespace"
	TierVM        IsolationTier = "vm"
	TierUltra     IsolationTier = "ultra"
)

// tierRank gives the total order over tiers used by invariant checks:
// higher tier => namespaces are a superset and capabilities a subset.
var tierRank = map[IsolationTier]int{
	TierNone:      0,
	TierProcess:   1,
	TierNamespace: 2,
	TierVM:        3,
	TierUltra:     4,
}

// Rank returns the tier's position in none<process<namespace<vm<ultra.
// Unknown tiers rank below TierNone.
func (t IsolationTier) Rank() int {
	if r, ok := tierRank[t]; ok {
		return r
	}
	return -1
}

// ResourceLimits caps what a sandbox may consume.
type ResourceLimits struct {
	CPUMillicores int `json:"cpu_millicores"`
	MemoryMB      int `json:"memory_mb"`
	DiskMB        int `json:"disk_mb"`
	NetworkKbps   int `json:"network_kbps"`
	MaxProcesses  int `json:"max_processes"`
}

// Drive describes an additional block device attached to a sandbox.
type Drive struct {
	ID         string `json:"drive_id"`
	HostPath   string `json:"path_on_host"`
	IsRoot     bool   `json:"is_root_device"`
	IsReadOnly bool   `json:"is_read_only"`
}

// SandboxSpec is supplied by callers and is immutable once a sandbox is
// created from it.
type SandboxSpec struct {
	Name            string                 `json:"name" validate:"required"`
	Backend         Backend                `json:"backend" validate:"required"`
	Image           string                 `json:"image" validate:"required"`
	KernelImage     string                 `json:"kernel_image,omitempty"`
	IsolationLevel  IsolationTier          `json:"isolation_level" validate:"required"`
	Resources       ResourceLimits         `json:"resources"`
	Drives          []Drive                `json:"drives,omitempty"`
	NetworkEnabled  bool                   `json:"network_enabled"`
	Metadata        map[string]any         `json:"metadata,omitempty"`
	BootTimeoutMs   int                    `json:"boot_timeout_ms"`
}

// SandboxState is the sandbox lifecycle state.
type SandboxState string

const (
	SandboxCreating  SandboxState = "creating"
	SandboxRunning   SandboxState = "running"
	SandboxPaused    SandboxState = "paused"
	SandboxStopped   SandboxState = "stopped"
	SandboxDestroyed SandboxState = "destroyed"
	SandboxError     SandboxState = "error"
)

// SandboxInstance is the sandbox manager's owned record of a running (or
// formerly running) sandbox.
type SandboxInstance struct {
	ID         string       `json:"id"`
	Spec       SandboxSpec  `json:"spec"`
	State      SandboxState `json:"state"`
	CreatedAt  time.Time    `json:"created_at"`
	StartedAt  time.Time    `json:"started_at,omitempty"`
	StoppedAt  time.Time    `json:"stopped_at,omitempty"`
}

// IsNonTerminal reports whether the instance still counts against
// concurrency limits.
func (s *SandboxInstance) IsNonTerminal() bool {
	return s.State != SandboxDestroyed
}

// IsolationContext binds a sandbox to its enabled namespaces and allowed
// capabilities, derived from its tier via a fixed table.
type IsolationContext struct {
	SandboxID    string          `json:"sandbox_id"`
	Tier         IsolationTier   `json:"tier"`
	Namespaces   map[string]bool `json:"namespaces"`
	Capabilities map[string]bool `json:"capabilities"`
	State        string          `json:"state"` // active | suspended
}

// IsolationViolation is appended whenever enforceCapability denies a call.
type IsolationViolation struct {
	SandboxID  string    `json:"sandbox_id"`
	Capability string    `json:"capability"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
	Severity   string    `json:"severity"`
}

// TaskResult is what executeTask always returns, success or failure.
type TaskResult struct {
	TaskID     string `json:"taskId"`
	Success    bool   `json:"success"`
	Output     any    `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// TaskPayload is what callers submit to executeTask / the VSOCK channel.
type TaskPayload struct {
	TaskID    string         `json:"taskId"`
	AgentID   string         `json:"agentId"`
	Action    string         `json:"action"`
	Args      map[string]any `json:"args"`
	TimeoutMs int            `json:"timeoutMs,omitempty"`
}

// Policy governs what an agent may do inside a sandbox. No policy
// registered for an agent means the default is deny.
type Policy struct {
	AgentID           string   `json:"agent_id" validate:"required"`
	AllowedOperations []string `json:"allowed_operations"`
	BlockedOperations []string `json:"blocked_operations"`
	NetworkAccess     bool     `json:"network_access"`
	FilesystemAccess  bool     `json:"filesystem_access"`
	MaxMemoryMB       int      `json:"max_memory_mb"`
	MinIsolationLevel IsolationTier `json:"min_isolation_level"`
}

// CleanupReport is the result of verifyCleanup.
type CleanupReport struct {
	Cleaned       bool     `json:"cleaned"`
	ResidualFiles []string `json:"residual_files"`
}

// Event is broadcast by the sandbox manager to observers.
type Event struct {
	Type      string         `json:"type"`
	SandboxID string         `json:"sandbox_id,omitempty"`
	TaskID    string         `json:"task_id,omitempty"`
	Success   bool           `json:"success,omitempty"`
	Message   string         `json:"message,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

const (
	EventReady         = "ready"
	EventSpawned       = "spawned"
	EventPaused        = "paused"
	EventResumed       = "resumed"
	EventTerminated    = "terminated"
	EventTaskExecuted  = "task-executed"
	EventError         = "error"
	EventHealthWarning = "health-warning"
)
