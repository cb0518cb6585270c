// Package hacconfig parses and formats the HAC sandbox configuration
// document (a TOML-shaped SandboxSpec) and validates it against a
// capacity budget, grounded on the teacher's cmd/warren/apply.go pattern
// of decoding a declarative resource document before acting on it, with
// BurntSushi/toml standing in for the teacher's yaml.v3 decoder.
package hacconfig

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/cuemby/agentcage/pkg/types"
)

// firecrackerLikeProviders warn when no kernel image is supplied, since a
// microVM backend boots a kernel directly rather than reusing the host's.
var firecrackerLikeProviders = map[types.Backend]bool{
	types.BackendMicroVM: true,
}

// highCPUUsageThreshold is the fraction of capacity CPU usage that
// triggers a validation warning rather than an error.
const highCPUUsageThreshold = 0.85

// resourcesDoc mirrors the spec's [resources] table.
type resourcesDoc struct {
	CPUMillicores int `toml:"cpu_millicores"`
	MemoryMB      int `toml:"memory_mb"`
	DiskMB        int `toml:"disk_mb"`
	NetworkKbps   int `toml:"network_kbps"`
	MaxProcesses  int `toml:"max_processes"`
}

// driveDoc mirrors one [[drives]] array-of-tables entry.
type driveDoc struct {
	ID         string `toml:"drive_id"`
	HostPath   string `toml:"path_on_host"`
	IsRoot     bool   `toml:"is_root_device"`
	IsReadOnly bool   `toml:"is_read_only"`
}

// sandboxDoc is the TOML document shape for a SandboxSpec.
type sandboxDoc struct {
	Name           string                 `toml:"name"`
	Provider       string                 `toml:"provider"`
	Image          string                 `toml:"image"`
	KernelImage    string                 `toml:"kernel_image,omitempty"`
	IsolationLevel string                 `toml:"isolation_level"`
	NetworkEnabled bool                   `toml:"network_enabled"`
	BootTimeoutMs  int                    `toml:"boot_timeout_ms"`
	Resources      resourcesDoc           `toml:"resources"`
	Drives         []driveDoc             `toml:"drives"`
	Metadata       map[string]interface{} `toml:"metadata"`
}

func toDoc(spec types.SandboxSpec) sandboxDoc {
	drives := make([]driveDoc, 0, len(spec.Drives))
	for _, d := range spec.Drives {
		drives = append(drives, driveDoc{
			ID:         d.ID,
			HostPath:   d.HostPath,
			IsRoot:     d.IsRoot,
			IsReadOnly: d.IsReadOnly,
		})
	}
	return sandboxDoc{
		Name:           spec.Name,
		Provider:       string(spec.Backend),
		Image:          spec.Image,
		KernelImage:    spec.KernelImage,
		IsolationLevel: string(spec.IsolationLevel),
		NetworkEnabled: spec.NetworkEnabled,
		BootTimeoutMs:  spec.BootTimeoutMs,
		Resources: resourcesDoc{
			CPUMillicores: spec.Resources.CPUMillicores,
			MemoryMB:      spec.Resources.MemoryMB,
			DiskMB:        spec.Resources.DiskMB,
			NetworkKbps:   spec.Resources.NetworkKbps,
			MaxProcesses:  spec.Resources.MaxProcesses,
		},
		Drives:   drives,
		Metadata: spec.Metadata,
	}
}

func fromDoc(doc sandboxDoc) types.SandboxSpec {
	drives := make([]types.Drive, 0, len(doc.Drives))
	for _, d := range doc.Drives {
		drives = append(drives, types.Drive{
			ID:         d.ID,
			HostPath:   d.HostPath,
			IsRoot:     d.IsRoot,
			IsReadOnly: d.IsReadOnly,
		})
	}
	var metadata map[string]any
	if doc.Metadata != nil {
		metadata = make(map[string]any, len(doc.Metadata))
		for k, v := range doc.Metadata {
			metadata[k] = v
		}
	}
	return types.SandboxSpec{
		Name:           doc.Name,
		Backend:        types.Backend(doc.Provider),
		Image:          doc.Image,
		KernelImage:    doc.KernelImage,
		IsolationLevel: types.IsolationTier(doc.IsolationLevel),
		NetworkEnabled: doc.NetworkEnabled,
		BootTimeoutMs:  doc.BootTimeoutMs,
		Resources: types.ResourceLimits{
			CPUMillicores: doc.Resources.CPUMillicores,
			MemoryMB:      doc.Resources.MemoryMB,
			DiskMB:        doc.Resources.DiskMB,
			NetworkKbps:   doc.Resources.NetworkKbps,
			MaxProcesses:  doc.Resources.MaxProcesses,
		},
		Drives:   drives,
		Metadata: metadata,
	}
}

// Format renders spec as a TOML document. parse(format(spec)) must be
// equivalent to spec on the documented field set.
func Format(spec types.SandboxSpec) (string, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(toDoc(spec)); err != nil {
		return "", fmt.Errorf("encode sandbox config: %w", err)
	}
	return buf.String(), nil
}

// Parse decodes a TOML sandbox config document into a SandboxSpec.
func Parse(data string) (types.SandboxSpec, error) {
	var doc sandboxDoc
	if _, err := toml.Decode(data, &doc); err != nil {
		return types.SandboxSpec{}, fmt.Errorf("decode sandbox config: %w", err)
	}
	return fromDoc(doc), nil
}

// ValidationResult is returned by Validate.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

var structValidator = validator.New()

// Validate enforces the SandboxSpec's struct tags (required fields) then
// checks spec's resource requests against capacity, producing errors for
// any request that exceeds capacity and warnings for a firecracker-like
// provider missing a kernel image or CPU usage at or above 85% of
// capacity.
func Validate(spec types.SandboxSpec, capacity types.ResourceLimits) ValidationResult {
	result := ValidationResult{Valid: true}

	if err := structValidator.Struct(spec); err != nil {
		result.Valid = false
		for _, fe := range err.(validator.ValidationErrors) {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
		}
	}

	checkLimit := func(field string, requested, cap int) {
		if cap > 0 && requested > cap {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("%s %d exceeds capacity %d", field, requested, cap))
		}
	}
	checkLimit("cpu_millicores", spec.Resources.CPUMillicores, capacity.CPUMillicores)
	checkLimit("memory_mb", spec.Resources.MemoryMB, capacity.MemoryMB)
	checkLimit("disk_mb", spec.Resources.DiskMB, capacity.DiskMB)
	checkLimit("network_kbps", spec.Resources.NetworkKbps, capacity.NetworkKbps)
	checkLimit("max_processes", spec.Resources.MaxProcesses, capacity.MaxProcesses)

	if firecrackerLikeProviders[spec.Backend] && spec.KernelImage == "" {
		result.Warnings = append(result.Warnings, fmt.Sprintf("provider %q typically requires a kernel_image", spec.Backend))
	}
	if capacity.CPUMillicores > 0 {
		usage := float64(spec.Resources.CPUMillicores) / float64(capacity.CPUMillicores)
		if usage >= highCPUUsageThreshold && usage <= 1.0 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("cpu_millicores uses %.0f%% of capacity", usage*100))
		}
	}

	return result
}
