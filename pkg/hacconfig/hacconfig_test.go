package hacconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/agentcage/pkg/types"
)

func sampleSpec() types.SandboxSpec {
	return types.SandboxSpec{
		Name:           "agent-sbx",
		Backend:        types.BackendMicroVM,
		Image:          "agent-base:latest",
		KernelImage:    "vmlinux-5.10",
		IsolationLevel: types.TierVM,
		NetworkEnabled: true,
		BootTimeoutMs:  5000,
		Resources: types.ResourceLimits{
			CPUMillicores: 500,
			MemoryMB:      512,
			DiskMB:        1024,
			NetworkKbps:   1000,
			MaxProcesses:  32,
		},
		Drives: []types.Drive{
			{ID: "root", HostPath: "/var/lib/agentcage/root.img", IsRoot: true, IsReadOnly: false},
		},
		Metadata: map[string]any{"owner": "team-agents"},
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	spec := sampleSpec()
	doc, err := Format(spec)
	require.NoError(t, err)
	require.NotEmpty(t, doc)

	parsed, err := Parse(doc)
	require.NoError(t, err)

	assert.Equal(t, spec.Name, parsed.Name)
	assert.Equal(t, spec.Backend, parsed.Backend)
	assert.Equal(t, spec.Image, parsed.Image)
	assert.Equal(t, spec.KernelImage, parsed.KernelImage)
	assert.Equal(t, spec.IsolationLevel, parsed.IsolationLevel)
	assert.Equal(t, spec.NetworkEnabled, parsed.NetworkEnabled)
	assert.Equal(t, spec.BootTimeoutMs, parsed.BootTimeoutMs)
	assert.Equal(t, spec.Resources, parsed.Resources)
	assert.Equal(t, spec.Drives, parsed.Drives)
	assert.Equal(t, "team-agents", parsed.Metadata["owner"])
}

func TestValidatePassesWithinCapacity(t *testing.T) {
	spec := sampleSpec()
	capacity := types.ResourceLimits{CPUMillicores: 2000, MemoryMB: 4096, DiskMB: 8192, NetworkKbps: 10000, MaxProcesses: 256}

	result := Validate(spec, capacity)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidateErrorsOnExceededCapacity(t *testing.T) {
	spec := sampleSpec()
	capacity := types.ResourceLimits{CPUMillicores: 100, MemoryMB: 4096, DiskMB: 8192, NetworkKbps: 10000, MaxProcesses: 256}

	result := Validate(spec, capacity)
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "cpu_millicores")
}

func TestValidateWarnsOnMissingKernelImage(t *testing.T) {
	spec := sampleSpec()
	spec.KernelImage = ""
	capacity := types.ResourceLimits{CPUMillicores: 2000, MemoryMB: 4096, DiskMB: 8192, NetworkKbps: 10000, MaxProcesses: 256}

	result := Validate(spec, capacity)
	assert.True(t, result.Valid)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "kernel_image")
}

func TestValidateWarnsOnHighCPUUsage(t *testing.T) {
	spec := sampleSpec()
	spec.Resources.CPUMillicores = 1900
	capacity := types.ResourceLimits{CPUMillicores: 2000, MemoryMB: 4096, DiskMB: 8192, NetworkKbps: 10000, MaxProcesses: 256}

	result := Validate(spec, capacity)
	assert.True(t, result.Valid)
	found := false
	for _, w := range result.Warnings {
		if w == "cpu_millicores uses 95% of capacity" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidateRequiresMandatoryFields(t *testing.T) {
	result := Validate(types.SandboxSpec{}, types.ResourceLimits{})
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Errors)
}
