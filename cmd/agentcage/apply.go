package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/agentcage/pkg/redact"
	"github.com/cuemby/agentcage/pkg/sandbox"
	"github.com/cuemby/agentcage/pkg/types"
)

// agentcageResource mirrors the teacher's cmd/warren/apply.go
// WarrenResource: a generic apiVersion/kind/metadata/spec envelope that a
// declarative manifest is unmarshaled into before being dispatched by Kind.
type agentcageResource struct {
	APIVersion string                 `yaml:"apiVersion"`
	Kind       string                 `yaml:"kind"`
	Metadata   resourceMetadata       `yaml:"metadata"`
	Spec       map[string]interface{} `yaml:"spec"`
}

type resourceMetadata struct {
	Name   string            `yaml:"name"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a declarative agentcage manifest",
	Long: `Apply an agentcage resource manifest from a YAML file.

Examples:
  # Spawn a sandbox from a manifest
  agentcage apply -f sandbox.yaml`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML manifest to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	statePath, _ := cmd.Flags().GetString("state-path")
	auditPath, _ := cmd.Flags().GetString("audit-path")
	redactLevel, _ := cmd.Flags().GetString("redact-level")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	var resource agentcageResource
	if err := yaml.Unmarshal(data, &resource); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}

	switch resource.Kind {
	case "Sandbox":
		return applySandbox(cmd.Context(), &resource, statePath, auditPath, redactLevelFlag(redactLevel))
	default:
		return fmt.Errorf("unsupported resource kind: %s", resource.Kind)
	}
}

func applySandbox(ctx context.Context, resource *agentcageResource, statePath, auditPath string, redactLevel redact.Level) error {
	name := resource.Metadata.Name
	spec := types.SandboxSpec{
		Name:           name,
		Backend:        types.Backend(getString(resource.Spec, "backend", string(types.BackendContainer))),
		Image:          getString(resource.Spec, "image", ""),
		KernelImage:    getString(resource.Spec, "kernelImage", ""),
		IsolationLevel: types.IsolationTier(getString(resource.Spec, "isolationLevel", string(types.TierProcess))),
		NetworkEnabled: getBool(resource.Spec, "networkEnabled", false),
		BootTimeoutMs:  getInt(resource.Spec, "bootTimeoutMs", 0),
		Resources: types.ResourceLimits{
			CPUMillicores: getInt(resource.Spec, "cpuMillicores", 0),
			MemoryMB:      getInt(resource.Spec, "memoryMb", 0),
			DiskMB:        getInt(resource.Spec, "diskMb", 0),
			NetworkKbps:   getInt(resource.Spec, "networkKbps", 0),
			MaxProcesses:  getInt(resource.Spec, "maxProcesses", 0),
		},
	}
	if spec.Image == "" {
		return fmt.Errorf("spec.image is required")
	}

	mgr := sandbox.NewManager(sandbox.Config{})
	mgr.Initialize()

	id, err := mgr.Spawn(ctx, spec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "spawn failed: %v\n", err)
	}
	inst, _ := mgr.Get(id)

	instances, err := loadInstances(statePath)
	if err != nil {
		return fmt.Errorf("load sandbox state: %w", err)
	}
	instances = append(instances, inst)
	if err := saveInstances(statePath, instances); err != nil {
		return fmt.Errorf("save sandbox state: %w", err)
	}

	if err := logSandboxDecision(auditPath, redactLevel, "cli", types.DecisionDeploy,
		fmt.Sprintf("apply sandbox %s (%s)", name, spec.Backend), string(inst.State), "sandbox applied via manifest"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to record audit entry: %v\n", err)
	}

	fmt.Printf("sandbox %s applied: id=%s state=%s\n", name, inst.ID, inst.State)
	return nil
}

func getString(m map[string]interface{}, key, defaultValue string) string {
	if v, ok := m[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return defaultValue
}

func getInt(m map[string]interface{}, key string, defaultValue int) int {
	if v, ok := m[key]; ok {
		switch val := v.(type) {
		case int:
			return val
		case float64:
			return int(val)
		}
	}
	return defaultValue
}

func getBool(m map[string]interface{}, key string, defaultValue bool) bool {
	if v, ok := m[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultValue
}
