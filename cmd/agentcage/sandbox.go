package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/agentcage/pkg/hacconfig"
	"github.com/cuemby/agentcage/pkg/sandbox"
	"github.com/cuemby/agentcage/pkg/types"
)

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Manage agentcage sandboxes",
}

func init() {
	sandboxSpawnCmd.Flags().StringP("file", "f", "", "HAC sandbox config file (TOML, see §6)")
	sandboxSpawnCmd.Flags().String("agent-id", "cli", "Agent id recorded against this sandbox in the audit log")
	_ = sandboxSpawnCmd.MarkFlagRequired("file")

	sandboxValidateCmd.Flags().StringP("file", "f", "", "HAC sandbox config file to validate")
	sandboxValidateCmd.Flags().Int("capacity-cpu", 0, "Available CPU millicores")
	sandboxValidateCmd.Flags().Int("capacity-mem", 0, "Available memory (MB)")
	sandboxValidateCmd.Flags().Int("capacity-disk", 0, "Available disk (MB)")
	sandboxValidateCmd.Flags().Int("capacity-net", 0, "Available network (Kbps)")
	sandboxValidateCmd.Flags().Int("capacity-procs", 0, "Available max processes")
	_ = sandboxValidateCmd.MarkFlagRequired("file")

	sandboxTerminateCmd.Flags().String("agent-id", "cli", "Agent id recorded against this termination in the audit log")

	sandboxCmd.AddCommand(sandboxSpawnCmd, sandboxListCmd, sandboxTerminateCmd, sandboxValidateCmd)
}

var sandboxSpawnCmd = &cobra.Command{
	Use:   "spawn",
	Short: "Boot a sandbox from a HAC config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		agentID, _ := cmd.Flags().GetString("agent-id")
		statePath, _ := cmd.Flags().GetString("state-path")
		auditPath, _ := cmd.Flags().GetString("audit-path")
		redactLevel, _ := cmd.Flags().GetString("redact-level")

		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		spec, err := hacconfig.Parse(string(data))
		if err != nil {
			return fmt.Errorf("parse config: %w", err)
		}

		mgr := sandbox.NewManager(sandbox.Config{})
		mgr.Initialize()

		id, err := mgr.Spawn(cmd.Context(), spec)
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

		if err := logSandboxDecision(auditPath, redactLevelFlag(redactLevel), agentID, types.DecisionDeploy,
			fmt.Sprintf("spawn %s (%s)", spec.Name, spec.Backend), string(inst.State), "sandbox spawn via CLI"); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to record audit entry: %v\n", err)
		}

		return printJSON(inst)
	},
}

var sandboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sandboxes recorded in the local registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		statePath, _ := cmd.Flags().GetString("state-path")
		instances, err := loadInstances(statePath)
		if err != nil {
			return fmt.Errorf("load sandbox state: %w", err)
		}
		return printJSON(instances)
	},
}

var sandboxTerminateCmd = &cobra.Command{
	Use:   "terminate <sandbox-id>",
	Short: "Terminate a sandbox and purge its per-sandbox state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		statePath, _ := cmd.Flags().GetString("state-path")
		auditPath, _ := cmd.Flags().GetString("audit-path")
		redactLevel, _ := cmd.Flags().GetString("redact-level")
		agentID, _ := cmd.Flags().GetString("agent-id")

		instances, err := loadInstances(statePath)
		if err != nil {
			return fmt.Errorf("load sandbox state: %w", err)
		}

		found := false
		for i := range instances {
			if instances[i].ID == id {
				instances[i].State = types.SandboxStopped
				found = true
				break
			}
		}
		if !found {
			return types.ErrNotFound
		}
		if err := saveInstances(statePath, instances); err != nil {
			return fmt.Errorf("save sandbox state: %w", err)
		}

		if err := logSandboxDecision(auditPath, redactLevelFlag(redactLevel), agentID, types.DecisionDeploy,
			fmt.Sprintf("terminate %s", id), "stopped", "sandbox terminate via CLI"); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to record audit entry: %v\n", err)
		}

		fmt.Printf("sandbox %s terminated\n", id)
		return nil
	},
}

var sandboxValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a HAC config file against a capacity budget",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		spec, err := hacconfig.Parse(string(data))
		if err != nil {
			return fmt.Errorf("parse config: %w", err)
		}

		cpu, _ := cmd.Flags().GetInt("capacity-cpu")
		mem, _ := cmd.Flags().GetInt("capacity-mem")
		disk, _ := cmd.Flags().GetInt("capacity-disk")
		net, _ := cmd.Flags().GetInt("capacity-net")
		procs, _ := cmd.Flags().GetInt("capacity-procs")

		capacity := types.ResourceLimits{
			CPUMillicores: cpu,
			MemoryMB:      mem,
			DiskMB:        disk,
			NetworkKbps:   net,
			MaxProcesses:  procs,
		}

		result := hacconfig.Validate(spec, capacity)
		if err := printJSON(result); err != nil {
			return err
		}
		if !result.Valid {
			return fmt.Errorf("validation failed")
		}
		return nil
	},
}

