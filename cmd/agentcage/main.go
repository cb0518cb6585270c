// Command agentcage is the reference CLI for the hypervisor: one file per
// subcommand group, a rootCmd in main.go, mirroring the teacher's
// cmd/warren layout. CLI wiring is an external collaborator of the core
// library (pkg/...) rather than product surface in its own right — this
// binary demonstrates the library, it does not replace a real deployment's
// own tooling.
package main

import (
	"fmt"
	"os"

	"github.com/cuemby/agentcage/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "agentcage",
	Short: "agentcage - agent-execution hypervisor",
	Long: `agentcage spawns isolated sandboxes for untrusted AI-generated code
and multi-step agent workflows, enforces per-sandbox resource and
capability policies, and records every agent decision into a
tamper-evident audit log.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"agentcage version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("audit-path", "agentcage-audit.jsonl", "Path to the append-only audit log")
	rootCmd.PersistentFlags().String("state-path", "agentcage-sandboxes.json", "Path to the sandbox registry state file")
	rootCmd.PersistentFlags().String("redact-level", "partial", "PII redaction level for audit entries (none, partial, full)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(sandboxCmd)
	rootCmd.AddCommand(skillCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
