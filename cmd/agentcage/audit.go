package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/agentcage/pkg/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Verify and export the hash-chained audit trail",
}

func init() {
	auditExportCmd.Flags().String("format", "json", "Export format: json, csv, or pdf")
	auditExportCmd.Flags().StringP("output", "o", "", "Write export to this file instead of stdout")

	auditCmd.AddCommand(auditVerifyCmd, auditExportCmd)
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Recompute every entry's hash and verify the chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		auditPath, _ := cmd.Flags().GetString("audit-path")

		trail, err := audit.Open(audit.Config{Path: auditPath, Enabled: true})
		if err != nil {
			return fmt.Errorf("open audit trail: %w", err)
		}
		defer trail.Close()

		report := trail.VerifyIntegrity()
		if err := printJSON(report); err != nil {
			return err
		}
		if !report.Valid {
			return fmt.Errorf("audit trail integrity check failed")
		}
		return nil
	},
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the audit trail as json, csv, or a pdf marker",
	RunE: func(cmd *cobra.Command, args []string) error {
		auditPath, _ := cmd.Flags().GetString("audit-path")
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		trail, err := audit.Open(audit.Config{Path: auditPath, Enabled: true})
		if err != nil {
			return fmt.Errorf("open audit trail: %w", err)
		}
		defer trail.Close()

		data, err := trail.Export(audit.ExportFormat(format))
		if err != nil {
			return fmt.Errorf("export audit trail: %w", err)
		}

		if output == "" {
			os.Stdout.Write(data)
			if format != string(audit.ExportPDF) {
				os.Stdout.Write([]byte("\n"))
			}
			return nil
		}
		return os.WriteFile(output, data, 0o600)
	},
}
