package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/agentcage/pkg/netpolicy"
	"github.com/cuemby/agentcage/pkg/types"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Evaluate network policy rules against a packet intent",
}

func init() {
	policyTestCmd.Flags().StringP("file", "f", "", "JSON array of types.NetworkRule to load before evaluating")
	policyTestCmd.Flags().String("sandbox", "", "Sandbox id the packet intent applies to")
	policyTestCmd.Flags().String("direction", "egress", "ingress or egress")
	policyTestCmd.Flags().String("protocol", "tcp", "tcp, udp, or any")
	policyTestCmd.Flags().String("host", "", "Destination host")
	policyTestCmd.Flags().Int("port", 0, "Destination port")
	policyTestCmd.Flags().String("default-action", "deny", "Fallback action when no rule matches")
	_ = policyTestCmd.MarkFlagRequired("file")

	policyCmd.AddCommand(policyTestCmd)
}

var policyTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Load a rule set and evaluate one packet intent against it",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read rule file: %w", err)
		}
		var rules []types.NetworkRule
		if err := json.Unmarshal(data, &rules); err != nil {
			return fmt.Errorf("parse rule file: %w", err)
		}

		defaultAction, _ := cmd.Flags().GetString("default-action")
		mgr := netpolicy.NewManager(netpolicy.Config{DefaultAction: types.RuleAction(defaultAction)})
		for _, r := range rules {
			mgr.AddRule(r)
		}

		sandboxID, _ := cmd.Flags().GetString("sandbox")
		direction, _ := cmd.Flags().GetString("direction")
		protocol, _ := cmd.Flags().GetString("protocol")
		host, _ := cmd.Flags().GetString("host")
		port, _ := cmd.Flags().GetInt("port")

		intent := types.PacketIntent{
			SandboxID: sandboxID,
			Direction: types.Direction(direction),
			Protocol:  types.Protocol(protocol),
			Host:      host,
			Port:      port,
		}

		decision := mgr.Evaluate(intent)
		return printJSON(decision)
	},
}
