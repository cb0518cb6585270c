package main

import (
	"fmt"

	"github.com/cuemby/agentcage/pkg/audit"
	"github.com/cuemby/agentcage/pkg/redact"
	"github.com/cuemby/agentcage/pkg/types"
)

// logSandboxDecision opens the audit trail at auditPath, appends one
// decision, and closes it. Each CLI invocation is its own process, so the
// trail is reopened fresh every call and replays its prior JSONL lines per
// pkg/audit.Open's contract — the chain survives across invocations the
// same way it would survive a daemon restart.
func logSandboxDecision(auditPath string, level redact.Level, agentID string, decision types.DecisionType, input, output, reasoning string) error {
	trail, err := audit.Open(audit.Config{Path: auditPath, Enabled: true, RedactLevel: level})
	if err != nil {
		return fmt.Errorf("open audit trail: %w", err)
	}
	defer trail.Close()

	_, err = trail.LogDecision(agentID, decision, input, output, reasoning, "", types.RiskLow, nil)
	return err
}
