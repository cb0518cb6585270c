package main

import (
	"encoding/json"
	"os"

	"github.com/cuemby/agentcage/pkg/redact"
	"github.com/cuemby/agentcage/pkg/types"
)

// loadInstances reads the sandbox registry state file, following the
// teacher's JSON-marshal-per-key persistence idiom (pkg/storage.BoltStore)
// adapted to a single flat file since the CLI runs one process per
// invocation rather than as a long-lived daemon.
func loadInstances(path string) ([]types.SandboxInstance, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []types.SandboxInstance
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func saveInstances(path string, instances []types.SandboxInstance) error {
	data, err := json.MarshalIndent(instances, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func redactLevelFlag(s string) redact.Level {
	switch redact.Level(s) {
	case redact.None, redact.Partial, redact.Full:
		return redact.Level(s)
	default:
		return redact.Partial
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	os.Stdout.Write(data)
	os.Stdout.Write([]byte("\n"))
	return nil
}
