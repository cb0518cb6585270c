package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/agentcage/pkg/skill"
	"github.com/cuemby/agentcage/pkg/types"
)

var skillCmd = &cobra.Command{
	Use:   "skill",
	Short: "Run and inspect agentcage skills",
}

func init() {
	skillRunCmd.Flags().StringP("file", "f", "", "Skill manifest file (JSON, see SkillManifest)")
	skillRunCmd.Flags().String("agent", "", "Agent name the skill is run as (empty matches any agent-filtered skill)")
	_ = skillRunCmd.MarkFlagRequired("file")

	skillCmd.AddCommand(skillRunCmd)
}

// toolFixture is a canned outcome for one required tool, letting the CLI
// exercise the runner's fail-fast and validation logic without compiling
// Go closures for BuildArgs/ValidateResult.
type toolFixture struct {
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// stepManifest is one step's JSON shape: the tool it invokes, with no
// BuildArgs/ValidateResult — those are compiled-in collaborators of a real
// skill author, not CLI-expressible.
type stepManifest struct {
	Name string `json:"name"`
	Tool string `json:"tool"`
}

// skillManifest is the JSON document `skill run -f` loads.
type skillManifest struct {
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	Agents        []string      `json:"agents,omitempty"`
	RequiredTools []string      `json:"requiredTools,omitempty"`
	Steps         []stepManifest `json:"steps"`
	Version       string        `json:"version,omitempty"`
	Inputs        map[string]any `json:"inputs,omitempty"`
	Tools         []toolFixture `json:"tools,omitempty"`
}

var skillRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a skill manifest against fixture tool outcomes",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		agent, _ := cmd.Flags().GetString("agent")

		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read skill manifest: %w", err)
		}
		var m skillManifest
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("parse skill manifest: %w", err)
		}

		tools := skill.NewToolRegistry()
		for _, f := range m.Tools {
			fixture := f
			tools.Register(fixture.Name, func(args map[string]any) types.ToolResult {
				return types.ToolResult{Success: fixture.Success, Output: fixture.Output, Error: fixture.Error}
			})
		}
		// Any required/step tool without an explicit fixture defaults to a
		// successful echo of its own name, so a manifest can omit "tools"
		// entirely for the common happy-path case.
		for _, t := range m.RequiredTools {
			if _, ok := tools.Resolve(t); !ok {
				name := t
				tools.Register(name, func(args map[string]any) types.ToolResult {
					return types.ToolResult{Success: true, Output: name}
				})
			}
		}
		for _, s := range m.Steps {
			if _, ok := tools.Resolve(s.Tool); !ok {
				name := s.Tool
				tools.Register(name, func(args map[string]any) types.ToolResult {
					return types.ToolResult{Success: true, Output: name}
				})
			}
		}

		registry := skill.NewRegistry()
		steps := make([]skill.Step, 0, len(m.Steps))
		for _, s := range m.Steps {
			steps = append(steps, skill.Step{Name: s.Name, Tool: s.Tool})
		}
		registry.Register(skill.Skill{
			Name:          m.Name,
			Description:   m.Description,
			Agents:        m.Agents,
			RequiredTools: m.RequiredTools,
			Steps:         steps,
			Version:       m.Version,
		})

		runner := skill.NewRunner(registry, tools, nil)
		skillCtx := &types.SkillContext{Inputs: m.Inputs}
		result := runner.Execute(m.Name, agent, skillCtx)

		if err := printJSON(result); err != nil {
			return err
		}
		fmt.Println(skill.FormatResultForPrompt(result))
		if !result.Success {
			return fmt.Errorf("skill %q failed", m.Name)
		}
		return nil
	},
}
