package types

// SkillContext is passed to a step's BuildArgs: accumulated inputs, the
// working directory, and a step-name -> output map built up as the
// runner walks the step list.
type SkillContext struct {
	Inputs     map[string]any
	WorkingDir string
	StepOutputs map[string]string
}

// SkillRunResult is always returned by the runner; it never throws.
type SkillRunResult struct {
	Success        bool   `json:"success"`
	StepsCompleted int    `json:"stepsCompleted"`
	FailedStep     string `json:"failedStep,omitempty"`
	Error          string `json:"error,omitempty"`
	DurationMs     int64  `json:"durationMs"`
}

// ToolResult is what a registered tool returns to the runner.
type ToolResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}
