package types

import "time"

// TrajectoryStep is one recorded agent action within a trajectory.
type TrajectoryStep struct {
	Agent             string    `json:"agent"`
	Action            string    `json:"action"`
	DecisionLogID     string    `json:"decisionLogId"`
	TokensUsed        int       `json:"tokensUsed"`
	TasteVaultInfluence float64 `json:"tasteVaultInfluence"`
	Timestamp         time.Time `json:"timestamp"`
}

// Trajectory is an ordered sequence of agent decisions recorded against a
// root intent, moving from the active set to the completed set exactly
// once, atomically, on complete().
type Trajectory struct {
	ID               string           `json:"id"`
	RootIntent       string           `json:"rootIntent"`
	Steps            []TrajectoryStep `json:"steps"`
	FinalOutcome     string           `json:"finalOutcome,omitempty"`
	TotalDurationMs  int64            `json:"totalDurationMs"`
	ComplianceScore  int              `json:"complianceScore"`
	startedAt        time.Time
	completedAt      time.Time
	complete         bool
}

// StartedAt returns the trajectory's creation time.
func (t *Trajectory) StartedAt() time.Time { return t.startedAt }

// SetStartedAt sets the trajectory's creation time; used by the recorder
// on construction.
func (t *Trajectory) SetStartedAt(ts time.Time) { t.startedAt = ts }

// IsComplete reports whether complete() has been called.
func (t *Trajectory) IsComplete() bool { return t.complete }

// MarkComplete records the trajectory as finished at ts; callers must hold
// whatever lock the owning recorder uses.
func (t *Trajectory) MarkComplete(ts time.Time) {
	t.completedAt = ts
	t.complete = true
}
