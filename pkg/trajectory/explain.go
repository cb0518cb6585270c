package trajectory

import (
	"fmt"
	"sort"

	"github.com/cuemby/agentcage/pkg/types"
)

// Depth controls how much detail an explanation carries.
type Depth string

const (
	Summary   Depth = "summary"
	Detailed  Depth = "detailed"
	Technical Depth = "technical"
)

// TasteVaultFactor describes one agent's taste-vault influence strength
// across a trajectory's steps.
type TasteVaultFactor struct {
	Agent    string  `json:"agent"`
	Average  float64 `json:"average"`
	Strength string  `json:"strength"` // strong | moderate | low
}

// Explanation is the explanation engine's structured narrative output.
type Explanation struct {
	Narrative       string             `json:"narrative"`
	TasteVaultFactors []TasteVaultFactor `json:"tasteVaultFactors"`
	DominantAgent   string             `json:"dominantAgent,omitempty"`
}

// Explain produces a narrative for a trajectory at the requested depth.
func Explain(traj *types.Trajectory, depth Depth) Explanation {
	factors := tasteVaultFactors(traj.Steps)
	dominant := dominantAgent(factors)

	var narrative string
	switch depth {
	case Technical:
		narrative = fmt.Sprintf(
			"trajectory %s: %d steps, durationMs=%d, complianceScore=%d, outcome=%q",
			traj.ID, len(traj.Steps), traj.TotalDurationMs, traj.ComplianceScore, traj.FinalOutcome,
		)
	case Detailed:
		narrative = fmt.Sprintf(
			"%q produced %d steps across %d agents, finishing with %q (compliance score %d)",
			traj.RootIntent, len(traj.Steps), countDistinctAgents(traj.Steps), traj.FinalOutcome, traj.ComplianceScore,
		)
	default: // Summary
		narrative = fmt.Sprintf("%q: %s", traj.RootIntent, traj.FinalOutcome)
	}

	return Explanation{
		Narrative:         narrative,
		TasteVaultFactors: factors,
		DominantAgent:     dominant,
	}
}

func tasteVaultFactors(steps []types.TrajectoryStep) []TasteVaultFactor {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	var order []string
	for _, s := range steps {
		if counts[s.Agent] == 0 {
			order = append(order, s.Agent)
		}
		sums[s.Agent] += s.TasteVaultInfluence
		counts[s.Agent]++
	}

	factors := make([]TasteVaultFactor, 0, len(order))
	for _, agent := range order {
		avg := sums[agent] / float64(counts[agent])
		factors = append(factors, TasteVaultFactor{
			Agent:    agent,
			Average:  avg,
			Strength: strengthFor(avg),
		})
	}
	return factors
}

func strengthFor(avg float64) string {
	switch {
	case avg > 0.8:
		return "strong"
	case avg >= 0.5:
		return "moderate"
	default:
		return "low"
	}
}

func dominantAgent(factors []TasteVaultFactor) string {
	if len(factors) == 0 {
		return ""
	}
	sorted := make([]TasteVaultFactor, len(factors))
	copy(sorted, factors)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Average > sorted[j].Average })
	return sorted[0].Agent
}

func countDistinctAgents(steps []types.TrajectoryStep) int {
	seen := make(map[string]bool)
	for _, s := range steps {
		seen[s.Agent] = true
	}
	return len(seen)
}

// AgentStepCounts summarizes steps per agent for ExplainTrajectory's
// "steps per agent" breakdown.
func AgentStepCounts(traj *types.Trajectory) map[string]int {
	counts := make(map[string]int)
	for _, s := range traj.Steps {
		counts[s.Agent]++
	}
	return counts
}
