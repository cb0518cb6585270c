package trajectory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/agentcage/pkg/idgen"
	"github.com/cuemby/agentcage/pkg/types"
)

func TestRecordStepUnknownIDErrors(t *testing.T) {
	r := NewRecorder(nil)
	err := r.RecordStep("nope", types.TrajectoryStep{})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestCompleteMovesActiveToCompleted(t *testing.T) {
	clock := idgen.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	r := NewRecorder(clock)

	id := r.Start("build a widget")
	require.Equal(t, 1, r.ActiveCount())

	require.NoError(t, r.RecordStep(id, types.TrajectoryStep{Agent: "a1", Timestamp: clock.Now()}))
	clock.Advance(2 * time.Second)
	require.NoError(t, r.RecordStep(id, types.TrajectoryStep{Agent: "a1", Timestamp: clock.Now()}))

	traj, err := r.Complete(id, "done")
	require.NoError(t, err)
	assert.Equal(t, "done", traj.FinalOutcome)
	assert.Equal(t, int64(2000), traj.TotalDurationMs)
	assert.Equal(t, 0, r.ActiveCount())
	assert.Equal(t, 1, r.CompletedCount())
}

func TestComplianceScoreDeductions(t *testing.T) {
	var steps []types.TrajectoryStep
	for i := 0; i < 11; i++ {
		steps = append(steps, types.TrajectoryStep{TokensUsed: 1000, TasteVaultInfluence: 0.9})
	}
	// >10 steps (-5), totalTokens 11000 > 10000 (-5), avg influence 0.9 stays high.
	assert.Equal(t, 90, complianceScore(steps))
}

func TestComplianceScoreFloorsAtZero(t *testing.T) {
	var steps []types.TrajectoryStep
	for i := 0; i < 11; i++ {
		steps = append(steps, types.TrajectoryStep{TokensUsed: 2000, TasteVaultInfluence: 0.1})
	}
	score := complianceScore(steps)
	assert.GreaterOrEqual(t, score, 0)
}

func TestExplainSummaryAndDominantAgent(t *testing.T) {
	traj := &types.Trajectory{
		ID:         "t1",
		RootIntent: "ship feature",
		Steps: []types.TrajectoryStep{
			{Agent: "planner", TasteVaultInfluence: 0.9},
			{Agent: "coder", TasteVaultInfluence: 0.3},
		},
		FinalOutcome: "shipped",
	}

	exp := Explain(traj, Summary)
	assert.Contains(t, exp.Narrative, "shipped")
	assert.Equal(t, "planner", exp.DominantAgent)
	require.Len(t, exp.TasteVaultFactors, 2)
}
