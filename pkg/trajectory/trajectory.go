// Package trajectory records per-workflow step timelines and produces
// human-facing explanations of them, grounded on the teacher's
// map-plus-mutex bookkeeping style in pkg/events/events.go.
package trajectory

import (
	"fmt"
	"sync"

	"github.com/cuemby/agentcage/pkg/idgen"
	"github.com/cuemby/agentcage/pkg/types"
)

// Recorder owns the active and completed trajectory sets, which are kept
// disjoint: complete() atomically moves a trajectory between them.
type Recorder struct {
	mu        sync.Mutex
	active    map[string]*types.Trajectory
	completed map[string]*types.Trajectory
	clock     idgen.Clock
}

// NewRecorder returns an empty Recorder.
func NewRecorder(clock idgen.Clock) *Recorder {
	if clock == nil {
		clock = idgen.SystemClock{}
	}
	return &Recorder{
		active:    make(map[string]*types.Trajectory),
		completed: make(map[string]*types.Trajectory),
		clock:     clock,
	}
}

// Start creates a new active trajectory for rootIntent and returns its id.
func (r *Recorder) Start(rootIntent string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	traj := &types.Trajectory{ID: idgen.New(), RootIntent: rootIntent}
	traj.SetStartedAt(r.clock.Now())
	r.active[traj.ID] = traj
	return traj.ID
}

// RecordStep appends a step to the active trajectory id. Unknown ids
// return an error (the reference throws).
func (r *Recorder) RecordStep(id string, step types.TrajectoryStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	traj, ok := r.active[id]
	if !ok {
		return fmt.Errorf("trajectory %s: %w", id, types.ErrNotFound)
	}
	traj.Steps = append(traj.Steps, step)
	return nil
}

// Complete stamps the final outcome, computes duration and compliance
// score, and moves the trajectory from active to completed.
func (r *Recorder) Complete(id, outcome string) (*types.Trajectory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	traj, ok := r.active[id]
	if !ok {
		return nil, fmt.Errorf("trajectory %s: %w", id, types.ErrNotFound)
	}

	now := r.clock.Now()
	traj.FinalOutcome = outcome
	traj.MarkComplete(now)

	if len(traj.Steps) > 0 {
		first := traj.Steps[0].Timestamp
		last := traj.Steps[len(traj.Steps)-1].Timestamp
		traj.TotalDurationMs = last.Sub(first).Milliseconds()
	}
	traj.ComplianceScore = complianceScore(traj.Steps)

	delete(r.active, id)
	r.completed[id] = traj
	return traj, nil
}

func complianceScore(steps []types.TrajectoryStep) int {
	score := 100
	if len(steps) > 10 {
		score -= 5
	}

	var totalTokens int
	var influenceSum float64
	for _, s := range steps {
		totalTokens += s.TokensUsed
		influenceSum += s.TasteVaultInfluence
	}
	if totalTokens > 10000 {
		score -= 5
	}
	if len(steps) > 0 && influenceSum/float64(len(steps)) < 0.5 {
		score -= 10
	}

	if score < 0 {
		score = 0
	}
	return score
}

// Get returns a trajectory from either set.
func (r *Recorder) Get(id string) (*types.Trajectory, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.active[id]; ok {
		return t, true
	}
	t, ok := r.completed[id]
	return t, ok
}

// ActiveCount and CompletedCount expose set sizes for tests and the
// observer bridge.
func (r *Recorder) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

func (r *Recorder) CompletedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.completed)
}
