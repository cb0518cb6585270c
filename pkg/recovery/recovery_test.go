package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/agentcage/pkg/idgen"
	"github.com/cuemby/agentcage/pkg/types"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Clock = idgen.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg.Sleep = func(ctx context.Context, d time.Duration) {}
	cfg.Rand = func() float64 { return 0 }
	return cfg
}

func TestSelectStrategyPicksLowestPriority(t *testing.T) {
	o := NewOrchestrator(testConfig())
	s, ok := o.SelectStrategy(types.ClassTimeout)
	require.True(t, ok)
	assert.Equal(t, "retry-transient", s.Name)
}

func TestSelectStrategyNoneApplicable(t *testing.T) {
	o := NewOrchestrator(testConfig())
	_, ok := o.SelectStrategy(types.ErrorClass("made-up"))
	assert.False(t, ok)
}

func TestComputeBackoffGrowsAndCaps(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBackoffMs = 2000
	o := NewOrchestrator(cfg)

	d0 := o.ComputeBackoff(0)
	d3 := o.ComputeBackoff(3)
	assert.Equal(t, 500*time.Millisecond, d0)
	assert.LessOrEqual(t, d3, 2000*time.Millisecond)
}

func TestExecuteStrategyRetriesUntilSuccess(t *testing.T) {
	o := NewOrchestrator(testConfig())
	attempts := 0
	action := func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return errors.New("transient")
		}
		return nil
	}

	result := o.ExecuteStrategy(context.Background(), Strategy{Name: "retry-transient", MaxAttempts: 3}, action)
	assert.True(t, result.Success)
	assert.Len(t, result.Attempts, 2)
}

func TestExecuteStrategyExhaustsAttempts(t *testing.T) {
	o := NewOrchestrator(testConfig())
	action := func(ctx context.Context) error { return errors.New("always fails") }

	result := o.ExecuteStrategy(context.Background(), Strategy{Name: "skip-task", MaxAttempts: 2}, action)
	assert.False(t, result.Success)
	assert.Len(t, result.Attempts, 2)
}

func TestOrchestrateAbortsWhenNoStrategyApplies(t *testing.T) {
	o := NewOrchestrator(testConfig())
	classified := types.ClassifiedError{Class: types.ErrorClass("made-up")}

	result := o.Orchestrate(context.Background(), classified, func(ctx context.Context) error { return nil })
	assert.False(t, result.Success)
	assert.Equal(t, "abort", result.Strategy)
	assert.Empty(t, result.Attempts)

	history := o.History()
	require.Len(t, history, 1)
}

func TestOrchestrateSelectsAndExecutes(t *testing.T) {
	o := NewOrchestrator(testConfig())
	classified := types.ClassifiedError{Class: types.ClassValidation}

	result := o.Orchestrate(context.Background(), classified, func(ctx context.Context) error { return nil })
	assert.True(t, result.Success)
	assert.Equal(t, "skip-task", result.Strategy)
}
