package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/agentcage/pkg/idgen"
	"github.com/cuemby/agentcage/pkg/isolation"
	"github.com/cuemby/agentcage/pkg/netpolicy"
	"github.com/cuemby/agentcage/pkg/resourcemon"
	"github.com/cuemby/agentcage/pkg/types"
)

func newTestManager() *Manager {
	clock := idgen.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	m := NewManager(Config{
		MaxConcurrent: 2,
		Clock:         clock,
		Isolation:     isolation.NewManager(clock),
		NetPolicy:     netpolicy.NewManager(netpolicy.Config{Clock: clock}),
		ResourceMon:   resourcemon.NewMonitor(10),
	})
	m.Initialize()
	return m
}

func testSpec() types.SandboxSpec {
	return types.SandboxSpec{
		Name:           "agent-sbx",
		Backend:        types.BackendMicroVM,
		Image:          "agent-base:latest",
		IsolationLevel: types.TierNamespace,
	}
}

func TestSpawnAndGet(t *testing.T) {
	m := newTestManager()
	id, err := m.Spawn(context.Background(), testSpec())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	inst, ok := m.Get(id)
	require.True(t, ok)
	assert.Equal(t, types.SandboxRunning, inst.State)
}

func TestSpawnRejectsBeyondConcurrencyLimit(t *testing.T) {
	m := newTestManager()
	_, err := m.Spawn(context.Background(), testSpec())
	require.NoError(t, err)
	_, err = m.Spawn(context.Background(), testSpec())
	require.NoError(t, err)

	_, err = m.Spawn(context.Background(), testSpec())
	assert.ErrorIs(t, err, types.ErrTooManySandboxes)
}

func TestSpawnBeforeInitializeFails(t *testing.T) {
	m := NewManager(Config{})
	_, err := m.Spawn(context.Background(), testSpec())
	assert.ErrorIs(t, err, types.ErrNotInitialized)
}

func TestTerminateReleasesSlotAndRetainsInstance(t *testing.T) {
	m := newTestManager()
	id, err := m.Spawn(context.Background(), testSpec())
	require.NoError(t, err)

	require.NoError(t, m.Terminate(context.Background(), id))

	inst, ok := m.Get(id)
	require.True(t, ok)
	assert.Equal(t, types.SandboxStopped, inst.State)

	// the freed slot should allow a fresh spawn even at maxConcurrent=2
	_, err = m.Spawn(context.Background(), testSpec())
	require.NoError(t, err)
	_, err = m.Spawn(context.Background(), testSpec())
	require.NoError(t, err)
}

func TestTerminateUnknownSandbox(t *testing.T) {
	m := newTestManager()
	err := m.Terminate(context.Background(), "ghost")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestPauseResumeLifecycle(t *testing.T) {
	m := newTestManager()
	id, err := m.Spawn(context.Background(), testSpec())
	require.NoError(t, err)

	require.NoError(t, m.Pause(context.Background(), id))
	inst, _ := m.Get(id)
	assert.Equal(t, types.SandboxPaused, inst.State)

	require.NoError(t, m.Resume(context.Background(), id))
	inst, _ = m.Get(id)
	assert.Equal(t, types.SandboxRunning, inst.State)
}

func TestPauseInvalidTransition(t *testing.T) {
	m := newTestManager()
	id, err := m.Spawn(context.Background(), testSpec())
	require.NoError(t, err)
	require.NoError(t, m.Pause(context.Background(), id))

	err = m.Pause(context.Background(), id)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)
}

func TestExecuteTaskDeniedWithoutPolicy(t *testing.T) {
	m := newTestManager()
	id, err := m.Spawn(context.Background(), testSpec())
	require.NoError(t, err)

	_, err = m.ExecuteTask(context.Background(), id, types.TaskPayload{TaskID: "t1", AgentID: "agent-1", Action: "noop"})
	assert.ErrorIs(t, err, types.ErrPolicyDenied)
}

func TestExecuteTaskSucceedsWithPolicy(t *testing.T) {
	m := newTestManager()
	id, err := m.Spawn(context.Background(), testSpec())
	require.NoError(t, err)

	m.RegisterPolicy(types.Policy{AgentID: "agent-1", AllowedOperations: []string{"noop"}})
	result, err := m.ExecuteTask(context.Background(), id, types.TaskPayload{TaskID: "t1", AgentID: "agent-1", Action: "noop"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "t1", result.TaskID)
}

func TestEvaluatePolicyBlockedWinsOverAllowed(t *testing.T) {
	m := newTestManager()
	m.RegisterPolicy(types.Policy{
		AgentID:           "agent-1",
		AllowedOperations: []string{"exec"},
		BlockedOperations: []string{"exec"},
	})

	allowed, _ := m.EvaluatePolicy("agent-1", "exec")
	assert.False(t, allowed)
}

func TestVerifyCleanupAfterTerminate(t *testing.T) {
	m := newTestManager()
	id, err := m.Spawn(context.Background(), testSpec())
	require.NoError(t, err)

	report, err := m.VerifyCleanup(id)
	require.NoError(t, err)
	assert.False(t, report.Cleaned)

	require.NoError(t, m.Terminate(context.Background(), id))
	report, err = m.VerifyCleanup(id)
	require.NoError(t, err)
	assert.True(t, report.Cleaned)
}

func TestSubscribeReceivesLifecycleEvents(t *testing.T) {
	m := newTestManager()
	var events []types.Event
	unsub := m.Subscribe(func(e types.Event) { events = append(events, e) })
	defer unsub()

	id, err := m.Spawn(context.Background(), testSpec())
	require.NoError(t, err)
	require.NoError(t, m.Terminate(context.Background(), id))

	var eventTypes []string
	for _, e := range events {
		eventTypes = append(eventTypes, e.Type)
	}
	assert.Contains(t, eventTypes, types.EventSpawned)
	assert.Contains(t, eventTypes, types.EventTerminated)
}

func TestCloseTerminatesAllNonTerminal(t *testing.T) {
	m := newTestManager()
	id1, err := m.Spawn(context.Background(), testSpec())
	require.NoError(t, err)
	id2, err := m.Spawn(context.Background(), testSpec())
	require.NoError(t, err)

	require.NoError(t, m.Close(context.Background()))

	inst1, _ := m.Get(id1)
	inst2, _ := m.Get(id2)
	assert.Equal(t, types.SandboxStopped, inst1.State)
	assert.Equal(t, types.SandboxStopped, inst2.State)
}
