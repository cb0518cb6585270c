package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/agentcage/pkg/types"
)

func settings() types.BreakerSettings {
	return types.BreakerSettings{
		FailureThreshold:    3,
		MonitorWindow:       time.Minute,
		ResetTimeout:        20 * time.Millisecond,
		HalfOpenMaxAttempts: 1,
	}
}

func TestBreakerStartsClosed(t *testing.T) {
	b := New("test", settings(), nil)
	assert.Equal(t, types.BreakerClosed, b.State())
}

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := New("test", settings(), nil)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_, err := b.Execute(func() (any, error) { return nil, boom })
		require.Error(t, err)
	}
	assert.Equal(t, types.BreakerOpen, b.State())

	_, err := b.Execute(func() (any, error) { return "should not run", nil })
	assert.ErrorIs(t, err, types.ErrCircuitOpen)

	snap := b.Snapshot()
	assert.Equal(t, 1, snap.TotalTrips)
	assert.False(t, snap.TrippedAt.IsZero())
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := New("test", settings(), nil)
	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		_, _ = b.Execute(func() (any, error) { return nil, boom })
	}
	require.Equal(t, types.BreakerOpen, b.State())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, types.BreakerHalfOpen, b.State())

	result, err := b.Execute(func() (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, types.BreakerClosed, b.State())
}

func TestBreakerReset(t *testing.T) {
	b := New("test", settings(), nil)
	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		_, _ = b.Execute(func() (any, error) { return nil, boom })
	}
	require.Equal(t, types.BreakerOpen, b.State())

	b.Reset()
	assert.Equal(t, types.BreakerClosed, b.State())
	assert.Empty(t, b.Snapshot().FailureTimestamps)
}

func TestManagerGetOrCreate(t *testing.T) {
	m := NewManager(nil)
	b1 := m.GetOrCreate("svc-a", settings())
	b2 := m.GetOrCreate("svc-a", settings())
	assert.Same(t, b1, b2)

	got, ok := m.Get("svc-a")
	assert.True(t, ok)
	assert.Same(t, b1, got)

	all := m.All()
	require.Len(t, all, 1)
	assert.Equal(t, "svc-a", all[0].Name)
}
