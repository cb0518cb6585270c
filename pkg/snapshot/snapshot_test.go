package snapshot

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/agentcage/pkg/idgen"
	"github.com/cuemby/agentcage/pkg/types"
)

// memFS is an in-memory FS double so tests never touch disk.
type memFS struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemFS() *memFS { return &memFS{files: make(map[string][]byte)} }

func (f *memFS) MkdirAll(path string, perm os.FileMode) error { return nil }

func (f *memFS) WriteFile(path string, data []byte, perm os.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = data
	return nil
}

func (f *memFS) ReadFile(path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func newManager(clock idgen.Clock) (*Manager, *memFS) {
	fs := newMemFS()
	return NewManager(Config{Dir: "/snapshots", FS: fs, Clock: clock}), fs
}

func TestCreateAndLoadSnapshot(t *testing.T) {
	m, _ := newManager(nil)
	snap, err := m.CreateSnapshot("build-1", map[string]string{"main.go": "hash-a"}, map[string]string{"foo": "1.0"}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, snap.ID)
	assert.NotEmpty(t, snap.EnvironmentHash)

	loaded, err := m.LoadSnapshot(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, loaded.ID)
}

func TestLoadSnapshotFallsBackToDisk(t *testing.T) {
	fs := newMemFS()
	first := NewManager(Config{Dir: "/snapshots", FS: fs})
	snap, err := first.CreateSnapshot("build-1", map[string]string{"a": "1"}, nil, nil)
	require.NoError(t, err)

	// a second manager sharing the backing store starts with an empty
	// cache, so this load exercises the disk fallback path
	second := NewManager(Config{Dir: "/snapshots", FS: fs})
	loaded, err := second.LoadSnapshot(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.BuildID, loaded.BuildID)
}

func TestEnvironmentHashIsOrderIndependent(t *testing.T) {
	h1 := EnvironmentHash(map[string]string{"a": "1", "b": "2"})
	h2 := EnvironmentHash(map[string]string{"b": "2", "a": "1"})
	assert.Equal(t, h1, h2)
}

func TestCompareSnapshots(t *testing.T) {
	a := &types.BuildSnapshot{Files: map[string]string{"x.go": "h1", "y.go": "h2"}}
	b := &types.BuildSnapshot{Files: map[string]string{"x.go": "h1", "y.go": "h3", "z.go": "h4"}}

	diff := CompareSnapshots(a, b)
	assert.Equal(t, []string{"z.go"}, diff.Added)
	assert.Equal(t, []string{"y.go"}, diff.Modified)
	assert.Empty(t, diff.Removed)
	assert.Equal(t, 1, diff.UnchangedCount)
}

func TestIsCompatible(t *testing.T) {
	a := &types.BuildSnapshot{EnvironmentHash: "h1"}
	b := &types.BuildSnapshot{EnvironmentHash: "h1"}
	c := &types.BuildSnapshot{EnvironmentHash: "h2"}
	assert.True(t, IsCompatible(a, b))
	assert.False(t, IsCompatible(a, c))
}

func TestPruneOldSnapshotsByAgeAndCount(t *testing.T) {
	clock := idgen.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	m, _ := newManager(clock)

	_, err := m.CreateSnapshot("b", nil, nil, nil)
	require.NoError(t, err)
	clock.Advance(time.Hour)
	_, err = m.CreateSnapshot("b", nil, nil, nil)
	require.NoError(t, err)

	pruned := m.PruneOldSnapshots(30 * 60 * 1000)
	assert.Equal(t, 1, pruned)
	_, ok := m.GetLatestSnapshot("")
	assert.True(t, ok)
}

func TestPruneOldSnapshotsByCount(t *testing.T) {
	clock := idgen.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	m, fs := newManager(clock)
	m.maxSnapshots = 1
	_ = fs

	_, err := m.CreateSnapshot("b", nil, nil, nil)
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = m.CreateSnapshot("b", nil, nil, nil)
	require.NoError(t, err)

	pruned := m.PruneOldSnapshots(0)
	assert.Equal(t, 1, pruned)
}
