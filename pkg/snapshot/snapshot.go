// Package snapshot implements agentcage's build snapshot manager:
// content-hash file-set snapshots persisted to disk through an injected
// filesystem seam, grounded on the teacher's JSON-marshal-to-disk
// persistence idiom in pkg/storage/boltdb.go and its SHA-256 hashing
// conventions in pkg/security/secrets.go.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/agentcage/pkg/idgen"
	"github.com/cuemby/agentcage/pkg/redact"
	"github.com/cuemby/agentcage/pkg/types"
)

// FS abstracts the filesystem calls the manager needs, so tests can
// inject an in-memory double instead of touching disk.
type FS interface {
	MkdirAll(path string, perm os.FileMode) error
	WriteFile(path string, data []byte, perm os.FileMode) error
	ReadFile(path string) ([]byte, error)
}

// OSFilesystem is the default FS, backed directly by the os package.
type OSFilesystem struct{}

func (OSFilesystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}
func (OSFilesystem) WriteFile(path string, data []byte, perm os.FileMode) error {
	return os.WriteFile(path, data, perm)
}
func (OSFilesystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// DefaultMaxSnapshots bounds how many snapshots PruneOldSnapshots keeps
// once age-based pruning leaves more than this many behind.
const DefaultMaxSnapshots = 20

// Manager creates, loads, compares, and prunes build snapshots.
type Manager struct {
	mu            sync.Mutex
	dir           string
	fs            FS
	clock         idgen.Clock
	maxSnapshots  int
	cache         map[string]*types.BuildSnapshot
}

// Config configures a Manager.
type Config struct {
	Dir          string
	FS           FS
	Clock        idgen.Clock
	MaxSnapshots int
}

// NewManager returns a Manager rooted at cfg.Dir.
func NewManager(cfg Config) *Manager {
	if cfg.FS == nil {
		cfg.FS = OSFilesystem{}
	}
	if cfg.Clock == nil {
		cfg.Clock = idgen.SystemClock{}
	}
	if cfg.MaxSnapshots <= 0 {
		cfg.MaxSnapshots = DefaultMaxSnapshots
	}
	return &Manager{
		dir:          cfg.Dir,
		fs:           cfg.FS,
		clock:        cfg.Clock,
		maxSnapshots: cfg.MaxSnapshots,
		cache:        make(map[string]*types.BuildSnapshot),
	}
}

// EnvironmentHash computes a deterministic digest over sorted
// "name@version" dependency pairs, joined by "|".
func EnvironmentHash(deps map[string]string) string {
	pairs := make([]string, 0, len(deps))
	for name, version := range deps {
		pairs = append(pairs, name+"@"+version)
	}
	sort.Strings(pairs)
	joined := ""
	for i, p := range pairs {
		if i > 0 {
			joined += "|"
		}
		joined += p
	}
	return redact.Hash([]byte(joined))
}

func (m *Manager) path(id string) string {
	return filepath.Join(m.dir, id+".json")
}

// CreateSnapshot allocates a UUID, computes the environment hash, writes
// the snapshot to disk, and caches it in memory.
func (m *Manager) CreateSnapshot(buildID string, files, deps map[string]string, metadata map[string]any) (*types.BuildSnapshot, error) {
	now := m.clock.Now()
	snap := &types.BuildSnapshot{
		ID:              idgen.New(),
		BuildID:         buildID,
		CreatedAt:       now.UTC().Format(time.RFC3339),
		Files:           files,
		Dependencies:    deps,
		EnvironmentHash: EnvironmentHash(deps),
		Metadata:        metadata,
	}
	snap.SetCreatedAtTime(now)

	if err := m.fs.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir snapshot dir: %w", err)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := m.fs.WriteFile(m.path(snap.ID), data, 0o644); err != nil {
		return nil, fmt.Errorf("write snapshot: %w", err)
	}

	m.mu.Lock()
	m.cache[snap.ID] = snap
	m.mu.Unlock()
	return snap, nil
}

// LoadSnapshot checks the in-memory cache first, then falls back to disk.
func (m *Manager) LoadSnapshot(id string) (*types.BuildSnapshot, error) {
	m.mu.Lock()
	if snap, ok := m.cache[id]; ok {
		m.mu.Unlock()
		return snap, nil
	}
	m.mu.Unlock()

	data, err := m.fs.ReadFile(m.path(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}
	var snap types.BuildSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if t, err := time.Parse(time.RFC3339, snap.CreatedAt); err == nil {
		snap.SetCreatedAtTime(t)
	}

	m.mu.Lock()
	m.cache[id] = &snap
	m.mu.Unlock()
	return &snap, nil
}

// GetLatestSnapshot returns the most recently created cached snapshot,
// optionally filtered to a single buildID.
func (m *Manager) GetLatestSnapshot(buildID string) (*types.BuildSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *types.BuildSnapshot
	for _, snap := range m.cache {
		if buildID != "" && snap.BuildID != buildID {
			continue
		}
		if latest == nil || snap.CreatedAtTime().After(latest.CreatedAtTime()) {
			latest = snap
		}
	}
	return latest, latest != nil
}

// CompareSnapshots diffs two snapshots' file sets by path and hash
// equality.
func CompareSnapshots(a, b *types.BuildSnapshot) types.SnapshotDiff {
	var diff types.SnapshotDiff
	for path, hash := range b.Files {
		aHash, existed := a.Files[path]
		switch {
		case !existed:
			diff.Added = append(diff.Added, path)
		case aHash != hash:
			diff.Modified = append(diff.Modified, path)
		default:
			diff.UnchangedCount++
		}
	}
	for path := range a.Files {
		if _, stillPresent := b.Files[path]; !stillPresent {
			diff.Removed = append(diff.Removed, path)
		}
	}
	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)
	sort.Strings(diff.Modified)
	return diff
}

// IsCompatible reports whether two snapshots share an environment hash.
func IsCompatible(a, b *types.BuildSnapshot) bool {
	return a.EnvironmentHash == b.EnvironmentHash
}

// PruneOldSnapshots first drops cached snapshots older than maxAgeMs (if
// positive), then drops the oldest excess beyond the manager's
// maxSnapshots, returning the total number pruned.
func (m *Manager) PruneOldSnapshots(maxAgeMs int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]*types.BuildSnapshot, 0, len(m.cache))
	for _, s := range m.cache {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAtTime().Before(all[j].CreatedAtTime()) })

	pruned := 0
	if maxAgeMs > 0 {
		cutoff := m.clock.Now().Add(-time.Duration(maxAgeMs) * time.Millisecond)
		kept := all[:0]
		for _, s := range all {
			if s.CreatedAtTime().Before(cutoff) {
				delete(m.cache, s.ID)
				pruned++
			} else {
				kept = append(kept, s)
			}
		}
		all = kept
	}

	if excess := len(all) - m.maxSnapshots; excess > 0 {
		for _, s := range all[:excess] {
			delete(m.cache, s.ID)
			pruned++
		}
	}

	return pruned
}
