// Package offline provides agentcage's local-first durability layer: a
// bbolt-backed key-value table plus a mutation sync queue that is drained
// on reconnection to the control plane, grounded on the teacher's
// bucket-per-entity BoltStore pattern.
package offline

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/agentcage/pkg/idgen"
	"github.com/cuemby/agentcage/pkg/log"
	"github.com/cuemby/agentcage/pkg/metrics"
	"github.com/cuemby/agentcage/pkg/types"
)

var (
	bucketKV        = []byte("kv_store")
	bucketSyncQueue = []byte("sync_queue")
)

// Mutator delivers a queued mutation to the remote control plane. A
// non-nil error is treated as a failed attempt.
type Mutator func(path string, args map[string]any) error

// ConnState is the store's belief about control-plane reachability.
type ConnState string

const (
	Online  ConnState = "online"
	Offline ConnState = "offline"
)

// Config configures a Store.
type Config struct {
	DataDir           string
	ProbeURL          string
	MaxRetryAttempts  int
	Mutator           Mutator
	Clock             idgen.Clock
	HTTPClient        *http.Client
}

// Store is the offline KV + sync queue engine. A single process owns the
// database; it is single-writer.
type Store struct {
	mu        sync.Mutex
	db        *bolt.DB
	cfg       Config
	state     ConnState
	listeners []func(types.Event)
}

// New opens (or creates) the bbolt database under cfg.DataDir and
// prepares both tables.
func New(cfg Config) (*Store, error) {
	if cfg.MaxRetryAttempts <= 0 {
		cfg.MaxRetryAttempts = 5
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 3 * time.Second}
	}
	if cfg.Clock == nil {
		cfg.Clock = idgen.SystemClock{}
	}

	dbPath := filepath.Join(cfg.DataDir, "agentcage-offline.db")
	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open offline store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketKV, bucketSyncQueue} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, cfg: cfg, state: Offline}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Subscribe registers a listener invoked for "connected" transitions and
// returns an idempotent unsubscribe function.
func (s *Store) Subscribe(fn func(types.Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.listeners)
	s.listeners = append(s.listeners, fn)
	unsubscribed := false
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if unsubscribed || idx >= len(s.listeners) {
			return
		}
		s.listeners[idx] = nil
		unsubscribed = true
	}
}

func (s *Store) broadcast(ev types.Event) {
	for _, l := range s.listeners {
		if l != nil {
			l(ev)
		}
	}
}

// kvKey joins namespace and key into the bbolt key, preventing collisions
// across namespaces.
func kvKey(namespace, key string) []byte {
	return []byte(namespace + "\x00" + key)
}

// Put upserts a value under namespace/key.
func (s *Store) Put(namespace, key string, value any) error {
	rec := types.KVRecord{Namespace: namespace, Key: key, Value: value, UpdatedAt: s.cfg.Clock.Now()}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal kv record: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKV).Put(kvKey(namespace, key), data)
	})
}

// Get reads a value previously stored under namespace/key.
func (s *Store) Get(namespace, key string) (*types.KVRecord, error) {
	var rec types.KVRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketKV).Get(kvKey(namespace, key))
		if data == nil {
			return types.ErrNotFound
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CheckConnectivity issues a HEAD request against the configured probe
// endpoint with a 3-second timeout. 2xx/3xx is treated as online. A
// transition from offline to online fires a "connected" event and
// triggers a flush.
func (s *Store) CheckConnectivity() ConnState {
	prev := s.state

	client := s.cfg.HTTPClient
	req, err := http.NewRequest(http.MethodHead, s.cfg.ProbeURL, nil)
	next := Offline
	if err == nil {
		resp, doErr := client.Do(req)
		if doErr == nil {
			if resp.StatusCode < 400 {
				next = Online
			}
			resp.Body.Close()
		}
	}

	s.mu.Lock()
	s.state = next
	s.mu.Unlock()

	if prev == Offline && next == Online {
		s.broadcast(types.Event{Type: "connected", Timestamp: s.cfg.Clock.Now()})
		go func() {
			if _, err := s.Flush(); err != nil {
				log.WithComponent("offline").Error().Err(err).Msg("flush on reconnect failed")
			}
		}()
	}

	return next
}

// State returns the store's current connectivity belief without probing.
func (s *Store) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Enqueue inserts a pending sync entry. If the store currently believes it
// is online, a flush is kicked off in the background.
func (s *Store) Enqueue(path string, args map[string]any) (string, error) {
	entry := types.SyncQueueEntry{
		ID:           idgen.New(),
		MutationPath: path,
		Args:         args,
		EnqueuedAt:   s.cfg.Clock.Now(),
		Status:       types.SyncPending,
	}
	if err := s.putEntry(entry); err != nil {
		return "", err
	}
	metrics.SyncQueueDepth.Inc()

	if s.State() == Online {
		go func() {
			if _, err := s.Flush(); err != nil {
				log.WithComponent("offline").Error().Err(err).Msg("background flush failed")
			}
		}()
	}
	return entry.ID, nil
}

func (s *Store) putEntry(e types.SyncQueueEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal sync entry: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSyncQueue).Put([]byte(e.ID), data)
	})
}

func (s *Store) allEntries() ([]types.SyncQueueEntry, error) {
	var entries []types.SyncQueueEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSyncQueue).ForEach(func(_, v []byte) error {
			var e types.SyncQueueEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		})
	})
	return entries, err
}

// Flush scans pending and retrying entries in enqueuedAt order and
// attempts each against the configured Mutator.
func (s *Store) Flush() (types.FlushResult, error) {
	entries, err := s.allEntries()
	if err != nil {
		return types.FlushResult{}, err
	}

	var pending []types.SyncQueueEntry
	var skipped int
	for _, e := range entries {
		switch e.Status {
		case types.SyncPending, types.SyncRetrying:
			pending = append(pending, e)
		case types.SyncFailed:
			skipped++
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].EnqueuedAt.Before(pending[j].EnqueuedAt)
	})

	result := types.FlushResult{Skipped: skipped}
	for _, e := range pending {
		e.AttemptCount++
		e.LastAttemptAt = s.cfg.Clock.Now()

		var mutErr error
		if s.cfg.Mutator != nil {
			mutErr = s.cfg.Mutator(e.MutationPath, e.Args)
		}

		if mutErr == nil {
			e.Status = types.SyncSynced
			result.Succeeded++
			metrics.SyncQueueDepth.Dec()
			metrics.SyncFlushTotal.WithLabelValues("succeeded").Inc()
		} else {
			e.ErrorMessage = mutErr.Error()
			if e.AttemptCount >= s.cfg.MaxRetryAttempts {
				e.Status = types.SyncFailed
				result.Failed++
				metrics.SyncQueueDepth.Dec()
				metrics.SyncFlushTotal.WithLabelValues("failed").Inc()
			} else {
				e.Status = types.SyncRetrying
				metrics.SyncFlushTotal.WithLabelValues("retrying").Inc()
			}
		}

		if err := s.putEntry(e); err != nil {
			return result, err
		}
	}

	return result, nil
}

// PendingCount returns the number of entries still pending or retrying.
func (s *Store) PendingCount() (int, error) {
	entries, err := s.allEntries()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.Status == types.SyncPending || e.Status == types.SyncRetrying {
			n++
		}
	}
	return n, nil
}

// FailedCount returns the number of entries that exhausted their retries.
func (s *Store) FailedCount() (int, error) {
	entries, err := s.allEntries()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.Status == types.SyncFailed {
			n++
		}
	}
	return n, nil
}
