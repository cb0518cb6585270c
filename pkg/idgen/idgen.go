// Package idgen provides the id generation and clock primitives every
// other agentcage component builds on: UUIDs for structured records and
// URL-safe prefixed ids for sandboxes, plus an injectable clock so tests
// can control time without sleeping.
package idgen

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
)

// New returns a new random UUID, used for audit entries, trajectories,
// build snapshots, and classified errors.
func New() string {
	return uuid.New().String()
}

// SandboxID returns a URL-safe, prefixed random id for a new sandbox.
// The prefix makes ids self-describing in logs without a lookup.
func SandboxID() string {
	return "sbx-" + randomSuffix(12)
}

func randomSuffix(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read only fails if the OS entropy source is
		// broken; fall back to a UUID-derived suffix rather than panic.
		return uuid.New().String()[:n]
	}
	return base64.RawURLEncoding.EncodeToString(buf)[:n]
}

// Clock abstracts time.Now so components can be driven deterministically
// in tests (circuit breaker windows, resource monitor alerts, sync queue
// backoff).
type Clock interface {
	Now() time.Time
}

// SystemClock is the default Clock, backed by time.Now.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock is a Clock that always returns the same instant until
// Advance is called; useful for deterministic tests of time-windowed
// behavior (circuit breaker monitor windows, resource alert timestamps).
type FixedClock struct {
	t time.Time
}

// NewFixedClock returns a FixedClock starting at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

// Now returns the clock's current instant.
func (c *FixedClock) Now() time.Time { return c.t }

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
