package idgen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewIsUnique(t *testing.T) {
	a := New()
	b := New()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}

func TestSandboxIDHasPrefix(t *testing.T) {
	id := SandboxID()
	assert.Contains(t, id, "sbx-")
	assert.Greater(t, len(id), len("sbx-"))
}

func TestFixedClockAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFixedClock(start)
	assert.Equal(t, start, c.Now())

	c.Advance(5 * time.Second)
	assert.Equal(t, start.Add(5*time.Second), c.Now())
}
