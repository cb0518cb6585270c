package moltbot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindAndLookup(t *testing.T) {
	d := NewDeployer(nil)
	b := d.Bind("agent-1", "sbx-1")
	assert.Equal(t, "agent-1", b.AgentName)

	got, err := d.Lookup("agent-1")
	require.NoError(t, err)
	assert.Equal(t, "sbx-1", got.SandboxID)
}

func TestBindOverwritesPriorBinding(t *testing.T) {
	d := NewDeployer(nil)
	d.Bind("agent-1", "sbx-1")
	d.Bind("agent-1", "sbx-2")

	got, err := d.Lookup("agent-1")
	require.NoError(t, err)
	assert.Equal(t, "sbx-2", got.SandboxID)
}

func TestLookupMissing(t *testing.T) {
	d := NewDeployer(nil)
	_, err := d.Lookup("ghost")
	assert.Error(t, err)
}

func TestUnbind(t *testing.T) {
	d := NewDeployer(nil)
	d.Bind("agent-1", "sbx-1")
	d.Unbind("agent-1")
	_, err := d.Lookup("agent-1")
	assert.Error(t, err)
}

func TestBySandbox(t *testing.T) {
	d := NewDeployer(nil)
	d.Bind("agent-1", "sbx-1")
	d.Bind("agent-2", "sbx-1")
	d.Bind("agent-3", "sbx-2")

	bound := d.BySandbox("sbx-1")
	assert.Len(t, bound, 2)
}

func TestUnbindSandboxRemovesAllMatchingBindings(t *testing.T) {
	d := NewDeployer(nil)
	d.Bind("agent-1", "sbx-1")
	d.Bind("agent-2", "sbx-1")
	d.Bind("agent-3", "sbx-2")

	d.UnbindSandbox("sbx-1")

	assert.Len(t, d.All(), 1)
	_, err := d.Lookup("agent-3")
	assert.NoError(t, err)
}
