package isolation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/agentcage/pkg/types"
)

func TestTierOrderingInvariant(t *testing.T) {
	tiers := []types.IsolationTier{
		types.TierNone, types.TierProcess, types.TierNamespace, types.TierVM, types.TierUltra,
	}
	for i := 1; i < len(tiers); i++ {
		lower := NamespacesForTier(tiers[i-1])
		higher := NamespacesForTier(tiers[i])
		for ns := range lower {
			assert.True(t, higher[ns], "tier %s should retain namespace %s from %s", tiers[i], ns, tiers[i-1])
		}

		lowerCaps := CapabilitiesForTier(tiers[i-1])
		higherCaps := CapabilitiesForTier(tiers[i])
		for cap := range higherCaps {
			assert.True(t, lowerCaps[cap], "tier %s capability %s should be present in %s", tiers[i], cap, tiers[i-1])
		}
	}
}

func TestCreateContextIdempotent(t *testing.T) {
	m := NewManager(nil)
	first := m.CreateContext("sbx-1", types.TierVM)
	second := m.CreateContext("sbx-1", types.TierUltra)
	assert.Same(t, first, second)
	assert.Equal(t, types.TierVM, second.Tier)
}

func TestEnforceCapabilityViolation(t *testing.T) {
	m := NewManager(nil)
	m.CreateContext("sbx-1", types.TierUltra)

	ok := m.EnforceCapability("sbx-1", "CAP_SYS_ADMIN", "test")
	assert.False(t, ok)

	violations := m.Violations()
	assert.Len(t, violations, 1)
	assert.Equal(t, "critical", violations[0].Severity)
}

func TestSuspendBlocksEnforcement(t *testing.T) {
	m := NewManager(nil)
	m.CreateContext("sbx-1", types.TierNone)
	assert.True(t, m.EnforceCapability("sbx-1", "CAP_CHOWN", "ok"))

	m.SuspendContext("sbx-1")
	assert.False(t, m.EnforceCapability("sbx-1", "CAP_CHOWN", "suspended"))

	m.ResumeContext("sbx-1")
	assert.True(t, m.EnforceCapability("sbx-1", "CAP_CHOWN", "resumed"))
}

func TestSubscribeUnsubscribeIdempotent(t *testing.T) {
	m := NewManager(nil)
	m.CreateContext("sbx-1", types.TierUltra)

	var calls int
	unsub := m.Subscribe(func(types.IsolationViolation) { calls++ })
	m.EnforceCapability("sbx-1", "CAP_SYS_ADMIN", "one")
	assert.Equal(t, 1, calls)

	unsub()
	unsub() // idempotent
	m.EnforceCapability("sbx-1", "CAP_SYS_ADMIN", "two")
	assert.Equal(t, 1, calls)
}
