package netpolicy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/agentcage/pkg/types"
)

func TestPriorityOrderingScenario(t *testing.T) {
	m := NewManager(Config{})
	a := m.AddRule(types.NetworkRule{
		ID: "A", AppliesTo: "v", Direction: types.DirectionEgress, Action: types.ActionAllow,
		Protocol: types.ProtocolTCP, Port: &types.PortRange{Lo: 443, Hi: 443}, Priority: 5,
	})
	m.AddRule(types.NetworkRule{
		ID: "B", AppliesTo: "v", Direction: types.DirectionEgress, Action: types.ActionDeny,
		Protocol: types.ProtocolTCP, Port: &types.PortRange{Lo: 443, Hi: 443}, Priority: 10,
	})

	decision := m.Evaluate(types.PacketIntent{
		SandboxID: "v", Direction: types.DirectionEgress, Protocol: types.ProtocolTCP, Host: "x", Port: 443,
	})
	assert.True(t, decision.Allowed)
	assert.Equal(t, a.ID, decision.MatchedRuleID)
}

func TestDefaultDenyWhenNoMatch(t *testing.T) {
	m := NewManager(Config{})
	decision := m.Evaluate(types.PacketIntent{SandboxID: "v", Direction: types.DirectionEgress, Protocol: types.ProtocolTCP, Host: "x", Port: 80})
	assert.False(t, decision.Allowed)
}

func TestClearRulesOnlyPurgesSandbox(t *testing.T) {
	m := NewManager(Config{})
	m.AddRule(types.NetworkRule{ID: "global", AppliesTo: "*", Direction: types.DirectionEgress, Action: types.ActionAllow, Protocol: types.ProtocolAny, HostPattern: "*", Priority: 1})
	m.AddRule(types.NetworkRule{ID: "local", AppliesTo: "v", Direction: types.DirectionEgress, Action: types.ActionDeny, Protocol: types.ProtocolAny, HostPattern: "*", Priority: 0})

	m.ClearRules("v")
	decision := m.Evaluate(types.PacketIntent{SandboxID: "v", Direction: types.DirectionEgress, Protocol: types.ProtocolTCP, Host: "x", Port: 80})
	assert.True(t, decision.Allowed)
	assert.Equal(t, "global", decision.MatchedRuleID)
}

func TestBlockAllWildcardLowestPriority(t *testing.T) {
	m := NewManager(Config{})
	m.AddRule(types.NetworkRule{ID: "specific", AppliesTo: "v", Direction: types.DirectionEgress, Action: types.ActionAllow, Protocol: types.ProtocolTCP, HostPattern: "api.example.com", Priority: 1})
	m.BlockAll("v")

	allowed := m.Evaluate(types.PacketIntent{SandboxID: "v", Direction: types.DirectionEgress, Protocol: types.ProtocolTCP, Host: "api.example.com", Port: 443})
	assert.True(t, allowed.Allowed)

	blocked := m.Evaluate(types.PacketIntent{SandboxID: "v", Direction: types.DirectionEgress, Protocol: types.ProtocolTCP, Host: "evil.example.com", Port: 443})
	assert.False(t, blocked.Allowed)
}

func TestEvaluateIsPure(t *testing.T) {
	m := NewManager(Config{})
	m.AddRule(types.NetworkRule{ID: "r", AppliesTo: "v", Direction: types.DirectionEgress, Action: types.ActionAllow, Protocol: types.ProtocolAny, HostPattern: "*", Priority: 1})

	req := types.PacketIntent{SandboxID: "v", Direction: types.DirectionEgress, Protocol: types.ProtocolTCP, Host: "x", Port: 80}
	first := m.Evaluate(req)
	second := m.Evaluate(req)
	assert.Equal(t, first, second)
}
