// Package netpolicy evaluates priority-ordered allow/deny network rules
// per packet intent, grounded on the teacher's host-pattern rule matching
// in pkg/ingress and the sorted-candidate-filtering idiom of
// pkg/scheduler/scheduler.go.
package netpolicy

import (
	"sort"
	"sync"

	"github.com/cuemby/agentcage/pkg/idgen"
	"github.com/cuemby/agentcage/pkg/metrics"
	"github.com/cuemby/agentcage/pkg/types"
)

const wildcard = "*"

// maxLogEntries bounds the diagnostic evaluation log.
const maxLogEntries = 500

// Manager holds per-sandbox and global rule lists plus a bounded
// diagnostic log of every evaluation.
type Manager struct {
	mu            sync.Mutex
	perSandbox    map[string][]*types.NetworkRule
	global        []*types.NetworkRule
	defaultAction types.RuleAction
	insertSeq     int
	log           []EvaluationRecord
	clock         idgen.Clock
}

// EvaluationRecord is one diagnostic entry appended on every Evaluate call.
type EvaluationRecord struct {
	Request  types.PacketIntent
	Decision types.PolicyDecision
	Ts       int64
}

// Config configures a Manager.
type Config struct {
	DefaultAction types.RuleAction // default "deny"
	Clock         idgen.Clock
}

// NewManager returns an empty Manager.
func NewManager(cfg Config) *Manager {
	if cfg.DefaultAction == "" {
		cfg.DefaultAction = types.ActionDeny
	}
	if cfg.Clock == nil {
		cfg.Clock = idgen.SystemClock{}
	}
	return &Manager{
		perSandbox:    make(map[string][]*types.NetworkRule),
		defaultAction: cfg.DefaultAction,
		clock:         cfg.Clock,
	}
}

// AddRule inserts a rule into the per-sandbox or global list depending on
// AppliesTo, stamping its insertion order for tie-breaking.
func (m *Manager) AddRule(rule types.NetworkRule) *types.NetworkRule {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := rule
	r.SetInsertionOrder(m.insertSeq)
	m.insertSeq++

	if r.AppliesTo == wildcard {
		m.global = append(m.global, &r)
	} else {
		m.perSandbox[r.AppliesTo] = append(m.perSandbox[r.AppliesTo], &r)
	}
	return &r
}

// ClearRules purges only sandboxID's rules, leaving globals untouched.
func (m *Manager) ClearRules(sandboxID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.perSandbox, sandboxID)
}

// BlockAll / AllowAll add a single wildcard rule at the lowest-priority
// slot (MaxInt) for sandboxID, so any more specific rule always wins.
func (m *Manager) BlockAll(sandboxID string) *types.NetworkRule {
	return m.addCatchAll(sandboxID, types.ActionDeny)
}

func (m *Manager) AllowAll(sandboxID string) *types.NetworkRule {
	return m.addCatchAll(sandboxID, types.ActionAllow)
}

func (m *Manager) addCatchAll(sandboxID string, action types.RuleAction) *types.NetworkRule {
	return m.AddRule(types.NetworkRule{
		ID:          idgen.New(),
		AppliesTo:   sandboxID,
		Direction:   types.DirectionEgress,
		Action:      action,
		Protocol:    types.ProtocolAny,
		HostPattern: wildcard,
		Priority:    int(^uint(0) >> 1), // lowest priority: MaxInt
	})
}

func matches(r *types.NetworkRule, req types.PacketIntent) bool {
	if r.Direction != req.Direction {
		return false
	}
	if r.Protocol != types.ProtocolAny && r.Protocol != req.Protocol {
		return false
	}
	if r.HostPattern != "" && r.HostPattern != wildcard && r.HostPattern != req.Host {
		return false
	}
	if r.Port != nil && !r.Port.Contains(req.Port) {
		return false
	}
	return true
}

// Evaluate merges the applicable per-sandbox and global rules, sorts by
// priority ascending (tie-break by insertion order), and returns the
// first match. No match falls back to the configured default action.
func (m *Manager) Evaluate(req types.PacketIntent) types.PolicyDecision {
	m.mu.Lock()
	candidates := make([]*types.NetworkRule, 0, len(m.perSandbox[req.SandboxID])+len(m.global))
	candidates = append(candidates, m.perSandbox[req.SandboxID]...)
	candidates = append(candidates, m.global...)
	m.mu.Unlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].InsertionOrder() < candidates[j].InsertionOrder()
	})

	decision := types.PolicyDecision{Allowed: m.defaultAction == types.ActionAllow, Reason: "no rule matched, default action"}
	for _, r := range candidates {
		if matches(r, req) {
			decision = types.PolicyDecision{
				Allowed:       r.Action == types.ActionAllow,
				MatchedRuleID: r.ID,
				Reason:        "rule matched",
			}
			break
		}
	}

	action := "deny"
	if decision.Allowed {
		action = "allow"
	}
	metrics.PolicyDecisionsTotal.WithLabelValues(action).Inc()

	m.mu.Lock()
	m.log = append([]EvaluationRecord{{Request: req, Decision: decision, Ts: m.clock.Now().UnixMilli()}}, m.log...)
	if len(m.log) > maxLogEntries {
		m.log = m.log[:maxLogEntries]
	}
	m.mu.Unlock()

	return decision
}

// Log returns the bounded diagnostic log, newest first.
func (m *Manager) Log() []EvaluationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EvaluationRecord, len(m.log))
	copy(out, m.log)
	return out
}
