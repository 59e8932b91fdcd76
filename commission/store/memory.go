// Package store provides in-memory implementations of the commission
// storage interfaces, used by tests and local development.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/commission-engine/commission"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements RuleStore, PartnerStore, PolicyStore and ResultStore.
type Memory struct {
	mu       sync.RWMutex
	rules    map[commission.OrgID][]commission.Rule
	partners map[commission.PartnerID]commission.Partner
	policies map[commission.PolicyID]commission.Policy
	results  map[commission.PolicyID]commission.Result
}

func NewMemory() *Memory {
	return &Memory{
		rules:    make(map[commission.OrgID][]commission.Rule),
		partners: make(map[commission.PartnerID]commission.Partner),
		policies: make(map[commission.PolicyID]commission.Policy),
		results:  make(map[commission.PolicyID]commission.Result),
	}
}

// Compile-time interface checks.
var (
	_ commission.RuleStore    = (*Memory)(nil)
	_ commission.PartnerStore = (*Memory)(nil)
	_ commission.PolicyStore  = (*Memory)(nil)
	_ commission.ResultStore  = (*Memory)(nil)
)

// -----------------------------------------------------------------------------
// RuleStore
// -----------------------------------------------------------------------------

// SaveRule stores a rule row under its org.
func (m *Memory) SaveRule(_ context.Context, rule *commission.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.OrgID] = append(m.rules[rule.OrgID], *rule)
	return nil
}

// Candidates returns the org's rows for a line, newest first - the
// ordering the resolver's recency tie-break depends on.
func (m *Memory) Candidates(_ context.Context, orgID commission.OrgID, line commission.LineOfBusiness) ([]commission.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []commission.Rule
	for _, r := range m.rules[orgID] {
		if r.Line == line {
			out = append(out, r)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// ListRules returns all of an org's rows across lines, newest first.
func (m *Memory) ListRules(_ context.Context, orgID commission.OrgID) ([]commission.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]commission.Rule, len(m.rules[orgID]))
	copy(out, m.rules[orgID])
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(rules []commission.Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].CreatedAt.After(rules[j].CreatedAt)
	})
}

// -----------------------------------------------------------------------------
// PartnerStore
// -----------------------------------------------------------------------------

func (m *Memory) SavePartner(_ context.Context, p *commission.Partner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.partners[p.ID] = *p
	return nil
}

func (m *Memory) Partner(_ context.Context, id commission.PartnerID) (*commission.Partner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.partners[id]
	if !ok {
		return nil, commission.ErrPartnerNotFound
	}
	return &p, nil
}

func (m *Memory) ListPartners(_ context.Context, orgID commission.OrgID) ([]commission.Partner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []commission.Partner
	for _, p := range m.partners {
		if orgID == "" || p.OrgID == orgID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// -----------------------------------------------------------------------------
// PolicyStore
// -----------------------------------------------------------------------------

func (m *Memory) SavePolicy(_ context.Context, p *commission.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[p.ID] = *p
	return nil
}

func (m *Memory) Policy(_ context.Context, id commission.PolicyID) (*commission.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.policies[id]
	if !ok {
		return nil, commission.ErrPolicyNotFound
	}
	return &p, nil
}

func (m *Memory) ListPolicies(_ context.Context, orgID commission.OrgID) ([]*commission.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*commission.Policy
	for id := range m.policies {
		p := m.policies[id]
		if orgID == "" || p.OrgID == orgID {
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// -----------------------------------------------------------------------------
// ResultStore - upsert keyed by policy id
// -----------------------------------------------------------------------------

// Upsert replaces the whole record for the policy. Last write wins;
// concurrent recomputation converges because the calculation is pure.
func (m *Memory) Upsert(_ context.Context, result *commission.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[result.PolicyID] = *result
	return nil
}

func (m *Memory) ByPolicy(_ context.Context, id commission.PolicyID) (*commission.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.results[id]
	if !ok {
		return nil, commission.ErrResultNotFound
	}
	return &r, nil
}
