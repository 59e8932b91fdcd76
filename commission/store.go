/*
store.go - Persistence interfaces for rules, partners, policies and results

PURPOSE:
  Defines the interface between the engine and external storage. The engine
  only ever reads rules, partners and policies; the single write surface is
  the commission-record upsert.

KEY INTERFACES:
  RuleSource:   Candidate rule/grid rows for the resolver
  PartnerStore: Channel partner lookup for the distribution engine
  PolicyStore:  Policy snapshots (batch resync iterates these)
  ResultStore:  Commission record sink, upsert keyed by policy id

UPSERT CONTRACT:
  A Result is always replaced whole, never partially updated. Two workers
  recomputing the same policy converge to the same record because the
  calculation is a pure function of the same inputs; the upsert needs no
  coordination beyond last-write-wins on the policy key.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - commission/store/memory.go: In-memory for testing

SEE ALSO:
  - resolver.go: Consumes RuleSource
  - distribution.go: Consumes PartnerStore
  - engine.go: Consumes PolicyStore and ResultStore
*/
package commission

import "context"

// =============================================================================
// RULE SOURCE - Read-only candidate rows for the resolver
// =============================================================================

// RuleSource supplies candidate rule/grid rows. Motor, Health and Life
// draw from line-specific grid tables; all other lines draw from the
// generic rule table. Implementations MUST return rows ordered by
// creation timestamp descending - the resolver's recency tie-break
// depends on that ordering.
type RuleSource interface {
	// Candidates returns the org's rows for the given line, newest first.
	Candidates(ctx context.Context, orgID OrgID, line LineOfBusiness) ([]Rule, error)
}

// RuleStore extends RuleSource with the admin write surface.
type RuleStore interface {
	RuleSource

	// SaveRule persists a rule/grid row into its line's table.
	SaveRule(ctx context.Context, rule *Rule) error

	// ListRules returns all rows for an org across every table, newest first.
	ListRules(ctx context.Context, orgID OrgID) ([]Rule, error)
}

// =============================================================================
// PARTNER STORE - Channel partner lookup
// =============================================================================

// PartnerStore resolves channel partner records.
type PartnerStore interface {
	// Partner returns the partner or ErrPartnerNotFound. The distribution
	// engine treats a miss as the direct-channel fallback, not a fault.
	Partner(ctx context.Context, id PartnerID) (*Partner, error)

	// SavePartner persists a partner record.
	SavePartner(ctx context.Context, p *Partner) error

	// ListPartners returns an org's partners.
	ListPartners(ctx context.Context, orgID OrgID) ([]Partner, error)
}

// =============================================================================
// POLICY STORE - Policy snapshots
// =============================================================================

// PolicyStore persists policy snapshots for recalculation and batch resync.
type PolicyStore interface {
	SavePolicy(ctx context.Context, p *Policy) error

	// Policy returns the snapshot or ErrPolicyNotFound.
	Policy(ctx context.Context, id PolicyID) (*Policy, error)

	// ListPolicies returns all policy snapshots, optionally scoped to an
	// org (empty OrgID means all orgs).
	ListPolicies(ctx context.Context, orgID OrgID) ([]*Policy, error)
}

// =============================================================================
// RESULT STORE - Commission record sink
// =============================================================================

// ResultStore is the commission record sink. One active record per policy.
type ResultStore interface {
	// Upsert creates or replaces the record for result.PolicyID.
	Upsert(ctx context.Context, result *Result) error

	// ByPolicy returns the current record or ErrResultNotFound.
	ByPolicy(ctx context.Context, id PolicyID) (*Result, error)
}
