/*
resolver.go - Rule/grid resolution for a policy

PURPOSE:
  Finds the single best-matching commission rule or payout-grid row active
  on the evaluation date. Matching is multi-key: product text, premium
  band, provider, and effective-date window must all hold.

MATCHING ALGORITHM:
  1. The store pre-filters to the org and line (Motor/Health/Life each have
     their own grid table; other lines use the generic rule table) and
     returns rows ordered by creation timestamp descending.
  2. A row survives only if ALL of:
     - product text loosely matches (case-insensitive substring against
       either the primary or secondary product-type field)
     - premium within [min, max], absent bounds open-ended
     - provider unset on the row, or a case-insensitive substring of the
       policy's provider
     - evaluation date within the effective window, absent bounds open
  3. The first surviving row wins. Because candidates arrive newest-first,
     overlapping rows tie-break to the most recently created one.
  4. Zero survivors -> ErrNoRuleFound. The rate calculator must not run;
     the caller surfaces a zero result with an explicit unmatched marker.

SEE ALSO:
  - store.go: RuleSource ordering contract
  - calculator.go: Consumes the resolved rule
*/
package commission

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Query carries the policy attributes the resolver matches on.
type Query struct {
	OrgID       OrgID
	Line        LineOfBusiness
	Provider    string
	ProductType string // optional; empty matches any row
	Premium     decimal.Decimal
	At          time.Time // evaluation date
}

// Resolver finds the single best-matching rule for a query.
type Resolver struct {
	Source RuleSource
}

// NewResolver creates a resolver over the given rule source.
func NewResolver(source RuleSource) *Resolver {
	return &Resolver{Source: source}
}

// Resolve returns the best-matching rule, or an error wrapping
// ErrNoRuleFound when nothing matches. Store failures are wrapped with
// ErrStoreUnavailable so batch callers can tell the two apart.
func (r *Resolver) Resolve(ctx context.Context, q Query) (*Rule, error) {
	candidates, err := r.Source.Candidates(ctx, q.OrgID, q.Line)
	if err != nil {
		return nil, fmt.Errorf("%w: loading candidates for org %s line %s: %v",
			ErrStoreUnavailable, q.OrgID, q.Line, err)
	}

	// Candidates arrive newest-first; the first survivor is the recency
	// tie-break winner.
	for i := range candidates {
		if r.matches(&candidates[i], q) {
			return &candidates[i], nil
		}
	}

	return nil, &NoRuleError{
		OrgID:       q.OrgID,
		Line:        q.Line,
		Provider:    q.Provider,
		ProductType: q.ProductType,
		At:          q.At,
	}
}

// matches reports whether every filter on the row holds for the query.
func (r *Resolver) matches(rule *Rule, q Query) bool {
	if !productMatches(rule, q.ProductType) {
		return false
	}
	if !premiumInBand(rule, q.Premium) {
		return false
	}
	if !providerMatches(rule, q.Provider) {
		return false
	}
	return activeAt(rule, q.At)
}

// productMatches applies the loose product-text match: case-insensitive
// substring containment in either direction, against the row's primary or
// secondary product-type field. An empty query or an empty row field
// matches anything.
func productMatches(rule *Rule, wanted string) bool {
	if wanted == "" {
		return true
	}
	w := strings.ToLower(strings.TrimSpace(wanted))
	filtered := false
	for _, field := range []string{rule.ProductType, rule.ProductTypeAlt} {
		if field == "" {
			continue
		}
		filtered = true
		f := strings.ToLower(strings.TrimSpace(field))
		if strings.Contains(f, w) || strings.Contains(w, f) {
			return true
		}
	}
	// A row with neither product field set applies to every product.
	return !filtered
}

// premiumInBand checks the [min, max] premium band. Either bound may be
// absent, meaning unbounded on that side.
func premiumInBand(rule *Rule, premium decimal.Decimal) bool {
	if rule.MinPremium != nil && premium.LessThan(*rule.MinPremium) {
		return false
	}
	if rule.MaxPremium != nil && premium.GreaterThan(*rule.MaxPremium) {
		return false
	}
	return true
}

// providerMatches: a row with no provider applies to every insurer;
// otherwise the row's provider must appear within the policy's provider,
// case-insensitively.
func providerMatches(rule *Rule, provider string) bool {
	if rule.Provider == "" {
		return true
	}
	return strings.Contains(
		strings.ToLower(provider),
		strings.ToLower(strings.TrimSpace(rule.Provider)),
	)
}

// activeAt checks the effective-date window. Absent bounds are open-ended.
// Life rows store their window under distinct column names; the store
// normalizes those into EffectiveFrom/EffectiveTo before rows get here.
func activeAt(rule *Rule, at time.Time) bool {
	if rule.EffectiveFrom != nil && at.Before(*rule.EffectiveFrom) {
		return false
	}
	if rule.EffectiveTo != nil && at.After(*rule.EffectiveTo) {
		return false
	}
	return true
}
