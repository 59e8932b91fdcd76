package commission_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/commission/store"
)

func newResolver(t *testing.T, rules ...*commission.Rule) *commission.Resolver {
	t.Helper()
	mem := store.NewMemory()
	for _, r := range rules {
		if err := mem.SaveRule(context.Background(), r); err != nil {
			t.Fatalf("seeding rule: %v", err)
		}
	}
	return commission.NewResolver(mem)
}

func motorQuery() commission.Query {
	return commission.Query{
		OrgID:    "org-1",
		Line:     commission.LineMotor,
		Provider: "Acme General Insurance",
		Premium:  d(10000),
		At:       date(2025, time.June, 15),
	}
}

// =============================================================================
// MATCHING FILTERS
// =============================================================================

func TestResolver_MatchesUnfilteredRow(t *testing.T) {
	// GIVEN: A single row with no product/provider/premium/date filters
	// WHEN: Resolving any query for the org and line
	// THEN: The row matches

	r := newResolver(t, motorRule(10))
	rule, err := r.Resolve(context.Background(), motorQuery())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rule.ID != "rule-motor-1" {
		t.Errorf("expected rule-motor-1, got %s", rule.ID)
	}
}

func TestResolver_PremiumBand(t *testing.T) {
	// GIVEN: A row bounded to [5000, 8000]
	// WHEN: Resolving premium 10000
	// THEN: NoRuleFound; either bound absent means unbounded on that side

	bounded := motorRule(10)
	bounded.MinPremium = dptr(5000)
	bounded.MaxPremium = dptr(8000)

	r := newResolver(t, bounded)
	if _, err := r.Resolve(context.Background(), motorQuery()); !errors.Is(err, commission.ErrNoRuleFound) {
		t.Fatalf("expected ErrNoRuleFound, got %v", err)
	}

	// Open upper bound accepts the same premium.
	open := motorRule(10)
	open.ID = "rule-motor-open"
	open.MinPremium = dptr(5000)
	r = newResolver(t, open)
	if _, err := r.Resolve(context.Background(), motorQuery()); err != nil {
		t.Fatalf("open-bounded row should match: %v", err)
	}
}

func TestResolver_ProviderSubstringMatch(t *testing.T) {
	// GIVEN: A row scoped to provider "acme"
	// WHEN: Resolving for "Acme General Insurance" vs "Zenith Insurance"
	// THEN: Case-insensitive substring match against the policy's provider

	scoped := motorRule(10)
	scoped.Provider = "ACME"

	r := newResolver(t, scoped)
	if _, err := r.Resolve(context.Background(), motorQuery()); err != nil {
		t.Fatalf("substring provider should match: %v", err)
	}

	q := motorQuery()
	q.Provider = "Zenith Insurance"
	if _, err := r.Resolve(context.Background(), q); !errors.Is(err, commission.ErrNoRuleFound) {
		t.Fatalf("expected ErrNoRuleFound for other provider, got %v", err)
	}
}

func TestResolver_ProductTypeLooseMatch(t *testing.T) {
	// GIVEN: A row with primary product type "Private Car Comprehensive"
	// WHEN: Resolving product category "private car"
	// THEN: Case-insensitive substring match on either product field

	row := motorRule(10)
	row.ProductType = "Private Car Comprehensive"

	r := newResolver(t, row)
	q := motorQuery()
	q.ProductType = "private car"
	if _, err := r.Resolve(context.Background(), q); err != nil {
		t.Fatalf("loose product match should hold: %v", err)
	}

	q.ProductType = "two wheeler"
	if _, err := r.Resolve(context.Background(), q); !errors.Is(err, commission.ErrNoRuleFound) {
		t.Fatalf("expected ErrNoRuleFound for other product, got %v", err)
	}
}

func TestResolver_SecondaryProductFieldAlsoMatches(t *testing.T) {
	// GIVEN: A row whose primary field misses but secondary field matches
	// WHEN: Resolving
	// THEN: The row matches

	row := motorRule(10)
	row.ProductType = "Two Wheeler"
	row.ProductTypeAlt = "Private Car"

	r := newResolver(t, row)
	q := motorQuery()
	q.ProductType = "private car"
	if _, err := r.Resolve(context.Background(), q); err != nil {
		t.Fatalf("secondary product field should match: %v", err)
	}
}

func TestResolver_EffectiveWindow(t *testing.T) {
	// GIVEN: A row effective [2025-01-01, 2025-03-31]
	// WHEN: Resolving on 2025-06-15
	// THEN: NoRuleFound; inside the window matches

	row := motorRule(10)
	row.EffectiveFrom = tptr(date(2025, time.January, 1))
	row.EffectiveTo = tptr(date(2025, time.March, 31))

	r := newResolver(t, row)
	if _, err := r.Resolve(context.Background(), motorQuery()); !errors.Is(err, commission.ErrNoRuleFound) {
		t.Fatalf("expected ErrNoRuleFound outside window, got %v", err)
	}

	q := motorQuery()
	q.At = date(2025, time.February, 10)
	if _, err := r.Resolve(context.Background(), q); err != nil {
		t.Fatalf("inside window should match: %v", err)
	}
}

// =============================================================================
// TIE-BREAK AND NO-MATCH
// =============================================================================

func TestResolver_TieBreakMostRecentlyCreated(t *testing.T) {
	// GIVEN: Two overlapping-premium-band rows for the same product,
	//        provider and date, created a month apart
	// WHEN: Resolving
	// THEN: The row with the later creation timestamp wins

	older := motorRule(10)
	older.ID = "rule-older"
	older.CreatedAt = date(2025, time.January, 1)

	newer := motorRule(12)
	newer.ID = "rule-newer"
	newer.CreatedAt = date(2025, time.February, 1)

	r := newResolver(t, older, newer)
	rule, err := r.Resolve(context.Background(), motorQuery())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rule.ID != "rule-newer" {
		t.Errorf("tie-break should pick the newest row, got %s", rule.ID)
	}
}

func TestResolver_NewerNonMatchingRowDoesNotShadow(t *testing.T) {
	// GIVEN: A newer row whose premium band misses and an older row that fits
	// WHEN: Resolving
	// THEN: Recency orders candidates but filtering still applies

	older := motorRule(10)
	older.ID = "rule-older"
	older.CreatedAt = date(2025, time.January, 1)

	newer := motorRule(12)
	newer.ID = "rule-newer"
	newer.CreatedAt = date(2025, time.February, 1)
	newer.MinPremium = dptr(50000)

	r := newResolver(t, older, newer)
	rule, err := r.Resolve(context.Background(), motorQuery())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rule.ID != "rule-older" {
		t.Errorf("expected the older matching row, got %s", rule.ID)
	}
}

func TestResolver_NoMatchIsTypedOutcome(t *testing.T) {
	// GIVEN: No rows at all for the org/line
	// WHEN: Resolving
	// THEN: ErrNoRuleFound with query context, usable via errors.Is/As

	r := newResolver(t)
	_, err := r.Resolve(context.Background(), motorQuery())
	if !errors.Is(err, commission.ErrNoRuleFound) {
		t.Fatalf("expected ErrNoRuleFound, got %v", err)
	}

	var noRule *commission.NoRuleError
	if !errors.As(err, &noRule) {
		t.Fatalf("expected *NoRuleError, got %T", err)
	}
	if noRule.OrgID != "org-1" || noRule.Line != commission.LineMotor {
		t.Errorf("NoRuleError should carry the query context: %+v", noRule)
	}
}

func TestResolver_LineTablesAreDistinct(t *testing.T) {
	// GIVEN: A health grid row only
	// WHEN: Resolving a motor query for the same org
	// THEN: NoRuleFound; lines draw from distinct grid tables

	health := healthRule(10)
	health.OrgID = "org-1"

	r := newResolver(t, health)
	if _, err := r.Resolve(context.Background(), motorQuery()); !errors.Is(err, commission.ErrNoRuleFound) {
		t.Fatalf("expected ErrNoRuleFound across lines, got %v", err)
	}
}
