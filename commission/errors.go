/*
errors.go - Centralized error types for the commission engine

PURPOSE:
  All engine error types in one place. The taxonomy matters: a policy with
  no matching rule is a typed outcome the batch runner continues past, while
  a storage failure is a real fault the caller must see as distinct.

ERROR CATEGORIES:
  1. NoRuleFound   - zero matching grid rows; surfaced as an unmatched
                     Result, never a silent zero
  2. PartnerNotFound - handled internally by the direct-channel fallback;
                     callers should never observe it
  3. Store errors  - database-level failures, distinct from NoRuleFound

USAGE:
  result, err := engine.Calculate(ctx, policy)
  if err != nil {
      // storage failure: log and move to the next policy in a batch
  }
  if result.Status == commission.StatusUnmatched {
      // grid data is missing; retry after it is corrected
  }

SEE ALSO:
  - resolver.go: Returns ErrNoRuleFound
  - distribution.go: Handles ErrPartnerNotFound
  - engine.go: Maps errors onto Result statuses
*/
package commission

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoRuleFound is returned when the resolver finds zero matching
	// rule/grid rows. Recoverable: retry after grid data is corrected.
	ErrNoRuleFound = errors.New("no matching commission rule")

	// ErrPartnerNotFound is returned by partner stores when a channel
	// partner id does not resolve. The distribution engine handles it by
	// routing the full commission to the brokerage; it is not an error
	// state at the engine boundary.
	ErrPartnerNotFound = errors.New("channel partner not found")

	// ErrPolicyNotFound is returned when a referenced policy id does not
	// resolve.
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrResultNotFound is returned when no commission record exists yet
	// for a policy.
	ErrResultNotFound = errors.New("commission result not found")

	// ErrStoreUnavailable wraps database-level failures so batch callers
	// can distinguish them from NoRuleFound and keep going.
	ErrStoreUnavailable = errors.New("commission store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NoRuleError reports which lookup failed to match. It wraps ErrNoRuleFound
// so errors.Is works across the boundary.
type NoRuleError struct {
	OrgID       OrgID
	Line        LineOfBusiness
	Provider    string
	ProductType string
	At          time.Time
}

func (e *NoRuleError) Error() string {
	return fmt.Sprintf("no matching commission rule: org=%s line=%s provider=%q product=%q at=%s",
		e.OrgID, e.Line, e.Provider, e.ProductType, e.At.Format("2006-01-02"))
}

func (e *NoRuleError) Unwrap() error { return ErrNoRuleFound }
