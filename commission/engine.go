/*
engine.go - Orchestration: resolve -> rate -> distribute -> record

PURPOSE:
  Wires the resolver, rate calculator and distribution engine into the
  single entry point the rest of the system calls. Also owns batch
  recomputation ("resync all commissions").

CONTROL FLOW:
  Policy snapshot
    -> Resolver        (best-matching rule or typed no-rule outcome)
    -> Calculator      (insurer commission + rate used)
    -> Distributor     (per-party split)
    -> Result          (handed to the record sink via upsert)

ERROR MAPPING:
  NoRuleFound     -> Result{Status: unmatched}, nil error. The zero amount
                     carries an explicit marker so the UI can tell it from
                     a legitimately zero commission.
  Store failures  -> Result{Status: failed} plus a wrapped error. Batch
                     callers log and continue to the next policy.

CONCURRENCY:
  Calculation is synchronous and single-policy-scoped; no policy depends
  on another. Batch resync fans out over a bounded pond worker pool.
  Concurrent recomputation of the same policy converges because the
  calculation is a pure function of its inputs and the sink upserts by
  policy id.

SEE ALSO:
  - resolver.go, calculator.go, distribution.go: The three stages
  - store.go: PolicyStore / ResultStore contracts
*/
package commission

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"
)

// Engine is the commission calculation pipeline.
type Engine struct {
	Resolver    *Resolver
	Calculator  *Calculator
	Distributor *Distributor

	Policies PolicyStore
	Results  ResultStore

	Log *zap.Logger

	// ResyncWorkers bounds batch-resync parallelism. Zero means the
	// DefaultResyncWorkers pool size.
	ResyncWorkers int

	// now is swappable in tests to pin CalculatedAt.
	now func() time.Time
}

// DefaultResyncWorkers is the batch pool size when none is configured.
const DefaultResyncWorkers = 8

// NewEngine wires the pipeline over the given stores.
func NewEngine(rules RuleSource, partners PartnerStore, policies PolicyStore, results ResultStore, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		Resolver:    NewResolver(rules),
		Calculator:  NewCalculator(),
		Distributor: NewDistributor(partners),
		Policies:    policies,
		Results:     results,
		Log:         log,
		now:         time.Now,
	}
}

// Calculate computes the full commission breakdown for a policy without
// persisting it. A missing rule yields an unmatched Result and a nil
// error; only storage failures return an error (with Status failed on the
// accompanying Result).
func (e *Engine) Calculate(ctx context.Context, p *Policy) (*Result, error) {
	result := &Result{
		PolicyID:     p.ID,
		OrgID:        p.OrgID,
		ProductType:  p.ProductType,
		CalculatedAt: e.now().UTC(),
	}

	rule, err := e.Resolver.Resolve(ctx, Query{
		OrgID:       p.OrgID,
		Line:        p.Line,
		Provider:    p.Provider,
		ProductType: p.ProductType,
		Premium:     p.GrossPremium,
		At:          e.evaluationDate(p),
	})
	if errors.Is(err, ErrNoRuleFound) {
		// Explicit unmatched marker: zero commission, whole amount (zero)
		// to the brokerage, never a silent zero.
		result.Status = StatusUnmatched
		result.Error = err.Error()
		result.Distribution = directSplit(result.InsurerCommission)
		return result, nil
	}
	if err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
		return result, fmt.Errorf("resolving rule for policy %s: %w", p.ID, err)
	}

	outcome := e.Calculator.Calculate(rule, p)

	result.RuleID = rule.ID
	result.RuleTable = rule.SourceTable
	result.BaseRate, _ = baseRateAmount(rule, p.Renewal)
	result.RewardRate = rule.RewardRate
	result.BonusRate = rule.BonusRate
	result.TotalRate = outcome.RateUsed
	result.InsurerCommission = outcome.Amount
	result.Breakdown = outcome.Breakdown

	dist, err := e.Distributor.Distribute(ctx, outcome.Amount, p.Channel, p.PartnerID)
	if err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
		return result, fmt.Errorf("distributing commission for policy %s: %w", p.ID, err)
	}
	result.Distribution = dist
	result.Status = StatusCalculated
	return result, nil
}

// Recalculate computes the breakdown and replaces the persisted record
// for the policy. The upsert is keyed by policy id: recomputation
// replaces, never appends.
func (e *Engine) Recalculate(ctx context.Context, p *Policy) (*Result, error) {
	result, err := e.Calculate(ctx, p)
	if err != nil {
		return result, err
	}
	if err := e.Results.Upsert(ctx, result); err != nil {
		return result, fmt.Errorf("%w: upserting result for policy %s: %v", ErrStoreUnavailable, p.ID, err)
	}
	return result, nil
}

// RecalculateByID loads the policy snapshot and recalculates it.
func (e *Engine) RecalculateByID(ctx context.Context, id PolicyID) (*Result, error) {
	p, err := e.Policies.Policy(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.Recalculate(ctx, p)
}

// ResyncReport summarizes a batch recomputation run.
type ResyncReport struct {
	Total      int `json:"total"`
	Calculated int `json:"calculated"`
	Unmatched  int `json:"unmatched"`
	Failed     int `json:"failed"`
}

// ResyncAll recomputes and upserts every policy's commission (optionally
// scoped to one org). Policies are independent, so the loop fans out over
// a bounded worker pool; per-policy failures are logged and counted, never
// abort the run.
func (e *Engine) ResyncAll(ctx context.Context, orgID OrgID) (ResyncReport, error) {
	policies, err := e.Policies.ListPolicies(ctx, orgID)
	if err != nil {
		return ResyncReport{}, fmt.Errorf("%w: listing policies: %v", ErrStoreUnavailable, err)
	}

	workers := e.ResyncWorkers
	if workers <= 0 {
		workers = DefaultResyncWorkers
	}

	var calculated, unmatched, failed atomic.Int64

	pool := pond.NewPool(workers)
	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	for _, p := range policies {
		p := p
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			result, err := e.Recalculate(groupCtx, p)
			if err != nil {
				failed.Add(1)
				e.Log.Warn("commission resync failed for policy",
					zap.String("policy_id", string(p.ID)),
					zap.Error(err),
				)
				return
			}
			if result.Status == StatusUnmatched {
				unmatched.Add(1)
				return
			}
			calculated.Add(1)
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		e.Log.Warn("commission resync group encountered error", zap.Error(err))
	}
	pool.StopAndWait()

	return ResyncReport{
		Total:      len(policies),
		Calculated: int(calculated.Load()),
		Unmatched:  int(unmatched.Load()),
		Failed:     int(failed.Load()),
	}, nil
}

// evaluationDate is the date the rule window is checked against: the
// policy's issue date, falling back to "now" for unsaved drafts.
func (e *Engine) evaluationDate(p *Policy) time.Time {
	if !p.IssuedAt.IsZero() {
		return p.IssuedAt
	}
	return e.now().UTC()
}
