/*
calculator.go - Line-of-business rate arithmetic

PURPOSE:
  Given the resolved rule and the policy snapshot, computes the gross
  commission the brokerage earns from the insurer ("insurer commission"),
  applying line-specific bases, payment-frequency multipliers, tiered
  ranges, and regulatory rate caps.

STRATEGY TABLE:
  Dispatch is a closed map from LineOfBusiness to a rate function,
  initialized exhaustively in NewCalculator. Unknown lines parse to
  LineOther and take the generic branch, so malformed policy data computes
  a default-path result instead of failing.

SHARED BASE LOGIC:
  - Renewal policies use renewal_rate/renewal_amount; first-year policies
    use first_year_rate/first_year_amount.
  - A non-zero fixed amount always beats the percentage rate for the base
    component.
  - All percentage math is amount = base * rate / 100, exact decimal,
    no mid-calculation rounding.

PER-LINE RULES:
  Motor:      commission on the own-damage premium only; third-party
              premium always contributes 0%
  Life:       frequency multiplier (1.00/0.95/0.90/0.85), then tiered
              lookup keyed by policy term falling back to premium
  Health:     frequency multiplier (1.00/0.90/0.80/0.70), then regulatory
              ceiling: 7.5% group plans, 15% individual plans
  Commercial: tiered lookup keyed by sum assured falling back to premium
  Other:      generic base rate/amount, no multipliers or caps

SEE ALSO:
  - resolver.go: Produces the rule consumed here
  - distribution.go: Splits the amount computed here
*/
package commission

import "github.com/shopspring/decimal"

// RateOutcome is the calculator's output: the insurer commission, the
// effective rate that produced it, and the component breakdown.
type RateOutcome struct {
	Amount    decimal.Decimal
	RateUsed  decimal.Decimal
	Breakdown Breakdown
}

// rateFn computes the insurer commission for one line of business.
type rateFn func(rule *Rule, p *Policy) RateOutcome

// Calculator dispatches to the per-line rate function.
type Calculator struct {
	strategies map[LineOfBusiness]rateFn
}

// NewCalculator builds the strategy table. Every LineOfBusiness variant is
// bound here; adding a line without a strategy is a programming error
// caught by TestCalculator_StrategyTableCoversEveryLine.
func NewCalculator() *Calculator {
	return &Calculator{
		strategies: map[LineOfBusiness]rateFn{
			LineMotor:      motorRate,
			LineLife:       lifeRate,
			LineHealth:     healthRate,
			LineCommercial: commercialRate,
			LineOther:      genericRate,
		},
	}
}

// Calculate computes the insurer commission for the policy under the rule.
// Pure function: identical inputs always yield identical outcomes.
func (c *Calculator) Calculate(rule *Rule, p *Policy) RateOutcome {
	fn, ok := c.strategies[p.Line]
	if !ok {
		fn = genericRate
	}
	return fn(rule, p)
}

// Lines returns the lines the strategy table covers, for exhaustiveness
// checks in tests.
func (c *Calculator) Lines() []LineOfBusiness {
	lines := make([]LineOfBusiness, 0, len(c.strategies))
	for l := range c.strategies {
		lines = append(lines, l)
	}
	return lines
}

// =============================================================================
// SHARED BASE LOGIC
// =============================================================================

// baseRateAmount selects the renewal or first-year pair.
func baseRateAmount(rule *Rule, renewal bool) (rate, amount decimal.Decimal) {
	if renewal {
		return rule.RenewalRate, rule.RenewalAmount
	}
	return rule.FirstYearRate, rule.FirstYearAmount
}

// genericRate is the default-path calculation for unrecognized lines:
// base + reward + bonus rates summed, applied to gross premium. A non-zero
// fixed amount replaces the percentage base component; reward and bonus
// stay rate-based.
func genericRate(rule *Rule, p *Policy) RateOutcome {
	rate, amount := baseRateAmount(rule, p.Renewal)

	base := amount
	if amount.IsZero() {
		base = PercentOf(p.GrossPremium, rate)
	}
	reward := PercentOf(p.GrossPremium, rule.RewardRate)
	bonus := PercentOf(p.GrossPremium, rule.BonusRate)

	total := base.Add(reward).Add(bonus)
	return RateOutcome{
		Amount:   total,
		RateUsed: rate.Add(rule.RewardRate).Add(rule.BonusRate),
		Breakdown: Breakdown{
			BaseCommission: base,
		},
	}
}

// =============================================================================
// MOTOR - Own-damage premium only
// =============================================================================

// motorRate applies commission to the own-damage premium component only.
// The third-party premium contributes 0% regardless of the rate. A fixed
// base amount, when present, is used outright.
func motorRate(rule *Rule, p *Policy) RateOutcome {
	rate, amount := baseRateAmount(rule, p.Renewal)

	var od decimal.Decimal
	if p.Details.Motor != nil {
		od = p.Details.Motor.ODPremium
	}

	if !amount.IsZero() {
		return RateOutcome{
			Amount:   amount,
			RateUsed: rate,
			Breakdown: Breakdown{
				BaseCommission: amount,
				ODCommission:   amount,
			},
		}
	}

	odCommission := PercentOf(od, rate)
	return RateOutcome{
		Amount:   odCommission,
		RateUsed: rate,
		Breakdown: Breakdown{
			BaseCommission: odCommission,
			ODCommission:   odCommission,
			// TPCommission stays zero always
		},
	}
}

// =============================================================================
// LIFE - Frequency multiplier + tiered ranges
// =============================================================================

// lifeFrequencyMultipliers adjusts the base rate by payment frequency.
var lifeFrequencyMultipliers = map[PaymentFrequency]decimal.Decimal{
	FrequencyAnnual:     decimal.NewFromFloat(1.00),
	FrequencySemiAnnual: decimal.NewFromFloat(0.95),
	FrequencyQuarterly:  decimal.NewFromFloat(0.90),
	FrequencyMonthly:    decimal.NewFromFloat(0.85),
}

// lifeRate applies the frequency multiplier to the base rate, then runs
// the tiered-range lookup keyed by policy term (falling back to premium).
// A matching range's own rate/amount overrides the adjusted base. If no
// tier produces a non-zero amount, fall back to the fixed amount, else
// premium * effectiveRate / 100.
func lifeRate(rule *Rule, p *Policy) RateOutcome {
	rate, amount := baseRateAmount(rule, p.Renewal)

	mult, ok := lifeFrequencyMultipliers[p.PaymentFrequency]
	if !ok {
		mult = decimal.NewFromInt(1)
	}
	effRate := rate.Mul(mult)

	key := p.GrossPremium
	if p.Details.Life != nil && p.Details.Life.PolicyTerm > 0 {
		key = decimal.NewFromInt(int64(p.Details.Life.PolicyTerm))
	}

	base := amount
	if amount.IsZero() {
		base = PercentOf(p.GrossPremium, effRate)
	}

	if tierAmount, tierRate, matched := tierLookup(rule.Tiers, key, p.GrossPremium); matched && !tierAmount.IsZero() {
		if !tierRate.IsZero() {
			effRate = tierRate
		}
		return RateOutcome{
			Amount:   tierAmount,
			RateUsed: effRate,
			Breakdown: Breakdown{
				BaseCommission: base,
				TierAdjustment: tierAmount.Sub(base),
			},
		}
	}

	return RateOutcome{
		Amount:    base,
		RateUsed:  effRate,
		Breakdown: Breakdown{BaseCommission: base},
	}
}

// tierLookup walks the ranges in list order; the first range containing
// key wins. The winning range's fixed amount beats its rate; with only a
// rate set the amount is premium * rate / 100.
func tierLookup(tiers []TierRange, key, premium decimal.Decimal) (amount, rate decimal.Decimal, matched bool) {
	for _, t := range tiers {
		if !t.Contains(key) {
			continue
		}
		if !t.Amount.IsZero() {
			return t.Amount, t.Rate, true
		}
		return PercentOf(premium, t.Rate), t.Rate, true
	}
	return decimal.Zero, decimal.Zero, false
}

// =============================================================================
// HEALTH - Frequency multiplier + regulatory ceiling
// =============================================================================

// healthFrequencyMultipliers is Health's distinct multiplier schedule.
var healthFrequencyMultipliers = map[PaymentFrequency]decimal.Decimal{
	FrequencyAnnual:     decimal.NewFromFloat(1.00),
	FrequencySemiAnnual: decimal.NewFromFloat(0.90),
	FrequencyQuarterly:  decimal.NewFromFloat(0.80),
	FrequencyMonthly:    decimal.NewFromFloat(0.70),
}

// Regulatory rate ceilings by health plan type. Plan types outside this
// table are unclamped.
var healthRateCeilings = map[PlanType]decimal.Decimal{
	PlanGroup:      decimal.NewFromFloat(7.5),
	PlanIndividual: decimal.NewFromFloat(15),
}

// healthRate applies the health frequency multiplier, clamps the effective
// rate to the plan type's regulatory ceiling, then computes the amount from
// the fixed amount if present, else premium * effectiveRate / 100.
func healthRate(rule *Rule, p *Policy) RateOutcome {
	rate, amount := baseRateAmount(rule, p.Renewal)

	mult, ok := healthFrequencyMultipliers[p.PaymentFrequency]
	if !ok {
		mult = decimal.NewFromInt(1)
	}
	effRate := rate.Mul(mult)

	if p.Details.Health != nil {
		if ceiling, capped := healthRateCeilings[p.Details.Health.PlanType]; capped && effRate.GreaterThan(ceiling) {
			effRate = ceiling
		}
	}

	out := amount
	if amount.IsZero() {
		out = PercentOf(p.GrossPremium, effRate)
	}
	return RateOutcome{
		Amount:    out,
		RateUsed:  effRate,
		Breakdown: Breakdown{BaseCommission: out},
	}
}

// =============================================================================
// COMMERCIAL - Tiered ranges keyed by sum assured
// =============================================================================

// commercialRate runs the same tier mechanics as Life, keyed by sum
// assured (falling back to premium), with no frequency multiplier.
func commercialRate(rule *Rule, p *Policy) RateOutcome {
	rate, amount := baseRateAmount(rule, p.Renewal)

	key := p.GrossPremium
	switch {
	case p.Details.Commercial != nil && !p.Details.Commercial.SumAssured.IsZero():
		key = p.Details.Commercial.SumAssured
	case !p.SumAssured.IsZero():
		key = p.SumAssured
	}

	base := amount
	if amount.IsZero() {
		base = PercentOf(p.GrossPremium, rate)
	}

	if tierAmount, tierRate, matched := tierLookup(rule.Tiers, key, p.GrossPremium); matched && !tierAmount.IsZero() {
		effRate := rate
		if !tierRate.IsZero() {
			effRate = tierRate
		}
		return RateOutcome{
			Amount:   tierAmount,
			RateUsed: effRate,
			Breakdown: Breakdown{
				BaseCommission: base,
				TierAdjustment: tierAmount.Sub(base),
			},
		}
	}

	return RateOutcome{
		Amount:    base,
		RateUsed:  rate,
		Breakdown: Breakdown{BaseCommission: base},
	}
}
