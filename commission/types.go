/*
Package commission provides the core commission calculation and
distribution engine for the policy administration platform.

PURPOSE:
  Given a sold or renewed policy, the engine determines how much commission
  the brokerage earns from the insurer, then splits that commission among
  the selling channel (agent, referral partner, employee, or direct), any
  reporting manager above that channel, and the brokerage itself.

KEY CONCEPTS IN THIS FILE (types.go):
  - LineOfBusiness: Closed set of supported insurance lines
  - Policy: Immutable policy snapshot the engine computes from
  - Details: Per-line detail structs nested in a common envelope
  - Rule: A normalized commission rule or payout-grid row
  - Partner: A channel partner (agent, MISP, POSP) with its percentage chain
  - Distribution: The structurally-exclusive split of the insurer commission
  - Result: The full per-policy commission breakdown

DESIGN PRINCIPLES:
  1. Precision: All money and rate arithmetic uses decimal.Decimal.
     `amount = base * rate / 100` is computed exactly; rounding happens
     only at the presentation boundary (api/dto.go).
  2. Immutability: Commission is recomputed from the policy snapshot,
     never mutated in place. A Result replaces the prior one atomically.
  3. Exclusivity by construction: Distribution holds exactly one channel
     share and one remainder destination, so the share-sum invariant is
     guaranteed by the type rather than checked after the fact.

USAGE:
  engine := commission.NewEngine(rules, partners, logger)
  result, err := engine.Calculate(ctx, policy)
  shares := result.Shares() // agent / misp / employee / manager / broker

SEE ALSO:
  - resolver.go: Finds the best-matching rule for a policy
  - calculator.go: Line-of-business rate arithmetic
  - distribution.go: Channel payout splitting
  - engine.go: Orchestration and batch recomputation
*/
package commission

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LINE OF BUSINESS
// =============================================================================

// LineOfBusiness identifies which rate-calculation strategy applies.
// The set is closed: anything unrecognized parses to LineOther and takes
// the generic calculation branch.
type LineOfBusiness string

const (
	LineMotor      LineOfBusiness = "motor"
	LineLife       LineOfBusiness = "life"
	LineHealth     LineOfBusiness = "health"
	LineCommercial LineOfBusiness = "commercial"
	LineOther      LineOfBusiness = "other"
)

// ParseLine normalizes a free-form line-of-business string.
// Unknown values map to LineOther, never an error: malformed policy data
// falls through to the generic calculation rather than failing.
func ParseLine(s string) LineOfBusiness {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "motor", "vehicle", "auto":
		return LineMotor
	case "life", "term life", "term_life":
		return LineLife
	case "health", "mediclaim":
		return LineHealth
	case "commercial", "marine", "fire", "liability":
		return LineCommercial
	default:
		return LineOther
	}
}

// =============================================================================
// CHANNEL TYPES
// =============================================================================

// ChannelType identifies the selling channel of a policy.
type ChannelType string

const (
	ChannelEmployee ChannelType = "employee"
	ChannelAgent    ChannelType = "agent"
	ChannelMISP     ChannelType = "misp" // Motor Insurance Service Provider
	ChannelPOSP     ChannelType = "posp" // Point-of-Sale Person
	ChannelDirect   ChannelType = "direct"
)

// ParseChannel normalizes a channel string. Empty or unknown values map
// to ChannelDirect: the full commission stays with the brokerage.
func ParseChannel(s string) ChannelType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "employee":
		return ChannelEmployee
	case "agent":
		return ChannelAgent
	case "misp":
		return ChannelMISP
	case "posp":
		return ChannelPOSP
	default:
		return ChannelDirect
	}
}

// =============================================================================
// PAYMENT FREQUENCY & PLAN TYPE
// =============================================================================

// PaymentFrequency is how often the policyholder pays premium.
// Life and Health rates carry per-frequency multipliers.
type PaymentFrequency string

const (
	FrequencyAnnual     PaymentFrequency = "annual"
	FrequencySemiAnnual PaymentFrequency = "semi_annual"
	FrequencyQuarterly  PaymentFrequency = "quarterly"
	FrequencyMonthly    PaymentFrequency = "monthly"
)

// ParseFrequency normalizes the wire spellings seen in policy feeds
// ("Semi-Annual", "semiannual", "HalfYearly"). Unknown values return
// FrequencyAnnual, which carries a 1.00 multiplier on every line.
func ParseFrequency(s string) PaymentFrequency {
	switch strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(s)) {
	case "semiannual", "halfyearly", "halfyear":
		return FrequencySemiAnnual
	case "quarterly":
		return FrequencyQuarterly
	case "monthly":
		return FrequencyMonthly
	default:
		return FrequencyAnnual
	}
}

// PlanType distinguishes health plans for the regulatory rate ceiling.
type PlanType string

const (
	PlanGroup      PlanType = "group"      // capped at 7.5%
	PlanIndividual PlanType = "individual" // capped at 15%
)

// ParsePlanType normalizes a plan-type string. Unrecognized plan types
// are returned as-is (lowercased) and are not rate-capped.
func ParsePlanType(s string) PlanType {
	return PlanType(strings.ToLower(strings.TrimSpace(s)))
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type OrgID string
type PolicyID string
type PartnerID string
type RuleID string

// =============================================================================
// POLICY - Immutable snapshot the engine computes from
// =============================================================================

// Policy is the snapshot of a sold or renewed policy for commission
// purposes. It is never mutated: recalculation re-reads the snapshot and
// replaces the Result.
type Policy struct {
	ID           PolicyID
	OrgID        OrgID
	PolicyNumber string

	Line        LineOfBusiness
	ProductID   string
	ProductType string // requested product category, loose-matched by the resolver
	Provider    string // insurer / carrier name

	// Premium components
	GrossPremium decimal.Decimal
	NetPremium   decimal.Decimal // premium excluding tax

	PaymentFrequency PaymentFrequency
	SumAssured       decimal.Decimal

	// Selling channel
	Channel   ChannelType
	PartnerID PartnerID

	Renewal bool
	Details Details

	IssuedAt time.Time
}

// Details is the per-line detail envelope. Exactly one of the pointers is
// expected to be set, matching the policy's line; the calculator tolerates
// a missing detail struct by falling back to the envelope-level premium.
type Details struct {
	Motor      *MotorDetails
	Life       *LifeDetails
	Health     *HealthDetails
	Commercial *CommercialDetails
}

// MotorDetails carries the premium split for motor policies.
// Only the own-damage component attracts commission.
type MotorDetails struct {
	ODPremium   decimal.Decimal // own-damage premium
	TPPremium   decimal.Decimal // third-party premium, 0% commission always
	VehicleType string
}

// LifeDetails carries the term fields used for tiered-range lookups.
type LifeDetails struct {
	PolicyTerm         int // years
	PremiumPaymentTerm int // years
}

// HealthDetails carries the plan type used for the regulatory rate cap.
type HealthDetails struct {
	PlanType PlanType
}

// CommercialDetails carries the sum assured used for tiered-range lookups.
type CommercialDetails struct {
	SumAssured decimal.Decimal
}

// =============================================================================
// RULE - Normalized commission rule / payout-grid row
// =============================================================================

// Rule is a normalized commission rule or payout-grid row. Motor, Health
// and Life rows come from line-specific grid tables; other lines come from
// the generic rule table. The store normalizes Life's distinct effective
// window columns (commission_start_date / commission_end_date) into
// EffectiveFrom / EffectiveTo so the resolver sees one shape.
type Rule struct {
	ID    RuleID
	OrgID OrgID
	Line  LineOfBusiness

	// Matching filters. Empty strings and nil bounds mean "any".
	ProductType    string // primary product/sub-type text
	ProductTypeAlt string // secondary product-type text
	Provider       string
	MinPremium     *decimal.Decimal
	MaxPremium     *decimal.Decimal
	EffectiveFrom  *time.Time
	EffectiveTo    *time.Time

	// Rates and amounts. A non-zero fixed amount takes precedence over the
	// corresponding percentage rate for the base component.
	FirstYearRate   decimal.Decimal
	FirstYearAmount decimal.Decimal
	RenewalRate     decimal.Decimal
	RenewalAmount   decimal.Decimal
	RewardRate      decimal.Decimal
	BonusRate       decimal.Decimal

	// Optional tiered sub-ranges, evaluated in list order, first match wins.
	Tiers []TierRange

	// SourceTable records which grid/rule table the row came from, for the
	// persisted commission record.
	SourceTable string

	CreatedAt time.Time
}

// TierRange is a tiered sub-range keyed by premium, policy term, or sum
// insured depending on the line. Nil bounds are open-ended.
type TierRange struct {
	MinValue *decimal.Decimal
	MaxValue *decimal.Decimal
	Rate     decimal.Decimal
	Amount   decimal.Decimal
}

// Contains reports whether key falls within the range bounds (inclusive).
func (t TierRange) Contains(key decimal.Decimal) bool {
	if t.MinValue != nil && key.LessThan(*t.MinValue) {
		return false
	}
	if t.MaxValue != nil && key.GreaterThan(*t.MaxValue) {
		return false
	}
	return true
}

// =============================================================================
// PARTNER - Channel partner with its percentage fallback chain
// =============================================================================

// Partner is a channel partner record (agent, MISP, POSP). The payout
// percentage resolves through an ordered chain: override, then base, then
// the channel's hardcoded default.
type Partner struct {
	ID      PartnerID
	OrgID   OrgID
	Channel ChannelType
	Name    string

	BasePercent     *decimal.Decimal
	OverridePercent *decimal.Decimal // wins over BasePercent when set

	// When either reference is set, the remainder of the insurer commission
	// flows to the reporting manager instead of the brokerage.
	ReportingManagerID string
	ParentEmployeeID   string

	Active    bool
	CreatedAt time.Time
}

// =============================================================================
// DISTRIBUTION - Structurally-exclusive payout split
// =============================================================================

// RemainderParty is where the post-channel remainder flows. The two
// destinations are mutually exclusive by construction.
type RemainderParty string

const (
	RemainderToBroker  RemainderParty = "broker"
	RemainderToManager RemainderParty = "reporting_manager"
)

// Distribution is the split of the insurer commission. It holds exactly one
// channel share and one remainder destination, so the invariant
//
//	insurer_commission == channel + remainder
//
// holds by construction. The five flattened share fields (agent, misp,
// employee, reporting manager, broker) are derived from it; the record
// sink persists them alongside the structural form for reporting queries.
type Distribution struct {
	Channel        ChannelType
	ChannelPercent decimal.Decimal
	ChannelAmount  decimal.Decimal

	Remainder       RemainderParty
	RemainderAmount decimal.Decimal
}

// Shares is the flattened five-field breakdown expected by the commission
// record sink. At most one channel field is non-zero, and the manager and
// broker fields are mutually exclusive.
type Shares struct {
	Agent            decimal.Decimal
	MISP             decimal.Decimal
	Employee         decimal.Decimal
	ReportingManager decimal.Decimal
	Broker           decimal.Decimal
}

// Shares flattens the distribution into the five persisted fields.
// POSP shares are recorded under the agent field: POSPs are agent-class
// individual sellers and the record sink carries no separate POSP column.
func (d Distribution) Shares() Shares {
	var s Shares
	switch d.Channel {
	case ChannelAgent, ChannelPOSP:
		s.Agent = d.ChannelAmount
	case ChannelMISP:
		s.MISP = d.ChannelAmount
	case ChannelEmployee:
		s.Employee = d.ChannelAmount
	}
	switch d.Remainder {
	case RemainderToManager:
		s.ReportingManager = d.RemainderAmount
	default:
		s.Broker = d.RemainderAmount
	}
	return s
}

// Total is the sum of all five share fields.
func (s Shares) Total() decimal.Decimal {
	return s.Agent.Add(s.MISP).Add(s.Employee).Add(s.ReportingManager).Add(s.Broker)
}

// =============================================================================
// RESULT - Per-policy commission breakdown
// =============================================================================

// Status marks whether a Result represents a real calculation, an
// unmatched policy, or a failed run. An unmatched zero must stay
// distinguishable from a legitimately zero commission.
type Status string

const (
	StatusCalculated Status = "calculated"
	StatusUnmatched  Status = "unmatched" // no rule found; amounts are zero
	StatusFailed     Status = "failed"    // upstream lookup failure
)

// Breakdown details how the insurer commission was arrived at.
type Breakdown struct {
	BaseCommission decimal.Decimal
	TierAdjustment decimal.Decimal
	ODCommission   decimal.Decimal // motor only
	TPCommission   decimal.Decimal // motor only, always zero absent a fixed amount
}

// Result is the complete commission breakdown for one policy. It is
// created or replaced whole: the record sink upserts by policy id.
type Result struct {
	PolicyID    PolicyID
	OrgID       OrgID
	ProductType string

	RuleID    RuleID
	RuleTable string

	BaseRate   decimal.Decimal
	RewardRate decimal.Decimal
	BonusRate  decimal.Decimal
	TotalRate  decimal.Decimal

	InsurerCommission decimal.Decimal
	Breakdown         Breakdown
	Distribution      Distribution

	Status       Status
	Error        string // human-readable cause for unmatched/failed
	CalculatedAt time.Time
}

// Shares flattens the embedded distribution.
func (r *Result) Shares() Shares { return r.Distribution.Shares() }

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

// PercentOf computes base * rate / 100 exactly, with no intermediate
// rounding. Every percentage in the engine goes through this.
func PercentOf(base, rate decimal.Decimal) decimal.Decimal {
	return base.Mul(rate).Div(decimal.NewFromInt(100))
}

// MustParseDecimal parses s, returning zero on malformed input.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// DecimalPtr returns a pointer to d, for optional bounds and percents.
func DecimalPtr(d decimal.Decimal) *decimal.Decimal { return &d }
