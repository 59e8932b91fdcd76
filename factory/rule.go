/*
Package factory provides JSON to Go rule conversion.

PURPOSE:
  Converts JSON rule and partner definitions into commission.Rule and
  commission.Partner objects. This enables payout configuration without
  code changes - operations teams can load insurer grids from JSON, and
  the factory creates the proper Go structs with validation applied.

WHY JSON?
  - Non-developers can load insurer payout grids
  - Easy integration with admin UI and bulk import
  - Version control for grid definitions
  - Database storage of rule configs

JSON SCHEMA:
  {
    "id": "motor-acme-2025",
    "org_id": "org-1",
    "line_of_business": "motor",
    "product_type": "Private Car",
    "provider": "Acme General",
    "min_premium": 1000,
    "max_premium": 50000,
    "effective_from": "2025-01-01",
    "first_year_rate": 10,
    "renewal_rate": 5,
    "tiers": [
      {"min_value": 0, "max_value": 10000, "rate": 12}
    ]
  }

KEY FEATURES:
  - Validates rates (0-100), premium bands and effective windows
  - Assigns ids when omitted
  - Parses line, channel and frequency enums leniently
  - Symmetric ToJSON for export

USAGE:
  factory := NewRuleFactory()

  rule, err := factory.ParseRule(jsonString)
  if err != nil {
      return err
  }
  store.SaveRule(ctx, rule)

SEE ALSO:
  - commission/types.go: Rule and Partner type definitions
  - api/handlers.go: HTTP surface that feeds this factory
*/
package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/commission"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RuleJSON is the JSON representation of a payout rule or grid row.
type RuleJSON struct {
	ID              string     `json:"id,omitempty"`
	OrgID           string     `json:"org_id"`
	LineOfBusiness  string     `json:"line_of_business"`
	ProductType     string     `json:"product_type,omitempty"`
	ProductTypeAlt  string     `json:"product_type_alt,omitempty"`
	Provider        string     `json:"provider,omitempty"`
	MinPremium      *float64   `json:"min_premium,omitempty"`
	MaxPremium      *float64   `json:"max_premium,omitempty"`
	EffectiveFrom   string     `json:"effective_from,omitempty"` // YYYY-MM-DD
	EffectiveTo     string     `json:"effective_to,omitempty"`
	FirstYearRate   float64    `json:"first_year_rate,omitempty"`
	FirstYearAmount float64    `json:"first_year_amount,omitempty"`
	RenewalRate     float64    `json:"renewal_rate,omitempty"`
	RenewalAmount   float64    `json:"renewal_amount,omitempty"`
	RewardRate      float64    `json:"reward_rate,omitempty"`
	BonusRate       float64    `json:"bonus_rate,omitempty"`
	Tiers           []TierJSON `json:"tiers,omitempty"`
}

// TierJSON represents one tier range keyed by term, premium or sum assured.
type TierJSON struct {
	MinValue *float64 `json:"min_value,omitempty"`
	MaxValue *float64 `json:"max_value,omitempty"`
	Rate     float64  `json:"rate,omitempty"`
	Amount   float64  `json:"amount,omitempty"`
}

// PartnerJSON is the JSON representation of a channel partner.
type PartnerJSON struct {
	ID                 string   `json:"id,omitempty"`
	OrgID              string   `json:"org_id"`
	ChannelType        string   `json:"channel_type"`
	Name               string   `json:"name,omitempty"`
	BasePercent        *float64 `json:"base_percent,omitempty"`
	OverridePercent    *float64 `json:"override_percent,omitempty"`
	ReportingManagerID string   `json:"reporting_manager_id,omitempty"`
	ParentEmployeeID   string   `json:"parent_employee_id,omitempty"`
	Active             *bool    `json:"active,omitempty"` // Default true
}

// =============================================================================
// RULE FACTORY
// =============================================================================

// RuleFactory converts JSON rules and partners to Go structs.
type RuleFactory struct{}

// NewRuleFactory creates a new rule factory.
func NewRuleFactory() *RuleFactory {
	return &RuleFactory{}
}

// ParseRule parses a JSON string into a validated Rule.
func (f *RuleFactory) ParseRule(jsonStr string) (*commission.Rule, error) {
	var rj RuleJSON
	if err := json.Unmarshal([]byte(jsonStr), &rj); err != nil {
		return nil, fmt.Errorf("failed to parse rule JSON: %w", err)
	}
	return f.FromJSON(rj)
}

// FromJSON converts RuleJSON to a validated commission.Rule.
func (f *RuleFactory) FromJSON(rj RuleJSON) (*commission.Rule, error) {
	if rj.OrgID == "" {
		return nil, fmt.Errorf("rule requires org_id")
	}

	rule := &commission.Rule{
		ID:              commission.RuleID(rj.ID),
		OrgID:           commission.OrgID(rj.OrgID),
		Line:            commission.ParseLine(rj.LineOfBusiness),
		ProductType:     rj.ProductType,
		ProductTypeAlt:  rj.ProductTypeAlt,
		Provider:        rj.Provider,
		MinPremium:      floatPtrToDecimal(rj.MinPremium),
		MaxPremium:      floatPtrToDecimal(rj.MaxPremium),
		FirstYearRate:   decimal.NewFromFloat(rj.FirstYearRate),
		FirstYearAmount: decimal.NewFromFloat(rj.FirstYearAmount),
		RenewalRate:     decimal.NewFromFloat(rj.RenewalRate),
		RenewalAmount:   decimal.NewFromFloat(rj.RenewalAmount),
		RewardRate:      decimal.NewFromFloat(rj.RewardRate),
		BonusRate:       decimal.NewFromFloat(rj.BonusRate),
		CreatedAt:       time.Now().UTC(),
	}
	if rule.ID == "" {
		rule.ID = commission.RuleID(uuid.NewString())
	}

	var err error
	if rule.EffectiveFrom, err = parseDate(rj.EffectiveFrom); err != nil {
		return nil, fmt.Errorf("invalid effective_from: %w", err)
	}
	if rule.EffectiveTo, err = parseDate(rj.EffectiveTo); err != nil {
		return nil, fmt.Errorf("invalid effective_to: %w", err)
	}

	for _, tj := range rj.Tiers {
		rule.Tiers = append(rule.Tiers, commission.TierRange{
			MinValue: floatPtrToDecimal(tj.MinValue),
			MaxValue: floatPtrToDecimal(tj.MaxValue),
			Rate:     decimal.NewFromFloat(tj.Rate),
			Amount:   decimal.NewFromFloat(tj.Amount),
		})
	}

	if err := validateRule(rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// ToJSON converts a Rule back to its JSON representation.
func (f *RuleFactory) ToJSON(rule *commission.Rule) RuleJSON {
	rj := RuleJSON{
		ID:              string(rule.ID),
		OrgID:           string(rule.OrgID),
		LineOfBusiness:  string(rule.Line),
		ProductType:     rule.ProductType,
		ProductTypeAlt:  rule.ProductTypeAlt,
		Provider:        rule.Provider,
		MinPremium:      decimalToFloatPtr(rule.MinPremium),
		MaxPremium:      decimalToFloatPtr(rule.MaxPremium),
		FirstYearRate:   rule.FirstYearRate.InexactFloat64(),
		FirstYearAmount: rule.FirstYearAmount.InexactFloat64(),
		RenewalRate:     rule.RenewalRate.InexactFloat64(),
		RenewalAmount:   rule.RenewalAmount.InexactFloat64(),
		RewardRate:      rule.RewardRate.InexactFloat64(),
		BonusRate:       rule.BonusRate.InexactFloat64(),
	}
	if rule.EffectiveFrom != nil {
		rj.EffectiveFrom = rule.EffectiveFrom.Format("2006-01-02")
	}
	if rule.EffectiveTo != nil {
		rj.EffectiveTo = rule.EffectiveTo.Format("2006-01-02")
	}
	for _, tier := range rule.Tiers {
		rj.Tiers = append(rj.Tiers, TierJSON{
			MinValue: decimalToFloatPtr(tier.MinValue),
			MaxValue: decimalToFloatPtr(tier.MaxValue),
			Rate:     tier.Rate.InexactFloat64(),
			Amount:   tier.Amount.InexactFloat64(),
		})
	}
	return rj
}

// ParsePartner parses a JSON string into a validated Partner.
func (f *RuleFactory) ParsePartner(jsonStr string) (*commission.Partner, error) {
	var pj PartnerJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return nil, fmt.Errorf("failed to parse partner JSON: %w", err)
	}
	return f.PartnerFromJSON(pj)
}

// PartnerFromJSON converts PartnerJSON to a validated commission.Partner.
func (f *RuleFactory) PartnerFromJSON(pj PartnerJSON) (*commission.Partner, error) {
	if pj.OrgID == "" {
		return nil, fmt.Errorf("partner requires org_id")
	}

	p := &commission.Partner{
		ID:                 commission.PartnerID(pj.ID),
		OrgID:              commission.OrgID(pj.OrgID),
		Channel:            commission.ParseChannel(pj.ChannelType),
		Name:               pj.Name,
		BasePercent:        floatPtrToDecimal(pj.BasePercent),
		OverridePercent:    floatPtrToDecimal(pj.OverridePercent),
		ReportingManagerID: pj.ReportingManagerID,
		ParentEmployeeID:   pj.ParentEmployeeID,
		Active:             true,
		CreatedAt:          time.Now().UTC(),
	}
	if p.ID == "" {
		p.ID = commission.PartnerID(uuid.NewString())
	}
	if pj.Active != nil {
		p.Active = *pj.Active
	}

	if err := validatePercent(p.BasePercent, "base_percent"); err != nil {
		return nil, err
	}
	if err := validatePercent(p.OverridePercent, "override_percent"); err != nil {
		return nil, err
	}
	return p, nil
}

// =============================================================================
// VALIDATION
// =============================================================================

var percentHundred = decimal.NewFromInt(100)

// validateRule checks rates, premium bands, effective windows and tiers.
// A rule with neither rates nor amounts is legal - it resolves to zero
// commission, which some grids use to explicitly suppress payout.
func validateRule(rule *commission.Rule) error {
	for _, check := range []struct {
		name string
		rate decimal.Decimal
	}{
		{"first_year_rate", rule.FirstYearRate},
		{"renewal_rate", rule.RenewalRate},
		{"reward_rate", rule.RewardRate},
		{"bonus_rate", rule.BonusRate},
	} {
		if err := validateRate(check.rate, check.name); err != nil {
			return err
		}
	}
	if rule.FirstYearAmount.IsNegative() || rule.RenewalAmount.IsNegative() {
		return fmt.Errorf("fixed amounts must not be negative")
	}

	if rule.MinPremium != nil && rule.MaxPremium != nil &&
		rule.MinPremium.GreaterThan(*rule.MaxPremium) {
		return fmt.Errorf("min_premium %s exceeds max_premium %s",
			rule.MinPremium, rule.MaxPremium)
	}
	if rule.EffectiveFrom != nil && rule.EffectiveTo != nil &&
		rule.EffectiveFrom.After(*rule.EffectiveTo) {
		return fmt.Errorf("effective_from %s is after effective_to %s",
			rule.EffectiveFrom.Format("2006-01-02"), rule.EffectiveTo.Format("2006-01-02"))
	}

	for i, tier := range rule.Tiers {
		if err := validateRate(tier.Rate, fmt.Sprintf("tiers[%d].rate", i)); err != nil {
			return err
		}
		if tier.Amount.IsNegative() {
			return fmt.Errorf("tiers[%d].amount must not be negative", i)
		}
		if tier.MinValue != nil && tier.MaxValue != nil &&
			tier.MinValue.GreaterThan(*tier.MaxValue) {
			return fmt.Errorf("tiers[%d]: min_value %s exceeds max_value %s",
				i, tier.MinValue, tier.MaxValue)
		}
	}
	return nil
}

func validateRate(rate decimal.Decimal, name string) error {
	if rate.IsNegative() || rate.GreaterThan(percentHundred) {
		return fmt.Errorf("%s must be between 0 and 100, got %s", name, rate)
	}
	return nil
}

func validatePercent(p *decimal.Decimal, name string) error {
	if p == nil {
		return nil
	}
	return validateRate(*p, name)
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		// Full timestamps are accepted too.
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func floatPtrToDecimal(f *float64) *decimal.Decimal {
	if f == nil {
		return nil
	}
	d := decimal.NewFromFloat(*f)
	return &d
}

func decimalToFloatPtr(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	v := d.InexactFloat64()
	return &v
}
