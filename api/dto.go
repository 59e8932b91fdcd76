/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Internally every amount is an exact decimal. Amounts are rounded to two
  places only here, at the serialization boundary; rounding never happens
  inside the calculation or distribution path.

VALIDATION:
  Request types carry go-playground/validator struct tags. Handlers run
  the validator before touching domain logic.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/rule.go: RuleJSON and PartnerJSON types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/factory"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CalculateRequest carries a policy snapshot for commission calculation.
type CalculateRequest struct {
	PolicyID         string       `json:"policy_id,omitempty"`
	OrgID            string       `json:"org_id" validate:"required"`
	PolicyNumber     string       `json:"policy_number,omitempty"`
	LineOfBusiness   string       `json:"line_of_business" validate:"required"`
	ProductID        string       `json:"product_id,omitempty"`
	ProductType      string       `json:"product_type,omitempty"`
	Provider         string       `json:"provider,omitempty"`
	GrossPremium     float64      `json:"gross_premium" validate:"gte=0"`
	NetPremium       float64      `json:"net_premium,omitempty" validate:"gte=0"`
	PaymentFrequency string       `json:"payment_frequency,omitempty"`
	SumAssured       float64      `json:"sum_assured,omitempty" validate:"gte=0"`
	ChannelType      string       `json:"channel_type,omitempty"`
	PartnerID        string       `json:"partner_id,omitempty"`
	Renewal          bool         `json:"renewal,omitempty"`
	Details          *DetailsJSON `json:"details,omitempty"`
	IssuedAt         string       `json:"issued_at,omitempty"` // YYYY-MM-DD
}

// DetailsJSON carries the line-specific policy fields.
type DetailsJSON struct {
	Motor      *MotorDetailsJSON      `json:"motor,omitempty"`
	Life       *LifeDetailsJSON       `json:"life,omitempty"`
	Health     *HealthDetailsJSON     `json:"health,omitempty"`
	Commercial *CommercialDetailsJSON `json:"commercial,omitempty"`
}

// MotorDetailsJSON carries the own-damage / third-party premium split.
type MotorDetailsJSON struct {
	ODPremium   float64 `json:"od_premium" validate:"gte=0"`
	TPPremium   float64 `json:"tp_premium,omitempty" validate:"gte=0"`
	VehicleType string  `json:"vehicle_type,omitempty"`
}

// LifeDetailsJSON carries term fields for tier lookups.
type LifeDetailsJSON struct {
	PolicyTerm         int `json:"policy_term,omitempty" validate:"gte=0"`
	PremiumPaymentTerm int `json:"premium_payment_term,omitempty" validate:"gte=0"`
}

// HealthDetailsJSON carries the plan type used for rate ceilings.
type HealthDetailsJSON struct {
	PlanType string `json:"plan_type,omitempty"`
}

// CommercialDetailsJSON carries the sum assured used for tier lookups.
type CommercialDetailsJSON struct {
	SumAssured float64 `json:"sum_assured,omitempty" validate:"gte=0"`
}

// CreateRuleRequest wraps a rule definition.
type CreateRuleRequest = factory.RuleJSON

// CreatePartnerRequest wraps a partner definition.
type CreatePartnerRequest = factory.PartnerJSON

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ResultDTO is the API shape of a commission result.
type ResultDTO struct {
	PolicyID          string          `json:"policy_id"`
	OrgID             string          `json:"org_id"`
	ProductType       string          `json:"product_type,omitempty"`
	Status            string          `json:"status"`
	RuleID            string          `json:"rule_id,omitempty"`
	RuleTable         string          `json:"rule_table,omitempty"`
	BaseRate          float64         `json:"base_rate"`
	RewardRate        float64         `json:"reward_rate"`
	BonusRate         float64         `json:"bonus_rate"`
	TotalRate         float64         `json:"total_rate"`
	InsurerCommission float64         `json:"insurer_commission"`
	Breakdown         BreakdownDTO    `json:"breakdown"`
	Distribution      DistributionDTO `json:"distribution"`
	Shares            SharesDTO       `json:"shares"`
	Error             string          `json:"error,omitempty"`
	CalculatedAt      string          `json:"calculated_at"`
}

// BreakdownDTO explains how the insurer commission was built.
type BreakdownDTO struct {
	BaseCommission float64 `json:"base_commission"`
	TierAdjustment float64 `json:"tier_adjustment"`
	ODCommission   float64 `json:"od_commission"`
	TPCommission   float64 `json:"tp_commission"`
}

// DistributionDTO shows the channel split decision.
type DistributionDTO struct {
	Channel         string  `json:"channel"`
	ChannelPercent  float64 `json:"channel_percent"`
	ChannelAmount   float64 `json:"channel_amount"`
	Remainder       string  `json:"remainder"`
	RemainderAmount float64 `json:"remainder_amount"`
}

// SharesDTO flattens the distribution into one column per party.
type SharesDTO struct {
	Agent            float64 `json:"agent"`
	MISP             float64 `json:"misp"`
	Employee         float64 `json:"employee"`
	ReportingManager float64 `json:"reporting_manager"`
	Broker           float64 `json:"broker"`
}

// PolicyDTO represents a stored policy snapshot.
type PolicyDTO struct {
	ID               string  `json:"id"`
	OrgID            string  `json:"org_id"`
	PolicyNumber     string  `json:"policy_number,omitempty"`
	LineOfBusiness   string  `json:"line_of_business"`
	ProductType      string  `json:"product_type,omitempty"`
	Provider         string  `json:"provider,omitempty"`
	GrossPremium     float64 `json:"gross_premium"`
	PaymentFrequency string  `json:"payment_frequency,omitempty"`
	ChannelType      string  `json:"channel_type,omitempty"`
	PartnerID        string  `json:"partner_id,omitempty"`
	Renewal          bool    `json:"renewal"`
	IssuedAt         string  `json:"issued_at,omitempty"`
}

// PartnerDTO represents a channel partner.
type PartnerDTO struct {
	ID                 string   `json:"id"`
	OrgID              string   `json:"org_id"`
	ChannelType        string   `json:"channel_type"`
	Name               string   `json:"name,omitempty"`
	BasePercent        *float64 `json:"base_percent,omitempty"`
	OverridePercent    *float64 `json:"override_percent,omitempty"`
	ReportingManagerID string   `json:"reporting_manager_id,omitempty"`
	ParentEmployeeID   string   `json:"parent_employee_id,omitempty"`
	Active             bool     `json:"active"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

// money rounds for display; internal values stay exact.
func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func toResultDTO(r *commission.Result) ResultDTO {
	shares := r.Shares()
	return ResultDTO{
		PolicyID:          string(r.PolicyID),
		OrgID:             string(r.OrgID),
		ProductType:       r.ProductType,
		Status:            string(r.Status),
		RuleID:            string(r.RuleID),
		RuleTable:         r.RuleTable,
		BaseRate:          money(r.BaseRate),
		RewardRate:        money(r.RewardRate),
		BonusRate:         money(r.BonusRate),
		TotalRate:         money(r.TotalRate),
		InsurerCommission: money(r.InsurerCommission),
		Breakdown: BreakdownDTO{
			BaseCommission: money(r.Breakdown.BaseCommission),
			TierAdjustment: money(r.Breakdown.TierAdjustment),
			ODCommission:   money(r.Breakdown.ODCommission),
			TPCommission:   money(r.Breakdown.TPCommission),
		},
		Distribution: DistributionDTO{
			Channel:         string(r.Distribution.Channel),
			ChannelPercent:  money(r.Distribution.ChannelPercent),
			ChannelAmount:   money(r.Distribution.ChannelAmount),
			Remainder:       string(r.Distribution.Remainder),
			RemainderAmount: money(r.Distribution.RemainderAmount),
		},
		Shares: SharesDTO{
			Agent:            money(shares.Agent),
			MISP:             money(shares.MISP),
			Employee:         money(shares.Employee),
			ReportingManager: money(shares.ReportingManager),
			Broker:           money(shares.Broker),
		},
		Error:        r.Error,
		CalculatedAt: r.CalculatedAt.Format(time.RFC3339),
	}
}

func toPolicyDTO(p *commission.Policy) PolicyDTO {
	dto := PolicyDTO{
		ID:               string(p.ID),
		OrgID:            string(p.OrgID),
		PolicyNumber:     p.PolicyNumber,
		LineOfBusiness:   string(p.Line),
		ProductType:      p.ProductType,
		Provider:         p.Provider,
		GrossPremium:     money(p.GrossPremium),
		PaymentFrequency: string(p.PaymentFrequency),
		ChannelType:      string(p.Channel),
		PartnerID:        string(p.PartnerID),
		Renewal:          p.Renewal,
	}
	if !p.IssuedAt.IsZero() {
		dto.IssuedAt = p.IssuedAt.Format("2006-01-02")
	}
	return dto
}

func toPartnerDTO(p *commission.Partner) PartnerDTO {
	dto := PartnerDTO{
		ID:                 string(p.ID),
		OrgID:              string(p.OrgID),
		ChannelType:        string(p.Channel),
		Name:               p.Name,
		ReportingManagerID: p.ReportingManagerID,
		ParentEmployeeID:   p.ParentEmployeeID,
		Active:             p.Active,
	}
	if p.BasePercent != nil {
		v := money(*p.BasePercent)
		dto.BasePercent = &v
	}
	if p.OverridePercent != nil {
		v := money(*p.OverridePercent)
		dto.OverridePercent = &v
	}
	return dto
}
