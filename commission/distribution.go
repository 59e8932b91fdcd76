/*
distribution.go - Splitting the insurer commission across payees

PURPOSE:
  Given the insurer commission and the policy's selling channel, produces
  the mutually-exclusive payout split: one channel share plus a remainder
  that flows either to the channel's reporting manager or to the brokerage.

CHANNEL RULES:
  employee: entire commission to the employee; broker share forced to zero
  agent:    percent = override -> base -> 70; remainder to the reporting
            manager when the agent has a manager or parent employee,
            otherwise to the brokerage
  misp:     same mechanics as agent with a 50 default
  posp:     fixed 60, remainder always to the brokerage (no override
            lookup, no manager redirection - the asymmetry is deliberate)
  direct:   entire commission to the brokerage

PARTNER MISSES:
  A channel whose partner record cannot be found distributes as direct.
  This is a defined fallback, not an error; ErrPartnerNotFound never
  escapes this component.

PERCENTAGE FALLBACK CHAINS:
  Expressed as an explicit ordered list of resolution steps returning the
  first set value, so the fallback order is auditable and testable apart
  from the surrounding split.

STATELESSNESS:
  Each invocation is independent and idempotent: identical inputs always
  yield identical shares.

SEE ALSO:
  - types.go: Distribution / Shares exclusivity guarantees
  - engine.go: Calls Distribute after the rate calculation
*/
package commission

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Default channel percentages applied when a partner carries neither an
// override nor a base percent. POSP is always fixed at its default.
var (
	defaultAgentPercent = decimal.NewFromInt(70)
	defaultMISPPercent  = decimal.NewFromInt(50)
	fixedPOSPPercent    = decimal.NewFromInt(60)
)

// Distributor splits the insurer commission by channel.
type Distributor struct {
	Partners PartnerStore
}

// NewDistributor creates a distributor over the given partner store.
func NewDistributor(partners PartnerStore) *Distributor {
	return &Distributor{Partners: partners}
}

// Distribute splits amount according to the policy's channel. Partner
// lookup misses fall back to the direct split; only storage failures
// return an error.
func (d *Distributor) Distribute(ctx context.Context, amount decimal.Decimal, channel ChannelType, partnerID PartnerID) (Distribution, error) {
	switch channel {
	case ChannelEmployee:
		return employeeSplit(amount), nil
	case ChannelAgent:
		return d.partnerSplit(ctx, amount, ChannelAgent, partnerID, defaultAgentPercent)
	case ChannelMISP:
		return d.partnerSplit(ctx, amount, ChannelMISP, partnerID, defaultMISPPercent)
	case ChannelPOSP:
		return d.pospSplit(ctx, amount, partnerID)
	default:
		return directSplit(amount), nil
	}
}

// employeeSplit: direct employee-originated sales carry no broker cut.
func employeeSplit(amount decimal.Decimal) Distribution {
	return Distribution{
		Channel:        ChannelEmployee,
		ChannelPercent: decimal.NewFromInt(100),
		ChannelAmount:  amount,
		Remainder:      RemainderToBroker,
		// RemainderAmount stays zero
	}
}

// directSplit: the entire insurer commission stays with the brokerage.
func directSplit(amount decimal.Decimal) Distribution {
	return Distribution{
		Channel:         ChannelDirect,
		Remainder:       RemainderToBroker,
		RemainderAmount: amount,
	}
}

// partnerSplit handles agent and MISP: percent fallback chain, then
// remainder redirection to the reporting manager when one exists.
func (d *Distributor) partnerSplit(ctx context.Context, amount decimal.Decimal, channel ChannelType, partnerID PartnerID, defaultPercent decimal.Decimal) (Distribution, error) {
	partner, err := d.lookup(ctx, partnerID)
	if err != nil {
		return Distribution{}, err
	}
	if partner == nil {
		return directSplit(amount), nil
	}

	percent := resolvePercent(defaultPercent, partner.OverridePercent, partner.BasePercent)
	share := PercentOf(amount, percent)
	remainder := amount.Sub(share)

	dest := RemainderToBroker
	if partner.ReportingManagerID != "" || partner.ParentEmployeeID != "" {
		dest = RemainderToManager
	}

	return Distribution{
		Channel:         channel,
		ChannelPercent:  percent,
		ChannelAmount:   share,
		Remainder:       dest,
		RemainderAmount: remainder,
	}, nil
}

// pospSplit: fixed 60% share, no override lookup, remainder always to the
// brokerage. The partner is still resolved so a dangling id falls back to
// the direct split like every other channel.
func (d *Distributor) pospSplit(ctx context.Context, amount decimal.Decimal, partnerID PartnerID) (Distribution, error) {
	partner, err := d.lookup(ctx, partnerID)
	if err != nil {
		return Distribution{}, err
	}
	if partner == nil {
		return directSplit(amount), nil
	}

	share := PercentOf(amount, fixedPOSPPercent)
	return Distribution{
		Channel:         ChannelPOSP,
		ChannelPercent:  fixedPOSPPercent,
		ChannelAmount:   share,
		Remainder:       RemainderToBroker,
		RemainderAmount: amount.Sub(share),
	}, nil
}

// lookup resolves a partner id. A miss returns (nil, nil): the caller
// applies the direct fallback. Storage failures are wrapped so the engine
// can distinguish them from the defined fallback.
func (d *Distributor) lookup(ctx context.Context, id PartnerID) (*Partner, error) {
	if id == "" {
		return nil, nil
	}
	partner, err := d.Partners.Partner(ctx, id)
	if errors.Is(err, ErrPartnerNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: partner %s: %v", ErrStoreUnavailable, id, err)
	}
	return partner, nil
}

// resolvePercent walks the fallback chain in order and returns the first
// set value, falling back to the channel default. Kept as a standalone
// step list so the override -> base -> default ordering stays auditable.
func resolvePercent(fallback decimal.Decimal, chain ...*decimal.Decimal) decimal.Decimal {
	for _, step := range chain {
		if step != nil {
			return *step
		}
	}
	return fallback
}
