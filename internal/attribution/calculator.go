package attribution

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/guildworks/guildworks-backend/pkg/config"
	"github.com/guildworks/guildworks-backend/pkg/enums"
	pkgerrors "github.com/guildworks/guildworks-backend/pkg/errors"
)

const fullShareBps = 10_000

// Recipient is one committed assignment eligible for a direct revenue share.
type Recipient struct {
	MembershipID  uuid.UUID
	Slot          enums.RoleSlotType
	WorkloadHours float64
	Multiplier    float64
}

// Line is one computed attribution amount. A nil membership id marks the
// treasury line, which absorbs the rounding remainder.
type Line struct {
	MembershipID *uuid.UUID
	Slot         enums.RoleSlotType
	PercentBps   int64
	Multiplier   float64
	AmountCents  int64
}

type calculator struct {
	policy config.PolicyConfig
}

// Split turns a paid final amount into per-member cents plus a treasury line.
//
// Base percentages are fixed per slot type; core and support divide their
// shared pool in proportion to workload hours. Each member's cash amount is
// the floor of final * bps/10000 * multiplier, and the treasury line is
// whatever remains, so the line amounts always sum to the final amount
// exactly. A multiplier large enough to push the treasury line negative is a
// balance violation and fails closed.
func (c calculator) Split(finalAmountCents int64, recipients []Recipient) ([]Line, error) {
	if finalAmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "final amount must be positive")
	}

	leadBps := c.policy.LeadPercent * 100
	pmBps := c.policy.PMPercent * 100
	treasuryBps := c.policy.TreasuryPercent * 100
	poolBps := int64(fullShareBps) - leadBps - pmBps - treasuryBps
	if poolBps < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeAttributionImbalance, "base percentages exceed 100")
	}

	var leads, pms, pool []Recipient
	for _, recipient := range recipients {
		switch recipient.Slot {
		case enums.RoleSlotLead:
			leads = append(leads, recipient)
		case enums.RoleSlotPM:
			pms = append(pms, recipient)
		case enums.RoleSlotCore, enums.RoleSlotSupport:
			pool = append(pool, recipient)
		}
	}

	lines := make([]Line, 0, len(recipients)+1)
	lines = append(lines, splitEvenly(leads, leadBps)...)
	lines = append(lines, splitEvenly(pms, pmBps)...)
	lines = append(lines, splitByHours(pool, poolBps)...)

	// Slots nobody filled fold their share back into the treasury line, as do
	// the bps an integer split leaves behind, so the stored rows always sum
	// to exactly 10000.
	memberBps := int64(0)
	for _, line := range lines {
		memberBps += line.PercentBps
	}
	treasuryLineBps := int64(fullShareBps) - memberBps
	if treasuryLineBps < treasuryBps-c.policy.PercentToleranceBps {
		return nil, pkgerrors.New(pkgerrors.CodeAttributionImbalance, "attribution percentages do not sum to 100")
	}

	final := decimal.NewFromInt(finalAmountCents)
	distributed := int64(0)
	for i := range lines {
		share := final.
			Mul(decimal.NewFromInt(lines[i].PercentBps)).
			Div(decimal.NewFromInt(fullShareBps)).
			Mul(decimal.NewFromFloat(lines[i].Multiplier))
		lines[i].AmountCents = share.Floor().IntPart()
		distributed += lines[i].AmountCents
	}

	treasuryCents := finalAmountCents - distributed
	if treasuryCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeAttributionImbalance,
			"performance multipliers exceed the distributable amount")
	}
	lines = append(lines, Line{
		Slot:        enums.RoleSlotOverhead,
		PercentBps:  treasuryLineBps,
		Multiplier:  1,
		AmountCents: treasuryCents,
	})
	return lines, nil
}

// splitEvenly divides a slot's bps equally among its recipients, flooring;
// leftover bps fall through to the treasury line.
func splitEvenly(recipients []Recipient, totalBps int64) []Line {
	if len(recipients) == 0 || totalBps <= 0 {
		return nil
	}
	each := totalBps / int64(len(recipients))
	lines := make([]Line, 0, len(recipients))
	for _, recipient := range recipients {
		id := recipient.MembershipID
		lines = append(lines, Line{
			MembershipID: &id,
			Slot:         recipient.Slot,
			PercentBps:   each,
			Multiplier:   recipient.Multiplier,
		})
	}
	return lines
}

// splitByHours divides the core/support pool in proportion to workload hours.
// With no recorded hours everyone gets an equal cut.
func splitByHours(recipients []Recipient, totalBps int64) []Line {
	if len(recipients) == 0 || totalBps <= 0 {
		return nil
	}
	ordered := make([]Recipient, len(recipients))
	copy(ordered, recipients)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].MembershipID.String() < ordered[j].MembershipID.String()
	})

	totalHours := 0.0
	for _, recipient := range ordered {
		totalHours += recipient.WorkloadHours
	}

	pool := decimal.NewFromInt(totalBps)
	lines := make([]Line, 0, len(ordered))
	for _, recipient := range ordered {
		var weight decimal.Decimal
		if totalHours > 0 {
			weight = decimal.NewFromFloat(recipient.WorkloadHours).
				Div(decimal.NewFromFloat(totalHours))
		} else {
			weight = decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(len(ordered))))
		}
		id := recipient.MembershipID
		lines = append(lines, Line{
			MembershipID: &id,
			Slot:         recipient.Slot,
			PercentBps:   pool.Mul(weight).Floor().IntPart(),
			Multiplier:   recipient.Multiplier,
		})
	}
	return lines
}
