package assignment

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/guildworks/guildworks-backend/pkg/config"
	"github.com/guildworks/guildworks-backend/pkg/db/models"
	"github.com/guildworks/guildworks-backend/pkg/enums"
)

// BidSignals carries the normalized inputs the scorer reads for one bid.
type BidSignals struct {
	Bid          models.RoleBid
	Skill        *models.Skill
	Availability *models.Availability
	Consistency  *models.ConsistencyMetrics
	Tier         enums.Tier
}

// ScoredBid is one bid's full score breakdown for a slot. The component
// values are persisted on the assignment row so a selection can be explained
// later without recomputing.
type ScoredBid struct {
	BidID        uuid.UUID `json:"bidId"`
	MembershipID uuid.UUID `json:"membershipId"`

	SkillScore       float64 `json:"skillScore"`
	WorkloadScore    float64 `json:"workloadScore"`
	ConsistencyScore float64 `json:"consistencyScore"`
	RankScore        float64 `json:"rankScore"`
	PreferenceScore  float64 `json:"preferenceScore"`
	TotalScore       float64 `json:"totalScore"`

	// Tie-break inputs, kept so ranking stays reproducible.
	ActiveProjects int       `json:"activeProjects"`
	SubmittedAt    time.Time `json:"submittedAt"`
}

// idealTiers gives the tier a slot type is best served by. Lead and PM scale
// with seniority instead.
var idealTiers = map[enums.RoleSlotType]float64{
	enums.RoleSlotCore:     3,
	enums.RoleSlotSupport:  2,
	enums.RoleSlotOverhead: 1,
}

type scorer struct {
	weights config.PolicyConfig
}

// Score computes the weighted slot score for a single bid.
func (sc scorer) Score(slot models.RoleSlot, signals BidSignals) ScoredBid {
	skill := skillMatch(signals.Skill)
	workload := 1 - normalizedWorkload(signals.Availability)
	consistency := consistencyScore(signals.Consistency)
	rank := rankFit(slot.SlotType, signals.Tier)
	preference := 0.0
	if signals.Bid.PreferredRole == slot.SlotType {
		preference = 1.0
	}

	total := sc.weights.WeightSkillMatch*skill +
		sc.weights.WeightWorkload*workload +
		sc.weights.WeightConsistency*consistency +
		sc.weights.WeightRankFit*rank +
		sc.weights.WeightPreferredRole*preference

	scored := ScoredBid{
		BidID:            signals.Bid.ID,
		MembershipID:     signals.Bid.MembershipID,
		SkillScore:       skill,
		WorkloadScore:    workload,
		ConsistencyScore: consistency,
		RankScore:        rank,
		PreferenceScore:  preference,
		TotalScore:       total,
		SubmittedAt:      signals.Bid.SubmittedAt,
	}
	if signals.Availability != nil {
		scored.ActiveProjects = signals.Availability.ActiveProjectCount
	}
	return scored
}

// Rank orders scored bids best-first: total score, then consistency, then
// fewer active projects, then earliest submission. The final ID comparison
// only matters for identical clones in tests.
func Rank(scored []ScoredBid) {
	sort.Slice(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		if a.ConsistencyScore != b.ConsistencyScore {
			return a.ConsistencyScore > b.ConsistencyScore
		}
		if a.ActiveProjects != b.ActiveProjects {
			return a.ActiveProjects < b.ActiveProjects
		}
		if !a.SubmittedAt.Equal(b.SubmittedAt) {
			return a.SubmittedAt.Before(b.SubmittedAt)
		}
		return a.BidID.String() < b.BidID.String()
	})
}

func skillMatch(skill *models.Skill) float64 {
	if skill == nil {
		return 0
	}
	match := float64(skill.Proficiency) / float64(models.MaxProficiency)
	if match > 1 {
		return 1
	}
	return match
}

// normalizedWorkload is current active projects over the member's stated
// concurrency cap, clamped to [0,1]. No availability row reads as idle.
func normalizedWorkload(availability *models.Availability) float64 {
	if availability == nil {
		return 0
	}
	if availability.Status == enums.AvailabilityStatusUnavailable {
		return 1
	}
	capacity := availability.MaxConcurrent
	if capacity < 1 {
		capacity = 1
	}
	load := float64(availability.ActiveProjectCount) / float64(capacity)
	if load > 1 {
		return 1
	}
	return load
}

func consistencyScore(metrics *models.ConsistencyMetrics) float64 {
	if metrics == nil {
		return 0
	}
	return metrics.CompositeScore
}

// rankFit scales with seniority for lead and pm slots, and with proximity to
// the slot's ideal tier for delivery slots, so principals do not crowd out
// support work.
func rankFit(slotType enums.RoleSlotType, tier enums.Tier) float64 {
	switch slotType {
	case enums.RoleSlotLead, enums.RoleSlotPM:
		return float64(tier) / float64(enums.MaxTier)
	default:
		ideal := idealTiers[slotType]
		distance := float64(tier) - ideal
		if distance < 0 {
			distance = -distance
		}
		fit := 1 - distance/float64(enums.MaxTier)
		if fit < 0 {
			return 0
		}
		return fit
	}
}
