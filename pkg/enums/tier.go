package enums

import "fmt"

// Tier is one of the six ordered contributor levels. Promotion happens only
// through cumulative revenue crossing the configured thresholds.
type Tier int

const (
	TierAssociate     Tier = 1
	TierContributor   Tier = 2
	TierSpecialist    Tier = 3
	TierPartner       Tier = 4
	TierSeniorPartner Tier = 5
	TierPrincipal     Tier = 6
)

// MinTier and MaxTier bound the valid tier range.
const (
	MinTier = TierAssociate
	MaxTier = TierPrincipal
)

var tierNames = map[Tier]string{
	TierAssociate:     "associate",
	TierContributor:   "contributor",
	TierSpecialist:    "specialist",
	TierPartner:       "partner",
	TierSeniorPartner: "senior_partner",
	TierPrincipal:     "principal",
}

// String implements fmt.Stringer.
func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tier_%d", int(t))
}

// IsValid reports whether the tier falls within the six-level range.
func (t Tier) IsValid() bool {
	return t >= MinTier && t <= MaxTier
}

// CouncilEligible reports whether the tier qualifies for council membership.
// Council is drawn from Senior Partner and above.
func (t Tier) CouncilEligible() bool {
	return t >= TierSeniorPartner
}

// ParseTier converts a raw integer into a Tier.
func ParseTier(value int) (Tier, error) {
	t := Tier(value)
	if !t.IsValid() {
		return 0, fmt.Errorf("invalid tier %d", value)
	}
	return t, nil
}
