package enums

import "fmt"

// OpportunityStatus maps to the opportunity_status enum in Postgres.
// Lifecycle: open -> bidding -> assigned -> closed.
type OpportunityStatus string

const (
	OpportunityStatusOpen     OpportunityStatus = "open"
	OpportunityStatusBidding  OpportunityStatus = "bidding"
	OpportunityStatusAssigned OpportunityStatus = "assigned"
	OpportunityStatusClosed   OpportunityStatus = "closed"
)

var validOpportunityStatuses = []OpportunityStatus{
	OpportunityStatusOpen,
	OpportunityStatusBidding,
	OpportunityStatusAssigned,
	OpportunityStatusClosed,
}

// IsValid reports whether the value is a known OpportunityStatus.
func (s OpportunityStatus) IsValid() bool {
	for _, candidate := range validOpportunityStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanTransitionTo enforces the forward-only opportunity lifecycle.
func (s OpportunityStatus) CanTransitionTo(next OpportunityStatus) bool {
	switch s {
	case OpportunityStatusOpen:
		return next == OpportunityStatusBidding || next == OpportunityStatusClosed
	case OpportunityStatusBidding:
		// A slot reopening after an expired proposal stays in bidding.
		return next == OpportunityStatusAssigned || next == OpportunityStatusClosed || next == OpportunityStatusBidding
	case OpportunityStatusAssigned:
		return next == OpportunityStatusClosed
	default:
		return false
	}
}

// ParseOpportunityStatus converts raw input into an OpportunityStatus.
func ParseOpportunityStatus(value string) (OpportunityStatus, error) {
	for _, candidate := range validOpportunityStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid opportunity status %q", value)
}
