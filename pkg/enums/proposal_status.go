package enums

import "fmt"

// ProposalStatus maps to the proposal_status enum in Postgres. Assignment
// proposals on council-approval opportunities and rank progressions both move
// through this machine: pending -> countersigned | expired | rejected.
type ProposalStatus string

const (
	ProposalStatusPending       ProposalStatus = "pending"
	ProposalStatusCountersigned ProposalStatus = "countersigned"
	ProposalStatusRejected      ProposalStatus = "rejected"
	ProposalStatusExpired       ProposalStatus = "expired"
)

var validProposalStatuses = []ProposalStatus{
	ProposalStatusPending,
	ProposalStatusCountersigned,
	ProposalStatusRejected,
	ProposalStatusExpired,
}

// IsValid reports whether the value is a known ProposalStatus.
func (s ProposalStatus) IsValid() bool {
	for _, candidate := range validProposalStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Terminal reports whether the proposal can no longer change state.
func (s ProposalStatus) Terminal() bool {
	return s == ProposalStatusCountersigned || s == ProposalStatusRejected || s == ProposalStatusExpired
}

// CanTransitionTo allows movement out of pending only.
func (s ProposalStatus) CanTransitionTo(next ProposalStatus) bool {
	if s != ProposalStatusPending {
		return false
	}
	return next.Terminal()
}

// ParseProposalStatus converts raw input into a ProposalStatus.
func ParseProposalStatus(value string) (ProposalStatus, error) {
	for _, candidate := range validProposalStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid proposal status %q", value)
}
