package enums

import "fmt"

// BidStatus maps to the bid_status enum in Postgres.
// Lifecycle: pending -> accepted | rejected | withdrawn. Terminal states
// admit no further transition.
type BidStatus string

const (
	BidStatusPending   BidStatus = "pending"
	BidStatusAccepted  BidStatus = "accepted"
	BidStatusRejected  BidStatus = "rejected"
	BidStatusWithdrawn BidStatus = "withdrawn"
)

var validBidStatuses = []BidStatus{
	BidStatusPending,
	BidStatusAccepted,
	BidStatusRejected,
	BidStatusWithdrawn,
}

// IsValid reports whether the value is a known BidStatus.
func (s BidStatus) IsValid() bool {
	for _, candidate := range validBidStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Terminal reports whether the bid can no longer change state.
func (s BidStatus) Terminal() bool {
	return s == BidStatusAccepted || s == BidStatusRejected || s == BidStatusWithdrawn
}

// CanTransitionTo allows movement out of pending only.
func (s BidStatus) CanTransitionTo(next BidStatus) bool {
	if s != BidStatusPending {
		return false
	}
	return next.Terminal()
}

// ParseBidStatus converts raw input into a BidStatus.
func ParseBidStatus(value string) (BidStatus, error) {
	for _, candidate := range validBidStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid bid status %q", value)
}
