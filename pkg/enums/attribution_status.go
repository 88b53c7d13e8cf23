package enums

import "fmt"

// AttributionStatus maps to the attribution_status enum in Postgres.
type AttributionStatus string

const (
	AttributionStatusPending  AttributionStatus = "pending"
	AttributionStatusApproved AttributionStatus = "approved"
)

var validAttributionStatuses = []AttributionStatus{
	AttributionStatusPending,
	AttributionStatusApproved,
}

// IsValid reports whether the value is a known AttributionStatus.
func (s AttributionStatus) IsValid() bool {
	for _, candidate := range validAttributionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseAttributionStatus converts raw input into an AttributionStatus.
func ParseAttributionStatus(value string) (AttributionStatus, error) {
	for _, candidate := range validAttributionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid attribution status %q", value)
}
