package enums

import "fmt"

// AvailabilityStatus maps to the availability_status enum in Postgres.
type AvailabilityStatus string

const (
	AvailabilityStatusAvailable   AvailabilityStatus = "available"
	AvailabilityStatusLimited     AvailabilityStatus = "limited"
	AvailabilityStatusUnavailable AvailabilityStatus = "unavailable"
)

var validAvailabilityStatuses = []AvailabilityStatus{
	AvailabilityStatusAvailable,
	AvailabilityStatusLimited,
	AvailabilityStatusUnavailable,
}

// IsValid reports whether the value is a known AvailabilityStatus.
func (s AvailabilityStatus) IsValid() bool {
	for _, candidate := range validAvailabilityStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseAvailabilityStatus converts raw input into an AvailabilityStatus.
func ParseAvailabilityStatus(value string) (AvailabilityStatus, error) {
	for _, candidate := range validAvailabilityStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid availability status %q", value)
}
