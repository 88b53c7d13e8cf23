package enums

import "fmt"

// RoleSlotType maps to the role_slot_type enum in Postgres.
type RoleSlotType string

const (
	RoleSlotLead     RoleSlotType = "lead"
	RoleSlotPM       RoleSlotType = "pm"
	RoleSlotCore     RoleSlotType = "core"
	RoleSlotSupport  RoleSlotType = "support"
	RoleSlotOverhead RoleSlotType = "overhead"
)

var validRoleSlotTypes = []RoleSlotType{
	RoleSlotLead,
	RoleSlotPM,
	RoleSlotCore,
	RoleSlotSupport,
	RoleSlotOverhead,
}

// String implements fmt.Stringer.
func (r RoleSlotType) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RoleSlotType.
func (r RoleSlotType) IsValid() bool {
	for _, candidate := range validRoleSlotTypes {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRoleSlotType converts raw input into a RoleSlotType.
func ParseRoleSlotType(value string) (RoleSlotType, error) {
	for _, candidate := range validRoleSlotTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role slot type %q", value)
}
