package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/guildworks/guildworks-backend/pkg/db/types"
	"github.com/guildworks/guildworks-backend/pkg/enums"
)

// RoleBid is a membership's offer to fill a role on an opportunity.
type RoleBid struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OpportunityID      uuid.UUID           `gorm:"column:opportunity_id;type:uuid;not null;index"`
	MembershipID       uuid.UUID           `gorm:"column:membership_id;type:uuid;not null;index"`
	PreferredRole      enums.RoleSlotType  `gorm:"column:preferred_role;type:role_slot_type;not null"`
	AlternateRole      *enums.RoleSlotType `gorm:"column:alternate_role;type:role_slot_type"`
	StatedHoursPerWeek int                 `gorm:"column:stated_hours_per_week;not null;default:0"`
	Status             enums.BidStatus     `gorm:"column:status;type:bid_status;not null;default:'pending'"`
	// AcceptedSlotID is set exactly when the bid wins a slot; a partial
	// unique index on (accepted_slot_id) where status = 'accepted' enforces
	// at-most-one-accepted-per-slot at the storage layer.
	AcceptedSlotID *uuid.UUID      `gorm:"column:accepted_slot_id;type:uuid"`
	Confirmation   dbtypes.JSONMap `gorm:"column:confirmation;type:jsonb"`
	SubmittedAt    time.Time       `gorm:"column:submitted_at;not null"`
	DecidedAt      *time.Time      `gorm:"column:decided_at"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// Covers reports whether the bid offers to fill the given slot type.
func (b RoleBid) Covers(slot enums.RoleSlotType) bool {
	if b.PreferredRole == slot {
		return true
	}
	return b.AlternateRole != nil && *b.AlternateRole == slot
}
