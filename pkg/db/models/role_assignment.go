package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/guildworks/guildworks-backend/pkg/enums"
)

// RoleAssignment is the immutable audit row written when the scorer selects a
// bid for a slot. It carries the exact component scores so every assignment
// can be explained after the fact. Council-gated assignments linger in
// pending until countersigned or expired.
type RoleAssignment struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OpportunityID uuid.UUID `gorm:"column:opportunity_id;type:uuid;not null;index"`
	SlotID        uuid.UUID `gorm:"column:slot_id;type:uuid;not null;index"`
	BidID         uuid.UUID `gorm:"column:bid_id;type:uuid;not null"`
	MembershipID  uuid.UUID `gorm:"column:membership_id;type:uuid;not null;index"`

	SkillScore       float64 `gorm:"column:skill_score;not null"`
	WorkloadScore    float64 `gorm:"column:workload_score;not null"`
	ConsistencyScore float64 `gorm:"column:consistency_score;not null"`
	RankScore        float64 `gorm:"column:rank_score;not null"`
	PreferenceScore  float64 `gorm:"column:preference_score;not null"`
	TotalScore       float64 `gorm:"column:total_score;not null"`

	Status            enums.ProposalStatus `gorm:"column:status;type:proposal_status;not null;default:'pending'"`
	CountersignedByID *uuid.UUID           `gorm:"column:countersigned_by_id;type:uuid"`
	ExpiresAt         time.Time            `gorm:"column:expires_at;not null"`
	CommittedAt       *time.Time           `gorm:"column:committed_at"`
	CreatedAt         time.Time            `gorm:"column:created_at;autoCreateTime"`
}
