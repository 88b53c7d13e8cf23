package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/guildworks/guildworks-backend/pkg/enums"
)

// ProjectOpportunity is a project's published set of open role slots plus its
// visibility rules and bidding window.
type ProjectOpportunity struct {
	ID                      uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProjectID               uuid.UUID               `gorm:"column:project_id;type:uuid;not null;index"`
	Status                  enums.OpportunityStatus `gorm:"column:status;type:opportunity_status;not null;default:'open'"`
	MinimumRankTier         *int                    `gorm:"column:minimum_rank_tier"`
	RequiresCouncilApproval bool                    `gorm:"column:requires_council_approval;not null;default:false"`
	BiddingDeadline         time.Time               `gorm:"column:bidding_deadline;not null"`
	CreatedAt               time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// RoleSlot is one assignable position on an opportunity. Category drives the
// skill-match component of the score.
type RoleSlot struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OpportunityID uuid.UUID          `gorm:"column:opportunity_id;type:uuid;not null;index"`
	SlotType      enums.RoleSlotType `gorm:"column:slot_type;type:role_slot_type;not null"`
	Category      string             `gorm:"column:category;type:text;not null"`
	Filled        bool               `gorm:"column:filled;not null;default:false"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
}
