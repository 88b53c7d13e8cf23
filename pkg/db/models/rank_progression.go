package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/guildworks/guildworks-backend/pkg/enums"
)

// RankProgression is an immutable promotion record. A crossing of several
// thresholds in one attribution event produces a single row jumping straight
// to the highest eligible tier.
type RankProgression struct {
	ID                       uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MembershipID             uuid.UUID            `gorm:"column:membership_id;type:uuid;not null;index"`
	FromTier                 enums.Tier           `gorm:"column:from_tier;not null"`
	ToTier                   enums.Tier           `gorm:"column:to_tier;not null"`
	CumulativeRevenueCents   int64                `gorm:"column:cumulative_revenue_cents;not null"`
	Status                   enums.ProposalStatus `gorm:"column:status;type:proposal_status;not null;default:'pending'"`
	ApprovedByID             *uuid.UUID           `gorm:"column:approved_by_id;type:uuid"`
	DecidedAt                *time.Time           `gorm:"column:decided_at"`
	CreatedAt                time.Time            `gorm:"column:created_at;autoCreateTime"`
}
