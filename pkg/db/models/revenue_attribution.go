package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/guildworks/guildworks-backend/pkg/enums"
)

// RevenueAttribution is one recipient's share of a paid project. MembershipID
// is nil on the treasury line. Percentages are stored in basis points so the
// 100%-sum invariant is an exact integer comparison; amounts are cents.
type RevenueAttribution struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProjectID    uuid.UUID          `gorm:"column:project_id;type:uuid;not null;index"`
	MembershipID *uuid.UUID         `gorm:"column:membership_id;type:uuid"`
	Slot         enums.RoleSlotType `gorm:"column:slot;type:role_slot_type;not null"`
	// PercentBps is the base allocation in basis points (10000 = 100%).
	PercentBps            int64                   `gorm:"column:percent_bps;not null"`
	PerformanceMultiplier float64                 `gorm:"column:performance_multiplier;not null;default:1"`
	AmountCents           int64                   `gorm:"column:amount_cents;not null"`
	Status                enums.AttributionStatus `gorm:"column:status;type:attribution_status;not null;default:'pending'"`
	CreatedAt             time.Time               `gorm:"column:created_at;autoCreateTime"`
}
