package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/guildworks/guildworks-backend/pkg/enums"
)

// Membership is a contributor's standing in the collective. Cumulative
// revenue is mutated only by attribution; tier only by rank progression.
type Membership struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	DisplayName string     `gorm:"column:display_name;type:text;not null"`
	Tier        enums.Tier `gorm:"column:tier;not null;default:1"`
	IsCouncil   bool       `gorm:"column:is_council;not null;default:false"`
	// SupervisorID is an optional reference by id; the hierarchy never holds
	// live pointers so cycles cannot form at runtime.
	SupervisorID           *uuid.UUID `gorm:"column:supervisor_id;type:uuid"`
	CumulativeRevenueCents int64      `gorm:"column:cumulative_revenue_cents;not null;default:0"`
	ActiveFrom             time.Time  `gorm:"column:active_from;not null"`
	ActiveUntil            *time.Time `gorm:"column:active_until"`
	CreatedAt              time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// ActiveAt reports whether the membership window covers the given instant.
func (m Membership) ActiveAt(at time.Time) bool {
	if at.Before(m.ActiveFrom) {
		return false
	}
	if m.ActiveUntil != nil && !at.Before(*m.ActiveUntil) {
		return false
	}
	return true
}
