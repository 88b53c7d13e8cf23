package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/guildworks/guildworks-backend/pkg/enums"
)

// Availability is the one-to-one workload snapshot per membership, mutated by
// workload changes and explicit self-updates.
type Availability struct {
	ID                 uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MembershipID       uuid.UUID                `gorm:"column:membership_id;type:uuid;not null;uniqueIndex"`
	Status             enums.AvailabilityStatus `gorm:"column:status;type:availability_status;not null;default:'available'"`
	HoursPerWeek       int                      `gorm:"column:hours_per_week;not null;default:0"`
	ActiveProjectCount int                      `gorm:"column:active_project_count;not null;default:0"`
	MaxConcurrent      int                      `gorm:"column:max_concurrent;not null;default:1"`
	UnavailableUntil   *time.Time               `gorm:"column:unavailable_until"`
	UpdatedAt          time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// NormalizedLoad returns active project load on a [0,1] scale relative to the
// membership's own concurrency ceiling.
func (a Availability) NormalizedLoad() float64 {
	if a.MaxConcurrent <= 0 {
		return 1.0
	}
	load := float64(a.ActiveProjectCount) / float64(a.MaxConcurrent)
	if load > 1.0 {
		return 1.0
	}
	return load
}
