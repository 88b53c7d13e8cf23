package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/guildworks/guildworks-backend/pkg/enums"
)

// WorkloadEntry is an append-only record of a membership working a role slot
// on a project. After creation the only permitted mutation is closing the
// entry with an end date and actual hours.
type WorkloadEntry struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MembershipID uuid.UUID          `gorm:"column:membership_id;type:uuid;not null;index"`
	ProjectID    uuid.UUID          `gorm:"column:project_id;type:uuid;not null;index"`
	Slot         enums.RoleSlotType `gorm:"column:slot;type:role_slot_type;not null"`
	StartDate    time.Time          `gorm:"column:start_date;not null"`
	EndDate      *time.Time         `gorm:"column:end_date"`
	PlannedHours float64            `gorm:"column:planned_hours;not null;default:0"`
	ActualHours  *float64           `gorm:"column:actual_hours"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
}

// Open reports whether the entry has not been closed yet.
func (w WorkloadEntry) Open() bool {
	return w.EndDate == nil
}
