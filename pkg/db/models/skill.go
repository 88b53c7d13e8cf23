package models

import (
	"time"

	"github.com/google/uuid"
)

// Skill is a self-reported service-category proficiency, optionally verified
// by a higher-tier or council membership.
type Skill struct {
	ID                uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MembershipID      uuid.UUID  `gorm:"column:membership_id;type:uuid;not null;uniqueIndex:uniq_membership_category,priority:1"`
	Category          string     `gorm:"column:category;type:text;not null;uniqueIndex:uniq_membership_category,priority:2"`
	Proficiency       int        `gorm:"column:proficiency;not null"`
	VerifiedByID      *uuid.UUID `gorm:"column:verified_by_id;type:uuid"`
	ProjectsCompleted int        `gorm:"column:projects_completed;not null;default:0"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// MaxProficiency bounds the self-reported proficiency scale.
const MaxProficiency = 5
