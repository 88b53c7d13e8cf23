package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/guildworks/guildworks-backend/pkg/db/types"
)

// PeerFeedback is a rating event submitted by an upstream collaborator and
// consumed into the consistency metrics. Ratings are validated at the API
// boundary before they land here.
type PeerFeedback struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProjectID        uuid.UUID       `gorm:"column:project_id;type:uuid;not null;index"`
	FromMembershipID uuid.UUID       `gorm:"column:from_membership_id;type:uuid;not null"`
	ToMembershipID   uuid.UUID       `gorm:"column:to_membership_id;type:uuid;not null;index"`
	Ratings          dbtypes.JSONMap `gorm:"column:ratings;type:jsonb;not null"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
}
