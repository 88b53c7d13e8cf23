package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/guildworks/guildworks-backend/pkg/db/types"
)

// ConsistencyMetrics is the rolling reliability aggregate per membership.
// Updated incrementally on project completion and peer feedback; the
// composite score is the value the scorer and bonus distributor read.
type ConsistencyMetrics struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MembershipID  uuid.UUID `gorm:"column:membership_id;type:uuid;not null;uniqueIndex"`
	OnTimeCount   int       `gorm:"column:on_time_count;not null;default:0"`
	CompletedCount int      `gorm:"column:completed_count;not null;default:0"`
	PeerRatingSum float64   `gorm:"column:peer_rating_sum;not null;default:0"`
	PeerRatingCount int     `gorm:"column:peer_rating_count;not null;default:0"`
	// RoleCounts is a histogram of completed role slots, keyed by slot type.
	RoleCounts     dbtypes.JSONMap `gorm:"column:role_counts;type:jsonb"`
	CompositeScore float64         `gorm:"column:composite_score;not null;default:0"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// OnTimeRate returns the on-time delivery ratio in [0,1].
func (c ConsistencyMetrics) OnTimeRate() float64 {
	if c.CompletedCount == 0 {
		return 0
	}
	return float64(c.OnTimeCount) / float64(c.CompletedCount)
}

// PeerRatingAvg returns the mean peer rating, zero when unrated.
func (c ConsistencyMetrics) PeerRatingAvg() float64 {
	if c.PeerRatingCount == 0 {
		return 0
	}
	return c.PeerRatingSum / float64(c.PeerRatingCount)
}
