package models

import (
	"time"

	"github.com/google/uuid"
)

// BonusRun is the immutable record of one threshold-triggered distribution.
// TriggerBalanceCents is the last_bonus_trigger_balance value the run
// advanced to; a unique index on it guarantees a crossing distributes once.
type BonusRun struct {
	ID                    uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BalanceBeforeCents    int64     `gorm:"column:balance_before_cents;not null"`
	BalanceAfterCents     int64     `gorm:"column:balance_after_cents;not null"`
	TotalDistributedCents int64     `gorm:"column:total_distributed_cents;not null"`
	TriggerBalanceCents   int64     `gorm:"column:trigger_balance_cents;not null;uniqueIndex"`
	RecipientCount        int       `gorm:"column:recipient_count;not null"`
	CreatedAt             time.Time `gorm:"column:created_at;autoCreateTime"`
}

// BonusRunRecipient is one payee's multiplier-weighted share of a bonus run.
type BonusRunRecipient struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BonusRunID     uuid.UUID `gorm:"column:bonus_run_id;type:uuid;not null;index"`
	MembershipID   uuid.UUID `gorm:"column:membership_id;type:uuid;not null;index"`
	BaseShareCents int64     `gorm:"column:base_share_cents;not null"`
	RankMultiplier float64   `gorm:"column:rank_multiplier;not null;default:1"`
	AmountCents    int64     `gorm:"column:amount_cents;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
