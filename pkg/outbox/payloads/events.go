package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/guildworks/guildworks-backend/pkg/enums"
)

// RoleAssignedEvent is emitted when a bid is accepted into a role slot.
type RoleAssignedEvent struct {
	OpportunityID uuid.UUID          `json:"opportunity_id"`
	ProjectID     uuid.UUID          `json:"project_id"`
	SlotID        uuid.UUID          `json:"slot_id"`
	BidID         uuid.UUID          `json:"bid_id"`
	MembershipID  uuid.UUID          `json:"membership_id"`
	SlotType      enums.RoleSlotType `json:"slot_type"`
	TotalScore    float64            `json:"total_score"`
	AssignedAt    time.Time          `json:"assigned_at"`
}

// AttributionLineEvent mirrors one persisted attribution row. A nil
// membership id marks the treasury line.
type AttributionLineEvent struct {
	MembershipID *uuid.UUID         `json:"membership_id,omitempty"`
	SlotType     enums.RoleSlotType `json:"slot_type"`
	PercentBps   int                `json:"percent_bps"`
	AmountCents  int64              `json:"amount_cents"`
}

// AttributionCompletedEvent reports a balanced revenue attribution.
type AttributionCompletedEvent struct {
	ProjectID        uuid.UUID              `json:"project_id"`
	FinalAmountCents int64                  `json:"final_amount_cents"`
	TreasuryCents    int64                  `json:"treasury_cents"`
	Lines            []AttributionLineEvent `json:"lines"`
	AttributedAt     time.Time              `json:"attributed_at"`
}

// BonusRunExecutedEvent reports a threshold-triggered bonus distribution.
type BonusRunExecutedEvent struct {
	BonusRunID            uuid.UUID `json:"bonus_run_id"`
	TriggerBalanceCents   int64     `json:"trigger_balance_cents"`
	BalanceBeforeCents    int64     `json:"balance_before_cents"`
	BalanceAfterCents     int64     `json:"balance_after_cents"`
	TotalDistributedCents int64     `json:"total_distributed_cents"`
	RecipientCount        int       `json:"recipient_count"`
	ExecutedAt            time.Time `json:"executed_at"`
}

// RankPromotedEvent reports a membership crossing a rank threshold.
type RankPromotedEvent struct {
	MembershipID           uuid.UUID `json:"membership_id"`
	FromTier               int       `json:"from_tier"`
	ToTier                 int       `json:"to_tier"`
	CumulativeRevenueCents int64     `json:"cumulative_revenue_cents"`
	CouncilApproved        bool      `json:"council_approved"`
	PromotedAt             time.Time `json:"promoted_at"`
}
