package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/guildworks/guildworks-backend/pkg/enums"
)

// TreasurySingletonID is the fixed primary key of the one treasury row. The
// row is created once at startup and never recreated implicitly.
const TreasurySingletonID = 1

// Treasury is the process-wide singleton. BalanceCents is a derived cache of
// the running transaction sum and must always reconcile against it; it is
// never written except alongside the transaction that changes it.
type Treasury struct {
	ID                           int       `gorm:"column:id;primaryKey"`
	BalanceCents                 int64     `gorm:"column:balance_cents;not null;default:0"`
	LastBonusTriggerBalanceCents int64     `gorm:"column:last_bonus_trigger_balance_cents;not null;default:0"`
	BonusThresholdCents          int64     `gorm:"column:bonus_threshold_cents;not null"`
	UpdatedAt                    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName keeps the singleton table singular.
func (Treasury) TableName() string {
	return "treasury"
}

// TreasuryTransaction is the append-only ledger. AmountCents is signed:
// positive for inflow, negative for outflow; adjustments carry either sign.
type TreasuryTransaction struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Kind        enums.TreasuryTransactionKind `gorm:"column:kind;type:treasury_transaction_kind;not null"`
	AmountCents int64      `gorm:"column:amount_cents;not null"`
	ProjectID   *uuid.UUID `gorm:"column:project_id;type:uuid"`
	BonusRunID  *uuid.UUID `gorm:"column:bonus_run_id;type:uuid"`
	Memo        string     `gorm:"column:memo;type:text"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}
