package models

import (
	"time"

	"github.com/google/uuid"
)

// Project mirrors the upstream project record this core consumes. Upstream
// collaborators create it with a known final price and later mark the invoice
// paid; attribution reads it, never edits the price.
type Project struct {
	ID               uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Name             string     `gorm:"column:name;type:text;not null"`
	FinalAmountCents int64      `gorm:"column:final_amount_cents;not null"`
	InvoicePaidAt    *time.Time `gorm:"column:invoice_paid_at"`
	AttributedAt     *time.Time `gorm:"column:attributed_at"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
