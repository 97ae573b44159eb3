package models

import (
	"time"

	"github.com/google/uuid"
)

// Settlement status values.
const (
	SettlementPending   = "pending"
	SettlementCompleted = "completed"
)

// Settlement aggregates one store's completed orders over [PeriodStart, PeriodEnd).
type Settlement struct {
	BaseModel
	StoreID          uuid.UUID        `gorm:"type:uuid;uniqueIndex:idx_settlement_period" json:"store_id"`
	PeriodStart      time.Time        `gorm:"uniqueIndex:idx_settlement_period" json:"period_start"`
	PeriodEnd        time.Time        `gorm:"uniqueIndex:idx_settlement_period" json:"period_end"`
	OrderCount       int              `json:"order_count"`
	TotalAmount      int64            `json:"total_amount"`
	CommissionAmount int64            `json:"commission_amount"`
	NetAmount        int64            `json:"net_amount"`
	Status           string           `gorm:"index;default:pending" json:"status"`
	ProcessedAt      *time.Time       `json:"processed_at"`
	Items            []SettlementItem `json:"items,omitempty"`
}

// SettlementItem is one order claimed by a settlement. An order is claimed at most once.
type SettlementItem struct {
	BaseModel
	SettlementID     uuid.UUID `gorm:"type:uuid;index" json:"settlement_id"`
	OrderID          uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"order_id"`
	StoreID          uuid.UUID `gorm:"type:uuid;index" json:"store_id"`
	OrderNumber      string    `json:"order_number"`
	Amount           int64     `json:"amount"`
	CommissionRate   int64     `json:"commission_rate_bps"`
	CommissionAmount int64     `json:"commission_amount"`
	NetAmount        int64     `json:"net_amount"`
	CompletedAt      time.Time `json:"completed_at"`
}
