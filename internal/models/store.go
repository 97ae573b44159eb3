package models

import "github.com/google/uuid"

// Store status values.
const (
	StoreStatusActive    = "active"
	StoreStatusSuspended = "suspended"
	StoreStatusPending   = "pending"
)

// Store is a florist shop that can fulfil orders.
type Store struct {
	BaseModel
	BusinessName   string   `gorm:"not null" json:"business_name"`
	OwnerName      string   `json:"owner_name"`
	Phone          string   `json:"phone"`
	Address        string   `json:"address"`
	ServiceAreas   []string `gorm:"serializer:json" json:"service_areas"`
	PointsBalance  int64    `json:"points_balance"`
	CommissionRate *float64 `json:"commission_rate"`
	Status         string   `gorm:"index;default:active" json:"status"`
	IsOpen         bool     `json:"is_open"`
}

// Accepting reports whether the store may currently take new orders.
func (s Store) Accepting() bool {
	return s.Status == StoreStatusActive && s.IsOpen
}

// DeliveryArea is the per-store, per-area minimum order amount.
type DeliveryArea struct {
	BaseModel
	StoreID   uuid.UUID `gorm:"type:uuid;index" json:"store_id"`
	AreaName  string    `gorm:"index" json:"area_name"`
	MinAmount int64     `json:"min_amount"`
	IsActive  bool      `gorm:"not null" json:"is_active"`
}

// AreaProductPricing overrides price and availability of one product in one area.
type AreaProductPricing struct {
	BaseModel
	StoreID     uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_area_product" json:"store_id"`
	AreaName    string    `gorm:"uniqueIndex:idx_area_product" json:"area_name"`
	ProductID   string    `gorm:"uniqueIndex:idx_area_product" json:"product_id"`
	Price       int64     `json:"price"`
	IsAvailable bool      `gorm:"not null" json:"is_available"`
}
