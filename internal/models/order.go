package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the lifecycle state shared by both order shapes.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusAccepted   OrderStatus = "accepted"
	StatusAssigned   OrderStatus = "assigned"
	StatusPreparing  OrderStatus = "preparing"
	StatusDelivering OrderStatus = "delivering"
	StatusCompleted  OrderStatus = "completed"
	StatusRejected   OrderStatus = "rejected"
	StatusCancelled  OrderStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Order is a florist-to-florist order routed through headquarters.
type Order struct {
	BaseModel
	OrderNumber     string     `gorm:"uniqueIndex" json:"order_number"`
	SenderStoreID   uuid.UUID  `gorm:"type:uuid;index" json:"sender_store_id"`
	ReceiverStoreID *uuid.UUID `gorm:"type:uuid;index" json:"receiver_store_id"`
	CustomerOrderID *uuid.UUID `gorm:"type:uuid;index" json:"customer_order_id"`

	CustomerName    string `json:"customer_name"`
	CustomerPhone   string `json:"customer_phone"`
	CustomerCompany string `json:"customer_company"`
	RecipientName   string `json:"recipient_name"`
	RecipientPhone  string `json:"recipient_phone"`

	ProductID    string `json:"product_id"`
	ProductType  string `json:"product_type"`
	ProductName  string `json:"product_name"`
	ProductPrice int64  `json:"product_price"`
	Quantity     int    `json:"quantity"`
	RibbonText   string `json:"ribbon_text"`

	Subtotal      int64 `json:"subtotal"`
	AdditionalFee int64 `json:"additional_fee"`
	Commission    int64 `json:"commission"`
	TotalAmount   int64 `json:"total_amount"`

	DeliveryAddress string `json:"delivery_address"`
	DeliverySido    string `json:"delivery_sido"`
	DeliverySigungu string `json:"delivery_sigungu"`
	DeliveryDong    string `json:"delivery_dong"`
	DeliveryDate    string `json:"delivery_date"`
	DeliveryTime    string `json:"delivery_time"`
	Message         string `json:"message"`

	Status     OrderStatus `gorm:"index" json:"status"`
	AssignedAt *time.Time  `json:"assigned_at"`
	AcceptedAt *time.Time  `json:"accepted_at"`

	CompletionRecipient string     `json:"completion_recipient"`
	CompletionNote      string     `json:"completion_note"`
	CompletionPhotos    []string   `gorm:"serializer:json" json:"completion_photos"`
	CompletedAt         *time.Time `gorm:"index" json:"completed_at"`

	Version int `gorm:"not null;default:0" json:"version"`
}

// CustomerOrder is a consumer order from the storefront or a funeral-notice page.
type CustomerOrder struct {
	BaseModel
	OrderNumber   string     `gorm:"uniqueIndex" json:"order_number"`
	CustomerID    *uuid.UUID `gorm:"type:uuid;index" json:"customer_id"`
	CustomerName  string     `json:"customer_name"`
	CustomerPhone string     `json:"customer_phone"`
	CustomerEmail string     `json:"customer_email"`

	RecipientName  string `json:"recipient_name"`
	RecipientPhone string `json:"recipient_phone"`

	ProductID        string `json:"product_id"`
	ProductCategory  string `json:"product_category"`
	ProductName      string `json:"product_name"`
	CatalogPrice     int64  `json:"catalog_price"`
	FulfillmentPrice int64  `json:"fulfillment_price"`
	Quantity         int    `json:"quantity"`
	RibbonText       string `json:"ribbon_text"`

	DiscountAmount int64 `json:"discount_amount"`
	PointsUsed     int64 `json:"points_used"`
	PaidAmount     int64 `json:"paid_amount"`

	Address         string `json:"address"`
	Sido            string `json:"sido"`
	Sigungu         string `json:"sigungu"`
	Dong            string `json:"dong"`
	DesiredDate     string `json:"desired_date"`
	DesiredTime     string `json:"desired_time"`
	CardMessage     string `json:"card_message"`
	OrderSource     string `json:"order_source"`
	FuneralNoticeID string `json:"funeral_notice_id"`

	OrderStatus     OrderStatus `gorm:"column:order_status;index" json:"order_status"`
	AssignedStoreID *uuid.UUID  `gorm:"type:uuid;index" json:"assigned_store_id"`
	LinkedOrderID   *uuid.UUID  `gorm:"type:uuid" json:"linked_order_id"`
	AssignedAt      *time.Time  `json:"assigned_at"`
	CompletedAt     *time.Time  `json:"completed_at"`

	Version int `gorm:"not null;default:0" json:"version"`
}

// UrgentAlert records an order that already triggered the long-unassigned alert.
type UrgentAlert struct {
	BaseModel
	OrderID    uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"order_id"`
	Source     string    `json:"source"`
	NotifiedAt time.Time `json:"notified_at"`
}
