package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/floradispatch/internal/models"
)

// OrderSource distinguishes the two intake channels.
type OrderSource string

const (
	SourceClient   OrderSource = "client"
	SourceHomepage OrderSource = "homepage"
)

// ParseOrderSource accepts the path form used by the HTTP API.
func ParseOrderSource(value string) (OrderSource, error) {
	switch OrderSource(strings.ToLower(strings.TrimSpace(value))) {
	case SourceClient, "b2b":
		return SourceClient, nil
	case SourceHomepage, "b2c":
		return SourceHomepage, nil
	}
	return "", fmt.Errorf("%w: unknown order source %q", ErrNotFound, value)
}

// OrderRef points at one order record of either shape.
type OrderRef struct {
	Source OrderSource
	ID     uuid.UUID
}

func (r OrderRef) String() string {
	return string(r.Source) + ":" + r.ID.String()
}

// Party is a person on the order.
type Party struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Company string `json:"company,omitempty"`
	Email   string `json:"email,omitempty"`
}

type Product struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Name     string   `json:"name"`
	Price    int64    `json:"price"`
	Quantity int      `json:"quantity"`
	Ribbon   []string `json:"ribbon"`
}

type Delivery struct {
	Date    string `json:"date"`
	Time    string `json:"time"`
	Address string `json:"address"`
	Sido    string `json:"sido"`
	Sigungu string `json:"sigungu"`
	Dong    string `json:"dong"`
	Message string `json:"message,omitempty"`
}

type Pricing struct {
	Subtotal      int64 `json:"subtotal"`
	AdditionalFee int64 `json:"additional_fee"`
	Discount      int64 `json:"discount"`
	Commission    int64 `json:"commission"`
	NetAmount     int64 `json:"net_amount"`
	Total         int64 `json:"total"`
	RateBps       int64 `json:"rate_bps"`
}

// UnifiedOrder is the source-agnostic view every dispatch component works on.
type UnifiedOrder struct {
	ID              uuid.UUID          `json:"id"`
	OrderNumber     string             `json:"order_number"`
	Source          OrderSource        `json:"source"`
	Channel         string             `json:"channel"`
	Status          models.OrderStatus `json:"status"`
	Customer        Party              `json:"customer"`
	Recipient       Party              `json:"recipient"`
	Product         Product            `json:"product"`
	Delivery        Delivery           `json:"delivery"`
	Pricing         Pricing            `json:"pricing"`
	SenderStoreID   *uuid.UUID         `json:"sender_store_id"`
	ReceiverStoreID *uuid.UUID         `json:"receiver_store_id"`
	LinkedOrderID   *uuid.UUID         `json:"linked_order_id,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	AssignedAt      *time.Time         `json:"assigned_at,omitempty"`
}

// Ref returns the record reference of the order.
func (o UnifiedOrder) Ref() OrderRef {
	return OrderRef{Source: o.Source, ID: o.ID}
}

// Assigned reports whether a store is bound.
func (o UnifiedOrder) Assigned() bool {
	return o.ReceiverStoreID != nil
}

// Accepted reports whether the bound store took ownership.
func (o UnifiedOrder) Accepted() bool {
	switch o.Status {
	case models.StatusAccepted, models.StatusPreparing, models.StatusDelivering, models.StatusCompleted:
		return true
	}
	return false
}
