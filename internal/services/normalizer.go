package services

import (
	"strings"

	"github.com/google/uuid"

	"github.com/example/floradispatch/internal/models"
)

// UnknownProductType is used when an order carries no recognisable product type.
const UnknownProductType = "기타"

const channelFuneral = "funeral"

var productTypes = map[string]string{
	"축하화환":    "축하화환",
	"근조화환":    "근조화환",
	"관엽식물":    "관엽식물",
	"동양란":     "동양란",
	"서양란":     "서양란",
	"꽃바구니":    "꽃바구니",
	"꽃다발":     "꽃다발",
	"근조바구니":   "근조바구니",
	"쌀화환":     "쌀화환",
	"wreath":  "축하화환",
	"funeral": "근조화환",
	"plant":   "관엽식물",
	"orchid":  "동양란",
	"basket":  "꽃바구니",
	"bouquet": "꽃다발",
}

// Normalizer converts stored order records into UnifiedOrder.
type Normalizer struct {
	calc CommissionCalculator
}

func NewNormalizer(calc CommissionCalculator) Normalizer {
	return Normalizer{calc: calc}
}

// FromOrder normalizes a florist-to-florist order. receiver is the bound store
// when known and only contributes its commission rate.
func (n Normalizer) FromOrder(o models.Order, receiver *models.Store) UnifiedOrder {
	quantity := normalizeQuantity(o.Quantity)
	subtotal := o.Subtotal
	if subtotal <= 0 {
		subtotal = o.ProductPrice * int64(quantity)
	}
	split := n.calc.Calculate(subtotal, storeRate(receiver))

	sender := o.SenderStoreID
	total := o.TotalAmount
	if total <= 0 {
		total = subtotal + o.AdditionalFee
	}

	return UnifiedOrder{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		Source:      SourceClient,
		Channel:     string(SourceClient),
		Status:      normalizeStatus(o.Status),
		Customer: Party{
			Name:    strings.TrimSpace(o.CustomerName),
			Phone:   strings.TrimSpace(o.CustomerPhone),
			Company: strings.TrimSpace(o.CustomerCompany),
		},
		Recipient: Party{
			Name:  strings.TrimSpace(o.RecipientName),
			Phone: strings.TrimSpace(o.RecipientPhone),
		},
		Product: Product{
			ID:       o.ProductID,
			Type:     normalizeProductType(o.ProductType),
			Name:     strings.TrimSpace(o.ProductName),
			Price:    o.ProductPrice,
			Quantity: quantity,
			Ribbon:   splitRibbon(o.RibbonText),
		},
		Delivery: Delivery{
			Date:    strings.TrimSpace(o.DeliveryDate),
			Time:    strings.TrimSpace(o.DeliveryTime),
			Address: strings.TrimSpace(o.DeliveryAddress),
			Sido:    strings.TrimSpace(o.DeliverySido),
			Sigungu: strings.TrimSpace(o.DeliverySigungu),
			Dong:    strings.TrimSpace(o.DeliveryDong),
			Message: o.Message,
		},
		Pricing: Pricing{
			Subtotal:      subtotal,
			AdditionalFee: o.AdditionalFee,
			Commission:    split.Commission,
			NetAmount:     split.NetAmount,
			Total:         total,
			RateBps:       split.RateBps,
		},
		SenderStoreID:   &sender,
		ReceiverStoreID: cloneUUID(o.ReceiverStoreID),
		LinkedOrderID:   cloneUUID(o.CustomerOrderID),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		AssignedAt:      o.AssignedAt,
	}
}

// FromCustomerOrder normalizes a consumer order. The subtotal is the internal
// fulfillment price, not the catalog price the customer saw.
func (n Normalizer) FromCustomerOrder(o models.CustomerOrder, assigned *models.Store) UnifiedOrder {
	quantity := normalizeQuantity(o.Quantity)
	unit := o.FulfillmentPrice
	if unit <= 0 {
		unit = o.CatalogPrice
	}
	subtotal := unit * int64(quantity)
	split := n.calc.Calculate(subtotal, storeRate(assigned))

	channel := string(SourceHomepage)
	if strings.EqualFold(strings.TrimSpace(o.OrderSource), channelFuneral) {
		channel = channelFuneral
	}

	total := o.PaidAmount
	if total <= 0 {
		total = o.CatalogPrice*int64(quantity) - o.DiscountAmount - o.PointsUsed
		if total < 0 {
			total = 0
		}
	}

	return UnifiedOrder{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		Source:      SourceHomepage,
		Channel:     channel,
		Status:      normalizeStatus(o.OrderStatus),
		Customer: Party{
			Name:  strings.TrimSpace(o.CustomerName),
			Phone: strings.TrimSpace(o.CustomerPhone),
			Email: strings.TrimSpace(o.CustomerEmail),
		},
		Recipient: Party{
			Name:  strings.TrimSpace(o.RecipientName),
			Phone: strings.TrimSpace(o.RecipientPhone),
		},
		Product: Product{
			ID:       o.ProductID,
			Type:     normalizeProductType(o.ProductCategory),
			Name:     strings.TrimSpace(o.ProductName),
			Price:    unit,
			Quantity: quantity,
			Ribbon:   splitRibbon(o.RibbonText),
		},
		Delivery: Delivery{
			Date:    strings.TrimSpace(o.DesiredDate),
			Time:    strings.TrimSpace(o.DesiredTime),
			Address: strings.TrimSpace(o.Address),
			Sido:    strings.TrimSpace(o.Sido),
			Sigungu: strings.TrimSpace(o.Sigungu),
			Dong:    strings.TrimSpace(o.Dong),
			Message: o.CardMessage,
		},
		Pricing: Pricing{
			Subtotal:   subtotal,
			Discount:   o.DiscountAmount + o.PointsUsed,
			Commission: split.Commission,
			NetAmount:  split.NetAmount,
			Total:      total,
			RateBps:    split.RateBps,
		},
		ReceiverStoreID: cloneUUID(o.AssignedStoreID),
		LinkedOrderID:   cloneUUID(o.LinkedOrderID),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		AssignedAt:      o.AssignedAt,
	}
}

func storeRate(store *models.Store) *float64 {
	if store == nil {
		return nil
	}
	return store.CommissionRate
}

func normalizeQuantity(q int) int {
	if q <= 0 {
		return 1
	}
	return q
}

func normalizeStatus(s models.OrderStatus) models.OrderStatus {
	if s == "" {
		return models.StatusPending
	}
	return s
}

func normalizeProductType(value string) string {
	value = strings.TrimSpace(value)
	if known, ok := productTypes[strings.ToLower(value)]; ok {
		return known
	}
	return UnknownProductType
}

// splitRibbon accepts "left/right" or newline separated ribbon text.
func splitRibbon(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == '/' || r == '\n' || r == '\r'
	})
	ribbon := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			ribbon = append(ribbon, f)
		}
	}
	return ribbon
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
