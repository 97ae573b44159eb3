package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/floradispatch/internal/services"
)

// StoreHandler manages the store registry.
type StoreHandler struct {
	stores *services.StoreService
}

// NewStoreHandler constructs StoreHandler.
func NewStoreHandler(stores *services.StoreService) *StoreHandler {
	return &StoreHandler{stores: stores}
}

type createStoreRequest struct {
	BusinessName   string   `json:"business_name" validate:"required,max=200"`
	OwnerName      string   `json:"owner_name" validate:"max=100"`
	Phone          string   `json:"phone" validate:"max=30"`
	Address        string   `json:"address" validate:"max=300"`
	ServiceAreas   []string `json:"service_areas" validate:"required,min=1,dive,required"`
	CommissionRate *float64 `json:"commission_rate" validate:"omitempty,gte=0,lte=1"`
	IsOpen         bool     `json:"is_open"`
}

type deliveryAreaRequest struct {
	AreaName  string `json:"area_name" validate:"required"`
	MinAmount int64  `json:"min_amount" validate:"gte=0"`
}

type areaPricingRequest struct {
	AreaName    string `json:"area_name" validate:"required"`
	ProductID   string `json:"product_id" validate:"required"`
	Price       int64  `json:"price" validate:"gte=0"`
	IsAvailable *bool  `json:"is_available"`
}

// ListStores returns every registered store.
func (h *StoreHandler) ListStores(c *fiber.Ctx) error {
	stores, err := h.stores.ListStores(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": stores, "meta": fiber.Map{"total": len(stores)}})
}

// CreateStore registers a new store.
func (h *StoreHandler) CreateStore(c *fiber.Ctx) error {
	var req createStoreRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	store, err := h.stores.CreateStore(c.UserContext(), services.StoreInput{
		BusinessName:   req.BusinessName,
		OwnerName:      req.OwnerName,
		Phone:          req.Phone,
		Address:        req.Address,
		ServiceAreas:   req.ServiceAreas,
		CommissionRate: req.CommissionRate,
		IsOpen:         req.IsOpen,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": store})
}

// AddDeliveryArea records a store's minimum order amount for an area.
func (h *StoreHandler) AddDeliveryArea(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	var req deliveryAreaRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	area, err := h.stores.AddDeliveryArea(c.UserContext(), id, req.AreaName, req.MinAmount)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": area})
}

// SetAreaPricing records a per-area product price override.
func (h *StoreHandler) SetAreaPricing(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	var req areaPricingRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	available := req.IsAvailable == nil || *req.IsAvailable

	pricing, err := h.stores.SetAreaPricing(c.UserContext(), id, req.AreaName, req.ProductID, req.Price, available)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": pricing})
}
