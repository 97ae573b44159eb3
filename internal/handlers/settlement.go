package handlers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/floradispatch/internal/middleware"
	"github.com/example/floradispatch/internal/models"
	"github.com/example/floradispatch/internal/repositories"
	"github.com/example/floradispatch/internal/services"
	"github.com/example/floradispatch/internal/utils"
)

// SettlementHandler manages settlement endpoints for the finance UI.
type SettlementHandler struct {
	settlements *services.SettlementService
	loc         *time.Location
}

// NewSettlementHandler constructs SettlementHandler. Period dates are read in loc.
func NewSettlementHandler(settlements *services.SettlementService, loc *time.Location) *SettlementHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &SettlementHandler{settlements: settlements, loc: loc}
}

type generateRequest struct {
	PeriodStart string `json:"period_start" validate:"required,datetime=2006-01-02"`
	PeriodEnd   string `json:"period_end" validate:"required,datetime=2006-01-02"`
	StoreID     string `json:"store_id" validate:"omitempty,uuid"`
}

// ListSettlements returns settlements, newest period first. Store actors only
// see their own.
func (h *SettlementHandler) ListSettlements(c *fiber.Ctx) error {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	pagination := utils.ParsePagination(c)

	filter := repositories.SettlementFilter{
		Status: c.Query("status"),
		Limit:  pagination.Limit,
		Offset: pagination.Offset,
	}
	if raw := c.Query("store_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid store_id")
		}
		filter.StoreID = &id
	}
	if actor.Role == services.ActorStore {
		if filter.StoreID != nil && *filter.StoreID != *actor.StoreID {
			return fmt.Errorf("%w: other store's settlements", services.ErrForbiddenActor)
		}
		filter.StoreID = actor.StoreID
	}

	settlements, total, err := h.settlements.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	if settlements == nil {
		settlements = []models.Settlement{}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    settlements,
		"meta": fiber.Map{
			"page":  pagination.Page,
			"limit": pagination.Limit,
			"total": total,
		},
	})
}

// GetSettlement returns one settlement with its items.
func (h *SettlementHandler) GetSettlement(c *fiber.Ctx) error {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid settlement id")
	}

	settlement, err := h.settlements.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	if err := ownStore(actor, settlement.StoreID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": settlement})
}

// Summary returns a store's pending and completed totals.
func (h *SettlementHandler) Summary(c *fiber.Ctx) error {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	storeID, err := uuid.Parse(c.Params("store_id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid store_id")
	}
	if err := ownStore(actor, storeID); err != nil {
		return err
	}

	summary, err := h.settlements.Summary(c.UserContext(), storeID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": summary})
}

// Generate settles a period for one store or for every active store.
func (h *SettlementHandler) Generate(c *fiber.Ctx) error {
	var req generateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	start, _ := time.ParseInLocation(time.DateOnly, req.PeriodStart, h.loc)
	end, _ := time.ParseInLocation(time.DateOnly, req.PeriodEnd, h.loc)

	if req.StoreID != "" {
		run, err := h.settlements.GenerateForStore(c.UserContext(), uuid.MustParse(req.StoreID), start, end)
		if err != nil {
			return err
		}
		status := fiber.StatusOK
		if run.Created {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(fiber.Map{"success": true, "data": []services.SettlementRun{run}})
	}

	runs, err := h.settlements.Generate(c.UserContext(), start, end)
	if err != nil {
		return err
	}
	if runs == nil {
		runs = []services.SettlementRun{}
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    runs,
		"meta":    fiber.Map{"stores": len(runs)},
	})
}

// Process marks a pending settlement as paid out.
func (h *SettlementHandler) Process(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid settlement id")
	}

	settlement, err := h.settlements.Process(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": settlement})
}

func ownStore(actor services.Actor, storeID uuid.UUID) error {
	switch actor.Role {
	case services.ActorAdmin:
		return nil
	case services.ActorStore:
		if actor.StoreID != nil && *actor.StoreID == storeID {
			return nil
		}
	}
	return fmt.Errorf("%w: settlement belongs to another store", services.ErrForbiddenActor)
}
