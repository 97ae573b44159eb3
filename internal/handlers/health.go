package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/floradispatch/internal/services"
)

// HealthHandler reports liveness and open-view size.
type HealthHandler struct {
	view *services.OpenOrderView
}

func NewHealthHandler(view *services.OpenOrderView) *HealthHandler {
	return &HealthHandler{view: view}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"status":      "ok",
			"open_orders": h.view.Len(),
		},
	})
}
