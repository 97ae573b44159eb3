package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/example/floradispatch/internal/services"
)

// MonitorHandler serves the dashboard's problem list.
type MonitorHandler struct {
	monitor *services.MonitorService
	view    *services.OpenOrderView
	now     func() time.Time
}

// NewMonitorHandler constructs MonitorHandler.
func NewMonitorHandler(monitor *services.MonitorService, view *services.OpenOrderView) *MonitorHandler {
	return &MonitorHandler{monitor: monitor, view: view, now: time.Now}
}

// Problems lists stuck orders, most overdue first.
func (h *MonitorHandler) Problems(c *fiber.Ctx) error {
	problems := h.monitor.Problems(h.now().UTC())

	kind := services.ProblemKind(c.Query("kind"))
	if kind != "" {
		filtered := problems[:0]
		for _, p := range problems {
			if p.Kind == kind {
				filtered = append(filtered, p)
			}
		}
		problems = filtered
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    problems,
		"meta": fiber.Map{
			"count":       len(problems),
			"open_orders": h.view.Len(),
		},
	})
}
