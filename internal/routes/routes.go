package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/example/floradispatch/internal/config"
	"github.com/example/floradispatch/internal/handlers"
	"github.com/example/floradispatch/internal/middleware"
	"github.com/example/floradispatch/internal/services"
)

// Services are the dispatch components the HTTP surface needs.
type Services struct {
	Eligibility *services.EligibilityResolver
	Assignments *services.AssignmentService
	Orders      *services.OrderService
	Monitor     *services.MonitorService
	Settlements *services.SettlementService
	Stores      *services.StoreService
	View        *services.OpenOrderView
	Metrics     *services.Metrics
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, cfg *config.Config, svc Services) {
	dispatchHandler := handlers.NewDispatchHandler(svc.Eligibility, svc.Assignments, svc.Orders)
	monitorHandler := handlers.NewMonitorHandler(svc.Monitor, svc.View)
	settlementHandler := handlers.NewSettlementHandler(svc.Settlements, cfg.Dispatch.Location)
	storeHandler := handlers.NewStoreHandler(svc.Stores)
	healthHandler := handlers.NewHealthHandler(svc.View)

	app.Get("/health", healthHandler.Health)
	app.Get("/metrics", adaptor.HTTPHandler(svc.Metrics.Handler()))

	api := app.Group("/api")
	api.Get("/health", healthHandler.Health)

	// Protected routes
	protected := api.Group("", middleware.AuthMiddleware(cfg.JWTSecret))
	adminOnly := middleware.RequireRoles(services.ActorAdmin)
	staff := middleware.RequireRoles(services.ActorAdmin, services.ActorStore)

	orders := protected.Group("/orders/:source/:id")
	orders.Get("/", staff, dispatchHandler.GetOrder)
	orders.Get("/candidates", adminOnly, dispatchHandler.Candidates)
	orders.Post("/assign", adminOnly, dispatchHandler.Assign)
	orders.Post("/unassign", adminOnly, dispatchHandler.Unassign)
	orders.Post("/status", dispatchHandler.UpdateStatus)

	protected.Get("/monitor/problems", adminOnly, monitorHandler.Problems)

	stores := protected.Group("/stores", adminOnly)
	stores.Get("/", storeHandler.ListStores)
	stores.Post("/", storeHandler.CreateStore)
	stores.Post("/:id/delivery-areas", storeHandler.AddDeliveryArea)
	stores.Post("/:id/area-pricing", storeHandler.SetAreaPricing)

	settlements := protected.Group("/settlements", staff)
	settlements.Get("/", settlementHandler.ListSettlements)
	settlements.Get("/summary/:store_id", settlementHandler.Summary)
	settlements.Post("/generate", adminOnly, settlementHandler.Generate)
	settlements.Get("/:id", settlementHandler.GetSettlement)
	settlements.Post("/:id/process", adminOnly, settlementHandler.Process)
}
