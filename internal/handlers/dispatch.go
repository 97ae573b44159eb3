package handlers

import (
	"fmt"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/floradispatch/internal/middleware"
	"github.com/example/floradispatch/internal/models"
	"github.com/example/floradispatch/internal/services"
)

const maxPhotoBytes = 10 << 20

// DispatchHandler exposes candidate lookup, assignment and status changes.
type DispatchHandler struct {
	eligibility *services.EligibilityResolver
	assignments *services.AssignmentService
	orders      *services.OrderService
}

// NewDispatchHandler constructs DispatchHandler.
func NewDispatchHandler(eligibility *services.EligibilityResolver, assignments *services.AssignmentService, orders *services.OrderService) *DispatchHandler {
	return &DispatchHandler{eligibility: eligibility, assignments: assignments, orders: orders}
}

type assignRequest struct {
	StoreID string `json:"store_id" validate:"required,uuid"`
}

type statusRequest struct {
	Status        string   `json:"status" form:"status" validate:"required,oneof=accepted assigned preparing delivering completed rejected cancelled"`
	RecipientName string   `json:"recipient_name" form:"recipient_name" validate:"max=100"`
	Note          string   `json:"note" form:"note" validate:"max=1000"`
	PhotoURLs     []string `json:"photo_urls" form:"photo_urls"`
}

// GetOrder returns one order in unified form.
func (h *DispatchHandler) GetOrder(c *fiber.Ctx) error {
	ref, err := orderRef(c)
	if err != nil {
		return err
	}
	order, err := h.orders.Get(c.UserContext(), ref)
	if err != nil {
		return err
	}
	actor, _ := middleware.CurrentActor(c)
	if !canView(actor, order) {
		return fmt.Errorf("%w: order belongs to other stores", services.ErrForbiddenActor)
	}
	return c.JSON(fiber.Map{"success": true, "data": order})
}

// canView lets admins see every order and stores only orders they send or fulfil.
func canView(actor services.Actor, order services.UnifiedOrder) bool {
	if actor.Role == services.ActorAdmin {
		return true
	}
	if actor.Role != services.ActorStore || actor.StoreID == nil {
		return false
	}
	for _, id := range []*uuid.UUID{order.SenderStoreID, order.ReceiverStoreID} {
		if id != nil && *id == *actor.StoreID {
			return true
		}
	}
	return false
}

// Candidates lists the stores able to fulfil the order, best first.
func (h *DispatchHandler) Candidates(c *fiber.Ctx) error {
	ref, err := orderRef(c)
	if err != nil {
		return err
	}

	result, err := h.eligibility.Resolve(c.UserContext(), ref)
	if err != nil {
		if result.Reason != "" {
			return fmt.Errorf("%w: %s", err, result.Reason)
		}
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    result,
		"meta":    fiber.Map{"count": len(result.Candidates)},
	})
}

// Assign binds the order to the requested store.
func (h *DispatchHandler) Assign(c *fiber.Ctx) error {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	ref, err := orderRef(c)
	if err != nil {
		return err
	}

	var req assignRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	result, err := h.assignments.Assign(c.UserContext(), ref, uuid.MustParse(req.StoreID), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": result})
}

// Unassign releases the order's store binding.
func (h *DispatchHandler) Unassign(c *fiber.Ctx) error {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	ref, err := orderRef(c)
	if err != nil {
		return err
	}

	order, err := h.assignments.Unassign(c.UserContext(), ref, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": order})
}

// UpdateStatus moves the order through its lifecycle. Completion accepts a
// multipart body with delivery photos under "photos".
func (h *DispatchHandler) UpdateStatus(c *fiber.Ctx) error {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	ref, err := orderRef(c)
	if err != nil {
		return err
	}

	var req statusRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	to := models.OrderStatus(req.Status)

	files, err := photoFiles(c)
	if err != nil {
		return err
	}

	var order services.UnifiedOrder
	if to == models.StatusCompleted {
		order, err = h.orders.Complete(c.UserContext(), ref, actor, req.RecipientName, req.Note, files, req.PhotoURLs)
	} else {
		order, err = h.orders.Transition(c.UserContext(), ref, to, actor, services.CompletionData{})
	}
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    order,
		"meta":    fiber.Map{"next_statuses": services.NextStatuses(order.Source, order.Status)},
	})
}

func orderRef(c *fiber.Ctx) (services.OrderRef, error) {
	source, err := services.ParseOrderSource(c.Params("source"))
	if err != nil {
		return services.OrderRef{}, err
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return services.OrderRef{}, fiber.NewError(fiber.StatusBadRequest, "invalid order id")
	}
	return services.OrderRef{Source: source, ID: id}, nil
}

func photoFiles(c *fiber.Ctx) ([]services.PhotoFile, error) {
	if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		return nil, nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid multipart body")
	}

	headers := form.File["photos"]
	files := make([]services.PhotoFile, 0, len(headers))
	for _, header := range headers {
		if header.Size > maxPhotoBytes {
			return nil, fiber.NewError(fiber.StatusRequestEntityTooLarge, "photo too large")
		}
		f, err := header.Open()
		if err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "unreadable photo")
		}
		data, err := io.ReadAll(io.LimitReader(f, maxPhotoBytes))
		f.Close()
		if err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "unreadable photo")
		}
		files = append(files, services.PhotoFile{
			Name:        header.Filename,
			ContentType: header.Header.Get(fiber.HeaderContentType),
			Data:        data,
		})
	}
	return files, nil
}
