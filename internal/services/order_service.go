package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/floradispatch/internal/models"
	"github.com/example/floradispatch/internal/repositories"
)

// OrderService drives status transitions.
type OrderService struct {
	deps     Deps
	loader   *OrderLoader
	uploader PhotoUploader
}

func NewOrderService(deps Deps, uploader PhotoUploader) *OrderService {
	return &OrderService{deps: deps, loader: deps.loader(), uploader: uploader}
}

// Transition moves the referenced order to status to on behalf of actor.
// Customer orders can only be cancelled directly; their later states follow
// the fulfillment order.
func (s *OrderService) Transition(ctx context.Context, ref OrderRef, to models.OrderStatus, actor Actor, data CompletionData) (UnifiedOrder, error) {
	order, events, err := s.transition(ctx, ref, to, actor, data)
	s.deps.Metrics.Transitions.WithLabelValues(string(to), resultLabel(err)).Inc()
	if err != nil {
		return UnifiedOrder{}, err
	}

	s.deps.Logger.Info("order status changed",
		zap.String("order", ref.String()),
		zap.String("status", string(to)),
		zap.String("actor", actor.Role),
	)
	for _, event := range events {
		if err := s.deps.Publisher.Publish(ctx, event); err != nil {
			s.deps.Logger.Warn("publish change event failed", zap.String("order", event.Ref().String()), zap.Error(err))
		}
	}
	return order, nil
}

func (s *OrderService) transition(ctx context.Context, ref OrderRef, to models.OrderStatus, actor Actor, data CompletionData) (UnifiedOrder, []ChangeEvent, error) {
	unlock := s.deps.Locks.Lock(ref.String())
	defer unlock()

	var (
		result UnifiedOrder
		events []ChangeEvent
	)
	err := s.deps.Repo.Transaction(ctx, func(tx repositories.Repository) error {
		events = events[:0]
		switch ref.Source {
		case SourceClient:
			order, mirrored, err := s.transitionOrder(ctx, tx, ref.ID, to, actor, data)
			if err != nil {
				return err
			}
			result = s.loader.normalizer.FromOrder(order, nil)
			events = append(events, ChangeEvent{OrderID: order.ID, Source: SourceClient, Kind: EventOrderStatus, StoreID: order.ReceiverStoreID, UpdatedAt: order.UpdatedAt})
			if mirrored != nil {
				events = append(events, ChangeEvent{OrderID: mirrored.ID, Source: SourceHomepage, Kind: EventOrderStatus, UpdatedAt: mirrored.UpdatedAt})
			}
		case SourceHomepage:
			customer, err := s.transitionCustomerOrder(ctx, tx, ref.ID, to, actor)
			if err != nil {
				return err
			}
			result = s.loader.normalizer.FromCustomerOrder(customer, nil)
			events = append(events, ChangeEvent{OrderID: customer.ID, Source: SourceHomepage, Kind: EventOrderStatus, UpdatedAt: customer.UpdatedAt})
		default:
			return ErrNotFound
		}
		return nil
	})
	return result, events, err
}

func (s *OrderService) transitionOrder(ctx context.Context, tx repositories.Repository, id uuid.UUID, to models.OrderStatus, actor Actor, data CompletionData) (models.Order, *models.CustomerOrder, error) {
	order, err := tx.FindOrder(ctx, id, true)
	if err != nil {
		return models.Order{}, nil, storeErr("find order", err)
	}

	from := normalizeStatus(order.Status)
	if needsReceiver(to) && order.ReceiverStoreID == nil && Allowed(SourceClient, from, to) {
		return models.Order{}, nil, fmt.Errorf("%w: order %s has no store assigned", ErrPreconditionFailed, order.OrderNumber)
	}
	unified := s.loader.normalizer.FromOrder(order, nil)
	rel := RelationFor(unified, actor, s.deps.Config.HeadquartersStoreID)
	if err := CheckTransition(SourceClient, from, to, rel, data); err != nil {
		return models.Order{}, nil, err
	}

	now := s.deps.now()
	order.Status = to
	switch to {
	case models.StatusAccepted:
		order.AcceptedAt = &now
	case models.StatusCompleted:
		order.CompletionRecipient = data.RecipientName
		order.CompletionNote = data.Note
		order.CompletionPhotos = nonEmpty(data.PhotoURLs)
		order.CompletedAt = &now
	}
	if err := tx.SaveOrder(ctx, &order); err != nil {
		return models.Order{}, nil, saveErr("save order", err)
	}

	if order.CustomerOrderID == nil {
		return order, nil, nil
	}
	customer, err := tx.FindCustomerOrder(ctx, *order.CustomerOrderID, true)
	if err != nil {
		return models.Order{}, nil, storeErr("find customer order", err)
	}
	if customer.LinkedOrderID == nil || *customer.LinkedOrderID != order.ID {
		return order, nil, nil
	}
	if !mirrorOnto(&customer, to, now) {
		return order, nil, nil
	}
	if err := tx.SaveCustomerOrder(ctx, &customer); err != nil {
		return models.Order{}, nil, saveErr("mirror customer order", err)
	}
	return order, &customer, nil
}

// mirrorOnto copies a fulfillment order's progress onto its customer order.
// A rejected or cancelled fulfillment order puts the customer order back in
// the assignment queue.
func mirrorOnto(customer *models.CustomerOrder, to models.OrderStatus, now time.Time) bool {
	switch to {
	case models.StatusPreparing, models.StatusDelivering:
		customer.OrderStatus = to
	case models.StatusCompleted:
		customer.OrderStatus = to
		customer.CompletedAt = &now
	case models.StatusRejected, models.StatusCancelled:
		resetCustomerOrder(customer)
	default:
		return false
	}
	return true
}

func (s *OrderService) transitionCustomerOrder(ctx context.Context, tx repositories.Repository, id uuid.UUID, to models.OrderStatus, actor Actor) (models.CustomerOrder, error) {
	customer, err := tx.FindCustomerOrder(ctx, id, true)
	if err != nil {
		return models.CustomerOrder{}, storeErr("find customer order", err)
	}

	rel := CustomerRelationFor(customer, actor)
	if err := CheckTransition(SourceHomepage, normalizeStatus(customer.OrderStatus), to, rel, CompletionData{}); err != nil {
		return models.CustomerOrder{}, err
	}
	if to != models.StatusCancelled {
		return models.CustomerOrder{}, fmt.Errorf("%w: customer order %s progresses through its fulfillment order", ErrPreconditionFailed, customer.OrderNumber)
	}

	customer.OrderStatus = to
	if err := tx.SaveCustomerOrder(ctx, &customer); err != nil {
		return models.CustomerOrder{}, saveErr("save customer order", err)
	}
	return customer, nil
}

// UploadCompletionPhotos stores the delivery photos, retrying each a bounded
// number of times.
func (s *OrderService) UploadCompletionPhotos(ctx context.Context, ref OrderRef, files []PhotoFile) ([]string, error) {
	if s.uploader == nil {
		return nil, fmt.Errorf("%w: no photo storage configured", ErrPhotoUploadFailed)
	}
	return uploadWithRetry(ctx, s.uploader, ref.ID, files, s.deps.Config.PhotoUploadAttempts, s.deps.Logger)
}

// Complete uploads photos and completes the order in one call. The order is
// not touched when any upload fails.
func (s *OrderService) Complete(ctx context.Context, ref OrderRef, actor Actor, recipient, note string, files []PhotoFile, photoURLs []string) (UnifiedOrder, error) {
	urls := append([]string(nil), photoURLs...)
	if len(files) > 0 {
		uploaded, err := s.UploadCompletionPhotos(ctx, ref, files)
		if err != nil {
			return UnifiedOrder{}, err
		}
		urls = append(urls, uploaded...)
	}
	return s.Transition(ctx, ref, models.StatusCompleted, actor, CompletionData{
		RecipientName: recipient,
		Note:          note,
		PhotoURLs:     urls,
	})
}

// Get loads one order in unified form.
func (s *OrderService) Get(ctx context.Context, ref OrderRef) (UnifiedOrder, error) {
	return s.loader.Load(ctx, s.deps.Repo, ref)
}

func needsReceiver(to models.OrderStatus) bool {
	switch to {
	case models.StatusAccepted, models.StatusRejected, models.StatusPreparing, models.StatusDelivering, models.StatusCompleted:
		return true
	}
	return false
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
