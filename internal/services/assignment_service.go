package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/floradispatch/internal/models"
	"github.com/example/floradispatch/internal/repositories"
)

// AssignmentResult is the state after a successful assignment.
type AssignmentResult struct {
	Order            UnifiedOrder `json:"order"`
	StoreID          uuid.UUID    `json:"store_id"`
	FulfillmentOrder *uuid.UUID   `json:"fulfillment_order_id,omitempty"`
}

// AssignmentService binds orders to stores. Each order is locked in process
// for the whole attempt and re-checked under a row lock inside one
// transaction; the version guard on save catches writers in other processes.
type AssignmentService struct {
	deps   Deps
	loader *OrderLoader
	calc   CommissionCalculator
}

func NewAssignmentService(deps Deps) *AssignmentService {
	return &AssignmentService{deps: deps, loader: deps.loader(), calc: deps.calculator()}
}

// Assign binds the order to storeID. A customer order is materialized into a
// florist order sent by headquarters in the same transaction.
func (s *AssignmentService) Assign(ctx context.Context, ref OrderRef, storeID uuid.UUID, actor Actor) (AssignmentResult, error) {
	result, err := s.assign(ctx, ref, storeID, actor)
	s.deps.Metrics.Assignments.WithLabelValues(string(ref.Source), resultLabel(err)).Inc()
	if err != nil {
		return AssignmentResult{}, err
	}

	s.deps.Logger.Info("order assigned",
		zap.String("order", ref.String()),
		zap.String("store_id", storeID.String()),
	)
	s.publish(ctx, ChangeEvent{OrderID: ref.ID, Source: ref.Source, Kind: EventOrderAssigned, StoreID: &storeID, UpdatedAt: result.Order.UpdatedAt})
	if result.FulfillmentOrder != nil {
		s.publish(ctx, ChangeEvent{OrderID: *result.FulfillmentOrder, Source: SourceClient, Kind: EventOrderCreated, StoreID: &storeID, UpdatedAt: result.Order.UpdatedAt})
	}
	return result, nil
}

func (s *AssignmentService) assign(ctx context.Context, ref OrderRef, storeID uuid.UUID, actor Actor) (AssignmentResult, error) {
	if actor.Role != ActorAdmin && actor.Role != ActorSystem {
		return AssignmentResult{}, fmt.Errorf("%w: only headquarters assigns orders", ErrForbiddenActor)
	}
	if storeID == s.deps.Config.HeadquartersStoreID {
		return AssignmentResult{}, fmt.Errorf("%w: headquarters is not an assignable store", ErrPreconditionFailed)
	}

	unlock := s.deps.Locks.Lock(ref.String())
	defer unlock()

	var result AssignmentResult
	err := s.deps.Repo.Transaction(ctx, func(tx repositories.Repository) error {
		store, err := tx.FindStore(ctx, storeID)
		if errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("%w: store %s does not exist", ErrPreconditionFailed, storeID)
		}
		if err != nil {
			return storeErr("find store", err)
		}
		if !store.Accepting() {
			return fmt.Errorf("%w: store %s is not active and open", ErrPreconditionFailed, storeID)
		}

		switch ref.Source {
		case SourceClient:
			result, err = s.assignOrder(ctx, tx, ref.ID, store)
		case SourceHomepage:
			result, err = s.assignCustomerOrder(ctx, tx, ref.ID, store)
		default:
			err = ErrNotFound
		}
		return err
	})
	return result, err
}

func (s *AssignmentService) assignOrder(ctx context.Context, tx repositories.Repository, id uuid.UUID, store models.Store) (AssignmentResult, error) {
	order, err := tx.FindOrder(ctx, id, true)
	if err != nil {
		return AssignmentResult{}, storeErr("find order", err)
	}
	if order.ReceiverStoreID != nil {
		return AssignmentResult{}, fmt.Errorf("%w: order %s is already assigned", ErrPreconditionFailed, order.OrderNumber)
	}
	if order.Status != models.StatusPending {
		return AssignmentResult{}, fmt.Errorf("%w: order %s is %s", ErrPreconditionFailed, order.OrderNumber, order.Status)
	}

	now := s.deps.now()
	receiver := store.ID
	order.ReceiverStoreID = &receiver
	order.AssignedAt = &now
	order.Commission = s.calc.Calculate(order.Subtotal, store.CommissionRate).Commission
	if err := tx.SaveOrder(ctx, &order); err != nil {
		return AssignmentResult{}, saveErr("save order", err)
	}

	return AssignmentResult{Order: s.loader.normalizer.FromOrder(order, &store), StoreID: store.ID}, nil
}

func (s *AssignmentService) assignCustomerOrder(ctx context.Context, tx repositories.Repository, id uuid.UUID, store models.Store) (AssignmentResult, error) {
	customer, err := tx.FindCustomerOrder(ctx, id, true)
	if err != nil {
		return AssignmentResult{}, storeErr("find customer order", err)
	}
	if customer.AssignedStoreID != nil || customer.LinkedOrderID != nil {
		return AssignmentResult{}, fmt.Errorf("%w: order %s is already assigned", ErrPreconditionFailed, customer.OrderNumber)
	}
	if customer.OrderStatus != models.StatusPending {
		return AssignmentResult{}, fmt.Errorf("%w: order %s is %s", ErrPreconditionFailed, customer.OrderNumber, customer.OrderStatus)
	}

	now := s.deps.now()
	fulfillment := s.materialize(customer, store, now)
	if err := tx.CreateOrder(ctx, &fulfillment); err != nil {
		return AssignmentResult{}, saveErr("create fulfillment order", err)
	}

	receiver := store.ID
	linked := fulfillment.ID
	customer.OrderStatus = models.StatusAssigned
	customer.AssignedStoreID = &receiver
	customer.LinkedOrderID = &linked
	customer.AssignedAt = &now
	if err := tx.SaveCustomerOrder(ctx, &customer); err != nil {
		return AssignmentResult{}, saveErr("save customer order", err)
	}

	return AssignmentResult{
		Order:            s.loader.normalizer.FromCustomerOrder(customer, &store),
		StoreID:          store.ID,
		FulfillmentOrder: &linked,
	}, nil
}

// materialize copies a customer order into a florist order from headquarters.
func (s *AssignmentService) materialize(customer models.CustomerOrder, store models.Store, now time.Time) models.Order {
	unified := s.loader.normalizer.FromCustomerOrder(customer, &store)
	receiver := store.ID
	link := customer.ID

	return models.Order{
		BaseModel:       models.BaseModel{ID: uuid.New()},
		OrderNumber:     fulfillmentNumber(customer.OrderNumber),
		SenderStoreID:   s.deps.Config.HeadquartersStoreID,
		ReceiverStoreID: &receiver,
		CustomerOrderID: &link,

		CustomerName:   customer.CustomerName,
		CustomerPhone:  customer.CustomerPhone,
		RecipientName:  customer.RecipientName,
		RecipientPhone: customer.RecipientPhone,

		ProductID:    customer.ProductID,
		ProductType:  unified.Product.Type,
		ProductName:  customer.ProductName,
		ProductPrice: unified.Product.Price,
		Quantity:     unified.Product.Quantity,
		RibbonText:   customer.RibbonText,

		Subtotal:    unified.Pricing.Subtotal,
		Commission:  unified.Pricing.Commission,
		TotalAmount: unified.Pricing.Subtotal,

		DeliveryAddress: customer.Address,
		DeliverySido:    customer.Sido,
		DeliverySigungu: customer.Sigungu,
		DeliveryDong:    customer.Dong,
		DeliveryDate:    customer.DesiredDate,
		DeliveryTime:    customer.DesiredTime,
		Message:         customer.CardMessage,

		Status:     models.StatusPending,
		AssignedAt: &now,
	}
}

func fulfillmentNumber(customerNumber string) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	if customerNumber == "" {
		return "HQ-" + suffix
	}
	return "HQ-" + customerNumber + "-" + suffix
}

// Unassign releases a store binding made by Assign. Only orders the store has
// not yet taken over can be released.
func (s *AssignmentService) Unassign(ctx context.Context, ref OrderRef, actor Actor) (UnifiedOrder, error) {
	if actor.Role != ActorAdmin && actor.Role != ActorSystem {
		return UnifiedOrder{}, fmt.Errorf("%w: only headquarters unassigns orders", ErrForbiddenActor)
	}

	unlock := s.deps.Locks.Lock(ref.String())
	defer unlock()

	var (
		released UnifiedOrder
		events   []ChangeEvent
	)
	err := s.deps.Repo.Transaction(ctx, func(tx repositories.Repository) error {
		events = events[:0]
		switch ref.Source {
		case SourceClient:
			order, err := tx.FindOrder(ctx, ref.ID, true)
			if err != nil {
				return storeErr("find order", err)
			}
			if order.CustomerOrderID != nil {
				customer, err := tx.FindCustomerOrder(ctx, *order.CustomerOrderID, true)
				if err != nil {
					return storeErr("find customer order", err)
				}
				if customer.LinkedOrderID == nil || *customer.LinkedOrderID != order.ID {
					return fmt.Errorf("%w: order %s is no longer the fulfillment of %s", ErrPreconditionFailed, order.OrderNumber, customer.OrderNumber)
				}
				if err := s.releaseCustomerOrder(ctx, tx, &customer, &order); err != nil {
					return err
				}
				released = s.loader.normalizer.FromOrder(order, nil)
				events = append(events, ChangeEvent{OrderID: customer.ID, Source: SourceHomepage, Kind: EventOrderUnassigned, UpdatedAt: customer.UpdatedAt})
				break
			}
			if order.ReceiverStoreID == nil || order.Status != models.StatusPending {
				return fmt.Errorf("%w: order %s is not a pending assignment", ErrPreconditionFailed, order.OrderNumber)
			}
			order.ReceiverStoreID = nil
			order.AssignedAt = nil
			if err := tx.SaveOrder(ctx, &order); err != nil {
				return saveErr("save order", err)
			}
			released = s.loader.normalizer.FromOrder(order, nil)
		case SourceHomepage:
			customer, err := tx.FindCustomerOrder(ctx, ref.ID, true)
			if err != nil {
				return storeErr("find customer order", err)
			}
			var linked *models.Order
			if customer.LinkedOrderID != nil {
				order, err := tx.FindOrder(ctx, *customer.LinkedOrderID, true)
				if err != nil {
					return storeErr("find fulfillment order", err)
				}
				linked = &order
			}
			if err := s.releaseCustomerOrder(ctx, tx, &customer, linked); err != nil {
				return err
			}
			if linked != nil {
				events = append(events, ChangeEvent{OrderID: linked.ID, Source: SourceClient, Kind: EventOrderStatus, UpdatedAt: linked.UpdatedAt})
			}
			released = s.loader.normalizer.FromCustomerOrder(customer, nil)
		default:
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return UnifiedOrder{}, err
	}

	s.deps.Logger.Info("order unassigned", zap.String("order", ref.String()))
	s.publish(ctx, ChangeEvent{OrderID: ref.ID, Source: ref.Source, Kind: EventOrderUnassigned, UpdatedAt: released.UpdatedAt})
	for _, event := range events {
		s.publish(ctx, event)
	}
	return released, nil
}

// releaseCustomerOrder cancels the pending fulfillment order, if any, and puts
// the customer order back in the queue.
func (s *AssignmentService) releaseCustomerOrder(ctx context.Context, tx repositories.Repository, customer *models.CustomerOrder, linked *models.Order) error {
	if customer.OrderStatus != models.StatusAssigned {
		return fmt.Errorf("%w: order %s is %s", ErrPreconditionFailed, customer.OrderNumber, customer.OrderStatus)
	}
	if linked != nil {
		if linked.Status != models.StatusPending {
			return fmt.Errorf("%w: fulfillment order %s is already %s", ErrPreconditionFailed, linked.OrderNumber, linked.Status)
		}
		linked.Status = models.StatusCancelled
		if err := tx.SaveOrder(ctx, linked); err != nil {
			return saveErr("cancel fulfillment order", err)
		}
	}
	resetCustomerOrder(customer)
	if err := tx.SaveCustomerOrder(ctx, customer); err != nil {
		return saveErr("save customer order", err)
	}
	return nil
}

func resetCustomerOrder(customer *models.CustomerOrder) {
	customer.OrderStatus = models.StatusPending
	customer.AssignedStoreID = nil
	customer.LinkedOrderID = nil
	customer.AssignedAt = nil
}

// ReconcileUnlinked returns customer orders stuck as assigned without a
// fulfillment order to the pending queue. Such rows only come from data
// written before assignment was transactional.
func (s *AssignmentService) ReconcileUnlinked(ctx context.Context) (int, error) {
	stuck, err := s.deps.Repo.ListUnlinkedAssignments(ctx)
	if err != nil {
		return 0, storeErr("list unlinked assignments", err)
	}

	repaired := 0
	for _, candidate := range stuck {
		if err := ctx.Err(); err != nil {
			return repaired, err
		}
		ref := OrderRef{Source: SourceHomepage, ID: candidate.ID}
		unlock := s.deps.Locks.Lock(ref.String())
		reset := false
		err := s.deps.Repo.Transaction(ctx, func(tx repositories.Repository) error {
			customer, err := tx.FindCustomerOrder(ctx, candidate.ID, true)
			if err != nil {
				return storeErr("find customer order", err)
			}
			if customer.OrderStatus != models.StatusAssigned || customer.LinkedOrderID != nil {
				return nil
			}
			resetCustomerOrder(&customer)
			if err := tx.SaveCustomerOrder(ctx, &customer); err != nil {
				return saveErr("reset customer order", err)
			}
			reset = true
			return nil
		})
		unlock()
		if err != nil {
			s.deps.Logger.Warn("reconcile unlinked assignment failed", zap.String("order", ref.String()), zap.Error(err))
			continue
		}
		if !reset {
			continue
		}
		repaired++
		s.deps.Logger.Warn("reset unlinked assignment", zap.String("order", ref.String()))
		s.publish(ctx, ChangeEvent{OrderID: candidate.ID, Source: SourceHomepage, Kind: EventOrderUnassigned, UpdatedAt: s.deps.now()})
	}
	return repaired, nil
}

func (s *AssignmentService) publish(ctx context.Context, event ChangeEvent) {
	if err := s.deps.Publisher.Publish(ctx, event); err != nil {
		s.deps.Logger.Warn("publish change event failed", zap.String("order", event.Ref().String()), zap.Error(err))
	}
}

// saveErr maps a lost optimistic write to a failed precondition.
func saveErr(op string, err error) error {
	if errors.Is(err, repositories.ErrConflict) {
		return fmt.Errorf("%w: %s: order changed concurrently", ErrPreconditionFailed, op)
	}
	return storeErr(op, err)
}
