package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/example/floradispatch/internal/models"
	"github.com/example/floradispatch/internal/repositories"
)

// OrderLoader reads an order of either shape and normalizes it.
type OrderLoader struct {
	normalizer Normalizer
}

func NewOrderLoader(normalizer Normalizer) *OrderLoader {
	return &OrderLoader{normalizer: normalizer}
}

// Load reads ref through repo, which may be a transaction.
func (l *OrderLoader) Load(ctx context.Context, repo repositories.Repository, ref OrderRef) (UnifiedOrder, error) {
	switch ref.Source {
	case SourceClient:
		order, err := repo.FindOrder(ctx, ref.ID, false)
		if err != nil {
			return UnifiedOrder{}, storeErr("find order", err)
		}
		store, err := l.optionalStore(ctx, repo, order.ReceiverStoreID)
		if err != nil {
			return UnifiedOrder{}, err
		}
		return l.normalizer.FromOrder(order, store), nil
	case SourceHomepage:
		order, err := repo.FindCustomerOrder(ctx, ref.ID, false)
		if err != nil {
			return UnifiedOrder{}, storeErr("find customer order", err)
		}
		store, err := l.optionalStore(ctx, repo, order.AssignedStoreID)
		if err != nil {
			return UnifiedOrder{}, err
		}
		return l.normalizer.FromCustomerOrder(order, store), nil
	}
	return UnifiedOrder{}, ErrNotFound
}

// LoadOpen returns every non-terminal order of both shapes. Customer orders
// already materialized into a florist order are represented by that order.
func (l *OrderLoader) LoadOpen(ctx context.Context, repo repositories.Repository) ([]UnifiedOrder, error) {
	orders, err := repo.ListOpenOrders(ctx)
	if err != nil {
		return nil, storeErr("list open orders", err)
	}
	pending, err := repo.ListPendingCustomerOrders(ctx)
	if err != nil {
		return nil, storeErr("list pending customer orders", err)
	}
	stores, err := repo.ListStores(ctx)
	if err != nil {
		return nil, storeErr("list stores", err)
	}
	byID := make(map[uuid.UUID]*models.Store, len(stores))
	for i := range stores {
		byID[stores[i].ID] = &stores[i]
	}

	out := make([]UnifiedOrder, 0, len(orders)+len(pending))
	for _, o := range orders {
		var store *models.Store
		if o.ReceiverStoreID != nil {
			store = byID[*o.ReceiverStoreID]
		}
		out = append(out, l.normalizer.FromOrder(o, store))
	}
	for _, o := range pending {
		if o.LinkedOrderID != nil {
			continue
		}
		out = append(out, l.normalizer.FromCustomerOrder(o, nil))
	}
	return out, nil
}

func (l *OrderLoader) optionalStore(ctx context.Context, repo repositories.Repository, id *uuid.UUID) (*models.Store, error) {
	if id == nil {
		return nil, nil
	}
	store, err := repo.FindStore(ctx, *id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("find store", err)
	}
	return &store, nil
}
