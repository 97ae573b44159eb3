package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/example/floradispatch/internal/models"
	"github.com/example/floradispatch/internal/repositories"
)

// StoreInput registers a florist store in the network.
type StoreInput struct {
	BusinessName   string
	OwnerName      string
	Phone          string
	Address        string
	ServiceAreas   []string
	CommissionRate *float64
	IsOpen         bool
}

// StoreService maintains the store registry the eligibility resolver reads.
// Area names are stored with canonical province names.
type StoreService struct {
	deps Deps
}

func NewStoreService(deps Deps) *StoreService {
	return &StoreService{deps: deps}
}

func (s *StoreService) CreateStore(ctx context.Context, in StoreInput) (models.Store, error) {
	if in.CommissionRate != nil && (*in.CommissionRate < 0 || *in.CommissionRate > 1) {
		return models.Store{}, fmt.Errorf("%w: commission rate must be within [0, 1]", ErrPreconditionFailed)
	}

	store := models.Store{
		BusinessName:   strings.TrimSpace(in.BusinessName),
		OwnerName:      strings.TrimSpace(in.OwnerName),
		Phone:          strings.TrimSpace(in.Phone),
		Address:        strings.TrimSpace(in.Address),
		ServiceAreas:   canonicalAreas(in.ServiceAreas),
		CommissionRate: in.CommissionRate,
		Status:         models.StoreStatusActive,
		IsOpen:         in.IsOpen,
	}
	if err := s.deps.Repo.CreateStore(ctx, &store); err != nil {
		return models.Store{}, storeErr("create store", err)
	}
	return store, nil
}

func (s *StoreService) ListStores(ctx context.Context) ([]models.Store, error) {
	stores, err := s.deps.Repo.ListStores(ctx)
	if err != nil {
		return nil, storeErr("list stores", err)
	}
	return stores, nil
}

// AddDeliveryArea sets the minimum order amount a store accepts in an area.
func (s *StoreService) AddDeliveryArea(ctx context.Context, storeID uuid.UUID, areaName string, minAmount int64) (models.DeliveryArea, error) {
	if _, err := s.deps.Repo.FindStore(ctx, storeID); err != nil {
		return models.DeliveryArea{}, storeErr("find store", err)
	}
	area := models.DeliveryArea{
		StoreID:   storeID,
		AreaName:  canonicalEntry(areaName),
		MinAmount: max(minAmount, 0),
		IsActive:  true,
	}
	if area.AreaName == "" {
		return models.DeliveryArea{}, fmt.Errorf("%w: area name is empty", ErrPreconditionFailed)
	}
	if err := s.deps.Repo.CreateDeliveryArea(ctx, &area); err != nil {
		return models.DeliveryArea{}, storeErr("create delivery area", err)
	}
	return area, nil
}

// SetAreaPricing records a store's price, or unavailability, for one product in one area.
func (s *StoreService) SetAreaPricing(ctx context.Context, storeID uuid.UUID, areaName, productID string, price int64, available bool) (models.AreaProductPricing, error) {
	if _, err := s.deps.Repo.FindStore(ctx, storeID); err != nil {
		return models.AreaProductPricing{}, storeErr("find store", err)
	}
	pricing := models.AreaProductPricing{
		StoreID:     storeID,
		AreaName:    canonicalEntry(areaName),
		ProductID:   strings.TrimSpace(productID),
		Price:       max(price, 0),
		IsAvailable: available,
	}
	if pricing.AreaName == "" || pricing.ProductID == "" {
		return models.AreaProductPricing{}, fmt.Errorf("%w: area and product are required", ErrPreconditionFailed)
	}
	if err := s.deps.Repo.CreateAreaProductPricing(ctx, &pricing); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return models.AreaProductPricing{}, fmt.Errorf("%w: pricing already set for %s %s", ErrPreconditionFailed, pricing.AreaName, pricing.ProductID)
		}
		return models.AreaProductPricing{}, storeErr("create area pricing", err)
	}
	return pricing, nil
}

func canonicalAreas(areas []string) []string {
	out := make([]string, 0, len(areas))
	seen := make(map[string]bool, len(areas))
	for _, area := range areas {
		name := canonicalEntry(area)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
