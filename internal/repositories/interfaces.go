package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/example/floradispatch/internal/models"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a guarded write loses a race or violates a unique key.
	ErrConflict = errors.New("write conflict")
)

// Repository is the data store consumed by the dispatch and settlement services.
// Save* methods are optimistic: they persist only when the stored version still
// equals the version carried by the argument, and bump it on success.
type Repository interface {
	// Transaction runs fn atomically; any error rolls back every write made through tx.
	Transaction(ctx context.Context, fn func(tx Repository) error) error

	ListStores(ctx context.Context) ([]models.Store, error)
	FindStore(ctx context.Context, id uuid.UUID) (models.Store, error)
	CreateStore(ctx context.Context, store *models.Store) error
	ListDeliveryAreas(ctx context.Context, storeIDs []uuid.UUID) ([]models.DeliveryArea, error)
	CreateDeliveryArea(ctx context.Context, area *models.DeliveryArea) error
	ListAreaProductPricing(ctx context.Context, storeIDs []uuid.UUID, productID string) ([]models.AreaProductPricing, error)
	CreateAreaProductPricing(ctx context.Context, pricing *models.AreaProductPricing) error

	FindOrder(ctx context.Context, id uuid.UUID, forUpdate bool) (models.Order, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	SaveOrder(ctx context.Context, order *models.Order) error
	ListOpenOrders(ctx context.Context) ([]models.Order, error)
	// ListUnsettledOrders returns orders completed by storeID within [start, end)
	// that no settlement item has claimed yet.
	ListUnsettledOrders(ctx context.Context, storeID uuid.UUID, start, end time.Time) ([]models.Order, error)

	FindCustomerOrder(ctx context.Context, id uuid.UUID, forUpdate bool) (models.CustomerOrder, error)
	CreateCustomerOrder(ctx context.Context, order *models.CustomerOrder) error
	SaveCustomerOrder(ctx context.Context, order *models.CustomerOrder) error
	ListPendingCustomerOrders(ctx context.Context) ([]models.CustomerOrder, error)
	// ListUnlinkedAssignments returns customer orders marked assigned without a linked order.
	ListUnlinkedAssignments(ctx context.Context) ([]models.CustomerOrder, error)

	CreateSettlement(ctx context.Context, settlement *models.Settlement) error
	FindSettlement(ctx context.Context, id uuid.UUID, forUpdate bool) (models.Settlement, error)
	FindSettlementByPeriod(ctx context.Context, storeID uuid.UUID, start, end time.Time) (models.Settlement, error)
	// CompleteSettlement flips a pending settlement to completed; ErrConflict if it was not pending.
	CompleteSettlement(ctx context.Context, settlement *models.Settlement) error
	ListSettlements(ctx context.Context, filter SettlementFilter) ([]models.Settlement, int64, error)

	// RecordUrgentAlert inserts the alert unless one exists for the order. It reports
	// whether this call created the row.
	RecordUrgentAlert(ctx context.Context, alert *models.UrgentAlert) (bool, error)
}

// SettlementFilter narrows ListSettlements.
type SettlementFilter struct {
	StoreID *uuid.UUID
	Status  string
	Limit   int
	Offset  int
}
