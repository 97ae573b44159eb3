package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/floradispatch/internal/models"
)

var terminalStatuses = []models.OrderStatus{
	models.StatusCompleted,
	models.StatusRejected,
	models.StatusCancelled,
}

// GormRepository implements Repository on top of gorm. The connection must be
// opened with TranslateError so unique violations surface as gorm.ErrDuplicatedKey.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository constructs a GormRepository.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormRepository{db: tx})
	})
}

func (r *GormRepository) ListStores(ctx context.Context) ([]models.Store, error) {
	var stores []models.Store
	if err := r.db.WithContext(ctx).Order("created_at asc, id asc").Find(&stores).Error; err != nil {
		return nil, translate(err)
	}
	return stores, nil
}

func (r *GormRepository) FindStore(ctx context.Context, id uuid.UUID) (models.Store, error) {
	var store models.Store
	if err := r.db.WithContext(ctx).First(&store, "id = ?", id).Error; err != nil {
		return models.Store{}, translate(err)
	}
	return store, nil
}

func (r *GormRepository) CreateStore(ctx context.Context, store *models.Store) error {
	return translate(r.db.WithContext(ctx).Create(store).Error)
}

func (r *GormRepository) ListDeliveryAreas(ctx context.Context, storeIDs []uuid.UUID) ([]models.DeliveryArea, error) {
	if len(storeIDs) == 0 {
		return nil, nil
	}
	var areas []models.DeliveryArea
	if err := r.db.WithContext(ctx).
		Where("store_id IN ?", storeIDs).
		Order("created_at asc").
		Find(&areas).Error; err != nil {
		return nil, translate(err)
	}
	return areas, nil
}

func (r *GormRepository) CreateDeliveryArea(ctx context.Context, area *models.DeliveryArea) error {
	return translate(r.db.WithContext(ctx).Create(area).Error)
}

func (r *GormRepository) ListAreaProductPricing(ctx context.Context, storeIDs []uuid.UUID, productID string) ([]models.AreaProductPricing, error) {
	if len(storeIDs) == 0 || productID == "" {
		return nil, nil
	}
	var rows []models.AreaProductPricing
	if err := r.db.WithContext(ctx).
		Where("store_id IN ? AND product_id = ?", storeIDs, productID).
		Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	return rows, nil
}

func (r *GormRepository) CreateAreaProductPricing(ctx context.Context, pricing *models.AreaProductPricing) error {
	return translate(r.db.WithContext(ctx).Create(pricing).Error)
}

func (r *GormRepository) FindOrder(ctx context.Context, id uuid.UUID, forUpdate bool) (models.Order, error) {
	var order models.Order
	if err := r.lockable(ctx, forUpdate).First(&order, "id = ?", id).Error; err != nil {
		return models.Order{}, translate(err)
	}
	return order, nil
}

func (r *GormRepository) CreateOrder(ctx context.Context, order *models.Order) error {
	return translate(r.db.WithContext(ctx).Create(order).Error)
}

func (r *GormRepository) SaveOrder(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		return ErrNotFound
	}
	expected := order.Version
	order.Version = expected + 1

	res := r.db.WithContext(ctx).Model(order).
		Where("version = ?", expected).
		Select("*").Omit("id", "created_at").
		Updates(order)
	if res.Error != nil {
		order.Version = expected
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		order.Version = expected
		return ErrConflict
	}
	return nil
}

func (r *GormRepository) ListOpenOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	if err := r.db.WithContext(ctx).
		Where("status NOT IN ?", terminalStatuses).
		Order("created_at asc").
		Find(&orders).Error; err != nil {
		return nil, translate(err)
	}
	return orders, nil
}

func (r *GormRepository) ListUnsettledOrders(ctx context.Context, storeID uuid.UUID, start, end time.Time) ([]models.Order, error) {
	var orders []models.Order
	if err := r.db.WithContext(ctx).
		Where("receiver_store_id = ? AND status = ?", storeID, models.StatusCompleted).
		Where("completed_at >= ? AND completed_at < ?", start, end).
		Where("NOT EXISTS (SELECT 1 FROM settlement_items si WHERE si.order_id = orders.id)").
		Order("completed_at asc, id asc").
		Find(&orders).Error; err != nil {
		return nil, translate(err)
	}
	return orders, nil
}

func (r *GormRepository) FindCustomerOrder(ctx context.Context, id uuid.UUID, forUpdate bool) (models.CustomerOrder, error) {
	var order models.CustomerOrder
	if err := r.lockable(ctx, forUpdate).First(&order, "id = ?", id).Error; err != nil {
		return models.CustomerOrder{}, translate(err)
	}
	return order, nil
}

func (r *GormRepository) CreateCustomerOrder(ctx context.Context, order *models.CustomerOrder) error {
	return translate(r.db.WithContext(ctx).Create(order).Error)
}

func (r *GormRepository) SaveCustomerOrder(ctx context.Context, order *models.CustomerOrder) error {
	if order.ID == uuid.Nil {
		return ErrNotFound
	}
	expected := order.Version
	order.Version = expected + 1

	res := r.db.WithContext(ctx).Model(order).
		Where("version = ?", expected).
		Select("*").Omit("id", "created_at").
		Updates(order)
	if res.Error != nil {
		order.Version = expected
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		order.Version = expected
		return ErrConflict
	}
	return nil
}

func (r *GormRepository) ListPendingCustomerOrders(ctx context.Context) ([]models.CustomerOrder, error) {
	var orders []models.CustomerOrder
	if err := r.db.WithContext(ctx).
		Where("order_status = ? AND assigned_store_id IS NULL", models.StatusPending).
		Order("created_at asc").
		Find(&orders).Error; err != nil {
		return nil, translate(err)
	}
	return orders, nil
}

func (r *GormRepository) ListUnlinkedAssignments(ctx context.Context) ([]models.CustomerOrder, error) {
	var orders []models.CustomerOrder
	if err := r.db.WithContext(ctx).
		Where("order_status = ? AND linked_order_id IS NULL", models.StatusAssigned).
		Find(&orders).Error; err != nil {
		return nil, translate(err)
	}
	return orders, nil
}

func (r *GormRepository) CreateSettlement(ctx context.Context, settlement *models.Settlement) error {
	return translate(r.db.WithContext(ctx).Create(settlement).Error)
}

func (r *GormRepository) FindSettlement(ctx context.Context, id uuid.UUID, forUpdate bool) (models.Settlement, error) {
	var settlement models.Settlement
	if err := r.lockable(ctx, forUpdate).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("completed_at asc, id asc") }).
		First(&settlement, "id = ?", id).Error; err != nil {
		return models.Settlement{}, translate(err)
	}
	return settlement, nil
}

func (r *GormRepository) FindSettlementByPeriod(ctx context.Context, storeID uuid.UUID, start, end time.Time) (models.Settlement, error) {
	var settlement models.Settlement
	if err := r.db.WithContext(ctx).
		Preload("Items").
		First(&settlement, "store_id = ? AND period_start = ? AND period_end = ?", storeID, start, end).Error; err != nil {
		return models.Settlement{}, translate(err)
	}
	return settlement, nil
}

func (r *GormRepository) CompleteSettlement(ctx context.Context, settlement *models.Settlement) error {
	res := r.db.WithContext(ctx).Model(&models.Settlement{}).
		Where("id = ? AND status = ?", settlement.ID, models.SettlementPending).
		Updates(map[string]any{
			"status":            models.SettlementCompleted,
			"processed_at":      settlement.ProcessedAt,
			"order_count":       settlement.OrderCount,
			"total_amount":      settlement.TotalAmount,
			"commission_amount": settlement.CommissionAmount,
			"net_amount":        settlement.NetAmount,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	settlement.Status = models.SettlementCompleted
	return nil
}

func (r *GormRepository) ListSettlements(ctx context.Context, filter SettlementFilter) ([]models.Settlement, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Settlement{})
	if filter.StoreID != nil {
		query = query.Where("store_id = ?", *filter.StoreID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}

	var settlements []models.Settlement
	if err := query.Order("period_start desc, store_id asc").Find(&settlements).Error; err != nil {
		return nil, 0, translate(err)
	}
	return settlements, total, nil
}

func (r *GormRepository) RecordUrgentAlert(ctx context.Context, alert *models.UrgentAlert) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
		Create(alert)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormRepository) lockable(ctx context.Context, forUpdate bool) *gorm.DB {
	db := r.db.WithContext(ctx)
	if forUpdate {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrConflict
	}
	return err
}
