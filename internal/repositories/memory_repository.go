package repositories

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/floradispatch/internal/models"
)

// MemoryRepository keeps everything in process. It is used by tests and by
// local runs started with DATABASE_URL=memory. Transactions are serialized and
// roll back by restoring a snapshot; writes outside a transaction wait for the
// open one to finish so a rollback never discards them.
type MemoryRepository struct {
	db   *memoryDB
	inTx bool
}

type memoryDB struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	state *memoryState
	now   func() time.Time
}

type memoryState struct {
	stores         map[uuid.UUID]models.Store
	storeOrder     []uuid.UUID
	areas          []models.DeliveryArea
	pricing        []models.AreaProductPricing
	orders         map[uuid.UUID]models.Order
	customerOrders map[uuid.UUID]models.CustomerOrder
	settlements    map[uuid.UUID]models.Settlement
	claims         map[uuid.UUID]models.SettlementItem
	alerts         map[uuid.UUID]models.UrgentAlert
}

// NewMemoryRepository constructs an empty memory-backed repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{db: &memoryDB{
		state: &memoryState{
			stores:         make(map[uuid.UUID]models.Store),
			orders:         make(map[uuid.UUID]models.Order),
			customerOrders: make(map[uuid.UUID]models.CustomerOrder),
			settlements:    make(map[uuid.UUID]models.Settlement),
			claims:         make(map[uuid.UUID]models.SettlementItem),
			alerts:         make(map[uuid.UUID]models.UrgentAlert),
		},
		now: time.Now,
	}}
}

// Transaction nested inside a transaction joins the outer one.
func (r *MemoryRepository) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.inTx {
		return fn(r)
	}
	r.db.txMu.Lock()
	defer r.db.txMu.Unlock()

	r.db.mu.RLock()
	snapshot := r.db.state.clone()
	r.db.mu.RUnlock()

	if err := fn(&MemoryRepository{db: r.db, inTx: true}); err != nil {
		r.db.mu.Lock()
		r.db.state = snapshot
		r.db.mu.Unlock()
		return err
	}
	return nil
}

// lockWrite takes the write lock, first waiting out any open transaction
// when called outside one.
func (r *MemoryRepository) lockWrite() func() {
	if !r.inTx {
		r.db.txMu.Lock()
	}
	r.db.mu.Lock()
	return func() {
		r.db.mu.Unlock()
		if !r.inTx {
			r.db.txMu.Unlock()
		}
	}
}

func (r *MemoryRepository) ListStores(ctx context.Context) ([]models.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	stores := make([]models.Store, 0, len(r.db.state.storeOrder))
	for _, id := range r.db.state.storeOrder {
		stores = append(stores, cloneStore(r.db.state.stores[id]))
	}
	return stores, nil
}

func (r *MemoryRepository) FindStore(ctx context.Context, id uuid.UUID) (models.Store, error) {
	if err := ctx.Err(); err != nil {
		return models.Store{}, err
	}
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	store, ok := r.db.state.stores[id]
	if !ok {
		return models.Store{}, ErrNotFound
	}
	return cloneStore(store), nil
}

func (r *MemoryRepository) CreateStore(ctx context.Context, store *models.Store) error {
	defer r.lockWrite()()

	r.stamp(&store.BaseModel)
	if _, exists := r.db.state.stores[store.ID]; exists {
		return ErrConflict
	}
	r.db.state.stores[store.ID] = cloneStore(*store)
	r.db.state.storeOrder = append(r.db.state.storeOrder, store.ID)
	return nil
}

func (r *MemoryRepository) ListDeliveryAreas(ctx context.Context, storeIDs []uuid.UUID) ([]models.DeliveryArea, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []models.DeliveryArea
	for _, area := range r.db.state.areas {
		if slices.Contains(storeIDs, area.StoreID) {
			out = append(out, area)
		}
	}
	return out, nil
}

func (r *MemoryRepository) CreateDeliveryArea(ctx context.Context, area *models.DeliveryArea) error {
	defer r.lockWrite()()

	r.stamp(&area.BaseModel)
	r.db.state.areas = append(r.db.state.areas, *area)
	return nil
}

func (r *MemoryRepository) ListAreaProductPricing(ctx context.Context, storeIDs []uuid.UUID, productID string) ([]models.AreaProductPricing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if productID == "" {
		return nil, nil
	}
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []models.AreaProductPricing
	for _, row := range r.db.state.pricing {
		if row.ProductID == productID && slices.Contains(storeIDs, row.StoreID) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *MemoryRepository) CreateAreaProductPricing(ctx context.Context, pricing *models.AreaProductPricing) error {
	defer r.lockWrite()()

	for _, row := range r.db.state.pricing {
		if row.StoreID == pricing.StoreID && row.AreaName == pricing.AreaName && row.ProductID == pricing.ProductID {
			return ErrConflict
		}
	}
	r.stamp(&pricing.BaseModel)
	r.db.state.pricing = append(r.db.state.pricing, *pricing)
	return nil
}

func (r *MemoryRepository) FindOrder(ctx context.Context, id uuid.UUID, _ bool) (models.Order, error) {
	if err := ctx.Err(); err != nil {
		return models.Order{}, err
	}
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	order, ok := r.db.state.orders[id]
	if !ok {
		return models.Order{}, ErrNotFound
	}
	return cloneOrder(order), nil
}

func (r *MemoryRepository) CreateOrder(ctx context.Context, order *models.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer r.lockWrite()()

	r.stamp(&order.BaseModel)
	if _, exists := r.db.state.orders[order.ID]; exists {
		return ErrConflict
	}
	for _, existing := range r.db.state.orders {
		if order.OrderNumber != "" && existing.OrderNumber == order.OrderNumber {
			return ErrConflict
		}
		if order.CustomerOrderID != nil && existing.CustomerOrderID != nil &&
			*existing.CustomerOrderID == *order.CustomerOrderID && !existing.Status.Terminal() {
			return ErrConflict
		}
	}
	r.db.state.orders[order.ID] = cloneOrder(*order)
	return nil
}

func (r *MemoryRepository) SaveOrder(ctx context.Context, order *models.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer r.lockWrite()()

	current, ok := r.db.state.orders[order.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != order.Version {
		return ErrConflict
	}
	order.Version++
	order.CreatedAt = current.CreatedAt
	order.UpdatedAt = r.db.now().UTC()
	r.db.state.orders[order.ID] = cloneOrder(*order)
	return nil
}

func (r *MemoryRepository) ListOpenOrders(ctx context.Context) ([]models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []models.Order
	for _, order := range r.db.state.orders {
		if !order.Status.Terminal() {
			out = append(out, cloneOrder(order))
		}
	}
	sort.Slice(out, func(i, j int) bool { return createdBefore(out[i].BaseModel, out[j].BaseModel) })
	return out, nil
}

func (r *MemoryRepository) ListUnsettledOrders(ctx context.Context, storeID uuid.UUID, start, end time.Time) ([]models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []models.Order
	for _, order := range r.db.state.orders {
		if order.ReceiverStoreID == nil || *order.ReceiverStoreID != storeID {
			continue
		}
		if order.Status != models.StatusCompleted || order.CompletedAt == nil {
			continue
		}
		if order.CompletedAt.Before(start) || !order.CompletedAt.Before(end) {
			continue
		}
		if _, claimed := r.db.state.claims[order.ID]; claimed {
			continue
		}
		out = append(out, cloneOrder(order))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CompletedAt.Equal(*out[j].CompletedAt) {
			return out[i].CompletedAt.Before(*out[j].CompletedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r *MemoryRepository) FindCustomerOrder(ctx context.Context, id uuid.UUID, _ bool) (models.CustomerOrder, error) {
	if err := ctx.Err(); err != nil {
		return models.CustomerOrder{}, err
	}
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	order, ok := r.db.state.customerOrders[id]
	if !ok {
		return models.CustomerOrder{}, ErrNotFound
	}
	return cloneCustomerOrder(order), nil
}

func (r *MemoryRepository) CreateCustomerOrder(ctx context.Context, order *models.CustomerOrder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer r.lockWrite()()

	r.stamp(&order.BaseModel)
	if _, exists := r.db.state.customerOrders[order.ID]; exists {
		return ErrConflict
	}
	r.db.state.customerOrders[order.ID] = cloneCustomerOrder(*order)
	return nil
}

func (r *MemoryRepository) SaveCustomerOrder(ctx context.Context, order *models.CustomerOrder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer r.lockWrite()()

	current, ok := r.db.state.customerOrders[order.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != order.Version {
		return ErrConflict
	}
	order.Version++
	order.CreatedAt = current.CreatedAt
	order.UpdatedAt = r.db.now().UTC()
	r.db.state.customerOrders[order.ID] = cloneCustomerOrder(*order)
	return nil
}

func (r *MemoryRepository) ListPendingCustomerOrders(ctx context.Context) ([]models.CustomerOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []models.CustomerOrder
	for _, order := range r.db.state.customerOrders {
		if order.OrderStatus == models.StatusPending && order.AssignedStoreID == nil {
			out = append(out, cloneCustomerOrder(order))
		}
	}
	sort.Slice(out, func(i, j int) bool { return createdBefore(out[i].BaseModel, out[j].BaseModel) })
	return out, nil
}

func (r *MemoryRepository) ListUnlinkedAssignments(ctx context.Context) ([]models.CustomerOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []models.CustomerOrder
	for _, order := range r.db.state.customerOrders {
		if order.OrderStatus == models.StatusAssigned && order.LinkedOrderID == nil {
			out = append(out, cloneCustomerOrder(order))
		}
	}
	sort.Slice(out, func(i, j int) bool { return createdBefore(out[i].BaseModel, out[j].BaseModel) })
	return out, nil
}

func (r *MemoryRepository) CreateSettlement(ctx context.Context, settlement *models.Settlement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer r.lockWrite()()

	for _, existing := range r.db.state.settlements {
		if existing.StoreID == settlement.StoreID &&
			existing.PeriodStart.Equal(settlement.PeriodStart) &&
			existing.PeriodEnd.Equal(settlement.PeriodEnd) {
			return ErrConflict
		}
	}
	for _, item := range settlement.Items {
		if _, claimed := r.db.state.claims[item.OrderID]; claimed {
			return ErrConflict
		}
	}

	r.stamp(&settlement.BaseModel)
	for i := range settlement.Items {
		r.stamp(&settlement.Items[i].BaseModel)
		settlement.Items[i].SettlementID = settlement.ID
		r.db.state.claims[settlement.Items[i].OrderID] = settlement.Items[i]
	}
	r.db.state.settlements[settlement.ID] = cloneSettlement(*settlement)
	return nil
}

func (r *MemoryRepository) FindSettlement(ctx context.Context, id uuid.UUID, _ bool) (models.Settlement, error) {
	if err := ctx.Err(); err != nil {
		return models.Settlement{}, err
	}
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	settlement, ok := r.db.state.settlements[id]
	if !ok {
		return models.Settlement{}, ErrNotFound
	}
	out := cloneSettlement(settlement)
	sort.Slice(out.Items, func(i, j int) bool {
		if !out.Items[i].CompletedAt.Equal(out.Items[j].CompletedAt) {
			return out.Items[i].CompletedAt.Before(out.Items[j].CompletedAt)
		}
		return out.Items[i].ID.String() < out.Items[j].ID.String()
	})
	return out, nil
}

func (r *MemoryRepository) FindSettlementByPeriod(ctx context.Context, storeID uuid.UUID, start, end time.Time) (models.Settlement, error) {
	if err := ctx.Err(); err != nil {
		return models.Settlement{}, err
	}
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	for _, settlement := range r.db.state.settlements {
		if settlement.StoreID == storeID && settlement.PeriodStart.Equal(start) && settlement.PeriodEnd.Equal(end) {
			return cloneSettlement(settlement), nil
		}
	}
	return models.Settlement{}, ErrNotFound
}

func (r *MemoryRepository) CompleteSettlement(ctx context.Context, settlement *models.Settlement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer r.lockWrite()()

	current, ok := r.db.state.settlements[settlement.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Status != models.SettlementPending {
		return ErrConflict
	}
	current.Status = models.SettlementCompleted
	current.ProcessedAt = cloneTime(settlement.ProcessedAt)
	current.OrderCount = settlement.OrderCount
	current.TotalAmount = settlement.TotalAmount
	current.CommissionAmount = settlement.CommissionAmount
	current.NetAmount = settlement.NetAmount
	current.UpdatedAt = r.db.now().UTC()
	r.db.state.settlements[settlement.ID] = current
	settlement.Status = models.SettlementCompleted
	return nil
}

func (r *MemoryRepository) ListSettlements(ctx context.Context, filter SettlementFilter) ([]models.Settlement, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var matched []models.Settlement
	for _, settlement := range r.db.state.settlements {
		if filter.StoreID != nil && settlement.StoreID != *filter.StoreID {
			continue
		}
		if filter.Status != "" && settlement.Status != filter.Status {
			continue
		}
		s := cloneSettlement(settlement)
		s.Items = nil
		matched = append(matched, s)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].PeriodStart.Equal(matched[j].PeriodStart) {
			return matched[i].PeriodStart.After(matched[j].PeriodStart)
		}
		return matched[i].StoreID.String() < matched[j].StoreID.String()
	})

	total := int64(len(matched))
	if filter.Limit > 0 {
		start := min(filter.Offset, len(matched))
		end := min(start+filter.Limit, len(matched))
		matched = matched[start:end]
	}
	return matched, total, nil
}

func (r *MemoryRepository) RecordUrgentAlert(ctx context.Context, alert *models.UrgentAlert) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	defer r.lockWrite()()

	if _, exists := r.db.state.alerts[alert.OrderID]; exists {
		return false, nil
	}
	r.stamp(&alert.BaseModel)
	r.db.state.alerts[alert.OrderID] = *alert
	return true, nil
}

func (r *MemoryRepository) stamp(base *models.BaseModel) {
	if base.ID == uuid.Nil {
		base.ID = uuid.New()
	}
	now := r.db.now().UTC()
	if base.CreatedAt.IsZero() {
		base.CreatedAt = now
	}
	if base.UpdatedAt.IsZero() {
		base.UpdatedAt = base.CreatedAt
	}
}

func createdBefore(a, b models.BaseModel) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

func (s *memoryState) clone() *memoryState {
	out := &memoryState{
		stores:         make(map[uuid.UUID]models.Store, len(s.stores)),
		storeOrder:     slices.Clone(s.storeOrder),
		areas:          slices.Clone(s.areas),
		pricing:        slices.Clone(s.pricing),
		orders:         make(map[uuid.UUID]models.Order, len(s.orders)),
		customerOrders: make(map[uuid.UUID]models.CustomerOrder, len(s.customerOrders)),
		settlements:    make(map[uuid.UUID]models.Settlement, len(s.settlements)),
		claims:         make(map[uuid.UUID]models.SettlementItem, len(s.claims)),
		alerts:         make(map[uuid.UUID]models.UrgentAlert, len(s.alerts)),
	}
	for k, v := range s.stores {
		out.stores[k] = cloneStore(v)
	}
	for k, v := range s.orders {
		out.orders[k] = cloneOrder(v)
	}
	for k, v := range s.customerOrders {
		out.customerOrders[k] = cloneCustomerOrder(v)
	}
	for k, v := range s.settlements {
		out.settlements[k] = cloneSettlement(v)
	}
	for k, v := range s.claims {
		out.claims[k] = v
	}
	for k, v := range s.alerts {
		out.alerts[k] = v
	}
	return out
}

func cloneStore(s models.Store) models.Store {
	s.ServiceAreas = slices.Clone(s.ServiceAreas)
	if s.CommissionRate != nil {
		rate := *s.CommissionRate
		s.CommissionRate = &rate
	}
	return s
}

func cloneOrder(o models.Order) models.Order {
	o.ReceiverStoreID = cloneID(o.ReceiverStoreID)
	o.CustomerOrderID = cloneID(o.CustomerOrderID)
	o.AssignedAt = cloneTime(o.AssignedAt)
	o.AcceptedAt = cloneTime(o.AcceptedAt)
	o.CompletedAt = cloneTime(o.CompletedAt)
	o.CompletionPhotos = slices.Clone(o.CompletionPhotos)
	return o
}

func cloneCustomerOrder(o models.CustomerOrder) models.CustomerOrder {
	o.CustomerID = cloneID(o.CustomerID)
	o.AssignedStoreID = cloneID(o.AssignedStoreID)
	o.LinkedOrderID = cloneID(o.LinkedOrderID)
	o.AssignedAt = cloneTime(o.AssignedAt)
	o.CompletedAt = cloneTime(o.CompletedAt)
	return o
}

func cloneSettlement(s models.Settlement) models.Settlement {
	s.ProcessedAt = cloneTime(s.ProcessedAt)
	s.Items = slices.Clone(s.Items)
	return s
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
