package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/floradispatch/internal/models"
	"github.com/example/floradispatch/internal/repositories"
)

// SettlementRun reports what generation did for one store.
type SettlementRun struct {
	StoreID    uuid.UUID         `json:"store_id"`
	StoreName  string            `json:"store_name"`
	Settlement models.Settlement `json:"settlement"`
	Created    bool              `json:"created"`
}

// SettlementSummary is a store's settlement totals split by status.
type SettlementSummary struct {
	StoreID          uuid.UUID `json:"store_id"`
	PendingCount     int       `json:"pending_count"`
	PendingNet       int64     `json:"pending_net_amount"`
	CompletedCount   int       `json:"completed_count"`
	CompletedNet     int64     `json:"completed_net_amount"`
	OrderCount       int       `json:"order_count"`
	TotalAmount      int64     `json:"total_amount"`
	CommissionAmount int64     `json:"commission_amount"`
	NetAmount        int64     `json:"net_amount"`
}

type SettlementService struct {
	deps       Deps
	calculator CommissionCalculator
	normalizer Normalizer
}

func NewSettlementService(deps Deps) *SettlementService {
	calc := deps.calculator()
	return &SettlementService{deps: deps, calculator: calc, normalizer: NewNormalizer(calc)}
}

// Generate settles [start, end) for every active store. One store failing
// does not stop the others; the joined error lists every failure.
func (s *SettlementService) Generate(ctx context.Context, start, end time.Time) ([]SettlementRun, error) {
	if err := validPeriod(start, end); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stores, err := s.deps.Repo.ListStores(ctx)
	if err != nil {
		return nil, storeErr("list stores", err)
	}

	var (
		runs []SettlementRun
		errs []error
	)
	for _, store := range stores {
		if err := ctx.Err(); err != nil {
			return runs, err
		}
		if store.Status != models.StoreStatusActive || store.ID == s.deps.Config.HeadquartersStoreID {
			continue
		}
		run, err := s.GenerateForStore(ctx, store.ID, start, end)
		if err != nil {
			s.deps.Logger.Error("settlement generation failed",
				zap.String("store_id", store.ID.String()),
				zap.Time("period_start", start),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("store %s: %w", store.ID, err))
			continue
		}
		runs = append(runs, run)
	}
	return runs, errors.Join(errs...)
}

// GenerateForStore claims the store's unsettled completed orders in [start, end).
// Running it again for the same period returns the existing settlement. Only
// active stores are settled.
func (s *SettlementService) GenerateForStore(ctx context.Context, storeID uuid.UUID, start, end time.Time) (SettlementRun, error) {
	if err := validPeriod(start, end); err != nil {
		return SettlementRun{}, err
	}
	if storeID == s.deps.Config.HeadquartersStoreID {
		return SettlementRun{}, fmt.Errorf("%w: headquarters is not settled", ErrPreconditionFailed)
	}
	start, end = start.UTC(), end.UTC()

	unlock := s.deps.Locks.Lock("settlement:" + storeID.String())
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, s.deps.Config.DataStoreTimeout)
	defer cancel()

	var run SettlementRun
	err := s.deps.Repo.Transaction(ctx, func(tx repositories.Repository) error {
		store, err := tx.FindStore(ctx, storeID)
		if err != nil {
			return storeErr("find store", err)
		}
		if store.Status != models.StoreStatusActive {
			return fmt.Errorf("%w: store %s is %s", ErrPreconditionFailed, storeID, store.Status)
		}
		run = SettlementRun{StoreID: store.ID, StoreName: store.BusinessName}

		existing, err := tx.FindSettlementByPeriod(ctx, storeID, start, end)
		if err == nil {
			run.Settlement = existing
			return nil
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return storeErr("find settlement", err)
		}

		orders, err := tx.ListUnsettledOrders(ctx, storeID, start, end)
		if err != nil {
			return storeErr("list unsettled orders", err)
		}

		settlement := s.build(store, orders, start, end)
		if err := tx.CreateSettlement(ctx, &settlement); err != nil {
			if errors.Is(err, repositories.ErrConflict) {
				return fmt.Errorf("%w: store %s period %s", ErrSettlementConflict, storeID, start.Format(time.DateOnly))
			}
			return storeErr("create settlement", err)
		}
		run.Settlement = settlement
		run.Created = true
		return nil
	})
	if err != nil {
		return SettlementRun{}, err
	}

	if run.Created {
		s.deps.Metrics.SettlementsGenerated.Inc()
		s.deps.Logger.Info("settlement generated",
			zap.String("store_id", storeID.String()),
			zap.Int("orders", run.Settlement.OrderCount),
			zap.Int64("net_amount", run.Settlement.NetAmount),
		)
	}
	return run, nil
}

func (s *SettlementService) build(store models.Store, orders []models.Order, start, end time.Time) models.Settlement {
	settlement := models.Settlement{
		StoreID:     store.ID,
		PeriodStart: start,
		PeriodEnd:   end,
		Status:      models.SettlementPending,
		Items:       make([]models.SettlementItem, 0, len(orders)),
	}
	for _, order := range orders {
		amount := s.normalizer.FromOrder(order, &store).Pricing.Subtotal
		split := s.calculator.Calculate(amount, store.CommissionRate)
		item := models.SettlementItem{
			OrderID:          order.ID,
			StoreID:          store.ID,
			OrderNumber:      order.OrderNumber,
			Amount:           split.Amount,
			CommissionRate:   split.RateBps,
			CommissionAmount: split.Commission,
			NetAmount:        split.NetAmount,
		}
		if order.CompletedAt != nil {
			item.CompletedAt = order.CompletedAt.UTC()
		}
		settlement.Items = append(settlement.Items, item)
	}
	applyTotals(&settlement)
	return settlement
}

// applyTotals derives the settlement totals from its items.
func applyTotals(settlement *models.Settlement) {
	settlement.OrderCount = len(settlement.Items)
	settlement.TotalAmount, settlement.CommissionAmount, settlement.NetAmount = 0, 0, 0
	for _, item := range settlement.Items {
		settlement.TotalAmount += item.Amount
		settlement.CommissionAmount += item.CommissionAmount
		settlement.NetAmount += item.NetAmount
	}
}

// Process marks a pending settlement completed. Completed settlements are final.
func (s *SettlementService) Process(ctx context.Context, id uuid.UUID) (models.Settlement, error) {
	ctx, cancel := context.WithTimeout(ctx, s.deps.Config.DataStoreTimeout)
	defer cancel()

	var settlement models.Settlement
	err := s.deps.Repo.Transaction(ctx, func(tx repositories.Repository) error {
		var err error
		settlement, err = tx.FindSettlement(ctx, id, true)
		if err != nil {
			return storeErr("find settlement", err)
		}
		if settlement.Status != models.SettlementPending {
			return fmt.Errorf("%w: settlement is %s", ErrInvalidTransition, settlement.Status)
		}

		applyTotals(&settlement)
		now := s.deps.now()
		settlement.ProcessedAt = &now
		if err := tx.CompleteSettlement(ctx, &settlement); err != nil {
			if errors.Is(err, repositories.ErrConflict) {
				return fmt.Errorf("%w: settlement already processed", ErrInvalidTransition)
			}
			return storeErr("complete settlement", err)
		}
		return nil
	})
	if err != nil {
		return models.Settlement{}, err
	}
	return settlement, nil
}

func (s *SettlementService) Get(ctx context.Context, id uuid.UUID) (models.Settlement, error) {
	settlement, err := s.deps.Repo.FindSettlement(ctx, id, false)
	if err != nil {
		return models.Settlement{}, storeErr("find settlement", err)
	}
	return settlement, nil
}

func (s *SettlementService) List(ctx context.Context, filter repositories.SettlementFilter) ([]models.Settlement, int64, error) {
	settlements, total, err := s.deps.Repo.ListSettlements(ctx, filter)
	if err != nil {
		return nil, 0, storeErr("list settlements", err)
	}
	return settlements, total, nil
}

// Summary totals every settlement of one store.
func (s *SettlementService) Summary(ctx context.Context, storeID uuid.UUID) (SettlementSummary, error) {
	if _, err := s.deps.Repo.FindStore(ctx, storeID); err != nil {
		return SettlementSummary{}, storeErr("find store", err)
	}
	settlements, _, err := s.deps.Repo.ListSettlements(ctx, repositories.SettlementFilter{StoreID: &storeID})
	if err != nil {
		return SettlementSummary{}, storeErr("list settlements", err)
	}

	summary := SettlementSummary{StoreID: storeID}
	for _, settlement := range settlements {
		switch settlement.Status {
		case models.SettlementCompleted:
			summary.CompletedCount++
			summary.CompletedNet += settlement.NetAmount
		default:
			summary.PendingCount++
			summary.PendingNet += settlement.NetAmount
		}
		summary.OrderCount += settlement.OrderCount
		summary.TotalAmount += settlement.TotalAmount
		summary.CommissionAmount += settlement.CommissionAmount
		summary.NetAmount += settlement.NetAmount
	}
	return summary, nil
}

func validPeriod(start, end time.Time) error {
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return fmt.Errorf("%w: end must be after start", ErrInvalidPeriod)
	}
	return nil
}
