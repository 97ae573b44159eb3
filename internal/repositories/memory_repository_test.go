package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/floradispatch/internal/models"
)

func TestMemoryRepositorySaveOrderVersionGuard(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	order := &models.Order{OrderNumber: "B-1", Status: models.StatusPending}
	require.NoError(t, repo.CreateOrder(ctx, order))

	first, err := repo.FindOrder(ctx, order.ID, true)
	require.NoError(t, err)
	second, err := repo.FindOrder(ctx, order.ID, true)
	require.NoError(t, err)

	storeID := uuid.New()
	first.ReceiverStoreID = &storeID
	require.NoError(t, repo.SaveOrder(ctx, &first))
	assert.Equal(t, 1, first.Version)

	other := uuid.New()
	second.ReceiverStoreID = &other
	assert.ErrorIs(t, repo.SaveOrder(ctx, &second), ErrConflict)

	stored, err := repo.FindOrder(ctx, order.ID, false)
	require.NoError(t, err)
	require.NotNil(t, stored.ReceiverStoreID)
	assert.Equal(t, storeID, *stored.ReceiverStoreID)
}

func TestMemoryRepositoryTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	boom := errors.New("boom")
	err := repo.Transaction(ctx, func(tx Repository) error {
		require.NoError(t, tx.CreateOrder(ctx, &models.Order{OrderNumber: "B-2", Status: models.StatusPending}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	open, err := repo.ListOpenOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestMemoryRepositoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	store := &models.Store{BusinessName: "Rose", ServiceAreas: []string{"서울특별시 강남구"}}
	require.NoError(t, repo.CreateStore(ctx, store))

	loaded, err := repo.FindStore(ctx, store.ID)
	require.NoError(t, err)
	loaded.ServiceAreas[0] = "changed"

	again, err := repo.FindStore(ctx, store.ID)
	require.NoError(t, err)
	assert.Equal(t, "서울특별시 강남구", again.ServiceAreas[0])
}

func TestMemoryRepositorySettlementClaimsAreExclusive(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	storeID := uuid.New()
	orderID := uuid.New()
	start := time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC)

	first := &models.Settlement{
		StoreID:     storeID,
		PeriodStart: start,
		PeriodEnd:   start.AddDate(0, 0, 7),
		Items:       []models.SettlementItem{{OrderID: orderID, Amount: 1000}},
	}
	require.NoError(t, repo.CreateSettlement(ctx, first))

	overlapping := &models.Settlement{
		StoreID:     storeID,
		PeriodStart: start.AddDate(0, 0, 1),
		PeriodEnd:   start.AddDate(0, 0, 8),
		Items:       []models.SettlementItem{{OrderID: orderID, Amount: 1000}},
	}
	assert.ErrorIs(t, repo.CreateSettlement(ctx, overlapping), ErrConflict)

	samePeriod := &models.Settlement{StoreID: storeID, PeriodStart: start, PeriodEnd: start.AddDate(0, 0, 7)}
	assert.ErrorIs(t, repo.CreateSettlement(ctx, samePeriod), ErrConflict)
}

func TestMemoryRepositoryRecordUrgentAlertOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	orderID := uuid.New()

	created, err := repo.RecordUrgentAlert(ctx, &models.UrgentAlert{OrderID: orderID})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.RecordUrgentAlert(ctx, &models.UrgentAlert{OrderID: orderID})
	require.NoError(t, err)
	assert.False(t, created)
}

func TestMemoryRepositoryCompleteSettlementOnlyOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	settlement := &models.Settlement{StoreID: uuid.New(), Status: models.SettlementPending}
	require.NoError(t, repo.CreateSettlement(ctx, settlement))

	now := time.Now()
	settlement.ProcessedAt = &now
	require.NoError(t, repo.CompleteSettlement(ctx, settlement))
	assert.ErrorIs(t, repo.CompleteSettlement(ctx, settlement), ErrConflict)
}

func TestMemoryRepositoryRollbackKeepsWritesMadeOutside(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	orderID := uuid.New()

	entered := make(chan struct{})
	release := make(chan struct{})
	txDone := make(chan error, 1)
	go func() {
		txDone <- repo.Transaction(ctx, func(tx Repository) error {
			close(entered)
			<-release
			return errors.New("precondition failed")
		})
	}()
	<-entered

	recorded := make(chan bool, 1)
	go func() {
		created, err := repo.RecordUrgentAlert(ctx, &models.UrgentAlert{OrderID: orderID})
		assert.NoError(t, err)
		recorded <- created
	}()
	stored := make(chan struct{})
	go func() {
		assert.NoError(t, repo.CreateStore(ctx, &models.Store{BusinessName: "late"}))
		close(stored)
	}()

	assert.Never(t, func() bool { return len(recorded) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	close(release)
	require.Error(t, <-txDone)
	assert.True(t, <-recorded)
	<-stored

	created, err := repo.RecordUrgentAlert(ctx, &models.UrgentAlert{OrderID: orderID})
	require.NoError(t, err)
	assert.False(t, created)

	stores, err := repo.ListStores(ctx)
	require.NoError(t, err)
	assert.Len(t, stores, 1)
}

func TestMemoryRepositoryNestedTransactionJoinsOuter(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	err := repo.Transaction(ctx, func(tx Repository) error {
		return tx.Transaction(ctx, func(inner Repository) error {
			return inner.CreateOrder(ctx, &models.Order{OrderNumber: "B-3", Status: models.StatusPending})
		})
	})
	require.NoError(t, err)

	open, err := repo.ListOpenOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}
