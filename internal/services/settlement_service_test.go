package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/floradispatch/internal/config"
	"github.com/example/floradispatch/internal/models"
	"github.com/example/floradispatch/internal/repositories"
)

var weekStart = time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC)

func seedCompletedOrder(t *testing.T, repo repositories.Repository, sender, receiver uuid.UUID, subtotal int64, completedAt time.Time) models.Order {
	t.Helper()
	order := seedOrder(t, repo, sender, subtotal)
	stored, err := repo.FindOrder(context.Background(), order.ID, false)
	require.NoError(t, err)
	stored.ReceiverStoreID = &receiver
	stored.Status = models.StatusCompleted
	stored.CompletedAt = &completedAt
	require.NoError(t, repo.SaveOrder(context.Background(), &stored))
	return stored
}

func TestGenerateForStoreClaimsCompletedOrders(t *testing.T) {
	ctx := context.Background()
	deps, repo := newTestDeps(t)
	settlements := NewSettlementService(deps)

	sender := seedStore(t, repo, "sender", "부산광역시 해운대구")
	receiver := seedStore(t, repo, "receiver", "서울특별시 강남구")
	seedCompletedOrder(t, repo, sender.ID, receiver.ID, 100000, weekStart.Add(26*time.Hour))
	seedCompletedOrder(t, repo, sender.ID, receiver.ID, 33333, weekStart.Add(50*time.Hour))
	seedCompletedOrder(t, repo, sender.ID, receiver.ID, 50000, weekStart.AddDate(0, 0, 7))

	run, err := settlements.GenerateForStore(ctx, receiver.ID, weekStart, weekStart.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.True(t, run.Created)

	s := run.Settlement
	assert.Equal(t, 2, s.OrderCount)
	assert.Equal(t, int64(133333), s.TotalAmount)
	assert.Equal(t, int64(25000+8333), s.CommissionAmount)
	assert.Equal(t, s.TotalAmount-s.CommissionAmount, s.NetAmount)

	var amount, commission, net int64
	for _, item := range s.Items {
		amount += item.Amount
		commission += item.CommissionAmount
		net += item.NetAmount
		assert.Equal(t, int64(2500), item.CommissionRate)
	}
	assert.Equal(t, s.TotalAmount, amount)
	assert.Equal(t, s.CommissionAmount, commission)
	assert.Equal(t, s.NetAmount, net)

	again, err := settlements.GenerateForStore(ctx, receiver.ID, weekStart, weekStart.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, s.ID, again.Settlement.ID)
}

func TestGenerateUsesStoreRate(t *testing.T) {
	ctx := context.Background()
	deps, repo := newTestDeps(t)
	settlements := NewSettlementService(deps)

	rate := 0.1
	receiver := models.Store{BusinessName: "low", Status: models.StoreStatusActive, IsOpen: true, CommissionRate: &rate}
	require.NoError(t, repo.CreateStore(ctx, &receiver))
	seedCompletedOrder(t, repo, uuid.New(), receiver.ID, 100000, weekStart.Add(time.Hour))

	run, err := settlements.GenerateForStore(ctx, receiver.ID, weekStart, weekStart.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Equal(t, int64(10000), run.Settlement.CommissionAmount)
	assert.Equal(t, int64(90000), run.Settlement.NetAmount)
}

func TestEmptySettlementIsValid(t *testing.T) {
	ctx := context.Background()
	deps, repo := newTestDeps(t)
	store := seedStore(t, repo, "quiet", "서울특별시 강남구")

	run, err := NewSettlementService(deps).GenerateForStore(ctx, store.ID, weekStart, weekStart.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.True(t, run.Created)
	assert.Zero(t, run.Settlement.OrderCount)
	assert.Zero(t, run.Settlement.NetAmount)
}

func TestOverlappingSettlementsNeverShareAnOrder(t *testing.T) {
	ctx := context.Background()
	deps, repo := newTestDeps(t)
	settlements := NewSettlementService(deps)

	receiver := seedStore(t, repo, "receiver", "서울특별시 강남구")
	order := seedCompletedOrder(t, repo, uuid.New(), receiver.ID, 100000, weekStart.Add(30*time.Hour))

	periods := [][2]time.Time{
		{weekStart, weekStart.AddDate(0, 0, 7)},
		{weekStart.AddDate(0, 0, 1), weekStart.AddDate(0, 0, 8)},
	}
	runs := make([]SettlementRun, len(periods))
	errs := make([]error, len(periods))

	var wg sync.WaitGroup
	for i, p := range periods {
		wg.Add(1)
		go func(i int, start, end time.Time) {
			defer wg.Done()
			runs[i], errs[i] = settlements.GenerateForStore(ctx, receiver.ID, start, end)
		}(i, p[0], p[1])
	}
	wg.Wait()

	claims := 0
	for i := range periods {
		if errs[i] != nil {
			assert.ErrorIs(t, errs[i], ErrSettlementConflict)
			continue
		}
		for _, item := range runs[i].Settlement.Items {
			if item.OrderID == order.ID {
				claims++
			}
		}
	}
	assert.Equal(t, 1, claims)
}

func TestGenerateSkipsInactiveAndHeadquarters(t *testing.T) {
	ctx := context.Background()
	deps, repo := newTestDeps(t)

	active := seedStore(t, repo, "active", "서울특별시 강남구")
	suspended := models.Store{BusinessName: "suspended", Status: models.StoreStatusSuspended}
	require.NoError(t, repo.CreateStore(ctx, &suspended))

	runs, err := NewSettlementService(deps).Generate(ctx, weekStart, weekStart.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, active.ID, runs[0].StoreID)

	_, err = NewSettlementService(deps).Generate(ctx, weekStart, weekStart)
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestGenerateForStoreRejectsInactiveAndHeadquarters(t *testing.T) {
	ctx := context.Background()
	deps, repo := newTestDeps(t)
	settlements := NewSettlementService(deps)
	end := weekStart.AddDate(0, 0, 7)

	suspended := models.Store{BusinessName: "suspended", Status: models.StoreStatusSuspended}
	require.NoError(t, repo.CreateStore(ctx, &suspended))
	seedCompletedOrder(t, repo, uuid.New(), suspended.ID, 100000, weekStart.Add(time.Hour))

	_, err := settlements.GenerateForStore(ctx, suspended.ID, weekStart, end)
	assert.ErrorIs(t, err, ErrPreconditionFailed)

	_, err = settlements.GenerateForStore(ctx, deps.Config.HeadquartersStoreID, weekStart, end)
	assert.ErrorIs(t, err, ErrPreconditionFailed)

	listed, total, err := settlements.List(ctx, repositories.SettlementFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, listed)
}

func TestGenerateStopsWhenCancelled(t *testing.T) {
	deps, repo := newTestDeps(t)
	seedStore(t, repo, "a", "서울특별시 강남구")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSettlementService(deps).Generate(ctx, weekStart, weekStart.AddDate(0, 0, 7))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessIsOneWay(t *testing.T) {
	ctx := context.Background()
	deps, repo := newTestDeps(t)
	settlements := NewSettlementService(deps)

	receiver := seedStore(t, repo, "receiver", "서울특별시 강남구")
	seedCompletedOrder(t, repo, uuid.New(), receiver.ID, 100000, weekStart.Add(time.Hour))
	run, err := settlements.GenerateForStore(ctx, receiver.ID, weekStart, weekStart.AddDate(0, 0, 7))
	require.NoError(t, err)

	processed, err := settlements.Process(ctx, run.Settlement.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementCompleted, processed.Status)
	require.NotNil(t, processed.ProcessedAt)
	assert.Equal(t, int64(75000), processed.NetAmount)

	_, err = settlements.Process(ctx, run.Settlement.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = settlements.Process(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	summary, err := settlements.Summary(ctx, receiver.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.CompletedCount)
	assert.Equal(t, int64(75000), summary.CompletedNet)
	assert.Zero(t, summary.PendingCount)
}

func TestSchedulerNextRunAndPeriod(t *testing.T) {
	deps, _ := newTestDeps(t)
	sched := NewScheduler(deps, config.SettlementConfig{Enabled: true, Weekday: time.Monday, Hour: 2}, nil)

	// 2026-10-14 is a Wednesday.
	wed := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	next := sched.NextRun(wed)
	assert.Equal(t, time.Date(2026, 10, 19, 2, 0, 0, 0, time.UTC), next)

	mondayEarly := time.Date(2026, 10, 19, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, next, sched.NextRun(mondayEarly))
	assert.Equal(t, time.Date(2026, 10, 26, 2, 0, 0, 0, time.UTC), sched.NextRun(next))

	start, end := sched.PeriodFor(next)
	assert.Equal(t, time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), end)
}

func TestSchedulerUsesConfiguredZone(t *testing.T) {
	deps, _ := newTestDeps(t)
	seoul := time.FixedZone("KST", 9*60*60)
	deps.Config.Location = seoul
	sched := NewScheduler(deps, config.SettlementConfig{Enabled: true, Weekday: time.Monday, Hour: 2}, nil)

	// Sunday 18:00 UTC is already Monday 03:00 in Seoul.
	now := time.Date(2026, 10, 18, 18, 0, 0, 0, time.UTC)
	next := sched.NextRun(now)
	assert.Equal(t, time.Date(2026, 10, 26, 2, 0, 0, 0, seoul).Unix(), next.Unix())
}
