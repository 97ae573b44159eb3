package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRegistryFeedsEligibility(t *testing.T) {
	ctx := context.Background()
	deps, repo := newTestDeps(t)
	stores := NewStoreService(deps)

	store, err := stores.CreateStore(ctx, StoreInput{
		BusinessName: " 강남플라워 ",
		ServiceAreas: []string{"서울 강남구", "서울특별시 강남구", "  "},
		IsOpen:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, "강남플라워", store.BusinessName)
	assert.Equal(t, []string{"서울특별시 강남구"}, store.ServiceAreas)

	area, err := stores.AddDeliveryArea(ctx, store.ID, "서울 강남구", 70000)
	require.NoError(t, err)
	assert.Equal(t, "서울특별시 강남구", area.AreaName)

	_, err = stores.SetAreaPricing(ctx, store.ID, "서울 강남구", "wreath-3", 80000, true)
	require.NoError(t, err)
	_, err = stores.SetAreaPricing(ctx, store.ID, "서울특별시 강남구", "wreath-3", 90000, true)
	assert.ErrorIs(t, err, ErrPreconditionFailed)

	order := seedOrder(t, repo, uuid.New(), 100000)
	result, err := NewEligibilityResolver(deps).Resolve(ctx, OrderRef{Source: SourceClient, ID: order.ID})
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, int64(80000), result.Candidates[0].EffectivePrice)
	assert.Equal(t, PriceSourceOverride, result.Candidates[0].PriceSource)
}

func TestStoreRegistryRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	deps, _ := newTestDeps(t)
	stores := NewStoreService(deps)

	rate := 1.5
	_, err := stores.CreateStore(ctx, StoreInput{BusinessName: "x", CommissionRate: &rate})
	assert.ErrorIs(t, err, ErrPreconditionFailed)

	_, err = stores.AddDeliveryArea(ctx, uuid.New(), "서울 강남구", 1000)
	assert.ErrorIs(t, err, ErrNotFound)
}
