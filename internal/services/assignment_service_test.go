package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/floradispatch/internal/models"
)

func TestAssignCustomerOrderMaterializesFulfillmentOrder(t *testing.T) {
	ctx := context.Background()
	deps, repo := newTestDeps(t)
	svc := NewAssignmentService(deps)

	store := seedStore(t, repo, "종로꽃집", "서울특별시 종로구")
	customer := seedCustomerOrder(t, repo, uuid.New())

	result, err := svc.Assign(ctx, OrderRef{Source: SourceHomepage, ID: customer.ID}, store.ID, adminActor)
	require.NoError(t, err)
	require.NotNil(t, result.FulfillmentOrder)

	fulfillment, err := repo.FindOrder(ctx, *result.FulfillmentOrder, false)
	require.NoError(t, err)
	assert.Equal(t, deps.Config.HeadquartersStoreID, fulfillment.SenderStoreID)
	require.NotNil(t, fulfillment.ReceiverStoreID)
	assert.Equal(t, store.ID, *fulfillment.ReceiverStoreID)
	assert.Equal(t, models.StatusPending, fulfillment.Status)
	require.NotNil(t, fulfillment.CustomerOrderID)
	assert.Equal(t, customer.ID, *fulfillment.CustomerOrderID)
	assert.Equal(t, int64(100000), fulfillment.Subtotal)
	assert.Equal(t, int64(25000), fulfillment.Commission)
	assert.Equal(t, customer.RecipientName, fulfillment.RecipientName)
	assert.Equal(t, "근조화환", fulfillment.ProductType)

	stored, err := repo.FindCustomerOrder(ctx, customer.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, stored.OrderStatus)
	require.NotNil(t, stored.LinkedOrderID)
	assert.Equal(t, fulfillment.ID, *stored.LinkedOrderID)
	assert.NotNil(t, stored.AssignedAt)
}

func TestAssignRejectsAlreadyAssignedOrder(t *testing.T) {
	ctx := context.Background()
	deps, repo := newTestDeps(t)
	svc := NewAssignmentService(deps)

	first := seedStore(t, repo, "first", "서울특별시 강남구")
	second := seedStore(t, repo, "second", "서울특별시 강남구")
	order := seedOrder(t, repo, uuid.New(), 80000)
	ref := OrderRef{Source: SourceClient, ID: order.ID}

	_, err := svc.Assign(ctx, ref, first.ID, adminActor)
	require.NoError(t, err)

	_, err = svc.Assign(ctx, ref, second.ID, adminActor)
	assert.ErrorIs(t, err, ErrPreconditionFailed)
	_, err = svc.Assign(ctx, ref, first.ID, adminActor)
	assert.ErrorIs(t, err, ErrPreconditionFailed)

	stored, err := repo.FindOrder(ctx, order.ID, false)
	require.NoError(t, err)
	assert.Equal(t, first.ID, *stored.ReceiverStoreID)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestAssignRequiresAcceptingStore(t *testing.T) {
	ctx := context.Background()
	deps, repo := newTestDeps(t)
	svc := NewAssignmentService(deps)

	closed := models.Store{BusinessName: "closed", Status: models.StoreStatusActive, IsOpen: false}
	require.NoError(t, repo.CreateStore(ctx, &closed))
	suspended := models.Store{BusinessName: "suspended", Status: models.StoreStatusSuspended, IsOpen: true}
	require.NoError(t, repo.CreateStore(ctx, &suspended))
	customer := seedCustomerOrder(t, repo, uuid.New())
	ref := OrderRef{Source: SourceHomepage, ID: customer.ID}

	for _, storeID := range []uuid.UUID{closed.ID, suspended.ID, uuid.New(), deps.Config.HeadquartersStoreID} {
		_, err := svc.Assign(ctx, ref, storeID, adminActor)
		assert.ErrorIs(t, err, ErrPreconditionFailed)
	}

	stored, err := repo.FindCustomerOrder(ctx, customer.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.OrderStatus)
	assert.Nil(t, stored.LinkedOrderID)
	open, err := repo.ListOpenOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestAssignRequiresHeadquartersActor(t *testing.T) {
	deps, repo := newTestDeps(t)
	svc := NewAssignmentService(deps)
	store := seedStore(t, repo, "s", "서울특별시 강남구")
	order := seedOrder(t, repo, uuid.New(), 50000)

	_, err := svc.Assign(context.Background(), OrderRef{Source: SourceClient, ID: order.ID}, store.ID, storeActor(store.ID))
	assert.ErrorIs(t, err, ErrForbiddenActor)
}

func TestConcurrentAssignExactlyOneWins(t *testing.T) {
	for _, source := range []OrderSource{SourceClient, SourceHomepage} {
		t.Run(string(source), func(t *testing.T) {
			ctx := context.Background()
			deps, repo := newTestDeps(t)
			svc := NewAssignmentService(deps)

			a := seedStore(t, repo, "a", "서울특별시 종로구")
			b := seedStore(t, repo, "b", "서울특별시 종로구")

			var ref OrderRef
			if source == SourceClient {
				ref = OrderRef{Source: source, ID: seedOrder(t, repo, uuid.New(), 90000).ID}
			} else {
				ref = OrderRef{Source: source, ID: seedCustomerOrder(t, repo, uuid.New()).ID}
			}

			var wg sync.WaitGroup
			errs := make([]error, 2)
			for i, storeID := range []uuid.UUID{a.ID, b.ID} {
				wg.Add(1)
				go func(i int, storeID uuid.UUID) {
					defer wg.Done()
					_, errs[i] = svc.Assign(ctx, ref, storeID, adminActor)
				}(i, storeID)
			}
			wg.Wait()

			successes := 0
			for _, err := range errs {
				if err == nil {
					successes++
					continue
				}
				assert.ErrorIs(t, err, ErrPreconditionFailed)
			}
			assert.Equal(t, 1, successes)

			if source == SourceHomepage {
				open, err := repo.ListOpenOrders(ctx)
				require.NoError(t, err)
				assert.Len(t, open, 1)
			}
		})
	}
}

func TestUnassignCustomerOrderAllowsReassignment(t *testing.T) {
	ctx := context.Background()
	deps, repo := newTestDeps(t)
	svc := NewAssignmentService(deps)

	first := seedStore(t, repo, "first", "서울특별시 종로구")
	second := seedStore(t, repo, "second", "서울특별시 종로구")
	customer := seedCustomerOrder(t, repo, uuid.New())
	ref := OrderRef{Source: SourceHomepage, ID: customer.ID}

	assigned, err := svc.Assign(ctx, ref, first.ID, adminActor)
	require.NoError(t, err)

	released, err := svc.Unassign(ctx, ref, adminActor)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, released.Status)
	assert.Nil(t, released.ReceiverStoreID)

	old, err := repo.FindOrder(ctx, *assigned.FulfillmentOrder, false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, old.Status)

	reassigned, err := svc.Assign(ctx, ref, second.ID, adminActor)
	require.NoError(t, err)
	assert.NotEqual(t, *assigned.FulfillmentOrder, *reassigned.FulfillmentOrder)
}

func TestUnassignRefusesAcceptedOrder(t *testing.T) {
	ctx := context.Background()
	deps, repo := newTestDeps(t)
	assignments := NewAssignmentService(deps)
	orders := NewOrderService(deps, nil)

	store := seedStore(t, repo, "s", "서울특별시 강남구")
	order := seedOrder(t, repo, uuid.New(), 50000)
	ref := OrderRef{Source: SourceClient, ID: order.ID}

	_, err := assignments.Assign(ctx, ref, store.ID, adminActor)
	require.NoError(t, err)
	_, err = orders.Transition(ctx, ref, models.StatusAccepted, storeActor(store.ID), CompletionData{})
	require.NoError(t, err)

	_, err = assignments.Unassign(ctx, ref, adminActor)
	assert.ErrorIs(t, err, ErrPreconditionFailed)
}

func TestReconcileUnlinkedResetsStuckCustomerOrders(t *testing.T) {
	ctx := context.Background()
	deps, repo := newTestDeps(t)
	svc := NewAssignmentService(deps)

	storeID := uuid.New()
	stuck := models.CustomerOrder{OrderNumber: "H-legacy", OrderStatus: models.StatusAssigned, AssignedStoreID: &storeID}
	require.NoError(t, repo.CreateCustomerOrder(ctx, &stuck))
	healthy := seedCustomerOrder(t, repo, uuid.New())

	repaired, err := svc.ReconcileUnlinked(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)

	got, err := repo.FindCustomerOrder(ctx, stuck.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.OrderStatus)
	assert.Nil(t, got.AssignedStoreID)

	untouched, err := repo.FindCustomerOrder(ctx, healthy.ID, false)
	require.NoError(t, err)
	assert.Equal(t, healthy.Version, untouched.Version)
}
