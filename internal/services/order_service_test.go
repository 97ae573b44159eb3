package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/floradispatch/internal/models"
)

var proof = CompletionData{RecipientName: "김영희", Note: "경비실 전달", PhotoURLs: []string{"/photos/done.jpg"}}

func TestOrderLifecycleHappyPath(t *testing.T) {
	ctx := context.Background()
	deps, repo := newTestDeps(t)
	assignments := NewAssignmentService(deps)
	orders := NewOrderService(deps, nil)

	sender := seedStore(t, repo, "sender", "부산광역시 해운대구")
	receiver := seedStore(t, repo, "receiver", "서울특별시 강남구")
	order := seedOrder(t, repo, sender.ID, 100000)
	ref := OrderRef{Source: SourceClient, ID: order.ID}
	store := storeActor(receiver.ID)

	_, err := orders.Transition(ctx, ref, models.StatusAccepted, store, CompletionData{})
	assert.ErrorIs(t, err, ErrPreconditionFailed, "nothing bound yet")

	_, err = assignments.Assign(ctx, ref, receiver.ID, adminActor)
	require.NoError(t, err)

	for _, to := range []models.OrderStatus{models.StatusAccepted, models.StatusPreparing, models.StatusDelivering} {
		got, err := orders.Transition(ctx, ref, to, store, CompletionData{})
		require.NoError(t, err)
		assert.Equal(t, to, got.Status)
	}

	_, err = orders.Transition(ctx, ref, models.StatusCompleted, store, CompletionData{RecipientName: "김영희"})
	assert.ErrorIs(t, err, ErrIncompleteCompletionData)

	got, err := orders.Transition(ctx, ref, models.StatusCompleted, store, proof)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)

	stored, err := repo.FindOrder(ctx, order.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "김영희", stored.CompletionRecipient)
	assert.Equal(t, []string{"/photos/done.jpg"}, stored.CompletionPhotos)
	assert.NotNil(t, stored.CompletedAt)
	assert.NotNil(t, stored.AcceptedAt)

	_, err = orders.Transition(ctx, ref, models.StatusCancelled, storeActor(sender.ID), CompletionData{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelAndRejectActors(t *testing.T) {
	ctx := context.Background()
	deps, repo := newTestDeps(t)
	assignments := NewAssignmentService(deps)
	orders := NewOrderService(deps, nil)

	sender := seedStore(t, repo, "sender")
	receiver := seedStore(t, repo, "receiver", "서울특별시 강남구")
	order := seedOrder(t, repo, sender.ID, 60000)
	ref := OrderRef{Source: SourceClient, ID: order.ID}
	_, err := assignments.Assign(ctx, ref, receiver.ID, adminActor)
	require.NoError(t, err)

	_, err = orders.Transition(ctx, ref, models.StatusCancelled, storeActor(receiver.ID), CompletionData{})
	assert.ErrorIs(t, err, ErrForbiddenActor)
	_, err = orders.Transition(ctx, ref, models.StatusRejected, storeActor(sender.ID), CompletionData{})
	assert.ErrorIs(t, err, ErrForbiddenActor)

	stored, err := repo.FindOrder(ctx, order.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)

	got, err := orders.Transition(ctx, ref, models.StatusCancelled, storeActor(sender.ID), CompletionData{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
}

func TestFulfillmentProgressMirrorsOntoCustomerOrder(t *testing.T) {
	ctx := context.Background()
	deps, repo := newTestDeps(t)
	assignments := NewAssignmentService(deps)
	orders := NewOrderService(deps, nil)

	store := seedStore(t, repo, "종로꽃집", "서울특별시 종로구")
	customer := seedCustomerOrder(t, repo, uuid.New())
	assigned, err := assignments.Assign(ctx, OrderRef{Source: SourceHomepage, ID: customer.ID}, store.ID, adminActor)
	require.NoError(t, err)

	fulfillment := OrderRef{Source: SourceClient, ID: *assigned.FulfillmentOrder}
	actor := storeActor(store.ID)
	for _, to := range []models.OrderStatus{models.StatusAccepted, models.StatusPreparing, models.StatusDelivering} {
		_, err := orders.Transition(ctx, fulfillment, to, actor, CompletionData{})
		require.NoError(t, err)
	}

	mirrored, err := repo.FindCustomerOrder(ctx, customer.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivering, mirrored.OrderStatus)

	_, err = orders.Transition(ctx, fulfillment, models.StatusCompleted, actor, proof)
	require.NoError(t, err)

	mirrored, err = repo.FindCustomerOrder(ctx, customer.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, mirrored.OrderStatus)
	assert.NotNil(t, mirrored.CompletedAt)
}

func TestRejectedFulfillmentReturnsCustomerOrderToQueue(t *testing.T) {
	ctx := context.Background()
	deps, repo := newTestDeps(t)
	assignments := NewAssignmentService(deps)
	orders := NewOrderService(deps, nil)

	first := seedStore(t, repo, "first", "서울특별시 종로구")
	second := seedStore(t, repo, "second", "서울특별시 종로구")
	customer := seedCustomerOrder(t, repo, uuid.New())
	ref := OrderRef{Source: SourceHomepage, ID: customer.ID}

	assigned, err := assignments.Assign(ctx, ref, first.ID, adminActor)
	require.NoError(t, err)

	_, err = orders.Transition(ctx, OrderRef{Source: SourceClient, ID: *assigned.FulfillmentOrder}, models.StatusRejected, storeActor(first.ID), CompletionData{})
	require.NoError(t, err)

	back, err := repo.FindCustomerOrder(ctx, customer.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, back.OrderStatus)
	assert.Nil(t, back.LinkedOrderID)
	assert.Nil(t, back.AssignedStoreID)

	_, err = assignments.Assign(ctx, ref, second.ID, adminActor)
	assert.NoError(t, err)
}

func TestCustomerOrderDirectTransitions(t *testing.T) {
	ctx := context.Background()
	deps, repo := newTestDeps(t)
	orders := NewOrderService(deps, nil)

	owner := uuid.New()
	customer := seedCustomerOrder(t, repo, owner)
	ref := OrderRef{Source: SourceHomepage, ID: customer.ID}

	_, err := orders.Transition(ctx, ref, models.StatusCancelled, Actor{ID: uuid.New(), Role: ActorCustomer}, CompletionData{})
	assert.ErrorIs(t, err, ErrForbiddenActor)
	_, err = orders.Transition(ctx, ref, models.StatusAssigned, adminActor, CompletionData{})
	assert.ErrorIs(t, err, ErrForbiddenActor)
	_, err = orders.Transition(ctx, ref, models.StatusPreparing, adminActor, CompletionData{})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := orders.Transition(ctx, ref, models.StatusCancelled, Actor{ID: owner, Role: ActorCustomer}, CompletionData{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
}

type flakyUploader struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (u *flakyUploader) Upload(_ context.Context, orderID uuid.UUID, file PhotoFile) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	if u.calls <= u.failures {
		return "", errors.New("storage timeout")
	}
	return "https://cdn.example/" + orderID.String() + "/" + file.Name, nil
}

func TestCompleteRetriesPhotoUpload(t *testing.T) {
	ctx := context.Background()
	deps, repo := newTestDeps(t)
	assignments := NewAssignmentService(deps)

	store := seedStore(t, repo, "s", "서울특별시 강남구")
	order := seedOrder(t, repo, uuid.New(), 50000)
	ref := OrderRef{Source: SourceClient, ID: order.ID}
	_, err := assignments.Assign(ctx, ref, store.ID, adminActor)
	require.NoError(t, err)

	uploader := &flakyUploader{failures: 2}
	orders := NewOrderService(deps, uploader)
	actor := storeActor(store.ID)
	for _, to := range []models.OrderStatus{models.StatusAccepted, models.StatusPreparing, models.StatusDelivering} {
		_, err := orders.Transition(ctx, ref, to, actor, CompletionData{})
		require.NoError(t, err)
	}

	got, err := orders.Complete(ctx, ref, actor, "김영희", "", []PhotoFile{{Name: "door.jpg", Data: []byte{0xff}}}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, 3, uploader.calls)
}

func TestCompleteSurfacesExhaustedUpload(t *testing.T) {
	ctx := context.Background()
	deps, repo := newTestDeps(t)
	deps.Config.PhotoUploadAttempts = 2
	assignments := NewAssignmentService(deps)

	store := seedStore(t, repo, "s", "서울특별시 강남구")
	order := seedOrder(t, repo, uuid.New(), 50000)
	ref := OrderRef{Source: SourceClient, ID: order.ID}
	_, err := assignments.Assign(ctx, ref, store.ID, adminActor)
	require.NoError(t, err)

	uploader := &flakyUploader{failures: 10}
	orders := NewOrderService(deps, uploader)
	actor := storeActor(store.ID)
	for _, to := range []models.OrderStatus{models.StatusAccepted, models.StatusPreparing, models.StatusDelivering} {
		_, err := orders.Transition(ctx, ref, to, actor, CompletionData{})
		require.NoError(t, err)
	}

	_, err = orders.Complete(ctx, ref, actor, "김영희", "", []PhotoFile{{Name: "door.jpg"}}, nil)
	assert.ErrorIs(t, err, ErrPhotoUploadFailed)
	assert.Equal(t, 2, uploader.calls)

	stored, err := repo.FindOrder(ctx, order.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivering, stored.Status)
}
