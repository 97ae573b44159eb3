package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/example/floradispatch/internal/models"
)

func TestNextStatusesFromPending(t *testing.T) {
	assert.ElementsMatch(t,
		[]models.OrderStatus{models.StatusAccepted, models.StatusRejected, models.StatusCancelled},
		NextStatuses(SourceClient, models.StatusPending))
	assert.ElementsMatch(t,
		[]models.OrderStatus{models.StatusAssigned, models.StatusRejected, models.StatusCancelled},
		NextStatuses(SourceHomepage, models.StatusPending))
}

func TestTerminalStatusesHaveNoTransitions(t *testing.T) {
	all := []models.OrderStatus{
		models.StatusPending, models.StatusAccepted, models.StatusAssigned, models.StatusPreparing,
		models.StatusDelivering, models.StatusCompleted, models.StatusRejected, models.StatusCancelled,
	}
	everyone := Relation{Requester: true, AssignedStore: true, Admin: true, System: true}
	proof := CompletionData{RecipientName: "김영희", PhotoURLs: []string{"/photos/1.jpg"}}

	for _, from := range []models.OrderStatus{models.StatusCompleted, models.StatusRejected, models.StatusCancelled} {
		for _, to := range all {
			for _, source := range []OrderSource{SourceClient, SourceHomepage} {
				assert.ErrorIs(t, CheckTransition(source, from, to, everyone, proof), ErrInvalidTransition)
			}
		}
	}
}

func TestCheckTransitionNoSkipping(t *testing.T) {
	store := Relation{AssignedStore: true}
	assert.ErrorIs(t, CheckTransition(SourceClient, models.StatusPending, models.StatusPreparing, store, CompletionData{}), ErrInvalidTransition)
	assert.ErrorIs(t, CheckTransition(SourceClient, models.StatusAccepted, models.StatusDelivering, store, CompletionData{}), ErrInvalidTransition)
	assert.ErrorIs(t, CheckTransition(SourceClient, models.StatusAccepted, models.StatusCancelled, Relation{Requester: true}, CompletionData{}), ErrInvalidTransition)
	assert.NoError(t, CheckTransition(SourceClient, models.StatusAccepted, models.StatusPreparing, store, CompletionData{}))
}

func TestCheckTransitionActors(t *testing.T) {
	requester := Relation{Requester: true}
	store := Relation{AssignedStore: true}
	admin := Relation{Admin: true}

	assert.NoError(t, CheckTransition(SourceClient, models.StatusPending, models.StatusCancelled, requester, CompletionData{}))
	assert.ErrorIs(t, CheckTransition(SourceClient, models.StatusPending, models.StatusCancelled, store, CompletionData{}), ErrForbiddenActor)
	assert.NoError(t, CheckTransition(SourceClient, models.StatusPending, models.StatusRejected, store, CompletionData{}))
	assert.ErrorIs(t, CheckTransition(SourceClient, models.StatusPending, models.StatusRejected, admin, CompletionData{}), ErrForbiddenActor)
	assert.ErrorIs(t, CheckTransition(SourceHomepage, models.StatusPending, models.StatusAssigned, admin, CompletionData{}), ErrForbiddenActor)
	assert.NoError(t, CheckTransition(SourceHomepage, models.StatusPending, models.StatusAssigned, Relation{System: true}, CompletionData{}))
}

func TestCheckTransitionCompletionData(t *testing.T) {
	store := Relation{AssignedStore: true}
	for _, data := range []CompletionData{
		{},
		{RecipientName: "김영희"},
		{RecipientName: " ", PhotoURLs: []string{"/p.jpg"}},
		{RecipientName: "김영희", PhotoURLs: []string{" "}},
	} {
		assert.ErrorIs(t, CheckTransition(SourceClient, models.StatusDelivering, models.StatusCompleted, store, data), ErrIncompleteCompletionData)
	}
	assert.NoError(t, CheckTransition(SourceClient, models.StatusDelivering, models.StatusCompleted, store,
		CompletionData{RecipientName: "김영희", PhotoURLs: []string{"/p.jpg"}}))
}

func TestRelationFor(t *testing.T) {
	sender, receiver := uuid.New(), uuid.New()
	order := UnifiedOrder{Source: SourceClient, SenderStoreID: &sender, ReceiverStoreID: &receiver}

	assert.Equal(t, Relation{Requester: true}, RelationFor(order, Actor{Role: ActorStore, StoreID: &sender}, uuid.Nil))
	assert.Equal(t, Relation{AssignedStore: true}, RelationFor(order, Actor{Role: ActorStore, StoreID: &receiver}, uuid.Nil))
	assert.Equal(t, Relation{Admin: true}, RelationFor(order, Actor{Role: ActorAdmin}, uuid.Nil))

	hq := uuid.Nil
	fromHQ := UnifiedOrder{Source: SourceClient, SenderStoreID: &hq, ReceiverStoreID: &receiver}
	assert.Equal(t, Relation{Admin: true, Requester: true}, RelationFor(fromHQ, Actor{Role: ActorAdmin}, uuid.Nil))

	customerID := uuid.New()
	customerOrder := models.CustomerOrder{CustomerID: &customerID}
	assert.True(t, CustomerRelationFor(customerOrder, Actor{ID: customerID, Role: ActorCustomer}).Requester)
	assert.False(t, CustomerRelationFor(customerOrder, Actor{ID: uuid.New(), Role: ActorCustomer}).Requester)
}
