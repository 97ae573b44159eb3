package services

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/example/floradispatch/internal/models"
)

// Actor roles.
const (
	ActorAdmin    = "admin"
	ActorStore    = "store"
	ActorCustomer = "customer"
	ActorSystem   = "system"
)

// Actor is whoever asks for a change.
type Actor struct {
	ID      uuid.UUID
	Role    string
	StoreID *uuid.UUID
}

// SystemActor is used by internal flows such as assignment.
var SystemActor = Actor{Role: ActorSystem}

// Relation describes how an actor relates to one order.
type Relation struct {
	Requester     bool
	AssignedStore bool
	Admin         bool
	System        bool
}

// CompletionData is the delivery proof recorded on completion.
type CompletionData struct {
	RecipientName string
	Note          string
	PhotoURLs     []string
}

func (c CompletionData) complete() bool {
	if strings.TrimSpace(c.RecipientName) == "" {
		return false
	}
	for _, url := range c.PhotoURLs {
		if strings.TrimSpace(url) != "" {
			return true
		}
	}
	return false
}

var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.StatusPending: {
		models.StatusAccepted,
		models.StatusAssigned,
		models.StatusRejected,
		models.StatusCancelled,
	},
	models.StatusAccepted:   {models.StatusPreparing},
	models.StatusAssigned:   {models.StatusPreparing},
	models.StatusPreparing:  {models.StatusDelivering},
	models.StatusDelivering: {models.StatusCompleted},
}

// NextStatuses lists the statuses reachable from s in one step for the given shape.
func NextStatuses(source OrderSource, from models.OrderStatus) []models.OrderStatus {
	var out []models.OrderStatus
	for _, to := range transitions[from] {
		if shapeAllows(source, to) {
			out = append(out, to)
		}
	}
	return out
}

// Allowed reports whether from -> to is a legal single step.
func Allowed(source OrderSource, from, to models.OrderStatus) bool {
	for _, next := range NextStatuses(source, from) {
		if next == to {
			return true
		}
	}
	return false
}

// shapeAllows keeps "accepted" for florist orders and "assigned" for customer orders.
func shapeAllows(source OrderSource, to models.OrderStatus) bool {
	switch to {
	case models.StatusAccepted:
		return source == SourceClient
	case models.StatusAssigned:
		return source == SourceHomepage
	}
	return true
}

// CheckTransition validates a status change. Legality is checked first, then
// who is asking, then completion proof.
func CheckTransition(source OrderSource, from, to models.OrderStatus, rel Relation, data CompletionData) error {
	if !Allowed(source, from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	if !actorAllowed(to, rel) {
		return fmt.Errorf("%w: %s", ErrForbiddenActor, to)
	}

	if to == models.StatusCompleted && !data.complete() {
		return fmt.Errorf("%w: recipient name and at least one photo are required", ErrIncompleteCompletionData)
	}
	return nil
}

func actorAllowed(to models.OrderStatus, rel Relation) bool {
	switch to {
	case models.StatusAssigned:
		return rel.System
	case models.StatusCancelled:
		return rel.Requester
	case models.StatusRejected:
		return rel.AssignedStore
	case models.StatusAccepted, models.StatusPreparing, models.StatusDelivering, models.StatusCompleted:
		return rel.AssignedStore || rel.Admin || rel.System
	}
	return false
}

// RelationFor derives the actor's relation to a florist order. Orders sent by
// headquarters are requested by admins.
func RelationFor(order UnifiedOrder, actor Actor, headquarters uuid.UUID) Relation {
	rel := Relation{
		Admin:  actor.Role == ActorAdmin,
		System: actor.Role == ActorSystem,
	}
	if actor.Role == ActorStore && actor.StoreID != nil {
		if order.ReceiverStoreID != nil && *order.ReceiverStoreID == *actor.StoreID {
			rel.AssignedStore = true
		}
		if order.SenderStoreID != nil && *order.SenderStoreID == *actor.StoreID && *actor.StoreID != headquarters {
			rel.Requester = true
		}
	}
	if order.Source == SourceClient && rel.Admin && order.SenderStoreID != nil && *order.SenderStoreID == headquarters {
		rel.Requester = true
	}
	return rel
}

// CustomerRelationFor derives the actor's relation to a customer order.
func CustomerRelationFor(order models.CustomerOrder, actor Actor) Relation {
	rel := Relation{
		Admin:  actor.Role == ActorAdmin,
		System: actor.Role == ActorSystem,
	}
	if actor.Role == ActorCustomer && order.CustomerID != nil && *order.CustomerID == actor.ID {
		rel.Requester = true
	}
	if actor.Role == ActorStore && actor.StoreID != nil && order.AssignedStoreID != nil && *order.AssignedStoreID == *actor.StoreID {
		rel.AssignedStore = true
	}
	return rel
}
