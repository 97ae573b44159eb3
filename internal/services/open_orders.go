package services

import (
	"sort"
	"sync"
	"time"
)

// OpenOrderView is the in-memory set of open orders shared by the monitor.
// Both the event path and the reconcile sweep write through Apply/Replace,
// which only ever move an order forward in time.
type OpenOrderView struct {
	mu     sync.RWMutex
	orders map[string]UnifiedOrder
	seen   map[string]time.Time
}

func NewOpenOrderView() *OpenOrderView {
	return &OpenOrderView{
		orders: make(map[string]UnifiedOrder),
		seen:   make(map[string]time.Time),
	}
}

// Apply records the latest known state of one order and reports whether it
// changed the view. States not newer than the last one seen are ignored.
func (v *OpenOrderView) Apply(order UnifiedOrder) bool {
	key := order.Ref().String()

	v.mu.Lock()
	defer v.mu.Unlock()

	if last, ok := v.seen[key]; ok && !order.UpdatedAt.After(last) {
		return false
	}
	v.seen[key] = order.UpdatedAt
	if tracked(order) {
		v.orders[key] = order
	} else {
		delete(v.orders, key)
	}
	return true
}

// Replace swaps in a full snapshot read at takenAt. Anything the event path
// applied after takenAt survives the swap.
func (v *OpenOrderView) Replace(snapshot []UnifiedOrder, takenAt time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()

	next := make(map[string]UnifiedOrder, len(snapshot))
	for _, order := range snapshot {
		key := order.Ref().String()
		if last, ok := v.seen[key]; ok && last.After(order.UpdatedAt) {
			if current, open := v.orders[key]; open {
				next[key] = current
			}
			continue
		}
		v.seen[key] = order.UpdatedAt
		if tracked(order) {
			next[key] = order
		}
	}

	for key, current := range v.orders {
		if _, kept := next[key]; kept {
			continue
		}
		if v.seen[key].After(takenAt) {
			next[key] = current
		}
	}

	for key, at := range v.seen {
		if _, open := next[key]; !open && !at.After(takenAt) {
			delete(v.seen, key)
		}
	}
	v.orders = next
}

// Snapshot returns the open orders oldest first.
func (v *OpenOrderView) Snapshot() []UnifiedOrder {
	v.mu.RLock()
	out := make([]UnifiedOrder, 0, len(v.orders))
	for _, order := range v.orders {
		out = append(out, order)
	}
	v.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (v *OpenOrderView) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.orders)
}

// tracked excludes closed orders and customer orders represented by their
// fulfillment order.
func tracked(order UnifiedOrder) bool {
	if order.Status.Terminal() {
		return false
	}
	return !(order.Source == SourceHomepage && order.LinkedOrderID != nil)
}
