package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Ingestor feeds change events into the open-order view. Events only name
// the order; its current state is always reloaded, so duplicates and
// reordering are harmless.
type Ingestor struct {
	deps   Deps
	source ChangeSource
	loader *OrderLoader
	view   *OpenOrderView
}

func NewIngestor(deps Deps, source ChangeSource, view *OpenOrderView) *Ingestor {
	return &Ingestor{deps: deps, source: source, loader: deps.loader(), view: view}
}

// Run consumes until ctx is cancelled.
func (i *Ingestor) Run(ctx context.Context) error {
	i.deps.Logger.Info("change ingestion started")
	for {
		event, ack, err := i.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if ack != nil {
				i.deps.Logger.Warn("skipping undecodable change event", zap.Error(err))
				i.deps.Metrics.IngestEvents.WithLabelValues("invalid").Inc()
				i.commit(ctx, ack)
				continue
			}
			i.deps.Logger.Error("fetch change event failed", zap.Error(err))
			if !sleepCtx(ctx, time.Second) {
				return nil
			}
			continue
		}

		if err := i.Handle(ctx, event); err != nil {
			// Left uncommitted; the reconcile sweep covers the gap meanwhile.
			i.deps.Logger.Warn("apply change event failed",
				zap.String("order", event.Ref().String()),
				zap.Error(err),
			)
			continue
		}
		i.commit(ctx, ack)
	}
}

// Handle reloads the order named by event and applies it to the view.
func (i *Ingestor) Handle(ctx context.Context, event ChangeEvent) error {
	callCtx, cancel := context.WithTimeout(ctx, i.deps.Config.DataStoreTimeout)
	defer cancel()

	order, err := i.loader.Load(callCtx, i.deps.Repo, event.Ref())
	if errors.Is(err, ErrNotFound) {
		i.deps.Metrics.IngestEvents.WithLabelValues("missing").Inc()
		return nil
	}
	if err != nil {
		i.deps.Metrics.IngestEvents.WithLabelValues("error").Inc()
		return err
	}

	if i.view.Apply(order) {
		i.deps.Metrics.IngestEvents.WithLabelValues("applied").Inc()
	} else {
		i.deps.Metrics.IngestEvents.WithLabelValues("duplicate").Inc()
	}
	return nil
}

func (i *Ingestor) commit(ctx context.Context, ack func(context.Context) error) {
	if ack == nil {
		return
	}
	if err := ack(ctx); err != nil && ctx.Err() == nil {
		i.deps.Logger.Warn("commit change event failed", zap.Error(err))
	}
}

// Reconciler periodically rebuilds the open-order view from the data store
// and repairs half-finished assignments.
type Reconciler struct {
	deps        Deps
	loader      *OrderLoader
	view        *OpenOrderView
	breaker     *Breaker
	assignments *AssignmentService
}

func NewReconciler(deps Deps, view *OpenOrderView, breaker *Breaker, assignments *AssignmentService) *Reconciler {
	return &Reconciler{deps: deps, loader: deps.loader(), view: view, breaker: breaker, assignments: assignments}
}

// RunOnce performs one sweep. A failed snapshot leaves the view untouched.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	takenAt := r.deps.now()
	var snapshot []UnifiedOrder
	err := r.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		snapshot, err = r.loader.LoadOpen(ctx, r.deps.Repo)
		return err
	})
	if err != nil {
		return err
	}
	r.view.Replace(snapshot, takenAt)

	if r.assignments != nil {
		if _, err := r.assignments.ReconcileUnlinked(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Run sweeps immediately and then every ReconcileInterval until ctx ends.
func (r *Reconciler) Run(ctx context.Context) error {
	return runEvery(ctx, r.deps.Config.ReconcileInterval, func(ctx context.Context) {
		if err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.deps.Logger.Warn("reconcile sweep skipped", zap.Error(err))
		}
	})
}

// runEvery calls fn now and on every tick. fn failures never stop the loop.
func runEvery(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fn(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
