package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/jayjaytrn/order-management-system/internal/clock"
	"github.com/jayjaytrn/order-management-system/models"
	"go.uber.org/zap"
)

const reconcileBatch = 100

// PendingLister finds orders that are still waiting for a worker.
type PendingLister interface {
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.Order, error)
}

// Reconciler re-enqueues PENDING orders that were persisted but never
// dispatched, or whose job was lost.
type Reconciler struct {
	orders     PendingLister
	dispatcher *Dispatcher
	clock      clock.Clock
	grace      time.Duration
	Logger     *zap.SugaredLogger
}

func NewReconciler(orders PendingLister, dispatcher *Dispatcher, clk clock.Clock, grace time.Duration, logger *zap.SugaredLogger) *Reconciler {
	return &Reconciler{
		orders:     orders,
		dispatcher: dispatcher,
		clock:      clk,
		grace:      grace,
		Logger:     logger,
	}
}

// Reconcile runs one sweep and returns the number of orders re-enqueued.
func (r *Reconciler) Reconcile(ctx context.Context) (int, error) {
	stale, err := r.orders.ListStalePending(ctx, r.clock.Now().Add(-r.grace), reconcileBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending orders: %w", err)
	}

	enqueued := 0
	for _, order := range stale {
		outstanding, err := r.dispatcher.Outstanding(ctx, order.ID)
		if err != nil {
			return enqueued, fmt.Errorf("failed to check jobs of order %s: %w", order.ID, err)
		}
		if outstanding {
			continue
		}
		if _, err := r.dispatcher.Enqueue(ctx, order.ID); err != nil {
			return enqueued, err
		}
		enqueued++
	}
	return enqueued, nil
}

// Run sweeps every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			n, err := r.Reconcile(ctx)
			if err != nil {
				r.Logger.Errorw("reconciliation failed", "error", err)
				continue
			}
			if n > 0 {
				r.Logger.Infow("re-enqueued pending orders", "count", n)
			}
		}
	}
}
