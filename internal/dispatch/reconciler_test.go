package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/govalues/decimal"
	"github.com/jayjaytrn/order-management-system/internal/clock"
	"github.com/jayjaytrn/order-management-system/internal/db"
	"github.com/jayjaytrn/order-management-system/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReconciler_ReenqueuesUndispatchedOrders(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(t0)
	store := db.NewMemoryStore()
	q := NewMemoryQueue()
	d := newTestDispatcher(q, clk)
	r := NewReconciler(store, d, clk, 2*time.Minute, zap.NewNop().Sugar())

	for _, id := range []string{"lost", "queued", "fresh"} {
		created := t0.Add(-10 * time.Minute)
		if id == "fresh" {
			created = t0
		}
		require.NoError(t, store.CreateOrder(ctx, models.Order{
			ID:          id,
			UserID:      "user-1",
			ProductName: "Book",
			Amount:      decimal.MustParse("1"),
			Status:      models.OrderPending,
			CreatedAt:   created,
			UpdatedAt:   created,
		}))
	}
	_, err := d.Enqueue(ctx, "queued")
	require.NoError(t, err)

	n, err := r.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, q.Len())

	ok, err := q.Outstanding(ctx, "lost")
	require.NoError(t, err)
	assert.True(t, ok)

	n, err = r.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "an order with an outstanding job is not enqueued twice")
}
