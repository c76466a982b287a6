package db

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/govalues/decimal"
	"github.com/jayjaytrn/order-management-system/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedOrder(t *testing.T, s *MemoryStore, id string, created time.Time) models.Order {
	t.Helper()
	order := models.Order{
		ID:          id,
		UserID:      "user-1",
		ProductName: "Book",
		Amount:      decimal.MustParse("10"),
		Status:      models.OrderPending,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	require.NoError(t, s.CreateOrder(context.Background(), order))
	return order
}

func TestMemoryStore_TransitionOrder(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)

	s := NewMemoryStore()
	seedOrder(t, s, "order-1", now)

	order, err := s.TransitionOrder(ctx, "order-1", 0, models.OrderPending, models.OrderProcessing, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, models.OrderProcessing, order.Status)
	assert.Equal(t, int64(1), order.Version)
	assert.Equal(t, now.Add(time.Second), order.UpdatedAt)

	_, err = s.TransitionOrder(ctx, "order-1", 0, models.OrderPending, models.OrderCancelled, now)
	assert.ErrorIs(t, err, models.ErrConcurrentUpdateLost)

	_, err = s.TransitionOrder(ctx, "order-1", 1, models.OrderProcessing, models.OrderPending, now)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = s.TransitionOrder(ctx, "missing", 0, models.OrderPending, models.OrderProcessing, now)
	assert.ErrorIs(t, err, models.ErrOrderNotFound)

	order, err = s.TransitionOrder(ctx, "order-1", 1, models.OrderProcessing, models.OrderCompleted, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), order.Version)
}

func TestMemoryStore_ConcurrentTransitionsHaveOneWinner(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)

	s := NewMemoryStore()
	seedOrder(t, s, "order-1", now)

	var wins, losses atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		to := models.OrderProcessing
		if i%2 == 0 {
			to = models.OrderCancelled
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.TransitionOrder(ctx, "order-1", 0, models.OrderPending, to, now)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, models.ErrConcurrentUpdateLost):
				losses.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(15), losses.Load())

	order, err := s.GetOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), order.Version)
}

func TestMemoryStore_AnnotateFailure(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)

	s := NewMemoryStore()
	seedOrder(t, s, "order-1", now)

	order, err := s.AnnotateFailure(ctx, "order-1", 0, "gave up", now)
	require.NoError(t, err)
	assert.True(t, order.Failed())
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Equal(t, int64(0), order.Version)

	_, err = s.AnnotateFailure(ctx, "order-1", 3, "gave up", now)
	assert.ErrorIs(t, err, models.ErrConcurrentUpdateLost)
}

func TestMemoryStore_ListOrders(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)

	s := NewMemoryStore()
	seedOrder(t, s, "order-1", now)
	seedOrder(t, s, "order-2", now.Add(time.Minute))
	_, err := s.TransitionOrder(ctx, "order-1", 0, models.OrderPending, models.OrderCancelled, now)
	require.NoError(t, err)

	all, err := s.ListOrders(ctx, models.OrderFilter{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "order-2", all[0].ID)

	cancelled, err := s.ListOrders(ctx, models.OrderFilter{UserID: "user-1", Status: models.OrderCancelled})
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, "order-1", cancelled[0].ID)

	none, err := s.ListOrders(ctx, models.OrderFilter{UserID: "user-2"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStore_ListStalePending(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)

	s := NewMemoryStore()
	seedOrder(t, s, "old", now.Add(-10*time.Minute))
	seedOrder(t, s, "failed", now.Add(-10*time.Minute))
	seedOrder(t, s, "fresh", now)
	_, err := s.AnnotateFailure(ctx, "failed", 0, "gave up", now)
	require.NoError(t, err)

	stale, err := s.ListStalePending(ctx, now.Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "old", stale[0].ID)
}

func TestMemoryStore_Users(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	user := models.User{ID: "user-1", Email: "ada@example.com", Name: "Ada", Password: "hash"}

	require.NoError(t, s.PutUniqueUser(ctx, user))
	assert.ErrorIs(t, s.PutUniqueUser(ctx, user), models.ErrUserExists)

	got, err := s.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, user, got)

	_, err = s.GetUserByEmail(ctx, "eve@example.com")
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}
