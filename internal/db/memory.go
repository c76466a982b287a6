package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jayjaytrn/order-management-system/models"
)

// MemoryStore keeps orders and users in process memory. It is used when no
// DATABASE_URI is configured and in tests; it offers the same
// compare-and-set guarantees as the PostgreSQL store.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]models.Order
	users  map[string]models.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[string]models.Order),
		users:  make(map[string]models.User),
	}
}

func (s *MemoryStore) CreateOrder(_ context.Context, order models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[order.ID]; ok {
		return models.ErrInvalidOrder
	}
	s.orders[order.ID] = order
	return nil
}

func (s *MemoryStore) GetOrder(_ context.Context, id string) (models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return models.Order{}, models.ErrOrderNotFound
	}
	return order, nil
}

func (s *MemoryStore) ListOrders(_ context.Context, filter models.OrderFilter) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]models.Order, 0)
	for _, o := range s.orders {
		if o.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

func (s *MemoryStore) TransitionOrder(_ context.Context, id string, expectedVersion int64, from, to models.OrderStatus, at time.Time) (models.Order, error) {
	if !models.CanTransition(from, to) {
		return models.Order{}, models.ErrInvalidTransition
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return models.Order{}, models.ErrOrderNotFound
	}
	if order.Version != expectedVersion || order.Status != from {
		return models.Order{}, models.ErrConcurrentUpdateLost
	}
	order.Status = to
	order.Version++
	order.UpdatedAt = at
	s.orders[id] = order
	return order, nil
}

func (s *MemoryStore) AnnotateFailure(_ context.Context, id string, expectedVersion int64, reason string, at time.Time) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return models.Order{}, models.ErrOrderNotFound
	}
	if order.Version != expectedVersion {
		return models.Order{}, models.ErrConcurrentUpdateLost
	}
	order.FailureReason = reason
	order.UpdatedAt = at
	s.orders[id] = order
	return order, nil
}

func (s *MemoryStore) ListStalePending(_ context.Context, createdBefore time.Time, limit int) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]models.Order, 0)
	for _, o := range s.orders {
		if o.Status == models.OrderPending && !o.Failed() && o.CreatedAt.Before(createdBefore) {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (s *MemoryStore) PutUniqueUser(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.Email]; ok {
		return models.ErrUserExists
	}
	s.users[user.Email] = user
	return nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[email]
	if !ok {
		return models.User{}, models.ErrUserNotFound
	}
	return user, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
