package db

import (
	"context"
	"time"

	"github.com/jayjaytrn/order-management-system/models"
)

// OrderStore is the durable order record storage. Every status change goes
// through TransitionOrder, a compare-and-set keyed on (id, expected version).
type OrderStore interface {
	CreateOrder(ctx context.Context, order models.Order) error
	GetOrder(ctx context.Context, id string) (models.Order, error)
	ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error)

	// TransitionOrder moves the order from one status to another and bumps
	// its version, but only if the stored version and status still match.
	// A mismatch yields models.ErrConcurrentUpdateLost and changes nothing.
	TransitionOrder(ctx context.Context, id string, expectedVersion int64, from, to models.OrderStatus, at time.Time) (models.Order, error)
	// AnnotateFailure records a terminal processing failure without
	// touching status or version.
	AnnotateFailure(ctx context.Context, id string, expectedVersion int64, reason string, at time.Time) (models.Order, error)
	// ListStalePending returns PENDING orders without a failure annotation
	// created before the given instant, oldest first.
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.Order, error)
}

type UserStore interface {
	PutUniqueUser(ctx context.Context, user models.User) error
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
}

type Database interface {
	OrderStore
	UserStore

	Close() error
}
