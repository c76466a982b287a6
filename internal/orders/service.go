package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"github.com/jayjaytrn/order-management-system/internal/clock"
	"github.com/jayjaytrn/order-management-system/internal/db"
	"github.com/jayjaytrn/order-management-system/internal/events"
	"github.com/jayjaytrn/order-management-system/models"
	"go.uber.org/zap"
)

const maxProductName = 255

// Enqueuer hands a freshly created order to the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, orderID string) (string, error)
}

type Service struct {
	Store      db.OrderStore
	Dispatcher Enqueuer
	Events     events.Publisher
	Clock      clock.Clock
	Logger     *zap.SugaredLogger
}

func NewService(store db.OrderStore, dispatcher Enqueuer, publisher events.Publisher, clk clock.Clock, logger *zap.SugaredLogger) *Service {
	return &Service{
		Store:      store,
		Dispatcher: dispatcher,
		Events:     publisher,
		Clock:      clk,
		Logger:     logger,
	}
}

// Created is the outcome of Create. Dispatched is false when the order was
// stored but its job could not be enqueued; the reconciler picks it up later.
type Created struct {
	Order      models.Order
	Dispatched bool
}

// ParseAmount accepts a positive decimal amount.
func ParseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.Parse(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: amount %q is not a number", models.ErrInvalidOrder, raw)
	}
	if !amount.IsPos() {
		return decimal.Decimal{}, fmt.Errorf("%w: amount must be positive", models.ErrInvalidOrder)
	}
	return amount, nil
}

func (s *Service) Create(ctx context.Context, owner, productName string, amount decimal.Decimal) (Created, error) {
	productName = strings.TrimSpace(productName)
	if n := utf8.RuneCountInString(productName); n == 0 || n > maxProductName {
		return Created{}, fmt.Errorf("%w: product name must be 1 to %d characters", models.ErrInvalidOrder, maxProductName)
	}
	if !amount.IsPos() {
		return Created{}, fmt.Errorf("%w: amount must be positive", models.ErrInvalidOrder)
	}

	now := s.Clock.Now()
	order := models.Order{
		ID:          uuid.NewString(),
		UserID:      owner,
		ProductName: productName,
		Amount:      amount,
		Status:      models.OrderPending,
		Version:     0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Store.CreateOrder(ctx, order); err != nil {
		return Created{}, fmt.Errorf("create order: %w", err)
	}
	s.publish(ctx, order)

	if _, err := s.Dispatcher.Enqueue(ctx, order.ID); err != nil {
		s.Logger.Warnw("order stored but not dispatched", "order_id", order.ID, "error", err)
		return Created{Order: order, Dispatched: false}, nil
	}
	return Created{Order: order, Dispatched: true}, nil
}

// Get returns an order of the owner. Orders of other users are reported as
// missing.
func (s *Service) Get(ctx context.Context, owner, id string) (models.Order, error) {
	order, err := s.Store.GetOrder(ctx, id)
	if err != nil {
		return models.Order{}, err
	}
	if order.UserID != owner {
		return models.Order{}, models.ErrOrderNotFound
	}
	return order, nil
}

// List returns the owner's orders, newest first, optionally filtered by the
// upper-case status name.
func (s *Service) List(ctx context.Context, owner, status string) ([]models.Order, error) {
	filter := models.OrderFilter{UserID: owner}
	if status != "" {
		parsed, err := models.ParseOrderStatus(status)
		if err != nil {
			return nil, fmt.Errorf("%w: unknown status %q", models.ErrInvalidOrder, status)
		}
		filter.Status = parsed
	}
	return s.Store.ListOrders(ctx, filter)
}

// Cancel moves a PENDING order to CANCELLED. Any other state, including an
// order that left PENDING while the request was in flight, yields
// models.ErrInvalidTransition.
func (s *Service) Cancel(ctx context.Context, owner, id string) (models.Order, error) {
	order, err := s.Get(ctx, owner, id)
	if err != nil {
		return models.Order{}, err
	}
	if order.Status != models.OrderPending {
		return models.Order{}, fmt.Errorf("%w: order is %s", models.ErrInvalidTransition, order.Status)
	}

	cancelled, err := s.Store.TransitionOrder(ctx, order.ID, order.Version,
		models.OrderPending, models.OrderCancelled, s.Clock.Now())
	if errors.Is(err, models.ErrConcurrentUpdateLost) {
		s.Logger.Infow("cancel lost the race", "order_id", id, "error", err)
		return models.Order{}, fmt.Errorf("%w: order is no longer pending", models.ErrInvalidTransition)
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("cancel order: %w", err)
	}

	s.publish(ctx, cancelled)
	s.Logger.Infow("order cancelled", "order_id", id)
	return cancelled, nil
}

func (s *Service) publish(ctx context.Context, order models.Order) {
	if err := s.Events.Publish(ctx, models.NewOrderEvent(order)); err != nil {
		s.Logger.Warnw("failed to publish order event", "order_id", order.ID, "status", order.Status, "error", err)
	}
}
