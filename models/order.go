package models

import (
	"encoding/json"
	"time"

	"github.com/govalues/decimal"
)

type OrderStatus string

func (s OrderStatus) String() string {
	return string(s)
}

const (
	OrderPending    OrderStatus = "PENDING"
	OrderProcessing OrderStatus = "PROCESSING"
	OrderCompleted  OrderStatus = "COMPLETED"
	OrderCancelled  OrderStatus = "CANCELLED"
)

// transitions lists every legal edge of the order lifecycle.
var transitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderProcessing, OrderCancelled},
	OrderProcessing: {OrderCompleted},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves the status.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderProcessing, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

// ParseOrderStatus accepts the upper-case wire form of a status.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	s := OrderStatus(raw)
	if !s.Valid() {
		return "", ErrInvalidOrder
	}
	return s, nil
}

type Order struct {
	ID          string
	UserID      string
	ProductName string
	Amount      decimal.Decimal
	Status      OrderStatus
	Version     int64
	// FailureReason is set once the processing job exhausted its attempts.
	// The status is left as it was.
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (o Order) Failed() bool {
	return o.FailureReason != ""
}

// OrderFilter selects the orders of one owner, optionally by status.
type OrderFilter struct {
	UserID string
	Status OrderStatus
}

type OrderCreateRequest struct {
	ProductName string      `json:"product_name"`
	Amount      json.Number `json:"amount"`
}

type OrderResponse struct {
	ID            string      `json:"id"`
	UserID        string      `json:"user_id"`
	ProductName   string      `json:"product_name"`
	Amount        string      `json:"amount"`
	Status        OrderStatus `json:"status"`
	Version       int64       `json:"version"`
	FailureReason string      `json:"failure_reason,omitempty"`
	Dispatched    *bool       `json:"dispatched,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

func NewOrderResponse(o Order) OrderResponse {
	return OrderResponse{
		ID:            o.ID,
		UserID:        o.UserID,
		ProductName:   o.ProductName,
		Amount:        o.Amount.String(),
		Status:        o.Status,
		Version:       o.Version,
		FailureReason: o.FailureReason,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

// OrderEvent is published after every status change of an order.
type OrderEvent struct {
	OrderID    string      `json:"order_id"`
	UserID     string      `json:"user_id"`
	Status     OrderStatus `json:"status"`
	Version    int64       `json:"version"`
	Failure    string      `json:"failure,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

func NewOrderEvent(o Order) OrderEvent {
	return OrderEvent{
		OrderID:    o.ID,
		UserID:     o.UserID,
		Status:     o.Status,
		Version:    o.Version,
		Failure:    o.FailureReason,
		OccurredAt: o.UpdatedAt,
	}
}
