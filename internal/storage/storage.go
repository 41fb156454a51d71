package storage

import (
	"context"
	"time"

	"github.com/ptmflow/ptmflow/internal/model"
)

// ListOrdersQuery filters order listings.
type ListOrdersQuery struct {
	// Status filters by order status when set.
	Status *model.OrderStatus
	// Limit bounds the number of returned orders (0 means no limit).
	Limit int
}

// ListEventsQuery filters progress event listings for one order.
type ListEventsQuery struct {
	OrderID string
	// Stage filters by producing stage when set.
	Stage *model.Stage
	// Limit bounds the number of returned events (0 means no limit).
	Limit int
}

// OrderRepository is the interface for order persistence.
type OrderRepository interface {
	CreateOrder(ctx context.Context, o model.Order) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	GetOrderByCode(ctx context.Context, code string) (*model.Order, error)
	ListOrders(ctx context.Context, q ListOrdersQuery) ([]model.Order, error)
	UpdateOrder(ctx context.Context, o model.Order) error
	DeleteOrder(ctx context.Context, id string) error
}

// EventRepository is the interface for the append-only progress event log.
// Events are never updated or deleted once appended.
type EventRepository interface {
	AppendEvent(ctx context.Context, e model.ProgressEvent) error
	ListEvents(ctx context.Context, q ListEventsQuery) ([]model.ProgressEvent, error)
	// LastEventAt returns the timestamp of the most recent event for an order,
	// or nil when the order has no events yet.
	LastEventAt(ctx context.Context, orderID string) (*time.Time, error)
}
