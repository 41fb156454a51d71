package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ptmflow/ptmflow/internal/log"
	"github.com/ptmflow/ptmflow/internal/model"
	"github.com/ptmflow/ptmflow/internal/storage"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of storage.OrderRepository and
// storage.EventRepository. Mainly used on tests.
type Repository struct {
	orders map[string]model.Order
	events map[string][]model.ProgressEvent
	mu     sync.RWMutex
	logger log.Logger
}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		orders: make(map[string]model.Order),
		events: make(map[string][]model.ProgressEvent),
		logger: cfg.Logger,
	}, nil
}

// CreateOrder creates a new order in the repository.
func (r *Repository) CreateOrder(ctx context.Context, o model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[o.ID]; ok {
		return fmt.Errorf("order with id %s: %w", o.ID, model.ErrAlreadyExists)
	}

	for _, existing := range r.orders {
		if existing.Code == o.Code {
			return fmt.Errorf("order with code %s: %w", o.Code, model.ErrAlreadyExists)
		}
	}

	r.orders[o.ID] = o
	r.logger.Debugf("Created order in repository: %s", o.ID)

	return nil
}

// GetOrder retrieves an order by ID.
func (r *Repository) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, model.ErrNotFound)
	}

	orderCopy := order
	return &orderCopy, nil
}

// GetOrderByCode retrieves an order by code.
func (r *Repository) GetOrderByCode(ctx context.Context, code string) (*model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, order := range r.orders {
		if order.Code == code {
			orderCopy := order
			return &orderCopy, nil
		}
	}

	return nil, fmt.Errorf("order with code %s: %w", code, model.ErrNotFound)
}

// ListOrders returns orders, newest first.
func (r *Repository) ListOrders(ctx context.Context, q storage.ListOrdersQuery) ([]model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var orders []model.Order
	for _, order := range r.orders {
		if q.Status != nil && order.Status != *q.Status {
			continue
		}
		orders = append(orders, order)
	}

	// Newest first.
	for i := 0; i < len(orders); i++ {
		for j := i + 1; j < len(orders); j++ {
			if orders[j].CreatedAt.After(orders[i].CreatedAt) {
				orders[i], orders[j] = orders[j], orders[i]
			}
		}
	}

	if q.Limit > 0 && len(orders) > q.Limit {
		orders = orders[:q.Limit]
	}

	return orders, nil
}

// UpdateOrder updates an existing order.
func (r *Repository) UpdateOrder(ctx context.Context, o model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[o.ID]; !ok {
		return fmt.Errorf("order %s: %w", o.ID, model.ErrNotFound)
	}

	r.orders[o.ID] = o
	r.logger.Debugf("Updated order in repository: %s", o.ID)

	return nil
}

// DeleteOrder deletes an order and its events.
func (r *Repository) DeleteOrder(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[id]; !ok {
		return fmt.Errorf("order %s: %w", id, model.ErrNotFound)
	}

	delete(r.orders, id)
	delete(r.events, id)
	r.logger.Debugf("Deleted order from repository: %s", id)

	return nil
}

// AppendEvent appends a progress event to the order's log.
func (r *Repository) AppendEvent(ctx context.Context, e model.ProgressEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[e.OrderID] = append(r.events[e.OrderID], e)

	return nil
}

// ListEvents returns the order's events ordered by append time, oldest first.
func (r *Repository) ListEvents(ctx context.Context, q storage.ListEventsQuery) ([]model.ProgressEvent, error) {
	if q.OrderID == "" {
		return nil, fmt.Errorf("order id is required: %w", model.ErrNotValid)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var events []model.ProgressEvent
	for _, e := range r.events[q.OrderID] {
		if q.Stage != nil && e.Stage != *q.Stage {
			continue
		}
		events = append(events, e)
	}

	if q.Limit > 0 && len(events) > q.Limit {
		events = events[:q.Limit]
	}

	return events, nil
}

// LastEventAt returns the timestamp of the most recent event for an order.
func (r *Repository) LastEventAt(ctx context.Context, orderID string) (*time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := r.events[orderID]
	if len(events) == 0 {
		return nil, nil
	}

	t := events[len(events)-1].CreatedAt
	return &t, nil
}
