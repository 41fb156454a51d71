// Package storagemock contains testify mocks for the storage repositories.
package storagemock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ptmflow/ptmflow/internal/model"
	"github.com/ptmflow/ptmflow/internal/storage"
)

// MockOrderRepository is a mock implementation of storage.OrderRepository.
type MockOrderRepository struct {
	mock.Mock
}

var _ storage.OrderRepository = &MockOrderRepository{}

func (m *MockOrderRepository) CreateOrder(ctx context.Context, o model.Order) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *MockOrderRepository) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	args := m.Called(ctx, id)
	var order *model.Order
	if v := args.Get(0); v != nil {
		order = v.(*model.Order)
	}
	return order, args.Error(1)
}

func (m *MockOrderRepository) GetOrderByCode(ctx context.Context, code string) (*model.Order, error) {
	args := m.Called(ctx, code)
	var order *model.Order
	if v := args.Get(0); v != nil {
		order = v.(*model.Order)
	}
	return order, args.Error(1)
}

func (m *MockOrderRepository) ListOrders(ctx context.Context, q storage.ListOrdersQuery) ([]model.Order, error) {
	args := m.Called(ctx, q)
	var orders []model.Order
	if v := args.Get(0); v != nil {
		orders = v.([]model.Order)
	}
	return orders, args.Error(1)
}

func (m *MockOrderRepository) UpdateOrder(ctx context.Context, o model.Order) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *MockOrderRepository) DeleteOrder(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockEventRepository is a mock implementation of storage.EventRepository.
type MockEventRepository struct {
	mock.Mock
}

var _ storage.EventRepository = &MockEventRepository{}

func (m *MockEventRepository) AppendEvent(ctx context.Context, e model.ProgressEvent) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockEventRepository) ListEvents(ctx context.Context, q storage.ListEventsQuery) ([]model.ProgressEvent, error) {
	args := m.Called(ctx, q)
	var events []model.ProgressEvent
	if v := args.Get(0); v != nil {
		events = v.([]model.ProgressEvent)
	}
	return events, args.Error(1)
}

func (m *MockEventRepository) LastEventAt(ctx context.Context, orderID string) (*time.Time, error) {
	args := m.Called(ctx, orderID)
	var t *time.Time
	if v := args.Get(0); v != nil {
		t = v.(*time.Time)
	}
	return t, args.Error(1)
}
