package list

import (
	"context"
	"fmt"

	"github.com/ptmflow/ptmflow/internal/log"
	"github.com/ptmflow/ptmflow/internal/model"
	"github.com/ptmflow/ptmflow/internal/storage"
)

// ServiceConfig is the configuration for the list service.
type ServiceConfig struct {
	Repository storage.OrderRepository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.List"})
	return nil
}

// Service handles order listing business logic.
type Service struct {
	repo   storage.OrderRepository
	logger log.Logger
}

// NewService creates a new list service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the list request parameters.
type Request struct {
	// Status filters by order status when non empty.
	Status string
	Limit  int
}

// Run lists orders, newest first.
func (s *Service) Run(ctx context.Context, req Request) ([]model.Order, error) {
	query := storage.ListOrdersQuery{Limit: req.Limit}

	if req.Status != "" {
		status, err := model.ParseOrderStatus(req.Status)
		if err != nil {
			return nil, fmt.Errorf("invalid status filter: %w", err)
		}
		query.Status = &status
	}

	orders, err := s.repo.ListOrders(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("could not list orders: %w", err)
	}

	s.logger.Debugf("Listed %d orders", len(orders))

	return orders, nil
}
