package cancel

import (
	"context"
	"fmt"

	"github.com/ptmflow/ptmflow/internal/app/status"
	"github.com/ptmflow/ptmflow/internal/log"
	"github.com/ptmflow/ptmflow/internal/model"
	"github.com/ptmflow/ptmflow/internal/storage"
)

// Canceller asks the pipeline orchestrator to stop an order.
type Canceller interface {
	Cancel(ctx context.Context, orderID string) error
}

// ServiceConfig is the configuration for the cancel service.
type ServiceConfig struct {
	Repository storage.OrderRepository
	Canceller  Canceller
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Canceller == nil {
		return fmt.Errorf("canceller is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Cancel"})
	return nil
}

// Service handles order cancellation business logic.
type Service struct {
	repo      storage.OrderRepository
	canceller Canceller
	logger    log.Logger
}

// NewService creates a new cancel service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:      cfg.Repository,
		canceller: cfg.Canceller,
		logger:    cfg.Logger,
	}, nil
}

// Request represents the cancel request parameters.
type Request struct {
	// CodeOrID is the order code or ID to cancel.
	CodeOrID string
}

// Run cancels an active order. Cancelling an already terminal order is an
// idempotent no-op; cancelling a pending order is invalid.
func (s *Service) Run(ctx context.Context, req Request) (*model.Order, error) {
	order, err := status.Resolve(ctx, s.repo, req.CodeOrID)
	if err != nil {
		return nil, err
	}

	if err := s.canceller.Cancel(ctx, order.ID); err != nil {
		return nil, fmt.Errorf("could not cancel order: %w", err)
	}

	order, err = s.repo.GetOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("could not get order: %w", err)
	}

	s.logger.Infof("Cancelled order: %s (%s)", order.Code, order.ID)

	return order, nil
}
