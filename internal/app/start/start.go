package start

import (
	"context"
	"fmt"

	"github.com/ptmflow/ptmflow/internal/app/status"
	"github.com/ptmflow/ptmflow/internal/log"
	"github.com/ptmflow/ptmflow/internal/model"
	"github.com/ptmflow/ptmflow/internal/storage"
)

// Starter hands an order over to the pipeline orchestrator.
type Starter interface {
	Start(ctx context.Context, orderID string) error
}

// ServiceConfig is the configuration for the start service.
type ServiceConfig struct {
	Repository storage.OrderRepository
	Starter    Starter
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Starter == nil {
		return fmt.Errorf("starter is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Start"})
	return nil
}

// Service handles order start business logic.
type Service struct {
	repo    storage.OrderRepository
	starter Starter
	logger  log.Logger
}

// NewService creates a new start service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:    cfg.Repository,
		starter: cfg.Starter,
		logger:  cfg.Logger,
	}, nil
}

// Request represents the start request parameters.
type Request struct {
	// CodeOrID is the order code or ID to start.
	CodeOrID string
}

// Run starts (or restarts) an order's pipeline. Starting an already active
// order is an idempotent no-op. The pipeline runs asynchronously: the
// returned order reflects the state right after the start was accepted.
func (s *Service) Run(ctx context.Context, req Request) (*model.Order, error) {
	order, err := status.Resolve(ctx, s.repo, req.CodeOrID)
	if err != nil {
		return nil, err
	}

	if err := s.starter.Start(ctx, order.ID); err != nil {
		return nil, fmt.Errorf("could not start order: %w", err)
	}

	order, err = s.repo.GetOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("could not get order: %w", err)
	}

	s.logger.Infof("Started order: %s (%s)", order.Code, order.ID)

	return order, nil
}
