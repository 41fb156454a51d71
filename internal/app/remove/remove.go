package remove

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

// ServiceConfig is the configuration for the remove service.
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Remove"})
	return nil
}

// Service handles order removal business logic.
type Service struct {
	repo      storage.OrderRepository
	canceller Canceller
	logger    log.Logger
}

// NewService creates a new remove service.
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

// Request represents the remove request parameters.
type Request struct {
	// CodeOrID is the order code or ID to remove.
	CodeOrID string
	// Force cancels an active order before removal.
	Force bool
}

// Run removes an order and its event log. An active order cannot be removed
// unless Force is set, in which case it is cancelled first.
func (s *Service) Run(ctx context.Context, req Request) (*model.Order, error) {
	order, err := status.Resolve(ctx, s.repo, req.CodeOrID)
	if err != nil {
		return nil, err
	}

	if order.Status.IsActive() {
		if !req.Force {
			return nil, fmt.Errorf("cannot remove active order without force: %w", model.ErrNotValid)
		}

		s.logger.Infof("Force removing active order, cancelling first: %s", order.ID)
		if err := s.canceller.Cancel(ctx, order.ID); err != nil {
			return nil, fmt.Errorf("could not cancel order before removal: %w", err)
		}
	}

	if err := s.repo.DeleteOrder(ctx, order.ID); err != nil {
		return nil, fmt.Errorf("could not delete order: %w", err)
	}

	s.logger.Infof("Removed order: %s (%s)", order.Code, order.ID)

	return order, nil
}
