package create

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ptmflow/ptmflow/internal/log"
	"github.com/ptmflow/ptmflow/internal/model"
	"github.com/ptmflow/ptmflow/internal/storage"
)

// ServiceConfig is the configuration for the create service.
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Create"})
	return nil
}

// Service handles order creation business logic.
type Service struct {
	repo   storage.OrderRepository
	logger log.Logger
}

// NewService creates a new create service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// CreateOptions are the options for creating an order.
type CreateOptions struct {
	Config model.OrderConfig
}

// Create registers a new order in pending state. It does not start the
// pipeline.
func (s *Service) Create(ctx context.Context, opts CreateOptions) (*model.Order, error) {
	// 1. Validate config.
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// 2. Check code uniqueness.
	_, err := s.repo.GetOrderByCode(ctx, opts.Config.Code)
	if err == nil {
		return nil, fmt.Errorf("order with code %q already exists: %w", opts.Config.Code, model.ErrAlreadyExists)
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("could not check code uniqueness: %w", err)
	}

	// 3. Save to repository.
	order := model.Order{
		ID:          ulid.Make().String(),
		Code:        opts.Config.Code,
		ProjectName: opts.Config.ProjectName,
		Status:      model.OrderStatusPending,
		ResultFiles: map[string]string{},
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("could not save order: %w", err)
	}

	s.logger.Infof("Created order: %s (%s)", order.Code, order.ID)

	return &order, nil
}
