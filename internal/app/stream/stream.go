package stream

import (
	"context"
	"fmt"

	"github.com/ptmflow/ptmflow/internal/app/status"
	"github.com/ptmflow/ptmflow/internal/eventbus"
	"github.com/ptmflow/ptmflow/internal/log"
	"github.com/ptmflow/ptmflow/internal/model"
	"github.com/ptmflow/ptmflow/internal/storage"
)

// ServiceConfig is the configuration for the stream service.
type ServiceConfig struct {
	Repository storage.OrderRepository
	Broker     *eventbus.Broker
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Broker == nil {
		return fmt.Errorf("broker is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Stream"})
	return nil
}

// Service attaches live event subscriptions to orders.
type Service struct {
	repo   storage.OrderRepository
	broker *eventbus.Broker
	logger log.Logger
}

// NewService creates a new stream service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		broker: cfg.Broker,
		logger: cfg.Logger,
	}, nil
}

// Request represents the stream request parameters.
type Request struct {
	// CodeOrID is the order code or ID to subscribe to.
	CodeOrID string
}

// Run resolves the order and opens a live subscription to its progress
// events. Only events published after the subscription exist on the channel;
// the caller merges them with the persisted log if it needs history. The
// caller owns the subscription and must Close it.
func (s *Service) Run(ctx context.Context, req Request) (*model.Order, *eventbus.Subscription, error) {
	order, err := status.Resolve(ctx, s.repo, req.CodeOrID)
	if err != nil {
		return nil, nil, err
	}

	sub, err := s.broker.Subscribe(order.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("could not subscribe to order events: %w", err)
	}

	s.logger.Debugf("Opened live stream for order %s", order.ID)

	return order, sub, nil
}
