package history

import (
	"context"
	"fmt"

	"github.com/ptmflow/ptmflow/internal/app/status"
	"github.com/ptmflow/ptmflow/internal/log"
	"github.com/ptmflow/ptmflow/internal/model"
	"github.com/ptmflow/ptmflow/internal/storage"
)

// ServiceConfig is the configuration for the history service.
type ServiceConfig struct {
	OrderRepository storage.OrderRepository
	EventRepository storage.EventRepository
	Logger          log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.OrderRepository == nil {
		return fmt.Errorf("order repository is required")
	}
	if c.EventRepository == nil {
		return fmt.Errorf("event repository is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.History"})
	return nil
}

// Service handles progress log queries.
type Service struct {
	orderRepo storage.OrderRepository
	eventRepo storage.EventRepository
	logger    log.Logger
}

// NewService creates a new history service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		orderRepo: cfg.OrderRepository,
		eventRepo: cfg.EventRepository,
		logger:    cfg.Logger,
	}, nil
}

// Request represents the history request parameters.
type Request struct {
	// CodeOrID is the order code or ID whose log is queried.
	CodeOrID string
	// Stage filters by pipeline stage when non empty.
	Stage string
	Limit int
}

// Response is the order together with its (possibly filtered) progress log,
// oldest event first.
type Response struct {
	Order  model.Order
	Events []model.ProgressEvent
}

// Run returns the persisted progress log of an order.
func (s *Service) Run(ctx context.Context, req Request) (*Response, error) {
	order, err := status.Resolve(ctx, s.orderRepo, req.CodeOrID)
	if err != nil {
		return nil, err
	}

	query := storage.ListEventsQuery{OrderID: order.ID, Limit: req.Limit}
	if req.Stage != "" {
		stage := model.Stage(req.Stage)
		if !stage.Valid() {
			return nil, fmt.Errorf("unknown stage %q: %w", req.Stage, model.ErrNotValid)
		}
		query.Stage = &stage
	}

	events, err := s.eventRepo.ListEvents(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("could not list events: %w", err)
	}

	s.logger.Debugf("Listed %d events for order %s", len(events), order.ID)

	return &Response{Order: *order, Events: events}, nil
}
