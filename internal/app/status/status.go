package status

import (
	"context"
	"errors"
	"fmt"

	"github.com/ptmflow/ptmflow/internal/log"
	"github.com/ptmflow/ptmflow/internal/model"
	"github.com/ptmflow/ptmflow/internal/storage"
)

// ServiceConfig is the configuration for the status service.
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Status"})
	return nil
}

// Service handles order status retrieval.
type Service struct {
	repo   storage.OrderRepository
	logger log.Logger
}

// NewService creates a new status service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the status request parameters.
type Request struct {
	// CodeOrID is the order code or ID to look up.
	CodeOrID string
}

// Run retrieves an order by code or ID. It tries code lookup first, then ID
// lookup if the input looks like a ULID.
func (s *Service) Run(ctx context.Context, req Request) (*model.Order, error) {
	s.logger.Debugf("Getting status for order: %s", req.CodeOrID)
	return Resolve(ctx, s.repo, req.CodeOrID)
}

// Resolve looks up an order by code first, falling back to ID lookup when the
// reference looks like a ULID. Shared by every service that takes an order
// reference.
func Resolve(ctx context.Context, repo storage.OrderRepository, codeOrID string) (*model.Order, error) {
	order, err := repo.GetOrderByCode(ctx, codeOrID)
	if err == nil {
		return order, nil
	}

	if errors.Is(err, model.ErrNotFound) && looksLikeULID(codeOrID) {
		order, err = repo.GetOrder(ctx, codeOrID)
		if err == nil {
			return order, nil
		}
	}

	if errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("order not found: %s: %w", codeOrID, model.ErrNotFound)
	}

	return nil, fmt.Errorf("could not get order: %w", err)
}

// looksLikeULID checks if a string looks like a ULID (26 characters,
// alphanumeric uppercase).
func looksLikeULID(s string) bool {
	if len(s) != 26 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}
