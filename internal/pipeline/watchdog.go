package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ptmflow/ptmflow/internal/log"
	"github.com/ptmflow/ptmflow/internal/model"
	"github.com/ptmflow/ptmflow/internal/storage"
)

const (
	defaultWatchdogInterval = 30 * time.Second
	defaultStallThreshold   = 10 * time.Minute
)

// WatchdogConfig is the configuration for the stall watchdog.
type WatchdogConfig struct {
	Manager         *Manager
	OrderRepository storage.OrderRepository
	EventRepository storage.EventRepository
	// Interval is how often active orders are checked.
	Interval time.Duration
	// StallThreshold is the maximum silence (no progress events) tolerated on
	// an active order before it is failed.
	StallThreshold time.Duration
	Logger         log.Logger
}

func (c *WatchdogConfig) defaults() error {
	if c.Manager == nil {
		return fmt.Errorf("manager is required")
	}
	if c.OrderRepository == nil {
		return fmt.Errorf("order repository is required")
	}
	if c.EventRepository == nil {
		return fmt.Errorf("event repository is required")
	}
	if c.Interval <= 0 {
		c.Interval = defaultWatchdogInterval
	}
	if c.StallThreshold <= 0 {
		c.StallThreshold = defaultStallThreshold
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "pipeline.Watchdog"})
	return nil
}

// Watchdog converts silently hung orders into explicit failures: an active
// order that produced no progress events for longer than the stall threshold
// (e.g. its worker process crashed) is failed so the situation is visible and
// actionable instead of stuck forever.
type Watchdog struct {
	manager   *Manager
	orderRepo storage.OrderRepository
	eventRepo storage.EventRepository
	interval  time.Duration
	threshold time.Duration
	logger    log.Logger
}

// NewWatchdog creates a new watchdog.
func NewWatchdog(cfg WatchdogConfig) (*Watchdog, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Watchdog{
		manager:   cfg.Manager,
		orderRepo: cfg.OrderRepository,
		eventRepo: cfg.EventRepository,
		interval:  cfg.Interval,
		threshold: cfg.StallThreshold,
		logger:    cfg.Logger,
	}, nil
}

// Run checks active orders periodically until the context is done.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Infof("Watchdog started (interval %s, stall threshold %s)", w.interval, w.threshold)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

// Check runs one stall detection pass over all active orders.
func (w *Watchdog) Check(ctx context.Context) {
	now := time.Now().UTC()

	for _, status := range []model.OrderStatus{
		model.OrderStatusQueued,
		model.OrderStatusPreprocessing,
		model.OrderStatusRAGEnrichment,
		model.OrderStatusReportGeneration,
	} {
		status := status
		orders, err := w.orderRepo.ListOrders(ctx, storage.ListOrdersQuery{Status: &status})
		if err != nil {
			w.logger.Errorf("Could not list %s orders: %s", status, err)
			continue
		}

		for _, order := range orders {
			w.checkOrder(ctx, order, now)
		}
	}
}

func (w *Watchdog) checkOrder(ctx context.Context, order model.Order, now time.Time) {
	if order.CurrentStage == nil {
		return
	}

	last, err := w.eventRepo.LastEventAt(ctx, order.ID)
	if err != nil {
		w.logger.Errorf("Could not get last event time for order %s: %s", order.ID, err)
		return
	}

	// An order with no events yet is measured from its start.
	ref := order.CreatedAt
	if order.StartedAt != nil {
		ref = *order.StartedAt
	}
	if last != nil && last.After(ref) {
		ref = *last
	}

	silence := now.Sub(ref)
	if silence <= w.threshold {
		return
	}

	w.logger.Warningf("Order %s stalled on stage %s (%s without progress), failing it", order.ID, *order.CurrentStage, silence.Truncate(time.Second))

	reason := fmt.Sprintf("stage %s stalled: no progress events for %s", *order.CurrentStage, silence.Truncate(time.Second))
	if err := w.manager.Fail(ctx, order.ID, *order.CurrentStage, reason); err != nil {
		w.logger.Errorf("Could not fail stalled order %s: %s", order.ID, err)
	}
}
