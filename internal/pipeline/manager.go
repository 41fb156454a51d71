package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ptmflow/ptmflow/internal/eventbus"
	"github.com/ptmflow/ptmflow/internal/log"
	"github.com/ptmflow/ptmflow/internal/model"
	"github.com/ptmflow/ptmflow/internal/storage"
)

const (
	defaultStageConcurrency = 2
	defaultStageTimeout     = 45 * time.Minute
)

// ManagerConfig is the configuration for the pipeline manager.
type ManagerConfig struct {
	OrderRepository storage.OrderRepository
	EventRepository storage.EventRepository
	Broker          *eventbus.Broker
	Registry        *Registry
	// StageConcurrency is the maximum number of simultaneous runners per
	// stage type.
	StageConcurrency int
	// StageTimeout is the wall-clock budget of a single stage run. Exceeding
	// it fails the order the same way a stall does.
	StageTimeout time.Duration
	Logger       log.Logger
}

func (c *ManagerConfig) defaults() error {
	if c.OrderRepository == nil {
		return fmt.Errorf("order repository is required")
	}
	if c.EventRepository == nil {
		return fmt.Errorf("event repository is required")
	}
	if c.Broker == nil {
		return fmt.Errorf("broker is required")
	}
	if c.Registry == nil {
		return fmt.Errorf("registry is required")
	}
	if c.StageConcurrency <= 0 {
		c.StageConcurrency = defaultStageConcurrency
	}
	if c.StageTimeout <= 0 {
		c.StageTimeout = defaultStageTimeout
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "pipeline.Manager"})
	return nil
}

// Manager owns the authoritative status of every order. All order mutation is
// funneled through its guarded operations, serialized per order, so
// concurrent advance/fail/cancel signals cannot race: the first one wins and
// stale ones are discarded as no-ops.
type Manager struct {
	orderRepo    storage.OrderRepository
	eventRepo    storage.EventRepository
	broker       *eventbus.Broker
	registry     *Registry
	stageTimeout time.Duration
	logger       log.Logger

	mu        sync.Mutex
	locks     map[string]*sync.Mutex
	runners   map[string]*runnerHandle
	lastEvent map[string]time.Time
	slots     map[model.Stage]chan struct{}

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

type runnerHandle struct {
	stage  model.Stage
	cancel context.CancelFunc
}

// NewManager creates a new pipeline manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	slots := map[model.Stage]chan struct{}{}
	for _, stage := range model.Stages {
		slots[stage] = make(chan struct{}, cfg.StageConcurrency)
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())

	return &Manager{
		orderRepo:    cfg.OrderRepository,
		eventRepo:    cfg.EventRepository,
		broker:       cfg.Broker,
		registry:     cfg.Registry,
		stageTimeout: cfg.StageTimeout,
		logger:       cfg.Logger,
		locks:        map[string]*sync.Mutex{},
		runners:      map[string]*runnerHandle{},
		lastEvent:    map[string]time.Time{},
		slots:        slots,
		baseCtx:      baseCtx,
		baseCancel:   baseCancel,
	}, nil
}

// Shutdown stops all running stage runners and waits for them to return.
func (m *Manager) Shutdown() {
	m.baseCancel()
	m.wg.Wait()
}

// Start moves an order into the pipeline and dispatches the first stage
// runner. Valid from pending and from any terminal status (restart, which
// clears prior progress, errors and results). Starting an already active
// order is an idempotent no-op. Returns immediately: outcome is reported
// through the event stream and order status.
func (m *Manager) Start(ctx context.Context, orderID string) error {
	lock := m.orderLock(orderID)
	lock.Lock()
	defer lock.Unlock()

	order, err := m.orderRepo.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("could not get order: %w", err)
	}

	if order.Status.IsActive() {
		m.logger.Debugf("Order %s is already active, start is a no-op", orderID)
		return nil
	}

	first := model.Stages[0]
	now := time.Now().UTC()
	order.Status = model.OrderStatusQueued
	order.CurrentStage = &first
	order.ProgressPct = 0
	order.StageDetail = ""
	order.ErrorMessage = ""
	order.ResultFiles = map[string]string{}
	order.StartedAt = &now
	order.CompletedAt = nil

	if err := m.orderRepo.UpdateOrder(ctx, *order); err != nil {
		return fmt.Errorf("could not update order: %w", err)
	}

	m.logger.Infof("Order %s (%s) queued for stage %s", order.Code, order.ID, first)
	m.dispatch(order.ID, first, nil)

	return nil
}

// Advance is invoked by a stage runner on success. A stale call (the order
// was cancelled, failed or already advanced by a duplicate signal) is
// discarded silently. Otherwise the order transitions to the next stage and
// its runner is dispatched, or to completed when the last stage finished.
func (m *Manager) Advance(ctx context.Context, orderID string, fromStage model.Stage, outputs Outputs) error {
	lock := m.orderLock(orderID)
	lock.Lock()
	defer lock.Unlock()

	order, err := m.orderRepo.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("could not get order: %w", err)
	}

	if stale(order, fromStage) {
		m.logger.Debugf("Discarded stale advance for order %s from stage %s", orderID, fromStage)
		return nil
	}

	if order.ResultFiles == nil {
		order.ResultFiles = map[string]string{}
	}
	for name, location := range outputs {
		order.ResultFiles[name] = location
	}

	next, ok := fromStage.Next()
	if !ok {
		now := time.Now().UTC()
		order.Status = model.OrderStatusCompleted
		order.CurrentStage = nil
		order.ProgressPct = 100
		order.StageDetail = "Pipeline completed"
		order.CompletedAt = &now

		if err := m.orderRepo.UpdateOrder(ctx, *order); err != nil {
			return fmt.Errorf("could not update order: %w", err)
		}

		m.logger.Infof("Order %s (%s) completed", order.Code, order.ID)
		return nil
	}

	low, _ := next.Band()
	order.Status = next.Status()
	order.CurrentStage = &next
	order.ProgressPct = low
	order.StageDetail = fmt.Sprintf("Starting %s", next)

	if err := m.orderRepo.UpdateOrder(ctx, *order); err != nil {
		return fmt.Errorf("could not update order: %w", err)
	}

	m.logger.Infof("Order %s (%s) advanced %s -> %s", order.Code, order.ID, fromStage, next)
	m.dispatch(order.ID, next, Outputs(order.ResultFiles))

	return nil
}

// Fail moves an order to failed, recording the reason. Stale calls are
// discarded silently, same guard as Advance. The current stage is kept for
// diagnostics and any running stage runner is cancelled.
func (m *Manager) Fail(ctx context.Context, orderID string, fromStage model.Stage, reason string) error {
	lock := m.orderLock(orderID)
	lock.Lock()
	defer lock.Unlock()

	order, err := m.orderRepo.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("could not get order: %w", err)
	}

	if stale(order, fromStage) {
		m.logger.Debugf("Discarded stale fail for order %s from stage %s", orderID, fromStage)
		return nil
	}

	order.Status = model.OrderStatusFailed
	order.ErrorMessage = reason
	order.StageDetail = reason

	if err := m.orderRepo.UpdateOrder(ctx, *order); err != nil {
		return fmt.Errorf("could not update order: %w", err)
	}

	// The failure is part of the order's event log too.
	m.recordLocked(order, fromStage, "error", model.EventStatusFailed, -1, reason)

	m.logger.Warningf("Order %s (%s) failed on stage %s: %s", order.Code, order.ID, fromStage, reason)
	m.cancelRunner(orderID)

	return nil
}

// Cancel stops an order. Terminal orders are an idempotent no-op. The running
// stage runner (if any) is signalled to stop at its next checkpoint;
// in-flight external calls are allowed to finish. The order status becomes
// cancelled immediately, so any advance or fail still in flight from the
// winding-down runner is discarded as stale.
func (m *Manager) Cancel(ctx context.Context, orderID string) error {
	lock := m.orderLock(orderID)
	lock.Lock()
	defer lock.Unlock()

	order, err := m.orderRepo.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("could not get order: %w", err)
	}

	if order.Status.IsTerminal() {
		m.logger.Debugf("Order %s is already terminal, cancel is a no-op", orderID)
		return nil
	}
	if !order.Status.IsActive() {
		return fmt.Errorf("order %s is not active: %w", orderID, model.ErrNotValid)
	}

	order.Status = model.OrderStatusCancelled
	order.StageDetail = "Cancelled by client"

	if err := m.orderRepo.UpdateOrder(ctx, *order); err != nil {
		return fmt.Errorf("could not update order: %w", err)
	}

	m.logger.Infof("Order %s (%s) cancelled", order.Code, order.ID)
	m.cancelRunner(orderID)

	return nil
}

// stale returns true when a signal from fromStage no longer matches the
// order's state and must be discarded as a harmless double delivery.
func stale(order *model.Order, fromStage model.Stage) bool {
	return !order.Status.IsActive() || order.CurrentStage == nil || *order.CurrentStage != fromStage
}

// record persists a progress event, updates the order's cached projection
// (progress, stage detail) and publishes the event on the bus, in that order:
// the persisted log is the source of truth, the live channel an optimization.
func (m *Manager) record(orderID string, stage model.Stage, step string, status model.EventStatus, pct float64, message string) {
	lock := m.orderLock(orderID)
	lock.Lock()
	defer lock.Unlock()

	order, err := m.orderRepo.GetOrder(m.baseCtx, orderID)
	if err != nil {
		m.logger.Errorf("Could not get order %s to record progress: %s", orderID, err)
		return
	}

	// Events from a runner whose order was cancelled or advanced are dropped,
	// same stale guard as the transitions.
	if stale(order, stage) {
		m.logger.Debugf("Dropped progress event for order %s from stale stage %s", orderID, stage)
		return
	}

	m.recordLocked(order, stage, step, status, pct, message)
}

// recordLocked is record without the guards, for callers already holding the
// order lock and a fresh order.
func (m *Manager) recordLocked(order *model.Order, stage model.Stage, step string, status model.EventStatus, pct float64, message string) {
	event := model.ProgressEvent{
		ID:        ulid.Make().String(),
		OrderID:   order.ID,
		Stage:     stage,
		Step:      step,
		Status:    status,
		Message:   message,
		CreatedAt: m.nextEventTime(order.ID),
	}
	if pct >= 0 {
		p := pct
		event.ProgressPct = &p
	}

	if err := m.eventRepo.AppendEvent(m.baseCtx, event); err != nil {
		// Never published live either: the log must always be ahead of the stream.
		m.logger.Errorf("Could not append progress event for order %s: %s", order.ID, err)
		return
	}

	// Project onto the order. Progress never goes backwards within a stage.
	changed := false
	if pct >= 0 {
		if overall := stage.OverallProgress(pct); overall > order.ProgressPct {
			order.ProgressPct = overall
			changed = true
		}
	}
	if message != "" && message != order.StageDetail {
		order.StageDetail = message
		changed = true
	}
	if changed && !order.Status.IsTerminal() {
		if err := m.orderRepo.UpdateOrder(m.baseCtx, *order); err != nil {
			m.logger.Errorf("Could not update order %s progress projection: %s", order.ID, err)
		}
	}

	m.broker.Publish(event)
}

// nextEventTime returns a server-assigned timestamp that is strictly
// increasing per order, so the persisted log has a total order and clients
// can use the last persisted timestamp as a live-stream cutoff.
func (m *Manager) nextEventTime(orderID string) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts := time.Now().UTC()
	if last, ok := m.lastEvent[orderID]; ok && !ts.After(last) {
		ts = last.Add(time.Millisecond)
	}
	m.lastEvent[orderID] = ts
	return ts
}

func (m *Manager) orderLock(orderID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[orderID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[orderID] = lock
	}
	return lock
}

func (m *Manager) cancelRunner(orderID string) {
	m.mu.Lock()
	handle := m.runners[orderID]
	m.mu.Unlock()

	if handle != nil {
		handle.cancel()
	}
}

// dispatch schedules a stage runner for an order. Fire and forget: the
// calling stage (if any) has no further responsibility for the next one.
func (m *Manager) dispatch(orderID string, stage model.Stage, prior Outputs) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runStage(orderID, stage, prior)
	}()
}

// runStage executes one stage for one order on the stage's worker pool.
func (m *Manager) runStage(orderID string, stage model.Stage, prior Outputs) {
	// Bound per-stage concurrency.
	select {
	case m.slots[stage] <- struct{}{}:
		defer func() { <-m.slots[stage] }()
	case <-m.baseCtx.Done():
		return
	}

	ctx, cancel := context.WithTimeout(m.baseCtx, m.stageTimeout)
	defer cancel()

	order, ok := m.beginStage(ctx, orderID, stage, cancel)
	if !ok {
		return
	}
	defer m.removeRunner(orderID)

	impl, err := m.registry.Stage(stage)
	if err != nil {
		_ = m.Fail(m.baseCtx, orderID, stage, err.Error())
		return
	}

	emit := func(step string, status model.EventStatus, pct float64, message string) {
		m.record(orderID, stage, step, status, pct, message)
	}

	outputs, err := impl.Run(ctx, Request{Order: *order, PriorOutputs: prior, Emit: emit})
	switch {
	case err == nil:
		if err := m.Advance(m.baseCtx, orderID, stage, outputs); err != nil {
			m.logger.Errorf("Could not advance order %s: %s", orderID, err)
		}
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == context.DeadlineExceeded:
		_ = m.Fail(m.baseCtx, orderID, stage, fmt.Sprintf("stage %s exceeded its %s budget", stage, m.stageTimeout))
	case errors.Is(err, context.Canceled):
		// Cooperative cancellation checkpoint: the cancel path owns the
		// terminal transition, the runner just returns.
		m.logger.Debugf("Stage %s runner for order %s stopped on cancellation", stage, orderID)
	default:
		_ = m.Fail(m.baseCtx, orderID, stage, err.Error())
	}
}

// beginStage validates the runner's precondition (its stage must still be the
// order's current stage) and marks the stage as running. A failed validation
// means the invocation is discarded, not an error.
func (m *Manager) beginStage(ctx context.Context, orderID string, stage model.Stage, cancel context.CancelFunc) (*model.Order, bool) {
	lock := m.orderLock(orderID)
	lock.Lock()
	defer lock.Unlock()

	order, err := m.orderRepo.GetOrder(ctx, orderID)
	if err != nil {
		m.logger.Errorf("Could not get order %s to begin stage: %s", orderID, err)
		return nil, false
	}

	if stale(order, stage) {
		m.logger.Debugf("Discarded runner invocation for order %s, stage %s is not current", orderID, stage)
		return nil, false
	}

	if order.Status != stage.Status() {
		low, _ := stage.Band()
		order.Status = stage.Status()
		if order.ProgressPct < low {
			order.ProgressPct = low
		}
		if err := m.orderRepo.UpdateOrder(ctx, *order); err != nil {
			m.logger.Errorf("Could not update order %s to begin stage: %s", orderID, err)
			return nil, false
		}
	}

	m.mu.Lock()
	m.runners[orderID] = &runnerHandle{stage: stage, cancel: cancel}
	m.mu.Unlock()

	m.logger.Debugf("Order %s began stage %s", orderID, stage)
	return order, true
}

func (m *Manager) removeRunner(orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runners, orderID)
}
