// Package eventbus implements the per-order publish/subscribe channel that
// stage workers publish progress events to and stream gateways subscribe to.
//
// Delivery is best effort: events are durably persisted before they are
// published here, so the bus is a latency optimization, never the source of
// truth. Publishing never blocks, a slow subscriber drops events instead of
// backpressuring the pipeline.
package eventbus

import (
	"fmt"
	"sync"

	"github.com/ptmflow/ptmflow/internal/log"
	"github.com/ptmflow/ptmflow/internal/model"
)

const defaultBufferSize = 64

// BrokerConfig is the configuration for the broker.
type BrokerConfig struct {
	// BufferSize is the per-subscription channel buffer.
	BufferSize int
	Logger     log.Logger
}

func (c *BrokerConfig) defaults() error {
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "eventbus.Broker"})
	return nil
}

// Broker is an in-process, per-order pub/sub broker for progress events.
type Broker struct {
	mu         sync.RWMutex
	subs       map[string]map[*Subscription]struct{} // Keyed by order ID.
	bufferSize int
	closed     bool
	logger     log.Logger
}

// NewBroker creates a new broker.
func NewBroker(cfg BrokerConfig) (*Broker, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Broker{
		subs:       map[string]map[*Subscription]struct{}{},
		bufferSize: cfg.BufferSize,
		logger:     cfg.Logger,
	}, nil
}

// Subscription is the ephemeral, per-connection state of one subscriber.
type Subscription struct {
	orderID string
	ch      chan model.ProgressEvent
	broker  *Broker
	once    sync.Once
}

// Events returns the channel live events are delivered on. The channel is
// closed when the subscription or the broker is closed.
func (s *Subscription) Events() <-chan model.ProgressEvent { return s.ch }

// Close unsubscribes and releases the subscription.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.unsubscribe(s)
		close(s.ch)
	})
}

// Subscribe registers a new subscriber for an order's events.
func (b *Broker) Subscribe(orderID string) (*Subscription, error) {
	if orderID == "" {
		return nil, fmt.Errorf("order id is required: %w", model.ErrNotValid)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("broker is closed")
	}

	sub := &Subscription{
		orderID: orderID,
		ch:      make(chan model.ProgressEvent, b.bufferSize),
		broker:  b,
	}

	if b.subs[orderID] == nil {
		b.subs[orderID] = map[*Subscription]struct{}{}
	}
	b.subs[orderID][sub] = struct{}{}

	b.logger.Debugf("Subscribed to order %s (%d subscribers)", orderID, len(b.subs[orderID]))
	return sub, nil
}

// Publish delivers an event to all subscribers of its order. It never blocks:
// subscribers whose buffer is full miss the event and recover it from the
// persisted log on their next reconcile.
func (b *Broker) Publish(e model.ProgressEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for sub := range b.subs[e.OrderID] {
		select {
		case sub.ch <- e:
		default:
			b.logger.Debugf("Dropped event for slow subscriber on order %s", e.OrderID)
		}
	}
}

// Close shuts down the broker and closes every subscription channel.
func (b *Broker) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = map[string]map[*Subscription]struct{}{}
	b.closed = true
	b.mu.Unlock()

	for _, orderSubs := range subs {
		for sub := range orderSubs {
			sub.once.Do(func() { close(sub.ch) })
		}
	}
}

func (b *Broker) unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.subs[s.orderID]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(b.subs, s.orderID)
		}
	}
}
