package lib

import (
	"context"
	"time"

	"github.com/ptmflow/ptmflow/internal/log"
	"github.com/ptmflow/ptmflow/internal/model"
	"github.com/ptmflow/ptmflow/internal/timeline"
)

// WatchUpdate is a snapshot of an order and its merged timeline.
type WatchUpdate struct {
	// Order is the latest known order state.
	Order Order
	// Timeline is the merged and collapsed history of the order.
	Timeline []TimelineEntry
	// Current is the most recent timeline entry, nil when there are no
	// events yet.
	Current *TimelineEntry
}

// WatchOptions are the options for watching an order.
type WatchOptions struct {
	// PollInterval overrides the client's reconciliation poll interval.
	PollInterval time.Duration
}

// Watcher follows one order until it reaches a terminal status. It merges
// the persisted progress log with the live stream, reconciling on every
// poll interval so missed events are recovered after reconnects.
type Watcher struct {
	updates chan WatchUpdate
	cancel  context.CancelFunc
}

// Updates returns the channel snapshots are delivered on. Intermediate
// snapshots are coalesced when the consumer is slow, the latest one wins.
// The channel is closed when the order reaches a terminal status, the
// context ends, or Close is called.
func (w *Watcher) Updates() <-chan WatchUpdate { return w.updates }

// Close stops watching and closes the updates channel.
func (w *Watcher) Close() { w.cancel() }

// Watch follows an order's progress. The first snapshot is fetched
// synchronously, so unknown orders fail fast with ErrNotFound.
func (c *Client) Watch(ctx context.Context, ref string, opts WatchOptions) (*Watcher, error) {
	pollInterval := opts.PollInterval
	if pollInterval == 0 {
		pollInterval = c.pollInterval
	}

	ctx, cancel := context.WithCancel(ctx)

	w := &Watcher{
		updates: make(chan WatchUpdate, 1),
		cancel:  cancel,
	}

	rec := timeline.NewReconciler()

	order, err := w.refresh(ctx, c, ref, rec)
	if err != nil {
		cancel()
		return nil, err
	}

	if order.Status.IsTerminal() {
		cancel()
		close(w.updates)
		return w, nil
	}

	sub, err := c.Subscribe(ctx, ref)
	if err != nil {
		cancel()
		return nil, err
	}

	go w.run(ctx, c, ref, rec, sub, *order, pollInterval)

	return w, nil
}

func (w *Watcher) run(ctx context.Context, c *Client, ref string, rec *timeline.Reconciler, sub *Subscription, order Order, pollInterval time.Duration) {
	defer close(w.updates)
	defer sub.Close()

	logger := c.logger.WithValues(log.Kv{"order": ref})

	poll := time.NewTicker(pollInterval)
	defer poll.Stop()

	resync := func() (done bool) {
		latest, err := w.refresh(ctx, c, ref, rec)
		if err != nil {
			if ctx.Err() != nil {
				return true
			}
			logger.Warningf("Could not reconcile order: %s", err)
			return false
		}
		order = *latest
		return order.Status.IsTerminal()
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if rec.AddLive(event.toInternalEvent()) {
				w.emit(order, rec)
			}
			// Terminal-looking events mean the order state just changed, so
			// resync immediately instead of waiting for the next poll.
			if eventLooksTerminal(event) && resync() {
				return
			}

		case <-poll.C:
			if resync() {
				return
			}
		}
	}
}

// refresh refetches the order and its persisted log, reseeds the reconciler
// and emits a snapshot.
func (w *Watcher) refresh(ctx context.Context, c *Client, ref string, rec *timeline.Reconciler) (*Order, error) {
	order, events, err := c.OrderEvents(ctx, ref, OrderEventsOpts{})
	if err != nil {
		return nil, err
	}

	history := make([]model.ProgressEvent, 0, len(events))
	for _, e := range events {
		history = append(history, e.toInternalEvent())
	}
	rec.SetHistory(history)

	w.emit(*order, rec)
	return order, nil
}

// emit delivers a snapshot without blocking, replacing a pending one the
// consumer has not read yet.
func (w *Watcher) emit(order Order, rec *timeline.Reconciler) {
	entries := rec.Timeline()
	update := WatchUpdate{
		Order:    order,
		Timeline: make([]TimelineEntry, 0, len(entries)),
	}
	for _, entry := range entries {
		update.Timeline = append(update.Timeline, fromInternalEntry(entry))
	}
	if current := rec.Current(); current != nil {
		entry := fromInternalEntry(*current)
		update.Current = &entry
	}

	for {
		select {
		case w.updates <- update:
			return
		default:
			select {
			case <-w.updates:
			default:
			}
		}
	}
}

// eventLooksTerminal reports whether an event hints the order just reached a
// terminal status.
func eventLooksTerminal(e ProgressEvent) bool {
	if e.Status == string(model.EventStatusFailed) {
		return true
	}
	return e.Stage == string(model.StageReportGeneration) &&
		e.Status == string(model.EventStatusCompleted) &&
		e.ProgressPct != nil && *e.ProgressPct >= 100
}
