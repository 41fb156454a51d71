// Package timeline merges the persisted progress log of an order with its
// live event stream into one ordered, de-duplicated, display-ready timeline.
//
// The two sources overlap in time but not in guarantees: the persisted log is
// complete but not live, the stream is timely but misses everything published
// while the client was disconnected. The reconciler cuts live events at the
// timestamp of the last persisted event, so re-querying history after a
// reconnect always restores a complete view.
package timeline

import (
	"sync"
	"time"

	"github.com/ptmflow/ptmflow/internal/model"
)

// Entry is one rendered timeline item. Sub is set when the event's message
// parses as a sub-progress counter, making the entry a progress update rather
// than a discrete milestone.
type Entry struct {
	Event model.ProgressEvent
	Sub   *SubProgress
}

// IsProgressUpdate returns true when the entry carries a parsed sub-progress
// counter.
func (e Entry) IsProgressUpdate() bool { return e.Sub != nil }

// Collapse reduces a merged, ordered event sequence for display: when a
// progress-update event for a step is immediately followed by another
// progress update for the same step, the earlier one is dropped. Milestones
// are never collapsed. Collapse is a pure function of its input.
func Collapse(events []model.ProgressEvent) []Entry {
	entries := make([]Entry, 0, len(events))
	for _, ev := range events {
		entry := Entry{Event: ev}
		if sub, ok := ParseSubProgress(ev.Message); ok {
			entry.Sub = &sub
		}

		if len(entries) > 0 {
			prev := entries[len(entries)-1]
			if prev.IsProgressUpdate() && entry.IsProgressUpdate() && prev.Event.Step == entry.Event.Step {
				entries[len(entries)-1] = entry
				continue
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

// Reconciler merges persisted history with a live event tail. Safe for
// concurrent use: the live stream and the reconciliation poll feed it from
// different goroutines.
type Reconciler struct {
	mu        sync.RWMutex
	persisted []model.ProgressEvent
	live      []model.ProgressEvent
	cutoff    time.Time
}

// NewReconciler creates an empty reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// SetHistory replaces the persisted portion of the timeline with a fresh
// history query result (ordered oldest first). Live events at or before the
// new cutoff are discarded: history already contains them.
func (r *Reconciler) SetHistory(events []model.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.persisted = append([]model.ProgressEvent(nil), events...)
	r.cutoff = time.Time{}
	if len(r.persisted) > 0 {
		r.cutoff = r.persisted[len(r.persisted)-1].CreatedAt
	}

	kept := r.live[:0]
	for _, ev := range r.live {
		if ev.CreatedAt.After(r.cutoff) {
			kept = append(kept, ev)
		}
	}
	r.live = kept
}

// AddLive offers a live-stream event to the timeline. Events at or before the
// history cutoff are rejected, they were already observed through the
// persisted log. Returns true when the event was accepted.
func (r *Reconciler) AddLive(ev model.ProgressEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !ev.CreatedAt.After(r.cutoff) {
		return false
	}
	r.live = append(r.live, ev)
	return true
}

// Timeline returns the collapsed, display-ready timeline, oldest first.
func (r *Reconciler) Timeline() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	merged := make([]model.ProgressEvent, 0, len(r.persisted)+len(r.live))
	merged = append(merged, r.persisted...)
	merged = append(merged, r.live...)
	return Collapse(merged)
}

// Current returns the single most recent event as the order's current
// activity, or nil when the timeline is empty.
func (r *Reconciler) Current() *Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var last *model.ProgressEvent
	if len(r.live) > 0 {
		last = &r.live[len(r.live)-1]
	} else if len(r.persisted) > 0 {
		last = &r.persisted[len(r.persisted)-1]
	}
	if last == nil {
		return nil
	}

	entry := Entry{Event: *last}
	if sub, ok := ParseSubProgress(last.Message); ok {
		entry.Sub = &sub
	}
	return &entry
}
