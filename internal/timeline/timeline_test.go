package timeline_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptmflow/ptmflow/internal/model"
	"github.com/ptmflow/ptmflow/internal/timeline"
)

var t0 = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

func event(step, message string, offset time.Duration) model.ProgressEvent {
	return model.ProgressEvent{
		OrderID:   "order-1",
		Stage:     model.StagePreprocessing,
		Step:      step,
		Status:    model.EventStatusRunning,
		Message:   message,
		CreatedAt: t0.Add(offset),
	}
}

func messages(entries []timeline.Entry) []string {
	msgs := make([]string, 0, len(entries))
	for _, e := range entries {
		msgs = append(msgs, e.Event.Message)
	}
	return msgs
}

func TestCollapse(t *testing.T) {
	tests := map[string]struct {
		events      []model.ProgressEvent
		expMessages []string
	}{
		"empty input yields empty output": {
			events:      nil,
			expMessages: []string{},
		},
		"consecutive progress updates for one step collapse to the latest": {
			events: []model.ProgressEvent{
				event("enrich", "X: 10/100", 0),
				event("enrich", "X: 50/100", time.Second),
				event("enrich", "X: 90/100", 2*time.Second),
			},
			expMessages: []string{"X: 90/100"},
		},
		"milestone between progress updates is never collapsed": {
			events: []model.ProgressEvent{
				event("enrich", "X: 10/100", 0),
				event("enrich", "Checkpoint saved", time.Second),
				event("enrich", "X: 90/100", 2*time.Second),
			},
			expMessages: []string{"X: 10/100", "Checkpoint saved", "X: 90/100"},
		},
		"progress updates of different steps do not collapse": {
			events: []model.ProgressEvent{
				event("uniprot", "UniProt: 10/100", 0),
				event("kegg", "KEGG: 20/100", time.Second),
			},
			expMessages: []string{"UniProt: 10/100", "KEGG: 20/100"},
		},
		"milestones for the same step do not collapse": {
			events: []model.ProgressEvent{
				event("enrich", "Starting", 0),
				event("enrich", "Still going", time.Second),
			},
			expMessages: []string{"Starting", "Still going"},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			entries := timeline.Collapse(test.events)
			assert.Equal(t, test.expMessages, messages(entries))
		})
	}
}

func TestCollapseIsPure(t *testing.T) {
	events := []model.ProgressEvent{
		event("enrich", "X: 10/100", 0),
		event("enrich", "X: 50/100", time.Second),
		event("enrich", "Milestone", 2*time.Second),
		event("enrich", "X: 90/100", 3*time.Second),
	}

	first := timeline.Collapse(events)
	second := timeline.Collapse(events)
	assert.Equal(t, first, second)
}

func TestReconcilerCutoff(t *testing.T) {
	rec := timeline.NewReconciler()

	persisted := []model.ProgressEvent{
		event("quant", "Quantification started", 0),
		event("quant", "Precursors: 100/200", time.Second),
	}
	rec.SetHistory(persisted)

	// Live event inside the overlap window is rejected.
	assert.False(t, rec.AddLive(event("quant", "Precursors: 100/200", time.Second)))
	// Live event at the exact cutoff is rejected too, only strictly newer is live.
	assert.False(t, rec.AddLive(event("quant", "Precursors: 100/200", 1000*time.Millisecond)))
	// Newer events are accepted.
	assert.True(t, rec.AddLive(event("quant", "Precursors: 150/200", 1500*time.Millisecond)))

	entries := rec.Timeline()
	assert.Equal(t, []string{"Quantification started", "Precursors: 150/200"}, messages(entries))
}

func TestReconcilerReconnect(t *testing.T) {
	// A client that disconnects and later re-queries history must end with the
	// same timeline as one that never disconnected.
	all := []model.ProgressEvent{
		event("quant", "Quantification started", 0),
		event("quant", "Precursors: 100/200", time.Second),
		event("quant", "Precursors: 200/200", 2*time.Second),
		event("enrich", "Enrichment started", 3*time.Second),
		event("enrich", "UniProt: 50/100", 4*time.Second),
	}

	// Client that never disconnected: history up to the first event, the rest live.
	connected := timeline.NewReconciler()
	connected.SetHistory(all[:1])
	for _, ev := range all[1:] {
		require.True(t, connected.AddLive(ev))
	}

	// Client that missed events 1-3 while disconnected, then reconnected:
	// re-queries full history, then receives the tail live.
	reconnected := timeline.NewReconciler()
	reconnected.SetHistory(all[:1])
	// Disconnect here. On reconnect, history is re-fetched (now holds 0-3).
	reconnected.SetHistory(all[:4])
	require.True(t, reconnected.AddLive(all[4]))

	assert.Equal(t, connected.Timeline(), reconnected.Timeline())
}

func TestReconcilerHistoryRefreshDropsStaleLive(t *testing.T) {
	rec := timeline.NewReconciler()
	rec.SetHistory(nil)

	// Live events arrive before any history is known.
	require.True(t, rec.AddLive(event("quant", "Precursors: 100/200", time.Second)))
	require.True(t, rec.AddLive(event("quant", "Precursors: 200/200", 2*time.Second)))

	// The poll path re-queries history, which now persists both events.
	rec.SetHistory([]model.ProgressEvent{
		event("quant", "Quantification started", 0),
		event("quant", "Precursors: 100/200", time.Second),
		event("quant", "Precursors: 200/200", 2*time.Second),
	})

	entries := rec.Timeline()
	assert.Equal(t, []string{"Quantification started", "Precursors: 200/200"}, messages(entries))
}

func TestReconcilerCurrent(t *testing.T) {
	rec := timeline.NewReconciler()
	assert.Nil(t, rec.Current())

	rec.SetHistory([]model.ProgressEvent{
		event("quant", "Quantification started", 0),
	})
	current := rec.Current()
	require.NotNil(t, current)
	assert.Equal(t, "Quantification started", current.Event.Message)
	assert.False(t, current.IsProgressUpdate())

	rec.AddLive(event("quant", "Precursors: 100/200", time.Second))
	current = rec.Current()
	require.NotNil(t, current)
	assert.Equal(t, "Precursors: 100/200", current.Event.Message)
	require.True(t, current.IsProgressUpdate())
	assert.Equal(t, 50, current.Sub.Pct)
}
