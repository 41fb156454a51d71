package preprocessing_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptmflow/ptmflow/internal/model"
	"github.com/ptmflow/ptmflow/internal/pipeline"
	"github.com/ptmflow/ptmflow/internal/stage/preprocessing"
	"github.com/ptmflow/ptmflow/internal/stage/preprocessing/fake"
	"github.com/ptmflow/ptmflow/internal/timeline"
)

type recordedEvent struct {
	step    string
	status  model.EventStatus
	pct     float64
	message string
}

type emitRecorder struct {
	events []recordedEvent
}

func (r *emitRecorder) emit(step string, status model.EventStatus, pct float64, message string) {
	r.events = append(r.events, recordedEvent{step: step, status: status, pct: pct, message: message})
}

func newFakeStage(t *testing.T) *preprocessing.Stage {
	t.Helper()

	collabs, err := fake.New(fake.Config{Sites: 6095, BatchDelay: time.Millisecond})
	require.NoError(t, err)

	s, err := preprocessing.NewStage(preprocessing.StageConfig{
		Quantifier:   collabs,
		Annotator:    collabs,
		Plotter:      collabs,
		RetryBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	return s
}

func testOrder() model.Order {
	return model.Order{ID: "01K0000000000000000000000A", Code: "ptm-001"}
}

func TestStageRun(t *testing.T) {
	rec := &emitRecorder{}
	s := newFakeStage(t)

	outputs, err := s.Run(context.Background(), pipeline.Request{Order: testOrder(), Emit: rec.emit})
	require.NoError(t, err)

	assert.Contains(t, outputs, "site_matrix")
	assert.Contains(t, outputs, "protein_matrix")
	assert.Contains(t, outputs, "annotated_matrix")

	require.NotEmpty(t, rec.events)
	first := rec.events[0]
	assert.Equal(t, "start", first.step)
	assert.Equal(t, model.EventStatusStarted, first.status)

	last := rec.events[len(rec.events)-1]
	assert.Equal(t, "finalization", last.step)
	assert.Equal(t, model.EventStatusCompleted, last.status)
	assert.Equal(t, float64(100), last.pct)

	// Intermediate ticks carry parseable sub-progress counters.
	parsed := 0
	for _, e := range rec.events {
		if e.status != model.EventStatusRunning {
			continue
		}
		if sub, ok := timeline.ParseSubProgress(e.message); ok {
			parsed++
			assert.Positive(t, sub.Total)
		}
	}
	assert.Greater(t, parsed, 10, "running ticks should carry sub-progress counters")
}

func TestStageRunQuantificationFailure(t *testing.T) {
	rec := &emitRecorder{}
	collabs, err := fake.New(fake.Config{BatchDelay: time.Millisecond})
	require.NoError(t, err)

	s, err := preprocessing.NewStage(preprocessing.StageConfig{
		Quantifier: failingQuantifier{},
		Annotator:  collabs,
	})
	require.NoError(t, err)

	_, err = s.Run(context.Background(), pipeline.Request{Order: testOrder(), Emit: rec.emit})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quantification failed")
}

func TestStageRunCancellation(t *testing.T) {
	rec := &emitRecorder{}
	s := newFakeStage(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Run(ctx, pipeline.Request{Order: testOrder(), Emit: rec.emit})
	require.ErrorIs(t, err, context.Canceled)
}

type failingQuantifier struct{}

func (failingQuantifier) Quantify(ctx context.Context, req preprocessing.QuantifyRequest) (*preprocessing.QuantifyResult, error) {
	return nil, fmt.Errorf("malformed precursor matrix")
}
