package reportgen_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptmflow/ptmflow/internal/model"
	"github.com/ptmflow/ptmflow/internal/pipeline"
	"github.com/ptmflow/ptmflow/internal/stage/reportgen"
	"github.com/ptmflow/ptmflow/internal/stage/reportgen/fake"
)

type recordedEvent struct {
	step   string
	status model.EventStatus
	pct    float64
}

type emitRecorder struct {
	events []recordedEvent
}

func (r *emitRecorder) emit(step string, status model.EventStatus, pct float64, message string) {
	r.events = append(r.events, recordedEvent{step: step, status: status, pct: pct})
}

func testRequest(emit pipeline.EmitFunc) pipeline.Request {
	return pipeline.Request{
		Order: model.Order{ID: "01K0000000000000000000000A", Code: "ptm-001"},
		PriorOutputs: pipeline.Outputs{
			"evidence":         "/data/orders/ptm-001/enriched_sites.json",
			"evidence_summary": "/data/orders/ptm-001/evidence_summary.md",
		},
		Emit: emit,
	}
}

func TestStageRun(t *testing.T) {
	rec := &emitRecorder{}

	collabs, err := fake.New(fake.Config{Sections: 4, BatchDelay: time.Millisecond})
	require.NoError(t, err)

	s, err := reportgen.NewStage(reportgen.StageConfig{
		Drafter:      collabs,
		Reviewer:     collabs,
		Renderer:     collabs,
		RetryBackoff: time.Millisecond,
	})
	require.NoError(t, err)

	outputs, err := s.Run(context.Background(), testRequest(rec.emit))
	require.NoError(t, err)

	assert.Equal(t, "/data/orders/ptm-001/comprehensive_report.md", outputs["report"])
	assert.Equal(t, "/data/orders/ptm-001/comprehensive_report.docx", outputs["report_export"])

	last := rec.events[len(rec.events)-1]
	assert.Equal(t, "finalization", last.step)
	assert.Equal(t, model.EventStatusCompleted, last.status)
	assert.Equal(t, float64(100), last.pct)
}

func TestStageRunRenderFailure(t *testing.T) {
	rec := &emitRecorder{}

	collabs, err := fake.New(fake.Config{BatchDelay: time.Millisecond})
	require.NoError(t, err)

	s, err := reportgen.NewStage(reportgen.StageConfig{
		Drafter:      collabs,
		Reviewer:     collabs,
		Renderer:     failingRenderer{},
		RetryBackoff: time.Millisecond,
	})
	require.NoError(t, err)

	_, err = s.Run(context.Background(), testRequest(rec.emit))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rendering failed")
}

type failingRenderer struct{}

func (failingRenderer) Render(ctx context.Context, draftPath string) (*reportgen.RenderResult, error) {
	return nil, fmt.Errorf("export toolchain missing")
}
