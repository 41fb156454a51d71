// Package reportgen implements the final pipeline stage: drafting the
// analytical report sections from the gathered evidence, a review pass and
// rendering of the deliverable documents.
package reportgen

import (
	"context"
	"fmt"
	"time"

	"github.com/ptmflow/ptmflow/internal/log"
	"github.com/ptmflow/ptmflow/internal/model"
	"github.com/ptmflow/ptmflow/internal/pipeline"
	"github.com/ptmflow/ptmflow/internal/stage"
)

// DraftRequest asks the drafter to write the report sections.
type DraftRequest struct {
	OrderCode string
	// EvidencePath is the structured evidence produced by the enrichment
	// stage, SummaryPath its narrative summary.
	EvidencePath string
	SummaryPath  string
	Title        string
	OnProgress   stage.ProgressFunc
}

// DraftResult carries the drafted sections.
type DraftResult struct {
	DraftPath string
	Sections  int
}

// Drafter writes the report sections from the evidence. Backed by a language
// model, so calls are retried on transient failures.
type Drafter interface {
	DraftSections(ctx context.Context, req DraftRequest) (*DraftResult, error)
}

// ReviewResult carries the reviewed draft and how many findings were fixed.
type ReviewResult struct {
	DraftPath string
	Findings  int
}

// Reviewer checks a draft for unsupported claims and broken references and
// returns a corrected draft.
type Reviewer interface {
	Review(ctx context.Context, draftPath string) (*ReviewResult, error)
}

// RenderResult carries the final deliverables.
type RenderResult struct {
	ReportPath string
	// ExportPath is the optional word-processor export, empty when the
	// renderer does not produce one.
	ExportPath string
}

// Renderer compiles the reviewed draft into the deliverable documents.
type Renderer interface {
	Render(ctx context.Context, draftPath string) (*RenderResult, error)
}

const defaultReportTitle = "Comprehensive Analysis Report"

// StageConfig is the configuration for the report generation stage.
type StageConfig struct {
	Drafter  Drafter
	Reviewer Reviewer
	Renderer Renderer
	// ReportTitle is used when the order does not carry its own.
	ReportTitle   string
	RetryAttempts int
	RetryBackoff  time.Duration
	Logger        log.Logger
}

func (c *StageConfig) defaults() error {
	if c.Drafter == nil {
		return fmt.Errorf("drafter is required")
	}
	if c.Reviewer == nil {
		return fmt.Errorf("reviewer is required")
	}
	if c.Renderer == nil {
		return fmt.Errorf("renderer is required")
	}
	if c.ReportTitle == "" {
		c.ReportTitle = defaultReportTitle
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 2
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "stage.ReportGeneration"})
	return nil
}

// Stage is the report generation stage implementation.
type Stage struct {
	drafter  Drafter
	reviewer Reviewer
	renderer Renderer
	title    string
	attempts int
	backoff  time.Duration
	logger   log.Logger
}

// NewStage creates a new report generation stage.
func NewStage(cfg StageConfig) (*Stage, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Stage{
		drafter:  cfg.Drafter,
		reviewer: cfg.Reviewer,
		renderer: cfg.Renderer,
		title:    cfg.ReportTitle,
		attempts: cfg.RetryAttempts,
		backoff:  cfg.RetryBackoff,
		logger:   cfg.Logger,
	}, nil
}

var _ pipeline.Stage = &Stage{}

// Run executes section drafting, review, rendering and finalization, in that
// order.
func (s *Stage) Run(ctx context.Context, req pipeline.Request) (pipeline.Outputs, error) {
	start := time.Now()
	code := req.Order.Code
	req.Emit("start", model.EventStatusStarted, 0, "Report generation pipeline started")

	// Step 1: draft the sections.
	req.Emit("drafting", model.EventStatusStarted, 2, "Loading enrichment evidence")

	var draft *DraftResult
	err := pipeline.Retry(ctx, s.attempts, s.backoff, func(ctx context.Context) error {
		var err error
		draft, err = s.drafter.DraftSections(ctx, DraftRequest{
			OrderCode:    code,
			EvidencePath: req.PriorOutputs["evidence"],
			SummaryPath:  req.PriorOutputs["evidence_summary"],
			Title:        s.title,
			OnProgress:   stage.Span(req.Emit, "drafting", 2, 63),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("section drafting failed: %w", err)
	}

	req.Emit("drafting", model.EventStatusCompleted, 65,
		fmt.Sprintf("Drafted %d report sections", draft.Sections))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 2: review pass.
	req.Emit("review", model.EventStatusStarted, 65, "Reviewing draft for unsupported claims")

	review, err := s.reviewer.Review(ctx, draft.DraftPath)
	if err != nil {
		return nil, fmt.Errorf("draft review failed: %w", err)
	}

	req.Emit("review", model.EventStatusCompleted, 85,
		fmt.Sprintf("Review complete, %d findings fixed", review.Findings))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 3: render the deliverables.
	req.Emit("rendering", model.EventStatusStarted, 85, "Rendering deliverable documents")

	rendered, err := s.renderer.Render(ctx, review.DraftPath)
	if err != nil {
		return nil, fmt.Errorf("rendering failed: %w", err)
	}

	outputs := pipeline.Outputs{"report": rendered.ReportPath}
	if rendered.ExportPath != "" {
		outputs["report_export"] = rendered.ExportPath
	}

	req.Emit("rendering", model.EventStatusCompleted, 95, "Deliverables rendered")

	// Step 4: finalization.
	elapsed := time.Since(start).Round(100 * time.Millisecond)
	req.Emit("finalization", model.EventStatusCompleted, 100,
		fmt.Sprintf("Report generation complete (%s, %d files)", elapsed, len(outputs)))
	s.logger.Infof("Order %s report generation completed in %s", code, elapsed)

	return outputs, nil
}
