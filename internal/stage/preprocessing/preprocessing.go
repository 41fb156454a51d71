// Package preprocessing implements the first pipeline stage: site level
// quantification of the order's raw matrices followed by domain/motif and
// biological annotation of the quantified sites.
package preprocessing

import (
	"context"
	"fmt"
	"time"

	"github.com/ptmflow/ptmflow/internal/log"
	"github.com/ptmflow/ptmflow/internal/model"
	"github.com/ptmflow/ptmflow/internal/pipeline"
	"github.com/ptmflow/ptmflow/internal/stage"
)

// QuantifyRequest asks the quantifier to compute the normalized site and
// protein level matrices for an order.
type QuantifyRequest struct {
	OrderCode  string
	OnProgress stage.ProgressFunc
}

// QuantifyResult carries the quantifier's artifacts.
type QuantifyResult struct {
	SiteMatrixPath    string
	ProteinMatrixPath string
	Sites             int
}

// Quantifier computes site level quantification from the order's raw inputs.
type Quantifier interface {
	Quantify(ctx context.Context, req QuantifyRequest) (*QuantifyResult, error)
}

// AnnotateRequest asks the annotator to enrich a quantified site matrix.
type AnnotateRequest struct {
	OrderCode      string
	SiteMatrixPath string
	OnProgress     stage.ProgressFunc
}

// AnnotateResult carries the annotated matrix and how many sites got hits.
type AnnotateResult struct {
	MatrixPath string
	Annotated  int
}

// Annotator looks up external annotations for quantified sites. Both methods
// hit remote reference services, so calls are retried on transient failures.
type Annotator interface {
	// AnnotateDomains adds domain and sequence motif annotations.
	AnnotateDomains(ctx context.Context, req AnnotateRequest) (*AnnotateResult, error)
	// AnnotateBiology adds pathway, interaction and function annotations.
	AnnotateBiology(ctx context.Context, req AnnotateRequest) (*AnnotateResult, error)
}

// Plotter renders overview figures for a site matrix. Plot failures are not
// fatal to the stage.
type Plotter interface {
	RenderSitePlots(ctx context.Context, siteMatrixPath string) ([]string, error)
}

// StageConfig is the configuration for the preprocessing stage.
type StageConfig struct {
	Quantifier Quantifier
	Annotator  Annotator
	Plotter    Plotter
	// RetryAttempts bounds retries of annotation lookups.
	RetryAttempts int
	RetryBackoff  time.Duration
	Logger        log.Logger
}

func (c *StageConfig) defaults() error {
	if c.Quantifier == nil {
		return fmt.Errorf("quantifier is required")
	}
	if c.Annotator == nil {
		return fmt.Errorf("annotator is required")
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "stage.Preprocessing"})
	return nil
}

// Stage is the preprocessing stage implementation.
type Stage struct {
	quantifier Quantifier
	annotator  Annotator
	plotter    Plotter
	attempts   int
	backoff    time.Duration
	logger     log.Logger
}

// NewStage creates a new preprocessing stage.
func NewStage(cfg StageConfig) (*Stage, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Stage{
		quantifier: cfg.Quantifier,
		annotator:  cfg.Annotator,
		plotter:    cfg.Plotter,
		attempts:   cfg.RetryAttempts,
		backoff:    cfg.RetryBackoff,
		logger:     cfg.Logger,
	}, nil
}

var _ pipeline.Stage = &Stage{}

// Run executes quantification, plot rendering, domain/motif annotation,
// biological annotation and finalization, in that order.
func (s *Stage) Run(ctx context.Context, req pipeline.Request) (pipeline.Outputs, error) {
	start := time.Now()
	code := req.Order.Code
	req.Emit("start", model.EventStatusStarted, 0, "Preprocessing pipeline started")

	// Step 1: quantification.
	req.Emit("quantification", model.EventStatusStarted, 2, "Loading input files")

	quant, err := s.quantifier.Quantify(ctx, QuantifyRequest{
		OrderCode:  code,
		OnProgress: stage.Span(req.Emit, "quantification", 2, 48),
	})
	if err != nil {
		return nil, fmt.Errorf("quantification failed: %w", err)
	}

	req.Emit("quantification", model.EventStatusCompleted, 50,
		fmt.Sprintf("Quantified %s sites", stage.GroupDigits(quant.Sites)))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 2: overview plots. Failures here never fail the order.
	outputs := pipeline.Outputs{
		"site_matrix":    quant.SiteMatrixPath,
		"protein_matrix": quant.ProteinMatrixPath,
	}
	if s.plotter != nil {
		req.Emit("site_plots", model.EventStatusStarted, 52, "Rendering site overview plots")
		plots, err := s.plotter.RenderSitePlots(ctx, quant.SiteMatrixPath)
		if err != nil {
			s.logger.Warningf("Order %s: site plots failed (non-fatal): %s", code, err)
		} else {
			for i, p := range plots {
				outputs[fmt.Sprintf("site_plot_%d", i+1)] = p
			}
			req.Emit("site_plots", model.EventStatusCompleted, 55,
				fmt.Sprintf("Rendered %d site plots", len(plots)))
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 3: domain and motif annotation.
	req.Emit("domain_annotation", model.EventStatusStarted, 55, "Starting domain and motif annotation")

	var domains *AnnotateResult
	err = pipeline.Retry(ctx, s.attempts, s.backoff, func(ctx context.Context) error {
		var err error
		domains, err = s.annotator.AnnotateDomains(ctx, AnnotateRequest{
			OrderCode:      code,
			SiteMatrixPath: quant.SiteMatrixPath,
			OnProgress:     stage.Span(req.Emit, "domain_annotation", 55, 15),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("domain annotation failed: %w", err)
	}

	req.Emit("domain_annotation", model.EventStatusCompleted, 70,
		fmt.Sprintf("Annotated %s sites with domains and motifs", stage.GroupDigits(domains.Annotated)))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 4: biological annotation on top of the domain annotated matrix.
	req.Emit("biological_annotation", model.EventStatusStarted, 70, "Starting biological annotation")

	var biology *AnnotateResult
	err = pipeline.Retry(ctx, s.attempts, s.backoff, func(ctx context.Context) error {
		var err error
		biology, err = s.annotator.AnnotateBiology(ctx, AnnotateRequest{
			OrderCode:      code,
			SiteMatrixPath: domains.MatrixPath,
			OnProgress:     stage.Span(req.Emit, "biological_annotation", 70, 20),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("biological annotation failed: %w", err)
	}

	req.Emit("biological_annotation", model.EventStatusCompleted, 90,
		fmt.Sprintf("Annotated %s sites with pathways and interactions", stage.GroupDigits(biology.Annotated)))

	// Step 5: finalization.
	req.Emit("finalization", model.EventStatusStarted, 90, "Finalizing results")
	outputs["annotated_matrix"] = biology.MatrixPath

	elapsed := time.Since(start).Round(100 * time.Millisecond)
	req.Emit("finalization", model.EventStatusCompleted, 100,
		fmt.Sprintf("Preprocessing complete (%s, %d files)", elapsed, len(outputs)))
	s.logger.Infof("Order %s preprocessing completed in %s", code, elapsed)

	return outputs, nil
}
