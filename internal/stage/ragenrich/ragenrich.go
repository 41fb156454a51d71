// Package ragenrich implements the second pipeline stage: selection of the
// most significant quantified sites and their enrichment with literature
// evidence, producing a structured evidence file and a narrative summary.
package ragenrich

import (
	"context"
	"fmt"
	"time"

	"github.com/ptmflow/ptmflow/internal/log"
	"github.com/ptmflow/ptmflow/internal/model"
	"github.com/ptmflow/ptmflow/internal/pipeline"
	"github.com/ptmflow/ptmflow/internal/stage"
)

// SelectRequest asks the selector for the most significant sites of an order.
type SelectRequest struct {
	OrderCode string
	// MatrixPath is the annotated matrix produced by preprocessing.
	MatrixPath string
	// TopN bounds the selection per experimental condition.
	TopN int
}

// SelectResult carries the selected sites.
type SelectResult struct {
	Sites []Site
	// Conditions is how many experimental conditions contributed.
	Conditions int
}

// Site is one selected modification site.
type Site struct {
	Gene     string
	Position string
}

// Selector picks the sites worth enriching from an annotated matrix.
type Selector interface {
	SelectTopSites(ctx context.Context, req SelectRequest) (*SelectResult, error)
}

// SearchRequest asks the searcher for literature evidence on a site set.
type SearchRequest struct {
	OrderCode  string
	Sites      []Site
	OnProgress stage.ProgressFunc
}

// SearchResult carries the evidence file and per-site hit counts.
type SearchResult struct {
	EvidencePath string
	Articles     int
}

// Searcher retrieves literature evidence for sites. Remote, so calls are
// retried on transient failures.
type Searcher interface {
	SearchLiterature(ctx context.Context, req SearchRequest) (*SearchResult, error)
}

// ComposeRequest asks the summarizer for a narrative summary of the evidence.
type ComposeRequest struct {
	OrderCode    string
	EvidencePath string
	OnProgress   stage.ProgressFunc
}

// ComposeResult carries the rendered summary document.
type ComposeResult struct {
	SummaryPath string
}

// Summarizer renders a narrative summary from the gathered evidence.
type Summarizer interface {
	Compose(ctx context.Context, req ComposeRequest) (*ComposeResult, error)
}

const defaultTopSites = 50

// StageConfig is the configuration for the enrichment stage.
type StageConfig struct {
	Selector   Selector
	Searcher   Searcher
	Summarizer Summarizer
	// TopSites bounds how many sites per condition are enriched.
	TopSites      int
	RetryAttempts int
	RetryBackoff  time.Duration
	Logger        log.Logger
}

func (c *StageConfig) defaults() error {
	if c.Selector == nil {
		return fmt.Errorf("selector is required")
	}
	if c.Searcher == nil {
		return fmt.Errorf("searcher is required")
	}
	if c.Summarizer == nil {
		return fmt.Errorf("summarizer is required")
	}
	if c.TopSites <= 0 {
		c.TopSites = defaultTopSites
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "stage.RAGEnrichment"})
	return nil
}

// Stage is the enrichment stage implementation.
type Stage struct {
	selector   Selector
	searcher   Searcher
	summarizer Summarizer
	topSites   int
	attempts   int
	backoff    time.Duration
	logger     log.Logger
}

// NewStage creates a new enrichment stage.
func NewStage(cfg StageConfig) (*Stage, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Stage{
		selector:   cfg.Selector,
		searcher:   cfg.Searcher,
		summarizer: cfg.Summarizer,
		topSites:   cfg.TopSites,
		attempts:   cfg.RetryAttempts,
		backoff:    cfg.RetryBackoff,
		logger:     cfg.Logger,
	}, nil
}

var _ pipeline.Stage = &Stage{}

// Run executes site selection, literature search, summary composition and
// finalization, in that order.
func (s *Stage) Run(ctx context.Context, req pipeline.Request) (pipeline.Outputs, error) {
	start := time.Now()
	code := req.Order.Code
	req.Emit("start", model.EventStatusStarted, 0, "Literature enrichment pipeline started")

	// Step 1: select the sites worth enriching.
	req.Emit("site_selection", model.EventStatusStarted, 2, "Loading annotated site matrix")

	selected, err := s.selector.SelectTopSites(ctx, SelectRequest{
		OrderCode:  code,
		MatrixPath: req.PriorOutputs["annotated_matrix"],
		TopN:       s.topSites,
	})
	if err != nil {
		return nil, fmt.Errorf("site selection failed: %w", err)
	}

	req.Emit("site_selection", model.EventStatusCompleted, 10,
		fmt.Sprintf("Selected %s sites (top %d per condition, %d conditions)",
			stage.GroupDigits(len(selected.Sites)), s.topSites, selected.Conditions))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 2: literature search.
	req.Emit("literature_search", model.EventStatusStarted, 10, "Starting literature search")

	var search *SearchResult
	err = pipeline.Retry(ctx, s.attempts, s.backoff, func(ctx context.Context) error {
		var err error
		search, err = s.searcher.SearchLiterature(ctx, SearchRequest{
			OrderCode:  code,
			Sites:      selected.Sites,
			OnProgress: stage.Span(req.Emit, "literature_search", 10, 60),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("literature search failed: %w", err)
	}

	req.Emit("literature_search", model.EventStatusCompleted, 70,
		fmt.Sprintf("Gathered %s articles for %s sites",
			stage.GroupDigits(search.Articles), stage.GroupDigits(len(selected.Sites))))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 3: narrative summary.
	req.Emit("summary", model.EventStatusStarted, 70, "Composing evidence summary")

	summary, err := s.summarizer.Compose(ctx, ComposeRequest{
		OrderCode:    code,
		EvidencePath: search.EvidencePath,
		OnProgress:   stage.Span(req.Emit, "summary", 70, 25),
	})
	if err != nil {
		return nil, fmt.Errorf("summary composition failed: %w", err)
	}

	req.Emit("summary", model.EventStatusCompleted, 95, "Evidence summary composed")

	// Step 4: finalization.
	outputs := pipeline.Outputs{
		"evidence":         search.EvidencePath,
		"evidence_summary": summary.SummaryPath,
	}

	elapsed := time.Since(start).Round(100 * time.Millisecond)
	req.Emit("finalization", model.EventStatusCompleted, 100,
		fmt.Sprintf("Literature enrichment complete (%s, %d files)", elapsed, len(outputs)))
	s.logger.Infof("Order %s literature enrichment completed in %s", code, elapsed)

	return outputs, nil
}
