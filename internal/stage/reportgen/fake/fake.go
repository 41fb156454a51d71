// Package fake provides simulated report generation collaborators for local
// runs and tests.
package fake

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ptmflow/ptmflow/internal/log"
	"github.com/ptmflow/ptmflow/internal/stage"
	"github.com/ptmflow/ptmflow/internal/stage/reportgen"
)

const (
	defaultSections   = 8
	defaultBatchDelay = 200 * time.Millisecond
)

// Config is the configuration for the fake collaborators.
type Config struct {
	// Sections is how many report sections are drafted.
	Sections int
	// BatchDelay is the simulated work per drafted section.
	BatchDelay time.Duration
	// DataDir is where artifact paths point (nothing is written).
	DataDir string
	Logger  log.Logger
}

func (c *Config) defaults() error {
	if c.Sections <= 0 {
		c.Sections = defaultSections
	}
	if c.BatchDelay <= 0 {
		c.BatchDelay = defaultBatchDelay
	}
	if c.DataDir == "" {
		c.DataDir = "/data/orders"
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "reportgen.Fake"})
	return nil
}

// Collaborators is a fake implementation of the report generation
// collaborator interfaces.
type Collaborators struct {
	sections int
	delay    time.Duration
	dir      string
	logger   log.Logger
}

// New creates new fake report generation collaborators.
func New(cfg Config) (*Collaborators, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Collaborators{
		sections: cfg.Sections,
		delay:    cfg.BatchDelay,
		dir:      cfg.DataDir,
		logger:   cfg.Logger,
	}, nil
}

var (
	_ reportgen.Drafter  = &Collaborators{}
	_ reportgen.Reviewer = &Collaborators{}
	_ reportgen.Renderer = &Collaborators{}
)

// DraftSections simulates drafting, one sub-progress counter per section.
func (c *Collaborators) DraftSections(ctx context.Context, req reportgen.DraftRequest) (*reportgen.DraftResult, error) {
	for i := 1; i <= c.sections; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.delay):
		}

		if req.OnProgress != nil {
			req.OnProgress(float64(i)/float64(c.sections), stage.CountMessage("Sections", i, c.sections))
		}
	}

	c.logger.Debugf("Fake draft for order %s: %d sections", req.OrderCode, c.sections)
	return &reportgen.DraftResult{
		DraftPath: filepath.Join(c.dir, req.OrderCode, "report_draft.md"),
		Sections:  c.sections,
	}, nil
}

// Review simulates the review pass.
func (c *Collaborators) Review(ctx context.Context, draftPath string) (*reportgen.ReviewResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(c.delay):
	}

	return &reportgen.ReviewResult{
		DraftPath: filepath.Join(filepath.Dir(draftPath), "report_reviewed.md"),
		Findings:  3,
	}, nil
}

// Render simulates compiling the deliverables.
func (c *Collaborators) Render(ctx context.Context, draftPath string) (*reportgen.RenderResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(c.delay):
	}

	dir := filepath.Dir(draftPath)
	return &reportgen.RenderResult{
		ReportPath: filepath.Join(dir, "comprehensive_report.md"),
		ExportPath: filepath.Join(dir, "comprehensive_report.docx"),
	}, nil
}
