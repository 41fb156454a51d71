// Package fake provides simulated preprocessing collaborators. They produce
// believable progress streams and artifact paths without touching real
// matrices or reference services, for local runs and tests.
package fake

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ptmflow/ptmflow/internal/log"
	"github.com/ptmflow/ptmflow/internal/stage"
	"github.com/ptmflow/ptmflow/internal/stage/preprocessing"
)

const (
	defaultSites      = 6095
	defaultBatches    = 10
	defaultBatchDelay = 200 * time.Millisecond
)

// Config is the configuration for the fake collaborators.
type Config struct {
	// Sites is the simulated dataset size.
	Sites int
	// BatchDelay is the simulated work per progress batch.
	BatchDelay time.Duration
	// DataDir is where artifact paths point (nothing is written).
	DataDir string
	Logger  log.Logger
}

func (c *Config) defaults() error {
	if c.Sites <= 0 {
		c.Sites = defaultSites
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "preprocessing.Fake"})
	return nil
}

// Collaborators is a fake implementation of the preprocessing collaborator
// interfaces.
type Collaborators struct {
	sites  int
	delay  time.Duration
	dir    string
	logger log.Logger
}

// New creates new fake preprocessing collaborators.
func New(cfg Config) (*Collaborators, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Collaborators{
		sites:  cfg.Sites,
		delay:  cfg.BatchDelay,
		dir:    cfg.DataDir,
		logger: cfg.Logger,
	}, nil
}

var (
	_ preprocessing.Quantifier = &Collaborators{}
	_ preprocessing.Annotator  = &Collaborators{}
	_ preprocessing.Plotter    = &Collaborators{}
)

// Quantify simulates site quantification over the configured dataset size.
func (c *Collaborators) Quantify(ctx context.Context, req preprocessing.QuantifyRequest) (*preprocessing.QuantifyResult, error) {
	if err := c.simulate(ctx, req.OnProgress, "Precursors", c.sites); err != nil {
		return nil, err
	}

	c.logger.Debugf("Fake quantification for order %s done", req.OrderCode)
	return &preprocessing.QuantifyResult{
		SiteMatrixPath:    filepath.Join(c.dir, req.OrderCode, "site_matrix_normalized.tsv"),
		ProteinMatrixPath: filepath.Join(c.dir, req.OrderCode, "protein_matrix_normalized.tsv"),
		Sites:             c.sites,
	}, nil
}

// AnnotateDomains simulates domain and motif lookups.
func (c *Collaborators) AnnotateDomains(ctx context.Context, req preprocessing.AnnotateRequest) (*preprocessing.AnnotateResult, error) {
	if err := c.simulate(ctx, req.OnProgress, "InterPro domains", c.sites); err != nil {
		return nil, err
	}

	return &preprocessing.AnnotateResult{
		MatrixPath: filepath.Join(c.dir, req.OrderCode, "site_matrix_domains.tsv"),
		Annotated:  c.sites,
	}, nil
}

// AnnotateBiology simulates pathway and interaction lookups.
func (c *Collaborators) AnnotateBiology(ctx context.Context, req preprocessing.AnnotateRequest) (*preprocessing.AnnotateResult, error) {
	if err := c.simulate(ctx, req.OnProgress, "UniProt", c.sites); err != nil {
		return nil, err
	}

	return &preprocessing.AnnotateResult{
		MatrixPath: filepath.Join(c.dir, req.OrderCode, "site_matrix_annotated.tsv"),
		Annotated:  c.sites,
	}, nil
}

// RenderSitePlots returns a fixed set of plot paths.
func (c *Collaborators) RenderSitePlots(ctx context.Context, siteMatrixPath string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := filepath.Dir(siteMatrixPath)
	return []string{
		filepath.Join(dir, "site_overview.png"),
		filepath.Join(dir, "site_volcano.png"),
	}, nil
}

// simulate walks the dataset in batches, reporting a sub-progress counter per
// batch and stopping at the first cancellation checkpoint.
func (c *Collaborators) simulate(ctx context.Context, onProgress stage.ProgressFunc, label string, total int) error {
	for i := 1; i <= defaultBatches; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.delay):
		}

		done := total * i / defaultBatches
		if onProgress != nil {
			onProgress(float64(i)/defaultBatches, stage.CountMessage(label, done, total))
		}
	}
	return nil
}
