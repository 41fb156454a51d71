// Package fake provides simulated enrichment collaborators for local runs
// and tests.
package fake

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ptmflow/ptmflow/internal/log"
	"github.com/ptmflow/ptmflow/internal/stage"
	"github.com/ptmflow/ptmflow/internal/stage/ragenrich"
)

const (
	defaultConditions      = 4
	defaultArticlesPerSite = 12
	defaultBatchDelay      = 200 * time.Millisecond
)

// Config is the configuration for the fake collaborators.
type Config struct {
	// Conditions is how many experimental conditions the simulated dataset
	// has. Each contributes TopN selected sites.
	Conditions int
	// BatchDelay is the simulated work per literature search batch.
	BatchDelay time.Duration
	// DataDir is where artifact paths point (nothing is written).
	DataDir string
	Logger  log.Logger
}

func (c *Config) defaults() error {
	if c.Conditions <= 0 {
		c.Conditions = defaultConditions
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "ragenrich.Fake"})
	return nil
}

// Collaborators is a fake implementation of the enrichment collaborator
// interfaces.
type Collaborators struct {
	conditions int
	delay      time.Duration
	dir        string
	logger     log.Logger
}

// New creates new fake enrichment collaborators.
func New(cfg Config) (*Collaborators, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Collaborators{
		conditions: cfg.Conditions,
		delay:      cfg.BatchDelay,
		dir:        cfg.DataDir,
		logger:     cfg.Logger,
	}, nil
}

var (
	_ ragenrich.Selector   = &Collaborators{}
	_ ragenrich.Searcher   = &Collaborators{}
	_ ragenrich.Summarizer = &Collaborators{}
)

// SelectTopSites returns TopN synthetic sites per simulated condition.
func (c *Collaborators) SelectTopSites(ctx context.Context, req ragenrich.SelectRequest) (*ragenrich.SelectResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sites := make([]ragenrich.Site, 0, req.TopN*c.conditions)
	for i := 0; i < req.TopN*c.conditions; i++ {
		sites = append(sites, ragenrich.Site{
			Gene:     fmt.Sprintf("GENE%03d", i+1),
			Position: fmt.Sprintf("S%d", 15+i),
		})
	}

	c.logger.Debugf("Fake selection for order %s: %d sites", req.OrderCode, len(sites))
	return &ragenrich.SelectResult{Sites: sites, Conditions: c.conditions}, nil
}

// SearchLiterature simulates a per-site literature lookup, reporting one
// sub-progress counter per site.
func (c *Collaborators) SearchLiterature(ctx context.Context, req ragenrich.SearchRequest) (*ragenrich.SearchResult, error) {
	total := len(req.Sites)
	articles := 0

	for i := range req.Sites {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.delay / 10):
		}

		articles += defaultArticlesPerSite
		if req.OnProgress != nil && (i+1)%5 == 0 {
			req.OnProgress(float64(i+1)/float64(total), stage.CountMessage("PubMed", i+1, total))
		}
	}

	return &ragenrich.SearchResult{
		EvidencePath: filepath.Join(c.dir, req.OrderCode, "enriched_sites.json"),
		Articles:     articles,
	}, nil
}

// Compose simulates summary composition.
func (c *Collaborators) Compose(ctx context.Context, req ragenrich.ComposeRequest) (*ragenrich.ComposeResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(c.delay):
	}

	if req.OnProgress != nil {
		req.OnProgress(1, "Summary sections written")
	}

	return &ragenrich.ComposeResult{
		SummaryPath: filepath.Join(c.dir, req.OrderCode, "evidence_summary.md"),
	}, nil
}
