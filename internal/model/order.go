package model

import (
	"fmt"
	"regexp"
	"time"
)

// OrderStatus represents the lifecycle status of an order.
type OrderStatus string

const (
	// OrderStatusPending indicates the order is created but not started.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusQueued indicates the order is waiting for a worker slot.
	OrderStatusQueued OrderStatus = "queued"
	// OrderStatusPreprocessing indicates stage 1 is running.
	OrderStatusPreprocessing OrderStatus = "preprocessing"
	// OrderStatusRAGEnrichment indicates stage 2 is running.
	OrderStatusRAGEnrichment OrderStatus = "rag_enrichment"
	// OrderStatusReportGeneration indicates stage 3 is running.
	OrderStatusReportGeneration OrderStatus = "report_generation"
	// OrderStatusCompleted indicates the whole pipeline finished.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusFailed indicates a stage failed terminally.
	OrderStatusFailed OrderStatus = "failed"
	// OrderStatusCancelled indicates the order was cancelled by the client.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsActive returns true while the order is owned by the pipeline (queued or in
// a running stage).
func (s OrderStatus) IsActive() bool {
	switch s {
	case OrderStatusQueued, OrderStatusPreprocessing, OrderStatusRAGEnrichment, OrderStatusReportGeneration:
		return true
	}
	return false
}

// IsTerminal returns true when no further transitions are possible without an
// explicit restart.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusFailed, OrderStatusCancelled:
		return true
	}
	return false
}

// ParseOrderStatus parses a status string, rejecting unknown values.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(s); st {
	case OrderStatusPending, OrderStatusQueued, OrderStatusPreprocessing,
		OrderStatusRAGEnrichment, OrderStatusReportGeneration,
		OrderStatusCompleted, OrderStatusFailed, OrderStatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown order status %q: %w", s, ErrNotValid)
}

// Stage identifies one sequential phase of the pipeline.
type Stage string

const (
	StagePreprocessing    Stage = "preprocessing"
	StageRAGEnrichment    Stage = "rag_enrichment"
	StageReportGeneration Stage = "report_generation"
)

// Stages are all pipeline stages in execution order.
var Stages = []Stage{StagePreprocessing, StageRAGEnrichment, StageReportGeneration}

// stageBands maps each stage to its slice of the overall 0-100 progress scale.
var stageBands = map[Stage][2]float64{
	StagePreprocessing:    {0, 33},
	StageRAGEnrichment:    {33, 66},
	StageReportGeneration: {66, 100},
}

// Band returns the [low, high] portion of the overall order progress owned by
// the stage.
func (s Stage) Band() (low, high float64) {
	b := stageBands[s]
	return b[0], b[1]
}

// OverallProgress maps a stage-local 0-100 progress onto the order's overall
// 0-100 scale using the stage band.
func (s Stage) OverallProgress(stagePct float64) float64 {
	if stagePct < 0 {
		stagePct = 0
	}
	if stagePct > 100 {
		stagePct = 100
	}
	low, high := s.Band()
	return low + (high-low)*stagePct/100
}

// Next returns the stage after s, or false when s is the last stage.
func (s Stage) Next() (Stage, bool) {
	for i, st := range Stages {
		if st == s && i+1 < len(Stages) {
			return Stages[i+1], true
		}
	}
	return "", false
}

// Status returns the order status that represents the stage being active.
func (s Stage) Status() OrderStatus { return OrderStatus(s) }

// Valid returns true when s is a known pipeline stage.
func (s Stage) Valid() bool {
	_, ok := stageBands[s]
	return ok
}

// Order represents one end-to-end unit of pipeline work.
type Order struct {
	ID          string
	Code        string
	ProjectName string
	Status      OrderStatus

	// CurrentStage is set while the order is active. It is kept on failed and
	// cancelled orders for diagnostics and cleared on completion.
	CurrentStage *Stage
	ProgressPct  float64
	StageDetail  string
	ErrorMessage string

	// ResultFiles are the artifact locations produced by finished stages,
	// keyed by artifact name.
	ResultFiles map[string]string

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// orderCodeRe restricts codes to names that are safe as directory names.
var orderCodeRe = regexp.MustCompile(`^[a-zA-Z0-9_\-.]+$`)

// OrderConfig is the client-provided configuration for creating an order.
type OrderConfig struct {
	Code        string
	ProjectName string
}

// Validate validates the order configuration.
func (c *OrderConfig) Validate() error {
	if c.Code == "" || len(c.Code) > 64 {
		return fmt.Errorf("code must be 1-64 characters: %w", ErrNotValid)
	}
	if !orderCodeRe.MatchString(c.Code) {
		return fmt.Errorf("code may only contain letters, numbers, hyphens, underscores and periods: %w", ErrNotValid)
	}
	if c.ProjectName == "" {
		return fmt.Errorf("project name is required: %w", ErrNotValid)
	}
	return nil
}
