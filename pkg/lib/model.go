package lib

import (
	"time"

	"github.com/ptmflow/ptmflow/internal/model"
	"github.com/ptmflow/ptmflow/internal/timeline"
)

// Sentinel errors returned by the SDK, matching the server's error mapping.
var (
	// ErrNotFound indicates the order does not exist.
	ErrNotFound = model.ErrNotFound
	// ErrAlreadyExists indicates an order with the same code already exists.
	ErrAlreadyExists = model.ErrAlreadyExists
	// ErrNotValid indicates invalid input or an invalid operation.
	ErrNotValid = model.ErrNotValid
)

// OrderStatus represents the lifecycle status of an order.
//
// The typical lifecycle is:
//
//	pending -> queued -> preprocessing -> rag_enrichment -> report_generation -> completed
//
// An active order can also transition to failed or cancelled.
type OrderStatus string

const (
	OrderStatusPending          OrderStatus = "pending"
	OrderStatusQueued           OrderStatus = "queued"
	OrderStatusPreprocessing    OrderStatus = "preprocessing"
	OrderStatusRAGEnrichment    OrderStatus = "rag_enrichment"
	OrderStatusReportGeneration OrderStatus = "report_generation"
	OrderStatusCompleted        OrderStatus = "completed"
	OrderStatusFailed           OrderStatus = "failed"
	OrderStatusCancelled        OrderStatus = "cancelled"
)

// IsTerminal returns true when no further transitions are possible without an
// explicit restart.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusFailed || s == OrderStatusCancelled
}

// Order is a read-only snapshot of an order's state at the time of the API
// call.
type Order struct {
	// ID is the unique identifier (ULID) assigned at creation.
	ID string `json:"id"`
	// Code is the human-friendly unique order code.
	Code        string      `json:"code"`
	ProjectName string      `json:"project_name"`
	Status      OrderStatus `json:"status"`
	// CurrentStage is the pipeline stage the order is in. Empty for pending
	// and completed orders.
	CurrentStage string `json:"current_stage,omitempty"`
	// ProgressPct is the overall 0-100 progress across all stages.
	ProgressPct  float64 `json:"progress_pct"`
	StageDetail  string  `json:"stage_detail,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
	// ResultFiles are the artifact locations produced by finished stages,
	// keyed by artifact name.
	ResultFiles map[string]string `json:"result_files,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// ProgressEvent is one record of an order's progress log.
type ProgressEvent struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	Stage   string `json:"stage"`
	Step    string `json:"step"`
	// Status is one of started, running, completed, failed.
	Status string `json:"status"`
	// ProgressPct is the stage-local 0-100 progress, nil for events without a
	// progress figure.
	ProgressPct *float64 `json:"progress_pct,omitempty"`
	Message     string   `json:"message,omitempty"`
	CreatedAtMs int64    `json:"created_at_ms"`
}

// CreatedAt returns the event's server-assigned timestamp.
func (e ProgressEvent) CreatedAt() time.Time { return time.UnixMilli(e.CreatedAtMs).UTC() }

// SubProgress is a parsed "label: done/total" counter carried by a progress
// update event.
type SubProgress struct {
	Label string
	Done  int
	Total int
	// Pct is round(100*done/total).
	Pct int
}

// TimelineEntry is one rendered item of an order's merged timeline. Sub is
// set when the event's message parses as a sub-progress counter, making the
// entry a progress update rather than a discrete milestone.
type TimelineEntry struct {
	Event ProgressEvent
	Sub   *SubProgress
}

// toInternalEvent converts a wire event into the reconciler's event type.
func (e ProgressEvent) toInternalEvent() model.ProgressEvent {
	return model.ProgressEvent{
		ID:          e.ID,
		OrderID:     e.OrderID,
		Stage:       model.Stage(e.Stage),
		Step:        e.Step,
		Status:      model.EventStatus(e.Status),
		ProgressPct: e.ProgressPct,
		Message:     e.Message,
		CreatedAt:   time.UnixMilli(e.CreatedAtMs).UTC(),
	}
}

func fromInternalEntry(entry timeline.Entry) TimelineEntry {
	out := TimelineEntry{Event: ProgressEvent{
		ID:          entry.Event.ID,
		OrderID:     entry.Event.OrderID,
		Stage:       string(entry.Event.Stage),
		Step:        entry.Event.Step,
		Status:      string(entry.Event.Status),
		ProgressPct: entry.Event.ProgressPct,
		Message:     entry.Event.Message,
		CreatedAtMs: entry.Event.CreatedAt.UnixMilli(),
	}}
	if entry.Sub != nil {
		out.Sub = &SubProgress{
			Label: entry.Sub.Label,
			Done:  entry.Sub.Done,
			Total: entry.Sub.Total,
			Pct:   entry.Sub.Pct,
		}
	}
	return out
}
