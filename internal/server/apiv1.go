package server

import (
	"time"

	"github.com/ptmflow/ptmflow/internal/model"
)

// API wire types. Orders carry RFC3339 timestamps; progress events carry
// unix-millisecond timestamps because the reconnect cutoff needs the same
// precision the log is persisted with.

type apiOrder struct {
	ID           string            `json:"id"`
	Code         string            `json:"code"`
	ProjectName  string            `json:"project_name"`
	Status       string            `json:"status"`
	CurrentStage string            `json:"current_stage,omitempty"`
	ProgressPct  float64           `json:"progress_pct"`
	StageDetail  string            `json:"stage_detail,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	ResultFiles  map[string]string `json:"result_files,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

type apiEvent struct {
	ID          string   `json:"id"`
	OrderID     string   `json:"order_id"`
	Stage       string   `json:"stage"`
	Step        string   `json:"step"`
	Status      string   `json:"status"`
	ProgressPct *float64 `json:"progress_pct,omitempty"`
	Message     string   `json:"message,omitempty"`
	CreatedAtMs int64    `json:"created_at_ms"`
}

type apiCreateOrderRequest struct {
	Code        string `json:"code"`
	ProjectName string `json:"project_name"`
}

type apiOrderList struct {
	Orders []apiOrder `json:"orders"`
}

type apiOrderEvents struct {
	Order  apiOrder   `json:"order"`
	Events []apiEvent `json:"events"`
}

type apiError struct {
	Error string `json:"error"`
}

func mapOrder(o model.Order) apiOrder {
	out := apiOrder{
		ID:           o.ID,
		Code:         o.Code,
		ProjectName:  o.ProjectName,
		Status:       string(o.Status),
		ProgressPct:  o.ProgressPct,
		StageDetail:  o.StageDetail,
		ErrorMessage: o.ErrorMessage,
		ResultFiles:  o.ResultFiles,
		CreatedAt:    o.CreatedAt,
		StartedAt:    o.StartedAt,
		CompletedAt:  o.CompletedAt,
	}
	if o.CurrentStage != nil {
		out.CurrentStage = string(*o.CurrentStage)
	}
	return out
}

func mapEvent(e model.ProgressEvent) apiEvent {
	return apiEvent{
		ID:          e.ID,
		OrderID:     e.OrderID,
		Stage:       string(e.Stage),
		Step:        e.Step,
		Status:      string(e.Status),
		ProgressPct: e.ProgressPct,
		Message:     e.Message,
		CreatedAtMs: e.CreatedAt.UnixMilli(),
	}
}

func mapEvents(events []model.ProgressEvent) []apiEvent {
	out := make([]apiEvent, 0, len(events))
	for _, e := range events {
		out = append(out, mapEvent(e))
	}
	return out
}
