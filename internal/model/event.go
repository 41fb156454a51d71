package model

import "time"

// EventStatus represents the status carried by a progress event.
type EventStatus string

const (
	// EventStatusStarted marks the beginning of a step.
	EventStatusStarted EventStatus = "started"
	// EventStatusRunning marks an intermediate progress tick of a step.
	EventStatusRunning EventStatus = "running"
	// EventStatusCompleted marks the successful end of a step.
	EventStatusCompleted EventStatus = "completed"
	// EventStatusFailed marks a step failure.
	EventStatusFailed EventStatus = "failed"
)

// ProgressEvent is an immutable, append-only fact about an order's processing.
// Once persisted it is never mutated or deleted.
type ProgressEvent struct {
	ID      string
	OrderID string
	Stage   Stage
	Step    string
	Status  EventStatus

	// ProgressPct is stage-local (0-100). Nil when the event carries no
	// progress figure.
	ProgressPct *float64
	Message     string

	// CreatedAt is server-assigned and strictly increasing per order.
	CreatedAt time.Time
}
