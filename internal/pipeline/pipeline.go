// Package pipeline implements the order state machine and the stage chaining
// orchestrator: it owns every order status mutation, dispatches stage runners
// on bounded per-stage worker pools, records progress events and hands off
// between stages automatically until the order reaches a terminal state.
package pipeline

import (
	"context"
	"fmt"

	"github.com/ptmflow/ptmflow/internal/model"
)

// Outputs are the artifact locations a stage declares on success, keyed by
// artifact name. They are handed to the next stage and merged into the
// order's result files.
type Outputs map[string]string

// EmitFunc publishes a progress event from inside a running stage. pct is
// stage-local (0-100), pass a negative value for events without a progress
// figure. Calling it is always safe: it never blocks on subscribers and never
// fails the stage.
type EmitFunc func(step string, status model.EventStatus, pct float64, message string)

// Request is the input handed to a stage implementation.
type Request struct {
	Order model.Order
	// PriorOutputs are the outputs declared by the previous stage, empty for
	// the first stage.
	PriorOutputs Outputs
	Emit         EmitFunc
}

// Stage is the contract between the orchestrator and one stage's business
// logic. Run returns the stage outputs on success, or an error after
// exhausting any internal retries. A Run that returns ctx.Err() after a
// cancellation checkpoint triggers neither advance nor fail.
type Stage interface {
	Run(ctx context.Context, req Request) (Outputs, error)
}

// StageFunc is a function adapter for Stage.
type StageFunc func(ctx context.Context, req Request) (Outputs, error)

func (f StageFunc) Run(ctx context.Context, req Request) (Outputs, error) { return f(ctx, req) }

// Registry maps the closed set of pipeline stages to their implementations.
// It is built once at startup so a missing or unknown stage is a startup
// error instead of a runtime surprise.
type Registry struct {
	stages map[model.Stage]Stage
}

// NewRegistry creates a registry and validates that every pipeline stage has
// an implementation and nothing else is registered.
func NewRegistry(stages map[model.Stage]Stage) (*Registry, error) {
	for stage, impl := range stages {
		if !stage.Valid() {
			return nil, fmt.Errorf("unknown stage %q: %w", stage, model.ErrNotValid)
		}
		if impl == nil {
			return nil, fmt.Errorf("stage %q implementation is nil: %w", stage, model.ErrNotValid)
		}
	}
	for _, stage := range model.Stages {
		if _, ok := stages[stage]; !ok {
			return nil, fmt.Errorf("stage %q has no implementation: %w", stage, model.ErrNotValid)
		}
	}

	return &Registry{stages: stages}, nil
}

// Stage returns the implementation for a pipeline stage.
func (r *Registry) Stage(s model.Stage) (Stage, error) {
	impl, ok := r.stages[s]
	if !ok {
		return nil, fmt.Errorf("stage %q has no implementation: %w", s, model.ErrNotValid)
	}
	return impl, nil
}
