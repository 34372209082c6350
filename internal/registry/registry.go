// Package registry maps stage types to their executor implementations. The
// default registry carries a simulated executor per stage type; tests swap
// in instrumented executors through the same interface.
package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/klikkflow/pipeline-engine/internal/pipeline"
)

// RunInput carries the data an executor may consult: the pipeline's initial
// dataset and the outputs of the stages that already completed.
type RunInput struct {
	Dataset map[string]any
	Results *pipeline.Results
}

// Executor runs the work of one stage. It appends log lines and metrics to
// the stage as it goes and returns the stage's output map on success.
type Executor func(ctx context.Context, st *pipeline.Stage, in *RunInput) (map[string]any, error)

// Registry holds the executors for a single engine instance.
type Registry struct {
	executors map[pipeline.StageType]Executor
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{executors: make(map[pipeline.StageType]Executor)}
}

// Register installs an executor for a stage type. Registering the same type
// twice is a programmer error.
func (r *Registry) Register(typ pipeline.StageType, fn Executor) {
	if _, exists := r.executors[typ]; exists {
		panic(fmt.Sprintf("executor for stage type '%s' already registered", typ))
	}
	slog.Debug("Registering stage executor.", "type", typ)
	r.executors[typ] = fn
}

// Lookup returns the executor for a stage type, or an error for a type the
// registry does not know.
func (r *Registry) Lookup(typ pipeline.StageType) (Executor, error) {
	fn, ok := r.executors[typ]
	if !ok {
		return nil, fmt.Errorf("unknown stage type %q", typ)
	}
	return fn, nil
}

// Has reports whether the registry knows the given stage type.
func (r *Registry) Has(typ pipeline.StageType) bool {
	_, ok := r.executors[typ]
	return ok
}
