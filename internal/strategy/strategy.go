// Package strategy implements the four interchangeable control-flow
// policies that walk a pipeline's stage set: sequential, parallel,
// conditional, and dag. All four drive the same per-stage state machine
// (pending -> running -> completed/failed, or pending -> skipped in
// conditional mode) and differ only in ordering and concurrency.
package strategy

import (
	"context"
	"fmt"

	"github.com/klikkflow/pipeline-engine/internal/ctxlog"
	"github.com/klikkflow/pipeline-engine/internal/dag"
	"github.com/klikkflow/pipeline-engine/internal/pipeline"
	"github.com/klikkflow/pipeline-engine/internal/registry"
	"github.com/klikkflow/pipeline-engine/internal/retry"
)

// Mode names accepted by ForMode.
const (
	ModeSequential  = "sequential"
	ModeParallel    = "parallel"
	ModeConditional = "conditional"
	ModeDAG         = "dag"
)

// Context carries everything a strategy needs for one run: the execution
// record it mutates, the resolved dependency graph, the executor registry,
// the shared results accumulator, and the pipeline's initial dataset.
type Context struct {
	Execution *pipeline.Execution
	Graph     *dag.Graph
	Registry  *registry.Registry
	Results   *pipeline.Results
	Dataset   map[string]any
	// Workers bounds the dag-mode worker pool.
	Workers int
}

// Strategy is one control-flow policy over a stage set.
type Strategy interface {
	Name() string
	Run(ctx context.Context, sc *Context) error
}

// ForMode selects the strategy for a configured execution mode. An
// unrecognized mode is a fatal configuration error.
func ForMode(mode string) (Strategy, error) {
	switch mode {
	case ModeSequential, "":
		return &sequential{}, nil
	case ModeParallel:
		return &parallel{}, nil
	case ModeConditional:
		return &conditional{}, nil
	case ModeDAG:
		return &dagStrategy{}, nil
	default:
		return nil, fmt.Errorf("unsupported execution mode %q", mode)
	}
}

// runStage executes one stage through the retry controller and records the
// outcome on the stage and in the shared results accumulator.
func runStage(ctx context.Context, sc *Context, st *pipeline.Stage) error {
	logger := ctxlog.FromContext(ctx).With("stage", st.Name, "type", st.Type)

	executor, err := sc.Registry.Lookup(st.Type)
	if err != nil {
		markFailed(st, err)
		return err
	}

	if err := st.MarkRunning(); err != nil {
		return err
	}
	logger.Info("▶️ Starting stage")

	var output map[string]any
	err = retry.Execute(ctx, st, func(attemptCtx context.Context) error {
		out, attemptErr := executor(attemptCtx, st, &registry.RunInput{
			Dataset: sc.Dataset,
			Results: sc.Results,
		})
		if attemptErr != nil {
			return attemptErr
		}
		output = out
		return nil
	})
	if err != nil {
		logger.Error("Stage failed.", "error", err)
		markFailed(st, err)
		return err
	}

	if err := st.MarkCompleted(output); err != nil {
		return err
	}
	sc.Results.Set(st.Name, output)
	logger.Info("✅ Finished stage")
	return nil
}

// markFailed finalizes a failing stage, tolerating stages that never left
// pending (e.g. an unknown type rejected before MarkRunning).
func markFailed(st *pipeline.Stage, cause error) {
	if st.Status() == pipeline.StatusPending {
		if err := st.MarkRunning(); err != nil {
			return
		}
	}
	_ = st.MarkFailed(cause)
}
