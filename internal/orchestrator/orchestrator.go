// Package orchestrator is the engine's top-level entry point. Execute runs
// a configured pipeline through the selected execution strategy and returns
// a structured result; Test performs static validation without running any
// stage. Errors never escape either boundary uncaught: every failure is
// folded into the returned result together with the partial execution
// state, so operators can see exactly where a run stopped.
package orchestrator

import (
	"context"
	"time"

	"github.com/klikkflow/pipeline-engine/internal/config"
	"github.com/klikkflow/pipeline-engine/internal/ctxlog"
	"github.com/klikkflow/pipeline-engine/internal/dag"
	"github.com/klikkflow/pipeline-engine/internal/pipeline"
	"github.com/klikkflow/pipeline-engine/internal/registry"
	"github.com/klikkflow/pipeline-engine/internal/strategy"
)

// Orchestrator owns one registry of stage executors and runs pipelines
// against it.
type Orchestrator struct {
	registry *registry.Registry
	workers  int
}

// New creates an orchestrator. workers bounds dag-mode concurrency; zero
// selects the default pool size.
func New(reg *registry.Registry, workers int) *Orchestrator {
	return &Orchestrator{registry: reg, workers: workers}
}

// Result is the outcome of one Execute call.
type Result struct {
	Success bool                `json:"success"`
	Error   string              `json:"error,omitempty"`
	// Execution is the (possibly partial) run record. Nil only when
	// validation rejected the configuration before a record was built.
	Execution *pipeline.Execution `json:"execution,omitempty"`
	Summary   *Summary            `json:"summary,omitempty"`
}

// Summary counts stages by terminal state for quick inspection.
type Summary struct {
	TotalStages     int           `json:"totalStages"`
	CompletedStages int           `json:"completedStages"`
	FailedStages    int           `json:"failedStages"`
	SkippedStages   int           `json:"skippedStages"`
	PendingStages   int           `json:"pendingStages"`
	SuccessRate     float64       `json:"successRate"`
	Duration        time.Duration `json:"duration"`
}

// Execute validates the configuration, runs the pipeline, and finalizes the
// execution record. input is the upstream dataset consumed when the data
// source type is workflow_input.
func (o *Orchestrator) Execute(ctx context.Context, cfg *config.Pipeline, input map[string]any) *Result {
	logger := ctxlog.FromContext(ctx).With("pipeline", cfg.Name)

	if err := validateExecute(cfg, o.registry); err != nil {
		logger.Error("Pipeline configuration rejected.", "error", err)
		return failure(nil, err)
	}

	stages := buildStages(cfg)
	exec := pipeline.NewExecution(cfg.Name, stages)

	graph, err := dag.Build(stageSpecs(cfg))
	if err != nil {
		return failure(exec, err)
	}

	strat, err := strategy.ForMode(cfg.Mode)
	if err != nil {
		return failure(exec, err)
	}

	var experiment *experimentRun
	if cfg.Experiment != nil && cfg.Experiment.Enabled {
		experiment = startExperiment(ctx, cfg.Experiment, cfg.Name)
		exec.Artifacts["experimentId"] = experiment.ID
	}

	sc := &strategy.Context{
		Execution: exec,
		Graph:     graph,
		Registry:  o.registry,
		Results:   pipeline.NewResults(),
		Dataset:   resolveDataset(cfg, input),
		Workers:   o.workers,
	}

	logger.Info("🚀 Starting pipeline execution.", "executionId", exec.ID, "mode", strat.Name(), "stages", len(stages))
	exec.Begin()
	runErr := strat.Run(ctx, sc)

	harvestArtifacts(exec, sc.Results)

	if runErr != nil {
		if experiment != nil {
			experiment.finalize(ctx, exec, false)
		}
		exec.Finalize(pipeline.ExecFailed)
		logger.Error("Pipeline execution failed.", "executionId", exec.ID, "error", runErr)
		return failure(exec, runErr)
	}

	if cfg.Deployment != nil && cfg.Deployment.AutoDeploy {
		if model, ok := exec.Artifacts["model"].(map[string]any); ok {
			exec.Artifacts["deployment"] = simulateDeployment(ctx, cfg.Deployment, model)
		} else {
			logger.Warn("Auto-deploy configured but no trained model artifact was produced.")
		}
	}

	if cfg.Monitoring != nil && cfg.Monitoring.Enabled {
		exec.Artifacts["monitoring"] = simulateMonitoringSetup(ctx, cfg.Monitoring)
	}

	if experiment != nil {
		exec.Artifacts["experiment"] = experiment.finalize(ctx, exec, true)
	}

	exec.Finalize(pipeline.ExecCompleted)
	logger.Info("🏁 Pipeline execution finished.", "executionId", exec.ID, "duration", exec.TotalDuration)

	return &Result{
		Success:   true,
		Execution: exec,
		Summary:   summarize(exec),
	}
}

// failure folds an error into a structured result, finalizing the partial
// execution record if one exists.
func failure(exec *pipeline.Execution, err error) *Result {
	res := &Result{Success: false, Error: err.Error()}
	if exec != nil {
		if exec.Status == pipeline.ExecPending || exec.Status == pipeline.ExecRunning {
			exec.Finalize(pipeline.ExecFailed)
		}
		res.Execution = exec
		res.Summary = summarize(exec)
	}
	return res
}

func summarize(exec *pipeline.Execution) *Summary {
	s := &Summary{
		TotalStages:     len(exec.Stages),
		CompletedStages: exec.CountByStatus(pipeline.StatusCompleted),
		FailedStages:    exec.CountByStatus(pipeline.StatusFailed),
		SkippedStages:   exec.CountByStatus(pipeline.StatusSkipped),
		PendingStages:   exec.CountByStatus(pipeline.StatusPending),
		Duration:        exec.TotalDuration,
	}
	if s.TotalStages > 0 {
		s.SuccessRate = float64(s.CompletedStages) / float64(s.TotalStages)
	}
	return s
}

// buildStages instantiates the runtime stage records in declaration order.
func buildStages(cfg *config.Pipeline) []*pipeline.Stage {
	stages := make([]*pipeline.Stage, 0, len(cfg.Stages))
	for _, sc := range cfg.Stages {
		typ, _ := pipeline.ParseStageType(sc.Type)
		st := pipeline.NewStage(sc.Name, typ)
		st.Config = sc.Config
		st.DependsOn = sc.DependsOn
		st.Condition = sc.Condition
		st.Timeout = time.Duration(sc.TimeoutMinutes * float64(time.Minute))
		if sc.Retry != nil {
			st.Retry = pipeline.RetryPolicy{
				MaxRetries:         sc.Retry.MaxRetries,
				Delay:              time.Duration(sc.Retry.DelaySeconds * float64(time.Second)),
				ExponentialBackoff: sc.Retry.ExponentialBackoff,
			}
		}
		stages = append(stages, st)
	}
	return stages
}

func stageSpecs(cfg *config.Pipeline) []dag.NodeSpec {
	specs := make([]dag.NodeSpec, 0, len(cfg.Stages))
	for _, sc := range cfg.Stages {
		specs = append(specs, dag.NodeSpec{ID: sc.Name, DependsOn: sc.DependsOn})
	}
	return specs
}

// resolveDataset picks the pipeline's initial dataset: the upstream node
// output for workflow_input, otherwise a descriptor of the configured
// external source.
func resolveDataset(cfg *config.Pipeline, input map[string]any) map[string]any {
	if cfg.Data == nil {
		return input
	}
	if cfg.Data.SourceType == "workflow_input" {
		return input
	}
	return map[string]any{
		"source":   cfg.Data.SourceType,
		"location": cfg.Data.Location,
		"format":   cfg.Data.Format,
	}
}

// harvestArtifacts copies side-channel outputs out of the results
// accumulator: the trained model handle and any stage-driven deployment
// info.
func harvestArtifacts(exec *pipeline.Execution, results *pipeline.Results) {
	for _, st := range exec.Stages {
		out, ok := results.Get(st.Name)
		if !ok {
			continue
		}
		switch st.Type {
		case pipeline.StageModelTraining:
			if model, ok := out["model"]; ok {
				exec.Artifacts["model"] = model
			}
		case pipeline.StageModelDeployment:
			if dep, ok := out["deployment"]; ok {
				exec.Artifacts["deployment"] = dep
			}
		}
	}
}
