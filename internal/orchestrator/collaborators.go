package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/klikkflow/pipeline-engine/internal/config"
	"github.com/klikkflow/pipeline-engine/internal/ctxlog"
	"github.com/klikkflow/pipeline-engine/internal/pipeline"
)

// The deployment, monitoring, and experiment-tracking collaborators are
// external services in a full installation (model registries, monitoring
// platforms). The engine simulates the calls it would make and records
// their would-be responses as artifacts.

// simulateDeployment stands in for pushing a trained model to the serving
// target.
func simulateDeployment(ctx context.Context, cfg *config.Deployment, model map[string]any) map[string]any {
	logger := ctxlog.FromContext(ctx)
	target := cfg.Target
	if target == "" {
		target = "kubernetes"
	}
	deploymentID := uuid.NewString()
	logger.Info("Deploying trained model.", "deploymentId", deploymentID, "target", target, "environment", cfg.Environment)
	return map[string]any{
		"deploymentId": deploymentID,
		"modelId":      model["modelId"],
		"target":       target,
		"environment":  cfg.Environment,
		"endpoint":     fmt.Sprintf("https://serving.klikkflow.internal/models/%s", deploymentID),
		"deployedAt":   time.Now().UTC().Format(time.RFC3339),
	}
}

// simulateMonitoringSetup stands in for registering the deployed model with
// the monitoring platform.
func simulateMonitoringSetup(ctx context.Context, cfg *config.Monitoring) map[string]any {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Setting up model monitoring.", "driftDetection", cfg.DriftDetection)
	info := map[string]any{
		"dashboardUrl":   "https://monitoring.klikkflow.internal/dashboards/" + uuid.NewString(),
		"driftDetection": cfg.DriftDetection,
		"alertChannel":   "ml-oncall",
	}
	return info
}

// experimentRun tracks one simulated experiment-tracking session.
type experimentRun struct {
	ID      string
	Name    string
	started time.Time
}

// startExperiment stands in for the experiment tracker's initialize call.
func startExperiment(ctx context.Context, cfg *config.Experiment, pipelineName string) *experimentRun {
	logger := ctxlog.FromContext(ctx)
	name := cfg.Name
	if name == "" {
		name = pipelineName
	}
	run := &experimentRun{
		ID:      uuid.NewString(),
		Name:    name,
		started: time.Now(),
	}
	logger.Info("Experiment tracking started.", "experimentId", run.ID, "experiment", run.Name, "trackingUri", cfg.TrackingURI)
	return run
}

// finalize stands in for the tracker's finalize call, snapshotting the
// run's stage metrics.
func (e *experimentRun) finalize(ctx context.Context, exec *pipeline.Execution, success bool) map[string]any {
	logger := ctxlog.FromContext(ctx)

	stageMetrics := make(map[string]any)
	for _, st := range exec.Stages {
		if m := st.Metrics(); len(m) > 0 {
			stageMetrics[st.Name] = m
		}
	}

	status := "completed"
	if !success {
		status = "failed"
	}
	logger.Info("Experiment tracking finalized.", "experimentId", e.ID, "status", status)
	return map[string]any{
		"experimentId": e.ID,
		"name":         e.Name,
		"status":       status,
		"durationMs":   time.Since(e.started).Milliseconds(),
		"stageMetrics": stageMetrics,
	}
}
