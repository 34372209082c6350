package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klikkflow/pipeline-engine/internal/config"
	"github.com/klikkflow/pipeline-engine/internal/pipeline"
	"github.com/klikkflow/pipeline-engine/internal/registry"
)

func trainingConfig() *config.Pipeline {
	return &config.Pipeline{
		Name: "churn_model",
		Type: "training",
		Mode: "sequential",
		Stages: []*config.Stage{
			{Name: "preprocess", Type: "data_preprocessing"},
			{Name: "train", Type: "model_training", DependsOn: []string{"preprocess"}},
			{Name: "evaluate", Type: "model_evaluation", DependsOn: []string{"train"}},
		},
	}
}

func TestExecuteCompletesPipeline(t *testing.T) {
	o := New(registry.NewWithDefaults(), 0)
	res := o.Execute(context.Background(), trainingConfig(), nil)

	require.True(t, res.Success, "unexpected error: %s", res.Error)
	require.NotNil(t, res.Execution)
	assert.NotEmpty(t, res.Execution.ID)
	assert.Equal(t, pipeline.ExecCompleted, res.Execution.Status)

	require.NotNil(t, res.Summary)
	assert.Equal(t, 3, res.Summary.TotalStages)
	assert.Equal(t, 3, res.Summary.CompletedStages)
	assert.Equal(t, 1.0, res.Summary.SuccessRate)

	assert.Equal(t, 1.0, res.Execution.OverallMetrics["successRate"])
	assert.Contains(t, res.Execution.Artifacts, "model")
}

func TestExecuteValidationFailures(t *testing.T) {
	o := New(registry.NewWithDefaults(), 0)

	cases := []struct {
		name    string
		mutate  func(*config.Pipeline)
		wantErr string
	}{
		{"missing name", func(c *config.Pipeline) { c.Name = "" }, "pipeline name is required"},
		{"no stages", func(c *config.Pipeline) { c.Stages = nil }, "at least one stage is required"},
		{"unknown stage type", func(c *config.Pipeline) { c.Stages[1].Type = "quantum_training" }, "unknown stage type"},
		{"unknown dependency", func(c *config.Pipeline) { c.Stages[1].DependsOn = []string{"missing"} }, `depends on unknown stage "missing"`},
		{"duplicate stage name", func(c *config.Pipeline) { c.Stages[1].Name = "preprocess" }, "duplicate stage name"},
		{"unsupported mode", func(c *config.Pipeline) { c.Mode = "round_robin" }, "unsupported execution mode"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := trainingConfig()
			tc.mutate(cfg)
			res := o.Execute(context.Background(), cfg, nil)
			assert.False(t, res.Success)
			assert.Contains(t, res.Error, tc.wantErr)
		})
	}
}

func TestExecuteCycleFailsBeforeAnyStageRuns(t *testing.T) {
	var calls atomic.Int32
	reg := registry.New()
	reg.Register(pipeline.StageCustomScript, func(ctx context.Context, st *pipeline.Stage, in *registry.RunInput) (map[string]any, error) {
		calls.Add(1)
		return map[string]any{}, nil
	})

	cfg := &config.Pipeline{
		Name: "cyclic",
		Mode: "dag",
		Stages: []*config.Stage{
			{Name: "a", Type: "custom_script", DependsOn: []string{"b"}},
			{Name: "b", Type: "custom_script", DependsOn: []string{"a"}},
		},
	}

	res := New(reg, 0).Execute(context.Background(), cfg, nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "circular dependency")
	assert.Equal(t, int32(0), calls.Load())
	for _, st := range res.Execution.Stages {
		assert.Equal(t, pipeline.StatusPending, st.Status())
	}
}

func TestExecuteReturnsPartialStateOnStageFailure(t *testing.T) {
	reg := registry.New()
	reg.Register(pipeline.StageCustomScript, func(ctx context.Context, st *pipeline.Stage, in *registry.RunInput) (map[string]any, error) {
		if st.Name == "b" {
			return nil, errors.New("disk full")
		}
		return map[string]any{}, nil
	})

	cfg := &config.Pipeline{
		Name: "partial",
		Stages: []*config.Stage{
			{Name: "a", Type: "custom_script"},
			{Name: "b", Type: "custom_script"},
			{Name: "c", Type: "custom_script"},
		},
	}

	res := New(reg, 0).Execute(context.Background(), cfg, nil)
	require.False(t, res.Success)
	assert.Contains(t, res.Error, "disk full")
	assert.Equal(t, pipeline.ExecFailed, res.Execution.Status)

	assert.Equal(t, 1, res.Summary.CompletedStages)
	assert.Equal(t, 1, res.Summary.FailedStages)
	assert.Equal(t, 1, res.Summary.PendingStages)

	b := res.Execution.StageByName("b")
	require.NotEmpty(t, b.Logs(), "failure logs must be retained for diagnosis")
}

func TestExecuteAutoDeployProducesDeploymentArtifact(t *testing.T) {
	cfg := trainingConfig()
	cfg.Deployment = &config.Deployment{
		AutoDeploy:  true,
		Target:      "kubernetes",
		Environment: "staging",
	}

	res := New(registry.NewWithDefaults(), 0).Execute(context.Background(), cfg, nil)
	require.True(t, res.Success, "unexpected error: %s", res.Error)

	dep, ok := res.Execution.Artifacts["deployment"].(map[string]any)
	require.True(t, ok, "deployment artifact missing")
	assert.Equal(t, "staging", dep["environment"])
	assert.NotEmpty(t, dep["deploymentId"])
	assert.NotEmpty(t, dep["endpoint"])
}

func TestExecuteExperimentTracking(t *testing.T) {
	cfg := trainingConfig()
	cfg.Experiment = &config.Experiment{Enabled: true, Name: "churn-v3"}

	res := New(registry.NewWithDefaults(), 0).Execute(context.Background(), cfg, nil)
	require.True(t, res.Success)

	assert.NotEmpty(t, res.Execution.Artifacts["experimentId"])
	exp, ok := res.Execution.Artifacts["experiment"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "completed", exp["status"])
	assert.Equal(t, "churn-v3", exp["name"])
	assert.Contains(t, exp, "stageMetrics")
}

func TestExecuteWorkflowInputDataset(t *testing.T) {
	var got map[string]any
	reg := registry.New()
	reg.Register(pipeline.StageCustomScript, func(ctx context.Context, st *pipeline.Stage, in *registry.RunInput) (map[string]any, error) {
		got = in.Dataset
		return map[string]any{}, nil
	})

	cfg := &config.Pipeline{
		Name:   "ingest",
		Data:   &config.Data{SourceType: "workflow_input"},
		Stages: []*config.Stage{{Name: "run", Type: "custom_script"}},
	}

	input := map[string]any{"rows": 123}
	res := New(reg, 0).Execute(context.Background(), cfg, input)
	require.True(t, res.Success)
	assert.Equal(t, input, got)
}

func TestExecuteRetriesTransientStageFailure(t *testing.T) {
	var calls atomic.Int32
	reg := registry.New()
	reg.Register(pipeline.StageCustomScript, func(ctx context.Context, st *pipeline.Stage, in *registry.RunInput) (map[string]any, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("transient")
		}
		return map[string]any{}, nil
	})

	cfg := &config.Pipeline{
		Name: "flaky",
		Stages: []*config.Stage{{
			Name:  "run",
			Type:  "custom_script",
			Retry: &config.Retry{MaxRetries: 2, DelaySeconds: 0.01},
		}},
	}

	res := New(reg, 0).Execute(context.Background(), cfg, nil)
	require.True(t, res.Success)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTestMissingPipelineType(t *testing.T) {
	var calls atomic.Int32
	reg := registry.New()
	reg.Register(pipeline.StageCustomScript, func(ctx context.Context, st *pipeline.Stage, in *registry.RunInput) (map[string]any, error) {
		calls.Add(1)
		return nil, nil
	})
	o := New(reg, 0)

	cfg := &config.Pipeline{
		Name:   "no-type",
		Stages: []*config.Stage{{Name: "run", Type: "custom_script"}},
	}

	report := o.Test(context.Background(), cfg)
	assert.False(t, report.Success)
	assert.Contains(t, report.Errors, "Pipeline type is required")
	assert.Equal(t, int32(0), calls.Load(), "dry run must not invoke stages")
}

func TestTestValidPipelineEstimates(t *testing.T) {
	o := New(registry.NewWithDefaults(), 0)
	report := o.Test(context.Background(), trainingConfig())

	require.True(t, report.Success, "unexpected errors: %v", report.Errors)
	// preprocessing 10m + training 60m + evaluation 10m.
	assert.Equal(t, 80*time.Minute, report.EstimatedDuration)

	require.NotNil(t, report.Resources)
	assert.True(t, report.Resources.GPU, "training pipeline needs a GPU estimate")
	assert.Equal(t, 8, report.Resources.CPUCores)
}

func TestTestCollectsAllErrors(t *testing.T) {
	o := New(registry.NewWithDefaults(), 0)
	cfg := &config.Pipeline{
		Mode: "zigzag",
		Data: &config.Data{SourceType: "carrier_pigeon"},
		Stages: []*config.Stage{
			{Name: "a", Type: "bogus"},
			{Name: "b", Type: "custom_script", DependsOn: []string{"zzz"}},
		},
	}

	report := o.Test(context.Background(), cfg)
	assert.False(t, report.Success)
	assert.Contains(t, report.Errors, "Pipeline name is required")
	assert.Contains(t, report.Errors, "Pipeline type is required")
	assert.Contains(t, report.Errors, `Unsupported execution mode "zigzag"`)
	assert.Contains(t, report.Errors, `Unknown data source type "carrier_pigeon"`)
	assert.Contains(t, report.Errors, `Stage "a": unknown stage type "bogus"`)

	found := false
	for _, e := range report.Errors {
		if e == `stage "b" depends on unknown stage "zzz"` {
			found = true
		}
	}
	assert.True(t, found, "missing dependency error, got: %v", report.Errors)
}

func TestTestIsIdempotent(t *testing.T) {
	o := New(registry.NewWithDefaults(), 0)
	cfg := trainingConfig()

	first := o.Test(context.Background(), cfg)
	second := o.Test(context.Background(), cfg)
	assert.Equal(t, first, second)

	bad := trainingConfig()
	bad.Type = ""
	firstBad := o.Test(context.Background(), bad)
	secondBad := o.Test(context.Background(), bad)
	assert.Equal(t, firstBad.Errors, secondBad.Errors)
}

func TestTestDetectsCycle(t *testing.T) {
	o := New(registry.NewWithDefaults(), 0)
	cfg := &config.Pipeline{
		Name: "cyclic",
		Type: "training",
		Stages: []*config.Stage{
			{Name: "a", Type: "custom_script", DependsOn: []string{"b"}},
			{Name: "b", Type: "custom_script", DependsOn: []string{"a"}},
		},
	}

	report := o.Test(context.Background(), cfg)
	assert.False(t, report.Success)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "circular dependency")
}
