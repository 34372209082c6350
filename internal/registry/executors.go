package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/klikkflow/pipeline-engine/internal/pipeline"
)

// simUnit scales the simulated work of every built-in executor. The values
// keep the relative cost of the stage types while staying fast enough for
// local runs.
const simUnit = 10 * time.Millisecond

// NewWithDefaults returns a registry populated with the simulated executor
// for every known stage type.
func NewWithDefaults() *Registry {
	r := New()
	r.Register(pipeline.StageDataPreprocessing, runDataPreprocessing)
	r.Register(pipeline.StageFeatureEngineering, runFeatureEngineering)
	r.Register(pipeline.StageDataValidation, runDataValidation)
	r.Register(pipeline.StageModelTraining, runModelTraining)
	r.Register(pipeline.StageModelEvaluation, runModelEvaluation)
	r.Register(pipeline.StageModelValidation, runModelValidation)
	r.Register(pipeline.StageModelDeployment, runModelDeployment)
	r.Register(pipeline.StageDataDriftDetection, runDataDriftDetection)
	r.Register(pipeline.StageModelMonitoring, runModelMonitoring)
	r.Register(pipeline.StageABTesting, runABTesting)
	r.Register(pipeline.StageCustomScript, runCustomScript)
	return r
}

// simWork sleeps for the simulated duration, honoring cancellation.
func simWork(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func runDataPreprocessing(ctx context.Context, st *pipeline.Stage, in *RunInput) (map[string]any, error) {
	rows := 10000
	if in.Dataset != nil {
		if n, ok := in.Dataset["rows"].(int); ok {
			rows = n
		}
	}
	st.Logf("preprocessing %d input rows", rows)
	if err := simWork(ctx, 3*simUnit); err != nil {
		return nil, err
	}
	cleaned := rows - rows/50
	st.SetMetric("inputRows", rows)
	st.SetMetric("outputRows", cleaned)
	st.Logf("dropped %d malformed rows", rows-cleaned)
	return map[string]any{"rows": cleaned, "normalized": true}, nil
}

func runFeatureEngineering(ctx context.Context, st *pipeline.Stage, in *RunInput) (map[string]any, error) {
	st.Logf("deriving feature set")
	if err := simWork(ctx, 4*simUnit); err != nil {
		return nil, err
	}
	features := 42
	if v, ok := st.Config["featureCount"].(int); ok {
		features = v
	}
	st.SetMetric("featureCount", features)
	return map[string]any{"featureCount": features}, nil
}

func runDataValidation(ctx context.Context, st *pipeline.Stage, in *RunInput) (map[string]any, error) {
	st.Logf("validating schema and value ranges")
	if err := simWork(ctx, 2*simUnit); err != nil {
		return nil, err
	}
	st.SetMetric("violations", 0)
	return map[string]any{"valid": true, "violations": 0}, nil
}

func runModelTraining(ctx context.Context, st *pipeline.Stage, in *RunInput) (map[string]any, error) {
	algorithm := "gradient_boosting"
	if v, ok := st.Config["algorithm"].(string); ok {
		algorithm = v
	}
	epochs := 10
	if v, ok := st.Config["epochs"].(int); ok {
		epochs = v
	}
	st.Logf("training %s model for %d epochs", algorithm, epochs)
	if err := simWork(ctx, 8*simUnit); err != nil {
		return nil, err
	}
	model := map[string]any{
		"modelId":   uuid.NewString(),
		"algorithm": algorithm,
		"accuracy":  0.94,
	}
	st.SetMetric("accuracy", 0.94)
	st.SetMetric("epochs", epochs)
	st.Logf("training converged")
	return map[string]any{"model": model, "accuracy": 0.94}, nil
}

func runModelEvaluation(ctx context.Context, st *pipeline.Stage, in *RunInput) (map[string]any, error) {
	st.Logf("evaluating model on holdout set")
	if err := simWork(ctx, 3*simUnit); err != nil {
		return nil, err
	}
	st.SetMetric("precision", 0.92)
	st.SetMetric("recall", 0.91)
	st.SetMetric("f1", 0.915)
	return map[string]any{"precision": 0.92, "recall": 0.91, "f1": 0.915}, nil
}

func runModelValidation(ctx context.Context, st *pipeline.Stage, in *RunInput) (map[string]any, error) {
	threshold := 0.9
	if v, ok := st.Config["minAccuracy"].(float64); ok {
		threshold = v
	}
	st.Logf("validating model against acceptance threshold %.2f", threshold)
	if err := simWork(ctx, 2*simUnit); err != nil {
		return nil, err
	}
	st.SetMetric("threshold", threshold)
	return map[string]any{"passed": true, "threshold": threshold}, nil
}

func runModelDeployment(ctx context.Context, st *pipeline.Stage, in *RunInput) (map[string]any, error) {
	target := "kubernetes"
	if v, ok := st.Config["target"].(string); ok {
		target = v
	}
	st.Logf("deploying model to %s", target)
	if err := simWork(ctx, 4*simUnit); err != nil {
		return nil, err
	}
	deployment := map[string]any{
		"deploymentId": uuid.NewString(),
		"target":       target,
		"endpoint":     fmt.Sprintf("https://models.klikkflow.internal/%s", st.Name),
	}
	st.SetMetric("replicas", 2)
	return map[string]any{"deployment": deployment}, nil
}

func runDataDriftDetection(ctx context.Context, st *pipeline.Stage, in *RunInput) (map[string]any, error) {
	st.Logf("comparing live distribution against training baseline")
	if err := simWork(ctx, 2*simUnit); err != nil {
		return nil, err
	}
	st.SetMetric("driftScore", 0.03)
	return map[string]any{"driftDetected": false, "driftScore": 0.03}, nil
}

func runModelMonitoring(ctx context.Context, st *pipeline.Stage, in *RunInput) (map[string]any, error) {
	st.Logf("configuring monitoring probes")
	if err := simWork(ctx, 2*simUnit); err != nil {
		return nil, err
	}
	st.SetMetric("probes", 3)
	return map[string]any{"monitoring": "active", "probes": 3}, nil
}

func runABTesting(ctx context.Context, st *pipeline.Stage, in *RunInput) (map[string]any, error) {
	split := 0.5
	if v, ok := st.Config["trafficSplit"].(float64); ok {
		split = v
	}
	st.Logf("starting A/B experiment with %.0f%% challenger traffic", split*100)
	if err := simWork(ctx, 5*simUnit); err != nil {
		return nil, err
	}
	st.SetMetric("trafficSplit", split)
	return map[string]any{"experimentArm": "challenger", "trafficSplit": split}, nil
}

func runCustomScript(ctx context.Context, st *pipeline.Stage, in *RunInput) (map[string]any, error) {
	script := ""
	if v, ok := st.Config["script"].(string); ok {
		script = v
	}
	st.Logf("running custom script (%d bytes)", len(script))
	if err := simWork(ctx, 2*simUnit); err != nil {
		return nil, err
	}
	return map[string]any{"exitCode": 0}, nil
}
