package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/klikkflow/pipeline-engine/internal/config"
	"github.com/klikkflow/pipeline-engine/internal/ctxlog"
	"github.com/klikkflow/pipeline-engine/internal/dag"
	"github.com/klikkflow/pipeline-engine/internal/pipeline"
)

// TestReport is the outcome of a dry-run validation. No stage executes; the
// estimates come from a fixed per-stage-type duration table and a coarse
// resource heuristic.
type TestReport struct {
	Success           bool              `json:"success"`
	Errors            []string          `json:"errors,omitempty"`
	EstimatedDuration time.Duration     `json:"estimatedDuration"`
	Resources         *ResourceEstimate `json:"resources,omitempty"`
}

// ResourceEstimate is the coarse resource requirement of a valid pipeline.
type ResourceEstimate struct {
	CPUCores  int  `json:"cpuCores"`
	MemoryGB  int  `json:"memoryGb"`
	GPU       bool `json:"gpu"`
	StorageGB int  `json:"storageGb"`
}

// estimatedMinutes is the fixed planning duration per stage type.
var estimatedMinutes = map[pipeline.StageType]int{
	pipeline.StageDataPreprocessing:  10,
	pipeline.StageFeatureEngineering: 15,
	pipeline.StageDataValidation:     5,
	pipeline.StageModelTraining:      60,
	pipeline.StageModelEvaluation:    10,
	pipeline.StageModelValidation:    10,
	pipeline.StageModelDeployment:    15,
	pipeline.StageDataDriftDetection: 5,
	pipeline.StageModelMonitoring:    5,
	pipeline.StageABTesting:          30,
	pipeline.StageCustomScript:       10,
}

// Test statically validates a pipeline configuration without running any
// stage. It collects every violation rather than stopping at the first, and
// never mutates the input configuration, so repeated calls yield identical
// reports.
func (o *Orchestrator) Test(ctx context.Context, cfg *config.Pipeline) *TestReport {
	logger := ctxlog.FromContext(ctx).With("pipeline", cfg.Name)
	report := &TestReport{}

	if cfg.Name == "" {
		report.Errors = append(report.Errors, "Pipeline name is required")
	}
	if cfg.Type == "" {
		report.Errors = append(report.Errors, "Pipeline type is required")
	} else if !contains(config.PipelineTypes(), cfg.Type) {
		report.Errors = append(report.Errors, fmt.Sprintf("Unknown pipeline type %q", cfg.Type))
	}
	if cfg.Mode != "" && !contains([]string{"sequential", "parallel", "conditional", "dag"}, cfg.Mode) {
		report.Errors = append(report.Errors, fmt.Sprintf("Unsupported execution mode %q", cfg.Mode))
	}
	if len(cfg.Stages) == 0 {
		report.Errors = append(report.Errors, "At least one stage is required")
	}

	seen := make(map[string]bool, len(cfg.Stages))
	hasTraining := false
	for i, sc := range cfg.Stages {
		label := sc.Name
		if label == "" {
			label = fmt.Sprintf("stage %d", i+1)
			report.Errors = append(report.Errors, fmt.Sprintf("Stage %d: stage name is required", i+1))
		}
		if seen[sc.Name] && sc.Name != "" {
			report.Errors = append(report.Errors, fmt.Sprintf("Duplicate stage name %q", sc.Name))
		}
		seen[sc.Name] = true

		typ, err := pipeline.ParseStageType(sc.Type)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("Stage %q: unknown stage type %q", label, sc.Type))
		} else {
			if typ == pipeline.StageModelTraining {
				hasTraining = true
			}
			if !o.registry.Has(typ) {
				report.Errors = append(report.Errors, fmt.Sprintf("Stage %q: no executor registered for stage type %q", label, sc.Type))
			}
		}

		if sc.Retry != nil && sc.Retry.MaxRetries < 0 {
			report.Errors = append(report.Errors, fmt.Sprintf("Stage %q: max retries must be >= 0", label))
		}
		if sc.TimeoutMinutes < 0 {
			report.Errors = append(report.Errors, fmt.Sprintf("Stage %q: timeout must be >= 0", label))
		}
	}

	if cfg.Data != nil {
		if cfg.Data.SourceType == "" {
			report.Errors = append(report.Errors, "Data source type is required")
		} else if !contains(config.DataSourceTypes(), cfg.Data.SourceType) {
			report.Errors = append(report.Errors, fmt.Sprintf("Unknown data source type %q", cfg.Data.SourceType))
		}
	}

	// Dependency-graph well-formedness: resolvable names and no cycles.
	if len(cfg.Stages) > 0 {
		if graph, err := dag.Build(stageSpecs(cfg)); err != nil {
			report.Errors = append(report.Errors, err.Error())
		} else if err := graph.DetectCycles(); err != nil {
			report.Errors = append(report.Errors, err.Error())
		}
	}

	if len(report.Errors) > 0 {
		logger.Debug("Dry-run validation failed.", "errors", len(report.Errors))
		return report
	}

	report.Success = true
	report.EstimatedDuration = estimateDuration(cfg)
	report.Resources = estimateResources(cfg, hasTraining)
	logger.Debug("Dry-run validation passed.", "estimatedDuration", report.EstimatedDuration)
	return report
}

func estimateDuration(cfg *config.Pipeline) time.Duration {
	total := 0
	for _, sc := range cfg.Stages {
		typ, err := pipeline.ParseStageType(sc.Type)
		if err != nil {
			continue
		}
		total += estimatedMinutes[typ]
	}
	return time.Duration(total) * time.Minute
}

func estimateResources(cfg *config.Pipeline, hasTraining bool) *ResourceEstimate {
	est := &ResourceEstimate{
		CPUCores:  2,
		MemoryGB:  4 + 2*(len(cfg.Stages)/5),
		StorageGB: 10,
	}
	if hasTraining {
		est.CPUCores = 8
		est.MemoryGB += 8
		est.GPU = true
		est.StorageGB += 40
	}
	return est
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
