package orchestrator

import (
	"errors"
	"fmt"

	"github.com/klikkflow/pipeline-engine/internal/config"
	"github.com/klikkflow/pipeline-engine/internal/pipeline"
	"github.com/klikkflow/pipeline-engine/internal/registry"
)

// validateExecute enforces the input constraints of Execute. It returns the
// first violation; Test collects all of them instead.
func validateExecute(cfg *config.Pipeline, reg *registry.Registry) error {
	if cfg.Name == "" {
		return errors.New("pipeline name is required")
	}
	if len(cfg.Stages) == 0 {
		return errors.New("at least one stage is required")
	}

	seen := make(map[string]bool, len(cfg.Stages))
	for i, sc := range cfg.Stages {
		if sc.Name == "" {
			return fmt.Errorf("stage %d: stage name is required", i+1)
		}
		if seen[sc.Name] {
			return fmt.Errorf("duplicate stage name %q", sc.Name)
		}
		seen[sc.Name] = true

		typ, err := pipeline.ParseStageType(sc.Type)
		if err != nil {
			return fmt.Errorf("stage %q: %w", sc.Name, err)
		}
		if !reg.Has(typ) {
			return fmt.Errorf("stage %q: no executor registered for stage type %q", sc.Name, sc.Type)
		}

		if sc.Retry != nil && sc.Retry.MaxRetries < 0 {
			return fmt.Errorf("stage %q: max retries must be >= 0", sc.Name)
		}
	}

	for _, sc := range cfg.Stages {
		for _, dep := range sc.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("stage %q depends on unknown stage %q", sc.Name, dep)
			}
		}
	}

	return nil
}
