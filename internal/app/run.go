package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/klikkflow/pipeline-engine/internal/ctxlog"
)

// Run executes the main application logic based on the provided configuration.
func (a *App) Run(ctx context.Context, appConfig *Config) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if appConfig.HealthcheckPort > 0 {
		a.startHealthcheckServer(appConfig.HealthcheckPort)
	}

	var err error
	switch appConfig.Mode {
	case "test":
		err = a.runTest(ctx)
	default:
		err = a.runExecute(ctx)
	}

	a.logger.Debug("App.Run method finished.")
	return err
}

// runExecute runs the loaded pipeline and writes the execution result as
// indented JSON to the output writer.
func (a *App) runExecute(ctx context.Context) error {
	a.logger.Info("🚀 Starting pipeline execution...", "pipeline", a.pipeline.Name, "mode", a.pipeline.Mode)

	res := a.orch.Execute(ctx, a.pipeline, nil)

	if err := a.writeJSON(res); err != nil {
		return err
	}

	if !res.Success {
		return fmt.Errorf("pipeline execution failed: %s", res.Error)
	}
	a.logger.Info("🏁 Execution finished.", "pipeline", a.pipeline.Name)
	return nil
}

// runTest dry-runs the loaded pipeline and writes the validation report as
// indented JSON to the output writer. A report with errors is still written
// before the failure is returned.
func (a *App) runTest(ctx context.Context) error {
	a.logger.Info("🔎 Validating pipeline configuration...", "pipeline", a.pipeline.Name)

	report := a.orch.Test(ctx, a.pipeline)

	if err := a.writeJSON(report); err != nil {
		return err
	}

	if !report.Success {
		return fmt.Errorf("pipeline validation failed with %d error(s)", len(report.Errors))
	}
	a.logger.Info("✅ Pipeline configuration is valid.", "pipeline", a.pipeline.Name)
	return nil
}

func (a *App) writeJSON(v any) error {
	enc := json.NewEncoder(a.outW)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return nil
}
