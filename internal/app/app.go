// Package app wires the engine together: logger, configuration loader,
// stage registry, and orchestrator, plus the optional health check server.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/klikkflow/pipeline-engine/internal/config"
	"github.com/klikkflow/pipeline-engine/internal/ctxlog"
	hclloader "github.com/klikkflow/pipeline-engine/internal/hcl"
	"github.com/klikkflow/pipeline-engine/internal/orchestrator"
	"github.com/klikkflow/pipeline-engine/internal/registry"
	"github.com/klikkflow/pipeline-engine/internal/yamlcfg"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle.
type App struct {
	outW     io.Writer
	logW     io.Writer
	logger   *slog.Logger
	registry *registry.Registry
	pipeline *config.Pipeline
	orch     *orchestrator.Orchestrator
}

// NewApp is the constructor for the main application. It loads the pipeline
// definition eagerly; a definition that cannot be loaded is a fatal startup
// error and panics, which main recovers into a clean exit.
func NewApp(outW, logW io.Writer, appConfig *Config) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, logW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	loader, err := loaderForPath(appConfig.PipelinePath)
	if err != nil {
		panic(err)
	}

	pl, err := loader.Load(ctx, appConfig.PipelinePath)
	if err != nil {
		panic(fmt.Errorf("failed to load pipeline definition: %w", err))
	}
	logger.Debug("Pipeline definition loaded.", "pipeline", pl.Name, "stages", len(pl.Stages))

	reg := registry.NewWithDefaults()
	logger.Debug("Stage executors registered.")

	return &App{
		outW:     outW,
		logW:     logW,
		logger:   logger,
		registry: reg,
		pipeline: pl,
		orch:     orchestrator.New(reg, appConfig.Workers),
	}
}

// loaderForPath selects the configuration loader by file extension.
func loaderForPath(path string) (config.Loader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hcl":
		return hclloader.NewLoader(), nil
	case ".yaml", ".yml":
		return yamlcfg.NewLoader(), nil
	default:
		return nil, fmt.Errorf("unsupported pipeline file extension %q: expected .hcl, .yaml, or .yml", filepath.Ext(path))
	}
}

// Pipeline returns the loaded pipeline model. This is primarily for testing.
func (a *App) Pipeline() *config.Pipeline {
	return a.pipeline
}
