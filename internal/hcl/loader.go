// Package hcl is the HCL-specific implementation of the config.Loader
// interface. A pipeline definition is a single `pipeline` block with nested
// `data`, `deployment`, `monitoring`, `experiment`, and `stage` blocks.
package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/klikkflow/pipeline-engine/internal/config"
	"github.com/klikkflow/pipeline-engine/internal/ctxlog"
)

// Loader parses pipeline definitions written in HCL.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// fileRoot decodes the top-level blocks of a pipeline file.
type fileRoot struct {
	Pipelines []*pipelineBlock `hcl:"pipeline,block"`
}

type pipelineBlock struct {
	Name       string           `hcl:"name,label"`
	Type       string           `hcl:"type,optional"`
	Mode       string           `hcl:"mode,optional"`
	Data       *dataBlock       `hcl:"data,block"`
	Deployment *deployBlock     `hcl:"deployment,block"`
	Monitoring *monitoringBlock `hcl:"monitoring,block"`
	Experiment *experimentBlock `hcl:"experiment,block"`
	Stages     []*stageBlock    `hcl:"stage,block"`
}

type stageBlock struct {
	Name           string         `hcl:"name,label"`
	Type           string         `hcl:"type"`
	Config         hcl.Expression `hcl:"config,optional"`
	DependsOn      []string       `hcl:"depends_on,optional"`
	TimeoutMinutes float64        `hcl:"timeout_minutes,optional"`
	Condition      string         `hcl:"condition,optional"`
	Retry          *retryBlock    `hcl:"retry,block"`
}

type retryBlock struct {
	MaxRetries         int     `hcl:"max_retries,optional"`
	DelaySeconds       float64 `hcl:"delay_seconds,optional"`
	ExponentialBackoff bool    `hcl:"exponential_backoff,optional"`
}

type dataBlock struct {
	SourceType string `hcl:"source_type"`
	Location   string `hcl:"location,optional"`
	Format     string `hcl:"format,optional"`
}

type deployBlock struct {
	AutoDeploy  bool   `hcl:"auto_deploy,optional"`
	Target      string `hcl:"target,optional"`
	Environment string `hcl:"environment,optional"`
}

type monitoringBlock struct {
	Enabled        bool `hcl:"enabled,optional"`
	DriftDetection bool `hcl:"drift_detection,optional"`
}

type experimentBlock struct {
	Enabled     bool   `hcl:"enabled,optional"`
	TrackingURI string `hcl:"tracking_uri,optional"`
	Name        string `hcl:"name,optional"`
}

// Load parses the file at path and translates it into the config model.
func (l *Loader) Load(ctx context.Context, path string) (*config.Pipeline, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path", path)

	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %s", path, diags.Error())
	}

	var root fileRoot
	diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %s", path, diags.Error())
	}

	if len(root.Pipelines) != 1 {
		return nil, fmt.Errorf("expected exactly one pipeline block in %s, found %d", path, len(root.Pipelines))
	}

	pl, err := l.translatePipeline(root.Pipelines[0])
	if err != nil {
		return nil, err
	}
	logger.Debug("HCL loading complete.", "pipeline", pl.Name, "stages", len(pl.Stages))
	return pl, nil
}

func (l *Loader) translatePipeline(block *pipelineBlock) (*config.Pipeline, error) {
	pl := &config.Pipeline{
		Name: block.Name,
		Type: block.Type,
		Mode: block.Mode,
	}

	if block.Data != nil {
		pl.Data = &config.Data{
			SourceType: block.Data.SourceType,
			Location:   block.Data.Location,
			Format:     block.Data.Format,
		}
	}
	if block.Deployment != nil {
		pl.Deployment = &config.Deployment{
			AutoDeploy:  block.Deployment.AutoDeploy,
			Target:      block.Deployment.Target,
			Environment: block.Deployment.Environment,
		}
	}
	if block.Monitoring != nil {
		pl.Monitoring = &config.Monitoring{
			Enabled:        block.Monitoring.Enabled,
			DriftDetection: block.Monitoring.DriftDetection,
		}
	}
	if block.Experiment != nil {
		pl.Experiment = &config.Experiment{
			Enabled:     block.Experiment.Enabled,
			TrackingURI: block.Experiment.TrackingURI,
			Name:        block.Experiment.Name,
		}
	}

	for _, sb := range block.Stages {
		st, err := l.translateStage(sb)
		if err != nil {
			return nil, err
		}
		pl.Stages = append(pl.Stages, st)
	}

	return pl, nil
}

func (l *Loader) translateStage(block *stageBlock) (*config.Stage, error) {
	st := &config.Stage{
		Name:           block.Name,
		Type:           block.Type,
		DependsOn:      block.DependsOn,
		TimeoutMinutes: block.TimeoutMinutes,
		Condition:      block.Condition,
	}

	if block.Retry != nil {
		st.Retry = &config.Retry{
			MaxRetries:         block.Retry.MaxRetries,
			DelaySeconds:       block.Retry.DelaySeconds,
			ExponentialBackoff: block.Retry.ExponentialBackoff,
		}
	}

	cfg, err := decodeConfigAttr(block.Config)
	if err != nil {
		return nil, fmt.Errorf("stage %q: %w", block.Name, err)
	}
	st.Config = cfg

	return st, nil
}

// decodeConfigAttr evaluates the stage's `config` object expression with no
// variable scope; stage configuration must be static.
func decodeConfigAttr(expr hcl.Expression) (map[string]any, error) {
	if expr == nil {
		return nil, nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid config attribute: %s", diags.Error())
	}
	if val.IsNull() {
		return nil, nil
	}
	native, err := ctyToNative(val)
	if err != nil {
		return nil, fmt.Errorf("invalid config attribute: %w", err)
	}
	m, ok := native.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("config attribute must be an object, got %T", native)
	}
	return m, nil
}
