// Package yamlcfg is the YAML-specific implementation of the config.Loader
// interface, mirroring the HCL loader for teams that keep pipeline
// definitions alongside other YAML manifests.
package yamlcfg

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/klikkflow/pipeline-engine/internal/config"
	"github.com/klikkflow/pipeline-engine/internal/ctxlog"
)

// Loader parses pipeline definitions written in YAML.
type Loader struct{}

// NewLoader creates a new YAML configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

type fileRoot struct {
	Pipeline *pipelineDoc `yaml:"pipeline"`
}

type pipelineDoc struct {
	Name       string         `yaml:"name"`
	Type       string         `yaml:"type"`
	Mode       string         `yaml:"mode"`
	Data       *dataDoc       `yaml:"data"`
	Deployment *deployDoc     `yaml:"deployment"`
	Monitoring *monitoringDoc `yaml:"monitoring"`
	Experiment *experimentDoc `yaml:"experiment"`
	Stages     []*stageDoc    `yaml:"stages"`
}

type stageDoc struct {
	Name           string         `yaml:"name"`
	Type           string         `yaml:"type"`
	Config         map[string]any `yaml:"config"`
	DependsOn      []string       `yaml:"depends_on"`
	TimeoutMinutes float64        `yaml:"timeout_minutes"`
	Condition      string         `yaml:"condition"`
	Retry          *retryDoc      `yaml:"retry"`
}

type retryDoc struct {
	MaxRetries         int     `yaml:"max_retries"`
	DelaySeconds       float64 `yaml:"delay_seconds"`
	ExponentialBackoff bool    `yaml:"exponential_backoff"`
}

type dataDoc struct {
	SourceType string `yaml:"source_type"`
	Location   string `yaml:"location"`
	Format     string `yaml:"format"`
}

type deployDoc struct {
	AutoDeploy  bool   `yaml:"auto_deploy"`
	Target      string `yaml:"target"`
	Environment string `yaml:"environment"`
}

type monitoringDoc struct {
	Enabled        bool `yaml:"enabled"`
	DriftDetection bool `yaml:"drift_detection"`
}

type experimentDoc struct {
	Enabled     bool   `yaml:"enabled"`
	TrackingURI string `yaml:"tracking_uri"`
	Name        string `yaml:"name"`
}

// Load parses the file at path and translates it into the config model.
func (l *Loader) Load(ctx context.Context, path string) (*config.Pipeline, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("YAML loader started.", "path", path)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file %s: %w", path, err)
	}

	var root fileRoot
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("failed to decode YAML file %s: %w", path, err)
	}
	if root.Pipeline == nil {
		return nil, fmt.Errorf("no pipeline document found in %s", path)
	}

	pl := translate(root.Pipeline)
	logger.Debug("YAML loading complete.", "pipeline", pl.Name, "stages", len(pl.Stages))
	return pl, nil
}

func translate(doc *pipelineDoc) *config.Pipeline {
	pl := &config.Pipeline{
		Name: doc.Name,
		Type: doc.Type,
		Mode: doc.Mode,
	}
	if doc.Data != nil {
		pl.Data = &config.Data{
			SourceType: doc.Data.SourceType,
			Location:   doc.Data.Location,
			Format:     doc.Data.Format,
		}
	}
	if doc.Deployment != nil {
		pl.Deployment = &config.Deployment{
			AutoDeploy:  doc.Deployment.AutoDeploy,
			Target:      doc.Deployment.Target,
			Environment: doc.Deployment.Environment,
		}
	}
	if doc.Monitoring != nil {
		pl.Monitoring = &config.Monitoring{
			Enabled:        doc.Monitoring.Enabled,
			DriftDetection: doc.Monitoring.DriftDetection,
		}
	}
	if doc.Experiment != nil {
		pl.Experiment = &config.Experiment{
			Enabled:     doc.Experiment.Enabled,
			TrackingURI: doc.Experiment.TrackingURI,
			Name:        doc.Experiment.Name,
		}
	}
	for _, sd := range doc.Stages {
		st := &config.Stage{
			Name:           sd.Name,
			Type:           sd.Type,
			Config:         sd.Config,
			DependsOn:      sd.DependsOn,
			TimeoutMinutes: sd.TimeoutMinutes,
			Condition:      sd.Condition,
		}
		if sd.Retry != nil {
			st.Retry = &config.Retry{
				MaxRetries:         sd.Retry.MaxRetries,
				DelaySeconds:       sd.Retry.DelaySeconds,
				ExponentialBackoff: sd.Retry.ExponentialBackoff,
			}
		}
		pl.Stages = append(pl.Stages, st)
	}
	return pl
}
