package node

import (
	"fmt"
	"strings"

	"github.com/klikkflow/pipeline-engine/internal/config"
)

// ConfigFromParameters translates the node's loosely-typed parameter map
// into the pipeline configuration model. Parameter names follow the node's
// UI schema (camelCase); stage dependencies accept either a list or a
// comma-separated string.
func ConfigFromParameters(params map[string]any) (*config.Pipeline, error) {
	cfg := &config.Pipeline{
		Name: stringParam(params, "pipelineName"),
		Type: stringParam(params, "pipelineType"),
		Mode: stringParam(params, "executionMode"),
	}

	rawStages, ok := params["stages"].([]any)
	if !ok && params["stages"] != nil {
		return nil, fmt.Errorf("stages parameter must be a list, got %T", params["stages"])
	}
	for i, raw := range rawStages {
		sm, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("stage %d must be an object, got %T", i+1, raw)
		}
		st, err := stageFromParameters(sm)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i+1, err)
		}
		cfg.Stages = append(cfg.Stages, st)
	}

	if dm, ok := params["dataConfig"].(map[string]any); ok {
		cfg.Data = &config.Data{
			SourceType: stringParam(dm, "dataSourceType"),
			Location:   stringParam(dm, "location"),
			Format:     stringParam(dm, "format"),
		}
	}
	if dm, ok := params["deploymentConfig"].(map[string]any); ok {
		cfg.Deployment = &config.Deployment{
			AutoDeploy:  boolParam(dm, "autoDeploy"),
			Target:      stringParam(dm, "target"),
			Environment: stringParam(dm, "environment"),
		}
	}
	if mm, ok := params["monitoringConfig"].(map[string]any); ok {
		cfg.Monitoring = &config.Monitoring{
			Enabled:        boolParam(mm, "enabled"),
			DriftDetection: boolParam(mm, "driftDetection"),
		}
	}
	if em, ok := params["experimentConfig"].(map[string]any); ok {
		cfg.Experiment = &config.Experiment{
			Enabled:     boolParam(em, "enabled"),
			TrackingURI: stringParam(em, "trackingUri"),
			Name:        stringParam(em, "experimentName"),
		}
	}

	return cfg, nil
}

func stageFromParameters(sm map[string]any) (*config.Stage, error) {
	st := &config.Stage{
		Name:           stringParam(sm, "stageName"),
		Type:           stringParam(sm, "stageType"),
		Condition:      stringParam(sm, "condition"),
		TimeoutMinutes: floatParam(sm, "timeout"),
	}

	if cm, ok := sm["config"].(map[string]any); ok {
		st.Config = cm
	}

	deps, err := dependencyList(sm["dependencies"])
	if err != nil {
		return nil, err
	}
	st.DependsOn = deps

	if rm, ok := sm["retryPolicy"].(map[string]any); ok {
		st.Retry = &config.Retry{
			MaxRetries:         intParam(rm, "maxRetries"),
			DelaySeconds:       floatParam(rm, "retryDelay"),
			ExponentialBackoff: boolParam(rm, "exponentialBackoff"),
		}
	}

	return st, nil
}

// dependencyList accepts the two shapes the node UI produces: a list of
// names or one comma-separated string.
func dependencyList(raw any) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		parts := strings.Split(v, ",")
		deps := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				deps = append(deps, trimmed)
			}
		}
		return deps, nil
	case []any:
		deps := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("dependency entries must be strings, got %T", item)
			}
			deps = append(deps, s)
		}
		return deps, nil
	case []string:
		return v, nil
	default:
		return nil, fmt.Errorf("dependencies must be a string or list, got %T", raw)
	}
}

func stringParam(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func boolParam(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func intParam(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func floatParam(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}
