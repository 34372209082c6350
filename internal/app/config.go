package app

import (
	"errors"
	"fmt"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// PipelinePath points at a .hcl, .yaml, or .yml pipeline definition.
	PipelinePath string
	// Mode selects the operation: "execute" runs the pipeline, "test"
	// performs dry-run validation only.
	Mode string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	// Workers bounds dag-mode concurrency. Zero selects the default.
	Workers int
}

// NewConfig validates an App configuration.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.PipelinePath == "" {
		return nil, errors.New("PipelinePath is a required configuration field and cannot be empty")
	}
	if cfg.Mode != "execute" && cfg.Mode != "test" {
		return nil, fmt.Errorf("invalid mode %q: must be 'execute' or 'test'", cfg.Mode)
	}
	return &cfg, nil
}
