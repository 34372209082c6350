// Package config holds the format-agnostic pipeline configuration model.
// Concrete loaders (HCL, YAML) translate their on-disk formats into this
// model; the orchestrator and the node handler consume it without knowing
// where it came from.
package config
