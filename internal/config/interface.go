package config

import "context"

// Loader translates an on-disk pipeline definition into the model. Each
// supported format (HCL, YAML) provides an implementation.
type Loader interface {
	Load(ctx context.Context, path string) (*Pipeline, error)
}
