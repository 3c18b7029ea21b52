package config

import "context"

// Loader is the interface for a format-specific configuration loader. It
// reads the given paths (files or directories), translates them into the
// format-agnostic model, and validates what syntax alone can validate.
type Loader interface {
	Load(ctx context.Context, paths ...string) (*Model, error)
}
