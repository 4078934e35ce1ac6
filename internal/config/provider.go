// SPDX-License-Identifier: MPL-2.0

package config

import "context"

// LoadOptions defines explicit configuration loading inputs.
type LoadOptions struct {
	// ProjectDir holds pyproject.toml and pybundle.cue. Empty means the
	// current directory.
	ProjectDir string
	// ConfigFilePath forces loading from a specific config file when set. It
	// replaces both the global and the project config file.
	ConfigFilePath string
	// ConfigDirPath overrides the global config directory lookup when set.
	ConfigDirPath string
	// Overrides are applied last, keyed by dotted config path
	// (e.g. "package.icon"). The CLI fills them from flags that were set.
	Overrides map[string]any
}

// Provider loads configuration from explicit options.
type Provider interface {
	Load(ctx context.Context, opts LoadOptions) (*Config, error)
}

type fileProvider struct{}

// NewProvider creates a configuration provider.
func NewProvider() Provider {
	return &fileProvider{}
}

// Load reads configuration from the requested sources.
func (p *fileProvider) Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	return loadWithOptions(ctx, opts)
}
