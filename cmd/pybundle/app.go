// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pybundle/pybundle/internal/config"
)

type (
	// App wires CLI services and shared dependencies. All command handlers
	// receive an App and read configuration through its ConfigProvider.
	App struct {
		Config ConfigProvider
		stdin  io.Reader
		stdout io.Writer
		stderr io.Writer
		// interactive reports whether stdin can answer a prompt.
		interactive func(io.Reader) bool
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config ConfigProvider
		Stdin  io.Reader
		Stdout io.Writer
		Stderr io.Writer
	}

	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdin == nil {
		deps.Stdin = os.Stdin
	}
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	return &App{
		Config:      deps.Config,
		stdin:       deps.Stdin,
		stdout:      deps.Stdout,
		stderr:      deps.Stderr,
		interactive: isTerminal,
	}
}

// loadConfig resolves the project directory and loads the layered
// configuration with overrides applied last.
func (a *App) loadConfig(ctx context.Context, root *rootFlagValues, overrides map[string]any) (*config.Config, string, error) {
	projectDir := root.projectDir
	if projectDir == "" {
		projectDir = "."
	}
	projectDir, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, "", fmt.Errorf("resolve project directory: %w", err)
	}

	if root.verbose {
		if overrides == nil {
			overrides = make(map[string]any)
		}
		overrides["ui.verbose"] = true
	}

	cfg, err := a.Config.Load(ctx, config.LoadOptions{
		ProjectDir:     projectDir,
		ConfigFilePath: root.configPath,
		Overrides:      overrides,
	})
	if err != nil {
		return nil, "", err
	}
	return cfg, projectDir, nil
}
