// SPDX-License-Identifier: MPL-2.0

// Package installer installs a dependency manifest into an environment with pip.
package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pybundle/pybundle/internal/process"
	"github.com/pybundle/pybundle/internal/venv"
)

// ErrManifestNotFound is returned when the manifest file does not exist.
var ErrManifestNotFound = errors.New("dependency manifest not found")

type (
	// Options configures one installation.
	Options struct {
		// Manifest is the requirements file, relative to the project directory.
		Manifest string
		// UpgradePip upgrades pip itself before installing the manifest.
		UpgradePip bool
		// ExtraArgs are appended to `pip install -r <manifest>`.
		ExtraArgs []string
		// Stdout and Stderr receive pip's live output.
		Stdout io.Writer
		Stderr io.Writer
	}

	// Installer runs pip inside an environment.
	Installer struct {
		Runner process.Runner
	}
)

// New creates an Installer.
func New(runner process.Runner) *Installer {
	return &Installer{Runner: runner}
}

// Invocations returns the pip commands Install would run, in order.
func (i *Installer) Invocations(env *venv.Environment, projectDir string, opts Options) []process.Invocation {
	var out []process.Invocation
	if opts.UpgradePip {
		out = append(out, i.withOutput(env.Module(projectDir, "pip", "install", "--upgrade", "pip"), opts))
	}

	args := []string{"install", "--disable-pip-version-check", "-r", opts.Manifest}
	args = append(args, opts.ExtraArgs...)
	out = append(out, i.withOutput(env.Module(projectDir, "pip", args...), opts))
	return out
}

// Install installs the manifest. It stops at the first failing pip command and
// returns the records of every command that ran.
func (i *Installer) Install(ctx context.Context, env *venv.Environment, projectDir string, opts Options) ([]process.Record, error) {
	manifest := opts.Manifest
	if !filepath.IsAbs(manifest) {
		manifest = filepath.Join(projectDir, manifest)
	}
	if _, err := os.Stat(manifest); err != nil {
		return nil, fmt.Errorf("%s: %w", opts.Manifest, ErrManifestNotFound)
	}

	var records []process.Record
	for _, inv := range i.Invocations(env, projectDir, opts) {
		slog.Info("installing dependencies", "cmd", inv.String())
		res := i.Runner.Run(ctx, inv)
		records = append(records, process.Record{Invocation: inv, Result: res})
		if err := res.Err(inv); err != nil {
			return records, err
		}
	}
	return records, nil
}

func (i *Installer) withOutput(inv process.Invocation, opts Options) process.Invocation {
	inv.Stdout = opts.Stdout
	inv.Stderr = opts.Stderr
	return inv
}
