// SPDX-License-Identifier: MPL-2.0

// Package packager drives PyInstaller to turn an entry script into a single
// executable.
package packager

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

var (
	// ErrEntryNotFound is returned when the entry script does not exist.
	ErrEntryNotFound = errors.New("entry script not found")
	// ErrIconNotFound is returned when the configured icon does not exist.
	ErrIconNotFound = errors.New("icon file not found")
	// ErrArtifactMissing is returned when PyInstaller succeeded but produced no executable.
	ErrArtifactMissing = errors.New("packager reported success but produced no artifact")
)

type (
	// Packager runs PyInstaller inside an environment.
	Packager struct {
		Runner process.Runner
		// Stdout and Stderr receive PyInstaller's live output.
		Stdout io.Writer
		Stderr io.Writer
	}

	// Outcome is the result of one packaging run.
	Outcome struct {
		Record process.Record
		// Artifact is the absolute path of the produced executable.
		Artifact string
	}
)

// New creates a Packager.
func New(runner process.Runner) *Packager {
	return &Packager{Runner: runner}
}

// Invocation returns the PyInstaller command for entry.
func (p *Packager) Invocation(env *venv.Environment, projectDir, entry string, opts Options) process.Invocation {
	inv := env.Module(projectDir, "PyInstaller", opts.Args(entry)...)
	inv.Stdout = p.Stdout
	inv.Stderr = p.Stderr
	return inv
}

// Package checks the inputs, runs PyInstaller and verifies the artifact exists.
func (p *Packager) Package(ctx context.Context, env *venv.Environment, projectDir, entry string, opts Options) (*Outcome, error) {
	if !exists(projectDir, entry) {
		return nil, fmt.Errorf("%s: %w", entry, ErrEntryNotFound)
	}
	if opts.Icon != "" && !exists(projectDir, opts.Icon) {
		return nil, fmt.Errorf("%s: %w", opts.Icon, ErrIconNotFound)
	}

	inv := p.Invocation(env, projectDir, entry, opts)
	slog.Info("packaging", "entry", entry, "cmd", inv.String())
	res := p.Runner.Run(ctx, inv)
	out := &Outcome{
		Record:   process.Record{Invocation: inv, Result: res},
		Artifact: opts.ArtifactPath(projectDir, entry),
	}
	if err := res.Err(inv); err != nil {
		return out, err
	}

	if _, err := os.Stat(out.Artifact); err != nil {
		return out, fmt.Errorf("%s: %w", out.Artifact, ErrArtifactMissing)
	}
	return out, nil
}

func exists(dir, path string) bool {
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
