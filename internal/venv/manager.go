// SPDX-License-Identifier: MPL-2.0

package venv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pybundle/pybundle/internal/process"
)

var (
	// ErrNotADirectory is returned when the environment path exists but is a file.
	ErrNotADirectory = errors.New("environment path exists and is not a directory")
	// ErrNotEnvironment is returned when a directory lacks pyvenv.cfg.
	ErrNotEnvironment = errors.New("directory is not a python virtual environment")
	// ErrInterpreterMissing is returned when the environment has no interpreter.
	ErrInterpreterMissing = errors.New("environment interpreter is missing")
)

type (
	// Manager creates, resolves and removes environments.
	Manager struct {
		// Runner executes the base interpreter.
		Runner process.Runner
		// Interpreter is the base interpreter command, e.g. ["python3"] or ["py", "-3"].
		Interpreter []string
		// Layout is the layout of environments created by Interpreter.
		Layout Layout
		// BasePath is prepended with the bin dir in resolved environments.
		// Empty uses the PATH of the current process.
		BasePath string
		// UpgradeDeps passes --upgrade-deps to `python -m venv`.
		UpgradeDeps bool
		// Stdout and Stderr receive the interpreter's live output.
		Stdout io.Writer
		Stderr io.Writer
	}

	// EnsureResult reports what Ensure did.
	EnsureResult struct {
		// Dir is the absolute environment root.
		Dir string
		// Created is false when the environment already existed.
		Created bool
		// Invocation is the creation command; zero when nothing ran.
		Invocation process.Invocation
		// Result is the creation result; nil when nothing ran.
		Result *process.Result
	}
)

// NewManager creates a Manager for host environments.
func NewManager(runner process.Runner, interpreter []string) *Manager {
	return &Manager{
		Runner:      runner,
		Interpreter: interpreter,
		Layout:      HostLayout(),
	}
}

// CreateInvocation returns the command that creates an environment at dir.
func (m *Manager) CreateInvocation(dir string) process.Invocation {
	args := append([]string{}, m.Interpreter[1:]...)
	args = append(args, "-m", "venv")
	if m.UpgradeDeps {
		args = append(args, "--upgrade-deps")
	}
	args = append(args, dir)
	return process.Invocation{
		Program: m.Interpreter[0],
		Args:    args,
		Dir:     filepath.Dir(dir),
		Unset:   []string{"PYTHONHOME", "VIRTUAL_ENV"},
		Stdout:  m.Stdout,
		Stderr:  m.Stderr,
	}
}

// Ensure creates the environment at dir unless a directory is already there.
// An existing directory is reused as-is; Resolve decides whether it is usable.
func (m *Manager) Ensure(ctx context.Context, dir string) (*EnsureResult, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve environment path: %w", err)
	}

	info, err := os.Stat(abs)
	switch {
	case err == nil && info.IsDir():
		slog.Debug("environment already present", "dir", abs)
		return &EnsureResult{Dir: abs}, nil
	case err == nil:
		return nil, fmt.Errorf("%s: %w", abs, ErrNotADirectory)
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("stat environment: %w", err)
	}

	if len(m.Interpreter) == 0 {
		return nil, errors.New("no base interpreter configured")
	}

	inv := m.CreateInvocation(abs)
	slog.Info("creating environment", "dir", abs, "python", m.Interpreter[0])
	res := m.Runner.Run(ctx, inv)
	out := &EnsureResult{Dir: abs, Created: true, Invocation: inv, Result: res}
	if runErr := res.Err(inv); runErr != nil {
		return out, runErr
	}

	if _, err := os.Stat(abs); err != nil {
		return out, fmt.Errorf("environment not created at %s: %w", abs, err)
	}
	return out, nil
}

// Expected returns the Environment that Resolve would return for dir once the
// environment exists, without checking the filesystem. It is used to plan a
// build before anything has run.
func (m *Manager) Expected(dir string) (*Environment, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve environment path: %w", err)
	}
	binDir := filepath.Join(abs, m.Layout.BinDir)
	return &Environment{
		Dir:      abs,
		BinDir:   binDir,
		Python:   filepath.Join(binDir, m.Layout.Python),
		Layout:   m.Layout,
		BasePath: m.basePath(),
	}, nil
}

// Resolve locates the interpreter of the environment at dir.
func (m *Manager) Resolve(dir string) (*Environment, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve environment path: %w", err)
	}

	if _, err := os.Stat(filepath.Join(abs, ConfigFileName)); err != nil {
		return nil, fmt.Errorf("%s: %w", abs, ErrNotEnvironment)
	}

	binDir := filepath.Join(abs, m.Layout.BinDir)
	python := filepath.Join(binDir, m.Layout.Python)

	// Lstat: inside a container-built environment the interpreter is a
	// symlink into the image that does not resolve on the host.
	info, err := os.Lstat(python)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", python, ErrInterpreterMissing)
	}
	if info.Mode().IsRegular() && m.Layout.ExeSuffix == "" && info.Mode().Perm()&0o111 == 0 {
		return nil, fmt.Errorf("%s is not executable: %w", python, ErrInterpreterMissing)
	}

	return &Environment{
		Dir:      abs,
		BinDir:   binDir,
		Python:   python,
		Layout:   m.Layout,
		BasePath: m.basePath(),
	}, nil
}

func (m *Manager) basePath() string {
	if m.BasePath != "" {
		return m.BasePath
	}
	return os.Getenv("PATH")
}

// Clean removes the environment at dir. A missing directory is not an error;
// a directory that is not an environment is refused.
func (m *Manager) Clean(dir string) (removed bool, err error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return false, fmt.Errorf("resolve environment path: %w", err)
	}
	if _, err := os.Stat(abs); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if _, err := os.Stat(filepath.Join(abs, ConfigFileName)); err != nil {
		return false, fmt.Errorf("refusing to remove %s: %w", abs, ErrNotEnvironment)
	}
	if err := os.RemoveAll(abs); err != nil {
		return false, fmt.Errorf("remove environment: %w", err)
	}
	return true, nil
}
