// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/pybundle/pybundle/internal/process"
)

// FakePython simulates `python -m venv`, `python -m pip` and
// `python -m PyInstaller` on the filesystem. Use Handle as a FakeRunner.Handler.
type FakePython struct {
	// BinDir and PythonName describe the environment layout to create.
	BinDir     string
	PythonName string
	// ExeSuffix is appended to the artifact name.
	ExeSuffix string

	// VenvExit, PipExit and PyInstallerExit are the exit codes of each module.
	VenvExit        process.ExitCode
	PipExit         process.ExitCode
	PyInstallerExit process.ExitCode
	// SkipInterpreter creates the environment without an interpreter.
	SkipInterpreter bool
	// SkipArtifact makes PyInstaller exit 0 without producing a file.
	SkipArtifact bool
	// InterpreterFrom is copied into the environment as its interpreter.
	// Empty writes a placeholder script.
	InterpreterFrom string
	// Version is reported by `python --version`.
	Version string

	builds atomic.Int64
}

// NewFakePython returns a FakePython using the POSIX layout.
func NewFakePython() *FakePython {
	return &FakePython{BinDir: "bin", PythonName: "python"}
}

// Builds reports how many artifacts PyInstaller produced.
func (p *FakePython) Builds() int {
	return int(p.builds.Load())
}

// Handle dispatches on the module named after -m.
func (p *FakePython) Handle(_ context.Context, inv process.Invocation) *process.Result {
	module := moduleOf(inv.Args)
	rest := afterModule(inv.Args)

	if module == "" && len(inv.Args) > 0 && inv.Args[0] == "--version" {
		version := p.Version
		if version == "" {
			version = "3.12.0"
		}
		return &process.Result{Output: "Python " + version + "\n"}
	}

	switch module {
	case "venv":
		return p.venv(inv, rest)
	case "pip":
		if !p.PipExit.IsSuccess() {
			return &process.Result{ExitCode: p.PipExit, ErrOutput: "ERROR: Could not find a version that satisfies the requirement\n"}
		}
		return &process.Result{Output: "Successfully installed\n"}
	case "PyInstaller":
		return p.pyinstaller(inv, rest)
	default:
		return &process.Result{ExitCode: 2, ErrOutput: fmt.Sprintf("fake python: unsupported invocation %q\n", inv.Args)}
	}
}

func (p *FakePython) venv(inv process.Invocation, rest []string) *process.Result {
	if !p.VenvExit.IsSuccess() {
		return &process.Result{ExitCode: p.VenvExit, ErrOutput: "Error: [Errno 13] Permission denied\n"}
	}
	if len(rest) == 0 {
		return &process.Result{ExitCode: 2, ErrOutput: "usage: venv ENV_DIR\n"}
	}
	dir := resolveIn(inv.Dir, rest[len(rest)-1])
	binDir := filepath.Join(dir, p.BinDir)
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return process.NewErrorResult(1, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "pyvenv.cfg"), []byte("home = /usr/bin\n"), 0o644); err != nil {
		return process.NewErrorResult(1, err)
	}
	if !p.SkipInterpreter {
		if err := p.writeInterpreter(filepath.Join(binDir, p.PythonName)); err != nil {
			return process.NewErrorResult(1, err)
		}
	}
	return process.NewSuccessResult()
}

func (p *FakePython) writeInterpreter(path string) error {
	if p.InterpreterFrom == "" {
		return os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755)
	}
	data, err := os.ReadFile(p.InterpreterFrom)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o755)
}

func (p *FakePython) pyinstaller(inv process.Invocation, rest []string) *process.Result {
	if !p.PyInstallerExit.IsSuccess() {
		return &process.Result{ExitCode: p.PyInstallerExit, ErrOutput: "ERROR: Script file does not exist\n"}
	}

	distPath := "dist"
	name := ""
	entry := ""
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "--distpath":
			i++
			distPath = rest[i]
		case "--name":
			i++
			name = rest[i]
		case "--workpath", "--specpath", "--icon", "--log-level":
			i++
		default:
			if !strings.HasPrefix(rest[i], "-") {
				entry = rest[i]
			}
		}
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(entry), filepath.Ext(entry))
	}
	if p.SkipArtifact {
		return process.NewSuccessResult()
	}

	n := p.builds.Add(1)
	out := filepath.Join(resolveIn(inv.Dir, distPath), name+p.ExeSuffix)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return process.NewErrorResult(1, err)
	}
	content := fmt.Sprintf("executable %s build %d\n", filepath.Base(entry), n)
	if err := os.WriteFile(out, []byte(content), 0o755); err != nil {
		return process.NewErrorResult(1, err)
	}
	return &process.Result{Output: "Building EXE completed successfully.\n"}
}

func afterModule(args []string) []string {
	for i, a := range args {
		if a == "-m" && i+1 < len(args) {
			return args[i+2:]
		}
	}
	return nil
}

func resolveIn(dir, path string) string {
	if filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}
