// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"runtime"

	"github.com/pybundle/pybundle/internal/build"
	"github.com/pybundle/pybundle/internal/config"
	"github.com/pybundle/pybundle/internal/container"
	"github.com/pybundle/pybundle/internal/installer"
	"github.com/pybundle/pybundle/internal/issue"
	"github.com/pybundle/pybundle/internal/packager"
	"github.com/pybundle/pybundle/internal/process"
	"github.com/pybundle/pybundle/internal/venv"
)

// toolchain binds one configuration to a runner and an environment manager.
type toolchain struct {
	cfg        *config.Config
	projectDir string
	runner     process.Runner
	envs       *venv.Manager
	// live receives the tools' output; nil keeps it quiet.
	live io.Writer
}

func newToolchain(ctx context.Context, cfg *config.Config, projectDir string, live io.Writer) (*toolchain, error) {
	envs := &venv.Manager{
		UpgradeDeps: cfg.Environment.UpgradeDeps,
		Stdout:      live,
		Stderr:      live,
	}

	interpreter, err := process.SplitArgs(cfg.Python)
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("parse python command").
			WithResource(cfg.Python).
			WithSuggestion("Quote the interpreter path if it contains spaces").
			Wrap(err).
			BuildError()
	}

	var runner process.Runner
	switch cfg.Runtime {
	case config.RuntimeContainer:
		engine, err := container.NewEngine(ctx, container.EngineType(cfg.Container.Engine))
		if err != nil {
			return nil, err
		}
		r, err := container.NewRunner(engine, cfg.Container.Image, projectDir)
		if err != nil {
			return nil, err
		}
		runner = r
		envs.Layout = venv.LayoutFor("linux")
		envs.BasePath = container.ContainerPath
		if len(interpreter) == 0 {
			interpreter = []string{"python3"}
		}
	default:
		runner = process.NewHostRunner()
		envs.Layout = venv.HostLayout()
		if len(interpreter) == 0 {
			interpreter = venv.DefaultInterpreter(runtime.GOOS, nil)
		}
	}
	envs.Runner = runner
	envs.Interpreter = interpreter

	return &toolchain{cfg: cfg, projectDir: projectDir, runner: runner, envs: envs, live: live}, nil
}

func (t *toolchain) venvDir() string {
	if filepath.IsAbs(t.cfg.Venv) {
		return t.cfg.Venv
	}
	return filepath.Join(t.projectDir, t.cfg.Venv)
}

func (t *toolchain) orchestrator(wait bool) *build.Orchestrator {
	cfg := t.cfg
	pkg := packager.Options{
		Clean:     cfg.Package.Clean,
		OneFile:   cfg.Package.OneFile,
		Windowed:  cfg.Package.Windowed,
		NoConfirm: cfg.Package.NoConfirm,
		Icon:      cfg.Package.Icon,
		Name:      cfg.Package.Name,
		DistDir:   cfg.Package.DistDir,
		WorkDir:   cfg.Package.WorkDir,
		SpecDir:   cfg.Package.SpecDir,
		LogLevel:  cfg.Package.LogLevel,
		ExtraArgs: cfg.Package.ExtraArgs,
		ExeSuffix: t.envs.Layout.ExeSuffix,
	}

	orch := build.New(build.Options{
		ProjectDir:   t.projectDir,
		Entry:        cfg.Entry,
		Venv:         cfg.Venv,
		ArtifactName: cfg.ArtifactName,
		Strictness:   cfg.Strictness,
		Runtime:      t.runner.Name(),
		Wait:         wait,
		Install: installer.Options{
			Manifest:   cfg.Manifest,
			UpgradePip: cfg.Pip.UpgradePip,
			ExtraArgs:  cfg.Pip.ExtraArgs,
			Stdout:     t.live,
			Stderr:     t.live,
		},
		Package: pkg,
	}, t.envs, t.runner)
	orch.Packager.Stdout = t.live
	orch.Packager.Stderr = t.live
	return orch
}

// toolchainFailure reports an error from newToolchain.
func toolchainFailure(err error) (issue.Id, int) {
	var notAvailable *container.ErrEngineNotAvailable
	if errors.As(err, &notAvailable) {
		return issue.ContainerEngineNotFoundId, build.ExitGeneric
	}
	return 0, build.ExitGeneric
}
