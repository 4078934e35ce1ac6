// SPDX-License-Identifier: MPL-2.0

// Package build orchestrates one build: ensure the environment, resolve it,
// install dependencies, package the entry script, release the environment and
// stage the executable.
package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/pybundle/pybundle/internal/buildlock"
	"github.com/pybundle/pybundle/internal/config"
	"github.com/pybundle/pybundle/internal/installer"
	"github.com/pybundle/pybundle/internal/packager"
	"github.com/pybundle/pybundle/internal/process"
	"github.com/pybundle/pybundle/internal/stage"
	"github.com/pybundle/pybundle/internal/venv"
)

type (
	// Options describe one build. Relative paths are resolved against ProjectDir.
	Options struct {
		ProjectDir string
		Entry      string
		Venv       string
		// ArtifactName is the staged base name. Empty uses the packaged name.
		ArtifactName string
		Strictness   config.Strictness
		// Runtime is recorded in the report.
		Runtime string
		// Wait blocks on a busy build lock instead of failing.
		Wait    bool
		Install installer.Options
		Package packager.Options
	}

	// Orchestrator runs builds. The zero values of Clock, Observer and NewRunID
	// are replaced with the system clock, a silent observer and random UUIDs.
	Orchestrator struct {
		Options   Options
		Envs      *venv.Manager
		Installer *installer.Installer
		Packager  *packager.Packager
		Clock     Clock
		Observer  Observer
		NewRunID  func() string
	}

	// run is the state of one Run call.
	run struct {
		o        *Orchestrator
		ctx      context.Context
		machine  *Machine
		report   *Report
		failures []error
	}
)

// New creates an Orchestrator whose tools all use runner.
func New(opts Options, envs *venv.Manager, runner process.Runner) *Orchestrator {
	return &Orchestrator{
		Options:   opts,
		Envs:      envs,
		Installer: installer.New(runner),
		Packager:  packager.New(runner),
	}
}

// StagedPath returns where the executable is staged.
func (o *Orchestrator) StagedPath() string {
	opts := o.Options
	name := opts.ArtifactName
	if name == "" {
		name = opts.Package.BaseName(opts.Entry)
	}
	return filepath.Join(o.projectDir(), name+opts.Package.ExeSuffix)
}

func (o *Orchestrator) projectDir() string {
	dir, err := filepath.Abs(o.Options.ProjectDir)
	if err != nil {
		return o.Options.ProjectDir
	}
	return dir
}

func (o *Orchestrator) venvDir() string {
	if filepath.IsAbs(o.Options.Venv) {
		return o.Options.Venv
	}
	return filepath.Join(o.projectDir(), o.Options.Venv)
}

func (o *Orchestrator) clock() Clock {
	if o.Clock == nil {
		return systemClock{}
	}
	return o.Clock
}

func (o *Orchestrator) observer() Observer {
	if o.Observer == nil {
		return nopObserver{}
	}
	return o.Observer
}

// Run executes the build under the project lock. The report is always
// returned, also on failure; the error is nil only when every step succeeded.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	r := &run{
		o:       o,
		ctx:     ctx,
		machine: NewMachine(o.Options.Strictness),
		report:  o.newReport(),
	}

	lock, err := buildlock.Acquire(ctx, o.projectDir(), o.Options.Wait)
	if err != nil {
		if errors.Is(err, buildlock.ErrLocked) {
			err = fmt.Errorf("%w: %w", ErrBuildLocked, err)
		}
		_ = r.machine.Fail(err)
		return r.finish(err), err
	}
	defer lock.Release()

	err = r.execute()
	return r.finish(err), err
}

func (o *Orchestrator) newReport() *Report {
	runID := ""
	if o.NewRunID != nil {
		runID = o.NewRunID()
	} else {
		runID = uuid.NewString()
	}
	return &Report{
		RunID:      runID,
		Project:    o.projectDir(),
		Runtime:    o.Options.Runtime,
		Strictness: string(o.Options.Strictness),
		StartedAt:  o.clock().Now(),
	}
}

func (r *run) execute() error {
	opts := r.o.Options
	projectDir := r.o.projectDir()

	// ensure_environment
	step := r.begin(StepEnsureEnvironment, r.o.venvDir())
	ensured, err := r.o.Envs.Ensure(r.ctx, r.o.venvDir())
	var created *process.Result
	if ensured != nil && ensured.Result != nil {
		created = ensured.Result
		step.addRecords(process.Record{Invocation: ensured.Invocation, Result: created})
	}
	if err != nil {
		return r.abort(step, ErrEnvironmentCreation, created, err)
	}
	if !ensured.Created {
		step.Detail = "environment already present"
	}
	r.end(step, StatusOK, nil)
	if err := r.machine.Advance(StateEnvironmentReady); err != nil {
		return err
	}

	// activate_environment
	step = r.begin(StepActivateEnvironment, r.o.venvDir())
	env, err := r.o.Envs.Resolve(r.o.venvDir())
	if err != nil {
		return r.abort(step, ErrEnvironmentActivation, nil, err)
	}
	step.Detail = env.Python
	r.end(step, StatusOK, nil)
	if err := r.machine.Advance(StateEnvironmentActive); err != nil {
		return err
	}

	// From here on the environment is released on every path.
	released := false
	release := func() {
		if released {
			return
		}
		released = true
		s := r.begin(StepDeactivateEnvironment, env.Dir)
		// Nothing past this point may run inside the environment.
		env = nil
		r.end(s, StatusOK, nil)
	}
	defer release()

	// install_dependencies
	step = r.begin(StepInstallDependencies, opts.Install.Manifest)
	records, err := r.o.Installer.Install(r.ctx, env, projectDir, opts.Install)
	step.addRecords(records...)
	if err != nil {
		if stop := r.stepFailed(step, ErrDependencyInstall, lastResult(records), err, release); stop != nil {
			return stop
		}
	} else {
		r.end(step, StatusOK, nil)
	}
	if err := r.machine.Advance(StateDependenciesInstalled); err != nil {
		return err
	}

	// package
	step = r.begin(StepPackage, opts.Entry)
	outcome, err := r.o.Packager.Package(r.ctx, env, projectDir, opts.Entry, opts.Package)
	var packaged string
	if outcome != nil {
		step.addRecords(outcome.Record)
		packaged = outcome.Artifact
	} else {
		packaged = opts.Package.ArtifactPath(projectDir, opts.Entry)
	}
	if err != nil {
		var res *process.Result
		if outcome != nil {
			res = outcome.Record.Result
		}
		if stop := r.stepFailed(step, ErrPackaging, res, err, release); stop != nil {
			return stop
		}
	} else {
		step.Detail = packaged
		r.end(step, StatusOK, nil)
	}
	if err := r.machine.Advance(StatePackaged); err != nil {
		return err
	}

	// deactivate_environment
	release()
	if err := r.machine.Advance(StateEnvironmentRestored); err != nil {
		return err
	}

	// stage_artifact
	dst := r.o.StagedPath()
	step = r.begin(StepStageArtifact, dst)
	staged, err := stage.Copy(packaged, dst)
	if err != nil {
		if stop := r.stepFailed(step, ErrStaging, nil, err, nil); stop != nil {
			return stop
		}
	} else {
		r.report.Artifact = staged
		step.Detail = fmt.Sprintf("%s (%d bytes)", dst, staged.Size)
		r.end(step, StatusOK, nil)
	}
	if err := r.machine.Advance(StateStaged); err != nil {
		return err
	}
	if err := r.machine.Advance(StateDone); err != nil {
		return err
	}

	return errors.Join(r.failures...)
}

// begin records the start of step.
func (r *run) begin(step Step, detail string) *StepReport {
	sr := &StepReport{Step: step, StartedAt: r.o.clock().Now()}
	r.report.Steps = append(r.report.Steps, sr)
	slog.Debug("step started", "step", string(step), "detail", detail)
	r.o.observer().StepStarted(step, detail)
	return sr
}

func (r *run) end(sr *StepReport, status StepStatus, err error) {
	sr.Status = status
	sr.Duration = r.o.clock().Now().Sub(sr.StartedAt)
	if err != nil {
		sr.Error = err.Error()
	}
	slog.Debug("step finished", "step", string(sr.Step), "status", string(status), "duration", sr.Duration)
	r.o.observer().StepFinished(sr.Step, sr)
}

// abort fails the build at step and marks every later step skipped.
func (r *run) abort(sr *StepReport, kind error, res *process.Result, cause error) error {
	se := &StepError{Step: sr.Step, Kind: kind, Result: res, Err: cause}
	r.end(sr, StatusFailed, cause)
	if err := r.machine.Fail(cause); err != nil {
		return errors.Join(se, err)
	}
	r.skipAfter(sr.Step)
	return se
}

// stepFailed handles a failure of a step that lenient builds continue past.
// It returns a non-nil error when the build must stop.
func (r *run) stepFailed(sr *StepReport, kind error, res *process.Result, cause error, release func()) error {
	se := &StepError{Step: sr.Step, Kind: kind, Result: res, Err: cause}
	if r.o.Options.Strictness == config.StrictnessLenient && !interrupted(cause) {
		slog.Warn("continuing after failed step", "step", string(sr.Step), "error", cause)
		r.report.Degraded = true
		r.failures = append(r.failures, se)
		r.end(sr, StatusWarning, cause)
		return nil
	}

	r.end(sr, StatusFailed, cause)
	if release != nil {
		release()
	}
	if err := r.machine.Fail(cause); err != nil {
		return errors.Join(se, err)
	}
	r.skipAfter(sr.Step)
	return errors.Join(append(r.failures, se)...)
}

// skipAfter records every step after step that has not run as skipped.
func (r *run) skipAfter(step Step) {
	after := false
	for _, s := range Steps {
		if s == step {
			after = true
			continue
		}
		if !after || r.report.Step(s) != nil {
			continue
		}
		r.report.Steps = append(r.report.Steps, &StepReport{Step: s, Status: StatusSkipped})
	}
}

func (r *run) finish(err error) *Report {
	rep := r.report
	rep.FinishedAt = r.o.clock().Now()
	rep.Duration = rep.FinishedAt.Sub(rep.StartedAt)
	rep.FinalState = r.machine.State()
	rep.States = r.machine.History()
	rep.ExitCode = ExitCodeFor(err)
	if err != nil {
		rep.Error = err.Error()
	}
	slog.Info("build finished", "run_id", rep.RunID, "state", rep.FinalState.String(), "exit", rep.ExitCode)
	return rep
}

func lastResult(records []process.Record) *process.Result {
	if len(records) == 0 {
		return nil
	}
	return records[len(records)-1].Result
}
