// SPDX-License-Identifier: MPL-2.0

package build

import (
	"errors"
	"fmt"
	"os/exec"

	"github.com/pybundle/pybundle/internal/buildlock"
	"github.com/pybundle/pybundle/internal/installer"
	"github.com/pybundle/pybundle/internal/issue"
	"github.com/pybundle/pybundle/internal/packager"
	"github.com/pybundle/pybundle/internal/process"
)

// Exit codes of a build, one per failure kind.
const (
	ExitSuccess               = 0
	ExitGeneric               = 1
	ExitEnvironmentCreation   = 10
	ExitEnvironmentActivation = 11
	ExitDependencyInstall     = 12
	ExitPackaging             = 13
	ExitStaging               = 14
	ExitBuildLocked           = 15
	ExitInterrupted           = 130
)

var (
	// ErrEnvironmentCreation marks a failure to create the environment.
	ErrEnvironmentCreation = errors.New("environment creation failed")
	// ErrEnvironmentActivation marks a failure to resolve the environment's tools.
	ErrEnvironmentActivation = errors.New("environment activation failed")
	// ErrDependencyInstall marks a failed dependency installation.
	ErrDependencyInstall = errors.New("dependency installation failed")
	// ErrPackaging marks a failed packaging run.
	ErrPackaging = errors.New("packaging failed")
	// ErrStaging marks a failure to copy the artifact into place.
	ErrStaging = errors.New("staging failed")
	// ErrBuildLocked marks a build refused because another one holds the lock.
	ErrBuildLocked = errors.New("build locked")
)

// StepError is the failure of one build step. It matches both its Kind
// sentinel and the underlying cause with errors.Is.
type StepError struct {
	Step Step
	// Kind is one of the Err* sentinels of this package.
	Kind error
	// Result is the last tool result of the step, if a tool ran.
	Result *process.Result
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Step, e.Kind, e.Err)
}

// Unwrap returns the kind sentinel and the cause.
func (e *StepError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// ExitCodeFor maps a build error to the process exit code. With several
// failures joined together, the first step error decides.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if interrupted(err) {
		return ExitInterrupted
	}

	var se *StepError
	if errors.As(err, &se) {
		switch se.Kind {
		case ErrEnvironmentCreation:
			return ExitEnvironmentCreation
		case ErrEnvironmentActivation:
			return ExitEnvironmentActivation
		case ErrDependencyInstall:
			return ExitDependencyInstall
		case ErrPackaging:
			return ExitPackaging
		case ErrStaging:
			return ExitStaging
		}
	}
	if errors.Is(err, ErrBuildLocked) {
		return ExitBuildLocked
	}
	return ExitGeneric
}

// IssueFor picks the catalog entry with the most specific guidance for err.
// It returns 0 when no entry applies.
func IssueFor(err error) issue.Id {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrBuildLocked), errors.Is(err, buildlock.ErrLocked):
		return issue.BuildLockedId
	case errors.Is(err, ErrEnvironmentCreation) && errors.Is(err, exec.ErrNotFound):
		return issue.PythonNotFoundId
	case errors.Is(err, installer.ErrManifestNotFound):
		return issue.ManifestNotFoundId
	case errors.Is(err, packager.ErrEntryNotFound):
		return issue.EntryScriptNotFoundId
	case errors.Is(err, packager.ErrIconNotFound):
		return issue.IconNotFoundId
	}

	var se *StepError
	if !errors.As(err, &se) {
		return 0
	}
	switch se.Kind {
	case ErrEnvironmentCreation:
		return issue.EnvironmentCreationFailedId
	case ErrEnvironmentActivation:
		return issue.EnvironmentActivationFailedId
	case ErrDependencyInstall:
		return issue.DependencyInstallFailedId
	case ErrPackaging:
		return issue.PackagingFailedId
	case ErrStaging:
		return issue.StagingFailedId
	}
	return 0
}
