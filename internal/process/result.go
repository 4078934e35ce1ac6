// SPDX-License-Identifier: MPL-2.0

package process

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNonZeroExit is wrapped by the error returned from Result.Err for tools
// that ran to completion but reported failure.
var ErrNonZeroExit = errors.New("tool exited with non-zero status")

type (
	// Result is the outcome of one Invocation.
	Result struct {
		// ExitCode is the exit status of the tool.
		ExitCode ExitCode
		// Error is set when the tool could not be started or was interrupted,
		// as opposed to exiting with a non-zero status.
		Error error
		// Output is the tail of the captured stdout.
		Output string
		// ErrOutput is the tail of the captured stderr.
		ErrOutput string
		// Duration is the wall-clock time the tool ran.
		Duration time.Duration
	}

	// ExitError describes a tool that exited with a non-zero status.
	ExitError struct {
		Command  string
		ExitCode ExitCode
		Stderr   string
	}
)

// NewErrorResult creates a Result for an infrastructure failure.
func NewErrorResult(code ExitCode, err error) *Result {
	return &Result{ExitCode: code, Error: err}
}

// NewSuccessResult creates a Result with exit code 0 and no error.
func NewSuccessResult() *Result {
	return &Result{}
}

// Success reports whether the tool ran and exited with status 0.
func (r *Result) Success() bool {
	return r.ExitCode.IsSuccess() && r.Error == nil
}

// Err converts the result into an error, or nil on success. The command line
// is used to identify the tool in the message.
func (r *Result) Err(inv Invocation) error {
	if r.Error != nil {
		return fmt.Errorf("%s: %w", inv.Program, r.Error)
	}
	if !r.ExitCode.IsSuccess() {
		return &ExitError{Command: inv.String(), ExitCode: r.ExitCode, Stderr: r.ErrOutput}
	}
	return nil
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: exit status %d", e.Command, e.ExitCode)
	if last := lastLine(e.Stderr); last != "" {
		msg += ": " + last
	}
	return msg
}

// Unwrap returns ErrNonZeroExit.
func (e *ExitError) Unwrap() error { return ErrNonZeroExit }

func lastLine(s string) string {
	s = strings.TrimRight(s, "\r\n\t ")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

// Record pairs an invocation with its result for reporting.
type Record struct {
	Invocation Invocation
	Result     *Result
}
