// SPDX-License-Identifier: MPL-2.0

package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// defaultTailBytes bounds the output kept in a Result.
const defaultTailBytes = 16 * 1024

type (
	// Runner executes invocations. Implementations never return a nil Result.
	Runner interface {
		// Name identifies the runner in logs and reports ("native", "container").
		Name() string
		// Run executes inv and blocks until it exits or ctx is done.
		Run(ctx context.Context, inv Invocation) *Result
	}

	// HostRunner runs tools directly on the host with os/exec.
	HostRunner struct {
		// TailBytes bounds the captured stdout/stderr tails. Zero uses the default.
		TailBytes int
		// LookPath resolves bare program names. Nil uses exec.LookPath.
		LookPath func(file string) (string, error)
	}
)

// NewHostRunner creates a HostRunner with default settings.
func NewHostRunner() *HostRunner {
	return &HostRunner{}
}

// Name returns "native".
func (r *HostRunner) Name() string {
	return "native"
}

// Run executes inv on the host. A tool that cannot be started yields a Result
// with ExitCode 127 and Error set; a tool killed by ctx yields Error set to
// the context error.
func (r *HostRunner) Run(ctx context.Context, inv Invocation) *Result {
	program, err := r.resolve(inv.Program)
	if err != nil {
		return NewErrorResult(127, err)
	}

	cmd := exec.CommandContext(ctx, program, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = MergeEnv(os.Environ(), inv.Env, inv.Unset)
	cmd.Stdin = nil

	limit := r.TailBytes
	if limit <= 0 {
		limit = defaultTailBytes
	}
	stdout := newTailBuffer(limit)
	stderr := newTailBuffer(limit)
	cmd.Stdout = teeTo(stdout, inv.Stdout)
	cmd.Stderr = teeTo(stderr, inv.Stderr)

	slog.Debug("running tool", "cmd", inv.String(), "dir", inv.Dir)

	start := time.Now()
	runErr := cmd.Run()
	result := &Result{
		Output:    stdout.String(),
		ErrOutput: stderr.String(),
		Duration:  time.Since(start),
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		switch {
		case ctx.Err() != nil:
			result.ExitCode = 130
			result.Error = ctx.Err()
		case errors.As(runErr, &exitErr):
			result.ExitCode = ExitCode(exitErr.ExitCode())
			if result.ExitCode < 0 {
				// Killed by a signal.
				result.ExitCode = 1
				result.Error = runErr
			}
		default:
			result.ExitCode = 1
			result.Error = fmt.Errorf("failed to execute %s: %w", inv.Program, runErr)
		}
	}

	slog.Debug("tool finished", "program", inv.Program, "exit", int(result.ExitCode), "duration", result.Duration)
	return result
}

func (r *HostRunner) resolve(program string) (string, error) {
	lookPath := r.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	path, err := lookPath(program)
	if err != nil {
		return "", fmt.Errorf("tool not found: %s: %w", program, err)
	}
	return path, nil
}

func teeTo(tail *tailBuffer, live io.Writer) io.Writer {
	if live == nil {
		return tail
	}
	return io.MultiWriter(tail, live)
}
