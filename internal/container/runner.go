// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pybundle/pybundle/internal/process"
)

const (
	// DefaultImage is used when no image is configured.
	DefaultImage = "python:3.12-slim"
	// MountPoint is where the project directory appears inside the container.
	MountPoint = "/src"
	// ContainerPath is the PATH of the default image.
	ContainerPath = "/usr/local/bin:/usr/local/sbin:/usr/sbin:/usr/bin:/sbin:/bin"

	maxAttempts = 3
	baseBackoff = 500 * time.Millisecond
)

// Runner executes invocations in a fresh container per call. It implements
// process.Runner.
type Runner struct {
	Engine *Engine
	Image  string
	// HostDir is the absolute project directory mounted at MountPoint.
	HostDir string
	// Exec runs the engine CLI on the host.
	Exec process.Runner
}

// NewRunner creates a Runner mounting hostDir into image.
func NewRunner(engine *Engine, image, hostDir string) (*Runner, error) {
	abs, err := filepath.Abs(hostDir)
	if err != nil {
		return nil, fmt.Errorf("resolve project directory: %w", err)
	}
	if image == "" {
		image = DefaultImage
	}
	return &Runner{Engine: engine, Image: image, HostDir: abs, Exec: engine.runner()}, nil
}

// Name returns "container".
func (r *Runner) Name() string { return "container" }

// Translate rewrites a host path under HostDir to its path inside the
// container. Other strings are returned unchanged.
func (r *Runner) Translate(s string) string {
	if s == r.HostDir {
		return MountPoint
	}
	prefix := r.HostDir + string(filepath.Separator)
	if rest, ok := strings.CutPrefix(s, prefix); ok {
		return path.Join(MountPoint, filepath.ToSlash(rest))
	}
	return s
}

// translateList rewrites every entry of a ':'-separated list such as PATH.
// A host directory may itself contain ':' (a Windows drive letter), so an
// entry starting with HostDir is only split after the HostDir prefix.
func (r *Runner) translateList(s string) string {
	var out []string
	for {
		skip := 0
		if strings.HasPrefix(s, r.HostDir) {
			skip = len(r.HostDir)
		}
		i := strings.IndexByte(s[skip:], ':')
		if i < 0 {
			return strings.Join(append(out, r.Translate(s)), ":")
		}
		out = append(out, r.Translate(s[:skip+i]))
		s = s[skip+i+1:]
	}
}

// Wrap converts inv into the host invocation of the engine CLI.
func (r *Runner) Wrap(inv process.Invocation) process.Invocation {
	env := make(map[string]string, len(inv.Env)+1)
	for k, v := range inv.Env {
		if k == "PATH" {
			env[k] = r.translateList(v)
			continue
		}
		env[k] = r.Translate(v)
	}
	if _, ok := env["HOME"]; !ok {
		env["HOME"] = "/tmp"
	}

	workDir := MountPoint
	if inv.Dir != "" {
		workDir = r.Translate(inv.Dir)
	}

	command := make([]string, 0, len(inv.Args)+1)
	command = append(command, r.Translate(inv.Program))
	for _, a := range inv.Args {
		command = append(command, r.Translate(a))
	}

	opts := RunOptions{
		Image:   r.Image,
		Command: command,
		WorkDir: workDir,
		Env:     env,
		Volumes: []string{r.HostDir + ":" + MountPoint},
		User:    hostUser(r.Engine.Type),
		Remove:  true,
	}
	return process.Invocation{
		Program: r.Engine.Path,
		Args:    r.Engine.RunArgs(opts),
		Stdout:  inv.Stdout,
		Stderr:  inv.Stderr,
	}
}

// Run executes inv inside a container. Engine failures that look transient
// are retried with backoff; tool failures are returned as-is.
func (r *Runner) Run(ctx context.Context, inv process.Invocation) *process.Result {
	wrapped := r.Wrap(inv)
	slog.Debug("container run", "engine", r.Engine.Name(), "image", r.Image, "cmd", inv.String())

	var res *process.Result
	_ = RetryWithBackoff(ctx, maxAttempts, baseBackoff, func(attempt int) (bool, error) {
		res = r.Exec.Run(ctx, wrapped)
		err := res.Err(wrapped)
		if err == nil {
			return false, nil
		}
		retry := IsTransientResult(res)
		if retry && attempt+1 < maxAttempts {
			slog.Warn("transient container engine failure, retrying", "attempt", attempt+1, "error", err)
		}
		return retry, err
	})
	return res
}

// hostUser maps the container user to the host user for docker on Linux so
// the files written to the bind mount are owned by the caller. Rootless
// podman does the same through --userns=keep-id.
func hostUser(typ EngineType) string {
	if typ != EngineTypeDocker || runtime.GOOS != "linux" || os.Getuid() <= 0 {
		return ""
	}
	return fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid())
}

// RetryWithBackoff retries op up to maxAttempts times with exponential backoff.
// op returns whether the error is worth retrying.
func RetryWithBackoff(ctx context.Context, maxAttempts int, baseBackoff time.Duration, op func(attempt int) (retry bool, err error)) error {
	var lastErr error
	for attempt := range maxAttempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry aborted: %w", ctx.Err())
			case <-time.After(baseBackoff * time.Duration(1<<(attempt-1))):
			}
		}

		retry, err := op(attempt)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// IsTransientResult reports whether a failed engine call is worth retrying.
// Exit code 125 is the engine's own failure, as opposed to the tool's.
func IsTransientResult(res *process.Result) bool {
	if res == nil || res.Success() {
		return false
	}
	if res.Error != nil && (errors.Is(res.Error, context.Canceled) || errors.Is(res.Error, context.DeadlineExceeded)) {
		return false
	}
	if res.ExitCode != 125 {
		return false
	}
	for _, marker := range []string{
		"ping_group_range",
		"OCI runtime error",
		"Temporary failure resolving",
		"connection timed out",
		"connection refused",
		"error creating overlay mount",
		"error mounting layer",
	} {
		if strings.Contains(res.ErrOutput, marker) {
			return true
		}
	}
	return false
}
