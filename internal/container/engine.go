// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"runtime"
	"slices"
	"strings"

	"github.com/pybundle/pybundle/internal/process"
)

const (
	EngineTypePodman EngineType = "podman"
	EngineTypeDocker EngineType = "docker"
)

type (
	// EngineType identifies the container engine CLI.
	EngineType string

	// Engine is a docker or podman CLI on the host.
	Engine struct {
		Type EngineType
		// Path is the resolved CLI binary. Empty when the CLI is not installed.
		Path string
		// exec runs the CLI; nil uses a host runner.
		exec process.Runner
	}

	// ErrEngineNotAvailable is returned when no usable container engine exists.
	ErrEngineNotAvailable struct {
		Engine string
		Reason string
	}

	// RunOptions describes one `<engine> run`.
	RunOptions struct {
		Image   string
		Command []string
		WorkDir string
		Env     map[string]string
		// Volumes are "host:container[:options]" bind mounts.
		Volumes []string
		User    string
		Remove  bool
	}
)

func (e *ErrEngineNotAvailable) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// NewEngineAt creates an engine for a known CLI binary.
func NewEngineAt(typ EngineType, path string, runner process.Runner) *Engine {
	return &Engine{Type: typ, Path: path, exec: runner}
}

func lookupEngine(typ EngineType) *Engine {
	path, _ := exec.LookPath(string(typ))
	return &Engine{Type: typ, Path: path}
}

// NewEngine returns the preferred engine, falling back to the other one.
func NewEngine(ctx context.Context, preferred EngineType) (*Engine, error) {
	var order []EngineType
	switch preferred {
	case EngineTypePodman:
		order = []EngineType{EngineTypePodman, EngineTypeDocker}
	case EngineTypeDocker:
		order = []EngineType{EngineTypeDocker, EngineTypePodman}
	case "", "auto":
		return AutoDetectEngine(ctx)
	default:
		return nil, fmt.Errorf("unknown container engine type: %s", preferred)
	}

	for _, typ := range order {
		if e := lookupEngine(typ); e.Available(ctx) {
			return e, nil
		}
	}
	return nil, &ErrEngineNotAvailable{
		Engine: string(preferred),
		Reason: fmt.Sprintf("%s is not installed or not accessible, and %s fallback is also not available", order[0], order[1]),
	}
}

// AutoDetectEngine returns the first available engine, trying podman first.
func AutoDetectEngine(ctx context.Context) (*Engine, error) {
	for _, typ := range []EngineType{EngineTypePodman, EngineTypeDocker} {
		if e := lookupEngine(typ); e.Available(ctx) {
			return e, nil
		}
	}
	return nil, &ErrEngineNotAvailable{
		Engine: "any",
		Reason: "no container engine (podman or docker) is available on this system",
	}
}

// Name returns the engine name.
func (e *Engine) Name() string { return string(e.Type) }

// Available reports whether the engine CLI can reach its daemon or runtime.
func (e *Engine) Available(ctx context.Context) bool {
	if e.Path == "" {
		return false
	}
	_, err := e.Version(ctx)
	return err == nil
}

// Version returns the engine server version.
func (e *Engine) Version(ctx context.Context) (string, error) {
	format := "{{.Server.Version}}"
	if e.Type == EngineTypePodman {
		format = "{{.Version}}"
	}
	inv := process.Invocation{Program: e.Path, Args: []string{"version", "--format", format}}
	res := e.runner().Run(ctx, inv)
	if err := res.Err(inv); err != nil {
		return "", fmt.Errorf("failed to get %s version: %w", e.Type, err)
	}
	return strings.TrimSpace(res.Output), nil
}

// RunArgs builds `run [options] <image> [command...]`. Env keys are emitted
// in sorted order so the command line is stable.
func (e *Engine) RunArgs(opts RunOptions) []string {
	args := []string{"run"}
	if opts.Remove {
		args = append(args, "--rm")
	}
	if opts.WorkDir != "" {
		args = append(args, "-w", opts.WorkDir)
	}
	if opts.User != "" {
		args = append(args, "--user", opts.User)
	}
	if e.Type == EngineTypePodman && opts.User == "" && rootlessHost() {
		args = append(args, "--userns=keep-id")
	}
	for _, k := range sortedKeys(opts.Env) {
		args = append(args, "-e", k+"="+opts.Env[k])
	}
	for _, v := range opts.Volumes {
		if e.Type == EngineTypePodman {
			v = addSELinuxLabel(v, isSELinuxEnabled())
		}
		args = append(args, "-v", v)
	}
	args = append(args, opts.Image)
	return append(args, opts.Command...)
}

func (e *Engine) runner() process.Runner {
	if e.exec != nil {
		return e.exec
	}
	return process.NewHostRunner()
}

// isSELinuxEnabled checks /sys/fs/selinux/enforce.
func isSELinuxEnabled() bool {
	data, err := os.ReadFile("/sys/fs/selinux/enforce")
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == "1"
}

// addSELinuxLabel appends the shared :z label to a bind mount unless it
// already carries one.
func addSELinuxLabel(volume string, enabled bool) string {
	if !enabled {
		return volume
	}
	parts := strings.Split(volume, ":")
	if len(parts) < 2 {
		return volume
	}
	if len(parts) >= 3 {
		for opt := range strings.SplitSeq(parts[len(parts)-1], ",") {
			if opt == "z" || opt == "Z" {
				return volume
			}
		}
		return volume + ",z"
	}
	return volume + ":z"
}

func rootlessHost() bool {
	return runtime.GOOS == "linux" && os.Getuid() > 0
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
