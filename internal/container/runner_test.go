// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"path/filepath"
	"slices"
	"testing"

	"github.com/pybundle/pybundle/internal/process"
	"github.com/pybundle/pybundle/internal/testutil"
)

func newTestRunner(t *testing.T, exec process.Runner) *Runner {
	t.Helper()
	r, err := NewRunner(NewEngineAt(EngineTypeDocker, "/usr/bin/docker", exec), "", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestTranslate(t *testing.T) {
	t.Parallel()

	r := newTestRunner(t, &testutil.FakeRunner{})
	tests := []struct {
		in, want string
	}{
		{r.HostDir, "/src"},
		{filepath.Join(r.HostDir, "venv", "bin", "python"), "/src/venv/bin/python"},
		{"requirements.txt", "requirements.txt"},
		{"python3", "python3"},
		{r.HostDir + "-other", r.HostDir + "-other"},
	}
	for _, tt := range tests {
		if got := r.Translate(tt.in); got != tt.want {
			t.Errorf("Translate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWrap(t *testing.T) {
	t.Parallel()

	r := newTestRunner(t, &testutil.FakeRunner{})
	bin := filepath.Join(r.HostDir, "venv", "bin")
	inv := process.Invocation{
		Program: filepath.Join(bin, "python"),
		Args:    []string{"-m", "pip", "install", "-r", "requirements.txt"},
		Dir:     r.HostDir,
		Env: map[string]string{
			"VIRTUAL_ENV": filepath.Join(r.HostDir, "venv"),
			"PATH":        bin + ":" + ContainerPath,
		},
	}

	w := r.Wrap(inv)
	if w.Program != "/usr/bin/docker" {
		t.Errorf("Program = %q", w.Program)
	}
	for _, want := range [][]string{
		{"-w", "/src"},
		{"-e", "VIRTUAL_ENV=/src/venv"},
		{"-e", "PATH=/src/venv/bin:" + ContainerPath},
		{"-e", "HOME=/tmp"},
		{"-v", r.HostDir + ":/src"},
		{DefaultImage, "/src/venv/bin/python", "-m", "pip", "install", "-r", "requirements.txt"},
	} {
		if !containsSeq(w.Args, want) {
			t.Errorf("wrapped args %q missing %q", w.Args, want)
		}
	}
	if w.Args[0] != "run" || w.Args[1] != "--rm" {
		t.Errorf("wrapped args should start with run --rm: %q", w.Args)
	}
}

func TestRunRetriesTransientEngineFailure(t *testing.T) {
	t.Parallel()

	calls := 0
	exec := &testutil.FakeRunner{Handler: func(context.Context, process.Invocation) *process.Result {
		calls++
		if calls == 1 {
			return &process.Result{ExitCode: 125, ErrOutput: "Error: OCI runtime error: crun: ping_group_range\n"}
		}
		return process.NewSuccessResult()
	}}
	r := newTestRunner(t, exec)

	res := r.Run(context.Background(), process.Invocation{Program: "python3", Args: []string{"--version"}})
	if !res.Success() {
		t.Fatalf("Run() = %+v, want success after retry", res)
	}
	if calls != 2 {
		t.Errorf("engine called %d times, want 2", calls)
	}
}

func TestRunDoesNotRetryToolFailure(t *testing.T) {
	t.Parallel()

	exec := &testutil.FakeRunner{Handler: func(context.Context, process.Invocation) *process.Result {
		return &process.Result{ExitCode: 1, ErrOutput: "ERROR: No matching distribution\n"}
	}}
	r := newTestRunner(t, exec)

	res := r.Run(context.Background(), process.Invocation{Program: "python3"})
	if res.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", res.ExitCode)
	}
	if n := len(exec.Invocations()); n != 1 {
		t.Errorf("engine called %d times, want 1", n)
	}
}

func TestIsTransientResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		res  *process.Result
		want bool
	}{
		{"nil", nil, false},
		{"success", process.NewSuccessResult(), false},
		{"tool failure", &process.Result{ExitCode: 1, ErrOutput: "connection refused"}, false},
		{"engine overlay", &process.Result{ExitCode: 125, ErrOutput: "error creating overlay mount"}, true},
		{"engine other", &process.Result{ExitCode: 125, ErrOutput: "invalid reference format"}, false},
		{"canceled", &process.Result{ExitCode: 125, Error: context.Canceled, ErrOutput: "OCI runtime error"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsTransientResult(tt.res); got != tt.want {
				t.Errorf("IsTransientResult() = %v, want %v", got, tt.want)
			}
		})
	}
}

func containsSeq(haystack, needle []string) bool {
	for i := range haystack {
		if i+len(needle) <= len(haystack) && slices.Equal(haystack[i:i+len(needle)], needle) {
			return true
		}
	}
	return false
}
