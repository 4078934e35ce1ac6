// SPDX-License-Identifier: MPL-2.0

package venv

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/pybundle/pybundle/internal/process"
	"github.com/pybundle/pybundle/internal/testutil"
)

func newTestManager(fake *testutil.FakePython) (*Manager, *testutil.FakeRunner) {
	runner := &testutil.FakeRunner{Handler: fake.Handle}
	m := NewManager(runner, []string{"python3"})
	m.Layout = LayoutFor("linux")
	m.BasePath = "/usr/bin"
	return m, runner
}

func TestEnsureCreatesOnce(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "venv")
	m, runner := newTestManager(testutil.NewFakePython())

	first, err := m.Ensure(context.Background(), dir)
	if err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	if !first.Created {
		t.Error("first Ensure() should create the environment")
	}

	second, err := m.Ensure(context.Background(), dir)
	if err != nil {
		t.Fatalf("second Ensure() error: %v", err)
	}
	if second.Created || second.Result != nil {
		t.Error("second Ensure() should be a no-op")
	}

	calls := runner.Invocations()
	if len(calls) != 1 || calls[0].Program != "python3" || !slices.Equal(calls[0].Args, []string{"-m", "venv", dir}) {
		t.Errorf("invocations = %q", runner.CommandLines())
	}
}

func TestEnsureCreationFailure(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "venv")
	fake := testutil.NewFakePython()
	fake.VenvExit = 1
	m, _ := newTestManager(fake)

	res, err := m.Ensure(context.Background(), dir)
	if !errors.Is(err, process.ErrNonZeroExit) {
		t.Fatalf("Ensure() error = %v, want ErrNonZeroExit", err)
	}
	if res == nil || res.Result == nil || res.Result.ExitCode != 1 {
		t.Errorf("EnsureResult = %+v", res)
	}
}

func TestEnsureRejectsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "venv")
	testutil.MustWriteFile(t, path, "not a dir")
	m, runner := newTestManager(testutil.NewFakePython())

	if _, err := m.Ensure(context.Background(), path); !errors.Is(err, ErrNotADirectory) {
		t.Errorf("Ensure() error = %v, want ErrNotADirectory", err)
	}
	if len(runner.Invocations()) != 0 {
		t.Error("no tool should run when the path is a file")
	}
}

func TestCreateInvocationFlags(t *testing.T) {
	t.Parallel()

	m := NewManager(&testutil.FakeRunner{}, []string{"py", "-3"})
	m.UpgradeDeps = true
	inv := m.CreateInvocation(filepath.Join("proj", "venv"))

	want := []string{"-3", "-m", "venv", "--upgrade-deps", filepath.Join("proj", "venv")}
	if inv.Program != "py" || !slices.Equal(inv.Args, want) {
		t.Errorf("CreateInvocation() = %s %q", inv.Program, inv.Args)
	}
	if !slices.Contains(inv.Unset, "VIRTUAL_ENV") {
		t.Error("an already active environment must not leak into creation")
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "venv")
	m, _ := newTestManager(testutil.NewFakePython())
	if _, err := m.Ensure(context.Background(), dir); err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}

	env, err := m.Resolve(dir)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if env.Python != filepath.Join(dir, "bin", "python") {
		t.Errorf("Python = %q", env.Python)
	}

	overlay := env.Env()
	if overlay["VIRTUAL_ENV"] != dir {
		t.Errorf("VIRTUAL_ENV = %q", overlay["VIRTUAL_ENV"])
	}
	if overlay["PATH"] != filepath.Join(dir, "bin")+":/usr/bin" {
		t.Errorf("PATH = %q", overlay["PATH"])
	}

	inv := env.Module(dir, "pip", "--version")
	if inv.Program != env.Python || !slices.Equal(inv.Args, []string{"-m", "pip", "--version"}) {
		t.Errorf("Module() = %s %q", inv.Program, inv.Args)
	}
}

func TestResolveFailures(t *testing.T) {
	t.Parallel()

	t.Run("not an environment", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		m, _ := newTestManager(testutil.NewFakePython())
		if _, err := m.Resolve(dir); !errors.Is(err, ErrNotEnvironment) {
			t.Errorf("Resolve() error = %v, want ErrNotEnvironment", err)
		}
	})

	t.Run("interpreter missing", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "venv")
		fake := testutil.NewFakePython()
		fake.SkipInterpreter = true
		m, _ := newTestManager(fake)
		if _, err := m.Ensure(context.Background(), dir); err != nil {
			t.Fatalf("Ensure() error: %v", err)
		}
		if _, err := m.Resolve(dir); !errors.Is(err, ErrInterpreterMissing) {
			t.Errorf("Resolve() error = %v, want ErrInterpreterMissing", err)
		}
	})

	t.Run("interpreter not executable", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "venv")
		testutil.MustWriteFile(t, filepath.Join(dir, ConfigFileName), "")
		testutil.MustWriteFile(t, filepath.Join(dir, "bin", "python"), "")
		m, _ := newTestManager(testutil.NewFakePython())
		if _, err := m.Resolve(dir); !errors.Is(err, ErrInterpreterMissing) {
			t.Errorf("Resolve() error = %v, want ErrInterpreterMissing", err)
		}
	})
}

func TestClean(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	m, _ := newTestManager(testutil.NewFakePython())

	removed, err := m.Clean(filepath.Join(root, "absent"))
	if err != nil || removed {
		t.Errorf("Clean(absent) = %v, %v", removed, err)
	}

	plain := filepath.Join(root, "plain")
	testutil.MustMkdirAll(t, plain, 0o755)
	if _, err := m.Clean(plain); !errors.Is(err, ErrNotEnvironment) {
		t.Errorf("Clean(plain) error = %v, want ErrNotEnvironment", err)
	}

	dir := filepath.Join(root, "venv")
	if _, err := m.Ensure(context.Background(), dir); err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	removed, err = m.Clean(dir)
	if err != nil || !removed {
		t.Fatalf("Clean(venv) = %v, %v", removed, err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("environment directory should be gone")
	}
}

func TestDefaultInterpreter(t *testing.T) {
	t.Parallel()

	only := func(names ...string) func(string) (string, error) {
		return func(file string) (string, error) {
			if slices.Contains(names, file) {
				return "/usr/bin/" + file, nil
			}
			return "", errors.New("not found")
		}
	}

	tests := []struct {
		name   string
		goos   string
		lookup func(string) (string, error)
		want   []string
	}{
		{"linux prefers python3", "linux", only("python3", "python"), []string{"python3"}},
		{"linux falls back to python", "linux", only("python"), []string{"python"}},
		{"windows prefers launcher", "windows", only("py", "python"), []string{"py", "-3"}},
		{"windows nothing found", "windows", only(), []string{"python"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := DefaultInterpreter(tt.goos, tt.lookup); !slices.Equal(got, tt.want) {
				t.Errorf("DefaultInterpreter() = %q, want %q", got, tt.want)
			}
		})
	}
}
