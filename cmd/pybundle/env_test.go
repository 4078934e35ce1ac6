// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pybundle/pybundle/internal/build"
	"github.com/pybundle/pybundle/internal/buildlock"
	"github.com/pybundle/pybundle/internal/testutil"
)

func TestEnv_RespectsBuildLock(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	tests := []struct {
		name       string
		args       []string
		venvBefore bool
	}{
		{"clean keeps the environment", []string{"env", "clean"}, true},
		{"ensure does not create it", []string{"env", "ensure"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := testutil.NewProject(t)
			venvDir := filepath.Join(dir, "venv")
			if tt.venvBefore {
				testutil.MustWriteFile(t, filepath.Join(venvDir, "pyvenv.cfg"), "home = /usr/bin\n")
			}

			lock, err := buildlock.Acquire(context.Background(), dir, false)
			if err != nil {
				t.Fatalf("Acquire() error = %v", err)
			}
			t.Cleanup(lock.Release)

			app, _, stderr := newTestApp()
			code := run(context.Background(), app, append(tt.args, "-C", dir))
			if code != build.ExitBuildLocked {
				t.Fatalf("exit code = %d, want %d (stderr: %s)", code, build.ExitBuildLocked, stderr)
			}
			if !strings.Contains(stderr.String(), "build locked") {
				t.Errorf("stderr = %q, want the lock error", stderr.String())
			}

			_, statErr := os.Stat(venvDir)
			if exists := statErr == nil; exists != tt.venvBefore {
				t.Errorf("environment exists = %v, want %v", exists, tt.venvBefore)
			}
		})
	}
}

func TestEnv_CleanAfterLockReleased(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	dir := testutil.NewProject(t)
	venvDir := filepath.Join(dir, "venv")
	testutil.MustWriteFile(t, filepath.Join(venvDir, "pyvenv.cfg"), "home = /usr/bin\n")

	lock, err := buildlock.Acquire(context.Background(), dir, false)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	lock.Release()

	app, stdout, stderr := newTestApp()
	if code := run(context.Background(), app, []string{"env", "clean", "-C", dir}); code != build.ExitSuccess {
		t.Fatalf("exit code = %d, want 0 (stderr: %s)", code, stderr)
	}
	if !strings.Contains(stdout.String(), "Removed") {
		t.Errorf("stdout = %q, want removal message", stdout.String())
	}
	if _, err := os.Stat(venvDir); !os.IsNotExist(err) {
		t.Errorf("environment still exists: %v", err)
	}
}
