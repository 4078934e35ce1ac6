// SPDX-License-Identifier: MPL-2.0

package packager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/pybundle/pybundle/internal/process"
	"github.com/pybundle/pybundle/internal/testutil"
	"github.com/pybundle/pybundle/internal/venv"
)

func testEnv(dir string) *venv.Environment {
	return &venv.Environment{
		Dir:    filepath.Join(dir, "venv"),
		BinDir: filepath.Join(dir, "venv", "bin"),
		Python: filepath.Join(dir, "venv", "bin", "python"),
		Layout: venv.LayoutFor("linux"),
	}
}

func TestArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{
			name: "defaults",
			opts: DefaultOptions(),
			want: []string{"--clean", "--onefile", "--icon", "app.ico", "--noconfirm", "watchdog_backup.py"},
		},
		{
			name: "no icon",
			opts: Options{OneFile: true},
			want: []string{"--onefile", "watchdog_backup.py"},
		},
		{
			name: "everything",
			opts: Options{
				Clean: true, OneFile: true, Windowed: true, NoConfirm: true,
				Icon: "app.ico", Name: "backup", DistDir: "out", WorkDir: "tmp", SpecDir: "spec",
				LogLevel: "WARN", ExtraArgs: []string{"--hidden-import", "yaml"},
			},
			want: []string{
				"--clean", "--onefile", "--windowed", "--icon", "app.ico", "--noconfirm",
				"--name", "backup", "--distpath", "out", "--workpath", "tmp", "--specpath", "spec",
				"--log-level", "WARN", "--hidden-import", "yaml", "watchdog_backup.py",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.opts.Args("watchdog_backup.py"); !slices.Equal(got, tt.want) {
				t.Errorf("Args() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestArtifactPath(t *testing.T) {
	t.Parallel()

	project := filepath.Join("/", "proj")
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{"default dist", Options{ExeSuffix: ".exe"}, filepath.Join(project, "dist", "watchdog_backup.exe")},
		{"named", Options{Name: "backup"}, filepath.Join(project, "dist", "backup")},
		{"custom dist", Options{DistDir: "out"}, filepath.Join(project, "out", "watchdog_backup")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.opts.ArtifactPath(project, "watchdog_backup.py"); got != tt.want {
				t.Errorf("ArtifactPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPackageSuccess(t *testing.T) {
	t.Parallel()

	dir := testutil.NewProject(t)
	fake := testutil.NewFakePython()
	runner := &testutil.FakeRunner{Handler: fake.Handle}

	out, err := New(runner).Package(context.Background(), testEnv(dir), dir, "watchdog_backup.py", DefaultOptions())
	if err != nil {
		t.Fatalf("Package() error: %v", err)
	}
	if out.Artifact != filepath.Join(dir, "dist", "watchdog_backup") {
		t.Errorf("Artifact = %q", out.Artifact)
	}
	if _, err := os.Stat(out.Artifact); err != nil {
		t.Errorf("artifact not written: %v", err)
	}
	if got := runner.Modules(); !slices.Equal(got, []string{"PyInstaller"}) {
		t.Errorf("modules = %q", got)
	}
}

func TestPackageFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		entry   string
		opts    func() Options
		fake    func(*testutil.FakePython)
		wantErr error
		wantRun bool
	}{
		{
			name:    "missing entry",
			entry:   "missing.py",
			opts:    DefaultOptions,
			wantErr: ErrEntryNotFound,
		},
		{
			name:  "missing icon",
			entry: "watchdog_backup.py",
			opts: func() Options {
				o := DefaultOptions()
				o.Icon = "other.ico"
				return o
			},
			wantErr: ErrIconNotFound,
		},
		{
			name:    "pyinstaller fails",
			entry:   "watchdog_backup.py",
			opts:    DefaultOptions,
			fake:    func(p *testutil.FakePython) { p.PyInstallerExit = 1 },
			wantErr: process.ErrNonZeroExit,
			wantRun: true,
		},
		{
			name:    "no artifact",
			entry:   "watchdog_backup.py",
			opts:    DefaultOptions,
			fake:    func(p *testutil.FakePython) { p.SkipArtifact = true },
			wantErr: ErrArtifactMissing,
			wantRun: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := testutil.NewProject(t)
			fake := testutil.NewFakePython()
			if tt.fake != nil {
				tt.fake(fake)
			}
			runner := &testutil.FakeRunner{Handler: fake.Handle}

			_, err := New(runner).Package(context.Background(), testEnv(dir), dir, tt.entry, tt.opts())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Package() error = %v, want %v", err, tt.wantErr)
			}
			if ran := len(runner.Invocations()) > 0; ran != tt.wantRun {
				t.Errorf("ran = %v, want %v", ran, tt.wantRun)
			}
		})
	}
}
