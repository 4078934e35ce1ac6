// SPDX-License-Identifier: MPL-2.0

package process

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestFormatCommandLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		argv []string
		want string
	}{
		{"plain words", []string{"python", "-m", "pip"}, "python -m pip"},
		{"space is quoted", []string{"python", "my app.py"}, "python 'my app.py'"},
		{"empty word", []string{"tool", ""}, "tool ''"},
		{"dollar is quoted", []string{"echo", "$HOME"}, "echo '$HOME'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := FormatCommandLine(tt.argv); got != tt.want {
				t.Errorf("FormatCommandLine(%q) = %q, want %q", tt.argv, got, tt.want)
			}
		})
	}
}

func TestSplitArgs(t *testing.T) {
	t.Setenv("PYBUNDLE_TEST_INDEX", "https://pypi.example/simple")

	got, err := SplitArgs(`--index-url "$PYBUNDLE_TEST_INDEX" --pre 'two words'`)
	if err != nil {
		t.Fatalf("SplitArgs() error: %v", err)
	}
	want := []string{"--index-url", "https://pypi.example/simple", "--pre", "two words"}
	if !slices.Equal(got, want) {
		t.Errorf("SplitArgs() = %q, want %q", got, want)
	}

	empty, err := SplitArgs("   ")
	if err != nil || empty != nil {
		t.Errorf("SplitArgs(blank) = %q, %v; want nil, nil", empty, err)
	}

	if _, err := SplitArgs(`"unterminated`); err == nil {
		t.Error("SplitArgs() should reject unterminated quotes")
	}
}

func TestMergeEnv(t *testing.T) {
	t.Parallel()

	base := []string{"PATH=/usr/bin", "HOME=/home/u", "PYTHONHOME=/opt/py", "MALFORMED"}
	got := MergeEnv(base, map[string]string{
		"PATH":        "/venv/bin:/usr/bin",
		"VIRTUAL_ENV": "/venv",
	}, []string{"PYTHONHOME"})

	want := []string{"PATH=/venv/bin:/usr/bin", "HOME=/home/u", "MALFORMED", "VIRTUAL_ENV=/venv"}
	if !slices.Equal(got, want) {
		t.Errorf("MergeEnv() = %q, want %q", got, want)
	}
}

func TestTailBuffer(t *testing.T) {
	t.Parallel()

	tb := newTailBuffer(8)
	_, _ = tb.Write([]byte("hello "))
	if got := tb.String(); got != "hello " {
		t.Fatalf("String() = %q", got)
	}
	_, _ = tb.Write([]byte("world"))
	if got := tb.String(); got != "...\nlo world" {
		t.Errorf("String() = %q, want %q", got, "...\nlo world")
	}
	_, _ = tb.Write([]byte("0123456789"))
	if got := tb.String(); got != "...\n23456789" {
		t.Errorf("String() = %q, want %q", got, "...\n23456789")
	}
}

func TestResultErr(t *testing.T) {
	t.Parallel()

	inv := Invocation{Program: "python", Args: []string{"-m", "pip"}}

	if err := NewSuccessResult().Err(inv); err != nil {
		t.Errorf("success Err() = %v", err)
	}

	err := (&Result{ExitCode: 2, ErrOutput: "line one\nERROR: no such package\n"}).Err(inv)
	if !errors.Is(err, ErrNonZeroExit) {
		t.Fatalf("Err() = %v, want ErrNonZeroExit", err)
	}
	if !strings.Contains(err.Error(), "exit status 2: ERROR: no such package") {
		t.Errorf("Err() message = %q", err.Error())
	}

	infra := errors.New("boom")
	if err := NewErrorResult(1, infra).Err(inv); !errors.Is(err, infra) {
		t.Errorf("Err() = %v, want wrapped infra error", err)
	}
}

func TestHostRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a POSIX shell")
	}
	t.Parallel()

	r := NewHostRunner()

	t.Run("captures output and exit code", func(t *testing.T) {
		t.Parallel()
		var live bytes.Buffer
		res := r.Run(context.Background(), Invocation{
			Program: "sh",
			Args:    []string{"-c", `echo "out:$PYBUNDLE_PROBE"; echo err >&2; exit 3`},
			Env:     map[string]string{"PYBUNDLE_PROBE": "ok"},
			Stdout:  &live,
		})
		if res.Error != nil {
			t.Fatalf("unexpected infra error: %v", res.Error)
		}
		if res.ExitCode != 3 {
			t.Errorf("ExitCode = %d, want 3", res.ExitCode)
		}
		if strings.TrimSpace(res.Output) != "out:ok" || strings.TrimSpace(live.String()) != "out:ok" {
			t.Errorf("Output = %q, live = %q", res.Output, live.String())
		}
		if strings.TrimSpace(res.ErrOutput) != "err" {
			t.Errorf("ErrOutput = %q", res.ErrOutput)
		}
	})

	t.Run("missing tool", func(t *testing.T) {
		t.Parallel()
		res := r.Run(context.Background(), Invocation{Program: "pybundle-definitely-missing-tool"})
		if res.ExitCode != 127 || res.Error == nil {
			t.Errorf("Result = %+v, want 127 with error", res)
		}
	})

	t.Run("cancellation", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		res := r.Run(ctx, Invocation{Program: "sleep", Args: []string{"5"}})
		if !errors.Is(res.Error, context.DeadlineExceeded) {
			t.Errorf("Error = %v, want deadline exceeded", res.Error)
		}
		if res.ExitCode != 130 {
			t.Errorf("ExitCode = %d, want 130", res.ExitCode)
		}
	})
}
