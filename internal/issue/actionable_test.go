// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestActionableError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      *ActionableError
		expected string
	}{
		{
			name:     "operation only",
			err:      &ActionableError{Operation: "create environment"},
			expected: "failed to create environment",
		},
		{
			name:     "operation with resource",
			err:      &ActionableError{Operation: "create environment", Resource: "venv"},
			expected: "failed to create environment: venv",
		},
		{
			name: "full context",
			err: &ActionableError{
				Operation: "install dependencies",
				Resource:  "requirements.txt",
				Cause:     errors.New("exit status 1"),
			},
			expected: "failed to install dependencies: requirements.txt: exit status 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestActionableError_ErrorsIs(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("sentinel")
	err := NewErrorContext().
		WithOperation("install dependencies").
		WithResource("requirements.txt").
		Wrap(fmt.Errorf("pip: %w", sentinel)).
		BuildError()

	if !errors.Is(err, sentinel) {
		t.Error("errors.Is should find the sentinel through the cause chain")
	}

	var ae *ActionableError
	if !errors.As(fmt.Errorf("outer: %w", err), &ae) {
		t.Fatal("errors.As should find the ActionableError")
	}
	if ae.Resource != "requirements.txt" {
		t.Errorf("Resource = %q", ae.Resource)
	}
}

func TestActionableError_Format(t *testing.T) {
	t.Parallel()

	inner := errors.New("permission denied")
	err := NewErrorContext().
		WithOperation("create environment").
		WithResource("venv").
		WithSuggestion("Check write permissions").
		WithSuggestion("Run 'pybundle env clean'").
		WithSuggestion("Retry").
		Wrap(fmt.Errorf("python -m venv: %w", inner)).
		Build()

	if !err.HasSuggestions() {
		t.Fatal("expected suggestions")
	}

	short := err.Format(false)
	if !strings.Contains(short, "• Check write permissions") || !strings.Contains(short, "• Retry") {
		t.Errorf("Format(false) missing suggestions:\n%s", short)
	}
	if strings.Contains(short, "Error chain:") {
		t.Errorf("Format(false) should not include the chain:\n%s", short)
	}

	long := err.Format(true)
	if !strings.Contains(long, "Error chain:") || !strings.Contains(long, "2. permission denied") {
		t.Errorf("Format(true) missing chain:\n%s", long)
	}
}

func TestErrorContext_BuildWithoutOperation(t *testing.T) {
	t.Parallel()

	ctx := NewErrorContext().WithResource("x")
	if ctx.Build() != nil {
		t.Error("Build() without operation should be nil")
	}
	if err := ctx.BuildError(); err != nil {
		t.Errorf("BuildError() = %v, want untyped nil", err)
	}
}
