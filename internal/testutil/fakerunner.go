// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"context"
	"sync"

	"github.com/pybundle/pybundle/internal/process"
)

// FakeRunner records invocations and answers them with Handler. A nil Handler
// makes every invocation succeed.
type FakeRunner struct {
	Handler func(ctx context.Context, inv process.Invocation) *process.Result

	mu    sync.Mutex
	calls []process.Invocation
}

// Name returns "fake".
func (f *FakeRunner) Name() string { return "fake" }

// Run records inv and delegates to Handler.
func (f *FakeRunner) Run(ctx context.Context, inv process.Invocation) *process.Result {
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	f.mu.Unlock()

	if f.Handler == nil {
		return process.NewSuccessResult()
	}
	return f.Handler(ctx, inv)
}

// Invocations returns a copy of the recorded invocations.
func (f *FakeRunner) Invocations() []process.Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]process.Invocation(nil), f.calls...)
}

// CommandLines returns the recorded invocations rendered as command lines.
func (f *FakeRunner) CommandLines() []string {
	calls := f.Invocations()
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.String())
	}
	return out
}

// Modules returns the `-m <module>` name of each recorded invocation, or ""
// for invocations that do not run a module.
func (f *FakeRunner) Modules() []string {
	calls := f.Invocations()
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, moduleOf(c.Args))
	}
	return out
}

func moduleOf(args []string) string {
	for i, a := range args {
		if a == "-m" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}
