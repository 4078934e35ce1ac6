// SPDX-License-Identifier: MPL-2.0

package venv

import (
	"github.com/pybundle/pybundle/internal/process"
)

// Environment is a resolved isolated environment. It is a plain value: holding
// one does not change anything about the current process.
type Environment struct {
	// Dir is the absolute environment root.
	Dir string
	// BinDir is the absolute executables directory.
	BinDir string
	// Python is the absolute interpreter path.
	Python string
	// Layout is the platform layout the environment was resolved with.
	Layout Layout
	// BasePath is the PATH value the environment's bin dir is prepended to.
	BasePath string
}

// Env returns the overlay that makes a child process behave as if the
// environment had been activated in its shell.
func (e *Environment) Env() map[string]string {
	path := e.BinDir
	if e.BasePath != "" {
		path += e.Layout.PathListSeparator + e.BasePath
	}
	return map[string]string{
		"VIRTUAL_ENV": e.Dir,
		"PATH":        path,
	}
}

// Unset lists variables that must not leak into the environment's processes.
func (e *Environment) Unset() []string {
	return []string{"PYTHONHOME", "__PYVENV_LAUNCHER__"}
}

// Command builds an invocation of the environment's interpreter.
func (e *Environment) Command(dir string, args ...string) process.Invocation {
	return process.Invocation{
		Program: e.Python,
		Args:    args,
		Dir:     dir,
		Env:     e.Env(),
		Unset:   e.Unset(),
	}
}

// Module builds `python -m <module> args...` inside the environment.
func (e *Environment) Module(dir, module string, args ...string) process.Invocation {
	return e.Command(dir, append([]string{"-m", module}, args...)...)
}
