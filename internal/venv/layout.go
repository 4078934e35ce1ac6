// SPDX-License-Identifier: MPL-2.0

package venv

import (
	"os/exec"
	"runtime"
)

// ConfigFileName marks a directory as a virtual environment.
const ConfigFileName = "pyvenv.cfg"

// Layout describes where an environment keeps its executables.
type Layout struct {
	// BinDir is the executables directory relative to the environment root.
	BinDir string
	// Python is the interpreter file name inside BinDir.
	Python string
	// PathListSeparator joins PATH entries on the target platform.
	PathListSeparator string
	// ExeSuffix is appended to executable names on the target platform.
	ExeSuffix string
}

// LayoutFor returns the layout created by `python -m venv` on goos.
func LayoutFor(goos string) Layout {
	if goos == "windows" {
		return Layout{BinDir: "Scripts", Python: "python.exe", PathListSeparator: ";", ExeSuffix: ".exe"}
	}
	return Layout{BinDir: "bin", Python: "python", PathListSeparator: ":"}
}

// HostLayout returns the layout for the running platform.
func HostLayout() Layout {
	return LayoutFor(runtime.GOOS)
}

// DefaultInterpreter picks the base interpreter used to create environments:
// the `py -3` launcher or python on Windows, python3 or python elsewhere.
// lookPath may be nil to use exec.LookPath.
func DefaultInterpreter(goos string, lookPath func(string) (string, error)) []string {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	candidates := [][]string{{"python3"}, {"python"}}
	if goos == "windows" {
		candidates = [][]string{{"py", "-3"}, {"python"}}
	}
	for _, c := range candidates {
		if _, err := lookPath(c[0]); err == nil {
			return c
		}
	}
	return candidates[len(candidates)-1]
}
