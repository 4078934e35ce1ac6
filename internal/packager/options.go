// SPDX-License-Identifier: MPL-2.0

package packager

import (
	"path/filepath"
	"strings"
)

// Options are the PyInstaller settings of one packaging run. Paths are
// relative to the project directory unless absolute.
type Options struct {
	// Clean removes PyInstaller's cache and temporary files before building.
	Clean bool
	// OneFile produces a single self-contained executable.
	OneFile bool
	// Windowed suppresses the console window on Windows and macOS.
	Windowed bool
	// NoConfirm overwrites the output directory without asking.
	NoConfirm bool
	// Icon is embedded into the executable. Empty omits --icon.
	Icon string
	// Name overrides the artifact base name. Empty derives it from the entry script.
	Name string
	// DistDir, WorkDir and SpecDir are passed as --distpath, --workpath and
	// --specpath when set.
	DistDir string
	WorkDir string
	SpecDir string
	// LogLevel is passed as --log-level when set.
	LogLevel string
	// ExtraArgs are inserted before the entry script.
	ExtraArgs []string
	// ExeSuffix is the executable suffix of the target platform.
	ExeSuffix string
}

// DefaultOptions returns the settings of a classic one-file build:
// --clean --onefile --icon app.ico --noconfirm.
func DefaultOptions() Options {
	return Options{
		Clean:     true,
		OneFile:   true,
		NoConfirm: true,
		Icon:      "app.ico",
	}
}

// Args returns the PyInstaller arguments for entry, in a fixed order.
func (o Options) Args(entry string) []string {
	var args []string
	if o.Clean {
		args = append(args, "--clean")
	}
	if o.OneFile {
		args = append(args, "--onefile")
	}
	if o.Windowed {
		args = append(args, "--windowed")
	}
	if o.Icon != "" {
		args = append(args, "--icon", o.Icon)
	}
	if o.NoConfirm {
		args = append(args, "--noconfirm")
	}
	if o.Name != "" {
		args = append(args, "--name", o.Name)
	}
	if o.DistDir != "" {
		args = append(args, "--distpath", o.DistDir)
	}
	if o.WorkDir != "" {
		args = append(args, "--workpath", o.WorkDir)
	}
	if o.SpecDir != "" {
		args = append(args, "--specpath", o.SpecDir)
	}
	if o.LogLevel != "" {
		args = append(args, "--log-level", o.LogLevel)
	}
	args = append(args, o.ExtraArgs...)
	return append(args, entry)
}

// BaseName returns the artifact name without suffix.
func (o Options) BaseName(entry string) string {
	if o.Name != "" {
		return o.Name
	}
	base := filepath.Base(entry)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ArtifactPath returns where PyInstaller writes the one-file executable.
func (o Options) ArtifactPath(projectDir, entry string) string {
	dist := o.DistDir
	if dist == "" {
		dist = "dist"
	}
	if !filepath.IsAbs(dist) {
		dist = filepath.Join(projectDir, dist)
	}
	return filepath.Join(dist, o.BaseName(entry)+o.ExeSuffix)
}
