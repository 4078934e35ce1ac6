// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// RuntimeNative runs the tools on the host.
	RuntimeNative RuntimeMode = "native"
	// RuntimeContainer runs the tools inside a docker or podman container.
	RuntimeContainer RuntimeMode = "container"

	// StrictnessStrict stops at the first failing step.
	StrictnessStrict Strictness = "strict"
	// StrictnessLenient continues past install, package and staging failures.
	StrictnessLenient Strictness = "lenient"

	// ContainerEngineAuto picks podman, then docker.
	ContainerEngineAuto ContainerEngine = "auto"
	// ContainerEnginePodman uses Podman.
	ContainerEnginePodman ContainerEngine = "podman"
	// ContainerEngineDocker uses Docker.
	ContainerEngineDocker ContainerEngine = "docker"
)

var (
	// ErrInvalidRuntimeMode is returned when a RuntimeMode value is not recognized.
	ErrInvalidRuntimeMode = errors.New("invalid runtime mode")
	// ErrInvalidStrictness is returned when a Strictness value is not recognized.
	ErrInvalidStrictness = errors.New("invalid strictness")
	// ErrInvalidContainerEngine is returned when a ContainerEngine value is not recognized.
	ErrInvalidContainerEngine = errors.New("invalid container engine")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// RuntimeMode selects where build tools run.
	RuntimeMode string

	// Strictness selects how step failures are handled.
	Strictness string

	// ContainerEngine selects the container CLI.
	ContainerEngine string

	// InvalidValueError reports an unrecognized enum value. It wraps the
	// sentinel of the enum.
	InvalidValueError struct {
		Field    string
		Value    string
		Allowed  []string
		sentinel error
	}

	// InvalidConfigError collects field-level validation errors. It wraps
	// ErrInvalidConfig for errors.Is() compatibility.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the build configuration.
	Config struct {
		// Entry is the script packaged into the executable.
		Entry string `json:"entry" yaml:"entry" mapstructure:"entry"`
		// Venv is the environment directory.
		Venv string `json:"venv" yaml:"venv" mapstructure:"venv"`
		// Manifest is the dependency manifest.
		Manifest string `json:"manifest" yaml:"manifest" mapstructure:"manifest"`
		// Python is the base interpreter command line. Empty auto-detects.
		Python string `json:"python,omitempty" yaml:"python,omitempty" mapstructure:"python"`
		// Runtime selects native or container execution.
		Runtime RuntimeMode `json:"runtime" yaml:"runtime" mapstructure:"runtime"`
		// Strictness selects strict or lenient failure handling.
		Strictness Strictness `json:"strictness" yaml:"strictness" mapstructure:"strictness"`
		// ArtifactName is the staged executable's base name. Empty uses the
		// packaged name.
		ArtifactName string `json:"artifact_name,omitempty" yaml:"artifact_name,omitempty" mapstructure:"artifact_name"`

		Environment EnvironmentConfig `json:"environment" yaml:"environment" mapstructure:"environment"`
		Pip         PipConfig         `json:"pip" yaml:"pip" mapstructure:"pip"`
		Package     PackageConfig     `json:"package" yaml:"package" mapstructure:"package"`
		Container   ContainerConfig   `json:"container" yaml:"container" mapstructure:"container"`
		Watch       WatchConfig       `json:"watch" yaml:"watch" mapstructure:"watch"`
		UI          UIConfig          `json:"ui" yaml:"ui" mapstructure:"ui"`

		// Sources lists the files that contributed to this configuration, in
		// load order.
		Sources []string `json:"-" yaml:"-" mapstructure:"-"`
	}

	// EnvironmentConfig configures environment creation.
	EnvironmentConfig struct {
		UpgradeDeps bool `json:"upgrade_deps" yaml:"upgrade_deps" mapstructure:"upgrade_deps"`
	}

	// PipConfig configures dependency installation.
	PipConfig struct {
		UpgradePip bool     `json:"upgrade_pip" yaml:"upgrade_pip" mapstructure:"upgrade_pip"`
		ExtraArgs  []string `json:"extra_args,omitempty" yaml:"extra_args,omitempty" mapstructure:"extra_args"`
	}

	// PackageConfig configures PyInstaller.
	PackageConfig struct {
		Icon      string   `json:"icon" yaml:"icon" mapstructure:"icon"`
		Name      string   `json:"name,omitempty" yaml:"name,omitempty" mapstructure:"name"`
		Clean     bool     `json:"clean" yaml:"clean" mapstructure:"clean"`
		OneFile   bool     `json:"onefile" yaml:"onefile" mapstructure:"onefile"`
		NoConfirm bool     `json:"noconfirm" yaml:"noconfirm" mapstructure:"noconfirm"`
		Windowed  bool     `json:"windowed" yaml:"windowed" mapstructure:"windowed"`
		DistDir   string   `json:"dist_dir,omitempty" yaml:"dist_dir,omitempty" mapstructure:"dist_dir"`
		WorkDir   string   `json:"work_dir,omitempty" yaml:"work_dir,omitempty" mapstructure:"work_dir"`
		SpecDir   string   `json:"spec_dir,omitempty" yaml:"spec_dir,omitempty" mapstructure:"spec_dir"`
		LogLevel  string   `json:"log_level,omitempty" yaml:"log_level,omitempty" mapstructure:"log_level"`
		ExtraArgs []string `json:"extra_args,omitempty" yaml:"extra_args,omitempty" mapstructure:"extra_args"`
	}

	// ContainerConfig configures the container runtime.
	ContainerConfig struct {
		Engine ContainerEngine `json:"engine" yaml:"engine" mapstructure:"engine"`
		Image  string          `json:"image" yaml:"image" mapstructure:"image"`
	}

	// WatchConfig configures `pybundle watch`.
	WatchConfig struct {
		Patterns []string      `json:"patterns" yaml:"patterns" mapstructure:"patterns"`
		Ignore   []string      `json:"ignore" yaml:"ignore" mapstructure:"ignore"`
		Debounce time.Duration `json:"debounce" yaml:"debounce" mapstructure:"debounce"`
	}

	// UIConfig configures terminal output.
	UIConfig struct {
		Verbose     bool `json:"verbose" yaml:"verbose" mapstructure:"verbose"`
		PauseOnExit bool `json:"pause_on_exit" yaml:"pause_on_exit" mapstructure:"pause_on_exit"`
	}
)

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Entry:      "watchdog_backup.py",
		Venv:       "venv",
		Manifest:   "requirements.txt",
		Runtime:    RuntimeNative,
		Strictness: StrictnessStrict,
		Package: PackageConfig{
			Icon:      "app.ico",
			Clean:     true,
			OneFile:   true,
			NoConfirm: true,
		},
		Container: ContainerConfig{
			Engine: ContainerEngineAuto,
			Image:  "python:3.12-slim",
		},
		Watch: WatchConfig{
			Patterns: []string{"**/*.py"},
			Ignore:   []string{".git/**", "**/__pycache__/**"},
			Debounce: 500 * time.Millisecond,
		},
	}
}

// IsValid reports whether m is a known runtime mode.
func (m RuntimeMode) IsValid() (bool, []error) {
	switch m {
	case RuntimeNative, RuntimeContainer:
		return true, nil
	}
	return false, []error{newInvalidValue("runtime", string(m), ErrInvalidRuntimeMode, RuntimeNative, RuntimeContainer)}
}

// IsValid reports whether s is a known strictness.
func (s Strictness) IsValid() (bool, []error) {
	switch s {
	case StrictnessStrict, StrictnessLenient:
		return true, nil
	}
	return false, []error{newInvalidValue("strictness", string(s), ErrInvalidStrictness, StrictnessStrict, StrictnessLenient)}
}

// IsValid reports whether e is a known container engine.
func (e ContainerEngine) IsValid() (bool, []error) {
	switch e {
	case ContainerEngineAuto, ContainerEnginePodman, ContainerEngineDocker:
		return true, nil
	}
	return false, []error{newInvalidValue("container.engine", string(e), ErrInvalidContainerEngine,
		ContainerEngineAuto, ContainerEnginePodman, ContainerEngineDocker)}
}

// IsValid checks the fields that viper can set from environment variables or
// flags, which bypass the CUE schema.
func (c *Config) IsValid() (bool, []error) {
	var errs []error
	if _, fieldErrs := c.Runtime.IsValid(); len(fieldErrs) > 0 {
		errs = append(errs, fieldErrs...)
	}
	if _, fieldErrs := c.Strictness.IsValid(); len(fieldErrs) > 0 {
		errs = append(errs, fieldErrs...)
	}
	if _, fieldErrs := c.Container.Engine.IsValid(); len(fieldErrs) > 0 {
		errs = append(errs, fieldErrs...)
	}
	for _, f := range []struct{ name, value string }{
		{"entry", c.Entry},
		{"venv", c.Venv},
		{"manifest", c.Manifest},
	} {
		if strings.TrimSpace(f.value) == "" {
			errs = append(errs, fmt.Errorf("%s: must not be empty", f.name))
		}
	}
	if c.Watch.Debounce < 0 {
		errs = append(errs, fmt.Errorf("watch.debounce: must not be negative, got %s", c.Watch.Debounce))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

func newInvalidValue[T ~string](field, value string, sentinel error, allowed ...T) *InvalidValueError {
	names := make([]string, 0, len(allowed))
	for _, a := range allowed {
		names = append(names, string(a))
	}
	return &InvalidValueError{Field: field, Value: value, Allowed: names, sentinel: sentinel}
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("%s: %q is not one of %s", e.Field, e.Value, strings.Join(e.Allowed, ", "))
}

// Unwrap returns the enum sentinel.
func (e *InvalidValueError) Unwrap() error { return e.sentinel }

func (e *InvalidConfigError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, err := range e.FieldErrors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig plus the field errors.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}
