// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/pybundle/pybundle/internal/issue"
	"github.com/pybundle/pybundle/internal/process"
)

const (
	// AppName is the application name.
	AppName = "pybundle"
	// ConfigFileName is the name of the global config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// ProjectFileName is the per-project config file.
	ProjectFileName = "pybundle.cue"
	// EnvPrefix prefixes environment variable overrides, e.g. PYBUNDLE_PACKAGE_ICON.
	EnvPrefix = "PYBUNDLE"

	// maxConfigFileSize bounds the config files read into memory.
	maxConfigFileSize = 1 << 20
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the pybundle configuration directory using platform-specific
// conventions: Windows uses %APPDATA%, macOS uses ~/Library/Application Support,
// and Linux/others use $XDG_CONFIG_HOME (defaulting to ~/.config).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default:
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// GlobalConfigPath returns the path of the global config file under cfgDir,
// or under ConfigDir when cfgDir is empty.
func GlobalConfigPath(cfgDir string) (string, error) {
	if cfgDir == "" {
		dir, err := ConfigDir()
		if err != nil {
			return "", err
		}
		cfgDir = dir
	}
	return filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt), nil
}

// loadWithOptions performs one layered load. It keeps no package-level state.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	projectDir := opts.ProjectDir
	if projectDir == "" {
		projectDir = "."
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	var sources []string

	pyproject := filepath.Join(projectDir, PyprojectFileName)
	if fileExists(pyproject) {
		if err := loadPyprojectIntoViper(v, pyproject); err != nil {
			return nil, loadError(pyproject, err, "Check the [tool.pybundle] table against 'pybundle config show'")
		}
		sources = append(sources, pyproject)
	}

	if opts.ConfigFilePath != "" {
		// An explicit file replaces both the global and the project file.
		if !fileExists(opts.ConfigFilePath) {
			return nil, issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Check that the file exists and is readable").
				WithSuggestion("Use 'pybundle config init' to generate a configuration file").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		if err := loadCUEIntoViper(v, opts.ConfigFilePath); err != nil {
			return nil, loadError(opts.ConfigFilePath, err, "See 'pybundle config --help' for configuration options")
		}
		sources = append(sources, opts.ConfigFilePath)
	} else {
		globalPath, err := GlobalConfigPath(opts.ConfigDirPath)
		if err != nil {
			return nil, err
		}
		projectPath := filepath.Join(projectDir, ProjectFileName)
		for _, path := range []string{globalPath, projectPath} {
			if !fileExists(path) {
				continue
			}
			if err := loadCUEIntoViper(v, path); err != nil {
				return nil, loadError(path, err, "See 'pybundle config --help' for configuration options")
			}
			sources = append(sources, path)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range opts.Overrides {
		v.Set(key, value)
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		shellFieldsHook,
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Sources = sources

	if ok, errs := cfg.IsValid(); !ok {
		return nil, issue.NewErrorContext().
			WithOperation("validate configuration").
			WithSuggestion("Check PYBUNDLE_* environment variables and command-line flags").
			WithSuggestion("Use 'pybundle config show' to see the effective configuration").
			Wrap(errs[0]).
			BuildError()
	}

	return &cfg, nil
}

func loadError(path string, err error, hint string) error {
	return issue.NewErrorContext().
		WithOperation("load configuration").
		WithResource(path).
		WithSuggestion("Check that the file contains valid syntax").
		WithSuggestion("Verify the configuration values match the expected schema").
		WithSuggestion(hint).
		Wrap(err).
		BuildError()
}

// setDefaults registers every key so that AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("entry", d.Entry)
	v.SetDefault("venv", d.Venv)
	v.SetDefault("manifest", d.Manifest)
	v.SetDefault("python", d.Python)
	v.SetDefault("runtime", string(d.Runtime))
	v.SetDefault("strictness", string(d.Strictness))
	v.SetDefault("artifact_name", d.ArtifactName)
	v.SetDefault("environment.upgrade_deps", d.Environment.UpgradeDeps)
	v.SetDefault("pip.upgrade_pip", d.Pip.UpgradePip)
	v.SetDefault("pip.extra_args", d.Pip.ExtraArgs)
	v.SetDefault("package.icon", d.Package.Icon)
	v.SetDefault("package.name", d.Package.Name)
	v.SetDefault("package.clean", d.Package.Clean)
	v.SetDefault("package.onefile", d.Package.OneFile)
	v.SetDefault("package.noconfirm", d.Package.NoConfirm)
	v.SetDefault("package.windowed", d.Package.Windowed)
	v.SetDefault("package.dist_dir", d.Package.DistDir)
	v.SetDefault("package.work_dir", d.Package.WorkDir)
	v.SetDefault("package.spec_dir", d.Package.SpecDir)
	v.SetDefault("package.log_level", d.Package.LogLevel)
	v.SetDefault("package.extra_args", d.Package.ExtraArgs)
	v.SetDefault("container.engine", string(d.Container.Engine))
	v.SetDefault("container.image", d.Container.Image)
	v.SetDefault("watch.patterns", d.Watch.Patterns)
	v.SetDefault("watch.ignore", d.Watch.Ignore)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
	v.SetDefault("ui.verbose", d.UI.Verbose)
	v.SetDefault("ui.pause_on_exit", d.UI.PauseOnExit)
}

// shellFieldsHook splits a string destined for a []string field with shell
// field rules, so PYBUNDLE_PIP_EXTRA_ARGS="--pre --index-url 'a b'" keeps
// quoted words together.
func shellFieldsHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Slice || to.Elem().Kind() != reflect.String {
		return data, nil
	}
	fields, err := process.SplitArgs(reflect.ValueOf(data).String())
	if err != nil {
		return nil, err
	}
	if fields == nil {
		return []string{}, nil
	}
	return fields, nil
}

// loadCUEIntoViper parses a CUE file, validates it against the #Config schema,
// and merges its contents into Viper.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := checkFileSize(data, maxConfigFileSize, path); err != nil {
		return err
	}

	ctx := cuecontext.New()
	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		// A file opening with `package: ...` reads as a package clause.
		quoted, ok := quotePackageLabel(data)
		if !ok {
			return formatCUEError(userValue.Err(), path)
		}
		retry := ctx.CompileBytes(quoted, cue.Filename(path))
		if retry.Err() != nil {
			return formatCUEError(userValue.Err(), path)
		}
		userValue = retry
	}

	configMap, err := validateAgainstSchema(ctx, userValue, path)
	if err != nil {
		return err
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

// validateAgainstSchema unifies value with #Config and decodes the result.
// Concrete(false) because every field is optional.
func validateAgainstSchema(ctx *cue.Context, value cue.Value, source string) (map[string]any, error) {
	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return nil, fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return nil, formatCUEError(err, source)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return nil, formatCUEError(err, source)
	}
	return configMap, nil
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// WriteConfig writes cfg as CUE to path, creating parent directories. An
// existing file is only replaced when force is set.
func WriteConfig(path string, cfg *Config, force bool) error {
	if !force && fileExists(path) {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(GenerateCUE(cfg)), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateCUE generates a CUE representation of the configuration
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// pybundle configuration\n\n")

	fmt.Fprintf(&sb, "entry: %q\n", cfg.Entry)
	fmt.Fprintf(&sb, "venv: %q\n", cfg.Venv)
	fmt.Fprintf(&sb, "manifest: %q\n", cfg.Manifest)
	if cfg.Python != "" {
		fmt.Fprintf(&sb, "python: %q\n", cfg.Python)
	}
	fmt.Fprintf(&sb, "runtime: %q\n", cfg.Runtime)
	fmt.Fprintf(&sb, "strictness: %q\n", cfg.Strictness)
	if cfg.ArtifactName != "" {
		fmt.Fprintf(&sb, "artifact_name: %q\n", cfg.ArtifactName)
	}

	sb.WriteString("\nenvironment: {\n")
	fmt.Fprintf(&sb, "\tupgrade_deps: %v\n", cfg.Environment.UpgradeDeps)
	sb.WriteString("}\n")

	sb.WriteString("\npip: {\n")
	fmt.Fprintf(&sb, "\tupgrade_pip: %v\n", cfg.Pip.UpgradePip)
	writeCUEList(&sb, "extra_args", cfg.Pip.ExtraArgs)
	sb.WriteString("}\n")

	sb.WriteString("\n\"package\": {\n")
	fmt.Fprintf(&sb, "\ticon: %q\n", cfg.Package.Icon)
	if cfg.Package.Name != "" {
		fmt.Fprintf(&sb, "\tname: %q\n", cfg.Package.Name)
	}
	fmt.Fprintf(&sb, "\tclean: %v\n", cfg.Package.Clean)
	fmt.Fprintf(&sb, "\tonefile: %v\n", cfg.Package.OneFile)
	fmt.Fprintf(&sb, "\tnoconfirm: %v\n", cfg.Package.NoConfirm)
	fmt.Fprintf(&sb, "\twindowed: %v\n", cfg.Package.Windowed)
	for _, kv := range [][2]string{
		{"dist_dir", cfg.Package.DistDir},
		{"work_dir", cfg.Package.WorkDir},
		{"spec_dir", cfg.Package.SpecDir},
		{"log_level", cfg.Package.LogLevel},
	} {
		if kv[1] != "" {
			fmt.Fprintf(&sb, "\t%s: %q\n", kv[0], kv[1])
		}
	}
	writeCUEList(&sb, "extra_args", cfg.Package.ExtraArgs)
	sb.WriteString("}\n")

	sb.WriteString("\ncontainer: {\n")
	fmt.Fprintf(&sb, "\tengine: %q\n", cfg.Container.Engine)
	fmt.Fprintf(&sb, "\timage: %q\n", cfg.Container.Image)
	sb.WriteString("}\n")

	sb.WriteString("\nwatch: {\n")
	writeCUEList(&sb, "patterns", cfg.Watch.Patterns)
	writeCUEList(&sb, "ignore", cfg.Watch.Ignore)
	fmt.Fprintf(&sb, "\tdebounce: %q\n", cfg.Watch.Debounce.String())
	sb.WriteString("}\n")

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\tverbose: %v\n", cfg.UI.Verbose)
	fmt.Fprintf(&sb, "\tpause_on_exit: %v\n", cfg.UI.PauseOnExit)
	sb.WriteString("}\n")

	return sb.String()
}

func writeCUEList(sb *strings.Builder, key string, items []string) {
	if len(items) == 0 {
		return
	}
	quoted := make([]string, 0, len(items))
	for _, item := range items {
		quoted = append(quoted, fmt.Sprintf("%q", item))
	}
	fmt.Fprintf(sb, "\t%s: [%s]\n", key, strings.Join(quoted, ", "))
}
