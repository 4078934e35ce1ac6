// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pybundle/pybundle/internal/build"
	"github.com/pybundle/pybundle/internal/config"
)

// newConfigCommand creates the `pybundle config` command tree.
func newConfigCommand(app *App, root *rootFlagValues) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage pybundle configuration",
		Long: `Manage pybundle configuration.

Settings are layered, later sources winning:
  1. built-in defaults
  2. [tool.pybundle] in pyproject.toml
  3. the global config file (see 'pybundle config path')
  4. pybundle.cue in the project directory
  5. PYBUNDLE_* environment variables (e.g. PYBUNDLE_PACKAGE_ICON)
  6. command-line flags`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return showConfig(cmd, app, root)
		},
	})

	var global, force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the defaults",
		Long: `Write a config file with the built-in defaults.

The file is written to pybundle.cue in the project directory, or to the
global config file with --global. An existing file is kept unless --force
is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(cmd, app, root, global, force)
		},
	}
	initCmd.Flags().BoolVar(&global, "global", false, "write the global config file")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cfgCmd.AddCommand(initCmd)

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return showConfigPath(app, root)
		},
	})

	return cfgCmd
}

func showConfig(cmd *cobra.Command, app *App, root *rootFlagValues) error {
	cfg, _, err := app.loadConfig(cmd.Context(), root, nil)
	if err != nil {
		return configFailure(cmd, app, err, root.verbose)
	}

	fmt.Fprintln(app.stdout, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(app.stdout)
	if len(cfg.Sources) == 0 {
		fmt.Fprintf(app.stdout, "%s: %s\n", CmdStyle.Render("sources"), SubtitleStyle.Render("(using defaults)"))
	} else {
		fmt.Fprintf(app.stdout, "%s:\n", CmdStyle.Render("sources"))
		for _, src := range cfg.Sources {
			fmt.Fprintf(app.stdout, "  - %s\n", src)
		}
	}
	fmt.Fprintln(app.stdout)

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}
	_, err = app.stdout.Write(out)
	return err
}

func initConfig(cmd *cobra.Command, app *App, root *rootFlagValues, global, force bool) error {
	path, err := initTarget(root, global)
	if err != nil {
		return err
	}
	if err := config.WriteConfig(path, config.DefaultConfig(), force); err != nil {
		return fail(cmd, app, err, 0, build.ExitGeneric, root.verbose)
	}
	fmt.Fprintf(app.stdout, "%s Created %s\n", SuccessStyle.Render("✓"), path)
	return nil
}

func initTarget(root *rootFlagValues, global bool) (string, error) {
	if global {
		return config.GlobalConfigPath("")
	}
	dir := root.projectDir
	if dir == "" {
		dir = "."
	}
	return filepath.Abs(filepath.Join(dir, config.ProjectFileName))
}

func showConfigPath(app *App, root *rootFlagValues) error {
	global, err := config.GlobalConfigPath("")
	if err != nil {
		return err
	}
	project, err := initTarget(root, false)
	if err != nil {
		return err
	}

	fmt.Fprintf(app.stdout, "Global config file: %s\n", global)
	fmt.Fprintf(app.stdout, "Project config file: %s\n", project)
	if root.configPath != "" {
		fmt.Fprintf(app.stdout, "Explicit config file: %s\n", root.configPath)
	}
	return nil
}
