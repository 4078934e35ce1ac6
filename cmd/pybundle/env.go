// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pybundle/pybundle/internal/build"
	"github.com/pybundle/pybundle/internal/buildlock"
	"github.com/pybundle/pybundle/internal/issue"
)

// envKeys maps env flags to configuration keys.
var envKeys = map[string]string{
	"venv":    "venv",
	"python":  "python",
	"runtime": "runtime",
}

func newEnvCommand(app *App, root *rootFlagValues) *cobra.Command {
	envCmd := &cobra.Command{
		Use:   "env",
		Short: "Manage the project's virtual environment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	var (
		venvDir, python, runtimeMode string
		wait                         bool
	)
	pf := envCmd.PersistentFlags()
	pf.StringVar(&venvDir, "venv", "", "virtual environment directory")
	pf.StringVar(&python, "python", "", "base interpreter used to create the environment")
	pf.StringVar(&runtimeMode, "runtime", "", "where tools run: native or container")
	pf.BoolVar(&wait, "wait", false, "wait for a running build of the same project instead of failing")

	envCmd.AddCommand(
		&cobra.Command{
			Use:   "ensure",
			Short: "Create the virtual environment unless it exists",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return ensureEnv(cmd, app, root, wait)
			},
		},
		&cobra.Command{
			Use:   "info",
			Short: "Show the virtual environment",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return envInfo(cmd, app, root)
			},
		},
		&cobra.Command{
			Use:   "clean",
			Short: "Remove the virtual environment",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return cleanEnv(cmd, app, root, wait)
			},
		},
	)
	return envCmd
}

func envToolchain(cmd *cobra.Command, app *App, root *rootFlagValues) (*toolchain, error) {
	ctx := cmd.Context()
	cfg, projectDir, err := app.loadConfig(ctx, root, overrides(cmd, envKeys))
	if err != nil {
		return nil, configFailure(cmd, app, err, root.verbose)
	}
	tc, err := newToolchain(ctx, cfg, projectDir, liveOutput(app, cfg))
	if err != nil {
		id, code := toolchainFailure(err)
		return nil, fail(cmd, app, err, id, code, cfg.UI.Verbose)
	}
	return tc, nil
}

// lockProject takes the build lock so the environment is never changed under
// a running build.
func lockProject(cmd *cobra.Command, app *App, tc *toolchain, wait bool) (*buildlock.Lock, error) {
	lock, err := buildlock.Acquire(cmd.Context(), tc.projectDir, wait)
	if err == nil {
		return lock, nil
	}
	if errors.Is(err, buildlock.ErrLocked) {
		err = fmt.Errorf("%w: %w", build.ErrBuildLocked, err)
	}
	return nil, fail(cmd, app, err, build.IssueFor(err), build.ExitCodeFor(err), tc.cfg.UI.Verbose)
}

func ensureEnv(cmd *cobra.Command, app *App, root *rootFlagValues, wait bool) error {
	tc, err := envToolchain(cmd, app, root)
	if err != nil {
		return err
	}
	lock, err := lockProject(cmd, app, tc, wait)
	if err != nil {
		return err
	}
	defer lock.Release()

	res, err := tc.envs.Ensure(cmd.Context(), tc.venvDir())
	if err != nil {
		id := build.IssueFor(&build.StepError{Step: build.StepEnsureEnvironment, Kind: build.ErrEnvironmentCreation, Err: err})
		return fail(cmd, app, err, id, build.ExitEnvironmentCreation, tc.cfg.UI.Verbose)
	}
	if _, err := tc.envs.Resolve(res.Dir); err != nil {
		return fail(cmd, app, err, issue.EnvironmentActivationFailedId, build.ExitEnvironmentActivation, tc.cfg.UI.Verbose)
	}

	if res.Created {
		fmt.Fprintf(app.stdout, "%s Created environment at %s\n", SuccessStyle.Render("✓"), res.Dir)
	} else {
		fmt.Fprintf(app.stdout, "%s Environment already present at %s\n", SuccessStyle.Render("✓"), res.Dir)
	}
	return nil
}

func envInfo(cmd *cobra.Command, app *App, root *rootFlagValues) error {
	tc, err := envToolchain(cmd, app, root)
	if err != nil {
		return err
	}

	env, err := tc.envs.Resolve(tc.venvDir())
	if err != nil {
		return fail(cmd, app, err, issue.EnvironmentActivationFailedId, build.ExitEnvironmentActivation, tc.cfg.UI.Verbose)
	}

	inv := env.Command(tc.projectDir, "--version")
	res := tc.runner.Run(cmd.Context(), inv)
	version := strings.TrimSpace(res.Output + res.ErrOutput)
	if err := res.Err(inv); err != nil {
		version = SubtitleStyle.Render("(unknown: " + err.Error() + ")")
	}

	fmt.Fprintln(app.stdout, TitleStyle.Render("Virtual environment"))
	fmt.Fprintf(app.stdout, "%s: %s\n", CmdStyle.Render("dir"), env.Dir)
	fmt.Fprintf(app.stdout, "%s: %s\n", CmdStyle.Render("python"), env.Python)
	fmt.Fprintf(app.stdout, "%s: %s\n", CmdStyle.Render("version"), version)
	fmt.Fprintf(app.stdout, "%s: %s\n", CmdStyle.Render("runtime"), tc.runner.Name())
	return nil
}

func cleanEnv(cmd *cobra.Command, app *App, root *rootFlagValues, wait bool) error {
	tc, err := envToolchain(cmd, app, root)
	if err != nil {
		return err
	}
	lock, err := lockProject(cmd, app, tc, wait)
	if err != nil {
		return err
	}
	defer lock.Release()

	removed, err := tc.envs.Clean(tc.venvDir())
	if err != nil {
		return fail(cmd, app, err, 0, build.ExitGeneric, tc.cfg.UI.Verbose)
	}
	if removed {
		fmt.Fprintf(app.stdout, "%s Removed %s\n", SuccessStyle.Render("✓"), tc.venvDir())
	} else {
		fmt.Fprintf(app.stdout, "%s No environment at %s\n", SubtitleStyle.Render("-"), tc.venvDir())
	}
	return nil
}
