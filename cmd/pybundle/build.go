// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pybundle/pybundle/internal/build"
	"github.com/pybundle/pybundle/internal/config"
)

// buildFlagValues holds the flags of `pybundle build`.
type buildFlagValues struct {
	dryRun     bool
	strictness string
	entry      string
	venv       string
	manifest   string
	icon       string
	name       string
	python     string
	runtime    string
	report     string
	wait       bool
	pause      bool
}

// flagKeys maps build flags to the configuration keys they override.
var flagKeys = map[string]string{
	"strictness": "strictness",
	"entry":      "entry",
	"venv":       "venv",
	"manifest":   "manifest",
	"icon":       "package.icon",
	"name":       "package.name",
	"python":     "python",
	"runtime":    "runtime",
	"pause":      "ui.pause_on_exit",
}

func newBuildCommand(app *App, root *rootFlagValues) *cobra.Command {
	flags := &buildFlagValues{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the standalone executable",
		Long: `Build the standalone executable.

The build runs these steps in order:
  1. create the virtual environment unless it exists
  2. resolve the environment's interpreter
  3. pip install -r <manifest>
  4. pyinstaller --clean --onefile --icon <icon> --noconfirm <entry>
  5. release the environment
  6. copy dist/<name> into the project directory

With --strictness strict (the default) the first failing step stops the
build. With lenient, failures of steps 3, 4 and 6 are reported as warnings
and the build continues; the exit code still reports the first failure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd, app, root, flags)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&flags.dryRun, "dry-run", false, "print the commands without running them")
	f.StringVar(&flags.strictness, "strictness", "", "failure handling: strict or lenient")
	f.StringVar(&flags.entry, "entry", "", "entry script to package")
	f.StringVar(&flags.venv, "venv", "", "virtual environment directory")
	f.StringVar(&flags.manifest, "manifest", "", "requirements file")
	f.StringVar(&flags.icon, "icon", "", "icon embedded into the executable")
	f.StringVar(&flags.name, "name", "", "name of the executable")
	f.StringVar(&flags.python, "python", "", "base interpreter used to create the environment")
	f.StringVar(&flags.runtime, "runtime", "", "where tools run: native or container")
	f.StringVar(&flags.report, "report", "", "write a JSON (or .yaml) build report to this file")
	f.BoolVar(&flags.wait, "wait", false, "wait for a running build of the same project instead of failing")
	f.BoolVar(&flags.pause, "pause", false, "wait for Enter before exiting when attached to a terminal")

	return cmd
}

// overrides collects the flags that were set on cmd as configuration keys.
func overrides(cmd *cobra.Command, keys map[string]string) map[string]any {
	out := make(map[string]any)
	for flag, key := range keys {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		if f.Value.Type() == "bool" {
			out[key] = f.Value.String() == "true"
			continue
		}
		out[key] = f.Value.String()
	}
	return out
}

func runBuild(cmd *cobra.Command, app *App, root *rootFlagValues, flags *buildFlagValues) error {
	// Pause on every exit path, early errors included.
	pauseOnExit := flags.pause
	defer func() {
		if pauseOnExit {
			app.pause()
		}
	}()

	ctx := cmd.Context()
	cfg, projectDir, err := app.loadConfig(ctx, root, overrides(cmd, flagKeys))
	if err != nil {
		return configFailure(cmd, app, err, root.verbose)
	}
	pauseOnExit = cfg.UI.PauseOnExit

	tc, err := newToolchain(ctx, cfg, projectDir, liveOutput(app, cfg))
	if err != nil {
		id, code := toolchainFailure(err)
		return fail(cmd, app, err, id, code, cfg.UI.Verbose)
	}
	orch := tc.orchestrator(flags.wait)

	if flags.dryRun {
		plan, err := orch.Plan()
		if err != nil {
			return err
		}
		return build.RenderPlan(app.stdout, projectDir, plan)
	}

	report, err := runOnce(ctx, app, cfg, orch, flags.report)
	if err != nil {
		return fail(cmd, app, err, build.IssueFor(err), report.ExitCode, cfg.UI.Verbose)
	}
	return nil
}

// runOnce runs one build with status output and writes the report when a
// path is given.
func runOnce(ctx context.Context, app *App, cfg *config.Config, orch *build.Orchestrator, reportPath string) (*build.Report, error) {
	orch.Observer = newStatusPrinter(app.stdout)
	report, err := orch.Run(ctx)
	if reportPath != "" {
		if werr := build.WriteReport(reportPath, report); werr != nil {
			slog.Warn("could not write build report", "path", reportPath, "error", werr)
		}
	}
	printSummary(app.stdout, report, cfg.UI.Verbose)
	return report, err
}
