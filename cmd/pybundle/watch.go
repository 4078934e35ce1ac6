// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/pybundle/pybundle/internal/build"
	"github.com/pybundle/pybundle/internal/watch"
)

var watchKeys = map[string]string{
	"strictness": "strictness",
	"debounce":   "watch.debounce",
}

func newWatchCommand(app *App, root *rootFlagValues) *cobra.Command {
	var report string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild whenever the project's sources change",
		Long: `Build once, then rebuild whenever a watched file changes.

By default the Python sources, the requirements file and the icon are
watched. The virtual environment and PyInstaller's outputs are never
watched. A change that arrives during a build starts another build once the
current one has finished.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, app, root, report)
		},
	}

	cmd.Flags().Duration("debounce", 0, "quiet period before a rebuild (e.g. 500ms)")
	cmd.Flags().String("strictness", "", "failure handling: strict or lenient")
	cmd.Flags().StringVar(&report, "report", "", "write a build report after every build")
	return cmd
}

func runWatch(cmd *cobra.Command, app *App, root *rootFlagValues, reportPath string) error {
	ctx := cmd.Context()
	cfg, projectDir, err := app.loadConfig(ctx, root, overrides(cmd, watchKeys))
	if err != nil {
		return configFailure(cmd, app, err, root.verbose)
	}
	tc, err := newToolchain(ctx, cfg, projectDir, liveOutput(app, cfg))
	if err != nil {
		id, code := toolchainFailure(err)
		return fail(cmd, app, err, id, code, cfg.UI.Verbose)
	}

	patterns := append([]string{}, cfg.Watch.Patterns...)
	patterns = append(patterns, filepath.ToSlash(cfg.Manifest))
	if cfg.Package.Icon != "" {
		patterns = append(patterns, filepath.ToSlash(cfg.Package.Icon))
	}
	ignore := append([]string{}, cfg.Watch.Ignore...)
	ignore = append(ignore, filepath.ToSlash(cfg.Venv)+"/**")

	w, err := watch.New(watch.Config{
		ProjectDir:   projectDir,
		Patterns:     patterns,
		Ignore:       ignore,
		Debounce:     cfg.Watch.Debounce,
		BuildOnStart: true,
		Build: func(ctx context.Context, changed []string) error {
			if len(changed) > 0 {
				fmt.Fprintf(app.stdout, "\n%s %d change(s): %v\n", CmdStyle.Render("→"), len(changed), changed)
			}
			// Builds in watch mode wait for builds started elsewhere.
			_, err := runOnce(ctx, app, cfg, tc.orchestrator(true), reportPath)
			fmt.Fprintf(app.stdout, "\n%s Watching for changes (Ctrl+C to stop)...\n", SubtitleStyle.Render("→"))
			return err
		},
	})
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	fmt.Fprintf(app.stdout, "%s Watching %s (debounce %s)\n", TitleStyle.Render("pybundle watch"), projectDir, debounceOf(cfg.Watch.Debounce))
	if err := w.Run(ctx); err != nil {
		return fail(cmd, app, err, 0, build.ExitGeneric, cfg.UI.Verbose)
	}
	return nil
}

func debounceOf(d time.Duration) time.Duration {
	if d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}
