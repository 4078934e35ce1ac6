// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/pybundle/pybundle/internal/build"
	"github.com/pybundle/pybundle/internal/issue"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// rootFlagValues holds the persistent flags shared by every subcommand.
type rootFlagValues struct {
	configPath string
	projectDir string
	verbose    bool
}

// NewRootCommand builds the pybundle command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	flags := &rootFlagValues{}

	rootCmd := &cobra.Command{
		Use:   "pybundle",
		Short: "Build a Python script into a standalone executable",
		Long: TitleStyle.Render("pybundle") + SubtitleStyle.Render(" - Build a Python script into a standalone executable") + `

pybundle prepares a virtual environment, installs the project's requirements
into it, packages the entry script with PyInstaller and copies the resulting
executable into the project directory.

` + SubtitleStyle.Render("Examples:") + `
  pybundle build               Build the project in the current directory
  pybundle build --dry-run     Show the commands a build would run
  pybundle watch               Rebuild whenever a source file changes
  pybundle env info            Show the project's environment
  pybundle config init         Create a pybundle.cue with the defaults`,
		PersistentPreRun: func(*cobra.Command, []string) {
			setupLogging(app.stderr, flags.verbose)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (replaces the global and project config files)")
	pf.StringVarP(&flags.projectDir, "project", "C", "", "project directory (default is the current directory)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(
		newBuildCommand(app, flags),
		newEnvCommand(app, flags),
		newWatchCommand(app, flags),
		newConfigCommand(app, flags),
	)
	return rootCmd
}

// setupLogging routes slog through a charmbracelet/log handler on w.
func setupLogging(w io.Writer, verbose bool) {
	level := log.WarnLevel
	if verbose {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(w, log.Options{
		Prefix:          "pybundle",
		Level:           level,
		ReportTimestamp: verbose,
	})
	slog.SetDefault(slog.New(logger))
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Main runs the CLI and returns the process exit code.
func Main() int {
	return run(context.Background(), NewApp(Dependencies{}), os.Args[1:])
}

// Execute runs the CLI and exits the process. It is called by main.main().
func Execute() {
	os.Exit(Main())
}

func run(ctx context.Context, app *App, args []string) int {
	rootCmd := NewRootCommand(app)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(app.stdout)
	rootCmd.SetErr(app.stderr)

	if err := fang.Execute(
		ctx,
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}
		if errors.Is(err, context.Canceled) {
			return build.ExitInterrupted
		}
		return build.ExitGeneric
	}
	return build.ExitSuccess
}

// fail renders err with its issue help and returns an ExitError carrying code.
// The command's own error and usage output is silenced.
func fail(cmd *cobra.Command, app *App, err error, id issue.Id, code int, verbose bool) error {
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	msg := ErrorStyle.Render("✗ ") + formatErrorForDisplay(err, verbose) + "\n"
	svcErr := newServiceError(err, id, msg)
	renderServiceError(app.stderr, svcErr)
	return &ExitError{Code: code, Err: svcErr}
}

// configFailure reports a configuration load error.
func configFailure(cmd *cobra.Command, app *App, err error, verbose bool) error {
	return fail(cmd, app, err, issue.ConfigLoadFailedId, build.ExitGeneric, verbose)
}
