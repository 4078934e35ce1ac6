// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/pybundle/pybundle/internal/build"
	"github.com/pybundle/pybundle/internal/config"
)

var stepTitles = map[build.Step]string{
	build.StepEnsureEnvironment:     "Checking virtual environment",
	build.StepActivateEnvironment:   "Activating virtual environment",
	build.StepInstallDependencies:   "Installing dependencies",
	build.StepPackage:               "Building executable",
	build.StepDeactivateEnvironment: "Deactivating virtual environment",
	build.StepStageArtifact:         "Copying executable",
}

// statusPrinter prints one status line per build step.
type statusPrinter struct {
	w io.Writer
}

func newStatusPrinter(w io.Writer) *statusPrinter {
	return &statusPrinter{w: w}
}

func (p *statusPrinter) StepStarted(step build.Step, _ string) {
	fmt.Fprintf(p.w, "%s %s...\n", CmdStyle.Render("→"), stepTitles[step])
}

func (p *statusPrinter) StepFinished(_ build.Step, r *build.StepReport) {
	switch r.Status {
	case build.StatusOK:
		line := SuccessStyle.Render("  ✓ ") + SubtitleStyle.Render(formatDuration(r.Duration))
		if r.Detail != "" {
			line += SubtitleStyle.Render("  " + r.Detail)
		}
		fmt.Fprintln(p.w, line)
	case build.StatusWarning:
		fmt.Fprintln(p.w, WarningStyle.Render("  ! continuing after failure: "+r.Error))
	case build.StatusFailed:
		fmt.Fprintln(p.w, ErrorStyle.Render("  ✗ failed"))
	}
}

// printSummary prints the outcome of a build.
func printSummary(w io.Writer, r *build.Report, verbose bool) {
	fmt.Fprintln(w)
	for _, s := range r.Steps {
		if s.Status == build.StatusSkipped {
			fmt.Fprintf(w, "%s %s\n", SubtitleStyle.Render("- skipped:"), stepTitles[s.Step])
		}
	}

	switch {
	case r.FinalState == build.StateDone && !r.Degraded:
		msg := "Build complete"
		if r.Artifact != nil {
			msg += ": " + r.Artifact.Destination
		}
		fmt.Fprintln(w, SuccessStyle.Render("✓ "+msg))
	case r.FinalState == build.StateDone:
		fmt.Fprintln(w, WarningStyle.Render("! Build finished with failures (lenient mode)"))
	default:
		fmt.Fprintln(w, ErrorStyle.Render("✗ Build failed"))
	}

	if verbose {
		fmt.Fprintf(w, "%s %s  %s %s  %s %s\n",
			SubtitleStyle.Render("run:"), r.RunID,
			SubtitleStyle.Render("runtime:"), r.Runtime,
			SubtitleStyle.Render("took:"), formatDuration(r.Duration))
	}
}

// liveOutput returns where tool output is streamed: the app's stderr in
// verbose mode, nowhere otherwise.
func liveOutput(app *App, cfg *config.Config) io.Writer {
	if cfg.UI.Verbose {
		return app.stderr
	}
	return nil
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
