// SPDX-License-Identifier: MPL-2.0

package build

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// PlannedStep is one step of a dry run.
type PlannedStep struct {
	Step     Step
	Commands []string
	Note     string
}

// Plan lists what Run would do without touching the filesystem or running
// anything.
func (o *Orchestrator) Plan() ([]PlannedStep, error) {
	opts := o.Options
	projectDir := o.projectDir()
	venvDir := o.venvDir()

	env, err := o.Envs.Expected(venvDir)
	if err != nil {
		return nil, err
	}

	plan := []PlannedStep{
		{
			Step:     StepEnsureEnvironment,
			Commands: []string{o.Envs.CreateInvocation(venvDir).String()},
			Note:     "only when " + venvDir + " does not exist",
		},
		{
			Step: StepActivateEnvironment,
			Note: fmt.Sprintf("VIRTUAL_ENV=%s, %s first on PATH", env.Dir, env.BinDir),
		},
		{Step: StepInstallDependencies},
		{
			Step:     StepPackage,
			Commands: []string{o.Packager.Invocation(env, projectDir, opts.Entry, opts.Package).String()},
		},
		{
			Step: StepDeactivateEnvironment,
			Note: "environment variables restored",
		},
		{
			Step: StepStageArtifact,
			Note: fmt.Sprintf("copy %s to %s", opts.Package.ArtifactPath(projectDir, opts.Entry), o.StagedPath()),
		},
	}
	for _, inv := range o.Installer.Invocations(env, projectDir, opts.Install) {
		plan[2].Commands = append(plan[2].Commands, inv.String())
	}
	return plan, nil
}

// RenderPlan writes plan as a numbered list. Paths under projectDir are shown
// relative to it.
func RenderPlan(w io.Writer, projectDir string, plan []PlannedStep) error {
	rel := func(s string) string {
		if projectDir == "" {
			return s
		}
		s = strings.ReplaceAll(s, projectDir+string(filepath.Separator), "")
		s = strings.ReplaceAll(s, projectDir, ".")
		return filepath.ToSlash(s)
	}

	for i, p := range plan {
		if _, err := fmt.Fprintf(w, "%d. %s\n", i+1, p.Step); err != nil {
			return err
		}
		for _, c := range p.Commands {
			if _, err := fmt.Fprintf(w, "   $ %s\n", rel(c)); err != nil {
				return err
			}
		}
		if p.Note != "" {
			if _, err := fmt.Fprintf(w, "   # %s\n", rel(p.Note)); err != nil {
				return err
			}
		}
	}
	return nil
}
