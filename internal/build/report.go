// SPDX-License-Identifier: MPL-2.0

package build

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pybundle/pybundle/internal/process"
	"github.com/pybundle/pybundle/internal/stage"
)

const (
	StepEnsureEnvironment     Step = "ensure_environment"
	StepActivateEnvironment   Step = "activate_environment"
	StepInstallDependencies   Step = "install_dependencies"
	StepPackage               Step = "package"
	StepDeactivateEnvironment Step = "deactivate_environment"
	StepStageArtifact         Step = "stage_artifact"

	StatusOK      StepStatus = "ok"
	StatusSkipped StepStatus = "skipped"
	StatusFailed  StepStatus = "failed"
	// StatusWarning is a failure a lenient build continued past.
	StatusWarning StepStatus = "warning"
)

// Steps lists the build steps in execution order.
var Steps = []Step{
	StepEnsureEnvironment,
	StepActivateEnvironment,
	StepInstallDependencies,
	StepPackage,
	StepDeactivateEnvironment,
	StepStageArtifact,
}

type (
	// Step names one operation of the build.
	Step string

	// StepStatus is the outcome of a step.
	StepStatus string

	// Report records one build run.
	Report struct {
		RunID      string        `json:"run_id" yaml:"run_id"`
		Project    string        `json:"project" yaml:"project"`
		Runtime    string        `json:"runtime" yaml:"runtime"`
		Strictness string        `json:"strictness" yaml:"strictness"`
		StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
		FinishedAt time.Time     `json:"finished_at" yaml:"finished_at"`
		Duration   time.Duration `json:"duration_ns" yaml:"duration"`
		FinalState State         `json:"final_state" yaml:"final_state"`
		States     []State       `json:"states" yaml:"states"`
		// Degraded is set when a lenient build continued past a failure.
		Degraded bool           `json:"degraded" yaml:"degraded"`
		ExitCode int            `json:"exit_code" yaml:"exit_code"`
		Error    string         `json:"error,omitempty" yaml:"error,omitempty"`
		Steps    []*StepReport  `json:"steps" yaml:"steps"`
		Artifact *stage.Outcome `json:"artifact,omitempty" yaml:"artifact,omitempty"`
	}

	// StepReport records one step.
	StepReport struct {
		Step      Step            `json:"step" yaml:"step"`
		Status    StepStatus      `json:"status" yaml:"status"`
		Detail    string          `json:"detail,omitempty" yaml:"detail,omitempty"`
		StartedAt time.Time       `json:"started_at" yaml:"started_at"`
		Duration  time.Duration   `json:"duration_ns" yaml:"duration"`
		Commands  []CommandReport `json:"commands,omitempty" yaml:"commands,omitempty"`
		Error     string          `json:"error,omitempty" yaml:"error,omitempty"`
	}

	// CommandReport records one tool invocation of a step.
	CommandReport struct {
		Command    string        `json:"command" yaml:"command"`
		ExitCode   int           `json:"exit_code" yaml:"exit_code"`
		Duration   time.Duration `json:"duration_ns" yaml:"duration"`
		StderrTail string        `json:"stderr_tail,omitempty" yaml:"stderr_tail,omitempty"`
	}
)

// Step returns the report of step, or nil if it is not recorded.
func (r *Report) Step(step Step) *StepReport {
	for _, s := range r.Steps {
		if s.Step == step {
			return s
		}
	}
	return nil
}

// Failed lists the steps that failed or were continued past with a warning.
func (r *Report) Failed() []Step {
	var out []Step
	for _, s := range r.Steps {
		if s.Status == StatusFailed || s.Status == StatusWarning {
			out = append(out, s.Step)
		}
	}
	return out
}

func (s *StepReport) addRecords(records ...process.Record) {
	for _, rec := range records {
		if rec.Result == nil {
			continue
		}
		s.Commands = append(s.Commands, CommandReport{
			Command:    rec.Invocation.String(),
			ExitCode:   int(rec.Result.ExitCode),
			Duration:   rec.Result.Duration,
			StderrTail: rec.Result.ErrOutput,
		})
	}
}

// WriteReport writes r to path as YAML when the extension is .yaml or .yml,
// and as indented JSON otherwise.
func WriteReport(path string, r *Report) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(r)
	default:
		data, err = json.MarshalIndent(r, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
