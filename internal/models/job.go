// Package models defines data structures for the simulation workflow.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/aerox/simflow/internal/steps"
)

// DummyRunNumber marks a run whose description was already seen. Such runs are
// always named DummyRunNumber regardless of project and task code.
const DummyRunNumber = "DUMMY_XXX_000"

// RunWithMacro is the TEMPLATE value meaning "use the Run_simulation.java macro
// authored in the invocation directory instead of a template".
const RunWithMacro = "run_with_macro"

// WorkflowArgs is a validated submission. It is built once per invocation by the
// validation package and never mutated afterwards.
type WorkflowArgs struct {
	ProjectCode   string
	TaskCode      string
	RunNumber     string
	Description   string
	SolverVersion string
	Walltime      string
	Queue         string // resolved queue code
	Steps         steps.List
	Iterator      string // digits, only set when RUN is the first step
	Template      string // absolute template dir, RunWithMacro, or empty
	SimFile       string // absolute path inside UserDir, or empty
	Rerun         bool
	Cleanup       bool
	UserDir       string // directory holding the parameter file
	ParameterFile string
}

// UsesMacroTemplate reports whether the authored Run_simulation.java replaces templates.
func (a *WorkflowArgs) UsesMacroTemplate() bool {
	return a.Template == RunWithMacro
}

// ProjectName derives the unique run name: PROJECT-TASK-RUN, or DummyRunNumber.
func (a *WorkflowArgs) ProjectName() string {
	if a.RunNumber == DummyRunNumber {
		return DummyRunNumber
	}
	return fmt.Sprintf("%s-%s-%s", a.ProjectCode, a.TaskCode, a.RunNumber)
}

// Job is one step of a project: a folder, a queue, the staged software artifact
// and, after submission, the scheduler job id.
type Job struct {
	Step     steps.Step
	Path     string
	Queue    string
	Software *StarCCM

	id string
}

// ID returns the scheduler job id, empty before submission.
func (j *Job) ID() string {
	return j.id
}

// SetID records the scheduler job id. It can only be assigned once.
func (j *Job) SetID(id string) error {
	if id == "" {
		return fmt.Errorf("empty job id for step %s", j.Step)
	}
	if j.id != "" {
		return fmt.Errorf("job id for step %s already assigned (%s)", j.Step, j.id)
	}
	j.id = id
	return nil
}

func (j *Job) String() string {
	return fmt.Sprintf("path: %s\n%s", j.Path, j.Software)
}

// Project is one submission: the run folder tree and its jobs.
type Project struct {
	Name   string
	Dir    string // <project_root>/<project code>
	RunDir string // <Dir>/<Name>
	Jobs   []*Job

	// Rerun is the effective rerun flag after the invocation directory check.
	Rerun bool

	// CreatedPaths lists folders created by this invocation, newest last.
	CreatedPaths []string
}

// Job returns the job for a step, or nil.
func (p *Project) Job(step steps.Step) *Job {
	for _, j := range p.Jobs {
		if j.Step == step {
			return j
		}
	}
	return nil
}

func (p *Project) String() string {
	parts := []string{
		"name: " + p.Name,
		"dir: " + p.Dir,
		"run_dir: " + p.RunDir,
	}
	for _, j := range p.Jobs {
		parts = append(parts, j.String())
	}
	return strings.Join(parts, "\n")
}

// SubmissionRecord is one row of the per-run submission ledger.
type SubmissionRecord struct {
	Step         string
	Folder       string
	Queue        string
	SimFile      string
	DependsOn    string
	JobID        string
	SubmitStatus string // "pending", "success", "failed"
	ErrorMessage string
	LastUpdated  time.Time
}
