// Package testutil builds throwaway site trees for package tests: helper
// scripts, templates, a project root and user case folders.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/aerox/simflow/internal/config"
	"github.com/aerox/simflow/internal/models"
	"github.com/aerox/simflow/internal/steps"
)

// TemplateName is the template every Site provides.
const TemplateName = "external_aero"

// Site is a complete workflow installation under a temporary directory.
type Site struct {
	Root     string
	Config   *config.WorkflowConfig
	Template string // absolute path of TemplateName
}

// WriteFile creates path and its parents with content.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// NewSite lays out scripts, templates and roots, writes workflow_config.cfg
// and loads it.
func NewSite(t testing.TB) *Site {
	t.Helper()
	root := t.TempDir()
	scripts := filepath.Join(root, "scripts")
	optionsds := filepath.Join(root, "optionsds")

	for _, f := range []string{"global_env.sh", "xf_Run", "job_state_handler.sh", config.MainMacroName} {
		WriteFile(t, filepath.Join(scripts, f), "#!/bin/sh\n")
	}
	for _, f := range []string{"list_queues.sh", "versions.sh"} {
		WriteFile(t, filepath.Join(optionsds, f), "#!/bin/sh\n")
	}

	template := filepath.Join(root, "templates", TemplateName)
	for _, step := range steps.Canonical {
		WriteFile(t, filepath.Join(template, "macros", step.String(), step.Macro()), "// "+step.String())
		WriteFile(t, filepath.Join(scripts, "default_run", step.String(), step.Macro()), "// default "+step.String())
	}
	WriteFile(t, filepath.Join(template, "sim_file", "simulation.sim"), "template sim state")
	WriteFile(t, filepath.Join(template, "output", "report.xlsm"), "xlsm")

	projects := filepath.Join(root, "projects")
	if err := os.MkdirAll(projects, 0755); err != nil {
		t.Fatal(err)
	}

	cfgPath := filepath.Join(root, config.DefaultConfigName)
	WriteFile(t, cfgPath, fmt.Sprintf(`[ATOS_SCRIPTS]
root_dir = %s
optionsds = %s
global_env = global_env.sh
list_queues = list_queues.sh
solver_versions = versions.sh
job_launcher = xf_Run
job_state = job_state_handler.sh

[ROOT_DIRECTORIES]
project_root_dir = %s
template_root_dir = %s
default_template_dir = default_run

[CLEANUP]
solver_version = 17.02.008
queue = aerox.q
walltime = 02:00:00
template = %s
`, scripts, optionsds, projects, filepath.Join(root, "templates"), TemplateName))

	cfg, err := config.LoadWorkflowConfig(cfgPath)
	if err != nil {
		t.Fatalf("site config: %v", err)
	}
	return &Site{Root: root, Config: cfg, Template: template}
}

// UserDir creates a case folder at rel (relative to the site root, or
// absolute) holding parameters.txt, input_data_file.txt and its parts.
func (s *Site) UserDir(t testing.TB, rel string) string {
	t.Helper()
	dir := rel
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(s.Root, rel)
	}
	WriteFile(t, filepath.Join(dir, "parameters.txt"), "PROJECT_CODE: AB12\n")
	WriteFile(t, filepath.Join(dir, "wing.stl"), "solid wing")
	WriteFile(t, filepath.Join(dir, config.InputDataFileName), "[PARTS]\nwing = wing.stl\n")
	return dir
}

// Args returns fresh-run WorkflowArgs for userDir and a step list such as "ALL".
func (s *Site) Args(userDir, stepList string) *models.WorkflowArgs {
	list, err := steps.ParseList(stepList)
	if err != nil {
		panic(err)
	}
	return &models.WorkflowArgs{
		ProjectCode:   "AB12",
		TaskCode:      "ALO",
		RunNumber:     "7",
		Description:   "test run",
		SolverVersion: "17.02.008",
		Walltime:      "24:00:00",
		Queue:         "aerox.q",
		Steps:         list,
		Template:      s.Template,
		UserDir:       userDir,
		ParameterFile: filepath.Join(userDir, "parameters.txt"),
	}
}

// RunDir returns the run folder Args would materialize to.
func (s *Site) RunDir(args *models.WorkflowArgs) string {
	return filepath.Join(s.Config.ProjectRootDir, args.ProjectCode, args.ProjectName())
}
