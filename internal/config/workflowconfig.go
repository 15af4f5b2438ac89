// Package config provides configuration management for simflow.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/aerox/simflow/internal/failure"
)

const (
	sectionScripts    = "ATOS_SCRIPTS"
	sectionRootDirs   = "ROOT_DIRECTORIES"
	sectionCleanup    = "CLEANUP"
	sectionExemptions = "EXEMPTIONS"
)

// DefaultCommandTimeout bounds every helper script invocation unless
// command_timeout overrides it.
const DefaultCommandTimeout = 5 * time.Minute

// MainMacroName is the solver entry macro shared by every step.
const MainMacroName = "StarCCM_Main_Macro.java"

// DefaultPreSkipUserFiles lists the templates whose PRE step does not read
// input_data_file.txt.
var DefaultPreSkipUserFiles = []string{"default_run", "default_run-3"}

// WorkflowConfig is the static site configuration, read once per process.
//
// INI format:
//
//	[ATOS_SCRIPTS]
//	root_dir = /opt/aerox/workflow
//	optionsds = /opt/aerox/optionsds
//	global_env = global_env.sh
//	list_queues = ac_StarCcmListQueues.sh
//	solver_versions = ac_ListVersions.sh
//	job_launcher = xf_Run
//	job_state = job_state_handler.sh
//	command_timeout = 5m
//
//	[ROOT_DIRECTORIES]
//	project_root_dir = /home/USER/share/_PROJECTS
//	template_root_dir = /home/USER/share/_TEMPLATES
//	default_template_dir = /opt/aerox/workflow/default_run
//
//	[CLEANUP]
//	solver_version = 17.02.008
//	queue = aerox.q
//	walltime = 02:00:00
//	template = cleanup
//
//	[EXEMPTIONS]
//	pre_skip_user_files = default_run, default_run-3
//
// Script paths are joined onto root_dir (global_env, job_launcher, job_state,
// main_macro) or optionsds (list_queues, solver_versions). Every path must exist.
type WorkflowConfig struct {
	Path string

	RootDir        string
	OptionsDS      string
	GlobalEnv      string
	ListQueues     string
	SolverVersions string
	JobLauncher    string
	JobState       string
	MainMacro      string
	CommandTimeout time.Duration

	ProjectRootDir     string
	TemplateRootDir    string
	DefaultTemplateDir string

	Cleanup CleanupDefaults

	// PreSkipUserFiles holds template names or paths exempted from user-file
	// staging in PRE.
	PreSkipUserFiles []string
}

// CleanupDefaults are the submission parameters written for cleanup runs.
type CleanupDefaults struct {
	SolverVersion string
	Queue         string
	Walltime      string
	Template      string
	TaskCode      string // used when a job code carries no task part
}

// LoadWorkflowConfig reads and checks the workflow configuration at path.
func LoadWorkflowConfig(path string) (*WorkflowConfig, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, failure.Configuration("workflow_config", path, "workflow configuration file not found").Wrap(err)
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, failure.Configuration("workflow_config", path, "cannot read workflow configuration").Wrap(err)
	}

	for _, name := range []string{sectionScripts, sectionRootDirs} {
		if !iniFile.HasSection(name) {
			return nil, failure.Configuration(name, "", "missing section in workflow config")
		}
	}

	cfg := &WorkflowConfig{Path: path}
	scripts := iniFile.Section(sectionScripts)
	roots := iniFile.Section(sectionRootDirs)

	if cfg.RootDir, err = existingPath(scripts, "root_dir", ""); err != nil {
		return nil, err
	}
	if cfg.OptionsDS, err = existingPath(scripts, "optionsds", ""); err != nil {
		return nil, err
	}
	if cfg.GlobalEnv, err = existingPath(scripts, "global_env", cfg.RootDir); err != nil {
		return nil, err
	}
	if cfg.ListQueues, err = existingPath(scripts, "list_queues", cfg.OptionsDS); err != nil {
		return nil, err
	}
	if cfg.SolverVersions, err = existingPath(scripts, "solver_versions", cfg.OptionsDS); err != nil {
		return nil, err
	}
	if cfg.JobLauncher, err = existingPath(scripts, "job_launcher", cfg.RootDir); err != nil {
		return nil, err
	}
	if cfg.JobState, err = existingPath(scripts, "job_state", cfg.RootDir); err != nil {
		return nil, err
	}
	if !scripts.HasKey("main_macro") {
		scripts.Key("main_macro").SetValue(MainMacroName)
	}
	if cfg.MainMacro, err = existingPath(scripts, "main_macro", cfg.RootDir); err != nil {
		return nil, err
	}

	cfg.CommandTimeout = scripts.Key("command_timeout").MustDuration(DefaultCommandTimeout)
	if cfg.CommandTimeout <= 0 {
		return nil, failure.Configuration("command_timeout", scripts.Key("command_timeout").String(), "timeout must be positive")
	}

	if cfg.ProjectRootDir, err = existingPath(roots, "project_root_dir", ""); err != nil {
		return nil, err
	}
	if cfg.TemplateRootDir, err = existingPath(roots, "template_root_dir", ""); err != nil {
		return nil, err
	}
	if !roots.HasKey("default_template_dir") {
		roots.Key("default_template_dir").SetValue("default_run")
		cfg.DefaultTemplateDir = filepath.Join(cfg.RootDir, "default_run")
	} else if cfg.DefaultTemplateDir, err = existingPath(roots, "default_template_dir", cfg.RootDir); err != nil {
		return nil, err
	}

	cleanup := iniFile.Section(sectionCleanup)
	cfg.Cleanup = CleanupDefaults{
		SolverVersion: cleanup.Key("solver_version").String(),
		Queue:         cleanup.Key("queue").String(),
		Walltime:      cleanup.Key("walltime").MustString("24:00:00"),
		Template:      cleanup.Key("template").String(),
		TaskCode:      cleanup.Key("task_code").MustString("CLEANUP"),
	}

	cfg.PreSkipUserFiles = DefaultPreSkipUserFiles
	if key := iniFile.Section(sectionExemptions).Key("pre_skip_user_files"); key.String() != "" {
		cfg.PreSkipUserFiles = key.Strings(",")
	}

	return cfg, nil
}

// existingPath reads a required key, joins relative values onto base and
// checks that the result exists.
func existingPath(section *ini.Section, key, base string) (string, error) {
	value := strings.TrimSpace(section.Key(key).String())
	if value == "" {
		return "", failure.Configuration(key, "", "missing key in section [%s]", section.Name())
	}
	path := value
	if base != "" && !filepath.IsAbs(value) {
		path = filepath.Join(base, value)
	}
	if _, err := os.Stat(path); err != nil {
		return "", failure.Configuration(key, value, "workflow config - invalid path").Wrap(err)
	}
	return path, nil
}

// IsPreSkipTemplate reports whether PRE with this template skips user files.
// Entries match either the template's full path or its directory name.
func (cfg *WorkflowConfig) IsPreSkipTemplate(template string) bool {
	if template == "" {
		return false
	}
	for _, entry := range cfg.PreSkipUserFiles {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == template || entry == filepath.Base(template) {
			return true
		}
	}
	return false
}

// ToINI renders the resolved configuration, as used by `config show`.
func (cfg *WorkflowConfig) ToINI() (*ini.File, error) {
	iniFile := ini.Empty()

	scripts, err := iniFile.NewSection(sectionScripts)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s section: %w", sectionScripts, err)
	}
	scripts.Key("root_dir").SetValue(cfg.RootDir)
	scripts.Key("optionsds").SetValue(cfg.OptionsDS)
	scripts.Key("global_env").SetValue(cfg.GlobalEnv)
	scripts.Key("list_queues").SetValue(cfg.ListQueues)
	scripts.Key("solver_versions").SetValue(cfg.SolverVersions)
	scripts.Key("job_launcher").SetValue(cfg.JobLauncher)
	scripts.Key("job_state").SetValue(cfg.JobState)
	scripts.Key("main_macro").SetValue(cfg.MainMacro)
	scripts.Key("command_timeout").SetValue(cfg.CommandTimeout.String())

	roots, err := iniFile.NewSection(sectionRootDirs)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s section: %w", sectionRootDirs, err)
	}
	roots.Key("project_root_dir").SetValue(cfg.ProjectRootDir)
	roots.Key("template_root_dir").SetValue(cfg.TemplateRootDir)
	roots.Key("default_template_dir").SetValue(cfg.DefaultTemplateDir)

	cleanup, err := iniFile.NewSection(sectionCleanup)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s section: %w", sectionCleanup, err)
	}
	cleanup.Key("solver_version").SetValue(cfg.Cleanup.SolverVersion)
	cleanup.Key("queue").SetValue(cfg.Cleanup.Queue)
	cleanup.Key("walltime").SetValue(cfg.Cleanup.Walltime)
	cleanup.Key("template").SetValue(cfg.Cleanup.Template)
	cleanup.Key("task_code").SetValue(cfg.Cleanup.TaskCode)

	exemptions, err := iniFile.NewSection(sectionExemptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s section: %w", sectionExemptions, err)
	}
	exemptions.Key("pre_skip_user_files").SetValue(strings.Join(cfg.PreSkipUserFiles, ", "))

	return iniFile, nil
}
