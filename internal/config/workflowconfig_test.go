package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aerox/simflow/internal/failure"
)

// writeSite lays out a minimal site tree and returns the config path.
func writeSite(t *testing.T, extra string) (string, string) {
	t.Helper()
	root := t.TempDir()

	for _, dir := range []string{"scripts", "optionsds", "projects", "templates", "scripts/default_run"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range []string{
		"scripts/global_env.sh", "scripts/xf_Run", "scripts/job_state_handler.sh",
		"scripts/" + MainMacroName, "optionsds/list_queues.sh", "optionsds/versions.sh",
	} {
		if err := os.WriteFile(filepath.Join(root, f), []byte("#!/bin/sh\n"), 0755); err != nil {
			t.Fatal(err)
		}
	}

	content := "[ATOS_SCRIPTS]\n" +
		"root_dir = " + filepath.Join(root, "scripts") + "\n" +
		"optionsds = " + filepath.Join(root, "optionsds") + "\n" +
		"global_env = global_env.sh\n" +
		"list_queues = list_queues.sh\n" +
		"solver_versions = versions.sh\n" +
		"job_launcher = xf_Run\n" +
		"job_state = job_state_handler.sh\n" +
		"\n[ROOT_DIRECTORIES]\n" +
		"project_root_dir = " + filepath.Join(root, "projects") + "\n" +
		"template_root_dir = " + filepath.Join(root, "templates") + "\n" +
		extra

	path := filepath.Join(root, DefaultConfigName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path, root
}

func TestLoadWorkflowConfig(t *testing.T) {
	path, root := writeSite(t, "")

	cfg, err := LoadWorkflowConfig(path)
	if err != nil {
		t.Fatalf("LoadWorkflowConfig failed: %v", err)
	}

	if cfg.GlobalEnv != filepath.Join(root, "scripts", "global_env.sh") {
		t.Errorf("GlobalEnv = %s", cfg.GlobalEnv)
	}
	if cfg.ListQueues != filepath.Join(root, "optionsds", "list_queues.sh") {
		t.Errorf("ListQueues = %s", cfg.ListQueues)
	}
	if cfg.JobState != filepath.Join(root, "scripts", "job_state_handler.sh") {
		t.Errorf("JobState = %s", cfg.JobState)
	}
	if cfg.MainMacro != filepath.Join(root, "scripts", MainMacroName) {
		t.Errorf("MainMacro = %s", cfg.MainMacro)
	}
	if cfg.DefaultTemplateDir != filepath.Join(root, "scripts", "default_run") {
		t.Errorf("DefaultTemplateDir = %s", cfg.DefaultTemplateDir)
	}
	if cfg.CommandTimeout != DefaultCommandTimeout {
		t.Errorf("CommandTimeout = %v, want %v", cfg.CommandTimeout, DefaultCommandTimeout)
	}
	if len(cfg.PreSkipUserFiles) != 2 {
		t.Errorf("PreSkipUserFiles = %v, want defaults", cfg.PreSkipUserFiles)
	}
}

func TestLoadWorkflowConfig_OptionalSections(t *testing.T) {
	path, _ := writeSite(t, "\n[CLEANUP]\nqueue = aerox.q\nsolver_version = 17.02\n"+
		"\n[EXEMPTIONS]\npre_skip_user_files = mesh_only, default_run\n")

	cfg, err := LoadWorkflowConfig(path)
	if err != nil {
		t.Fatalf("LoadWorkflowConfig failed: %v", err)
	}
	if cfg.Cleanup.Queue != "aerox.q" || cfg.Cleanup.SolverVersion != "17.02" {
		t.Errorf("Cleanup = %+v", cfg.Cleanup)
	}
	if cfg.Cleanup.Walltime != "24:00:00" {
		t.Errorf("Cleanup.Walltime default = %s", cfg.Cleanup.Walltime)
	}
	if !cfg.IsPreSkipTemplate("/site/templates/mesh_only") {
		t.Error("expected mesh_only to be exempt")
	}
	if cfg.IsPreSkipTemplate("/site/templates/default_run-3") {
		t.Error("default_run-3 should not be exempt once the list is overridden")
	}
}

func TestLoadWorkflowConfig_CommandTimeout(t *testing.T) {
	path, _ := writeSite(t, "")
	data, _ := os.ReadFile(path)
	content := strings.Replace(string(data), "job_state = job_state_handler.sh\n",
		"job_state = job_state_handler.sh\ncommand_timeout = 30s\n", 1)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadWorkflowConfig(path)
	if err != nil {
		t.Fatalf("LoadWorkflowConfig failed: %v", err)
	}
	if cfg.CommandTimeout != 30*time.Second {
		t.Errorf("CommandTimeout = %v", cfg.CommandTimeout)
	}
}

func TestLoadWorkflowConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(content string) string
		wantKey string
	}{
		{
			name:    "missing section",
			mutate:  func(c string) string { return c[:strings.Index(c, "[ROOT_DIRECTORIES]")] },
			wantKey: "ROOT_DIRECTORIES",
		},
		{
			name:    "missing key",
			mutate:  func(c string) string { return strings.Replace(c, "job_launcher = xf_Run\n", "", 1) },
			wantKey: "job_launcher",
		},
		{
			name:    "missing path",
			mutate:  func(c string) string { return strings.Replace(c, "versions.sh", "nope.sh", 1) },
			wantKey: "solver_versions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, _ := writeSite(t, "")
			data, _ := os.ReadFile(path)
			if err := os.WriteFile(path, []byte(tt.mutate(string(data))), 0644); err != nil {
				t.Fatal(err)
			}

			_, err := LoadWorkflowConfig(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !failure.Is(err, failure.KindConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantKey) {
				t.Errorf("error %q does not name %s", err, tt.wantKey)
			}
		})
	}
}

func TestLoadWorkflowConfig_NonExistent(t *testing.T) {
	_, err := LoadWorkflowConfig("/path/that/does/not/exist/workflow_config.cfg")
	if !failure.Is(err, failure.KindConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestWorkflowConfig_ToINI(t *testing.T) {
	path, _ := writeSite(t, "")
	cfg, err := LoadWorkflowConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	iniFile, err := cfg.ToINI()
	if err != nil {
		t.Fatalf("ToINI failed: %v", err)
	}
	if got := iniFile.Section("ATOS_SCRIPTS").Key("job_launcher").String(); got != cfg.JobLauncher {
		t.Errorf("job_launcher = %s, want %s", got, cfg.JobLauncher)
	}
	if got := iniFile.Section("ROOT_DIRECTORIES").Key("project_root_dir").String(); got != cfg.ProjectRootDir {
		t.Errorf("project_root_dir = %s", got)
	}
}

func TestResolveConfigPath(t *testing.T) {
	if got := ResolveConfigPath("/etc/simflow.cfg"); got != "/etc/simflow.cfg" {
		t.Errorf("flag value not honoured: %s", got)
	}

	t.Setenv(EnvConfigPath, "/env/simflow.cfg")
	if got := ResolveConfigPath(""); got != "/env/simflow.cfg" {
		t.Errorf("env value not honoured: %s", got)
	}

	t.Setenv(EnvConfigPath, "")
	if got := ResolveConfigPath(""); filepath.Base(got) != DefaultConfigName {
		t.Errorf("default path = %s", got)
	}
}
