package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/aerox/simflow/internal/batch"
	"github.com/aerox/simflow/internal/batch/batchtest"
	"github.com/aerox/simflow/internal/config"
	"github.com/aerox/simflow/internal/failure"
	"github.com/aerox/simflow/internal/logging"
	"github.com/aerox/simflow/internal/testutil"
)

// execute runs the full command tree with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	AddCommands(root)

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// useRunner routes helper invocations to r for the duration of the test.
func useRunner(t *testing.T, r batch.Runner) {
	t.Helper()
	saved := newRunner
	newRunner = func(*config.WorkflowConfig, *logging.Logger) batch.Runner { return r }
	t.Cleanup(func() { newRunner = saved })
}

// TestSubmitCmd tests the submit command structure
func TestSubmitCmd(t *testing.T) {
	cmd := newSubmitCmd()
	if cmd.Use != "submit <parameter_file>" {
		t.Errorf("Expected Use='submit <parameter_file>', got '%s'", cmd.Use)
	}
	if cmd.RunE == nil {
		t.Error("RunE function is nil")
	}
	for _, name := range []string{"cleanup", "depend", "run-number"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("--%s flag not found", name)
		}
	}
	if f := cmd.Flags().ShorthandLookup("d"); f == nil || f.Name != "depend" {
		t.Error("-d shorthand not bound to --depend")
	}
}

// TestCleanupCmd tests the cleanup command structure
func TestCleanupCmd(t *testing.T) {
	cmd := newCleanupCmd()
	if cmd.Use != "cleanup" {
		t.Errorf("Expected Use='cleanup', got '%s'", cmd.Use)
	}
	for _, name := range []string{"project", "single", "range", "list", "all"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("--%s flag not found", name)
		}
	}
}

func TestSubmit_DependRequiresCleanup(t *testing.T) {
	_, err := execute(t, "submit", "-d", "42", "parameters.txt")
	if !failure.Is(err, failure.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "-d without -c") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestSubmit_RequiresParameterFile(t *testing.T) {
	if _, err := execute(t, "submit"); err == nil {
		t.Fatal("expected argument error")
	}
}

func TestCleanup_SelectorsExclusive(t *testing.T) {
	if _, err := execute(t, "cleanup", "-p", "AB12", "-s", "ALO-001", "-a"); err == nil {
		t.Error("expected error for --single with --all")
	}
	if _, err := execute(t, "cleanup", "-p", "AB12"); err == nil {
		t.Error("expected error without a selector")
	}
	if _, err := execute(t, "cleanup", "-s", "ALO-001"); err == nil {
		t.Error("expected error without --project")
	}
}

func TestCodeSelection_Resolve(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"AB12-ALO-001", "AB12-ALO-002"} {
		if err := os.MkdirAll(filepath.Join(root, "AB12", name), 0755); err != nil {
			t.Fatal(err)
		}
	}
	cfg := &config.WorkflowConfig{ProjectRootDir: root}

	tests := []struct {
		name    string
		sel     codeSelection
		want    []string
		wantErr bool
	}{
		{"single", codeSelection{single: "ALO-004"}, []string{"ALO-004"}, false},
		{"range", codeSelection{span: []string{"ALO-08", "ALO-10"}}, []string{"ALO-08", "ALO-09", "ALO-10"}, false},
		{"range needs two codes", codeSelection{span: []string{"ALO-08"}}, nil, true},
		{"list", codeSelection{list: []string{"ALO-003", "ALO-001"}}, []string{"ALO-003", "ALO-001"}, false},
		{"all", codeSelection{all: true}, []string{"ALO-001", "ALO-002"}, false},
		{"none", codeSelection{}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.sel.resolve(cfg, "AB12")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("resolve() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSubmit_EndToEnd(t *testing.T) {
	t.Setenv("SIMFLOW_SITE", "")
	site := testutil.NewSite(t)
	userDir := site.UserDir(t, "case/study")
	paramFile := filepath.Join(userDir, "parameters.txt")
	testutil.WriteFile(t, paramFile, strings.Join([]string{
		"PROJECT_CODE: AB12",
		"TASK_CODE: ALO",
		"RUN_NUMBER: 7",
		"DESCRIPTION: front wing sweep",
		"SOLVER_VERSION: 17.02.008",
		"WALLTIME: 24:00:00",
		"QUEUE: aerox",
		"WORKFLOW_STEPS: ALL",
		"TEMPLATE: " + testutil.TemplateName,
	}, "\n")+"\n")

	runner := batchtest.NewRunner(
		batchtest.Rule{Match: "global_env.sh", Output: "SIMFLOW_SITE=aerox\n"},
		batchtest.Rule{Match: "list_queues.sh", Output: "aerox.q;AeroX\n"},
		batchtest.Rule{Match: "versions.sh", Output: "17.02.008\n"},
		batchtest.Rule{Match: "/PRE -os", Output: "Submitted jobid: 1001\n"},
		batchtest.Rule{Match: "/RUN -os", Output: "Submitted jobid: 1002\n"},
		batchtest.Rule{Match: "/POST -os", Output: "Submitted jobid: 1003\n"},
	)
	useRunner(t, runner)

	out, err := execute(t, "--config", site.Config.Path, "submit", paramFile)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	for _, want := range []string{"Project AB12-ALO-7 submitted", "1001", "1002", "1003"} {
		if !strings.Contains(out, want) {
			t.Errorf("output does not contain %q:\n%s", want, out)
		}
	}

	runDir := filepath.Join(site.Config.ProjectRootDir, "AB12", "AB12-ALO-7")
	logs, _ := filepath.Glob(filepath.Join(runDir, "Workflow_*.log"))
	if len(logs) != 1 {
		t.Errorf("expected the run log in %s, found %v", runDir, logs)
	}
	if left, _ := filepath.Glob(filepath.Join(userDir, "Workflow_*.log")); len(left) != 0 {
		t.Errorf("run log left in the user dir: %v", left)
	}
}

func TestSubmit_RunLogRecordsFailure(t *testing.T) {
	t.Setenv("SIMFLOW_SITE", "")
	site := testutil.NewSite(t)
	userDir := site.UserDir(t, "case/failing")
	paramFile := filepath.Join(userDir, "parameters.txt")
	testutil.WriteFile(t, paramFile, strings.Join([]string{
		"PROJECT_CODE: AB12",
		"TASK_CODE: ALO",
		"RUN_NUMBER: 8",
		"DESCRIPTION: closed queue",
		"SOLVER_VERSION: 17.02.008",
		"WALLTIME: 24:00:00",
		"QUEUE: aerox",
		"WORKFLOW_STEPS: ALL",
		"TEMPLATE: " + testutil.TemplateName,
	}, "\n")+"\n")

	useRunner(t, batchtest.NewRunner(
		batchtest.Rule{Match: "global_env.sh", Output: "SIMFLOW_SITE=aerox\n"},
		batchtest.Rule{Match: "list_queues.sh", Output: "aerox.q;AeroX\n"},
		batchtest.Rule{Match: "versions.sh", Output: "17.02.008\n"},
		batchtest.Rule{Match: "/PRE -os", Output: "Submitted jobid: 1001\n"},
		batchtest.Rule{Match: "/RUN -os", Output: "ERROR: queue closed\n"},
	))

	_, err := execute(t, "--config", site.Config.Path, "submit", paramFile)
	if !failure.Is(err, failure.KindExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}

	runDir := filepath.Join(site.Config.ProjectRootDir, "AB12", "AB12-ALO-8")
	var logs []string
	for _, dir := range []string{userDir, runDir} {
		found, _ := filepath.Glob(filepath.Join(dir, "Workflow_*.log"))
		logs = append(logs, found...)
	}
	if len(logs) != 1 {
		t.Fatalf("expected one run log, found %v", logs)
	}
	data, err := os.ReadFile(logs[0])
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	for _, want := range []string{"queue closed", "Job not submitted", "external tool error"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("run log does not contain %q:\n%s", want, data)
		}
	}
}
