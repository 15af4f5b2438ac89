package workflow

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aerox/simflow/internal/batch"
	"github.com/aerox/simflow/internal/batch/batchtest"
	"github.com/aerox/simflow/internal/failure"
	"github.com/aerox/simflow/internal/ledger"
	"github.com/aerox/simflow/internal/logging"
	"github.com/aerox/simflow/internal/steps"
	"github.com/aerox/simflow/internal/testutil"
)

const projectName = "AB12-ALO-7"

func siteRules(extra ...batchtest.Rule) []batchtest.Rule {
	rules := append([]batchtest.Rule{}, extra...)
	return append(rules,
		batchtest.Rule{Match: "global_env.sh", Output: "SIMFLOW_SITE=aerox\nnot a variable\n"},
		batchtest.Rule{Match: "list_queues.sh", Output: "aerox.q;AeroX\nbig.q;Big\n"},
		batchtest.Rule{Match: "versions.sh", Output: "17.02.008;17.04.007\n"},
		batchtest.Rule{Match: "/PRE -os", Output: "Submitted jobid: 1001\n"},
		batchtest.Rule{Match: "/RUN -os", Output: "Submitted jobid: 1002\n"},
		batchtest.Rule{Match: "/POST -os", Output: "Submitted jobid: 1003\n"},
	)
}

func writeParams(t *testing.T, dir string, overrides map[string]string) string {
	t.Helper()
	params := map[string]string{
		"PROJECT_CODE":   "AB12",
		"TASK_CODE":      "ALO",
		"RUN_NUMBER":     "7",
		"DESCRIPTION":    "front wing sweep",
		"SOLVER_VERSION": "17.02.008",
		"WALLTIME":       "24:00:00",
		"QUEUE":          "AeroX",
		"WORKFLOW_STEPS": "ALL",
		"TEMPLATE":       testutil.TemplateName,
	}
	for k, v := range overrides {
		params[k] = v
	}
	var sb strings.Builder
	sb.WriteString("* submission parameters\n")
	for k, v := range params {
		if v == "-" {
			continue
		}
		fmt.Fprintf(&sb, "%s: %s\n", k, v)
	}
	path := filepath.Join(dir, "parameters.txt")
	testutil.WriteFile(t, path, sb.String())
	return path
}

type harness struct {
	site   *testutil.Site
	runner *batchtest.Runner
	wf     *Workflow
	env    map[string]string
	logger *logging.Logger
}

func newHarness(t *testing.T, rules ...batchtest.Rule) *harness {
	t.Helper()
	h := &harness{
		site:   testutil.NewSite(t),
		runner: batchtest.NewRunner(siteRules(rules...)...),
		env:    make(map[string]string),
		logger: logging.NewLogger(io.Discard),
	}
	h.wf = New(h.site.Config, h.runner, nil, h.logger)
	h.wf.setenv = func(k, v string) error {
		h.env[k] = v
		return nil
	}
	t.Cleanup(func() { h.logger.Close() })
	return h
}

func launches(r *batchtest.Runner) []batch.Command {
	return r.CallsMatching("xf_Run")
}

func argAfter(cmd batch.Command, flag string) string {
	for i := 0; i+1 < len(cmd.Args); i++ {
		if cmd.Args[i] == flag {
			return cmd.Args[i+1]
		}
	}
	return ""
}

func TestSubmit_FreshChain(t *testing.T) {
	h := newHarness(t)
	userDir := h.site.UserDir(t, "case")
	paramFile := writeParams(t, userDir, nil)
	logName := logging.LogFileName("Workflow", testNow)
	if err := h.logger.AttachFile(userDir, logName); err != nil {
		t.Fatal(err)
	}
	h.logger.Info().Msg("start")

	res, err := h.wf.Submit(context.Background(), Options{ParameterFile: paramFile})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	p := res.Project

	if h.env["SIMFLOW_SITE"] != "aerox" {
		t.Errorf("global environment not imported: %v", h.env)
	}
	if len(p.Jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(p.Jobs))
	}

	calls := launches(h.runner)
	if len(calls) != 3 {
		t.Fatalf("expected 3 launches, got %d", len(calls))
	}
	wantDeps := []string{"", "1001", "1002"}
	for i, job := range p.Jobs {
		cmd := calls[i]
		if got := argAfter(cmd, "-o"); got != job.Path {
			t.Errorf("launch %d output dir = %s, want %s", i, got, job.Path)
		}
		if got := argAfter(cmd, "-d"); got != wantDeps[i] {
			t.Errorf("%s depends on %q, want %q", job.Step, got, wantDeps[i])
		}
		if got := argAfter(cmd, "-j"); got != projectName {
			t.Errorf("job name = %s", got)
		}
		if got := argAfter(cmd, "-q"); got != "aerox.q" {
			t.Errorf("queue = %s", got)
		}
		if cmd.Args[len(cmd.Args)-1] != "mail=true" {
			t.Errorf("mail flag = %s", cmd.Args[len(cmd.Args)-1])
		}
		if got := argAfter(cmd, "-i"); got != filepath.Join(job.Path, projectName+".sim") {
			t.Errorf("%s sim = %s", job.Step, got)
		}
		if _, err := os.Stat(filepath.Join(job.Path, job.Step.Macro())); err != nil {
			t.Errorf("%s macro not staged", job.Step)
		}
	}
	if p.Jobs[2].ID() != "1003" {
		t.Errorf("POST id = %s", p.Jobs[2].ID())
	}

	pre := p.Job(steps.Pre)
	if data, _ := os.ReadFile(pre.Software.Sim()); string(data) != "template sim state" {
		t.Errorf("PRE sim content = %q", data)
	}
	for _, step := range []steps.Step{steps.Run, steps.Post} {
		info, err := os.Stat(p.Job(step).Software.Sim())
		if err != nil || info.Size() != 0 {
			t.Errorf("%s placeholder: %v %v", step, info, err)
		}
	}

	adds := h.runner.CallsMatching(" --add ")
	if len(adds) != 1 {
		t.Fatalf("expected one registration, got %d", len(adds))
	}
	wantAdd := []string{h.site.Config.JobState, "--add", p.RunDir, "PRE,1001", "RUN,1002", "POST,1003"}
	if strings.Join(adds[0].Args, " ") != strings.Join(wantAdd, " ") {
		t.Errorf("registration = %v", adds[0].Args)
	}

	book := ledger.NewManager(p.RunDir)
	if err := book.Load(); err != nil {
		t.Fatal(err)
	}
	if book.CountByStatus(ledger.StatusSuccess) != 3 {
		t.Errorf("ledger = %+v", book.Records())
	}

	if _, err := os.Stat(filepath.Join(p.RunDir, logName)); err != nil {
		t.Error("run log must be moved into the run folder")
	}
	if _, err := os.Stat(filepath.Join(userDir, logName)); !os.IsNotExist(err) {
		t.Error("run log left next to the parameter file")
	}
	if _, err := os.Stat(filepath.Join(pre.Path, "report-AB12-7.xlsm")); err != nil {
		t.Error("workbook not copied into PRE")
	}
}

func TestSubmit_ValidationFailureCreatesNothing(t *testing.T) {
	h := newHarness(t)
	paramFile := writeParams(t, h.site.UserDir(t, "case"), map[string]string{"WALLTIME": "25:00:00"})

	_, err := h.wf.Submit(context.Background(), Options{ParameterFile: paramFile})
	if !failure.Is(err, failure.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	entries, _ := os.ReadDir(h.site.Config.ProjectRootDir)
	if len(entries) != 0 {
		t.Errorf("project root touched: %d entries", len(entries))
	}
	if len(launches(h.runner)) != 0 {
		t.Error("nothing may be submitted")
	}
}

func TestSubmit_DependRequiresCleanup(t *testing.T) {
	h := newHarness(t)
	paramFile := writeParams(t, h.site.UserDir(t, "case"), nil)

	_, err := h.wf.Submit(context.Background(), Options{ParameterFile: paramFile, DependsOn: "42"})
	if !failure.Is(err, failure.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(h.runner.Calls()) != 0 {
		t.Error("no helper may run")
	}
}

func TestSubmit_CleanupWithDependency(t *testing.T) {
	h := newHarness(t)
	userDir := h.site.UserDir(t, "case")
	testutil.WriteFile(t, filepath.Join(userDir, "meshed.sim"), "meshed state")
	paramFile := writeParams(t, userDir, map[string]string{"WORKFLOW_STEPS": "PRE", "SIM_FILE": "meshed.sim"})

	res, err := h.wf.Submit(context.Background(), Options{ParameterFile: paramFile, Cleanup: true, DependsOn: "42"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	calls := launches(h.runner)
	if len(calls) != 1 {
		t.Fatalf("expected one launch, got %d", len(calls))
	}
	if got := argAfter(calls[0], "-d"); got != "42" {
		t.Errorf("dependency = %q, want 42", got)
	}
	if calls[0].Args[len(calls[0].Args)-1] != "mail=false" {
		t.Error("cleanup runs must not send mail")
	}
	pre := res.Project.Job(steps.Pre)
	if data, _ := os.ReadFile(pre.Software.Sim()); string(data) != "meshed state" {
		t.Errorf("PRE sim content = %q", data)
	}
	if _, err := os.Stat(filepath.Join(pre.Path, "report-AB12-7.xlsm")); !os.IsNotExist(err) {
		t.Error("workbook must not be copied in cleanup mode")
	}
}

func TestSubmit_HoldsOnRunningPredecessor(t *testing.T) {
	h := newHarness(t, batchtest.Rule{Match: "job_state_handler.sh -w", Output: "PRE running\n555\n"})
	userDir := h.site.UserDir(t, "case")
	paramFile := writeParams(t, userDir, map[string]string{"WORKFLOW_STEPS": "RUN POST"})
	if err := os.MkdirAll(filepath.Join(h.site.Config.ProjectRootDir, "AB12", projectName, "PRE"), 0755); err != nil {
		t.Fatal(err)
	}

	res, err := h.wf.Submit(context.Background(), Options{ParameterFile: paramFile})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	calls := launches(h.runner)
	if len(calls) != 2 {
		t.Fatalf("expected 2 launches, got %d", len(calls))
	}
	if got := argAfter(calls[0], "-d"); got != "555" {
		t.Errorf("RUN depends on %q, want 555", got)
	}
	if got := argAfter(calls[1], "-d"); got != "1002" {
		t.Errorf("POST depends on %q, want 1002", got)
	}
	if len(h.runner.CallsMatching("job_state_handler.sh -s")) != 1 {
		t.Error("RUN sim state must be linked from PRE")
	}
	run := res.Project.Job(steps.Run)
	if run.Software.Sim() != filepath.Join(run.Path, projectName+".sim") {
		t.Errorf("RUN sim = %s", run.Software.Sim())
	}
}

func TestSubmit_PredecessorFailed(t *testing.T) {
	h := newHarness(t, batchtest.Rule{Match: "job_state_handler.sh -w", Output: "STOP\n"})
	paramFile := writeParams(t, h.site.UserDir(t, "case"), map[string]string{"WORKFLOW_STEPS": "RUN"})
	runDir := filepath.Join(h.site.Config.ProjectRootDir, "AB12", projectName)
	if err := os.MkdirAll(filepath.Join(runDir, "PRE"), 0755); err != nil {
		t.Fatal(err)
	}

	_, err := h.wf.Submit(context.Background(), Options{ParameterFile: paramFile})
	if !failure.Is(err, failure.KindExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(runDir, "RUN")); !os.IsNotExist(err) {
		t.Error("empty RUN folder must be cleaned up")
	}
	if _, err := os.Stat(filepath.Join(runDir, "PRE")); err != nil {
		t.Error("pre-existing folder must be kept")
	}
}

func TestSubmit_LauncherErrorStopsChain(t *testing.T) {
	h := newHarness(t, batchtest.Rule{Match: "/RUN -os", Output: "ERROR: queue closed\n"})
	paramFile := writeParams(t, h.site.UserDir(t, "case"), nil)

	_, err := h.wf.Submit(context.Background(), Options{ParameterFile: paramFile})
	if !failure.Is(err, failure.KindExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if n := strings.Count(err.Error(), failure.KindExternalTool.String()); n != 1 {
		t.Errorf("error classified %d times: %v", n, err)
	}
	if n := len(launches(h.runner)); n != 2 {
		t.Errorf("expected 2 launches before stopping, got %d", n)
	}
	if len(h.runner.CallsMatching(" --add ")) != 0 {
		t.Error("nothing may be registered after a failed submission")
	}

	runDir := filepath.Join(h.site.Config.ProjectRootDir, "AB12", projectName)
	book := ledger.NewManager(runDir)
	if err := book.Load(); err != nil {
		t.Fatal(err)
	}
	if book.CountByStatus(ledger.StatusSuccess) != 1 || book.CountByStatus(ledger.StatusFailed) != 1 {
		t.Errorf("ledger = %+v", book.Records())
	}
	if _, err := os.Stat(filepath.Join(runDir, "PRE")); err != nil {
		t.Error("staged folders stay in place for inspection")
	}
}

func TestSubmit_Rerun(t *testing.T) {
	h := newHarness(t)
	runDir := filepath.Join(h.site.Config.ProjectRootDir, "AB12", projectName)
	runFolder := h.site.UserDir(t, filepath.Join(runDir, "RUN"))
	testutil.WriteFile(t, filepath.Join(runFolder, "solver.log"), "first pass")
	testutil.WriteFile(t, filepath.Join(runFolder, projectName+"@00150.sim"), "state")
	paramFile := writeParams(t, runFolder, map[string]string{
		"WORKFLOW_STEPS": "RUN POST",
		"ITERATOR":       "150",
		"SIM_FILE":       projectName + "@00150.sim",
	})

	res, err := h.wf.Submit(context.Background(), Options{ParameterFile: paramFile})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !res.Project.Rerun {
		t.Fatal("expected a rerun")
	}

	if _, err := os.Stat(filepath.Join(runDir, "RUN-150", "solver.log")); err != nil {
		t.Error("previous output must be archived under RUN-150")
	}
	if _, err := os.Stat(filepath.Join(runFolder, "parameters.txt")); err != nil {
		t.Error("tracked parameter file must stay live")
	}
	run := res.Project.Job(steps.Run)
	if run.Software.Sim() != filepath.Join(runFolder, projectName+"@00150.sim") {
		t.Errorf("RUN sim = %s", run.Software.Sim())
	}
	post := res.Project.Job(steps.Post)
	if _, err := os.Stat(filepath.Join(post.Path, steps.Post.Macro())); err != nil {
		t.Error("new POST folder must be staged with templates")
	}
	if len(launches(h.runner)) != 2 {
		t.Errorf("expected 2 launches, got %d", len(launches(h.runner)))
	}
}

var testNow = time.Date(2025, 3, 26, 14, 5, 9, 0, time.UTC)
