// Package cleanup reduces finished run folders to their meshed simulation
// state. For each run it keeps one folder per step, re-submits the first step
// holding a real sim file through the workflow in cleanup mode, and deletes
// the sim files of the other steps. Successive runs are chained on the job id
// of the previous cleanup.
package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aerox/simflow/internal/config"
	"github.com/aerox/simflow/internal/failure"
	"github.com/aerox/simflow/internal/fsutil"
	"github.com/aerox/simflow/internal/logging"
	"github.com/aerox/simflow/internal/staging"
	"github.com/aerox/simflow/internal/steps"
	"github.com/aerox/simflow/internal/workflow"
)

// ParameterFileName is the parameter file written into the cleaned step folder.
const ParameterFileName = "parameters_cleanup.txt"

// minSimSize is the size below which a kept sim file is a leftover placeholder.
const minSimSize = 10

// stateFiles are solver status files removed before a step is re-submitted.
var stateFiles = []string{config.MainMacroName, "ABORT", "ABORT~", "TERMINATED", "FAILED", "FINISHED"}

// Submitter runs the workflow for a parameter file.
type Submitter interface {
	Submit(ctx context.Context, opts workflow.Options) (*workflow.Result, error)
}

// Cleaner cleans run folders of one project root.
type Cleaner struct {
	ProjectRoot string
	Defaults    config.CleanupDefaults
	Submitter   Submitter
	logger      *logging.Logger
	now         func() time.Time
}

// NewCleaner creates a cleaner using the [CLEANUP] defaults of cfg.
func NewCleaner(cfg *config.WorkflowConfig, submitter Submitter, logger *logging.Logger) *Cleaner {
	return &Cleaner{
		ProjectRoot: cfg.ProjectRootDir,
		Defaults:    cfg.Cleanup,
		Submitter:   submitter,
		logger:      logger,
		now:         time.Now,
	}
}

// RunDir returns the run folder of a job code.
func (c *Cleaner) RunDir(project, code string) string {
	return filepath.Join(c.ProjectRoot, project, project+"-"+code)
}

// Clean cleans the run folders of the given job codes in order. Folders that
// are missing or not editable by the current user are skipped.
func (c *Cleaner) Clean(ctx context.Context, project string, codes []string) error {
	prevID := ""
	for _, code := range codes {
		runDir := c.RunDir(project, code)
		if err := c.logger.AttachFile(filepath.Dir(runDir), logging.LogFileName("Cleanup-"+code, c.now())); err != nil {
			c.logger.Warn().Err(err).Msg("Cannot create cleanup log file")
		}

		switch {
		case !fsutil.Exists(runDir):
			c.logger.Info().Str("path", runDir).Msg("Folder does not exist")
			continue
		case !ownedByUser(runDir):
			c.logger.Info().Str("path", runDir).Msg("Folder not cleaned: not the right owner")
			continue
		case !isEditableDir(runDir):
			c.logger.Info().Str("path", runDir).Msg("Folder not cleaned: not editable folder")
			continue
		}

		id, err := c.CleanRun(ctx, project, code, prevID)
		if err != nil {
			return err
		}
		if id != "" {
			prevID = id
			c.logger.Info().Str("path", runDir).Str("job_id", id).Msg("Folder cleanup launched")
			if err := c.logger.MoveFile(runDir); err != nil {
				c.logger.Warn().Err(err).Msg("Cannot move cleanup log file")
			}
		}
	}
	return c.logger.Close()
}

// CleanRun cleans one run folder and returns the id of the submitted cleanup
// job, empty when nothing was submitted.
func (c *Cleaner) CleanRun(ctx context.Context, project, code, prevID string) (string, error) {
	runDir := c.RunDir(project, code)

	kept := make(map[steps.Step]string, len(steps.Canonical))
	for _, step := range steps.Canonical {
		path, err := c.PurgeStep(runDir, step)
		if err != nil {
			return "", err
		}
		kept[step] = path
	}

	var target steps.Step
	for _, step := range steps.Canonical {
		if path := kept[step]; path != "" && ContainsSimFile(path) {
			target = step
			break
		}
	}

	id := ""
	for _, step := range steps.Canonical {
		if step != target {
			c.removeSimFiles(kept[step])
			continue
		}
		var err error
		if id, err = c.resubmit(ctx, project, code, step, prevID); err != nil {
			return "", err
		}
	}
	c.logger.Info().Str("path", runDir).Msg("Folder cleaned")
	return id, nil
}

// PurgeStep deletes the <STEP>*-FAILED folders of runDir, keeps the most
// recently modified remaining <STEP>* folder, deletes the others, and renames
// the kept one to <STEP>. It returns the kept path, empty when there is none.
// Folders the current user does not own or cannot modify are left alone.
func (c *Cleaner) PurgeStep(runDir string, step steps.Step) (string, error) {
	name := step.String()
	entries, err := os.ReadDir(runDir)
	if err != nil {
		return "", failure.State("cannot read run folder %s", runDir).Wrap(err)
	}

	type candidate struct {
		path  string
		mtime time.Time
	}
	var candidates []candidate
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), name) {
			continue
		}
		path := filepath.Join(runDir, e.Name())
		if strings.HasSuffix(e.Name(), "-FAILED") {
			c.removeFolder(path)
			continue
		}
		info, err := e.Info()
		if err != nil {
			return "", failure.State("cannot stat %s", path).Wrap(err)
		}
		candidates = append(candidates, candidate{path: path, mtime: info.ModTime()})
	}
	if len(candidates) == 0 {
		return "", nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].mtime.Before(candidates[j].mtime)
	})
	keep := candidates[len(candidates)-1].path
	for _, old := range candidates[:len(candidates)-1] {
		c.removeFolder(old.path)
	}

	stepPath := filepath.Join(runDir, name)
	if keep != stepPath {
		c.logger.Info().Str("src", keep).Str("path", stepPath).Msg("Folder renamed")
		if err := os.Rename(keep, stepPath); err != nil {
			return "", failure.State("cannot rename %s", keep).Wrap(err)
		}
	}
	return stepPath, nil
}

func (c *Cleaner) removeFolder(path string) {
	if !ownedByUser(path) {
		c.logger.Warn().Str("path", path).Msg("You are not the owner of this resource")
		return
	}
	if !isEditableDir(path) {
		c.logger.Warn().Str("path", path).Msg("Permission denied")
		return
	}
	if err := os.RemoveAll(path); err != nil {
		c.logger.Warn().Err(err).Str("path", path).Msg("Cannot delete folder")
		return
	}
	c.logger.Info().Str("path", path).Msg("Folder deleted")
}

// ContainsSimFile reports whether dir holds a regular (non-symlink) .sim file.
func ContainsSimFile(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.Type()&os.ModeSymlink == 0 && strings.HasSuffix(e.Name(), ".sim") {
			return true
		}
	}
	return false
}

// simFiles lists the .sim and .sim~ entries of dir.
func simFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sim") || strings.HasSuffix(e.Name(), ".sim~") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}

// PurgeSimFiles keeps the largest non-symlink file of paths and deletes the
// other non-symlink ones. A kept file smaller than 10 bytes is a placeholder:
// it is deleted too and "" is returned.
func (c *Cleaner) PurgeSimFiles(paths []string) (string, error) {
	type sized struct {
		path string
		size int64
	}
	var files []sized
	for _, p := range paths {
		info, err := os.Lstat(p)
		if err != nil {
			return "", failure.State("cannot stat %s", p).Wrap(err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			continue
		}
		files = append(files, sized{path: p, size: info.Size()})
	}
	if len(files) == 0 {
		return "", nil
	}

	sort.SliceStable(files, func(i, j int) bool { return files[i].size < files[j].size })
	keep := files[len(files)-1]
	for _, f := range files[:len(files)-1] {
		c.removeFile(f.path)
	}

	if keep.size < minSimSize {
		if err := os.Remove(keep.path); err != nil {
			return "", failure.State("cannot delete placeholder %s", keep.path).Wrap(err)
		}
		c.logger.Info().Str("path", keep.path).Msg("Deleted placeholder sim file")
		return "", nil
	}
	return keep.path, nil
}

func (c *Cleaner) removeFile(path string) {
	if !isEditableFile(path) {
		c.logger.Warn().Str("path", path).Msg("File not editable, kept")
		return
	}
	if err := os.Remove(path); err != nil {
		c.logger.Warn().Err(err).Str("path", path).Msg("Cannot delete file")
		return
	}
	c.logger.Info().Str("path", path).Msg("Deleted")
}

// removeSimFiles deletes every .sim and .sim~ entry of dir, symlinks included.
func (c *Cleaner) removeSimFiles(dir string) {
	if dir == "" || !fsutil.Exists(dir) {
		return
	}
	if !ownedByUser(dir) || !isEditableDir(dir) {
		c.logger.Warn().Str("path", dir).Msg("Folder not editable, sim files kept")
		return
	}
	files, err := simFiles(dir)
	if err != nil {
		c.logger.Warn().Err(err).Str("path", dir).Msg("Cannot list sim files")
		return
	}
	c.logger.Info().Str("path", dir).Msg("Cleaning")
	for _, f := range files {
		info, err := os.Lstat(f)
		if err != nil {
			continue
		}
		if info.Mode()&os.ModeSymlink != 0 {
			if err := os.Remove(f); err != nil {
				c.logger.Warn().Err(err).Str("path", f).Msg("Cannot delete link")
			}
			continue
		}
		c.removeFile(f)
	}
}

// resubmit prepares the step folder and submits it in cleanup mode.
func (c *Cleaner) resubmit(ctx context.Context, project, code string, step steps.Step, prevID string) (string, error) {
	runDir := c.RunDir(project, code)
	stepDir := filepath.Join(runDir, step.String())
	if !ownedByUser(stepDir) || !isEditableDir(stepDir) {
		c.logger.Warn().Str("path", stepDir).Msg("Step folder not editable, not submitted")
		return "", nil
	}

	files, err := simFiles(stepDir)
	if err != nil {
		return "", failure.State("cannot list sim files in %s", stepDir).Wrap(err)
	}
	sim, err := c.PurgeSimFiles(files)
	if err != nil {
		return "", err
	}
	if sim == "" {
		c.logger.Info().Str("path", stepDir).Msg("No sim file found, job not submitted")
		return "", nil
	}
	c.logger.Info().Str("step", step.String()).Str("path", sim).Msg("Sim file to enmesh")

	paramFile := filepath.Join(stepDir, ParameterFileName)
	if err := c.writeParameters(paramFile, project, code, step, filepath.Base(sim)); err != nil {
		return "", err
	}

	marker := filepath.Join(runDir, staging.JobStepsMarker)
	if isEditableFile(marker) {
		if err := os.Remove(marker); err != nil {
			return "", failure.State("cannot delete %s", marker).Wrap(err)
		}
		c.logger.Info().Str("path", marker).Msg("Deleted")
	} else {
		c.logger.Info().Str("path", marker).Msg("File .JOB_STEPS is not editable")
	}
	c.removeStateFiles(stepDir, step)

	res, err := c.Submitter.Submit(ctx, workflow.Options{
		ParameterFile: paramFile,
		Cleanup:       true,
		DependsOn:     prevID,
	})
	if err != nil {
		return "", err
	}
	if len(res.Project.Jobs) == 0 || res.Project.Jobs[0].ID() == "" {
		return "", failure.ExternalTool("cleanup of %s submitted without a job id", stepDir)
	}
	return res.Project.Jobs[0].ID(), nil
}

func (c *Cleaner) writeParameters(path, project, code string, step steps.Step, sim string) error {
	task, run := DecodeJobCode(code, c.Defaults.TaskCode)
	params := map[string]string{
		config.KeyProjectCode:   project,
		config.KeyTaskCode:      task,
		config.KeyRunNumber:     run,
		config.KeyDescription:   "cleanup of " + project + "-" + code,
		config.KeySolverVersion: c.Defaults.SolverVersion,
		config.KeyWalltime:      c.Defaults.Walltime,
		config.KeyQueue:         c.Defaults.Queue,
		config.KeyWorkflowSteps: step.String(),
		config.KeySimFile:       sim,
	}
	if c.Defaults.Template != "" {
		params[config.KeyTemplate] = c.Defaults.Template
	}
	order := []string{
		config.KeyProjectCode, config.KeyTaskCode, config.KeyRunNumber, config.KeyDescription,
		config.KeySolverVersion, config.KeyWalltime, config.KeyQueue, config.KeyWorkflowSteps,
		config.KeyTemplate, config.KeySimFile,
	}
	if err := config.WriteParameterFile(path, order, params); err != nil {
		return failure.State("cannot write %s", path).Wrap(err)
	}
	c.logger.Info().Str("path", path).Str("step", step.String()).Str("sim", sim).Msg("Cleanup parameters written")
	return nil
}

// removeStateFiles deletes solver status files and the step macro so the
// folder can be submitted again.
func (c *Cleaner) removeStateFiles(dir string, step steps.Step) {
	names := append(append([]string{}, stateFiles...), step.Macro())
	for _, name := range names {
		path := filepath.Join(dir, name)
		if !fsutil.Exists(path) || !isEditableFile(path) {
			continue
		}
		if err := os.Remove(path); err != nil {
			c.logger.Warn().Err(err).Str("path", path).Msg("Cannot delete file")
			continue
		}
		c.logger.Info().Str("path", path).Msg("Deleted")
	}
}
