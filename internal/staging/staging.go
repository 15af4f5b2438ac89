// Package staging fills job folders: template and user files, the main macro,
// the simulation state, workbook resources and the sim-state links between
// consecutive steps.
package staging

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/aerox/simflow/internal/failure"
	"github.com/aerox/simflow/internal/fsutil"
	"github.com/aerox/simflow/internal/logging"
	"github.com/aerox/simflow/internal/models"
	"github.com/aerox/simflow/internal/progress"
	"github.com/aerox/simflow/internal/steps"
)

// JobStepsMarker is the job-state helper's record of the steps already
// submitted for a run. It lives in the run folder.
const JobStepsMarker = ".JOB_STEPS"

// WorkbookExt is the extension of the report workbook shipped in <template>/output.
const WorkbookExt = ".xlsm"

// SymlinkCreator links a predecessor's sim state into the following step folder.
type SymlinkCreator interface {
	CreateSymlink(ctx context.Context, prevFolder string) (string, error)
}

// Stager copies artifacts into job folders and resolves their sim state.
type Stager struct {
	Links    SymlinkCreator
	Progress progress.Reporter
	logger   *logging.Logger
}

// NewStager creates a stager. A nil reporter disables copy progress.
func NewStager(links SymlinkCreator, reporter progress.Reporter, logger *logging.Logger) *Stager {
	if reporter == nil {
		reporter = progress.Discard
	}
	return &Stager{Links: links, Progress: reporter, logger: logger}
}

// CopyTemplates stages every job of p.
func (s *Stager) CopyTemplates(p *models.Project) error {
	for _, job := range p.Jobs {
		if err := s.CopyTemplate(job, p.Name); err != nil {
			return err
		}
	}
	return nil
}

// CopyTemplate copies the staged files and the main macro into the job
// folder, then copies the sim state to <jobPath>/<name>.sim. Files already in
// the folder are kept. Macro and sim are re-pointed at their copies.
func (s *Stager) CopyTemplate(job *models.Job, name string) error {
	for _, src := range job.Software.Files.Paths() {
		if err := s.copy(src, filepath.Join(job.Path, filepath.Base(src)), nil); err != nil {
			return err
		}
	}

	macro := filepath.Join(job.Path, filepath.Base(job.Software.Macro()))
	if err := s.copy(job.Software.Macro(), macro, nil); err != nil {
		return err
	}
	if err := job.Software.SetMacro(macro); err != nil {
		return failure.State("main macro not staged for step %s", job.Step).Wrap(err)
	}

	if job.Software.Sim() == "" {
		return nil
	}
	sim := filepath.Join(job.Path, name+".sim")
	if err := s.copy(job.Software.Sim(), sim, s.Progress); err != nil {
		return err
	}
	if err := job.Software.SetSim(sim); err != nil {
		return failure.State("sim file not staged for step %s", job.Step).Wrap(err)
	}
	return nil
}

func (s *Stager) copy(src, dst string, reporter progress.Reporter) error {
	copied, err := fsutil.CopyFile(src, dst, fsutil.CopyOptions{IgnoreExisting: true, Progress: reporter})
	if errors.Is(err, fsutil.ErrSamePath) {
		s.logger.Warn().Str("path", src).Msg("Cannot copy the same path")
		return nil
	}
	if err != nil {
		return failure.State("cannot copy file %s", src).Wrap(err)
	}
	if copied {
		s.logger.Debug().Str("src", src).Str("path", dst).Msg("File staged")
	}
	return nil
}

// CopyResources copies the first workbook found in <template>/output into the
// PRE and POST folders as <name>-<project code>-<run number>.xlsm. Nothing is
// copied in cleanup mode or when the template has no output folder.
func (s *Stager) CopyResources(args *models.WorkflowArgs, p *models.Project) error {
	if args.Cleanup || args.Template == "" || args.UsesMacroTemplate() {
		return nil
	}

	outputDir := filepath.Join(args.Template, "output")
	workbook, err := firstWorkbook(outputDir)
	if err != nil {
		s.logger.Info().Str("path", outputDir).Msg(err.Error())
		return nil
	}
	if workbook == "" {
		return nil
	}

	base := strings.TrimSuffix(filepath.Base(workbook), WorkbookExt)
	name := base + "-" + args.ProjectCode + "-" + args.RunNumber + WorkbookExt
	for _, step := range []steps.Step{steps.Pre, steps.Post} {
		job := p.Job(step)
		if job == nil {
			continue
		}
		dst := filepath.Join(job.Path, name)
		if err := s.copy(workbook, dst, nil); err != nil {
			return err
		}
		s.logger.Info().Str("step", step.String()).Str("path", dst).Msg("Workbook copied")
	}
	return nil
}

func firstWorkbook(dir string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", errors.New("template output folder does not exist")
	}
	if !info.IsDir() {
		return "", errors.New("template output path is not a folder")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), WorkbookExt) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", nil
}

// LinkSimFiles resolves the sim state of every job still without one.
//
// PRE always has its own state. A later job in the chain gets an empty
// <name>.sim placeholder, produced by its predecessor at run time. The first
// job gets a symlink to its predecessor's state through the job-state helper,
// unless the run's .JOB_STEPS marker shows the predecessor is still pending,
// in which case it also gets a placeholder.
func (s *Stager) LinkSimFiles(ctx context.Context, p *models.Project) error {
	for i, job := range p.Jobs {
		if job.Step == steps.Pre || job.Software.Sim() != "" {
			continue
		}

		sim := filepath.Join(job.Path, p.Name+".sim")
		if i > 0 {
			if err := s.placeholder(job, sim); err != nil {
				return err
			}
			continue
		}

		prev, _ := job.Step.Previous()
		pending, err := markerHasStep(filepath.Join(p.RunDir, JobStepsMarker), prev)
		if err != nil {
			return err
		}
		if pending {
			if err := s.placeholder(job, sim); err != nil {
				return err
			}
			continue
		}

		if err := s.symlink(ctx, job); err != nil {
			return err
		}
		s.logger.Info().Str("step", job.Step.String()).Str("path", sim).Msg("Sim file linked")
		job.Software.ExpectSim(sim)
	}
	return nil
}

func (s *Stager) placeholder(job *models.Job, sim string) error {
	if err := fsutil.Touch(sim); err != nil {
		return failure.State("cannot create placeholder sim file for step %s", job.Step).Wrap(err)
	}
	if err := job.Software.SetSim(sim); err != nil {
		return failure.State("placeholder sim file missing for step %s", job.Step).Wrap(err)
	}
	s.logger.Debug().Str("step", job.Step.String()).Str("path", sim).Msg("Placeholder sim file created")
	return nil
}

func (s *Stager) symlink(ctx context.Context, job *models.Job) error {
	prev, ok := job.Step.Previous()
	if !ok {
		return failure.State("step %s has no predecessor to link from", job.Step)
	}
	prevFolder := filepath.Join(filepath.Dir(job.Path), prev.String())
	if !fsutil.Exists(prevFolder) {
		return failure.State("missing SIM_FILE parameter or missing previous job folder %s", prevFolder)
	}
	out, err := s.Links.CreateSymlink(ctx, prevFolder)
	if err != nil {
		return err
	}
	s.logger.Debug().Str("step", job.Step.String()).Str("output", strings.TrimSpace(out)).Msg("Symlink helper output")
	return nil
}

// markerHasStep reports whether the first line of the marker names step. A
// missing marker reports false.
func markerHasStep(marker string, step steps.Step) (bool, error) {
	f, err := os.Open(marker)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, failure.State("cannot read %s", marker).Wrap(err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return false, sc.Err()
	}
	return strings.Contains(sc.Text(), step.String()), nil
}
