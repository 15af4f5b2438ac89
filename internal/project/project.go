// Package project materializes a validated submission into a project folder
// tree: <project_root>/<project code>/<run name>/<STEP> with one job per step.
package project

import (
	"context"
	"os"
	"path/filepath"

	"github.com/aerox/simflow/internal/artifact"
	"github.com/aerox/simflow/internal/failure"
	"github.com/aerox/simflow/internal/fsutil"
	"github.com/aerox/simflow/internal/logging"
	"github.com/aerox/simflow/internal/models"
	"github.com/aerox/simflow/internal/steps"
)

const (
	projectDirMode = 0777
	jobDirMode     = 0755
)

// FolderState is what Materialize does with a job folder.
type FolderState int

const (
	// FolderFresh creates the folder.
	FolderFresh FolderState = iota
	// FolderReuseForRerun keeps an existing folder whose content is archived.
	FolderReuseForRerun
	// FolderReuseForCleanup keeps an existing folder being re-meshed in place.
	FolderReuseForCleanup
)

func (s FolderState) String() string {
	switch s {
	case FolderFresh:
		return "fresh"
	case FolderReuseForRerun:
		return "reuse-for-rerun"
	case FolderReuseForCleanup:
		return "reuse-for-cleanup"
	}
	return "unknown"
}

// DecideFolder applies the job folder state machine to the folder at path.
func DecideFolder(path string, exists, rerun, cleanup, firstStep bool) (FolderState, error) {
	switch {
	case !exists && rerun && firstStep:
		return 0, failure.State("cannot rerun with missing job folder %s", path)
	case !exists:
		return FolderFresh, nil
	case rerun:
		return FolderReuseForRerun, nil
	case cleanup:
		return FolderReuseForCleanup, nil
	}
	return 0, failure.State("job folder already exists: %s", path)
}

// LinkChecker reports whether a predecessor folder holds linkable sim state.
type LinkChecker interface {
	CanLink(ctx context.Context, prevFolder string) (bool, error)
}

// Materializer builds the project tree.
type Materializer struct {
	ProjectRoot string
	Resolver    *artifact.Resolver
	Links       LinkChecker
	logger      *logging.Logger
}

// NewMaterializer creates a materializer rooted at projectRoot.
func NewMaterializer(projectRoot string, resolver *artifact.Resolver, links LinkChecker, logger *logging.Logger) *Materializer {
	return &Materializer{
		ProjectRoot: projectRoot,
		Resolver:    resolver,
		Links:       links,
		logger:      logger,
	}
}

type plannedJob struct {
	job   *models.Job
	state FolderState
}

// Materialize checks every step first and only then creates folders, so a
// rejected submission leaves the tree untouched. Folders created here are
// listed in Project.CreatedPaths. On error the partially built project is
// returned with its CreatedPaths so the caller can clean up.
func (m *Materializer) Materialize(ctx context.Context, args *models.WorkflowArgs) (*models.Project, error) {
	p := &models.Project{
		Name:  args.ProjectName(),
		Dir:   filepath.Join(m.ProjectRoot, args.ProjectCode),
		Rerun: args.Rerun,
	}
	p.RunDir = filepath.Join(p.Dir, p.Name)

	if p.Rerun && !fsutil.Exists(p.Dir) {
		return p, failure.State("cannot rerun non existent project %s", p.Dir)
	}
	if p.Rerun && !fsutil.Exists(p.RunDir) {
		return p, failure.State("cannot rerun non existent project run %s", p.RunDir)
	}
	if p.Rerun && args.UserDir != filepath.Join(p.RunDir, steps.Run.String()) {
		m.logger.Info().Str("project", p.Name).Str("path", args.UserDir).
			Msg("Parameter file is not in the run folder, submitting as a fresh run")
		p.Rerun = false
	}

	first := args.Steps.First()
	planned := make([]plannedJob, 0, len(args.Steps))
	for _, step := range args.Steps {
		sw, err := m.Resolver.Resolve(args, step)
		if err != nil {
			return p, err
		}

		if step == first && sw.Sim() == "" {
			ok, err := m.linkPossible(ctx, p.RunDir, step)
			if err != nil {
				return p, err
			}
			if !ok {
				return p, failure.State("missing previous job folder or SIM_FILE parameter, step=%s", step)
			}
		}

		path := filepath.Join(p.RunDir, step.String())
		state, err := DecideFolder(path, fsutil.Exists(path), p.Rerun, args.Cleanup, step == first)
		if err != nil {
			return p, err
		}

		planned = append(planned, plannedJob{
			job:   &models.Job{Step: step, Path: path, Queue: args.Queue, Software: sw},
			state: state,
		})
	}

	if err := m.makeDir(p, p.Dir, projectDirMode); err != nil {
		return p, err
	}
	if err := m.makeDir(p, p.RunDir, 0); err != nil {
		return p, err
	}

	for _, pj := range planned {
		if pj.state == FolderFresh {
			if err := m.makeDir(p, pj.job.Path, jobDirMode); err != nil {
				return p, err
			}
		}
		m.logger.Debug().Str("step", pj.job.Step.String()).Str("path", pj.job.Path).
			Str("folder", pj.state.String()).Msg("Job folder ready")
		p.Jobs = append(p.Jobs, pj.job)
	}

	return p, nil
}

// makeDir creates dir when absent and records it. Mode 0 keeps the default.
func (m *Materializer) makeDir(p *models.Project, dir string, mode os.FileMode) error {
	if fsutil.Exists(dir) {
		return nil
	}
	if mode == 0 {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return failure.State("cannot create folder %s", dir).Wrap(err)
		}
	} else if err := fsutil.MakeDir(dir, mode); err != nil {
		return failure.State("cannot create folder %s", dir).Wrap(err)
	}
	p.CreatedPaths = append(p.CreatedPaths, dir)
	return nil
}

// linkPossible reports whether the predecessor of step has a folder whose sim
// state the job-state helper can link.
func (m *Materializer) linkPossible(ctx context.Context, runDir string, step steps.Step) (bool, error) {
	prev, ok := step.Previous()
	if !ok {
		return false, nil
	}
	prevFolder := filepath.Join(runDir, prev.String())
	if !fsutil.Exists(prevFolder) {
		return false, nil
	}
	m.logger.Info().Str("path", prevFolder).Msg("Folder for link exists")
	return m.Links.CanLink(ctx, prevFolder)
}

// Cleanup removes the folders created by this invocation, newest first, when
// they are still empty. Failures are logged and otherwise ignored.
func Cleanup(p *models.Project, logger *logging.Logger) {
	if p == nil {
		return
	}
	for i := len(p.CreatedPaths) - 1; i >= 0; i-- {
		dir := p.CreatedPaths[i]
		removed, err := fsutil.RemoveIfEmpty(dir)
		switch {
		case err != nil:
			logger.Warn().Err(err).Str("path", dir).Msg("Cannot remove folder")
		case removed:
			logger.Info().Str("path", dir).Msg("Removed folder")
		default:
			logger.Info().Str("path", dir).Msg("Folder not empty, left in place")
		}
	}
}
