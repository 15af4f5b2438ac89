// Package workflow runs one submission end to end: environment, catalogs,
// validation, folder materialization, staging or archiving, submission of
// each step chained on the previous job id, and registration with the
// job-state helper.
package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/aerox/simflow/internal/archive"
	"github.com/aerox/simflow/internal/artifact"
	"github.com/aerox/simflow/internal/batch"
	"github.com/aerox/simflow/internal/config"
	"github.com/aerox/simflow/internal/failure"
	"github.com/aerox/simflow/internal/ledger"
	"github.com/aerox/simflow/internal/logging"
	"github.com/aerox/simflow/internal/models"
	"github.com/aerox/simflow/internal/progress"
	"github.com/aerox/simflow/internal/project"
	"github.com/aerox/simflow/internal/staging"
	"github.com/aerox/simflow/internal/validation"
)

// Options are the per-invocation inputs besides the parameter file content.
type Options struct {
	ParameterFile string
	Cleanup       bool
	DependsOn     string // explicit initial dependency, cleanup mode only
	RunNumber     string // overrides RUN_NUMBER when set
}

// Result describes a completed submission.
type Result struct {
	Args    *models.WorkflowArgs
	Project *models.Project
}

// Workflow wires the site configuration to the helper scripts.
type Workflow struct {
	cfg      *config.WorkflowConfig
	runner   batch.Runner
	logger   *logging.Logger
	progress progress.Reporter

	// setenv applies the global environment. Replaced in tests.
	setenv func(key, value string) error
}

// New creates a workflow. A nil reporter disables copy progress.
func New(cfg *config.WorkflowConfig, runner batch.Runner, reporter progress.Reporter, logger *logging.Logger) *Workflow {
	return &Workflow{
		cfg:      cfg,
		runner:   runner,
		logger:   logger,
		progress: reporter,
		setenv:   os.Setenv,
	}
}

// Submit runs the submission described by opts. On failure, folders created
// by this invocation are removed when still empty.
func (w *Workflow) Submit(ctx context.Context, opts Options) (*Result, error) {
	if opts.DependsOn != "" && !opts.Cleanup {
		return nil, failure.Validation("depend", opts.DependsOn, "option -d without -c makes no sense")
	}

	paramFile, err := filepath.Abs(opts.ParameterFile)
	if err != nil {
		return nil, failure.State("cannot resolve parameter file %s", opts.ParameterFile).Wrap(err)
	}
	w.logger.Info().Str("path", paramFile).Bool("cleanup", opts.Cleanup).Msg("Execution")

	if err := w.importEnvironment(ctx); err != nil {
		return nil, err
	}

	params, err := config.ReadParameterFile(paramFile)
	if err != nil {
		return nil, err
	}

	deps, err := w.loadCatalogs(ctx)
	if err != nil {
		return nil, err
	}

	args, err := validation.Validate(validation.Request{
		Params:        params,
		ParameterFile: paramFile,
		Cleanup:       opts.Cleanup,
		RunNumber:     opts.RunNumber,
	}, deps)
	if err != nil {
		return nil, err
	}
	w.logger.Info().Str("project", args.ProjectName()).Str("steps", args.Steps.String()).
		Bool("rerun", args.Rerun).Msg("Parameters validated")

	jobState := &batch.JobState{Runner: w.runner, Script: w.cfg.JobState}
	resolver := artifact.NewResolver(w.cfg, w.logger)
	materializer := project.NewMaterializer(w.cfg.ProjectRootDir, resolver, jobState, w.logger)

	p, err := materializer.Materialize(ctx, args)
	if err == nil {
		err = w.stageAndSubmit(ctx, args, p, jobState, opts.DependsOn)
	}
	if err != nil {
		project.Cleanup(p, w.logger)
		return nil, err
	}
	return &Result{Args: args, Project: p}, nil
}

func (w *Workflow) importEnvironment(ctx context.Context) error {
	env, err := batch.LoadEnvironment(ctx, w.runner, w.cfg.GlobalEnv)
	if err != nil {
		return failure.WrapExternalTool(err, "cannot load global environment")
	}
	for k, v := range env {
		if err := w.setenv(k, v); err != nil {
			return failure.State("cannot update environment variable %s", k).Wrap(err)
		}
	}
	w.logger.Debug().Int("variables", len(env)).Msg("Global environment imported")
	return nil
}

func (w *Workflow) loadCatalogs(ctx context.Context) (validation.Deps, error) {
	queues, err := batch.LoadQueueCatalog(ctx, w.runner, w.cfg.ListQueues, batch.DefaultQueueAliases)
	if err != nil {
		return validation.Deps{}, err
	}
	versions, err := batch.LoadVersionCatalog(ctx, w.runner, w.cfg.SolverVersions, batch.DefaultSolver)
	if err != nil {
		return validation.Deps{}, err
	}
	w.logger.Debug().Int("queues", queues.Len()).Msg("Catalogs loaded")
	return validation.Deps{Queues: queues, Versions: versions, TemplateRoot: w.cfg.TemplateRootDir}, nil
}

func (w *Workflow) stageAndSubmit(ctx context.Context, args *models.WorkflowArgs, p *models.Project, jobState *batch.JobState, dependsOn string) error {
	holdID, err := w.holdJobID(ctx, p, jobState)
	if err != nil {
		return err
	}
	if dependsOn == "" {
		dependsOn = holdID
	} else {
		w.logger.Info().Str("job_id", dependsOn).Msg("Using explicit dependency")
	}

	stager := staging.NewStager(jobState, w.progress, w.logger)
	if p.Rerun {
		if err := w.logger.MoveFile(p.RunDir); err != nil {
			w.logger.Warn().Err(err).Msg("Cannot move log file")
		}
		if err := archive.NewEngine(args.Iterator, stager, w.logger).Archive(p); err != nil {
			return err
		}
	} else {
		if err := stager.CopyTemplates(p); err != nil {
			return err
		}
		if err := stager.CopyResources(args, p); err != nil {
			return err
		}
	}
	if err := stager.LinkSimFiles(ctx, p); err != nil {
		return err
	}

	if err := w.submitJobs(ctx, args, p, dependsOn); err != nil {
		return err
	}

	regs := make([]batch.Registration, 0, len(p.Jobs))
	for _, job := range p.Jobs {
		regs = append(regs, batch.Registration{Step: job.Step, JobID: job.ID()})
	}
	if err := jobState.Register(ctx, p.RunDir, regs); err != nil {
		return err
	}

	if !p.Rerun {
		if err := w.logger.MoveFile(p.RunDir); err != nil {
			w.logger.Warn().Err(err).Msg("Cannot move log file")
		}
	}
	return nil
}

// holdJobID asks the job-state helper for a running predecessor to wait on.
// It is skipped when the first job has its own sim state.
func (w *Workflow) holdJobID(ctx context.Context, p *models.Project, jobState *batch.JobState) (string, error) {
	first := p.Jobs[0]
	if first.Software.Sim() != "" {
		return "", nil
	}
	prev, ok := first.Step.Previous()
	if !ok {
		return "", nil
	}
	id, err := jobState.HoldJobID(ctx, p.RunDir, prev)
	if err != nil {
		return "", err
	}
	if id == "" {
		w.logger.Info().Str("step", prev.String()).Msg("Cannot retrieve previous job id")
	} else {
		w.logger.Info().Str("step", prev.String()).Str("job_id", id).Msg("Holding on previous job")
	}
	return id, nil
}

// submitJobs submits every job in order, each depending on the job before.
func (w *Workflow) submitJobs(ctx context.Context, args *models.WorkflowArgs, p *models.Project, dependsOn string) error {
	launcher := &batch.Launcher{Runner: w.runner, Path: w.cfg.JobLauncher}
	book := ledger.NewManager(p.RunDir)
	if err := book.Load(); err != nil {
		var bad *ledger.UnreadableError
		if errors.As(err, &bad) && bad.Aside != "" {
			w.logger.Warn().Err(bad.Err).Str("path", book.Path()).Str("moved_to", bad.Aside).Msg("Cannot read submission ledger, starting a new one")
		} else {
			w.logger.Warn().Err(err).Str("path", book.Path()).Msg("Cannot read submission ledger, rows are not recorded")
		}
	}

	for _, job := range p.Jobs {
		rec, err := book.Begin(job, dependsOn)
		if err != nil {
			w.logger.Warn().Err(err).Str("path", book.Path()).Msg("Cannot update submission ledger")
		}

		id, err := launcher.Submit(ctx, batch.Submission{
			Software:  job.Software.Software(),
			Version:   args.SolverVersion,
			Sim:       job.Software.Sim(),
			Name:      p.Name,
			Queue:     job.Queue,
			Walltime:  args.Walltime,
			DependsOn: dependsOn,
			OutputDir: job.Path,
			Macro:     job.Software.Macro(),
			Mail:      !args.Cleanup,
		})
		if err == nil {
			err = job.SetID(id)
		}
		if err != nil {
			if lerr := book.Fail(rec, err); lerr != nil {
				w.logger.Warn().Err(lerr).Str("path", book.Path()).Msg("Cannot update submission ledger")
			}
			return failure.WrapExternalTool(err, "submission of step %s failed", job.Step)
		}
		if err := book.Succeed(rec, id); err != nil {
			w.logger.Warn().Err(err).Str("path", book.Path()).Msg("Cannot update submission ledger")
		}

		w.logger.Info().Str("step", job.Step.String()).Str("job_id", id).Msgf("Job submitted with ID: %s", id)
		dependsOn = id
	}
	return nil
}
