// Package artifact decides, per step, which files a job folder is staged with:
// step macros from the template, user files listed in input_data_file.txt, the
// simulation-state file, and the parameter file itself.
package artifact

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/aerox/simflow/internal/config"
	"github.com/aerox/simflow/internal/failure"
	"github.com/aerox/simflow/internal/logging"
	"github.com/aerox/simflow/internal/models"
	"github.com/aerox/simflow/internal/steps"
	"github.com/aerox/simflow/internal/validation"
)

// TemplateSimFile is the default simulation state shipped with a template.
const TemplateSimFile = "simulation.sim"

// Resolver builds the software artifact of each step.
type Resolver struct {
	cfg    *config.WorkflowConfig
	logger *logging.Logger
}

// NewResolver creates a resolver reading site paths from cfg.
func NewResolver(cfg *config.WorkflowConfig, logger *logging.Logger) *Resolver {
	return &Resolver{cfg: cfg, logger: logger}
}

// Resolve stages the artifact for step. Missing referenced files are fatal.
func (r *Resolver) Resolve(args *models.WorkflowArgs, step steps.Step) (*models.StarCCM, error) {
	sw, err := models.NewStarCCM(r.cfg.MainMacro)
	if err != nil {
		return nil, failure.State("main macro unavailable").Wrap(err)
	}

	if err := r.addTemplateFiles(sw, args, step); err != nil {
		return nil, err
	}

	if step == steps.Pre && r.cfg.IsPreSkipTemplate(args.Template) {
		r.logger.Debug().Str("step", step.String()).Str("template", args.Template).Msg("Skipping user files")
	} else if err := r.addUserFiles(sw, args.UserDir); err != nil {
		return nil, err
	}

	if err := r.resolveSim(sw, args, step); err != nil {
		return nil, err
	}

	if err := sw.Files.Add(args.ParameterFile); err != nil {
		return nil, failure.State("parameter file unavailable").Wrap(err)
	}

	r.logger.Debug().Str("step", step.String()).Int("files", sw.Files.Len()).Str("sim", sw.Sim()).Msg("Artifact resolved")
	return sw, nil
}

// TemplateDir returns the macro folder for step: <template>/macros/<STEP>, or
// <default_template_dir>/<STEP> when no template is set.
func (r *Resolver) TemplateDir(template string, step steps.Step) string {
	if template == "" {
		return filepath.Join(r.cfg.DefaultTemplateDir, step.String())
	}
	return filepath.Join(template, "macros", step.String())
}

func (r *Resolver) addTemplateFiles(sw *models.StarCCM, args *models.WorkflowArgs, step steps.Step) error {
	if args.UsesMacroTemplate() {
		macro := filepath.Join(args.UserDir, steps.Run.Macro())
		if err := sw.Files.Add(macro); err != nil {
			return failure.State("template %s found, but %s does not exist", models.RunWithMacro, macro)
		}
		return nil
	}

	dir := r.TemplateDir(args.Template, step)
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return failure.State("cannot read template folder %s", dir).Wrap(err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			r.logger.Debug().Str("path", filepath.Join(dir, e.Name())).Msg("Ignoring template subfolder")
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return failure.State("no template files available for the job %s", step)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := sw.Files.Add(filepath.Join(dir, name)); err != nil {
			return failure.State("template file unavailable").Wrap(err)
		}
	}
	return nil
}

func (r *Resolver) addUserFiles(sw *models.StarCCM, userDir string) error {
	path := filepath.Join(userDir, config.InputDataFileName)
	data, err := config.ReadInputDataFile(path)
	if err != nil {
		return err
	}

	names := append(append([]string{}, data.TemplateFiles...), data.PartFiles...)
	for _, name := range names {
		file, err := validation.ResolveInDirectory(name, userDir)
		if err != nil {
			return failure.State("input data file references %s outside %s", name, userDir).Wrap(err)
		}
		if err := sw.Files.Add(file); err != nil {
			return failure.State("user file listed in %s is missing", config.InputDataFileName).Wrap(err)
		}
	}

	if err := sw.Files.Add(path); err != nil {
		return failure.State("input data file unavailable").Wrap(err)
	}
	return nil
}

// resolveSim picks the simulation state: PRE uses the user file in cleanup
// mode or when given, else the template default; the first step uses the
// user file when given; otherwise the state stays unresolved for the linker.
func (r *Resolver) resolveSim(sw *models.StarCCM, args *models.WorkflowArgs, step steps.Step) error {
	var sim string
	switch {
	case step == steps.Pre && (args.Cleanup || args.SimFile != ""):
		sim = args.SimFile
	case step == steps.Pre:
		sim = filepath.Join(args.Template, "sim_file", TemplateSimFile)
	case args.Steps.IsFirst(step) && args.SimFile != "":
		sim = args.SimFile
	default:
		return nil
	}

	if err := sw.SetSim(sim); err != nil {
		return failure.State("sim file unavailable for step %s", step).Wrap(err)
	}
	return nil
}
