// Package validation checks submission parameters and builds WorkflowArgs.
//
// Validate performs no filesystem mutation: it only checks that referenced
// paths exist and looks values up in the queue and solver-version catalogs.
package validation

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/aerox/simflow/internal/config"
	"github.com/aerox/simflow/internal/failure"
	"github.com/aerox/simflow/internal/models"
	"github.com/aerox/simflow/internal/steps"
	"github.com/aerox/simflow/internal/util/sanitize"
)

var (
	walltimePattern = regexp.MustCompile(`^(?:(?:[0-1]?[0-9]|2?[0-3]):[0-5]?[0-9]:[0-5]?[0-9]|24:0?0:0?0)$`)
	digitsPattern   = regexp.MustCompile(`^[0-9]+$`)
)

// requiredKeys are checked in this order before anything else.
var requiredKeys = []string{
	config.KeyProjectCode,
	config.KeyTaskCode,
	config.KeyRunNumber,
	config.KeyDescription,
	config.KeySolverVersion,
	config.KeyWalltime,
	config.KeyQueue,
	config.KeyWorkflowSteps,
}

// QueueResolver maps a user queue value to a queue code.
type QueueResolver interface {
	Resolve(value string) (string, bool)
}

// VersionChecker reports whether a solver version is installed.
type VersionChecker interface {
	Contains(version string) bool
}

// Deps are the catalogs and site paths validation reads.
type Deps struct {
	Queues       QueueResolver
	Versions     VersionChecker
	TemplateRoot string
}

// Request is one submission to validate.
type Request struct {
	Params        map[string]string
	ParameterFile string // absolute path; its directory is the user dir
	Cleanup       bool
	RunNumber     string // overrides RUN_NUMBER when set
}

// Validate checks every parameter in a fixed order and returns the immutable
// WorkflowArgs. The first failing parameter is reported.
func Validate(req Request, deps Deps) (*models.WorkflowArgs, error) {
	params := make(map[string]string, len(req.Params))
	for k, v := range req.Params {
		params[k] = strings.TrimSpace(v)
	}
	if req.RunNumber != "" {
		params[config.KeyRunNumber] = req.RunNumber
	}

	for _, key := range requiredKeys {
		if params[key] == "" {
			return nil, failure.Validation(key, "", "missing parameter: %s", key)
		}
	}

	args := &models.WorkflowArgs{
		Description:   sanitize.Text(params[config.KeyDescription]),
		Cleanup:       req.Cleanup,
		ParameterFile: req.ParameterFile,
		UserDir:       filepath.Dir(req.ParameterFile),
	}

	args.ProjectCode = sanitize.ProjectCode(params[config.KeyProjectCode])
	if args.ProjectCode == "" {
		return nil, failure.Validation(config.KeyProjectCode, params[config.KeyProjectCode], "invalid project code")
	}
	args.TaskCode = sanitize.SanitizeField(params[config.KeyTaskCode])
	if err := ValidateFilename(args.TaskCode); err != nil {
		return nil, failure.Validation(config.KeyTaskCode, args.TaskCode, "invalid task code").Wrap(err)
	}
	args.RunNumber = NormalizeRunNumber(sanitize.SanitizeField(params[config.KeyRunNumber]))
	if err := ValidateFilename(args.RunNumber); err != nil {
		return nil, failure.Validation(config.KeyRunNumber, args.RunNumber, "invalid run number").Wrap(err)
	}

	version := params[config.KeySolverVersion]
	if !deps.Versions.Contains(version) {
		return nil, failure.Validation(config.KeySolverVersion, version, "invalid solver version")
	}
	args.SolverVersion = version

	walltime := params[config.KeyWalltime]
	if !ValidWalltime(walltime) {
		return nil, failure.Validation(config.KeyWalltime, walltime, "invalid walltime")
	}
	args.Walltime = walltime

	queue, ok := deps.Queues.Resolve(params[config.KeyQueue])
	if !ok {
		return nil, failure.Validation(config.KeyQueue, params[config.KeyQueue], "invalid queue")
	}
	args.Queue = queue

	list, err := steps.ParseList(params[config.KeyWorkflowSteps])
	if err != nil {
		return nil, failure.Validation(config.KeyWorkflowSteps, params[config.KeyWorkflowSteps], "invalid workflow steps").Wrap(err)
	}
	args.Steps = list

	if iterator := params[config.KeyIterator]; iterator != "" && list.IsFirst(steps.Run) {
		if !digitsPattern.MatchString(iterator) {
			return nil, failure.Validation(config.KeyIterator, iterator, "invalid iterator")
		}
		args.Iterator = iterator
	}

	if steps.SimFileRule.Allows(list) {
		if err := validateSimFile(args, params[config.KeySimFile]); err != nil {
			return nil, err
		}
	}

	if err := validateTemplate(args, params[config.KeyTemplate], deps.TemplateRoot); err != nil {
		return nil, err
	}

	return args, nil
}

// ValidWalltime reports whether value is HH:MM:SS with hours 0 to 23, or exactly 24:00:00.
func ValidWalltime(value string) bool {
	return walltimePattern.MatchString(value)
}

// NormalizeRunNumber reduces a full run code PROJECT-TASK-NNN to NNN.
func NormalizeRunNumber(value string) string {
	if value == models.DummyRunNumber {
		return value
	}
	if parts := strings.Split(value, "-"); len(parts) == 3 && parts[2] != "" {
		return parts[2]
	}
	return value
}

// validateSimFile resolves SIM_FILE and decides rerun: a sim file, an
// iterator, RUN first, and an invocation directory named RUN.
func validateSimFile(args *models.WorkflowArgs, value string) error {
	if value == "" {
		return nil
	}
	if args.Iterator != "" && args.Steps.IsFirst(steps.Run) && filepath.Base(args.UserDir) == steps.Run.String() {
		args.Rerun = true
	}

	path := value
	if !filepath.IsAbs(path) {
		path = filepath.Join(args.UserDir, value)
	}
	if _, err := os.Stat(path); err != nil {
		return failure.Validation(config.KeySimFile, value, "invalid sim file").Wrap(err)
	}
	args.SimFile = path
	return nil
}

// validateTemplate requires a template when PRE or POST runs. The literal
// run_with_macro is accepted as is; any other value names a directory under
// the template root.
func validateTemplate(args *models.WorkflowArgs, value, templateRoot string) error {
	if value == "" {
		if args.Steps.Contains(steps.Pre) || args.Steps.Contains(steps.Post) {
			return failure.Validation(config.KeyTemplate, "", "missing template parameter")
		}
		return nil
	}
	if value == models.RunWithMacro {
		args.Template = models.RunWithMacro
		return nil
	}

	path := filepath.Join(templateRoot, value)
	if _, err := os.Stat(path); err != nil {
		return failure.Validation(config.KeyTemplate, value, "invalid template").Wrap(err)
	}
	args.Template = path
	return nil
}
