package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aerox/simflow/internal/cleanup"
	"github.com/aerox/simflow/internal/config"
	"github.com/aerox/simflow/internal/failure"
)

// codeSelection holds the mutually exclusive run selectors of 'cleanup'.
type codeSelection struct {
	single string
	span   []string
	list   []string
	all    bool
}

// resolve returns the job codes to clean, in order.
func (s codeSelection) resolve(cfg *config.WorkflowConfig, project string) ([]string, error) {
	switch {
	case s.single != "":
		return []string{s.single}, nil
	case len(s.span) > 0:
		if len(s.span) != 2 {
			return nil, failure.Validation("range", fmt.Sprint(s.span), "a range needs exactly a begin and an end job code")
		}
		return cleanup.ExpandRange(s.span[0], s.span[1])
	case len(s.list) > 0:
		return s.list, nil
	case s.all:
		return cleanup.ListJobCodes(cfg.ProjectRootDir, project)
	}
	return nil, failure.Validation("selection", "", "one of --single, --range, --list or --all is required")
}

// newCleanupCmd creates the 'cleanup' command.
func newCleanupCmd() *cobra.Command {
	var (
		project string
		sel     codeSelection
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Reduce finished runs to their meshed simulation state",
		Long: `Clean the run folders of a project.

For each run the newest folder of every step is kept, the first step holding a
real sim file is re-submitted in cleanup mode, and the sim files of the other
steps are deleted. Successive runs are chained on the previous cleanup job.

Examples:
  simflow cleanup -p AB12 -s ALO-001
  simflow cleanup -p AB12 -r ALO-001,ALO-009
  simflow cleanup -p AB12 -l ALO-001,ALO-004
  simflow cleanup -p AB12 -a`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			codes, err := sel.resolve(cfg, project)
			if err != nil {
				return err
			}

			logger := GetLogger()
			logger.Info().Str("project", project).Strs("codes", codes).Msg("Cleanup")
			cleaner := cleanup.NewCleaner(cfg, newWorkflow(cfg, logger), logger)
			return cleaner.Clean(GetContext(), project, codes)
		},
	}

	cmd.Flags().StringVarP(&project, "project", "p", "", "Project code (required)")
	cmd.Flags().StringVarP(&sel.single, "single", "s", "", "Clean one job code, e.g. ALO-001")
	cmd.Flags().StringSliceVarP(&sel.span, "range", "r", nil, "Clean a range of job codes: begin,end")
	cmd.Flags().StringSliceVarP(&sel.list, "list", "l", nil, "Clean a list of job codes")
	cmd.Flags().BoolVarP(&sel.all, "all", "a", false, "Clean every run folder of the project")

	cmd.MarkFlagRequired("project")
	cmd.MarkFlagsMutuallyExclusive("single", "range", "list", "all")
	cmd.MarkFlagsOneRequired("single", "range", "list", "all")

	return cmd
}
