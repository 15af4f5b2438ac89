package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/aerox/simflow/internal/failure"
	"github.com/aerox/simflow/internal/logging"
	"github.com/aerox/simflow/internal/pathutil"
	"github.com/aerox/simflow/internal/workflow"
)

// newSubmitCmd creates the 'submit' command.
func newSubmitCmd() *cobra.Command {
	var (
		cleanup   bool
		depend    string
		runNumber string
	)

	cmd := &cobra.Command{
		Use:   "submit <parameter_file>",
		Short: "Stage and submit a PRE/RUN/POST chain",
		Long: `Validate a parameter file, build the job folders and submit every
requested step to the batch launcher.

The run log is written next to the parameter file and moved into the run
folder once the submission succeeds.

Examples:
  # Submit the steps listed in WORKFLOW_STEPS
  simflow submit parameters.txt

  # Re-submit a cleaned step after job 4242 finishes
  simflow submit -c -d 4242 RUN/parameters_cleanup.txt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if depend != "" && !cleanup {
				return failure.Validation("depend", depend, "option -d without -c makes no sense")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			logger := GetLogger()
			paramFile, err := pathutil.Expand(args[0])
			if err != nil {
				return failure.State("cannot resolve parameter file %s", args[0]).Wrap(err)
			}
			if err := logger.AttachFile(filepath.Dir(paramFile), logging.LogFileName("Workflow", time.Now())); err != nil {
				logger.Warn().Err(err).Msg("Cannot create run log file")
			}
			defer logger.Close()

			res, err := newWorkflow(cfg, logger).Submit(GetContext(), workflow.Options{
				ParameterFile: paramFile,
				Cleanup:       cleanup,
				DependsOn:     depend,
				RunNumber:     runNumber,
			})
			if err != nil {
				// The run log closes with this command, so the exit line is written here.
				logFailure(logger, err)
				return reportedError{err}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Project %s submitted (%s)\n", res.Project.Name, res.Project.RunDir)
			for _, job := range res.Project.Jobs {
				fmt.Fprintf(out, "  %-4s  %s\n", job.Step, job.ID())
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&cleanup, "cleanup", "c", false, "Cleanup mode: reuse existing job folders and disable mail")
	cmd.Flags().StringVarP(&depend, "depend", "d", "", "Job id the first step waits for (requires --cleanup)")
	cmd.Flags().StringVar(&runNumber, "run-number", "", "Override RUN_NUMBER from the parameter file")

	return cmd
}
