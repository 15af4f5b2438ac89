// Package cli provides the command-line interface for simflow.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aerox/simflow/internal/batch"
	"github.com/aerox/simflow/internal/config"
	"github.com/aerox/simflow/internal/failure"
	"github.com/aerox/simflow/internal/logging"
	"github.com/aerox/simflow/internal/pathutil"
	"github.com/aerox/simflow/internal/progress"
	"github.com/aerox/simflow/internal/version"
	"github.com/aerox/simflow/internal/workflow"
)

var (
	// Global flags
	cfgFile string
	verbose bool
	debug   bool

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "simflow",
		Short: "simflow - PRE/RUN/POST simulation job submission",
		Long: `simflow ` + version.Version + ` - Built: ` + version.BuildTime + `
Stages and submits STAR-CCM+ simulation chains to the cluster batch system.

A submission reads a parameter file, builds one folder per workflow step
(PRE, RUN, POST) under the project root, stages templates, macros and the
simulation state, and submits each step with a dependency on the previous one.

Configuration is read from --config, $` + config.EnvConfigPath + `, or
` + config.DefaultConfigName + ` next to the executable.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewDefaultCLILogger()
			if verbose || debug {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Workflow configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug output (same as --verbose)")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	completionCmd := &cobra.Command{
		Use:   "completion [bash|zsh]",
		Short: "Enable tab-completion for simflow commands",
		Long: `Generate shell completion scripts for simflow.

QUICK TEST (temporary, current session only):
  source <(simflow completion bash)`,
	}
	completionCmd.AddCommand(&cobra.Command{
		Use:   "bash",
		Short: "Generate bash completion script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.Root().GenBashCompletion(cmd.OutOrStdout())
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:   "zsh",
		Short: "Generate zsh completion script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.Root().GenZshCompletion(cmd.OutOrStdout())
		},
	})
	rootCmd.AddCommand(completionCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer cancelFunc()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\nReceived signal %v, stopping helper scripts...\n", sig)
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.Execute()

	signal.Stop(sigChan)
	close(sigChan)

	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newSubmitCmd())
	rootCmd.AddCommand(newCleanupCmd())
	rootCmd.AddCommand(newConfigCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// reportedError marks an error whose exit line is already in the log.
type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

// LogFailure writes the single exit line for err unless a command already did.
func LogFailure(err error) {
	var done reportedError
	if errors.As(err, &done) {
		return
	}
	logFailure(GetLogger(), err)
}

func logFailure(l *logging.Logger, err error) {
	l.Error().Str("kind", failure.KindOf(err).String()).Err(err).Msg("Job not submitted")
}

// GetContext returns the global CLI context with signal handling.
// This context will be cancelled when the user presses Ctrl+C.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}

// loadConfig reads the workflow configuration selected by --config.
func loadConfig() (*config.WorkflowConfig, error) {
	path := config.ResolveConfigPath(cfgFile)
	if cfgFile != "" {
		expanded, err := pathutil.Expand(cfgFile)
		if err != nil {
			return nil, failure.Configuration("config", cfgFile, "cannot resolve configuration path").Wrap(err)
		}
		path = expanded
	}
	GetLogger().Debug().Str("path", path).Msg("Loading workflow configuration")
	return config.LoadWorkflowConfig(path)
}

// newRunner is replaced in tests.
var newRunner = func(cfg *config.WorkflowConfig, logger *logging.Logger) batch.Runner {
	return batch.NewExecRunner(cfg.CommandTimeout, logger)
}

func newWorkflow(cfg *config.WorkflowConfig, logger *logging.Logger) *workflow.Workflow {
	return workflow.New(cfg, newRunner(cfg, logger), progress.ForTerminal(), logger)
}
