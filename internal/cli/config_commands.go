package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aerox/simflow/internal/batch"
	"github.com/aerox/simflow/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the workflow configuration",
		Long: `Workflow configuration commands.

Commands:
  show  - Display the resolved configuration
  check - Load the configuration and query the site helper scripts
  path  - Show the configuration file path`,
	}

	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigCheckCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the resolved configuration",
		Long:  `Load the workflow configuration and print it with every script path resolved.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			iniFile, err := cfg.ToINI()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", cfg.Path)
			_, err = iniFile.WriteTo(cmd.OutOrStdout())
			return err
		},
	}
}

// newConfigCheckCmd creates the 'config check' command.
func newConfigCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the configuration and site helper scripts",
		Long: `Load the workflow configuration, then run the queue-list and
solver-version scripts and report how many entries each returned.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := GetContext()
			runner := newRunner(cfg, GetLogger())

			queues, err := batch.LoadQueueCatalog(ctx, runner, cfg.ListQueues, batch.DefaultQueueAliases)
			if err != nil {
				return err
			}
			versions, err := batch.LoadVersionCatalog(ctx, runner, cfg.SolverVersions, batch.DefaultSolver)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration: %s\n", cfg.Path)
			fmt.Fprintf(out, "Queues:        %d\n", queues.Len())
			fmt.Fprintf(out, "Versions:      %d\n", versions.Len())
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.ResolveConfigPath(cfgFile))
		},
	}
}
