// Package cli implements the command-line interface for entityquery.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCmd builds the base command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	var (
		cfgFile string
		opts    globalOptions
	)

	rootCmd := &cobra.Command{
		Use:   "entityquery",
		Short: "entityquery - query a typed entity graph with walks and filters",
		Long: `entityquery stores a graph of labeled entities and tagged relationships,
indexes entity terms for prefix lookup, and runs declarative queries: a start
(ids, a term or a prefix), a chain of walk and filter steps, and a goal limit.

Commands:
  init       Create a .entityquery/ project directory
  config     Show the effective configuration
  import     Replace the graph with JSON-lines records
  export     Write the graph as JSON-lines records
  status     Show graph and term index stats
  search     Run a query file against the graph
  backup     Write a rotated backup of the graph database
  restore    Replace the graph with a backup
  watch      Re-import JSON-lines sources whenever they change`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags (available to all subcommands)
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: .entityquery/config.yaml)")
	flags.StringVar(&opts.dbPath, "db-path", "", "graph database directory (overrides graph.db_path)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")

	// Bind flags to viper
	if err := viper.BindPFlag("config_file", flags.Lookup("config")); err != nil {
		panic(fmt.Sprintf("failed to bind config flag: %v", err))
	}

	rootCmd.AddCommand(
		newInitCmd(),
		newConfigCmd(),
		newImportCmd(&opts),
		newExportCmd(&opts),
		newStatusCmd(&opts),
		newSearchCmd(&opts),
		newBackupCmd(&opts),
		newRestoreCmd(&opts),
		newWatchCmd(&opts),
		newCompletionCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
