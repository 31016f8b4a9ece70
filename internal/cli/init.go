package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/imyousuf/entityquery/internal/config"
)

func newInitCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a .entityquery/ project directory",
		Long: `Initialize an entityquery project in the current directory.

Creates a .entityquery/ directory containing config.yaml (or config.toml
with --format toml). The graph database and backups are created next to it
on first use.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "yaml" && format != "toml" {
				return fmt.Errorf("--format must be yaml or toml, got %q", format)
			}
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("get working directory: %w", err)
			}

			projectDir := filepath.Join(cwd, config.ProjectDirName)
			if _, err := os.Stat(projectDir); err == nil {
				return fmt.Errorf("%s already exists; project is already initialized", projectDir)
			}
			if err := os.MkdirAll(projectDir, 0755); err != nil {
				return fmt.Errorf("create project directory: %w", err)
			}

			configPath := filepath.Join(projectDir, config.ProjectConfigName+"."+format)
			if err := config.WriteConfig(config.Default(), configPath); err != nil {
				return fmt.Errorf("write config file: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created %s\n", configPath)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Next steps:")
			fmt.Fprintln(out, "  1. Run 'entityquery import <file.jsonl>' to load a graph")
			fmt.Fprintln(out, "  2. Run 'entityquery search <query.yaml>' to query it")
			fmt.Fprintln(out, "  3. Add to .gitignore:")
			fmt.Fprintln(out, "       .entityquery/graph.db/")
			fmt.Fprintln(out, "       .entityquery/backups/")
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "yaml", "config file format (yaml or toml)")
	return cmd
}
