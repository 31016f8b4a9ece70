package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/imyousuf/entityquery/internal/graph"
	"github.com/imyousuf/entityquery/internal/graph/embedded"
	"github.com/imyousuf/entityquery/internal/watcher"
)

func newImportCmd(opts *globalOptions) *cobra.Command {
	var merge bool

	cmd := &cobra.Command{
		Use:   "import <file.jsonl>...",
		Short: "Load JSON-lines records into the graph",
		Long: `Replace the graph and term index with the records in one or more JSON-lines
files. Each line is {"kind": "entity"|"relationship"|"term", "data": {...}};
entity data may carry a "terms" list to index the entity under.

With --merge the records are added to the stored graph instead: entities with
an existing id are replaced and relationships are added once.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.Close()

			var stats *graph.ImportStats
			if merge {
				stats, err = mergeFiles(cmd.Context(), s.store, args)
			} else {
				sources := func() ([]string, error) { return args, nil }
				stats, err = watcher.ImportSources(cmd.Context(), s.store, sources)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d entities, %d relationships, %d terms\n",
				stats.Entities, stats.Relationships, stats.Terms)
			return nil
		},
	}

	cmd.Flags().BoolVar(&merge, "merge", false, "add to the stored graph instead of replacing it")
	return cmd
}

// mergeFiles loads the stored graph into memory, reads the files on top of
// it and saves the result back.
func mergeFiles(ctx context.Context, store *embedded.Store, paths []string) (*graph.ImportStats, error) {
	mem, idx, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	total := &graph.ImportStats{}
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open source: %w", err)
		}
		stats, err := embedded.ReadJSONL(ctx, f, mem, idx)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		total.Entities += stats.Entities
		total.Relationships += stats.Relationships
		total.Terms += stats.Terms
	}
	if err := store.Save(ctx, mem, idx); err != nil {
		return nil, err
	}
	return total, nil
}

func newExportCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file.jsonl]",
		Short: "Write the graph as JSON-lines records",
		Long:  `Write every entity, relationship and term record to a file, or to stdout when no file is given.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.Close()

			if len(args) == 0 {
				return s.store.Export(cmd.Context(), cmd.OutOrStdout())
			}
			if err := exportFile(cmd.Context(), s.store, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported to %s\n", args[0])
			return nil
		},
	}
}

func exportFile(ctx context.Context, exp graph.Exporter, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := exp.Export(ctx, f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}
	return nil
}
