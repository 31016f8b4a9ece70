package cli

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/imyousuf/entityquery/internal/graph"
	"github.com/imyousuf/entityquery/internal/terms"
)

type statusReport struct {
	Graph *graph.GraphStats `json:"graph"`
	Terms terms.Stats       `json:"terms"`
}

func newStatusCmd(opts *globalOptions) *cobra.Command {
	var (
		jsonOut bool
		label   string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show graph and term index stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			if label != "" {
				return printLabel(cmd, s, label)
			}

			stats, err := s.store.Stats(ctx)
			if err != nil {
				return fmt.Errorf("get stats: %w", err)
			}
			idx, err := s.store.LoadTerms(ctx)
			if err != nil {
				return err
			}
			report := statusReport{Graph: stats, Terms: idx.Stats()}

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			fmt.Fprintf(out, "Entity Graph Status\n")
			fmt.Fprintf(out, "===================\n\n")
			fmt.Fprintf(out, "  Entities:      %d\n", stats.EntityCount)
			fmt.Fprintf(out, "  Relationships: %d\n", stats.RelationshipCount)
			fmt.Fprintf(out, "  Terms:         %d (%d postings over %d entities)\n\n",
				report.Terms.Terms, report.Terms.Postings, report.Terms.Entities)

			printCounts(cmd, "Entities by label", stats.EntitiesByLabel)
			printCounts(cmd, "Relationships by tag", stats.RelationshipsByTag)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	cmd.Flags().StringVar(&label, "label", "", "list the entities carrying this label instead")
	return cmd
}

func printLabel(cmd *cobra.Command, s *session, label string) error {
	ctx := cmd.Context()
	ids, err := s.store.EntitiesWithLabel(ctx, label)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, id := range ids {
		e, err := s.store.Entity(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%-24s  %s\n", e.ID, e.Value)
	}
	fmt.Fprintf(out, "\n%d %s entities\n", len(ids), label)
	return nil
}

func printCounts(cmd *cobra.Command, title string, counts map[string]int64) {
	if len(counts) == 0 {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "  %s:\n", title)
	for _, k := range slices.Sorted(maps.Keys(counts)) {
		fmt.Fprintf(out, "    %-20s %d\n", k, counts[k])
	}
	fmt.Fprintln(out)
}
