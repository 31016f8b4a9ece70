package watcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/imyousuf/entityquery/internal/graph"
)

// Handler is invoked for every debounced event.
type Handler func(ctx context.Context, evt Event) error

// Run feeds events to h until the channel closes. Handler errors are logged
// and do not stop the loop. It returns ctx.Err().
func Run(ctx context.Context, events <-chan Event, h Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for evt := range events {
		if err := h(ctx, evt); err != nil {
			logger.Error("handle change", "path", evt.Path, "op", evt.Op.String(), "error", err)
		}
	}
	return ctx.Err()
}

// Reimport returns a Handler that re-reads every source listed by sources
// into imp. All sources are concatenated because each import replaces the
// store contents.
func Reimport(imp graph.Importer, sources func() ([]string, error), logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, evt Event) error {
		stats, err := ImportSources(ctx, imp, sources)
		if err != nil {
			return err
		}
		logger.Info("reimported",
			"trigger", evt.Path,
			"op", evt.Op.String(),
			"entities", stats.Entities,
			"relationships", stats.Relationships,
			"terms", stats.Terms,
		)
		return nil
	}
}

// ImportSources imports the concatenation of the listed sources into imp.
func ImportSources(ctx context.Context, imp graph.Importer, sources func() ([]string, error)) (*graph.ImportStats, error) {
	paths, err := sources()
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	readers := make([]io.Reader, 0, 2*len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("open source: %w", err)
		}
		defer f.Close()
		// A trailing record without newline must not merge with the next file.
		readers = append(readers, f, strings.NewReader("\n"))
	}
	stats, err := imp.Import(ctx, io.MultiReader(readers...))
	if err != nil {
		return stats, fmt.Errorf("import sources: %w", err)
	}
	return stats, nil
}
