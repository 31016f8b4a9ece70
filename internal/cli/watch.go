package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/imyousuf/entityquery/internal/watcher"
)

func newWatchCmd(opts *globalOptions) *cobra.Command {
	var (
		pattern  string
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <file-or-dir>...",
		Short: "Re-import JSON-lines sources whenever they change",
		Long: `Import the given JSON-lines files (and the files matching --pattern inside
the given directories) and re-import all of them whenever any changes.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.Close()

			w, err := watcher.New(watcher.Config{
				Paths:    args,
				Pattern:  pattern,
				Debounce: debounce,
				Logger:   s.logger,
			})
			if err != nil {
				return err
			}
			defer w.Close()

			// Set up signal handling.
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case <-sigCh:
					fmt.Fprintln(cmd.OutOrStdout(), "\nShutting down...")
					cancel()
				case <-ctx.Done():
				}
			}()

			stats, err := watcher.ImportSources(ctx, s.store, w.Sources)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d entities, %d relationships, %d terms\n",
				stats.Entities, stats.Relationships, stats.Terms)

			events, err := w.Start(ctx)
			if err != nil {
				return fmt.Errorf("start watcher: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Watching %d path(s)...\n", len(args))
			for _, p := range args {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", p)
			}

			err = watcher.Run(ctx, events, watcher.Reimport(s.store, w.Sources, s.logger), s.logger)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&pattern, "pattern", watcher.DefaultPattern, "glob selecting source files inside watched directories")
	cmd.Flags().DurationVar(&debounce, "debounce", watcher.DefaultDebounce, "quiet period before re-importing")
	return cmd
}
