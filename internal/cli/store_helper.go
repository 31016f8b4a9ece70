package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/imyousuf/entityquery/internal/config"
	"github.com/imyousuf/entityquery/internal/graph/embedded"
	"github.com/imyousuf/entityquery/internal/logging"
	"github.com/imyousuf/entityquery/internal/metrics"
)

// globalOptions carries the persistent flags shared by store commands.
type globalOptions struct {
	dbPath  string
	verbose bool
}

// session is what a store command works with: validated config, a logger,
// metrics on a private registry and the open store.
type session struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	store    *embedded.Store
}

// openSession loads and validates config, applies flag overrides and opens
// the graph store. Callers must Close the session.
func openSession(opts *globalOptions) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.dbPath != "" {
		cfg.Graph.DBPath = opts.dbPath
		cfg.Graph.InMemory = false
	}
	if opts.verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	var store *embedded.Store
	if cfg.Graph.InMemory {
		store, err = embedded.NewInMemoryStore()
	} else {
		store, err = embedded.NewStore(cfg.Graph.DBPath)
	}
	if err != nil {
		return nil, fmt.Errorf("open graph store: %w", err)
	}
	logger.Debug("opened graph store", "path", cfg.Graph.DBPath, "in_memory", cfg.Graph.InMemory)

	reg := prometheus.NewRegistry()
	return &session{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		metrics:  metrics.New(reg),
		store:    store,
	}, nil
}

// Close writes the metrics textfile when configured and closes the store.
func (s *session) Close() error {
	var errs []error
	if path := s.cfg.Metrics.Textfile; path != "" {
		if err := metrics.WriteTextfile(s.registry, path); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close graph store: %w", err))
	}
	return errors.Join(errs...)
}
