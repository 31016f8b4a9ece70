// Package config handles configuration loading and validation for entityquery.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/imyousuf/entityquery/internal/logging"
)

const (
	// ProjectDirName is the per-project directory holding config and data.
	ProjectDirName = ".entityquery"
	// ProjectConfigName is the config file name inside ProjectDirName, without extension.
	ProjectConfigName = "config"
	// ProjectConfigFile is the config file written by init.
	ProjectConfigFile = ProjectConfigName + ".yaml"
	// EnvPrefix prefixes every environment override, e.g. ENTITYQUERY_LOG_LEVEL.
	EnvPrefix = "ENTITYQUERY"
)

// Config holds all configuration for entityquery.
type Config struct {
	Graph   GraphConfig   `mapstructure:"graph" yaml:"graph" toml:"graph"`
	Search  SearchConfig  `mapstructure:"search" yaml:"search" toml:"search"`
	Log     LogConfig     `mapstructure:"log" yaml:"log" toml:"log"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" toml:"metrics"`

	// ConfigDir is the project directory the config was discovered in.
	// Empty when no project directory was found.
	ConfigDir string `mapstructure:"-" yaml:"-" toml:"-"`
}

// GraphConfig holds graph storage configuration.
type GraphConfig struct {
	// DBPath is the badger directory. Relative paths resolve against the
	// project directory.
	DBPath string `mapstructure:"db_path" yaml:"db_path" toml:"db_path"`
	// InMemory runs badger without touching disk. DBPath is ignored.
	InMemory bool `mapstructure:"in_memory" yaml:"in_memory" toml:"in_memory"`
	// BackupDir receives backups. Relative paths resolve like DBPath.
	BackupDir string `mapstructure:"backup_dir" yaml:"backup_dir" toml:"backup_dir"`
	// BackupKeep is how many backups survive rotation. Zero keeps all.
	BackupKeep int `mapstructure:"backup_keep" yaml:"backup_keep" toml:"backup_keep"`
}

// SearchConfig holds searcher configuration.
type SearchConfig struct {
	// DefaultLimit caps results when a query has no goal limit. Zero is unbounded.
	DefaultLimit int `mapstructure:"default_limit" yaml:"default_limit" toml:"default_limit"`
	// ClosureCacheCost sizes the shared closure cache in entity ids. Zero disables it.
	ClosureCacheCost int64 `mapstructure:"closure_cache_cost" yaml:"closure_cache_cost" toml:"closure_cache_cost"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" toml:"level"`
	Format string `mapstructure:"format" yaml:"format" toml:"format"`
}

type MetricsConfig struct {
	// Textfile, when set, receives the metrics in Prometheus text format
	// after each command.
	Textfile string `mapstructure:"textfile" yaml:"textfile" toml:"textfile"`
}

// Load loads configuration from file, environment variables, and defaults.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	var configDir string
	// Check if a specific config file was set via CLI flag (stored in global viper)
	if configFile := viper.GetString("config_file"); configFile != "" {
		v.SetConfigFile(configFile)
		configDir = filepath.Dir(configFile)
	} else {
		if cwd, err := os.Getwd(); err == nil {
			configDir = DiscoverProjectDir(cwd)
		}
		if configDir != "" {
			v.SetConfigName(ProjectConfigName)
			v.AddConfigPath(configDir)
		}
	}

	// Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal into struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	cfg.ConfigDir = configDir
	cfg.resolvePaths()

	return &cfg, nil
}

// Default returns the configuration used when nothing overrides a key.
// Paths are left relative.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults are plain scalars, so decoding cannot fail.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// DiscoverProjectDir walks up from start looking for ProjectDirName and
// returns its path, or "" when none exists.
func DiscoverProjectDir(start string) string {
	dir, err := filepath.Abs(start)
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ProjectDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// resolvePaths anchors relative storage paths at the project directory, or
// at ./.entityquery when there is none.
func (c *Config) resolvePaths() {
	base := c.ConfigDir
	if base == "" {
		base = ProjectDirName
	}
	if c.Graph.DBPath != "" && !filepath.IsAbs(c.Graph.DBPath) {
		c.Graph.DBPath = filepath.Join(base, c.Graph.DBPath)
	}
	if c.Graph.BackupDir != "" && !filepath.IsAbs(c.Graph.BackupDir) {
		c.Graph.BackupDir = filepath.Join(base, c.Graph.BackupDir)
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if !c.Graph.InMemory && c.Graph.DBPath == "" {
		return fmt.Errorf("graph.db_path is required unless graph.in_memory is set")
	}
	if c.Graph.BackupKeep < 0 {
		return fmt.Errorf("graph.backup_keep must be >= 0, got %d", c.Graph.BackupKeep)
	}
	if c.Search.DefaultLimit < 0 {
		return fmt.Errorf("search.default_limit must be >= 0, got %d", c.Search.DefaultLimit)
	}
	if c.Search.ClosureCacheCost < 0 {
		return fmt.Errorf("search.closure_cache_cost must be >= 0, got %d", c.Search.ClosureCacheCost)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.Format != logging.FormatText && c.Log.Format != logging.FormatJSON {
		return fmt.Errorf("log.format must be %q or %q, got %q", logging.FormatText, logging.FormatJSON, c.Log.Format)
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("graph.db_path", "graph.db")
	v.SetDefault("graph.in_memory", false)
	v.SetDefault("graph.backup_dir", "backups")
	v.SetDefault("graph.backup_keep", 5)

	v.SetDefault("search.default_limit", 0)
	v.SetDefault("search.closure_cache_cost", 1<<20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logging.FormatText)

	v.SetDefault("metrics.textfile", "")
}
