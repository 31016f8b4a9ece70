package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

// chdir switches into dir for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	origDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("failed to chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(origDir); err != nil {
			t.Errorf("failed to restore working directory: %v", err)
		}
	})
}

func TestLoadFromProjectDir(t *testing.T) {
	tmpDir := t.TempDir()
	projectDir := filepath.Join(tmpDir, ProjectDirName)
	if err := os.Mkdir(projectDir, 0755); err != nil {
		t.Fatalf("failed to create project dir: %v", err)
	}

	configContent := `graph:
  db_path: data/graph.db
  backup_keep: 2

search:
  default_limit: 50
  closure_cache_cost: 0

log:
  level: debug
  format: json
`
	configPath := filepath.Join(projectDir, ProjectConfigFile)
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	// Load from a nested directory; discovery walks upward.
	nested := filepath.Join(tmpDir, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("create subdirs: %v", err)
	}
	chdir(t, nested)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.ConfigDir != projectDir {
		t.Errorf("ConfigDir = %q, want %q", cfg.ConfigDir, projectDir)
	}
	if want := filepath.Join(projectDir, "data", "graph.db"); cfg.Graph.DBPath != want {
		t.Errorf("Graph.DBPath = %q, want %q", cfg.Graph.DBPath, want)
	}
	if want := filepath.Join(projectDir, "backups"); cfg.Graph.BackupDir != want {
		t.Errorf("Graph.BackupDir = %q, want %q", cfg.Graph.BackupDir, want)
	}
	if cfg.Graph.BackupKeep != 2 {
		t.Errorf("Graph.BackupKeep = %d, want 2", cfg.Graph.BackupKeep)
	}
	if cfg.Search.DefaultLimit != 50 {
		t.Errorf("Search.DefaultLimit = %d, want 50", cfg.Search.DefaultLimit)
	}
	if cfg.Search.ClosureCacheCost != 0 {
		t.Errorf("Search.ClosureCacheCost = %d, want 0", cfg.Search.ClosureCacheCost)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	// Load from an empty temp directory (no config file)
	chdir(t, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.ConfigDir != "" {
		t.Errorf("ConfigDir = %q, want empty", cfg.ConfigDir)
	}
	if want := filepath.Join(ProjectDirName, "graph.db"); cfg.Graph.DBPath != want {
		t.Errorf("Graph.DBPath = %q, want %q", cfg.Graph.DBPath, want)
	}
	if cfg.Graph.BackupKeep != 5 {
		t.Errorf("Graph.BackupKeep = %d, want 5", cfg.Graph.BackupKeep)
	}
	if cfg.Search.ClosureCacheCost != 1<<20 {
		t.Errorf("Search.ClosureCacheCost = %d, want %d", cfg.Search.ClosureCacheCost, 1<<20)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("ENTITYQUERY_LOG_LEVEL", "warn")
	t.Setenv("ENTITYQUERY_SEARCH_DEFAULT_LIMIT", "7")
	t.Setenv("ENTITYQUERY_GRAPH_DB_PATH", "/var/lib/entityquery")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}
	if cfg.Search.DefaultLimit != 7 {
		t.Errorf("Search.DefaultLimit = %d, want 7", cfg.Search.DefaultLimit)
	}
	if cfg.Graph.DBPath != "/var/lib/entityquery" {
		t.Errorf("Graph.DBPath = %q", cfg.Graph.DBPath)
	}
}

func TestLoadExplicitTOMLFile(t *testing.T) {
	chdir(t, t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")
	content := "[graph]\nin_memory = true\n\n[metrics]\ntextfile = \"/tmp/eq.prom\"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	viper.Set("config_file", path)
	t.Cleanup(func() { viper.Set("config_file", "") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.Graph.InMemory {
		t.Error("Graph.InMemory = false, want true")
	}
	if cfg.Metrics.Textfile != "/tmp/eq.prom" {
		t.Errorf("Metrics.Textfile = %q", cfg.Metrics.Textfile)
	}
	if cfg.ConfigDir != dir {
		t.Errorf("ConfigDir = %q, want %q", cfg.ConfigDir, dir)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Graph: GraphConfig{DBPath: "/tmp/graph.db", BackupKeep: 3},
			Log:   LogConfig{Level: "info", Format: "text"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "missing db path",
			mutate:  func(c *Config) { c.Graph.DBPath = "" },
			wantErr: true,
			errMsg:  "graph.db_path is required",
		},
		{
			name:   "in memory without db path",
			mutate: func(c *Config) { c.Graph.DBPath = ""; c.Graph.InMemory = true },
		},
		{
			name:    "negative backup keep",
			mutate:  func(c *Config) { c.Graph.BackupKeep = -1 },
			wantErr: true,
			errMsg:  "graph.backup_keep",
		},
		{
			name:    "negative default limit",
			mutate:  func(c *Config) { c.Search.DefaultLimit = -5 },
			wantErr: true,
			errMsg:  "search.default_limit",
		},
		{
			name:    "negative cache cost",
			mutate:  func(c *Config) { c.Search.ClosureCacheCost = -1 },
			wantErr: true,
			errMsg:  "search.closure_cache_cost",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "chatty" },
			wantErr: true,
			errMsg:  "log.level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: true,
			errMsg:  "log.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Errorf("Validate() error = nil, want error containing %q", tt.errMsg)
				} else if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Validate() error = %q, want error containing %q", err.Error(), tt.errMsg)
				}
			} else if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestDiscoverProjectDir(t *testing.T) {
	tmpDir := t.TempDir()
	sub := filepath.Join(tmpDir, "sub1", "sub2")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatalf("create subdirs: %v", err)
	}
	projectDir := filepath.Join(tmpDir, ProjectDirName)
	if err := os.Mkdir(projectDir, 0755); err != nil {
		t.Fatalf("create project dir: %v", err)
	}

	for _, start := range []string{sub, filepath.Dir(sub), tmpDir} {
		if got := DiscoverProjectDir(start); got != projectDir {
			t.Errorf("DiscoverProjectDir(%q) = %q, want %q", start, got, projectDir)
		}
	}

	isolatedDir := t.TempDir()
	if got := DiscoverProjectDir(isolatedDir); got != "" {
		t.Errorf("DiscoverProjectDir(%q) = %q, want empty", isolatedDir, got)
	}
}

func TestWriteConfigRoundTrip(t *testing.T) {
	for _, name := range []string{"config.yaml", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, name)

			cfg := Default()
			cfg.Search.DefaultLimit = 25
			cfg.Log.Format = "json"
			if err := WriteConfig(cfg, path); err != nil {
				t.Fatalf("WriteConfig: %v", err)
			}

			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if !strings.HasPrefix(string(data), "# entityquery configuration\n") {
				t.Errorf("missing header:\n%s", data)
			}
			if !strings.Contains(string(data), "default_limit") {
				t.Errorf("missing snake_case key:\n%s", data)
			}

			viper.Set("config_file", path)
			t.Cleanup(func() { viper.Set("config_file", "") })
			back, err := Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if back.Search.DefaultLimit != 25 || back.Log.Format != "json" {
				t.Errorf("loaded %+v", back)
			}
			if want := filepath.Join(dir, "graph.db"); back.Graph.DBPath != want {
				t.Errorf("Graph.DBPath = %q, want %q", back.Graph.DBPath, want)
			}
		})
	}
}
