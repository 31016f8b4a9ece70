package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/imyousuf/entityquery/internal/config"
)

// Style definitions for config and status views.
var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"})
	labelStyle = lipgloss.NewStyle().
			Faint(true).
			Width(22)
	valueStyle = lipgloss.NewStyle()
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long: `Show the effective entityquery configuration after defaults, the config
file and ENTITYQUERY_* environment overrides have been applied.`,
		RunE: runConfigView,
	}
}

func runConfigView(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	out := cmd.OutOrStdout()
	printTitle(out, "entityquery Configuration")

	printSection(out, "Project")
	configDir := cfg.ConfigDir
	if configDir == "" {
		configDir = "(none; using defaults)"
	}
	printKV(out, "Config dir", configDir)
	fmt.Fprintln(out)

	printSection(out, "Graph Storage")
	printKV(out, "In memory", boolYesNo(cfg.Graph.InMemory))
	if !cfg.Graph.InMemory {
		printKV(out, "DB path", cfg.Graph.DBPath)
	}
	printKV(out, "Backup dir", cfg.Graph.BackupDir)
	keep := "all"
	if cfg.Graph.BackupKeep > 0 {
		keep = strconv.Itoa(cfg.Graph.BackupKeep)
	}
	printKV(out, "Backups kept", keep)
	fmt.Fprintln(out)

	printSection(out, "Search")
	limit := "unbounded"
	if cfg.Search.DefaultLimit > 0 {
		limit = strconv.Itoa(cfg.Search.DefaultLimit)
	}
	printKV(out, "Default limit", limit)
	cache := "disabled"
	if cfg.Search.ClosureCacheCost > 0 {
		cache = strconv.FormatInt(cfg.Search.ClosureCacheCost, 10) + " ids"
	}
	printKV(out, "Closure cache", cache)
	fmt.Fprintln(out)

	printSection(out, "Logging")
	printKV(out, "Level", cfg.Log.Level)
	printKV(out, "Format", cfg.Log.Format)
	fmt.Fprintln(out)

	printSection(out, "Metrics")
	textfile := cfg.Metrics.Textfile
	if textfile == "" {
		textfile = "(disabled)"
	}
	printKV(out, "Textfile", textfile)
	fmt.Fprintln(out)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(out, "  Warning: %v\n", err)
	}
	return nil
}

func printTitle(out io.Writer, title string) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, headerStyle.Render(title))
	fmt.Fprintln(out, headerStyle.Render(strings.Repeat("=", len(title))))
	fmt.Fprintln(out)
}

func printSection(out io.Writer, title string) {
	fmt.Fprintf(out, "  %s\n", headerStyle.Render(title))
}

func printKV(out io.Writer, label, value string) {
	fmt.Fprintf(out, "    %s%s\n", labelStyle.Render(label+":"), valueStyle.Render(value))
}

func boolYesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
