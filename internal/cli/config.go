package cli

import (
	"fmt"
	"os"
	"strings"

	humanize "github.com/dustin/go-humanize"

	"github.com/charmbracelet/lipgloss"

	"github.com/ALT-F4-LLC/ferry/internal/config"
	"github.com/ALT-F4-LLC/ferry/internal/db"
	"github.com/ALT-F4-LLC/ferry/internal/output"
	"github.com/ALT-F4-LLC/ferry/internal/render"
	"github.com/spf13/cobra"
)

type configInfo struct {
	DBPath        string           `json:"db_path"`
	DBSizeBytes   int64            `json:"db_size_bytes"`
	SchemaVersion int              `json:"schema_version"`
	SettingsPath  string           `json:"settings_path"`
	Settings      *config.Settings `json:"settings,omitempty"`
	SettingsError string           `json:"settings_error,omitempty"`
	FerryPathEnv  string           `json:"ferry_path_env"`
	FerryPathSet  bool             `json:"ferry_path_set"`
}

var configCmd = &cobra.Command{
	Use:         "config",
	Short:       "Display ferry configuration",
	Annotations: map[string]string{"skipDB": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		cfg := getCfg(cmd)

		info := configInfo{
			DBPath:       cfg.DBPath,
			SettingsPath: cfg.SettingsPath,
			FerryPathEnv: os.Getenv("FERRY_PATH"),
			FerryPathSet: cfg.EnvVarSet,
		}

		if s, err := config.Load(cfg.SettingsPath); err != nil {
			info.SettingsError = err.Error()
		} else {
			info.Settings = s
		}

		exists, err := cfg.Exists()
		if err != nil {
			return cmdErr(fmt.Errorf("checking database: %w", err), output.ErrGeneral)
		}

		if !exists {
			w.Warn("No ferry database found. Run 'ferry init' to create one.")
			w.Success(info, formatConfigHuman(info, true))
			return nil
		}

		conn, err := db.Open(cfg.DBPath)
		if err != nil {
			return cmdErr(fmt.Errorf("opening database: %w", err), output.ErrGeneral)
		}
		defer conn.Close()

		info.SchemaVersion, err = db.SchemaVersion(conn)
		if err != nil {
			return cmdErr(fmt.Errorf("reading schema version: %w", err), output.ErrGeneral)
		}

		stat, err := os.Stat(cfg.DBPath)
		if err != nil {
			return cmdErr(fmt.Errorf("reading database file: %w", err), output.ErrGeneral)
		}
		info.DBSizeBytes = stat.Size()

		w.Success(info, formatConfigHuman(info, false))
		return nil
	},
}

func formatEnvValue(val string) string {
	if val == "" {
		return "(not set)"
	}
	return val
}

// configLines lists the label/value pairs of the config view.
func configLines(info configInfo, notFound bool) [][2]string {
	dbPath := info.DBPath
	if notFound {
		dbPath += " (not found)"
	}
	lines := [][2]string{{"Database path", dbPath}}
	if !notFound {
		lines = append(lines,
			[2]string{"Database size", humanize.Bytes(uint64(info.DBSizeBytes))},
			[2]string{"Schema version", fmt.Sprintf("%d", info.SchemaVersion)},
		)
	}

	lines = append(lines, [2]string{"Settings", info.SettingsPath})
	if s := info.Settings; s != nil {
		lines = append(lines,
			[2]string{"Source", fmt.Sprintf("%s project %s as %s", s.Source.Host, s.Source.ProjectKey, s.Source.Username)},
			[2]string{"Destination", fmt.Sprintf("%s project %s (%d) as %s", s.Destination.Host, s.Destination.ProjectKey, s.Destination.ProjectID, s.Destination.Username)},
			[2]string{"Status mappings", fmt.Sprintf("%d", len(s.Mappings.Statuses))},
			[2]string{"Link mappings", fmt.Sprintf("%d", len(s.Mappings.LinkTypes))},
		)
	} else {
		lines = append(lines, [2]string{"Settings error", strings.ReplaceAll(info.SettingsError, "\n", "; ")})
	}

	lines = append(lines, [2]string{"FERRY_PATH", formatEnvValue(info.FerryPathEnv)})
	return lines
}

func formatConfigHuman(info configInfo, notFound bool) string {
	lines := configLines(info, notFound)

	if !render.ColorsEnabled() {
		var b strings.Builder
		for _, kv := range lines {
			fmt.Fprintf(&b, "%-17s %s\n", kv[0]+":", kv[1])
		}
		return strings.TrimRight(b.String(), "\n")
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	keyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	valStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))

	out := headerStyle.Render("Ferry Configuration") + "\n"
	for i, kv := range lines {
		val := valStyle.Render(kv[1])
		if i == 0 {
			color := lipgloss.Color("10")
			if notFound {
				color = lipgloss.Color("9")
			}
			val = lipgloss.NewStyle().Foreground(color).Render("●") + " " + val
		}
		out += fmt.Sprintf("\n  %s %s", keyStyle.Render(fmt.Sprintf("%-17s", kv[0]+":")), val)
	}
	return out
}

func init() {
	rootCmd.AddCommand(configCmd)
}
