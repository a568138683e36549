package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/ALT-F4-LLC/ferry/internal/config"
	"github.com/ALT-F4-LLC/ferry/internal/db"
	"github.com/ALT-F4-LLC/ferry/internal/output"
	"github.com/ALT-F4-LLC/ferry/internal/render"

	"github.com/spf13/cobra"
)

type initResult struct {
	Path            string `json:"path"`
	DBPath          string `json:"db_path"`
	SettingsPath    string `json:"settings_path"`
	SchemaVersion   int    `json:"schema_version"`
	Created         bool   `json:"created"`
	SettingsCreated bool   `json:"settings_created"`
}

var initCmd = &cobra.Command{
	Use:         "init",
	Short:       "Initialize a ferry working directory",
	Annotations: map[string]string{"skipDB": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		cfg := getCfg(cmd)

		exists, err := cfg.Exists()
		if err != nil {
			return cmdErr(fmt.Errorf("checking database: %w", err), output.ErrGeneral)
		}

		for _, dir := range []string{cfg.Dir, cfg.AttachmentsDir} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return cmdErr(fmt.Errorf("creating directory: %w", err), output.ErrGeneral)
			}
		}

		settingsCreated, err := writeSampleSettings(cfg.SettingsPath)
		if err != nil {
			return cmdErr(err, output.ErrGeneral)
		}

		conn, err := db.Open(cfg.DBPath)
		if err != nil {
			return cmdErr(fmt.Errorf("opening database: %w", err), output.ErrGeneral)
		}
		defer conn.Close()

		if exists {
			w.Warn("Database already exists at %s", cfg.DBPath)
		} else if err := db.Initialize(conn); err != nil {
			return cmdErr(fmt.Errorf("initializing schema: %w", err), output.ErrGeneral)
		}

		if err := db.Migrate(conn); err != nil {
			return cmdErr(fmt.Errorf("migrating schema: %w", err), output.ErrGeneral)
		}

		schemaVersion, err := db.SchemaVersion(conn)
		if err != nil {
			return cmdErr(fmt.Errorf("reading schema version: %w", err), output.ErrGeneral)
		}

		result := initResult{
			Path:            cfg.Dir,
			DBPath:          cfg.DBPath,
			SettingsPath:    cfg.SettingsPath,
			SchemaVersion:   schemaVersion,
			Created:         !exists,
			SettingsCreated: settingsCreated,
		}

		var msg string
		if exists {
			msg = render.StyledText("Working directory already initialized", lipgloss.NewStyle().Foreground(lipgloss.Color("3")))
		} else {
			msg = render.StyledText("Initialized ferry working directory", lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")))
		}
		w.Success(result, msg)

		if settingsCreated {
			w.Info("Edit %s before running 'ferry extract'", cfg.SettingsPath)
		}
		w.Info("Consider adding .ferry/ to your .gitignore")

		return nil
	},
}

// writeSampleSettings creates the settings file from the sample unless one
// already exists. It reports whether the file was written.
func writeSampleSettings(path string) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("creating settings: %w", err)
	}
	if _, err := f.Write(config.Sample()); err != nil {
		f.Close()
		return false, fmt.Errorf("writing settings: %w", err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("writing settings: %w", err)
	}
	return true, nil
}

func init() {
	rootCmd.AddCommand(initCmd)
}
