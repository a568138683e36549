// Package cli wires the ferry commands.
package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/ferry/internal/admin"
	"github.com/ALT-F4-LLC/ferry/internal/config"
	"github.com/ALT-F4-LLC/ferry/internal/db"
	"github.com/ALT-F4-LLC/ferry/internal/jira"
	"github.com/ALT-F4-LLC/ferry/internal/load"
	"github.com/ALT-F4-LLC/ferry/internal/output"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

type contextKey string

const (
	dbKey  contextKey = "db"
	cfgKey contextKey = "cfg"
)

// CmdError wraps an error with a machine-readable error code for structured output.
type CmdError struct {
	Err  error
	Code output.ErrorCode
}

func (e *CmdError) Error() string { return e.Err.Error() }

func (e *CmdError) Unwrap() error { return e.Err }

func cmdErr(err error, code output.ErrorCode) *CmdError {
	return &CmdError{Err: err, Code: code}
}

// errorCode classifies an error returned by the migration packages.
func errorCode(err error) output.ErrorCode {
	var (
		apiErr  *jira.APIError
		stepErr *admin.StepError
	)
	switch {
	case errors.As(err, &apiErr), errors.As(err, &stepErr):
		return output.ErrRemote
	case errors.Is(err, db.ErrNotFound):
		return output.ErrNotFound
	case errors.Is(err, load.ErrKeyMismatch):
		return output.ErrConflict
	case errors.Is(err, load.ErrUnmappedStatus), errors.Is(err, load.ErrUnmappedLinkType),
		errors.Is(err, load.ErrNotLoaded):
		return output.ErrValidation
	default:
		return output.ErrGeneral
	}
}

var rootCmd = &cobra.Command{
	Use:   "ferry",
	Short: "Migrate a JIRA project between instances through a local snapshot",
	Long: `ferry copies one JIRA project to another instance in two stages.

"ferry extract" snapshots the source project (versions, issues, full issue
documents and attachment content) into a local SQLite store. "ferry load"
replays the snapshot into the destination project, preserving issue keys.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Resolve()
		if err != nil {
			return err
		}

		ctx := context.WithValue(cmd.Context(), cfgKey, cfg)

		if _, ok := cmd.Annotations["skipDB"]; ok {
			cmd.SetContext(ctx)
			return nil
		}

		if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
			return cmdErr(
				fmt.Errorf("no ferry database found, run 'ferry init' to create one"),
				output.ErrNotFound,
			)
		}

		conn, err := db.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}

		cmd.SetContext(context.WithValue(ctx, dbKey, conn))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		conn, ok := cmd.Context().Value(dbKey).(*sql.DB)
		if ok && conn != nil {
			return conn.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress non-essential output")
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
}

func getWriter(cmd *cobra.Command) *output.Writer {
	jsonMode, _ := cmd.Flags().GetBool("json")
	quietMode, _ := cmd.Flags().GetBool("quiet")
	return output.New(jsonMode, quietMode)
}

func getCfg(cmd *cobra.Command) *config.Config {
	cfg, _ := cmd.Context().Value(cfgKey).(*config.Config)
	return cfg
}

func getDB(cmd *cobra.Command) *sql.DB {
	conn, _ := cmd.Context().Value(dbKey).(*sql.DB)
	return conn
}

// getSettings loads and validates the settings file of the working directory.
func getSettings(cmd *cobra.Command) (*config.Settings, error) {
	cfg := getCfg(cmd)
	s, err := config.Load(cfg.SettingsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, cmdErr(fmt.Errorf("no settings file at %s, run 'ferry init' to create one", cfg.SettingsPath), output.ErrNotFound)
		}
		return nil, cmdErr(err, output.ErrValidation)
	}
	return s, nil
}

// Execute runs the root command and returns an exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		jsonMode, _ := rootCmd.PersistentFlags().GetBool("json")
		quietMode, _ := rootCmd.PersistentFlags().GetBool("quiet")
		w := output.New(jsonMode, quietMode)

		var ce *CmdError
		if errors.As(err, &ce) {
			return w.Error(ce.Err, ce.Code)
		}
		return w.Error(err, errorCode(err))
	}
	return 0
}
