package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/ferry/internal/db"
	"github.com/ALT-F4-LLC/ferry/internal/output"
	"github.com/ALT-F4-LLC/ferry/internal/render"
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List stored project versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)

		versions, err := db.ListVersions(getDB(cmd))
		if err != nil {
			return cmdErr(fmt.Errorf("listing versions: %w", err), output.ErrGeneral)
		}

		var message string
		if !w.JSONMode {
			message = render.RenderVersionTable(versions)
		}
		w.Success(versions, message)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionsCmd)
}
