package cli

import (
	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/ferry/internal/db"
	"github.com/ALT-F4-LLC/ferry/internal/output"
	"github.com/ALT-F4-LLC/ferry/internal/render"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize the local snapshot and load progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		conn := getDB(cmd)

		var sum render.Summary
		if s, err := getSettings(cmd); err != nil {
			w.Warn("%v", err)
		} else {
			sum.SourceProject = s.Source.ProjectKey
			sum.DestProject = s.Destination.ProjectKey
		}

		var err error
		if sum.Issues, sum.Loaded, err = db.CountIssues(conn); err != nil {
			return cmdErr(err, output.ErrGeneral)
		}
		if sum.MaxNumber, err = db.MaxIssueNumber(conn); err != nil {
			return cmdErr(err, output.ErrGeneral)
		}
		if sum.Documents, err = db.CountIssueDocuments(conn); err != nil {
			return cmdErr(err, output.ErrGeneral)
		}
		if sum.Versions, err = db.CountVersions(conn); err != nil {
			return cmdErr(err, output.ErrGeneral)
		}
		if sum.Attachments, sum.AttachmentBytes, err = db.AttachmentStats(conn); err != nil {
			return cmdErr(err, output.ErrGeneral)
		}

		var message string
		if !w.JSONMode {
			message = render.RenderStatus(sum)
		}
		w.Success(sum, message)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
