package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/ferry/internal/db"
	"github.com/ALT-F4-LLC/ferry/internal/model"
	"github.com/ALT-F4-LLC/ferry/internal/output"
	"github.com/ALT-F4-LLC/ferry/internal/render"
)

type attachmentsResult struct {
	Attachments []*model.Attachment `json:"attachments"`
	Count       int                 `json:"count"`
	TotalBytes  int64               `json:"total_bytes"`
}

var attachmentsCmd = &cobra.Command{
	Use:   "attachments",
	Short: "List downloaded attachments",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		conn := getDB(cmd)
		search, _ := cmd.Flags().GetString("search")

		attachments, err := db.ListAttachments(conn, search)
		if err != nil {
			return cmdErr(fmt.Errorf("listing attachments: %w", err), output.ErrGeneral)
		}

		result := attachmentsResult{Attachments: attachments, Count: len(attachments)}
		for _, a := range attachments {
			result.TotalBytes += a.Size
		}

		var message string
		if !w.JSONMode {
			message = render.RenderAttachmentTable(attachments)
		}
		w.Success(result, message)
		return nil
	},
}

func init() {
	attachmentsCmd.Flags().StringP("search", "s", "", "Filter by filename substring")
	rootCmd.AddCommand(attachmentsCmd)
}
