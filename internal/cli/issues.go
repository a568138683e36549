package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/ferry/internal/db"
	"github.com/ALT-F4-LLC/ferry/internal/model"
	"github.com/ALT-F4-LLC/ferry/internal/output"
	"github.com/ALT-F4-LLC/ferry/internal/render"
)

type issuesResult struct {
	Issues []*model.Issue `json:"issues"`
	Total  int            `json:"total"`
	Loaded int            `json:"loaded"`
}

var issuesCmd = &cobra.Command{
	Use:     "issues",
	Short:   "List stored issues",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		conn := getDB(cmd)

		search, _ := cmd.Flags().GetString("search")
		loadedOnly, _ := cmd.Flags().GetBool("loaded")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		if limit < 0 || offset < 0 {
			return cmdErr(fmt.Errorf("--limit and --offset must not be negative"), output.ErrValidation)
		}

		issues, err := db.ListIssues(conn, db.ListOptions{
			Search:     search,
			LoadedOnly: loadedOnly,
			Limit:      limit,
			Offset:     offset,
		})
		if err != nil {
			return cmdErr(fmt.Errorf("listing issues: %w", err), output.ErrGeneral)
		}

		total, loaded, err := db.CountIssues(conn)
		if err != nil {
			return cmdErr(err, output.ErrGeneral)
		}

		var message string
		if !w.JSONMode {
			message = render.RenderIssueTable(issues)
		}
		w.Success(issuesResult{Issues: issues, Total: total, Loaded: loaded}, message)
		return nil
	},
}

func init() {
	issuesCmd.Flags().StringP("search", "s", "", "Filter by key substring or exact destination id")
	issuesCmd.Flags().Bool("loaded", false, "Only issues already created on the destination")
	issuesCmd.Flags().Int("limit", 50, "Maximum number of results (0 for all)")
	issuesCmd.Flags().Int("offset", 0, "Skip this many results")
	rootCmd.AddCommand(issuesCmd)
}
