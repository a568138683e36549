package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/ferry/internal/db"
	"github.com/ALT-F4-LLC/ferry/internal/jira"
	"github.com/ALT-F4-LLC/ferry/internal/load"
	"github.com/ALT-F4-LLC/ferry/internal/output"
	"github.com/ALT-F4-LLC/ferry/internal/render"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List the users the load will create",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)

		issues, err := db.ListIssues(getDB(cmd), db.ListOptions{})
		if err != nil {
			return cmdErr(fmt.Errorf("listing issues: %w", err), output.ErrGeneral)
		}

		var docs []*jira.Issue
		missing := 0
		for _, i := range issues {
			if !i.HasDocument() {
				missing++
				continue
			}
			doc, err := jira.DecodeIssue(i.Document)
			if err != nil {
				return cmdErr(err, output.ErrValidation)
			}
			docs = append(docs, doc)
		}
		if missing > 0 {
			w.Warn("%d issue(s) have no details yet; their users are not listed", missing)
		}

		users := load.CollectUsers(docs)
		var message string
		if !w.JSONMode {
			message = render.RenderUserTable(users)
		}
		w.Success(users, message)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(usersCmd)
}
