package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/ferry/internal/db"
	"github.com/ALT-F4-LLC/ferry/internal/jira"
	"github.com/ALT-F4-LLC/ferry/internal/model"
	"github.com/ALT-F4-LLC/ferry/internal/output"
	"github.com/ALT-F4-LLC/ferry/internal/render"
)

type showResult struct {
	Issue       *model.Issue        `json:"issue"`
	Document    json.RawMessage     `json:"document"`
	Attachments []*model.Attachment `json:"attachments"`
}

var showCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Show a stored issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		conn := getDB(cmd)
		raw, _ := cmd.Flags().GetBool("raw")

		key := strings.ToUpper(strings.TrimSpace(args[0]))
		if _, _, err := model.ParseKey(key); err != nil {
			return cmdErr(err, output.ErrValidation)
		}

		issue, err := db.GetIssueByKey(conn, key)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return cmdErr(fmt.Errorf("issue %s not found", key), output.ErrNotFound)
			}
			return cmdErr(fmt.Errorf("fetching issue: %w", err), output.ErrGeneral)
		}

		attachments, err := db.ListIssueAttachments(conn, issue.ID)
		if err != nil {
			return cmdErr(fmt.Errorf("listing attachments: %w", err), output.ErrGeneral)
		}

		result := showResult{Issue: issue, Attachments: attachments}
		if issue.HasDocument() {
			result.Document = issue.Document
		}

		if w.JSONMode {
			w.Success(result, "")
			return nil
		}

		if raw {
			if !issue.HasDocument() {
				return cmdErr(fmt.Errorf("issue %s has no stored document", key), output.ErrNotFound)
			}
			var buf bytes.Buffer
			if err := json.Indent(&buf, issue.Document, "", "  "); err != nil {
				return cmdErr(fmt.Errorf("formatting document: %w", err), output.ErrGeneral)
			}
			fmt.Fprintln(w.Stdout, buf.String())
			return nil
		}

		var doc *jira.Issue
		if issue.HasDocument() {
			doc, err = jira.DecodeIssue(issue.Document)
			if err != nil {
				w.Warn("%v", err)
				doc = nil
			}
		}
		w.Success(result, render.RenderIssueDetail(issue, doc, attachments))
		return nil
	},
}

func init() {
	showCmd.Flags().Bool("raw", false, "Print the stored source document")
	rootCmd.AddCommand(showCmd)
}
