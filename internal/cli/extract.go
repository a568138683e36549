package cli

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/ferry/internal/db"
	"github.com/ALT-F4-LLC/ferry/internal/extract"
	"github.com/ALT-F4-LLC/ferry/internal/filestore"
	"github.com/ALT-F4-LLC/ferry/internal/jira"
	"github.com/ALT-F4-LLC/ferry/internal/output"
)

type extractResult struct {
	Steps       []string `json:"steps"`
	Versions    int      `json:"versions"`
	Issues      int      `json:"issues"`
	Documents   int      `json:"documents"`
	Attachments int      `json:"attachments"`
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Snapshot the source project into the local store",
	Long: `Fetch versions, the issue list, every issue document and attachment
content from the source project. Each step replaces what an earlier run stored.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		conn := getDB(cmd)
		cfg := getCfg(cmd)

		steps, _ := cmd.Flags().GetStringSlice("step")
		list, _ := cmd.Flags().GetBool("list-steps")

		x := &extract.Extractor{DB: conn, Files: filestore.New(cfg.AttachmentsDir), Out: w}

		if list {
			var infos []stepInfo
			for _, s := range x.Steps() {
				infos = append(infos, stepInfo{s.Name, s.Description})
			}
			w.Success(infos, formatSteps(infos))
			return nil
		}

		s, err := getSettings(cmd)
		if err != nil {
			return err
		}
		x.Source = jira.NewClient(s.Source.Host, s.Source.Username, s.Source.Password)
		x.ProjectKey = s.Source.ProjectKey

		total, _, err := db.CountIssues(conn)
		if err != nil {
			return cmdErr(err, output.ErrGeneral)
		}
		replacing := len(steps) == 0 || slices.Contains(steps, "issues") || slices.Contains(steps, "attachments")
		if total > 0 && replacing {
			err := confirm(cmd, w,
				"Replace the local snapshot?",
				fmt.Sprintf("%d stored issues and their attachments will be replaced from %s.", total, s.Source.Host))
			if errors.Is(err, errCancelled) {
				w.Info("Cancelled.")
				return nil
			}
			if err != nil {
				return err
			}
		}

		if err := x.Run(cmd.Context(), steps...); err != nil {
			return cmdErr(err, errorCode(err))
		}

		result := extractResult{Steps: steps}
		if len(steps) == 0 {
			for _, st := range x.Steps() {
				result.Steps = append(result.Steps, st.Name)
			}
		}
		if result.Versions, err = db.CountVersions(conn); err != nil {
			return cmdErr(err, output.ErrGeneral)
		}
		if result.Issues, _, err = db.CountIssues(conn); err != nil {
			return cmdErr(err, output.ErrGeneral)
		}
		if result.Documents, err = db.CountIssueDocuments(conn); err != nil {
			return cmdErr(err, output.ErrGeneral)
		}
		if result.Attachments, _, err = db.AttachmentStats(conn); err != nil {
			return cmdErr(err, output.ErrGeneral)
		}

		w.Success(result, fmt.Sprintf("Extracted %s: %d issues (%d with details), %d versions, %d attachments",
			s.Source.ProjectKey, result.Issues, result.Documents, result.Versions, result.Attachments))
		return nil
	},
}

func init() {
	extractCmd.Flags().StringSlice("step", nil, "Run only the named step (repeatable): versions, issues, details, attachments")
	extractCmd.Flags().Bool("list-steps", false, "List the extraction steps and exit")
	extractCmd.Flags().BoolP("yes", "y", false, "Replace stored data without asking")
	rootCmd.AddCommand(extractCmd)
}
