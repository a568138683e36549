package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/ferry/internal/admin"
	"github.com/ALT-F4-LLC/ferry/internal/filestore"
	"github.com/ALT-F4-LLC/ferry/internal/jira"
	"github.com/ALT-F4-LLC/ferry/internal/load"
)

type loadResult struct {
	Phases  []string `json:"phases"`
	CSVPath string   `json:"csv_path"`
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Replay the local snapshot into the destination project",
	Long: `Create users, issues, versions, sub-task relations, transitions, links,
comments and attachments on the destination, then reset user passwords and
write the creation dates CSV. Phases run in a fixed order and stop at the
first failure; nothing created on the destination is rolled back.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		conn := getDB(cmd)
		cfg := getCfg(cmd)

		phases, _ := cmd.Flags().GetStringSlice("phase")
		list, _ := cmd.Flags().GetBool("list-phases")
		csvPath, _ := cmd.Flags().GetString("csv")

		l := &load.Loader{DB: conn, Files: filestore.New(cfg.AttachmentsDir), Out: w, CSVPath: csvPath}

		if list {
			var infos []stepInfo
			for _, p := range l.Phases() {
				infos = append(infos, stepInfo{p.Name, p.Description})
			}
			w.Success(infos, formatSteps(infos))
			return nil
		}

		s, err := getSettings(cmd)
		if err != nil {
			return err
		}
		l.Settings = s
		l.Dest = jira.NewClient(s.Destination.Host, s.Destination.Username, s.Destination.Password)
		l.Admin = admin.NewClient(s.Destination.Host, s.Destination.Username, s.Destination.Password)

		err = confirm(cmd, w,
			fmt.Sprintf("Load into %s project %s?", s.Destination.Host, s.Destination.ProjectKey),
			"Changes made on the destination cannot be undone by ferry.")
		if errors.Is(err, errCancelled) {
			w.Info("Cancelled.")
			return nil
		}
		if err != nil {
			return err
		}

		if err := l.Run(cmd.Context(), phases...); err != nil {
			return cmdErr(err, errorCode(err))
		}

		result := loadResult{Phases: phases, CSVPath: l.CSVPath}
		if len(phases) == 0 {
			for _, p := range l.Phases() {
				result.Phases = append(result.Phases, p.Name)
			}
		}
		if result.CSVPath == "" {
			result.CSVPath = load.DefaultCSVPath
		}
		w.Success(result, fmt.Sprintf("Loaded %d phase(s) into %s", len(result.Phases), s.Destination.ProjectKey))
		return nil
	},
}

func init() {
	loadCmd.Flags().StringSlice("phase", nil, "Run only the named phase (repeatable); see --list-phases")
	loadCmd.Flags().Bool("list-phases", false, "List the load phases and exit")
	loadCmd.Flags().String("csv", "", "Path of the creation dates CSV (default "+load.DefaultCSVPath+")")
	loadCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(loadCmd)
}
