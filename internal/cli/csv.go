package cli

import (
	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/ferry/internal/load"
)

var csvCmd = &cobra.Command{
	Use:   "csv",
	Short: "Write the issue creation dates CSV",
	Long: `Write one "key,created,summary" row per stored issue, keyed by the
destination project. The file is imported by hand to restore creation dates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		out, _ := cmd.Flags().GetString("out")

		s, err := getSettings(cmd)
		if err != nil {
			return err
		}

		l := &load.Loader{DB: getDB(cmd), Settings: s, Out: w, CSVPath: out}
		if err := l.WriteCreationDates(cmd.Context()); err != nil {
			return cmdErr(err, errorCode(err))
		}

		w.Success(struct {
			Path string `json:"path"`
		}{Path: out}, "Wrote "+out)
		return nil
	},
}

func init() {
	csvCmd.Flags().StringP("out", "o", load.DefaultCSVPath, "Output path")
	rootCmd.AddCommand(csvCmd)
}
