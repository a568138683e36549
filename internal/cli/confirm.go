package cli

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/ferry/internal/output"
)

// errCancelled is returned by confirm when the user declines.
var errCancelled = errors.New("cancelled")

// confirm asks before a command changes data it cannot restore. --yes skips
// the prompt; JSON mode cannot prompt and requires --yes.
func confirm(cmd *cobra.Command, w *output.Writer, title, description string) error {
	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		return nil
	}
	if w.JSONMode {
		return cmdErr(fmt.Errorf("%s: pass --yes to confirm in JSON mode", title), output.ErrValidation)
	}

	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Continue").
				Negative("Cancel").
				Value(&ok),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return errCancelled
		}
		return cmdErr(fmt.Errorf("interactive form failed: %w", err), output.ErrGeneral)
	}
	if !ok {
		return errCancelled
	}
	return nil
}

// stepInfo describes one extraction step or load phase for listings.
type stepInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func formatSteps(steps []stepInfo) string {
	var out string
	for i, s := range steps {
		if i > 0 {
			out += "\n"
		}
		out += fmt.Sprintf("%2d. %-22s %s", i+1, s.Name, s.Description)
	}
	return out
}
