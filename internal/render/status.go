package render

import (
	"fmt"
	"os"
	"strings"

	humanize "github.com/dustin/go-humanize"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

const (
	defaultTermWidth = 100
	maxBarWidth      = 40
)

// Summary counts what the local store holds and how much of it has been
// replayed to the destination.
type Summary struct {
	SourceProject   string `json:"source_project"`
	DestProject     string `json:"destination_project"`
	Issues          int    `json:"issues"`
	MaxNumber       int    `json:"max_number"`
	Documents       int    `json:"documents"`
	Loaded          int    `json:"loaded"`
	Versions        int    `json:"versions"`
	Attachments     int    `json:"attachments"`
	AttachmentBytes int64  `json:"attachment_bytes"`
}

// terminalWidth returns the current terminal width, falling back to a default.
func terminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return defaultTermWidth
	}
	return w
}

// RenderStatus renders the store summary with progress bars for fetched
// details and created issues.
func RenderStatus(s Summary) string {
	if s.Issues == 0 && s.Versions == 0 {
		return EmptyState("Nothing extracted yet.", "Start with: ferry extract", false)
	}

	if !ColorsEnabled() {
		return renderPlainStatus(s)
	}

	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	valueStyle := lipgloss.NewStyle().Bold(true)
	barStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))

	line := func(label, value string) string {
		return fmt.Sprintf("  %s %s", labelStyle.Render(fmt.Sprintf("%-14s", label+":")), value)
	}

	width := barWidth(terminalWidth())

	overview := []string{
		sectionStyle.Render(fmt.Sprintf("%s → %s", s.SourceProject, s.DestProject)),
		line("Issues", valueStyle.Render(humanize.Comma(int64(s.Issues)))),
		line("Highest key", valueStyle.Render(fmt.Sprintf("%s-%d", s.SourceProject, s.MaxNumber))),
		line("Versions", valueStyle.Render(humanize.Comma(int64(s.Versions)))),
		line("Attachments", valueStyle.Render(fmt.Sprintf("%s (%s)", humanize.Comma(int64(s.Attachments)), humanize.Bytes(uint64(s.AttachmentBytes))))),
	}

	progress := []string{
		sectionStyle.Render("Progress"),
		line("Details", barStyle.Render(formatProgressBar(s.Documents, s.Issues, width))),
		line("Created", barStyle.Render(formatProgressBar(s.Loaded, s.Issues, width))),
	}

	return strings.Join(overview, "\n") + "\n\n" + strings.Join(progress, "\n")
}

func barWidth(termWidth int) int {
	w := termWidth - 20
	if w > maxBarWidth {
		w = maxBarWidth
	}
	return w
}

// formatProgressBar renders a text-based progress bar like "▰▰▰▱▱ 3/5".
func formatProgressBar(done, total, maxWidth int) string {
	suffix := fmt.Sprintf(" %d/%d", done, total)
	barWidth := maxWidth - len(suffix)
	if barWidth < 1 || total == 0 {
		return strings.TrimSpace(suffix)
	}
	if barWidth > total {
		barWidth = total
	}

	filled := (done * barWidth) / total
	if filled > barWidth {
		filled = barWidth
	}
	empty := barWidth - filled

	bar := strings.Repeat("▰", filled) + strings.Repeat("▱", empty)
	return bar + suffix
}

func renderPlainStatus(s Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s -> %s\n", s.SourceProject, s.DestProject)
	fmt.Fprintf(&b, "  Issues:        %s\n", humanize.Comma(int64(s.Issues)))
	fmt.Fprintf(&b, "  Highest key:   %s-%d\n", s.SourceProject, s.MaxNumber)
	fmt.Fprintf(&b, "  Versions:      %s\n", humanize.Comma(int64(s.Versions)))
	fmt.Fprintf(&b, "  Attachments:   %s (%s)\n", humanize.Comma(int64(s.Attachments)), humanize.Bytes(uint64(s.AttachmentBytes)))

	b.WriteString("\nProgress\n")
	fmt.Fprintf(&b, "  Details:       %d/%d\n", s.Documents, s.Issues)
	fmt.Fprintf(&b, "  Created:       %d/%d\n", s.Loaded, s.Issues)

	return b.String()
}
