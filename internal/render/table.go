package render

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	humanize "github.com/dustin/go-humanize"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/ALT-F4-LLC/ferry/internal/model"
)

const maxNameWidth = 40

// StyledText applies a lipgloss style to text when colors are enabled.
// When colors are disabled, it returns the plain text unchanged.
func StyledText(text string, style lipgloss.Style) string {
	if ColorsEnabled() {
		return style.Render(text)
	}
	return text
}

// truncate shortens a string to maxLen runes, appending an ellipsis if truncated.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// EmptyState renders a styled empty-state message with an optional contextual hint.
// When colors are enabled the message is rendered in dim gray and the hint is italic.
// When quiet is true the hint is suppressed.
func EmptyState(message, hint string, quiet bool) string {
	if !ColorsEnabled() {
		if quiet || hint == "" {
			return message
		}
		return message + "\n" + hint
	}

	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	hintStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)

	result := dimStyle.Render(message)
	if !quiet && hint != "" {
		result += "\n" + hintStyle.Render(hint)
	}
	return result
}

// loadedLabel marks whether an issue exists on the destination yet.
func loadedLabel(i *model.Issue) string {
	if i.Loaded() {
		return "✔ " + strconv.FormatInt(*i.DestUID, 10)
	}
	return "· pending"
}

func detailsLabel(i *model.Issue) string {
	if i.HasDocument() {
		return "yes"
	}
	return "no"
}

// grid renders rows as a bordered table when colors are enabled, with the
// first column bright and the rest plain. highlight, when non-nil, picks a
// foreground color per data cell.
func grid(headers []string, rows [][]string, highlight func(row, col int) (lipgloss.Color, bool)) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8"))).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1)

			if row == table.HeaderRow {
				return s.Bold(true).Foreground(lipgloss.Color("15"))
			}
			if row < 0 || row >= len(rows) {
				return s
			}
			if highlight != nil {
				if c, ok := highlight(row, col); ok {
					return s.Foreground(c)
				}
			}
			if col == 0 {
				return s.Foreground(lipgloss.Color("15"))
			}
			return s
		})

	return t.Render()
}

// plainGrid renders rows as left-aligned columns separated by two spaces.
func plainGrid(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, r := range rows {
		for i, cell := range r {
			if n := utf8.RuneCountInString(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}

	var b strings.Builder
	line := func(cells []string) {
		for i, cell := range cells {
			if i == len(cells)-1 {
				b.WriteString(cell)
				break
			}
			b.WriteString(cell)
			b.WriteString(strings.Repeat(" ", widths[i]-utf8.RuneCountInString(cell)+2))
		}
		b.WriteString("\n")
	}

	line(headers)
	total := 0
	for _, w := range widths {
		total += w + 2
	}
	fmt.Fprintf(&b, "%s\n", strings.Repeat("-", total-2))
	for _, r := range rows {
		line(r)
	}
	return b.String()
}

// RenderIssueTable renders stored issues with their extraction and load state.
func RenderIssueTable(issues []*model.Issue) string {
	if len(issues) == 0 {
		return EmptyState("No issues found.", "Fetch them with: ferry extract", false)
	}

	headers := []string{"Key", "Source ID", "Details", "Destination"}
	rows := make([][]string, 0, len(issues))
	for _, i := range issues {
		rows = append(rows, []string{
			i.Key,
			strconv.FormatInt(i.UID, 10),
			detailsLabel(i),
			loadedLabel(i),
		})
	}

	if !ColorsEnabled() {
		return plainGrid(headers, rows)
	}
	return grid(headers, rows, func(row, col int) (lipgloss.Color, bool) {
		switch col {
		case 2:
			if issues[row].HasDocument() {
				return lipgloss.Color("10"), true
			}
			return lipgloss.Color("11"), true
		case 3:
			if issues[row].Loaded() {
				return lipgloss.Color("10"), true
			}
			return lipgloss.Color("8"), true
		}
		return "", false
	})
}

// RenderVersionTable renders stored project versions.
func RenderVersionTable(versions []*model.Version) string {
	if len(versions) == 0 {
		return EmptyState("No versions found.", "Fetch them with: ferry extract --step versions", false)
	}

	headers := []string{"Name", "Source ID"}
	rows := make([][]string, 0, len(versions))
	for _, v := range versions {
		rows = append(rows, []string{truncate(v.Name, maxNameWidth), v.UID})
	}

	if !ColorsEnabled() {
		return plainGrid(headers, rows)
	}
	return grid(headers, rows, nil)
}

// RenderAttachmentTable renders stored attachments with their on-disk size.
func RenderAttachmentTable(attachments []*model.Attachment) string {
	if len(attachments) == 0 {
		return EmptyState("No attachments found.", "Download them with: ferry extract --step attachments", false)
	}

	headers := []string{"Issue", "Filename", "Size", "Path"}
	rows := make([][]string, 0, len(attachments))
	for _, a := range attachments {
		rows = append(rows, []string{
			a.IssueKey,
			truncate(a.Filename, maxNameWidth),
			humanize.Bytes(uint64(a.Size)),
			a.Path,
		})
	}

	if !ColorsEnabled() {
		return plainGrid(headers, rows)
	}
	return grid(headers, rows, func(row, col int) (lipgloss.Color, bool) {
		if col == 3 {
			return lipgloss.Color("8"), true
		}
		return "", false
	})
}

// RenderUserTable renders the users referenced by stored issues.
func RenderUserTable(users []model.User) string {
	if len(users) == 0 {
		return EmptyState("No users found.", "Users are collected from fetched issue details.", false)
	}

	headers := []string{"Name", "Display Name", "Email", "Active"}
	rows := make([][]string, 0, len(users))
	for _, u := range users {
		active := "yes"
		if !u.Active {
			active = "no"
		}
		rows = append(rows, []string{u.Name, truncate(u.DisplayName, maxNameWidth), u.Email, active})
	}

	if !ColorsEnabled() {
		return plainGrid(headers, rows)
	}
	return grid(headers, rows, func(row, col int) (lipgloss.Color, bool) {
		if col == 3 && !users[row].Active {
			return lipgloss.Color("9"), true
		}
		return "", false
	})
}
