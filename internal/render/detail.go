package render

import (
	"fmt"
	"strings"

	humanize "github.com/dustin/go-humanize"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"

	"github.com/ALT-F4-LLC/ferry/internal/jira"
	"github.com/ALT-F4-LLC/ferry/internal/model"
)

// RenderIssueDetail renders a stored issue: its identity on both instances,
// and, once details were fetched, the document's fields, links, comments
// and attachments. doc may be nil.
func RenderIssueDetail(issue *model.Issue, doc *jira.Issue, attachments []*model.Attachment) string {
	if !ColorsEnabled() {
		return renderPlainDetail(issue, doc, attachments)
	}

	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	var sections []string

	sections = append(sections, renderHeader(issue, doc))
	sections = append(sections, renderMetadata(issue, doc))

	if doc == nil {
		sections = append(sections, EmptyState("Details not fetched.", "Fetch them with: ferry extract --step details", false))
		return strings.Join(sections, "\n\n")
	}

	if d := doc.Fields.DescriptionText(); d != "" {
		rendered, err := RenderMarkdown(d)
		if err != nil {
			rendered = d
		}
		sections = append(sections, sectionStyle.Render("Description")+"\n"+rendered)
	}

	if len(doc.Fields.IssueLinks) > 0 {
		t := tree.New().Root(sectionStyle.Render("Links"))
		for _, l := range doc.Fields.IssueLinks {
			t.Child(linkLabel(l))
		}
		sections = append(sections, t.String())
	}

	if comments := doc.Fields.Comments(); len(comments) > 0 {
		sections = append(sections, renderComments(comments))
	}

	if len(attachments) > 0 {
		dim := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
		t := tree.New().Root(sectionStyle.Render("Attachments"))
		for _, a := range attachments {
			t.Child(fmt.Sprintf("%s %s", a.Filename, dim.Render(humanize.Bytes(uint64(a.Size)))))
		}
		sections = append(sections, t.String())
	}

	return strings.Join(sections, "\n\n")
}

func renderHeader(issue *model.Issue, doc *jira.Issue) string {
	keyStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	titleStyle := lipgloss.NewStyle().Bold(true)
	statusStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))

	header := keyStyle.Render(issue.Key)
	if doc == nil {
		return header
	}
	header += "  " + titleStyle.Render(doc.Fields.SummaryText())
	if doc.Fields.Status != nil {
		header += "\n" + statusStyle.Render(doc.Fields.Status.Name)
	}
	return header
}

func renderMetadata(issue *model.Issue, doc *jira.Issue) string {
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	line := func(label, value string) string {
		return fmt.Sprintf("%s %s", labelStyle.Render(label+":"), value)
	}

	var lines []string
	for _, kv := range metadataLines(issue, doc) {
		lines = append(lines, line(kv[0], kv[1]))
	}
	return strings.Join(lines, "\n")
}

// metadataLines lists the label/value pairs shown under the header.
func metadataLines(issue *model.Issue, doc *jira.Issue) [][2]string {
	lines := [][2]string{
		{"Source ID", fmt.Sprintf("%d", issue.UID)},
		{"Source", issue.Link},
	}
	if issue.Loaded() {
		lines = append(lines, [2]string{"Destination ID", fmt.Sprintf("%d", *issue.DestUID)})
		if issue.DestLink != "" {
			lines = append(lines, [2]string{"Destination", issue.DestLink})
		}
	} else {
		lines = append(lines, [2]string{"Destination", "not created"})
	}
	if doc == nil {
		return lines
	}

	f := &doc.Fields
	if f.IssueType != nil {
		t := f.IssueType.ID
		if f.IssueType.Name != "" {
			t = f.IssueType.Name + " (" + f.IssueType.ID + ")"
		}
		lines = append(lines, [2]string{"Type", t})
	}
	if f.Priority != nil {
		lines = append(lines, [2]string{"Priority", f.Priority.ID})
	}
	if f.Reporter != nil {
		lines = append(lines, [2]string{"Reporter", f.Reporter.Name})
	}
	if f.Assignee != nil {
		lines = append(lines, [2]string{"Assignee", f.Assignee.Name})
	}
	if f.Parent != nil {
		lines = append(lines, [2]string{"Parent", f.Parent.Key})
	}
	if len(f.Labels) > 0 {
		lines = append(lines, [2]string{"Labels", strings.Join(f.Labels, ", ")})
	}
	if len(f.FixVersions) > 0 {
		names := make([]string, len(f.FixVersions))
		for i, v := range f.FixVersions {
			names[i] = v.Name
		}
		lines = append(lines, [2]string{"Fix versions", strings.Join(names, ", ")})
	}
	if created, err := jira.ParseTimestamp(f.Created); err == nil {
		lines = append(lines, [2]string{"Created", fmt.Sprintf("%s (%s)", created.Format("2006-01-02 15:04:05 -0700"), humanize.Time(created))})
	}
	return lines
}

// linkLabel describes a link from the point of view of the issue carrying it.
func linkLabel(l jira.IssueLink) string {
	if l.OutwardIssue != nil {
		verb := l.Type.Outward
		if verb == "" {
			verb = l.Type.Name
		}
		return fmt.Sprintf("→ %s %s", verb, l.OutwardIssue.Key)
	}
	if l.InwardIssue != nil {
		verb := l.Type.Inward
		if verb == "" {
			verb = l.Type.Name
		}
		return fmt.Sprintf("← %s %s", verb, l.InwardIssue.Key)
	}
	return l.Type.Name
}

func commentAuthor(c jira.Comment) string {
	if c.Author == nil || c.Author.Name == "" {
		return "anonymous"
	}
	return c.Author.Name
}

func commentTime(c jira.Comment) string {
	t, err := jira.ParseTimestamp(c.Created)
	if err != nil {
		return c.Created
	}
	return humanize.Time(t)
}

func renderComments(comments []jira.Comment) string {
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	authorStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	timeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	header := sectionStyle.Render(fmt.Sprintf("Comments (%d)", len(comments)))

	var parts []string
	for _, c := range comments {
		body, err := RenderMarkdown(c.Body)
		if err != nil {
			body = c.Body
		}
		parts = append(parts, fmt.Sprintf("%s  %s\n%s",
			authorStyle.Render(commentAuthor(c)),
			timeStyle.Render(commentTime(c)),
			body,
		))
	}

	return header + "\n" + strings.Join(parts, "\n\n")
}

// renderPlainDetail renders a detail view without any color or styling.
func renderPlainDetail(issue *model.Issue, doc *jira.Issue, attachments []*model.Attachment) string {
	var b strings.Builder

	b.WriteString(issue.Key)
	if doc != nil {
		fmt.Fprintf(&b, "  %s", doc.Fields.SummaryText())
		if doc.Fields.Status != nil {
			fmt.Fprintf(&b, "\n%s", doc.Fields.Status.Name)
		}
	}
	b.WriteString("\n\n")

	for _, kv := range metadataLines(issue, doc) {
		fmt.Fprintf(&b, "%s: %s\n", kv[0], kv[1])
	}

	if doc == nil {
		b.WriteString("\nDetails not fetched.\n")
		return b.String()
	}

	if d := doc.Fields.DescriptionText(); d != "" {
		fmt.Fprintf(&b, "\nDescription\n%s\n", d)
	}

	if len(doc.Fields.IssueLinks) > 0 {
		b.WriteString("\nLinks\n")
		for _, l := range doc.Fields.IssueLinks {
			fmt.Fprintf(&b, "  %s\n", linkLabel(l))
		}
	}

	if comments := doc.Fields.Comments(); len(comments) > 0 {
		fmt.Fprintf(&b, "\nComments (%d)\n", len(comments))
		for _, c := range comments {
			fmt.Fprintf(&b, "  %s  %s\n  %s\n\n", commentAuthor(c), commentTime(c), c.Body)
		}
	}

	if len(attachments) > 0 {
		b.WriteString("\nAttachments\n")
		for _, a := range attachments {
			fmt.Fprintf(&b, "  %s  %s\n", a.Filename, humanize.Bytes(uint64(a.Size)))
		}
	}

	return b.String()
}
