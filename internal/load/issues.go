package load

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ALT-F4-LLC/ferry/internal/config"
	"github.com/ALT-F4-LLC/ferry/internal/db"
	"github.com/ALT-F4-LLC/ferry/internal/jira"
	"github.com/ALT-F4-LLC/ferry/internal/model"
)

// Placeholder content for issue numbers with no source issue.
const (
	emptyText           = "Empty"
	placeholderPriority = "5"
)

// CreateIssues creates destination issues 1..max(number) in order so each
// gets the same number it has on the source. Numbers with no stored issue
// get a placeholder. A rerun continues after the destination's last issue,
// so placeholders and issues from an interrupted run are not created twice.
func (l *Loader) CreateIssues(ctx context.Context) error {
	last, err := db.MaxIssueNumber(l.DB)
	if err != nil {
		return err
	}
	done, err := db.MaxLoadedIssueNumber(l.DB)
	if err != nil {
		return err
	}
	existing, err := l.destinationLastNumber(ctx)
	if err != nil {
		return err
	}

	for n := done + 1; n <= existing && n <= last; n++ {
		if err := l.adoptIssue(ctx, n); err != nil {
			return err
		}
	}

	start := max(done, existing)
	if start > 0 {
		l.out().Info("resuming after %s", model.FormatKey(l.Settings.Destination.ProjectKey, start))
	}
	for n := start + 1; n <= last; n++ {
		if err := l.createIssue(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

// destinationLastNumber returns the number of the highest key in the
// destination project, or 0 when it is empty.
func (l *Loader) destinationLastNumber(ctx context.Context) (int, error) {
	project := l.Settings.Destination.ProjectKey
	res, err := l.Dest.SearchIssues(ctx, fmt.Sprintf("project = %q ORDER BY key DESC", project), 0, 1)
	if err != nil {
		return 0, err
	}
	if len(res.Issues) == 0 {
		return 0, nil
	}
	p, n, err := model.ParseKey(res.Issues[0].Key)
	if err != nil {
		return 0, err
	}
	if p != project {
		return 0, fmt.Errorf("search for %s returned %s", project, res.Issues[0].Key)
	}
	return n, nil
}

// adoptIssue records a destination issue an earlier run created but could
// not record. The destination issue must carry the summary the source issue
// would have been created with; anything else was not created by ferry.
func (l *Loader) adoptIssue(ctx context.Context, n int) error {
	row, fields, err := l.createFields(n)
	if err != nil || row == nil {
		return err
	}

	key := model.FormatKey(l.Settings.Destination.ProjectKey, n)
	got, err := l.Dest.GetIssue(ctx, key)
	if err != nil {
		return err
	}
	if got.Fields.SummaryText() != fields["summary"] {
		return fmt.Errorf("%w: %s already exists on the destination and is not %s", ErrKeyMismatch, key, row.Key)
	}
	uid, err := strconv.ParseInt(got.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("destination returned non-numeric id %q for %s", got.ID, key)
	}
	l.out().Info("%s already created; recording it", key)
	return db.SetIssueDestination(l.DB, row.ID, uid, got.Self)
}

// createFields returns the stored issue numbered n and its create payload.
// The issue is nil when n is a gap filled by a placeholder.
func (l *Loader) createFields(n int) (*model.Issue, map[string]any, error) {
	row, err := db.GetIssueByNumber(l.DB, n)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return nil, l.placeholderFields(), nil
	case err != nil:
		return nil, nil, err
	}
	if !row.HasDocument() {
		return nil, nil, fmt.Errorf("issue %s has no document; extract details first", row.Key)
	}
	doc, err := jira.DecodeIssue(row.Document)
	if err != nil {
		return nil, nil, err
	}
	return row, l.issueFields(doc), nil
}

func (l *Loader) createIssue(ctx context.Context, n int) error {
	expected := model.FormatKey(l.Settings.Destination.ProjectKey, n)

	row, fields, err := l.createFields(n)
	if err != nil {
		return err
	}
	if row == nil {
		l.out().Warn("no source issue numbered %d; creating placeholder %s", n, expected)
	}

	created, err := l.Dest.CreateIssue(ctx, fields)
	if err != nil {
		return err
	}
	if created.Key != expected {
		return fmt.Errorf("%w: created %s, expected %s", ErrKeyMismatch, created.Key, expected)
	}
	l.out().Info("%s", created.Key)

	if row == nil {
		return nil
	}
	uid, err := strconv.ParseInt(created.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("destination returned non-numeric id %q for %s", created.ID, created.Key)
	}
	return db.SetIssueDestination(l.DB, row.ID, uid, created.Self)
}

// issueFields builds the create payload for a source issue.
func (l *Loader) issueFields(doc *jira.Issue) map[string]any {
	f := &doc.Fields
	m := &l.Settings.Mappings

	summary := f.SummaryText()
	if summary == "" {
		summary = emptyText
	}
	var assignee any
	if f.Assignee != nil {
		assignee = f.Assignee.Name
	}
	labels := f.Labels
	if labels == nil {
		labels = []string{}
	}

	fields := l.baseFields()
	fields["summary"] = summary
	fields["description"] = f.DescriptionText()
	fields["assignee"] = map[string]any{"name": assignee}
	fields["reporter"] = map[string]any{"name": f.Reporter.Name}
	fields["priority"] = map[string]any{"id": f.Priority.ID}
	fields["labels"] = labels

	if m.EpicTypeID != "" && m.IssueTypes[f.IssueType.ID] == m.EpicTypeID {
		fields["issuetype"] = map[string]any{"id": m.EpicTypeID}
		epicName := f.CustomString(m.EpicNameField)
		if epicName == "" {
			epicName = emptyText
		}
		fields[m.EpicNameField] = epicName
	}
	return fields
}

// placeholderFields builds the create payload for a gap in the key sequence.
func (l *Loader) placeholderFields() map[string]any {
	fields := l.baseFields()
	fields["summary"] = emptyText
	fields["description"] = emptyText
	fields["assignee"] = map[string]any{"name": nil}
	fields["reporter"] = map[string]any{"name": l.Settings.Destination.Username}
	fields["priority"] = map[string]any{"id": placeholderPriority}
	fields["labels"] = []string{}
	return fields
}

func (l *Loader) baseFields() map[string]any {
	return map[string]any{
		"project":   map[string]any{"id": strconv.FormatInt(l.Settings.Destination.ProjectID, 10)},
		"issuetype": map[string]any{"id": l.Settings.Mappings.StoryTypeID},
	}
}

// CreateVersions recreates every stored version in the destination project.
func (l *Loader) CreateVersions(ctx context.Context) error {
	versions, err := db.ListVersions(l.DB)
	if err != nil {
		return err
	}

	for _, v := range versions {
		in, err := l.versionInput(v)
		if err != nil {
			return err
		}
		l.out().Info("version %s", v.Name)
		if err := l.Dest.CreateVersion(ctx, in); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) versionInput(v *model.Version) (jira.VersionInput, error) {
	in := jira.VersionInput{
		Name:      v.Name,
		Project:   l.Settings.Destination.ProjectKey,
		ProjectID: l.Settings.Destination.ProjectID,
	}
	if len(v.Document) == 0 {
		return in, nil
	}

	var src jira.Version
	if err := json.Unmarshal(v.Document, &src); err != nil {
		return in, fmt.Errorf("parse version %s: %w", v.Name, err)
	}
	in.Archived = src.Archived
	in.Released = src.Released
	in.Description = src.Description
	in.UserStartDate = src.UserStartDate
	in.UserReleaseDate = src.UserReleaseDate
	return in, nil
}

// SetIssueVersions sets the fix versions, by name, of every issue that has
// any.
func (l *Loader) SetIssueVersions(ctx context.Context) error {
	issues, err := l.sourceIssues()
	if err != nil {
		return err
	}

	for _, si := range issues {
		refs := si.doc.Fields.FixVersions
		if len(refs) == 0 {
			continue
		}
		names := make([]string, len(refs))
		for i, r := range refs {
			names[i] = r.Name
		}
		l.out().Info("%s: %v", si.destKey, names)
		if err := l.Dest.SetFixVersions(ctx, si.destKey, names); err != nil {
			return err
		}
	}
	return nil
}

// MakeRelations converts issues of a configured sub-task type into sub-tasks
// of their source parent through the conversion wizard.
func (l *Loader) MakeRelations(ctx context.Context) error {
	issues, err := l.sourceIssues()
	if err != nil {
		return err
	}

	m := &l.Settings.Mappings
	for _, si := range issues {
		if !m.IsSubtaskType(si.doc.Fields.IssueType.ID) {
			continue
		}
		if si.row.DestUID == nil {
			return fmt.Errorf("%s: %w", si.row.Key, ErrNotLoaded)
		}
		parent := si.doc.Fields.Parent
		if parent == nil || parent.Key == "" {
			return fmt.Errorf("%s: sub-task type without a parent", si.row.Key)
		}
		parentKey, err := l.destKey(parent.Key)
		if err != nil {
			return err
		}

		l.out().Info("%s -> sub-task of %s", si.destKey, parentKey)
		cv := l.Admin.NewConversion(*si.row.DestUID, parentKey, m.SubtaskTypeID)
		if err := cv.Run(ctx); err != nil {
			return err
		}
	}
	return nil
}

// DoTransitions moves every issue to its source status. All statuses are
// checked against the mapping before the first transition is made.
func (l *Loader) DoTransitions(ctx context.Context) error {
	issues, err := l.sourceIssues()
	if err != nil {
		return err
	}

	statuses := l.Settings.Mappings.Statuses
	var unmapped []error
	reported := make(map[string]bool)
	for _, si := range issues {
		name := si.doc.Fields.Status.Name
		if _, ok := statuses[name]; !ok && !reported[name] {
			reported[name] = true
			unmapped = append(unmapped, fmt.Errorf("%w: %q (first seen on %s)", ErrUnmappedStatus, name, si.row.Key))
		}
	}
	if len(unmapped) > 0 {
		return errors.Join(unmapped...)
	}

	for _, si := range issues {
		id := statuses[si.doc.Fields.Status.Name]
		if id == "" {
			continue
		}
		l.out().Info("%s: %s", si.destKey, si.doc.Fields.Status.Name)
		if err := l.Dest.DoTransition(ctx, si.destKey, id); err != nil {
			return err
		}
	}
	return nil
}

// MakeLinks replays source issue links. A link appears on both of its
// issues with the same id and is only created once. Links to issues in
// other projects keep their key, or are skipped when so configured.
func (l *Loader) MakeLinks(ctx context.Context) error {
	issues, err := l.sourceIssues()
	if err != nil {
		return err
	}

	linkTypes := l.Settings.Mappings.LinkTypes
	var unmapped []error
	reported := make(map[string]bool)
	for _, si := range issues {
		for _, link := range si.doc.Fields.IssueLinks {
			name := link.Type.Name
			if _, ok := linkTypes[name]; !ok && !reported[name] {
				reported[name] = true
				unmapped = append(unmapped, fmt.Errorf("%w: %q (first seen on %s)", ErrUnmappedLinkType, name, si.row.Key))
			}
		}
	}
	if len(unmapped) > 0 {
		return errors.Join(unmapped...)
	}

	created := make(map[string]bool)
	for _, si := range issues {
		for _, link := range si.doc.Fields.IssueLinks {
			if link.ID != "" && created[link.ID] {
				continue
			}

			in, ok, err := l.linkInput(si, link)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}

			l.out().Info("%s %s %s", in.InwardIssue.Key, in.Type.Name, in.OutwardIssue.Key)
			if err := l.Dest.CreateIssueLink(ctx, in); err != nil {
				return err
			}
			created[link.ID] = true
		}
	}
	return nil
}

// linkInput orients a link relative to the current issue: with an
// outwardIssue present the current issue is the inward end, and the other
// way round.
func (l *Loader) linkInput(si sourceIssue, link jira.IssueLink) (jira.IssueLinkInput, bool, error) {
	var other *jira.IssueRef
	if link.OutwardIssue != nil {
		other = link.OutwardIssue
	} else {
		other = link.InwardIssue
	}

	project, _, err := model.ParseKey(other.Key)
	if err != nil {
		return jira.IssueLinkInput{}, false, err
	}
	otherKey := other.Key
	if project == l.Settings.Source.ProjectKey {
		if otherKey, err = l.destKey(other.Key); err != nil {
			return jira.IssueLinkInput{}, false, err
		}
	} else if l.Settings.Mappings.ExternalLinks == config.ExternalLinksSkip {
		l.out().Warn("%s: skipping link to %s outside the project", si.row.Key, other.Key)
		return jira.IssueLinkInput{}, false, nil
	}

	in := jira.IssueLinkInput{Type: jira.LinkType{Name: l.Settings.Mappings.LinkTypes[link.Type.Name]}}
	if link.OutwardIssue != nil {
		in.InwardIssue = jira.IssueRef{Key: si.destKey}
		in.OutwardIssue = jira.IssueRef{Key: otherKey}
	} else {
		in.InwardIssue = jira.IssueRef{Key: otherKey}
		in.OutwardIssue = jira.IssueRef{Key: si.destKey}
	}
	return in, true, nil
}
