// Package extract snapshots a source JIRA project into the local store.
// Every run is a full refresh: versions, the issue list and attachments are
// replaced wholesale, and issue documents are saved one issue at a time.
package extract

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strconv"

	humanize "github.com/dustin/go-humanize"

	"github.com/ALT-F4-LLC/ferry/internal/db"
	"github.com/ALT-F4-LLC/ferry/internal/filestore"
	"github.com/ALT-F4-LLC/ferry/internal/jira"
	"github.com/ALT-F4-LLC/ferry/internal/model"
	"github.com/ALT-F4-LLC/ferry/internal/output"
)

// Issue list paging. The search is capped at PageSize*MaxPages issues.
const (
	PageSize = 1000
	MaxPages = 5
)

// Source is the read side of the JIRA REST API. *jira.Client implements it.
type Source interface {
	ProjectVersions(ctx context.Context, projectKey string) ([]jira.Version, error)
	SearchIssues(ctx context.Context, jql string, startAt, maxResults int) (*jira.SearchResult, error)
	GetIssue(ctx context.Context, idOrKey string) (*jira.Issue, error)
	Download(ctx context.Context, contentURL string, w io.Writer) (int64, error)
}

// Extractor copies one source project into the local store.
type Extractor struct {
	Source     Source
	DB         *sql.DB
	Files      *filestore.Store
	ProjectKey string
	Out        output.Reporter
}

// Step is one named extraction pass.
type Step struct {
	Name        string
	Description string
	Run         func(ctx context.Context) error
}

// Steps returns the extraction passes in the order Run performs them.
func (e *Extractor) Steps() []Step {
	return []Step{
		{"versions", "Fetch project versions", e.FetchVersions},
		{"issues", "Fetch the issue list", e.FetchIssueList},
		{"details", "Fetch every issue document", e.FetchIssueDetails},
		{"attachments", "Download attachments", e.DownloadAttachments},
	}
}

// Run performs every step in order, or only the named ones when given.
// The first failure stops the run.
func (e *Extractor) Run(ctx context.Context, only ...string) error {
	steps, err := selectSteps(e.Steps(), only)
	if err != nil {
		return err
	}
	for _, s := range steps {
		e.out().Info("%s", s.Description)
		if err := s.Run(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.Name, err)
		}
	}
	return nil
}

func selectSteps(all []Step, only []string) ([]Step, error) {
	if len(only) == 0 {
		return all, nil
	}
	want := make(map[string]bool, len(only))
	for _, name := range only {
		want[name] = true
	}
	var out []Step
	for _, s := range all {
		if want[s.Name] {
			out = append(out, s)
			delete(want, s.Name)
		}
	}
	for name := range want {
		return nil, fmt.Errorf("unknown step %q", name)
	}
	return out, nil
}

func (e *Extractor) out() output.Reporter {
	if e.Out == nil {
		return output.Discard
	}
	return e.Out
}

// FetchVersions replaces all stored versions with the project's current ones.
func (e *Extractor) FetchVersions(ctx context.Context) error {
	remote, err := e.Source.ProjectVersions(ctx, e.ProjectKey)
	if err != nil {
		return err
	}

	versions := make([]*model.Version, len(remote))
	for i, v := range remote {
		versions[i] = &model.Version{
			UID:      v.ID,
			Name:     v.Name,
			Link:     v.Self,
			Document: v.Raw,
		}
	}
	if err := db.ReplaceVersions(e.DB, versions); err != nil {
		return err
	}

	e.out().Info("stored %d versions", len(versions))
	return nil
}

// FetchIssueList replaces all stored issues with the project's current issue
// identities. Documents are fetched separately by FetchIssueDetails.
func (e *Extractor) FetchIssueList(ctx context.Context) error {
	jql := "project=" + e.ProjectKey

	var (
		issues []*model.Issue
		total  int
	)
	for page := 0; page < MaxPages; page++ {
		res, err := e.Source.SearchIssues(ctx, jql, page*PageSize, PageSize)
		if err != nil {
			return err
		}
		total = res.Total

		for _, si := range res.Issues {
			uid, err := strconv.ParseInt(si.ID, 10, 64)
			if err != nil {
				return fmt.Errorf("issue %s has non-numeric id %q", si.Key, si.ID)
			}
			issues = append(issues, &model.Issue{UID: uid, Key: si.Key, Link: si.Self})
		}

		if len(res.Issues) < PageSize {
			break
		}
	}

	switch limit := min(total, PageSize*MaxPages); {
	case len(issues) < limit:
		e.out().Warn("source reports %s issues but search returned %s; the server may cap maxResults below %d",
			humanize.Comma(int64(total)), humanize.Comma(int64(len(issues))), PageSize)
	case total > limit:
		e.out().Warn("source reports %s issues; only the first %s are extracted",
			humanize.Comma(int64(total)), humanize.Comma(int64(limit)))
	}

	if err := db.ReplaceIssues(e.DB, issues); err != nil {
		return err
	}

	e.out().Info("stored %d issues", len(issues))
	return nil
}

// FetchIssueDetails fetches and validates the full document of every stored
// issue. Each document is saved on its own, so a failure leaves the issues
// already fetched intact.
func (e *Extractor) FetchIssueDetails(ctx context.Context) error {
	issues, err := db.ListIssues(e.DB, db.ListOptions{})
	if err != nil {
		return err
	}

	for n, issue := range issues {
		doc, err := e.Source.GetIssue(ctx, strconv.FormatInt(issue.UID, 10))
		if err != nil {
			return err
		}
		if err := doc.Validate(); err != nil {
			return err
		}
		if doc.Key != issue.Key {
			e.out().Warn("issue %d is now %s (listed as %s)", issue.UID, doc.Key, issue.Key)
		}

		if err := db.SaveIssueDocument(e.DB, issue.ID, doc.Raw); err != nil {
			return fmt.Errorf("%s: %w", issue.Key, err)
		}
		e.out().Info("[%d/%d] %s", n+1, len(issues), issue.Key)
	}
	return nil
}

// DownloadAttachments replaces all stored attachments. For every attachment
// listed in an issue document the row is created and its content downloaded
// before moving to the next one.
func (e *Extractor) DownloadAttachments(ctx context.Context) error {
	if _, err := db.DeleteAttachments(e.DB); err != nil {
		return err
	}
	if err := e.Files.Clear(); err != nil {
		return err
	}

	issues, err := db.ListIssues(e.DB, db.ListOptions{})
	if err != nil {
		return err
	}

	var count int
	var bytes int64
	used := make(map[string]bool)
	for _, issue := range issues {
		if !issue.HasDocument() {
			return fmt.Errorf("issue %s has no document; run the details step first", issue.Key)
		}
		doc, err := jira.DecodeIssue(issue.Document)
		if err != nil {
			return err
		}

		for _, a := range doc.Fields.Attachments {
			size, err := e.downloadAttachment(ctx, issue, a, used)
			if err != nil {
				return err
			}
			count++
			bytes += size
		}
	}

	e.out().Info("stored %d attachments (%s)", count, humanize.Bytes(uint64(bytes)))
	return nil
}

// downloadAttachment stores one attachment. Two attachments of the same
// issue may share a filename; the later one is stored under "<uid>_<name>".
func (e *Extractor) downloadAttachment(ctx context.Context, issue *model.Issue, a jira.Attachment, used map[string]bool) (int64, error) {
	uid, err := strconv.ParseInt(a.ID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("attachment %q of %s has non-numeric id", a.ID, issue.Key)
	}

	path := model.AttachmentPath(issue.Key, a.Filename)
	if used[path] {
		path = model.AttachmentPath(issue.Key, a.ID+"_"+a.Filename)
	}
	used[path] = true

	row := &model.Attachment{
		UID:      uid,
		IssueID:  issue.ID,
		Filename: a.Filename,
		Path:     path,
		Document: a.Raw,
	}
	if _, err := db.CreateAttachment(e.DB, row); err != nil {
		return 0, err
	}

	size, err := e.Files.WriteFunc(row.Path, func(w io.Writer) (int64, error) {
		return e.Source.Download(ctx, a.Content, w)
	})
	if err != nil {
		return 0, fmt.Errorf("%s/%s: %w", issue.Key, a.Filename, err)
	}
	if a.Size > 0 && size != a.Size {
		e.out().Warn("%s/%s: downloaded %d bytes, source reports %d", issue.Key, a.Filename, size, a.Size)
	}

	if err := db.SetAttachmentSize(e.DB, row.ID, size); err != nil {
		return 0, err
	}
	e.out().Info("%s/%s (%s)", issue.Key, a.Filename, humanize.Bytes(uint64(size)))
	return size, nil
}
