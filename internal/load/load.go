// Package load replays the local snapshot into the destination JIRA
// project. Phases run in a fixed order; each is a full pass over the stored
// records and stops at the first remote failure.
package load

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/ALT-F4-LLC/ferry/internal/admin"
	"github.com/ALT-F4-LLC/ferry/internal/config"
	"github.com/ALT-F4-LLC/ferry/internal/db"
	"github.com/ALT-F4-LLC/ferry/internal/filestore"
	"github.com/ALT-F4-LLC/ferry/internal/jira"
	"github.com/ALT-F4-LLC/ferry/internal/model"
	"github.com/ALT-F4-LLC/ferry/internal/output"
)

// DefaultCSVPath is where the creation-dates phase writes when CSVPath is empty.
const DefaultCSVPath = "issue_creation_date.csv"

var (
	// ErrKeyMismatch means the destination assigned a key other than the
	// expected positional one. Every later phase relies on the alignment,
	// so the run cannot continue.
	ErrKeyMismatch = errors.New("destination key does not match source position")

	// ErrUnmappedStatus means a source status has no transition mapping.
	ErrUnmappedStatus = errors.New("status has no transition mapping")

	// ErrUnmappedLinkType means a source link type has no mapping.
	ErrUnmappedLinkType = errors.New("link type has no mapping")

	// ErrNotLoaded means a phase needs the destination id of an issue that
	// has not been created yet.
	ErrNotLoaded = errors.New("issue has not been created on the destination")
)

// Loader replays stored records into the destination instance.
type Loader struct {
	Dest     *jira.Client // authenticated as the destination admin
	Admin    *admin.Client
	DB       *sql.DB
	Files    *filestore.Store
	Settings *config.Settings
	Out      output.Reporter

	// Rand is the source for generated passwords. Nil means crypto/rand.
	Rand io.Reader

	CSVPath string
}

// Phase is one named load pass.
type Phase struct {
	Name        string
	Description string
	Run         func(ctx context.Context) error
}

// Phases returns the load passes in the order Run performs them.
func (l *Loader) Phases() []Phase {
	return []Phase{
		{"create-users", "Create users", l.CreateUsers},
		{"create-issues", "Create issues", l.CreateIssues},
		{"create-versions", "Create versions", l.CreateVersions},
		{"set-issue-versions", "Set issue fix versions", l.SetIssueVersions},
		{"make-relations", "Convert sub-tasks", l.MakeRelations},
		{"do-transitions", "Apply status transitions", l.DoTransitions},
		{"make-links", "Create issue links", l.MakeLinks},
		{"create-comments", "Create comments", l.CreateComments},
		{"create-attachments", "Upload attachments", l.CreateAttachments},
		{"set-random-passwords", "Set random user passwords", l.SetRandomPasswords},
		{"deactivate-users", "Deactivate inactive users", l.DeactivateUsers},
		{"creation-dates-csv", "Write the creation dates CSV", l.WriteCreationDates},
	}
}

// Run performs every phase in order, or only the named ones when given.
// The first failure stops the run.
func (l *Loader) Run(ctx context.Context, only ...string) error {
	phases, err := selectPhases(l.Phases(), only)
	if err != nil {
		return err
	}
	for _, p := range phases {
		l.out().Info("%s", p.Description)
		if err := p.Run(ctx); err != nil {
			return fmt.Errorf("%s: %w", p.Name, err)
		}
	}
	return nil
}

func selectPhases(all []Phase, only []string) ([]Phase, error) {
	if len(only) == 0 {
		return all, nil
	}
	want := make(map[string]bool, len(only))
	for _, name := range only {
		want[name] = true
	}
	var out []Phase
	for _, p := range all {
		if want[p.Name] {
			out = append(out, p)
			delete(want, p.Name)
		}
	}
	for name := range want {
		return nil, fmt.Errorf("unknown phase %q", name)
	}
	return out, nil
}

func (l *Loader) out() output.Reporter {
	if l.Out == nil {
		return output.Discard
	}
	return l.Out
}

// sourceIssue pairs a stored issue with its decoded document.
type sourceIssue struct {
	row     *model.Issue
	doc     *jira.Issue
	destKey string
}

// sourceIssues loads every stored issue in key order. Every issue must have
// a document; the load cannot run on a partial extraction.
func (l *Loader) sourceIssues() ([]sourceIssue, error) {
	rows, err := db.ListIssues(l.DB, db.ListOptions{})
	if err != nil {
		return nil, err
	}

	out := make([]sourceIssue, 0, len(rows))
	for _, row := range rows {
		if !row.HasDocument() {
			return nil, fmt.Errorf("issue %s has no document; extract details first", row.Key)
		}
		doc, err := jira.DecodeIssue(row.Document)
		if err != nil {
			return nil, err
		}
		destKey, err := l.destKey(row.Key)
		if err != nil {
			return nil, err
		}
		out = append(out, sourceIssue{row: row, doc: doc, destKey: destKey})
	}
	return out, nil
}

// destKey maps a source key onto the destination project.
func (l *Loader) destKey(sourceKey string) (string, error) {
	return model.Rekey(sourceKey, l.Settings.Destination.ProjectKey)
}

// actingAs returns a destination client authenticated as a migrated user.
func (l *Loader) actingAs(username string) *jira.Client {
	return l.Dest.WithCredentials(username, l.Settings.Destination.DefaultUserPassword)
}
