package load

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ALT-F4-LLC/ferry/internal/db"
	"github.com/ALT-F4-LLC/ferry/internal/jira"
)

// CreateComments replays every comment as its original author, who logs in
// with the shared default password.
func (l *Loader) CreateComments(ctx context.Context) error {
	issues, err := l.sourceIssues()
	if err != nil {
		return err
	}

	for _, si := range issues {
		for _, c := range si.doc.Fields.Comments() {
			l.out().Info("%s: comment by %s", si.destKey, c.Author.Name)
			if err := l.actingAs(c.Author.Name).AddComment(ctx, si.destKey, c.Body); err != nil {
				return err
			}
		}
	}
	return nil
}

// CreateAttachments uploads every stored attachment as its original author.
func (l *Loader) CreateAttachments(ctx context.Context) error {
	attachments, err := db.ListAttachments(l.DB, "")
	if err != nil {
		return err
	}

	for _, a := range attachments {
		var src jira.Attachment
		if err := json.Unmarshal(a.Document, &src); err != nil {
			return fmt.Errorf("parse attachment %d: %w", a.UID, err)
		}
		if src.Author == nil || src.Author.Name == "" {
			return fmt.Errorf("attachment %d of %s has no author", a.UID, a.IssueKey)
		}
		destKey, err := l.destKey(a.IssueKey)
		if err != nil {
			return err
		}

		if err := l.uploadAttachment(ctx, destKey, src.Author.Name, a.Path, a.Filename); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) uploadAttachment(ctx context.Context, destKey, author, path, filename string) error {
	f, err := l.Files.Open(path)
	if err != nil {
		return fmt.Errorf("opening stored attachment: %w", err)
	}
	defer f.Close()

	l.out().Info("%s: %s by %s", destKey, filename, author)
	return l.actingAs(author).AddAttachment(ctx, destKey, filename, f)
}
