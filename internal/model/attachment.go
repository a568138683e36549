package model

import (
	"encoding/json"
	"path/filepath"
)

// Attachment is a file attached to a source issue. Its content lives on disk
// at Path; the row only records where.
type Attachment struct {
	ID       int
	UID      int64
	IssueID  int
	IssueKey string // populated by queries that join the owning issue
	Filename string
	Path     string
	Size     int64
	Document json.RawMessage
}

// attachmentJSON is the JSON wire format for Attachment.
type attachmentJSON struct {
	UID      int64  `json:"uid"`
	Issue    string `json:"issue"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
}

// MarshalJSON implements custom JSON serialization for Attachment.
func (a Attachment) MarshalJSON() ([]byte, error) {
	return json.Marshal(attachmentJSON{
		UID:      a.UID,
		Issue:    a.IssueKey,
		Filename: a.Filename,
		Path:     a.Path,
		Size:     a.Size,
	})
}

// AttachmentPath returns the storage path for an attachment relative to the
// attachments directory: "<issue key>/<filename>".
func AttachmentPath(issueKey, filename string) string {
	return filepath.Join(issueKey, filepath.Base(filename))
}
