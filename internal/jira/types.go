// Package jira provides a client and the typed wire schema for the JIRA
// REST API v2 as used by the migration.
package jira

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Issue is a JIRA issue as returned by GET /issue/{id}. Raw keeps the exact
// document the server sent so it can be stored verbatim.
type Issue struct {
	ID     string          `json:"id"`
	Key    string          `json:"key"`
	Self   string          `json:"self"`
	Fields Fields          `json:"fields"`
	Raw    json.RawMessage `json:"-"`
}

// Fields contains the issue fields the migration reads. Custom fields are
// kept undecoded and looked up by id.
type Fields struct {
	Summary     *string      `json:"summary"`
	Description *string      `json:"description"`
	IssueType   *IssueType   `json:"issuetype"`
	Status      *Status      `json:"status"`
	Priority    *Priority    `json:"priority"`
	Assignee    *User        `json:"assignee"`
	Reporter    *User        `json:"reporter"`
	Labels      []string     `json:"labels"`
	FixVersions []VersionRef `json:"fixVersions"`
	IssueLinks  []IssueLink  `json:"issuelinks"`
	Comment     *CommentPage `json:"comment"`
	Attachments []Attachment `json:"attachment"`
	Parent      *IssueRef    `json:"parent"`
	Created     string       `json:"created"`

	custom map[string]json.RawMessage
}

// UnmarshalJSON decodes the known fields and retains every customfield_*
// entry for CustomString.
func (f *Fields) UnmarshalJSON(data []byte) error {
	type plain Fields
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}

	*f = Fields(p)
	for k, v := range all {
		if strings.HasPrefix(k, "customfield_") {
			if f.custom == nil {
				f.custom = make(map[string]json.RawMessage)
			}
			f.custom[k] = v
		}
	}
	return nil
}

// CustomString returns the value of a string custom field, or "" when the
// field is absent, null, or not a string.
func (f *Fields) CustomString(id string) string {
	raw, ok := f.custom[id]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// SummaryText returns the summary, or "" when it is null.
func (f *Fields) SummaryText() string {
	if f.Summary == nil {
		return ""
	}
	return *f.Summary
}

// DescriptionText returns the description, or "" when it is null.
func (f *Fields) DescriptionText() string {
	if f.Description == nil {
		return ""
	}
	return *f.Description
}

// Comments returns the embedded comments, which may be absent.
func (f *Fields) Comments() []Comment {
	if f.Comment == nil {
		return nil
	}
	return f.Comment.Comments
}

// IssueType identifies an issue type.
type IssueType struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subtask bool   `json:"subtask"`
}

// Status is a workflow status.
type Status struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Priority is an issue priority.
type Priority struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// User is a JIRA Server user. Name is the login name.
type User struct {
	Name         string `json:"name"`
	Key          string `json:"key,omitempty"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
	Active       bool   `json:"active"`
}

// VersionRef is a version as embedded in an issue's fixVersions.
type VersionRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// IssueRef points at another issue.
type IssueRef struct {
	ID  string `json:"id,omitempty"`
	Key string `json:"key"`
}

// LinkType is an issue link type; only Name is sent when creating links.
type LinkType struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Inward  string `json:"inward,omitempty"`
	Outward string `json:"outward,omitempty"`
}

// IssueLink is a link as embedded in an issue. Exactly one of InwardIssue
// and OutwardIssue is set, naming the issue on the other end.
type IssueLink struct {
	ID           string    `json:"id"`
	Type         LinkType  `json:"type"`
	InwardIssue  *IssueRef `json:"inwardIssue,omitempty"`
	OutwardIssue *IssueRef `json:"outwardIssue,omitempty"`
}

// CommentPage is the comment field of an issue.
type CommentPage struct {
	Comments   []Comment `json:"comments"`
	MaxResults int       `json:"maxResults"`
	Total      int       `json:"total"`
	StartAt    int       `json:"startAt"`
}

// Comment is an issue comment.
type Comment struct {
	ID      string `json:"id"`
	Body    string `json:"body"`
	Author  *User  `json:"author"`
	Created string `json:"created"`
}

// Attachment is attachment metadata as embedded in an issue. Content is the
// download URL.
type Attachment struct {
	ID       string          `json:"id"`
	Filename string          `json:"filename"`
	Author   *User           `json:"author"`
	Created  string          `json:"created"`
	Size     int64           `json:"size"`
	MimeType string          `json:"mimeType"`
	Content  string          `json:"content"`
	Raw      json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the attachment and keeps the raw document.
func (a *Attachment) UnmarshalJSON(data []byte) error {
	type plain Attachment
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = Attachment(p)
	a.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Version is a project version as returned by GET /project/{key}/versions.
type Version struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Self            string          `json:"self"`
	Description     string          `json:"description,omitempty"`
	Archived        bool            `json:"archived"`
	Released        bool            `json:"released"`
	StartDate       string          `json:"startDate,omitempty"`
	ReleaseDate     string          `json:"releaseDate,omitempty"`
	UserStartDate   string          `json:"userStartDate,omitempty"`
	UserReleaseDate string          `json:"userReleaseDate,omitempty"`
	Raw             json.RawMessage `json:"-"`
}

// SearchResult is a page of a JQL search restricted to id and key.
type SearchResult struct {
	StartAt    int           `json:"startAt"`
	MaxResults int           `json:"maxResults"`
	Total      int           `json:"total"`
	Issues     []SearchIssue `json:"issues"`
}

// SearchIssue is the bare identity of an issue in a search result.
type SearchIssue struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Self string `json:"self"`
}

// CreatedIssue is the response to POST /issue.
type CreatedIssue struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Self string `json:"self"`
}

// DecodeIssue parses and validates an issue document.
func DecodeIssue(raw json.RawMessage) (*Issue, error) {
	var issue Issue
	if err := json.Unmarshal(raw, &issue); err != nil {
		return nil, fmt.Errorf("parse issue: %w", err)
	}
	issue.Raw = raw
	if err := issue.Validate(); err != nil {
		return nil, err
	}
	return &issue, nil
}

// Validate checks that the document carries every field the load phases
// read, so a malformed document is rejected at extraction time.
func (i *Issue) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if i.ID == "" {
		add("missing id")
	}
	if i.Key == "" {
		add("missing key")
	}

	f := &i.Fields
	if f.IssueType == nil || f.IssueType.ID == "" {
		add("missing fields.issuetype.id")
	}
	if f.Status == nil || f.Status.Name == "" {
		add("missing fields.status.name")
	}
	if f.Priority == nil || f.Priority.ID == "" {
		add("missing fields.priority.id")
	}
	if f.Reporter == nil || f.Reporter.Name == "" {
		add("missing fields.reporter.name")
	}
	if f.Assignee != nil && f.Assignee.Name == "" {
		add("fields.assignee has no name")
	}
	if _, err := ParseTimestamp(f.Created); err != nil {
		add("fields.created: %v", err)
	}
	if f.IssueType != nil && f.IssueType.Subtask && (f.Parent == nil || f.Parent.Key == "") {
		add("sub-task without fields.parent.key")
	}

	for n, c := range f.Comments() {
		if c.Author == nil || c.Author.Name == "" {
			add("comment %d has no author", n)
		}
	}
	for n, a := range f.Attachments {
		if a.ID == "" || a.Filename == "" || a.Content == "" {
			add("attachment %d is missing id, filename or content", n)
		}
		if a.Author == nil || a.Author.Name == "" {
			add("attachment %d has no author", n)
		}
	}
	for n, l := range f.IssueLinks {
		if (l.InwardIssue == nil) == (l.OutwardIssue == nil) {
			add("issue link %d must have exactly one of inwardIssue, outwardIssue", n)
		}
		if l.Type.Name == "" {
			add("issue link %d has no type name", n)
		}
	}

	if len(errs) > 0 {
		key := i.Key
		if key == "" {
			key = i.ID
		}
		return fmt.Errorf("invalid issue document %s: %w", key, errors.Join(errs...))
	}
	return nil
}
