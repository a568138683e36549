package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Issue is a snapshot of a source issue together with the identity it was
// given on the destination instance once loaded.
type Issue struct {
	ID       int
	UID      int64  // source numeric id
	Key      string // source key, e.g. "PROJ-123"
	Number   int    // numeric suffix of Key
	Link     string // source REST self link
	DestUID  *int64 // nil until the loader creates the destination issue
	DestLink string
	Document json.RawMessage // full source representation, nil until details are fetched
}

// Loaded reports whether the issue has been created on the destination.
func (i *Issue) Loaded() bool {
	return i.DestUID != nil
}

// HasDocument reports whether the full source representation was fetched.
func (i *Issue) HasDocument() bool {
	return len(i.Document) > 0 && string(i.Document) != "null"
}

// issueJSON is the JSON wire format for Issue. The raw document is left out;
// it is available through the show command.
type issueJSON struct {
	Key         string `json:"key"`
	UID         int64  `json:"uid"`
	Number      int    `json:"number"`
	Link        string `json:"link"`
	DestUID     *int64 `json:"uid_dest"`
	DestLink    string `json:"link_dest"`
	HasDocument bool   `json:"has_document"`
}

// MarshalJSON implements custom JSON serialization for Issue.
func (i Issue) MarshalJSON() ([]byte, error) {
	return json.Marshal(issueJSON{
		Key:         i.Key,
		UID:         i.UID,
		Number:      i.Number,
		Link:        i.Link,
		DestUID:     i.DestUID,
		DestLink:    i.DestLink,
		HasDocument: i.HasDocument(),
	})
}

// FormatKey returns an issue key for a project and position, e.g. "PROJ-5".
func FormatKey(project string, number int) string {
	return fmt.Sprintf("%s-%d", project, number)
}

// ParseKey splits an issue key into its project key and numeric suffix.
// The suffix must be a positive integer.
func ParseKey(key string) (string, int, error) {
	s := strings.TrimSpace(key)
	idx := strings.LastIndex(s, "-")
	if idx <= 0 || idx == len(s)-1 {
		return "", 0, fmt.Errorf("invalid issue key %q: want PROJECT-N", key)
	}

	n, err := strconv.Atoi(s[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("invalid issue key %q: %w", key, err)
	}
	if n <= 0 {
		return "", 0, fmt.Errorf("invalid issue key %q: number must be positive", key)
	}

	return s[:idx], n, nil
}

// Rekey returns key with its project prefix replaced by project, keeping the
// numeric suffix.
func Rekey(key, project string) (string, error) {
	_, n, err := ParseKey(key)
	if err != nil {
		return "", err
	}
	return FormatKey(project, n), nil
}
