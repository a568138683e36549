package model

import "encoding/json"

// Version is a release of the source project.
type Version struct {
	ID       int             `json:"-"`
	UID      string          `json:"uid"`
	Name     string          `json:"name"`
	Link     string          `json:"link"`
	Document json.RawMessage `json:"-"`
}
