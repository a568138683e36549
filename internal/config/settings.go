package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Default values applied by Load when the settings file leaves them out.
const (
	DefaultEpicNameField = "customfield_10004"
	DefaultSubtaskTypeID = "10000"
)

// Values of mappings.external_links.
const (
	ExternalLinksReplay = "replay"
	ExternalLinksSkip   = "skip"
)

// Environment variables that override passwords from the settings file.
const (
	EnvSourcePassword      = "FERRY_SOURCE_PASSWORD"
	EnvDestinationPassword = "FERRY_DESTINATION_PASSWORD"
	EnvDefaultUserPassword = "FERRY_DEFAULT_USER_PASSWORD"
)

// Settings is the migration configuration. It is loaded once per run and
// passed to the extractor and loader; nothing modifies it afterwards.
type Settings struct {
	Source      Source      `yaml:"source" json:"source"`
	Destination Destination `yaml:"destination" json:"destination"`
	Mappings    Mappings    `yaml:"mappings" json:"mappings"`
}

// Source describes the instance data is extracted from.
type Source struct {
	Host       string `yaml:"host" json:"host"`
	Username   string `yaml:"username" json:"username"`
	Password   string `yaml:"password" json:"-"`
	ProjectKey string `yaml:"project_key" json:"project_key"`
}

// Destination describes the instance data is loaded into. Username is the
// administrator used for REST calls and the admin web session.
type Destination struct {
	Host                string `yaml:"host" json:"host"`
	Username            string `yaml:"username" json:"username"`
	Password            string `yaml:"password" json:"-"`
	ProjectKey          string `yaml:"project_key" json:"project_key"`
	ProjectID           int64  `yaml:"project_id" json:"project_id"`
	DefaultUserPassword string `yaml:"default_user_password" json:"-"`
}

// Mappings are the environment-specific tables translating source
// identifiers into destination ones.
type Mappings struct {
	// IssueTypes maps a source issue type id to a destination one. Only a
	// mapping onto EpicTypeID changes the created type.
	IssueTypes    map[string]string `yaml:"issue_types" json:"issue_types"`
	StoryTypeID   string            `yaml:"story_type_id" json:"story_type_id"`
	EpicTypeID    string            `yaml:"epic_type_id" json:"epic_type_id"`
	EpicNameField string            `yaml:"epic_name_field" json:"epic_name_field"`

	// SubtaskTypeIDs are source issue type ids converted into sub-tasks;
	// SubtaskTypeID is the destination sub-task type they become.
	SubtaskTypeIDs []string `yaml:"subtask_type_ids" json:"subtask_type_ids"`
	SubtaskTypeID  string   `yaml:"subtask_type_id" json:"subtask_type_id"`

	// Statuses maps a source status name to a destination transition id.
	// An empty id means the issue is already in the right status.
	Statuses map[string]string `yaml:"statuses" json:"statuses"`

	// LinkTypes maps a source link type name to a destination one.
	LinkTypes map[string]string `yaml:"link_types" json:"link_types"`

	// ExternalLinks decides what happens to links whose other end is in
	// another project: "replay" posts the key unchanged, "skip" drops them.
	ExternalLinks string `yaml:"external_links" json:"external_links"`
}

// IsSubtaskType reports whether a source issue type id is converted into a
// sub-task.
func (m *Mappings) IsSubtaskType(id string) bool {
	for _, s := range m.SubtaskTypeIDs {
		if s == id {
			return true
		}
	}
	return false
}

// Load reads settings from a YAML file, applies environment overrides and
// defaults, and validates the result.
func Load(path string) (*Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening settings: %w", err)
	}
	defer f.Close()

	s, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes settings from r. Unknown keys are rejected so a typo in a
// mapping name does not silently drop the mapping.
func Parse(r io.Reader) (*Settings, error) {
	var s Settings
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("settings file is empty")
		}
		return nil, fmt.Errorf("parsing settings: %w", err)
	}

	s.applyEnv()
	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) applyEnv() {
	if v := os.Getenv(EnvSourcePassword); v != "" {
		s.Source.Password = v
	}
	if v := os.Getenv(EnvDestinationPassword); v != "" {
		s.Destination.Password = v
	}
	if v := os.Getenv(EnvDefaultUserPassword); v != "" {
		s.Destination.DefaultUserPassword = v
	}
}

func (s *Settings) applyDefaults() {
	if s.Mappings.EpicNameField == "" {
		s.Mappings.EpicNameField = DefaultEpicNameField
	}
	if s.Mappings.SubtaskTypeID == "" {
		s.Mappings.SubtaskTypeID = DefaultSubtaskTypeID
	}
	if s.Mappings.ExternalLinks == "" {
		s.Mappings.ExternalLinks = ExternalLinksReplay
	}
}

// Validate reports every missing required setting at once.
func (s *Settings) Validate() error {
	var errs []error
	require := func(name, value string) {
		if value == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}

	require("source.host", s.Source.Host)
	require("source.username", s.Source.Username)
	require("source.password", s.Source.Password)
	require("source.project_key", s.Source.ProjectKey)

	require("destination.host", s.Destination.Host)
	require("destination.username", s.Destination.Username)
	require("destination.password", s.Destination.Password)
	require("destination.project_key", s.Destination.ProjectKey)
	require("destination.default_user_password", s.Destination.DefaultUserPassword)
	if s.Destination.ProjectID <= 0 {
		errs = append(errs, errors.New("destination.project_id must be a positive number"))
	}

	require("mappings.story_type_id", s.Mappings.StoryTypeID)
	for src, dst := range s.Mappings.LinkTypes {
		if dst == "" {
			errs = append(errs, fmt.Errorf("mappings.link_types[%q] is empty", src))
		}
	}

	switch s.Mappings.ExternalLinks {
	case "", ExternalLinksReplay, ExternalLinksSkip:
	default:
		errs = append(errs, fmt.Errorf("mappings.external_links must be %q or %q, got %q",
			ExternalLinksReplay, ExternalLinksSkip, s.Mappings.ExternalLinks))
	}

	return errors.Join(errs...)
}

const sample = `# ferry settings. Passwords may instead be supplied through
# FERRY_SOURCE_PASSWORD, FERRY_DESTINATION_PASSWORD and
# FERRY_DEFAULT_USER_PASSWORD.
source:
  host: https://jira-old.example.com
  username: admin
  password: ""
  project_key: PROJ

destination:
  host: https://jira.example.com
  username: admin
  password: ""
  project_key: PROJ
  project_id: 10000
  default_user_password: ""

mappings:
  # source issue type id -> destination issue type id
  issue_types:
    "10000": "10000"
  story_type_id: "10001"
  epic_type_id: "10000"
  epic_name_field: customfield_10004

  # source issue type ids converted into sub-tasks of their parent
  subtask_type_ids: ["10003"]
  subtask_type_id: "10000"

  # source status name -> destination transition id ("" = no transition)
  statuses:
    Open: ""
    In Progress: "21"
    Done: "31"

  # source link type name -> destination link type name
  link_types:
    Blocks: Blocks
    Relates: Relates

  # links to issues in other projects: replay (key unchanged) or skip
  external_links: replay
`

// Sample returns a commented starter settings file.
func Sample() []byte {
	return bytes.Clone([]byte(sample))
}
