package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveUsesEnvVar(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FERRY_PATH", dir)

	cfg, err := Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !cfg.EnvVarSet {
		t.Error("EnvVarSet = false, want true")
	}
	if cfg.Dir != dir {
		t.Errorf("Dir = %q, want %q", cfg.Dir, dir)
	}
	if cfg.DBPath != filepath.Join(dir, "ferry.db") {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.SettingsPath != filepath.Join(dir, "ferry.yaml") {
		t.Errorf("SettingsPath = %q", cfg.SettingsPath)
	}
	if cfg.AttachmentsDir != filepath.Join(dir, "attachments") {
		t.Errorf("AttachmentsDir = %q", cfg.AttachmentsDir)
	}
}

func TestResolveFallsBackToCwd(t *testing.T) {
	t.Setenv("FERRY_PATH", "")

	cfg, err := Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.EnvVarSet {
		t.Error("EnvVarSet = true, want false")
	}
	if filepath.Base(cfg.Dir) != ".ferry" {
		t.Errorf("Dir = %q, want a .ferry directory", cfg.Dir)
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FERRY_PATH", dir)
	cfg, err := Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	ok, err := cfg.Exists()
	if err != nil || ok {
		t.Fatalf("Exists before db = %v, %v", ok, err)
	}
	if err := os.WriteFile(cfg.DBPath, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	ok, err = cfg.Exists()
	if err != nil || !ok {
		t.Errorf("Exists after db = %v, %v", ok, err)
	}
}

func clearPasswordEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvSourcePassword, "")
	t.Setenv(EnvDestinationPassword, "")
	t.Setenv(EnvDefaultUserPassword, "")
}

const validSettings = `
source:
  host: https://old.example.com
  username: reader
  password: src-pw
  project_key: PROJ
destination:
  host: https://new.example.com
  username: admin
  password: dst-pw
  project_key: DEST
  project_id: 10100
  default_user_password: changeme
mappings:
  story_type_id: "10001"
  epic_type_id: "10000"
  issue_types: {"6": "10000"}
  subtask_type_ids: ["5"]
  statuses:
    Open: ""
    Done: "31"
  link_types:
    Blocks: Blocks
`

func TestParseValid(t *testing.T) {
	clearPasswordEnv(t)

	s, err := Parse(strings.NewReader(validSettings))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.Destination.ProjectID != 10100 || s.Destination.ProjectKey != "DEST" {
		t.Errorf("destination = %+v", s.Destination)
	}
	if s.Mappings.EpicNameField != DefaultEpicNameField {
		t.Errorf("EpicNameField = %q, want default", s.Mappings.EpicNameField)
	}
	if s.Mappings.SubtaskTypeID != DefaultSubtaskTypeID {
		t.Errorf("SubtaskTypeID = %q, want default", s.Mappings.SubtaskTypeID)
	}
	if id, ok := s.Mappings.Statuses["Open"]; !ok || id != "" {
		t.Errorf("Statuses[Open] = %q, %v; want explicit empty", id, ok)
	}
	if !s.Mappings.IsSubtaskType("5") || s.Mappings.IsSubtaskType("6") {
		t.Error("IsSubtaskType mismatch")
	}
	if s.Mappings.ExternalLinks != ExternalLinksReplay {
		t.Errorf("ExternalLinks = %q, want default %q", s.Mappings.ExternalLinks, ExternalLinksReplay)
	}
}

func TestParseExternalLinks(t *testing.T) {
	clearPasswordEnv(t)

	s, err := Parse(strings.NewReader(validSettings + "  external_links: skip\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.Mappings.ExternalLinks != ExternalLinksSkip {
		t.Errorf("ExternalLinks = %q, want %q", s.Mappings.ExternalLinks, ExternalLinksSkip)
	}

	_, err = Parse(strings.NewReader(validSettings + "  external_links: drop\n"))
	if err == nil || !strings.Contains(err.Error(), "mappings.external_links") {
		t.Errorf("expected external_links validation error, got %v", err)
	}
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv(EnvSourcePassword, "env-src")
	t.Setenv(EnvDestinationPassword, "env-dst")
	t.Setenv(EnvDefaultUserPassword, "env-default")

	s, err := Parse(strings.NewReader(validSettings))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.Source.Password != "env-src" || s.Destination.Password != "env-dst" || s.Destination.DefaultUserPassword != "env-default" {
		t.Errorf("env overrides not applied: %+v %+v", s.Source, s.Destination)
	}
}

func TestParseReportsAllMissing(t *testing.T) {
	clearPasswordEnv(t)

	_, err := Parse(strings.NewReader("source:\n  host: https://old.example.com\n"))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		"source.username",
		"source.project_key",
		"destination.host",
		"destination.project_id",
		"destination.default_user_password",
		"mappings.story_type_id",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %s: %v", want, err)
		}
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	clearPasswordEnv(t)

	_, err := Parse(strings.NewReader(validSettings + "  link_typez: {}\n"))
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := Parse(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty settings")
	}
}

func TestSampleParses(t *testing.T) {
	clearPasswordEnv(t)
	t.Setenv(EnvSourcePassword, "a")
	t.Setenv(EnvDestinationPassword, "b")
	t.Setenv(EnvDefaultUserPassword, "c")

	if _, err := Parse(strings.NewReader(string(Sample()))); err != nil {
		t.Fatalf("sample settings do not parse: %v", err)
	}
}

func TestLoad(t *testing.T) {
	clearPasswordEnv(t)
	path := filepath.Join(t.TempDir(), "ferry.yaml")
	if err := os.WriteFile(path, []byte(validSettings), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Source.ProjectKey != "PROJ" {
		t.Errorf("ProjectKey = %q", s.Source.ProjectKey)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
