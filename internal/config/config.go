package config

import (
	"os"
	"path/filepath"
)

const (
	dbFileName       = "ferry.db"
	settingsFileName = "ferry.yaml"
	attachmentsDir   = "attachments"
)

// Config holds the resolved locations of the ferry working directory.
type Config struct {
	Dir            string // resolved .ferry directory path
	DBPath         string // full path to ferry.db
	SettingsPath   string // full path to ferry.yaml
	AttachmentsDir string // downloaded attachment content
	EnvVarSet      bool   // whether FERRY_PATH was used
}

// Resolve returns the current configuration by checking FERRY_PATH first,
// then falling back to $PWD/.ferry.
func Resolve() (*Config, error) {
	var dir string
	var envVarSet bool

	if envPath := os.Getenv("FERRY_PATH"); envPath != "" {
		dir = envPath
		envVarSet = true
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(cwd, ".ferry")
	}

	return &Config{
		Dir:            dir,
		DBPath:         filepath.Join(dir, dbFileName),
		SettingsPath:   filepath.Join(dir, settingsFileName),
		AttachmentsDir: filepath.Join(dir, attachmentsDir),
		EnvVarSet:      envVarSet,
	}, nil
}

// Exists checks if the ferry directory and DB file both exist.
// It returns an error for non-existence failures (e.g. permission errors).
func (c *Config) Exists() (bool, error) {
	for _, p := range []string{c.Dir, c.DBPath} {
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				return false, nil
			}
			return false, err
		}
	}
	return true, nil
}
