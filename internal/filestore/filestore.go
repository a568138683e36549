// Package filestore keeps downloaded attachment content on local disk.
package filestore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Store is a directory of files addressed by slash-free relative paths such
// as "PROJ-1/screen.png".
type Store struct {
	Root string
}

// New returns a Store rooted at dir. The directory is created on first write.
func New(dir string) *Store {
	return &Store{Root: dir}
}

// Path returns the absolute location of rel inside the store.
func (s *Store) Path(rel string) (string, error) {
	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) || clean == "." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || clean == ".." {
		return "", fmt.Errorf("invalid store path %q", rel)
	}
	return filepath.Join(s.Root, clean), nil
}

// Write stores the content of r at rel, replacing any existing file, and
// returns the number of bytes written.
func (s *Store) Write(rel string, r io.Reader) (int64, error) {
	return s.WriteFunc(rel, func(w io.Writer) (int64, error) {
		return io.Copy(w, r)
	})
}

// WriteFunc stores whatever fill writes at rel. The file only appears once
// fill has returned without error; on failure any previous file is kept.
func (s *Store) WriteFunc(rel string, fill func(w io.Writer) (int64, error)) (int64, error) {
	dst, err := s.Path(rel)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := fill(tmp)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("writing %s: %w", rel, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("closing %s: %w", rel, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return 0, fmt.Errorf("moving %s into place: %w", rel, err)
	}
	return n, nil
}

// Open opens the stored file at rel for reading.
func (s *Store) Open(rel string) (*os.File, error) {
	p, err := s.Path(rel)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// Clear removes every stored file. A missing root is not an error.
func (s *Store) Clear() error {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading store: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.Root, e.Name())); err != nil {
			return fmt.Errorf("removing %s: %w", e.Name(), err)
		}
	}
	return nil
}
