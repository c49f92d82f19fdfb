package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrInvalidName is returned for names that would escape the store root.
var ErrInvalidName = errors.New("invalid picture name")

// Store writes pictures under a root directory.
type Store struct {
	fs   FileSystem
	root string
}

// New returns a store rooted at root.
func New(fsys FileSystem, root string) *Store {
	if fsys == nil {
		fsys = OSFileSystem{}
	}
	return &Store{fs: fsys, root: root}
}

// Root returns the directory pictures are written to.
func (s *Store) Root() string { return s.root }

// Path returns the full path for name.
func (s *Store) Path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.root, name), nil
}

// Write stores data as name, creating the root directory on first use.
func (s *Store) Write(name string, data []byte) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create picture directory %s: %w", s.root, err)
	}
	if err := s.fs.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write picture %s: %w", path, err)
	}
	return nil
}

// Read returns a stored picture.
func (s *Store) Read(name string) ([]byte, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	return s.fs.ReadFile(path)
}
