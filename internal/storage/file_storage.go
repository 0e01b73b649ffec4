// Package storage manages destination files under the download directory.
// The partial file on disk is the durable source of truth for paused
// transfers: its size is where a later resume picks up.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileStorage provides methods to manage destination files rooted at a
// single directory.
type FileStorage struct {
	dir string
}

// NewFileStorage creates a new FileStorage instance with the given directory.
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{dir: dir}
}

// Path returns the absolute path for a destination relative to the root.
func (s *FileStorage) Path(dest string) string {
	return filepath.Join(s.dir, dest)
}

// PartialSize returns the size of an existing destination file, or 0 and
// false if the file does not exist.
func (s *FileStorage) PartialSize(dest string) (int64, bool, error) {
	info, err := os.Stat(s.Path(dest))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("stat destination: %w", err)
	}
	return info.Size(), true, nil
}

// Create truncates or creates the destination file, making parent
// directories as needed.
func (s *FileStorage) Create(dest string) (*os.File, error) {
	path := s.Path(dest)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create destination dir: %w", err)
	}
	return os.Create(path)
}

// OpenAppend opens the destination file for appending, for resumed
// transfers.
func (s *FileStorage) OpenAppend(dest string) (*os.File, error) {
	return os.OpenFile(s.Path(dest), os.O_WRONLY|os.O_APPEND, 0o644)
}

// Remove deletes the destination file. Missing files are not an error.
func (s *FileStorage) Remove(dest string) error {
	err := os.Remove(s.Path(dest))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove destination: %w", err)
	}
	return nil
}
