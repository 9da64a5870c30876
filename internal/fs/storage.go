// Package fs stores file content on the local filesystem, one blob per
// storage name inside a single data directory.
package fs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Storage implements files.BlobStorage using the filesystem.
type Storage struct {
	dataDir string
}

// NewStorage creates a new filesystem storage rooted at dataDir.
func NewStorage(dataDir string) *Storage {
	return &Storage{
		dataDir: dataDir,
	}
}

// Save streams content into a blob and returns the number of bytes written.
// A failed or aborted write removes the partial file.
func (s *Storage) Save(name string, content io.Reader) (int64, error) {
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create data directory: %w", err)
	}

	blobPath := filepath.Join(s.dataDir, name)
	file, err := os.Create(blobPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}

	size, err := io.Copy(file, content)
	if err != nil {
		file.Close()
		os.Remove(blobPath)
		return 0, fmt.Errorf("failed to write file content: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(blobPath)
		return 0, fmt.Errorf("failed to close file: %w", err)
	}

	return size, nil
}

// Open returns a reader for the blob content.
func (s *Storage) Open(name string) (io.ReadCloser, error) {
	file, err := os.Open(filepath.Join(s.dataDir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob not found")
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Delete removes a blob. A missing blob is not an error.
func (s *Storage) Delete(name string) error {
	if err := os.Remove(filepath.Join(s.dataDir, name)); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Exists checks if a blob exists.
func (s *Storage) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(s.dataDir, name))
	return !os.IsNotExist(err)
}
