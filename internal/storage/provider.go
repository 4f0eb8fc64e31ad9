// Package storage defines the cache directory file-system abstraction.
package storage

import (
	"io"
	"time"
)

// PartialSuffix marks a file that is still being written.
const PartialSuffix = ".part"

// FileInfo describes one file under the cache root.
type FileInfo struct {
	Path    string    `json:"path"` // relative to the cache root
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// Provider is the interface for cache file operations.
type Provider interface {
	// Root returns the absolute cache directory.
	Root() string
	// Path resolves rel against the root, rejecting traversal.
	Path(rel string) (string, error)
	// WriteStream copies r into rel via rel+".part", fsync and rename.
	// It returns the byte count and the SHA-256 of what was written.
	WriteStream(rel string, r io.Reader) (int64, string, error)
	// Stat returns information about rel.
	Stat(rel string) (FileInfo, error)
	// Exists reports whether rel is a regular file.
	Exists(rel string) bool
	// Delete removes rel.
	Delete(rel string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
	// List returns every regular file under dir (relative to root).
	List(dir string) ([]FileInfo, error)
	// Purge removes everything under the root, leaving the root itself.
	Purge() error
}
