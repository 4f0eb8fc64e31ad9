package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/lockchime/internal/checksum"
)

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to the cache directory
}

// NewFS creates a new FS provider rooted at the given directory, creating it
// if needed.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute cache directory.
func (f *FS) Root() string { return f.root }

// Path resolves a relative path against the root and rejects any result
// that escapes it (directory traversal).
func (f *FS) Path(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes cache root: %s", rel)
	}
	return abs, nil
}

// WriteStream streams r into rel: part file, then fsync, then rename. The part file
// name is deterministic so a later Reconcile can find leftovers.
func (f *FS) WriteStream(rel string, r io.Reader) (int64, string, error) {
	abs, err := f.Path(rel)
	if err != nil {
		return 0, "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return 0, "", fmt.Errorf("storage: mkdir: %w", err)
	}

	partName := abs + PartialSuffix
	part, err := os.OpenFile(partName, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, "", fmt.Errorf("storage: create part: %w", err)
	}

	success := false
	defer func() {
		if !success {
			_ = part.Close()
			_ = os.Remove(partName)
		}
	}()

	sum := checksum.NewWriter()
	n, err := io.Copy(io.MultiWriter(part, sum), r)
	if err != nil {
		return 0, "", fmt.Errorf("storage: write part: %w", err)
	}
	if err := part.Sync(); err != nil {
		return 0, "", fmt.Errorf("storage: fsync: %w", err)
	}
	if err := part.Close(); err != nil {
		return 0, "", fmt.Errorf("storage: close part: %w", err)
	}
	if err := os.Rename(partName, abs); err != nil {
		return 0, "", fmt.Errorf("storage: rename: %w", err)
	}
	syncDir(filepath.Dir(abs))
	success = true
	return n, sum.Hex(), nil
}

// Stat returns size and modification time of a cache file.
func (f *FS) Stat(rel string) (FileInfo, error) {
	abs, err := f.Path(rel)
	if err != nil {
		return FileInfo{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return FileInfo{}, fmt.Errorf("storage: stat %s: %w", rel, err)
	}
	if info.IsDir() {
		return FileInfo{}, fmt.Errorf("storage: stat %s: is a directory", rel)
	}
	return FileInfo{Path: rel, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Exists reports whether rel is a regular file.
func (f *FS) Exists(rel string) bool {
	_, err := f.Stat(rel)
	return err == nil
}

// Delete removes a cache file.
func (f *FS) Delete(rel string) error {
	abs, err := f.Path(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("storage: delete %s: %w", rel, err)
	}
	return nil
}

// Move renames a file within the cache.
func (f *FS) Move(oldPath, newPath string) error {
	absOld, err := f.Path(oldPath)
	if err != nil {
		return err
	}
	absNew, err := f.Path(newPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(absNew), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir for move: %w", err)
	}
	if err := os.Rename(absOld, absNew); err != nil {
		return fmt.Errorf("storage: move: %w", err)
	}
	return nil
}

// List walks dir (relative to root) and returns every regular file.
func (f *FS) List(dir string) ([]FileInfo, error) {
	base, err := f.Path(dir)
	if err != nil {
		return nil, err
	}
	var out []FileInfo
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(f.root, p)
		out = append(out, FileInfo{
			Path:    filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}

// Purge removes every entry under the root.
func (f *FS) Purge() error {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return fmt.Errorf("storage: purge: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(f.root, e.Name())); err != nil {
			return fmt.Errorf("storage: purge %s: %w", e.Name(), err)
		}
	}
	return nil
}

// syncDir flushes a rename to disk. Errors are ignored; not every platform
// supports fsync on directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
