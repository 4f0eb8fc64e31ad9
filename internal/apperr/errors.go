package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrAlreadyExists      = errors.New("already exists")
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	ErrCancelled          = errors.New("download cancelled")
)

// CatalogLoadError means the catalog document is malformed at the top level.
type CatalogLoadError struct {
	Reason string
	Err    error
}

func (e *CatalogLoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("catalog load: %s: %v", e.Reason, e.Err)
	}
	return "catalog load: " + e.Reason
}

func (e *CatalogLoadError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrCatalogUnavailable) match any load failure.
func (e *CatalogLoadError) Is(target error) bool { return target == ErrCatalogUnavailable }

// ValidationIssue is a single non-fatal catalog schema violation.
type ValidationIssue struct {
	Path    string `json:"path"` // e.g. "sounds[3].sourceId"
	Message string `json:"message"`
}

func (v ValidationIssue) Error() string {
	if v.Path == "" {
		return v.Message
	}
	return v.Path + ": " + v.Message
}

// DownloadError is returned for any failed or cancelled transfer.
type DownloadError struct {
	SoundID   string
	Cancelled bool
	Err       error
}

func (e *DownloadError) Error() string {
	if e.Cancelled {
		return fmt.Sprintf("download %s: cancelled", e.SoundID)
	}
	return fmt.Sprintf("download %s: %v", e.SoundID, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

func (e *DownloadError) Is(target error) bool {
	return e.Cancelled && target == ErrCancelled
}

// CacheIOError wraps a durable-store failure; the in-memory index is unchanged.
type CacheIOError struct {
	Op  string
	Err error
}

func (e *CacheIOError) Error() string {
	return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
}

func (e *CacheIOError) Unwrap() error { return e.Err }
