package models

import "time"

// CacheStatus is the persisted state of a cache entry.
type CacheStatus string

const (
	StatusCached      CacheStatus = "cached"
	StatusDownloading CacheStatus = "downloading"
	StatusFailed      CacheStatus = "failed"
)

// CacheEntry records a locally cached audio file.
type CacheEntry struct {
	SoundID      string      `json:"soundId"`
	LocalPath    string      `json:"localPath"`
	DownloadedAt time.Time   `json:"downloadedAt"`
	FileSize     int64       `json:"fileSize"`
	Status       CacheStatus `json:"status"`
	Checksum     string      `json:"checksum,omitempty"`
}

// TaskState is the lifecycle stage of an in-flight download.
type TaskState string

const (
	TaskPending     TaskState = "pending"
	TaskDownloading TaskState = "downloading"
)

// DownloadProgress is a snapshot of an in-flight download task.
type DownloadProgress struct {
	SoundID   string    `json:"soundId"`
	TaskID    string    `json:"taskId"`
	Progress  float64   `json:"progress"` // 0..1, 0 when the size is unknown
	Received  int64     `json:"received"`
	Total     int64     `json:"total"`
	State     TaskState `json:"state"`
	StartedAt time.Time `json:"startedAt"`
}
