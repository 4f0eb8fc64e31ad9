package downloader

import "time"

// Event types emitted by the Manager.
const (
	EventDownloadStarted   = "download.started"
	EventDownloadCompleted = "download.completed"
	EventDownloadFailed    = "download.failed"
	EventDownloadCancelled = "download.cancelled"
	EventCacheCleared      = "cache.cleared"
	EventCacheRemoved      = "cache.removed"
)

// Event describes a download or cache lifecycle change.
type Event struct {
	Type    string    `json:"type"`
	SoundID string    `json:"soundId,omitempty"`
	TaskID  string    `json:"taskId,omitempty"`
	Path    string    `json:"path,omitempty"`
	Size    int64     `json:"size,omitempty"`
	Error   string    `json:"error,omitempty"`
	Time    time.Time `json:"time"`
}

// EventHandler receives Manager events.
type EventHandler func(Event)

func (m *Manager) emit(ev Event) {
	if m.onEvent == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	m.onEvent(ev)
}
