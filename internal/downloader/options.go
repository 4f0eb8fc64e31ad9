package downloader

import (
	"log/slog"
	"net/http"
	"time"
)

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient sets the client used for audio and thumbnail requests.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) {
		m.client = c
	}
}

// WithTimeout bounds each transfer. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.timeout = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithEventHandler registers fn to receive lifecycle events. fn is called
// synchronously and must not block.
func WithEventHandler(fn EventHandler) Option {
	return func(m *Manager) {
		m.onEvent = fn
	}
}

// WithConcurrency caps parallel transfers started by DownloadBatch.
func WithConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// WithRateLimit paces DownloadBatch requests to rps per second.
// Zero or negative means unlimited.
func WithRateLimit(rps float64) Option {
	return func(m *Manager) {
		m.rps = rps
	}
}

// WithUserAgent sets the User-Agent header on outgoing requests.
func WithUserAgent(ua string) Option {
	return func(m *Manager) {
		if ua != "" {
			m.userAgent = ua
		}
	}
}
