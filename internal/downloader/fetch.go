package downloader

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/starford/lockchime/internal/models"
)

const sniffLen = 512

var (
	errEmptyBody = errors.New("empty response body")
	errNotAudio  = errors.New("response is not an audio file")
)

// fetch issues a GET for url and returns the open body and its declared
// length (-1 when unknown). The caller closes the body.
func (m *Manager) fetch(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", m.userAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return resp.Body, resp.ContentLength, nil
}

// sniffAudio peeks at the head of r and rejects bodies that are clearly not
// audio, such as HTML error pages served with a 200. Unknown signatures are
// let through; only the expected format is strictly checked.
func sniffAudio(r *bufio.Reader, format models.AudioFormat) error {
	head, err := r.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return err
	}
	if len(head) == 0 {
		return errEmptyBody
	}

	switch {
	case isWAV(head), isMP3(head):
		return nil
	}

	n := min(len(head), 100)
	lower := strings.ToLower(string(head[:n]))
	if strings.Contains(lower, "<html") || strings.Contains(lower, "<!doctype") {
		return fmt.Errorf("%w: got HTML", errNotAudio)
	}
	if format == models.FormatWAV && len(head) >= 4 {
		return fmt.Errorf("%w: missing RIFF header", errNotAudio)
	}
	return nil
}

func isWAV(head []byte) bool {
	return len(head) >= 4 && bytes.Equal(head[:4], []byte("RIFF"))
}

func isMP3(head []byte) bool {
	if len(head) >= 3 && bytes.Equal(head[:3], []byte("ID3")) {
		return true
	}
	return len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0
}

// progressReader counts bytes read into the owning task.
type progressReader struct {
	r io.Reader
	t *task
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.t.received.Add(int64(n))
	}
	return n, err
}
