package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Writer hashes everything written to it and counts the bytes.
type Writer struct {
	h hash.Hash
	n int64
}

// NewWriter returns a SHA-256 Writer.
func NewWriter() *Writer {
	return &Writer{h: sha256.New()}
}

func (w *Writer) Write(p []byte) (int, error) {
	n, _ := w.h.Write(p)
	w.n += int64(n)
	return n, nil
}

// Hex returns the digest of everything written so far.
func (w *Writer) Hex() string {
	return hex.EncodeToString(w.h.Sum(nil))
}

// Size returns the number of bytes written.
func (w *Writer) Size() int64 { return w.n }

// File hashes the contents of r.
func File(r io.Reader) (string, int64, error) {
	w := NewWriter()
	if _, err := io.Copy(w, r); err != nil {
		return "", 0, err
	}
	return w.Hex(), w.Size(), nil
}
