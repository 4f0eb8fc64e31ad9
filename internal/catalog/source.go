package catalog

import (
	_ "embed"
	"fmt"
	"os"
)

//go:embed data/sound-catalog.json
var embeddedCatalog []byte

// Source supplies the raw catalog document.
type Source interface {
	// Name identifies the document; its extension selects the decoder.
	Name() string
	Read() ([]byte, error)
}

type bytesSource struct {
	name string
	data []byte
}

func (b bytesSource) Name() string          { return b.name }
func (b bytesSource) Read() ([]byte, error) { return b.data, nil }

// EmbeddedSource returns the catalog shipped inside the binary.
func EmbeddedSource() Source {
	return bytesSource{name: "embedded:sound-catalog.json", data: embeddedCatalog}
}

// BytesSource wraps an in-memory document. name should carry a .json or
// .yaml extension.
func BytesSource(name string, data []byte) Source {
	return bytesSource{name: name, data: data}
}

type fileSource struct{ path string }

// FileSource reads the catalog from a file on disk.
func FileSource(path string) Source {
	return fileSource{path: path}
}

func (f fileSource) Name() string { return f.path }

func (f fileSource) Read() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	return data, nil
}
