package asset

import (
	"bytes"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
)

// Source is a readable file handed to the encoder.
type Source interface {
	Name() string
	ContentType() string
	Open() (io.ReadCloser, error)
}

type fileHeaderSource struct {
	fh *multipart.FileHeader
}

// FromFileHeader wraps a multipart upload.
func FromFileHeader(fh *multipart.FileHeader) Source {
	return fileHeaderSource{fh: fh}
}

func (s fileHeaderSource) Name() string                 { return s.fh.Filename }
func (s fileHeaderSource) ContentType() string          { return s.fh.Header.Get("Content-Type") }
func (s fileHeaderSource) Open() (io.ReadCloser, error) { return s.fh.Open() }

type bytesSource struct {
	name, contentType string
	data              []byte
}

// FromBytes wraps bytes already in memory.
func FromBytes(name, contentType string, data []byte) Source {
	return bytesSource{name: name, contentType: contentType, data: data}
}

func (s bytesSource) Name() string        { return s.name }
func (s bytesSource) ContentType() string { return s.contentType }
func (s bytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

type pathSource struct {
	path string
}

// FromPath wraps a file on the local disk. The content type is sniffed.
func FromPath(path string) Source {
	return pathSource{path: path}
}

func (s pathSource) Name() string                 { return filepath.Base(s.path) }
func (s pathSource) ContentType() string          { return "" }
func (s pathSource) Open() (io.ReadCloser, error) { return os.Open(s.path) }
