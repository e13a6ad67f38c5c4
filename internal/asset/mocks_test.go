package asset

import (
	"errors"
	"io"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type failingSource struct {
	openErr error
	readErr error
}

func (f failingSource) Name() string        { return "broken.png" }
func (f failingSource) ContentType() string { return "image/png" }
func (f failingSource) Open() (io.ReadCloser, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return io.NopCloser(errReader{err: f.readErr}), nil
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

var errDisk = errors.New("disk unplugged")
