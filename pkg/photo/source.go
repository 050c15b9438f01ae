package photo

import (
	"bytes"
	"io"
	"os"
)

// BytesSource is an in-memory photo, e.g. an HTTP upload.
type BytesSource struct {
	Data []byte
	MIME string
}

func (s BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.Data)), nil
}

func (s BytesSource) MIMEType() string { return s.MIME }

// FileSource reads a photo from a path on disk.
type FileSource struct {
	Path string
	MIME string
}

func (s FileSource) Open() (io.ReadCloser, error) {
	return os.Open(s.Path)
}

func (s FileSource) MIMEType() string { return s.MIME }
