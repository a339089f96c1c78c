package files

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Source supplies the content of an upload.
type Source interface {
	// Open returns the content and its exact size in bytes.
	Open() (io.ReadCloser, int64, error)
}

// defaults is implemented by sources that can name their content.
type defaults interface {
	defaultName() string
	defaultContentType(name string) string
}

type pathSource struct{ path string }

// FromPath uploads the regular file at path. The file name and a content
// type detected from its extension are used unless the FileInput sets them.
func FromPath(path string) Source { return pathSource{path: path} }

func (s pathSource) Open() (io.ReadCloser, int64, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return nil, 0, validationError("%v", err)
	}
	if !info.Mode().IsRegular() {
		return nil, 0, validationError("%s is not a regular file", s.path)
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, 0, validationError("%v", err)
	}
	return f, info.Size(), nil
}

func (s pathSource) defaultName() string { return filepath.Base(s.path) }
func (s pathSource) defaultContentType(name string) string { return DetectContentType(name) }

type bytesSource struct {
	data        []byte
	contentType string
}

// FromBytes uploads data; the content type defaults to application/octet-stream.
func FromBytes(data []byte) Source {
	return bytesSource{data: data, contentType: octetStream}
}

// FromString uploads s; the content type defaults to text/plain.
func FromString(s string) Source {
	return bytesSource{data: []byte(s), contentType: "text/plain"}
}

func (s bytesSource) Open() (io.ReadCloser, int64, error) {
	return io.NopCloser(bytes.NewReader(s.data)), int64(len(s.data)), nil
}

func (s bytesSource) defaultName() string { return "" }
func (s bytesSource) defaultContentType(string) string { return s.contentType }

type readerSource struct {
	r    io.Reader
	size int64
}

// FromReader uploads size bytes read from r. The size must be known up front
// because the object store requires a Content-Length.
func FromReader(r io.Reader, size int64) Source {
	return readerSource{r: r, size: size}
}

func (s readerSource) Open() (io.ReadCloser, int64, error) {
	if s.r == nil {
		return nil, 0, validationError("reader is nil")
	}
	if s.size <= 0 {
		return nil, 0, validationError("stream uploads need a positive size, got %d", s.size)
	}
	rc, ok := s.r.(io.ReadCloser)
	if !ok {
		rc = io.NopCloser(s.r)
	}
	return rc, s.size, nil
}

func (s readerSource) defaultName() string { return "" }
func (s readerSource) defaultContentType(name string) string {
	return DetectContentType(name)
}

// resolve fills the name, size and content type of in from src and checks
// the result. No network call happens before it succeeds.
func resolve(src Source, in FileInput) (FileInput, io.ReadCloser, error) {
	if src == nil {
		return in, nil, validationError("no upload source")
	}
	rc, size, err := src.Open()
	if err != nil {
		return in, nil, err
	}
	fail := func(err error) (FileInput, io.ReadCloser, error) {
		rc.Close()
		return in, nil, err
	}

	d, _ := src.(defaults)
	if in.Name == "" && d != nil {
		in.Name = d.defaultName()
	}
	if strings.TrimSpace(in.Name) == "" {
		return fail(validationError("file name is required"))
	}
	if in.Size != 0 && in.Size != size {
		return fail(validationError("declared size %d does not match content size %d", in.Size, size))
	}
	in.Size = size
	if in.ContentType == "" {
		if d != nil {
			in.ContentType = d.defaultContentType(in.Name)
		} else {
			in.ContentType = DetectContentType(in.Name)
		}
	}
	if !validContentType(in.ContentType) {
		return fail(validationError("invalid content type %q", in.ContentType))
	}
	return in, rc, nil
}
