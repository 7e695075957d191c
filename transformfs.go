package cloakkit

import (
	"context"
	"io"
)

// TransformFS is a FileSystem decorator that stores content transformed.
// Write applies the transform on the way in, Read applies its inverse on the
// way out, so callers always see plain bytes. Both directions stream through
// a bounded buffer; listings and metadata are passed through untouched since
// transforms preserve length.
type TransformFS struct {
	fs        FileSystem
	transform Transform
}

// NewTransformFS wraps fs with t.
func NewTransformFS(fs FileSystem, t Transform) *TransformFS {
	return &TransformFS{
		fs:        fs,
		transform: t,
	}
}

// Write transforms content before writing
func (e *TransformFS) Write(ctx context.Context, path string, content io.Reader, options ...Option) error {
	return e.fs.Write(ctx, path, NewReader(content, e.transform), options...)
}

// Read restores the original content after reading
func (e *TransformFS) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	rc, err := e.fs.Read(ctx, path)
	if err != nil {
		return nil, err
	}

	return &transformReadCloser{
		Reader: NewReader(rc, e.transform.Inverse()),
		closer: rc,
	}, nil
}

// Delete delegates to the underlying filesystem
func (e *TransformFS) Delete(ctx context.Context, path string) error {
	return e.fs.Delete(ctx, path)
}

// Stat delegates to the underlying filesystem
func (e *TransformFS) Stat(ctx context.Context, path string) (*FileInfo, error) {
	return e.fs.Stat(ctx, path)
}

// ListContents delegates to the underlying filesystem
func (e *TransformFS) ListContents(ctx context.Context, path string) ([]FileInfo, error) {
	return e.fs.ListContents(ctx, path)
}

// CreateDir delegates to the underlying filesystem
func (e *TransformFS) CreateDir(ctx context.Context, path string) error {
	return e.fs.CreateDir(ctx, path)
}

type transformReadCloser struct {
	io.Reader
	closer io.Closer
}

func (t *transformReadCloser) Close() error {
	return t.closer.Close()
}

// Verify interface compliance at compile time
var (
	_ FileSystem = (*TransformFS)(nil)
	_ FileReader = (*TransformFS)(nil)
	_ FileWriter = (*TransformFS)(nil)
)
