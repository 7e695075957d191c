package cloakkit

import (
	"context"
	"errors"
	"io"
)

// ErrReadOnly is returned when a write operation is attempted on a read-only filesystem.
var ErrReadOnly = errors.New("filesystem is read-only")

// ============================================================================
// ReadOnlyFileSystem Decorator
// ============================================================================

// ReadOnlyFileSystem wraps a FileSystem to prevent all write operations.
// The pipeline wraps its source with it so a misconfigured destination can
// never write back into the tree being read.
//
// Example:
//
//	fs, _ := local.New("/data")
//	readOnly := cloakkit.NewReadOnlyFileSystem(fs)
//
//	// Read operations work normally
//	reader, _ := readOnly.Read(ctx, "file.txt")
//
//	// Write operations return ErrReadOnly
//	err := readOnly.Write(ctx, "file.txt", reader)
type ReadOnlyFileSystem struct {
	fs   FileReader
	opts ReadOnlyOptions
}

// ReadOnlyOptions configures the ReadOnlyFileSystem behavior.
type ReadOnlyOptions struct {
	// OnWriteAttempt is called when a write operation is attempted, for
	// logging or metrics. Its return value replaces ErrReadOnly when non-nil.
	OnWriteAttempt func(op, path string) error
}

// ReadOnlyOption is a functional option for configuring ReadOnlyFileSystem.
type ReadOnlyOption func(*ReadOnlyOptions)

// WithWriteAttemptHandler sets a custom handler for write attempts.
func WithWriteAttemptHandler(handler func(op, path string) error) ReadOnlyOption {
	return func(o *ReadOnlyOptions) {
		o.OnWriteAttempt = handler
	}
}

// NewReadOnlyFileSystem creates a read-only view of fs. Any FileReader is
// accepted; write methods always fail.
func NewReadOnlyFileSystem(fs FileReader, opts ...ReadOnlyOption) *ReadOnlyFileSystem {
	options := ReadOnlyOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	return &ReadOnlyFileSystem{
		fs:   fs,
		opts: options,
	}
}

// Unwrap returns the underlying FileReader.
func (r *ReadOnlyFileSystem) Unwrap() FileReader {
	return r.fs
}

func (r *ReadOnlyFileSystem) readOnlyError(op, path string) error {
	err := ErrReadOnly
	if r.opts.OnWriteAttempt != nil {
		if custom := r.opts.OnWriteAttempt(op, path); custom != nil {
			err = custom
		}
	}
	return &PathError{Op: op, Path: path, Err: err}
}

// Read delegates to the underlying filesystem.
func (r *ReadOnlyFileSystem) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	return r.fs.Read(ctx, path)
}

// Stat delegates to the underlying filesystem.
func (r *ReadOnlyFileSystem) Stat(ctx context.Context, path string) (*FileInfo, error) {
	return r.fs.Stat(ctx, path)
}

// ListContents delegates to the underlying filesystem.
func (r *ReadOnlyFileSystem) ListContents(ctx context.Context, path string) ([]FileInfo, error) {
	return r.fs.ListContents(ctx, path)
}

// Write returns ErrReadOnly.
func (r *ReadOnlyFileSystem) Write(ctx context.Context, path string, content io.Reader, options ...Option) error {
	return r.readOnlyError("write", path)
}

// Delete returns ErrReadOnly.
func (r *ReadOnlyFileSystem) Delete(ctx context.Context, path string) error {
	return r.readOnlyError("delete", path)
}

// CreateDir returns ErrReadOnly.
func (r *ReadOnlyFileSystem) CreateDir(ctx context.Context, path string) error {
	return r.readOnlyError("createdir", path)
}

// Checksum delegates to the underlying filesystem if supported.
func (r *ReadOnlyFileSystem) Checksum(ctx context.Context, path string, algorithm ChecksumAlgorithm) (string, error) {
	if checksummer, ok := r.fs.(CanChecksum); ok {
		return checksummer.Checksum(ctx, path, algorithm)
	}
	rc, err := r.fs.Read(ctx, path)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return CalculateChecksum(rc, algorithm)
}

// Watch delegates to the underlying filesystem if supported.
func (r *ReadOnlyFileSystem) Watch(ctx context.Context, pattern string) (ChangeToken, error) {
	if watcher, ok := r.fs.(CanWatch); ok {
		return watcher.Watch(ctx, pattern)
	}
	return NeverChangeToken{}, nil
}

var (
	_ FileSystem  = (*ReadOnlyFileSystem)(nil)
	_ CanChecksum = (*ReadOnlyFileSystem)(nil)
	_ CanWatch    = (*ReadOnlyFileSystem)(nil)
)

// IsReadOnlyError checks if an error is due to read-only restrictions.
func IsReadOnlyError(err error) bool {
	return errors.Is(err, ErrReadOnly)
}
