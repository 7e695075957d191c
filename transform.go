package cloakkit

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// DefaultChunkSize is the buffer size used when streaming through a Transform.
const DefaultChunkSize = 32 * 1024

// Stream maps bytes one for one. Implementations keep their position so that
// feeding a payload in several chunks gives the same output as feeding it
// at once. dst and src may overlap entirely; len(dst) must be >= len(src).
type Stream interface {
	Apply(dst, src []byte)
}

// Transform is a keyed, invertible, length-preserving byte mapping.
type Transform interface {
	// Name identifies the transform ("xor", "caesar", "rot13").
	Name() string

	// NewStream returns a fresh stream positioned at byte zero.
	NewStream() Stream

	// Inverse returns the transform that undoes this one.
	Inverse() Transform
}

// Apply reads src to completion and writes its transformed bytes to dst.
func Apply(dst io.Writer, src io.Reader, t Transform) error {
	return ApplyBuffer(dst, src, t, make([]byte, DefaultChunkSize))
}

// ApplyBuffer is Apply with a caller-supplied buffer. An empty buffer falls
// back to DefaultChunkSize.
func ApplyBuffer(dst io.Writer, src io.Reader, t Transform, buf []byte) error {
	if len(buf) == 0 {
		buf = make([]byte, DefaultChunkSize)
	}
	stream := t.NewStream()

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			stream.Apply(buf[:n], buf[:n])
			written, err := dst.Write(buf[:n])
			if err != nil {
				return err
			}
			if written != n {
				return io.ErrShortWrite
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

// ============================================================================
// Streaming adapters
// ============================================================================

type streamReader struct {
	r      io.Reader
	stream Stream
}

// NewReader returns a reader yielding the transformed bytes of r.
func NewReader(r io.Reader, t Transform) io.Reader {
	return &streamReader{r: r, stream: t.NewStream()}
}

func (s *streamReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if n > 0 {
		s.stream.Apply(p[:n], p[:n])
	}
	return n, err
}

type streamWriter struct {
	w      io.Writer
	stream Stream
	buf    []byte
}

// NewWriter returns a writer that transforms bytes before passing them to w.
// The caller's slice is never modified.
func NewWriter(w io.Writer, t Transform) io.Writer {
	return &streamWriter{w: w, stream: t.NewStream()}
}

func (s *streamWriter) Write(p []byte) (int, error) {
	if cap(s.buf) < len(p) {
		s.buf = make([]byte, len(p))
	}
	out := s.buf[:len(p)]
	s.stream.Apply(out, p)

	n, err := s.w.Write(out)
	if err == nil && n != len(p) {
		err = io.ErrShortWrite
	}
	return n, err
}

// ============================================================================
// File helpers
// ============================================================================

// ApplyFile streams srcPath from src through t into dstPath on dst.
//
// The source is opened first; if that fails the destination is never
// created. A failure mid-stream leaves whatever the destination backend
// already persisted; cleanup is up to the caller.
func ApplyFile(ctx context.Context, src FileReader, srcPath string, dst FileWriter, dstPath string, t Transform, opts ...Option) error {
	in, err := src.Read(ctx, srcPath)
	if err != nil {
		return wrapPathError("transform", srcPath, err)
	}
	defer in.Close()

	if err := dst.Write(ctx, dstPath, NewReader(in, t), opts...); err != nil {
		return wrapPathError("transform", dstPath, err)
	}
	return nil
}

// ParseTransform builds a transform by name. key is used by "xor", shift by
// "caesar"; "rot13" takes neither.
func ParseTransform(name string, key []byte, shift int) (Transform, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "xor":
		x, err := NewXor(key)
		if err != nil {
			return nil, err
		}
		return x, nil
	case "caesar":
		return NewCaesar(shift), nil
	case "rot13":
		return Rot13(), nil
	default:
		return nil, fmt.Errorf("%w: unknown transform %q", ErrNotSupported, name)
	}
}

// wrapPathError attaches op/path unless err already carries them.
func wrapPathError(op, p string, err error) error {
	if _, ok := err.(*PathError); ok {
		return err
	}
	return &PathError{Op: op, Path: p, Err: err}
}
