package cloakkit

import (
	"errors"
	"fmt"
)

// Common filesystem errors
var (
	ErrNotExist     = errors.New("file does not exist")
	ErrExist        = errors.New("file already exists")
	ErrPermission   = errors.New("permission denied")
	ErrNotDir       = errors.New("not a directory")
	ErrIsDir        = errors.New("is a directory")
	ErrNotSupported = errors.New("operation not supported")
	ErrNotAllowed   = errors.New("operation not allowed")
	ErrNoSpace      = errors.New("no space left on device")
)

// Precondition errors. These describe a caller mistake rather than an I/O
// failure and are never worth retrying.
var (
	ErrEmptyKey     = errors.New("transform key must not be empty")
	ErrInvalidLimit = errors.New("limit must be at least 1")
	ErrPathTooLong  = errors.New("path exceeds maximum length")
)

// Pipeline and traversal errors
var (
	ErrIntegrity = errors.New("checksum mismatch")
	ErrCycle     = errors.New("directory already visited")
)

// PathError records an error and the operation and file path that caused it
type PathError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface
func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *PathError) Unwrap() error {
	return e.Err
}

// IsNotExist reports whether an error indicates that a file or directory
// does not exist
func IsNotExist(err error) bool {
	return errors.Is(err, ErrNotExist)
}

// IsExist reports whether an error indicates that a file or directory
// already exists
func IsExist(err error) bool {
	return errors.Is(err, ErrExist)
}

// IsPermission reports whether an error indicates that permission is denied
func IsPermission(err error) bool {
	return errors.Is(err, ErrPermission)
}

// IsPrecondition reports whether err was caused by invalid arguments
// (empty key, bad limit, oversized path, unsupported algorithm) rather than I/O.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrEmptyKey) ||
		errors.Is(err, ErrInvalidLimit) ||
		errors.Is(err, ErrPathTooLong) ||
		errors.Is(err, ErrNotSupported)
}
