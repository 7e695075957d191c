package cloakkit

import (
	"context"
	"io"
	"time"
)

// EntryType classifies a directory entry without following symlinks.
type EntryType uint8

const (
	// TypeRegular is a regular file.
	TypeRegular EntryType = iota
	// TypeDir is a directory.
	TypeDir
	// TypeSymlink is a symbolic link that has not been resolved.
	TypeSymlink
	// TypeOther covers devices, sockets, pipes and anything else.
	TypeOther
)

// String returns a short lowercase name for the type.
func (t EntryType) String() string {
	switch t {
	case TypeRegular:
		return "file"
	case TypeDir:
		return "dir"
	case TypeSymlink:
		return "symlink"
	default:
		return "other"
	}
}

// FileID identifies a filesystem object independently of its path.
// Backends without such a notion leave it zero.
type FileID struct {
	Device uint64
	Inode  uint64
}

// IsZero reports whether the backend supplied no identity.
func (id FileID) IsZero() bool {
	return id.Device == 0 && id.Inode == 0
}

// FileInfo represents file/directory metadata
type FileInfo struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
	Type    EntryType
	ID      FileID
}

// IsDir reports whether the entry is a directory.
func (f FileInfo) IsDir() bool { return f.Type == TypeDir }

// IsRegular reports whether the entry is a regular file.
func (f FileInfo) IsRegular() bool { return f.Type == TypeRegular }

// ============================================================================
// Core Interfaces (Interface Segregation)
// ============================================================================

// FileReader provides read-only filesystem access.
// Use this type in function signatures to enforce read-only at compile time.
//
// Paths are slash separated and relative to the backend root.
type FileReader interface {
	// Read returns a stream for reading file content.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Stat returns metadata for path, following symlinks.
	Stat(ctx context.Context, path string) (*FileInfo, error)

	// ListContents lists the immediate children of a directory in the
	// order the backend enumerates them. Entry types are reported without
	// following symlinks.
	ListContents(ctx context.Context, path string) ([]FileInfo, error)
}

// FileWriter provides write filesystem operations.
type FileWriter interface {
	// Write streams content from r to path, creating parent directories.
	Write(ctx context.Context, path string, r io.Reader, opts ...Option) error

	// Delete removes a file.
	Delete(ctx context.Context, path string) error

	// CreateDir creates a directory (and parents if needed).
	CreateDir(ctx context.Context, path string) error
}

// FileSystem provides full read-write filesystem access.
type FileSystem interface {
	FileReader
	FileWriter
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================
// Use type assertion to check if a driver supports a capability:
//
//	if cs, ok := fs.(CanChecksum); ok {
//	    sum, err := cs.Checksum(ctx, "file.txt", ChecksumCRC32)
//	}

// ChecksumAlgorithm represents a supported checksum algorithm
type ChecksumAlgorithm string

const (
	// ChecksumMD5 is the MD5 hash algorithm (128-bit, fast but not cryptographically secure)
	ChecksumMD5 ChecksumAlgorithm = "md5"
	// ChecksumSHA1 is the SHA-1 hash algorithm (160-bit, legacy)
	ChecksumSHA1 ChecksumAlgorithm = "sha1"
	// ChecksumSHA256 is the SHA-256 hash algorithm (256-bit, recommended)
	ChecksumSHA256 ChecksumAlgorithm = "sha256"
	// ChecksumSHA512 is the SHA-512 hash algorithm (512-bit)
	ChecksumSHA512 ChecksumAlgorithm = "sha512"
	// ChecksumCRC32 is the CRC32 checksum (32-bit, fastest, for integrity only)
	ChecksumCRC32 ChecksumAlgorithm = "crc32"
	// ChecksumXXHash is the xxHash algorithm (64-bit, extremely fast)
	ChecksumXXHash ChecksumAlgorithm = "xxhash"
)

// CanChecksum indicates the filesystem can compute checksums natively.
type CanChecksum interface {
	// Checksum calculates the checksum of a file using the specified algorithm.
	// Returns the checksum as a hex-encoded string.
	Checksum(ctx context.Context, path string, algorithm ChecksumAlgorithm) (string, error)
}

// ChangeToken represents a change notification token.
//
// Consumers can either poll HasChanged or register a callback.
type ChangeToken interface {
	// HasChanged returns true if a change has occurred.
	// Once true, it remains true (tokens are single-use).
	HasChanged() bool

	// RegisterChangeCallback registers a callback to be invoked when change occurs.
	// Returns a function to unregister the callback.
	RegisterChangeCallback(callback func()) (unregister func())
}

// CanWatch indicates the filesystem supports file change notifications.
type CanWatch interface {
	// Watch creates a change token for the specified glob pattern
	// ("**/*.txt", "docs/*", "**"). The token fires once when any matching
	// file is created, modified or deleted.
	Watch(ctx context.Context, pattern string) (ChangeToken, error)
}
