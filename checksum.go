package cloakkit

import (
	"context"
	"crypto/md5"  //nolint:gosec // MD5 used for checksum verification, not security
	"crypto/sha1" //nolint:gosec // SHA1 used for checksum verification, not security
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// CRC32ChunkSize is the read size used by CalculateCRC32.
const CRC32ChunkSize = 4096

// ============================================================================
// CRC32 engine
// ============================================================================

// CRC32 returns the IEEE CRC32 of b: reflected polynomial 0xEDB88320,
// register seeded with 0xFFFFFFFF, complemented on output.
func CRC32(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

// CalculateCRC32 reads r in fixed-size chunks and folds every chunk into a
// single running register, so the result covers the whole stream.
func CalculateCRC32(r io.Reader) (uint32, error) {
	var sum uint32
	buf := make([]byte, CRC32ChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			sum = crc32.Update(sum, crc32.IEEETable, buf[:n])
		}
		if err == io.EOF {
			return sum, nil
		}
		if err != nil {
			return 0, fmt.Errorf("failed to calculate crc32: %w", err)
		}
	}
}

// VerifyIntegrity recomputes the CRC32 of r and compares it with expected.
func VerifyIntegrity(r io.Reader, expected uint32) (bool, error) {
	actual, err := CalculateCRC32(r)
	if err != nil {
		return false, err
	}
	return actual == expected, nil
}

// FormatCRC32 renders a CRC32 as 8 lowercase hex digits, the same form
// CalculateChecksum produces for ChecksumCRC32.
func FormatCRC32(sum uint32) string {
	return fmt.Sprintf("%08x", sum)
}

// ParseCRC32 parses the output of FormatCRC32. A "0x" prefix is accepted.
func ParseCRC32(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid crc32 %q: %w", s, err)
	}
	return uint32(v), nil
}

// ChecksumFile returns the CRC32 of the file at path.
func ChecksumFile(ctx context.Context, fs FileReader, path string) (uint32, error) {
	rc, err := fs.Read(ctx, path)
	if err != nil {
		return 0, wrapPathError("checksum", path, err)
	}
	defer rc.Close()

	sum, err := CalculateCRC32(rc)
	if err != nil {
		return 0, &PathError{Op: "checksum", Path: path, Err: err}
	}
	return sum, nil
}

// VerifyFile reports whether the file at path has the expected CRC32.
func VerifyFile(ctx context.Context, fs FileReader, path string, expected uint32) (bool, error) {
	actual, err := ChecksumFile(ctx, fs, path)
	if err != nil {
		return false, err
	}
	return actual == expected, nil
}

// VerifyRoundTrip streams the file through t and then t.Inverse() and
// reports whether the result has the same CRC32 as the original.
// Nothing is written anywhere.
func VerifyRoundTrip(ctx context.Context, fs FileReader, path string, t Transform) (bool, error) {
	want, err := ChecksumFile(ctx, fs, path)
	if err != nil {
		return false, err
	}

	rc, err := fs.Read(ctx, path)
	if err != nil {
		return false, wrapPathError("roundtrip", path, err)
	}
	defer rc.Close()

	got, err := CalculateCRC32(NewReader(NewReader(rc, t), t.Inverse()))
	if err != nil {
		return false, &PathError{Op: "roundtrip", Path: path, Err: err}
	}
	return got == want, nil
}

// ============================================================================
// Multi-algorithm checksums
// ============================================================================

// NewHasher creates a new hash.Hash for the given algorithm.
// Returns an error if the algorithm is not supported.
func NewHasher(algorithm ChecksumAlgorithm) (hash.Hash, error) {
	switch algorithm {
	case ChecksumMD5:
		return md5.New(), nil //nolint:gosec // MD5 used for checksum verification, not security
	case ChecksumSHA1:
		return sha1.New(), nil //nolint:gosec // SHA1 used for checksum verification, not security
	case ChecksumSHA256:
		return sha256.New(), nil
	case ChecksumSHA512:
		return sha512.New(), nil
	case ChecksumCRC32:
		return crc32.NewIEEE(), nil
	case ChecksumXXHash:
		return xxhash.New(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported checksum algorithm: %s", ErrNotSupported, algorithm)
	}
}

// CalculateChecksum reads from the reader and calculates the checksum using
// the specified algorithm. Returns the hex-encoded checksum string.
func CalculateChecksum(r io.Reader, algorithm ChecksumAlgorithm) (string, error) {
	h, err := NewHasher(algorithm)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// CalculateChecksums reads from the reader and calculates multiple checksums
// in a single pass. Returns a map of algorithm to hex-encoded checksum.
func CalculateChecksums(r io.Reader, algorithms []ChecksumAlgorithm) (map[ChecksumAlgorithm]string, error) {
	if len(algorithms) == 0 {
		return nil, fmt.Errorf("%w: no algorithms specified", ErrNotSupported)
	}

	hashers := make(map[ChecksumAlgorithm]hash.Hash, len(algorithms))
	writers := make([]io.Writer, 0, len(algorithms))

	for _, algo := range algorithms {
		h, err := NewHasher(algo)
		if err != nil {
			return nil, err
		}
		hashers[algo] = h
		writers = append(writers, h)
	}

	if _, err := io.Copy(io.MultiWriter(writers...), r); err != nil {
		return nil, fmt.Errorf("failed to calculate checksums: %w", err)
	}

	results := make(map[ChecksumAlgorithm]string, len(algorithms))
	for algo, h := range hashers {
		results[algo] = hex.EncodeToString(h.Sum(nil))
	}

	return results, nil
}

// VerifyChecksum computes the checksum of path and compares it with the
// hex-encoded expected value. Backends implementing CanChecksum are asked
// directly; others are streamed through NewHasher.
func VerifyChecksum(ctx context.Context, fs FileReader, path, expected string, algorithm ChecksumAlgorithm) (bool, error) {
	var actual string
	if checksummer, ok := fs.(CanChecksum); ok {
		sum, err := checksummer.Checksum(ctx, path, algorithm)
		if err != nil {
			return false, err
		}
		actual = sum
	} else {
		rc, err := fs.Read(ctx, path)
		if err != nil {
			return false, wrapPathError("checksum", path, err)
		}
		defer rc.Close()

		sum, err := CalculateChecksum(rc, algorithm)
		if err != nil {
			return false, &PathError{Op: "checksum", Path: path, Err: err}
		}
		actual = sum
	}

	return strings.EqualFold(actual, strings.TrimSpace(expected)), nil
}
