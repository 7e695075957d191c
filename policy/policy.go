// Package policy loads allow/deny rules from a sectioned text file and
// decides which discovered paths a pipeline may operate on.
//
// A policy file looks like:
//
//	# files to process
//	[WHITELIST]
//	.txt
//	/documents/
//
//	[BLACKLIST]
//	/documents/private
//
// Patterns are literal substrings, not globs. A path is rejected if it
// contains any blacklist pattern; otherwise it is accepted only if it
// contains a whitelist pattern.
package policy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gobeaver/cloakkit"
)

const (
	// DefaultMaxPatterns bounds each section.
	DefaultMaxPatterns = 100
	// DefaultMaxPatternLength bounds a single pattern, in bytes.
	DefaultMaxPatternLength = 255
)

var (
	// ErrTooManyPatterns is returned when a section exceeds its pattern limit.
	ErrTooManyPatterns = fmt.Errorf("too many patterns: %w", cloakkit.ErrInvalidLimit)
	// ErrPatternTooLong is returned for a pattern over the length limit.
	ErrPatternTooLong = fmt.Errorf("pattern too long: %w", cloakkit.ErrPathTooLong)
)

// ParseError reports the line a policy file failed on.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("policy line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Option configures parsing limits.
type Option func(*options)

type options struct {
	maxPatterns      int
	maxPatternLength int
}

// WithMaxPatterns sets the per-section pattern limit.
func WithMaxPatterns(n int) Option {
	return func(o *options) { o.maxPatterns = n }
}

// WithMaxPatternLength sets the longest accepted pattern.
func WithMaxPatternLength(n int) Option {
	return func(o *options) { o.maxPatternLength = n }
}

// Policy is a parsed set of allow and deny patterns.
type Policy struct {
	allow []string
	deny  []string
}

// New builds a policy from explicit pattern lists.
func New(allow, deny []string) *Policy {
	return &Policy{
		allow: append([]string(nil), allow...),
		deny:  append([]string(nil), deny...),
	}
}

// Load reads and parses the policy file at path.
func Load(path string, opts ...Option) (*Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p, err := Parse(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// LoadFS reads a policy file through a cloakkit FileReader.
func LoadFS(ctx context.Context, fs cloakkit.FileReader, path string, opts ...Option) (*Policy, error) {
	rc, err := fs.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	p, err := Parse(rc, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

type section int

const (
	sectionNone section = iota
	sectionAllow
	sectionDeny
)

// Parse reads a policy from r. Lines before the first section header are
// ignored, as are blank lines and lines starting with '#'.
func Parse(r io.Reader, opts ...Option) (*Policy, error) {
	o := options{
		maxPatterns:      DefaultMaxPatterns,
		maxPatternLength: DefaultMaxPatternLength,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxPatterns < 1 || o.maxPatternLength < 1 {
		return nil, cloakkit.ErrInvalidLimit
	}

	p := &Policy{}
	current := sectionNone

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		case line == "[WHITELIST]":
			current = sectionAllow
			continue
		case line == "[BLACKLIST]":
			current = sectionDeny
			continue
		}

		var target *[]string
		switch current {
		case sectionAllow:
			target = &p.allow
		case sectionDeny:
			target = &p.deny
		default:
			continue
		}

		if len(line) > o.maxPatternLength {
			return nil, &ParseError{Line: lineNo, Err: ErrPatternTooLong}
		}
		if len(*target) >= o.maxPatterns {
			return nil, &ParseError{Line: lineNo, Err: ErrTooManyPatterns}
		}
		*target = append(*target, line)
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, &ParseError{Line: lineNo + 1, Err: ErrPatternTooLong}
		}
		return nil, err
	}

	return p, nil
}

// Allow returns a copy of the whitelist patterns.
func (p *Policy) Allow() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.allow...)
}

// Deny returns a copy of the blacklist patterns.
func (p *Policy) Deny() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.deny...)
}

// IsAllowed reports whether path may be processed. Deny patterns win over
// allow patterns, and a path matching neither is rejected. A nil Policy
// allows everything.
func (p *Policy) IsAllowed(path string) bool {
	if p == nil {
		return true
	}
	for _, pattern := range p.deny {
		if strings.Contains(path, pattern) {
			return false
		}
	}
	for _, pattern := range p.allow {
		if strings.Contains(path, pattern) {
			return true
		}
	}
	return false
}

// Selector adapts the policy to a walker selector. Files are matched with
// IsAllowed; directories are only pruned when a deny pattern matches them,
// since an allow pattern may match deeper paths.
func (p *Policy) Selector() cloakkit.FileSelector {
	return cloakkit.FuncSelectorFull(
		func(f *cloakkit.FileInfo) bool { return p.IsAllowed(f.Path) },
		func(f *cloakkit.FileInfo) bool { return !p.denies(f.Path + "/") },
	)
}

func (p *Policy) denies(path string) bool {
	if p == nil {
		return false
	}
	for _, pattern := range p.deny {
		if strings.Contains(path, pattern) {
			return true
		}
	}
	return false
}
