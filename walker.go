package cloakkit

import (
	"context"
	"fmt"
	"path"
	"strings"
)

const (
	// MaxPathLength is the default upper bound for a discovered path, in bytes.
	MaxPathLength = 4096

	// DefaultMaxFiles is the default capacity of a traversal result.
	DefaultMaxFiles = 10000
)

// ============================================================================
// FileEntry / FileList
// ============================================================================

// FileEntry is a regular file discovered by a Walker.
type FileEntry struct {
	path string
	info FileInfo
}

// NewFileEntry validates p and info and returns an entry. Only regular files
// are accepted and p must not exceed MaxPathLength bytes.
func NewFileEntry(p string, info FileInfo) (FileEntry, error) {
	return newFileEntry(p, info, MaxPathLength)
}

func newFileEntry(p string, info FileInfo, maxLen int) (FileEntry, error) {
	if p == "" {
		return FileEntry{}, &PathError{Op: "entry", Path: p, Err: ErrNotExist}
	}
	if len(p) > maxLen {
		shown := p
		if len(shown) > 64 {
			shown = shown[:64] + "..."
		}
		return FileEntry{}, &PathError{
			Op:   "entry",
			Path: shown,
			Err:  fmt.Errorf("%w: %d > %d bytes", ErrPathTooLong, len(p), maxLen),
		}
	}
	if !info.IsRegular() {
		return FileEntry{}, &PathError{Op: "entry", Path: p, Err: ErrIsDir}
	}
	info.Path = p
	return FileEntry{path: p, info: info}, nil
}

// Path returns the slash-separated path of the entry (root joined with name).
func (e FileEntry) Path() string { return e.path }

// Info returns the metadata captured at discovery time.
func (e FileEntry) Info() FileInfo { return e.info }

// FileList is an ordered sequence of entries bounded by a maximum length.
// Order is discovery order.
type FileList struct {
	max     int
	entries []FileEntry
}

// NewFileList creates an empty list holding at most max entries.
func NewFileList(max int) (*FileList, error) {
	if max < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLimit, max)
	}
	return &FileList{max: max}, nil
}

// Add appends e and reports whether there was room for it.
func (l *FileList) Add(e FileEntry) bool {
	if l.Full() {
		return false
	}
	l.entries = append(l.entries, e)
	return true
}

// Len returns the number of entries.
func (l *FileList) Len() int { return len(l.entries) }

// Max returns the capacity the list was created with.
func (l *FileList) Max() int { return l.max }

// Full reports whether no more entries can be added.
func (l *FileList) Full() bool { return len(l.entries) >= l.max }

// At returns the i-th entry.
func (l *FileList) At(i int) FileEntry { return l.entries[i] }

// Entries returns a copy of the entries.
func (l *FileList) Entries() []FileEntry {
	out := make([]FileEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Paths returns the entry paths in discovery order.
func (l *FileList) Paths() []string {
	out := make([]string, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.path
	}
	return out
}

// ============================================================================
// Walker
// ============================================================================

// WalkOption configures a Walker.
type WalkOption func(*walkOptions)

type walkOptions struct {
	followSymlinks bool
	selector       FileSelector
	onSkip         func(path string, err error)
	maxPathLength  int
}

// WithFollowSymlinks makes the walker resolve symlinks through Stat. Resolved
// directories are still subject to the visited-directory guard.
func WithFollowSymlinks(follow bool) WalkOption {
	return func(o *walkOptions) {
		o.followSymlinks = follow
	}
}

// WithSelector adds a filter on top of the built-in exclusions.
func WithSelector(selector FileSelector) WalkOption {
	return func(o *walkOptions) {
		if selector != nil {
			o.selector = selector
		}
	}
}

// WithSkipHandler registers a hook called for every directory or entry the
// walker had to leave out because of an error (unreadable directory, broken
// symlink, cycle, oversized path).
func WithSkipHandler(fn func(path string, err error)) WalkOption {
	return func(o *walkOptions) {
		o.onSkip = fn
	}
}

// WithMaxPathLength overrides MaxPathLength.
func WithMaxPathLength(n int) WalkOption {
	return func(o *walkOptions) {
		if n > 0 {
			o.maxPathLength = n
		}
	}
}

// Walker discovers regular files below a directory of a FileReader.
//
// Traversal is best-effort: a root that cannot be listed produces an empty
// list, not an error. Errors are only returned for invalid limits and
// context cancellation.
type Walker struct {
	fs   FileReader
	opts walkOptions
}

// NewWalker creates a walker over fs.
func NewWalker(fs FileReader, opts ...WalkOption) *Walker {
	o := walkOptions{
		selector:      All(),
		maxPathLength: MaxPathLength,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Walker{fs: fs, opts: o}
}

// Scan lists the regular files directly inside root, up to max entries.
func (w *Walker) Scan(ctx context.Context, root string, max int) (*FileList, error) {
	list, err := NewFileList(max)
	if err != nil {
		return nil, err
	}

	entries, err := w.fs.ListContents(ctx, root)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		w.skip(root, err)
		return list, nil
	}

	for i := range entries {
		if list.Full() {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ShouldExclude(entries[i].Name) {
			continue
		}
		info, ok := w.resolve(ctx, root, &entries[i])
		if !ok || !info.IsRegular() {
			continue
		}
		w.add(list, info)
	}

	return list, nil
}

// ScanRecursive walks root depth-first and collects up to max regular files.
func (w *Walker) ScanRecursive(ctx context.Context, root string, max int) (*FileList, error) {
	list, err := NewFileList(max)
	if err != nil {
		return nil, err
	}
	if _, err := w.ScanRecursiveInto(ctx, root, list); err != nil {
		return nil, err
	}
	return list, nil
}

// ScanRecursiveInto walks root depth-first, appending into list until it is
// full, and returns the new entry count. Calling it repeatedly with several
// roots accumulates into the same bounded list.
func (w *Walker) ScanRecursiveInto(ctx context.Context, root string, list *FileList) (int, error) {
	if list == nil {
		return 0, fmt.Errorf("%w: nil file list", ErrInvalidLimit)
	}

	visited := make(map[FileID]struct{})
	st, err := w.fs.Stat(ctx, root)
	switch {
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return list.Len(), ctxErr
		}
		w.skip(root, err)
		return list.Len(), nil
	case !st.IsDir():
		w.skip(root, ErrNotDir)
		return list.Len(), nil
	case !st.ID.IsZero():
		visited[st.ID] = struct{}{}
	}

	err = w.walkDir(ctx, root, list, visited)
	return list.Len(), err
}

func (w *Walker) walkDir(ctx context.Context, dir string, list *FileList, visited map[FileID]struct{}) error {
	entries, err := w.fs.ListContents(ctx, dir)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		w.skip(dir, err)
		return nil
	}

	for i := range entries {
		if list.Full() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if ShouldExclude(entries[i].Name) {
			continue
		}

		info, ok := w.resolve(ctx, dir, &entries[i])
		if !ok {
			continue
		}

		switch info.Type {
		case TypeDir:
			if !w.opts.selector.TraverseDescendants(info) {
				continue
			}
			// Backends without FileIDs rely on this bound to end symlink loops
			if len(info.Path) > w.opts.maxPathLength {
				w.skip(info.Path, ErrPathTooLong)
				continue
			}
			if !info.ID.IsZero() {
				if _, seen := visited[info.ID]; seen {
					w.skip(info.Path, ErrCycle)
					continue
				}
				visited[info.ID] = struct{}{}
			}
			if err := w.walkDir(ctx, info.Path, list, visited); err != nil {
				return err
			}
		case TypeRegular:
			w.add(list, info)
		}
	}

	return nil
}

// resolve fixes up the entry path and, when enabled, follows symlinks.
func (w *Walker) resolve(ctx context.Context, dir string, entry *FileInfo) (*FileInfo, bool) {
	entry.Path = joinPath(dir, entry.Name)
	if entry.Type != TypeSymlink {
		return entry, true
	}
	if !w.opts.followSymlinks {
		return nil, false
	}

	target, err := w.fs.Stat(ctx, entry.Path)
	if err != nil {
		w.skip(entry.Path, err)
		return nil, false
	}
	resolved := *target
	resolved.Name = entry.Name
	resolved.Path = entry.Path
	return &resolved, true
}

func (w *Walker) add(list *FileList, info *FileInfo) {
	if !w.opts.selector.Match(info) {
		return
	}
	entry, err := newFileEntry(info.Path, *info, w.opts.maxPathLength)
	if err != nil {
		w.skip(info.Path, err)
		return
	}
	list.Add(entry)
}

func (w *Walker) skip(p string, err error) {
	if w.opts.onSkip != nil {
		w.opts.onSkip(p, err)
	}
}

func joinPath(dir, name string) string {
	if dir == "" || dir == "." {
		return name
	}
	return strings.TrimPrefix(path.Join(dir, name), "./")
}

// ============================================================================
// Convenience functions
// ============================================================================

// Scan is shorthand for NewWalker(fs, opts...).Scan(ctx, root, max).
func Scan(ctx context.Context, fs FileReader, root string, max int, opts ...WalkOption) (*FileList, error) {
	return NewWalker(fs, opts...).Scan(ctx, root, max)
}

// ScanRecursive is shorthand for NewWalker(fs, opts...).ScanRecursive(ctx, root, max).
func ScanRecursive(ctx context.Context, fs FileReader, root string, max int, opts ...WalkOption) (*FileList, error) {
	return NewWalker(fs, opts...).ScanRecursive(ctx, root, max)
}
