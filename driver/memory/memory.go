package memory

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gobeaver/cloakkit"
	"github.com/gobwas/glob"
)

// maxSymlinkHops bounds symlink resolution, like ELOOP on Unix.
const maxSymlinkHops = 40

// node is a file, directory or symlink stored in memory
type node struct {
	typ      cloakkit.EntryType
	content  []byte
	target   string
	modTime  time.Time
	ino      uint64
	children []string // names, in insertion order
}

// watchEntry represents a single watch subscription
type watchEntry struct {
	matcher glob.Glob
	token   *cloakkit.CallbackChangeToken
}

// Adapter provides an in-memory implementation of cloakkit.FileSystem.
// Directory listings come back in insertion order, which makes traversal
// results reproducible in tests.
type Adapter struct {
	mu      sync.RWMutex
	nodes   map[string]*node
	nextIno uint64
	maxSize int64 // Maximum total storage size (0 = unlimited)
	size    int64 // Current total size

	// Watch support
	watchMu sync.RWMutex
	watches []*watchEntry
}

// Config holds configuration for the memory adapter
type Config struct {
	// MaxSize is the maximum total storage size in bytes (0 = unlimited)
	MaxSize int64
}

// New creates a new in-memory filesystem adapter
func New(cfg ...Config) *Adapter {
	var maxSize int64
	if len(cfg) > 0 {
		maxSize = cfg[0].MaxSize
	}

	a := &Adapter{maxSize: maxSize}
	a.reset()
	return a
}

func (a *Adapter) reset() {
	a.nextIno = 1
	a.nodes = map[string]*node{
		"": {typ: cloakkit.TypeDir, modTime: time.Now(), ino: a.nextIno},
	}
	a.size = 0
}

// Write implements cloakkit.FileWriter
func (a *Adapter) Write(ctx context.Context, p string, content io.Reader, options ...cloakkit.Option) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	p = normalizePath(p)
	if p == "" || !isValidPath(p) {
		return &cloakkit.PathError{Op: "write", Path: p, Err: cloakkit.ErrNotAllowed}
	}

	// Read content into memory
	data, err := io.ReadAll(content)
	if err != nil {
		return &cloakkit.PathError{Op: "write", Path: p, Err: err}
	}

	opts := cloakkit.ApplyOptions(options...)

	a.mu.Lock()
	defer a.mu.Unlock()

	dir, err := a.mkdirAll(parentDir(p))
	if err != nil {
		return &cloakkit.PathError{Op: "write", Path: p, Err: err}
	}
	key := joinPath(dir, path.Base(p))

	existing, exists := a.nodes[key]
	if exists && existing.typ == cloakkit.TypeSymlink {
		existing, key, err = a.walk(key, true, 0)
		if err != nil {
			return &cloakkit.PathError{Op: "write", Path: p, Err: err}
		}
	}

	var oldSize int64
	if exists {
		switch {
		case existing.typ == cloakkit.TypeDir:
			return &cloakkit.PathError{Op: "write", Path: p, Err: cloakkit.ErrIsDir}
		case !opts.Overwrite:
			return &cloakkit.PathError{Op: "write", Path: p, Err: cloakkit.ErrExist}
		}
		oldSize = int64(len(existing.content))
	}

	// Check max size limit
	newSize := a.size - oldSize + int64(len(data))
	if a.maxSize > 0 && newSize > a.maxSize {
		return &cloakkit.PathError{Op: "write", Path: p, Err: cloakkit.ErrNoSpace}
	}

	if exists {
		existing.content = data
		existing.modTime = time.Now()
	} else {
		a.addNode(dir, path.Base(p), &node{typ: cloakkit.TypeRegular, content: data})
	}
	a.size = newSize

	// Notify watchers of the change
	go a.notifyWatchers(key)

	return nil
}

// Read implements cloakkit.FileReader
func (a *Adapter) Read(ctx context.Context, p string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	p = normalizePath(p)

	a.mu.RLock()
	defer a.mu.RUnlock()

	n, _, err := a.walk(p, true, 0)
	if err != nil {
		return nil, &cloakkit.PathError{Op: "read", Path: p, Err: err}
	}
	if n.typ == cloakkit.TypeDir {
		return nil, &cloakkit.PathError{Op: "read", Path: p, Err: cloakkit.ErrIsDir}
	}

	// Content is replaced, never mutated, so sharing the slice is safe
	return io.NopCloser(bytes.NewReader(n.content)), nil
}

// Delete removes a file or symlink.
func (a *Adapter) Delete(ctx context.Context, p string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	p = normalizePath(p)
	if p == "" {
		return &cloakkit.PathError{Op: "delete", Path: p, Err: cloakkit.ErrNotAllowed}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	_, dir, err := a.walk(parentDir(p), true, 0)
	if err != nil {
		return &cloakkit.PathError{Op: "delete", Path: p, Err: err}
	}
	name := path.Base(p)
	key := joinPath(dir, name)

	n, exists := a.nodes[key]
	if !exists {
		return &cloakkit.PathError{Op: "delete", Path: p, Err: cloakkit.ErrNotExist}
	}
	if n.typ == cloakkit.TypeDir {
		return &cloakkit.PathError{Op: "delete", Path: p, Err: cloakkit.ErrIsDir}
	}

	a.size -= int64(len(n.content))
	delete(a.nodes, key)
	parent := a.nodes[dir]
	for i, child := range parent.children {
		if child == name {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			break
		}
	}

	// Notify watchers of the deletion
	go a.notifyWatchers(key)

	return nil
}

// Stat implements cloakkit.FileReader. Symlinks are followed.
func (a *Adapter) Stat(ctx context.Context, p string) (*cloakkit.FileInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	p = normalizePath(p)

	a.mu.RLock()
	defer a.mu.RUnlock()

	n, _, err := a.walk(p, true, 0)
	if err != nil {
		return nil, &cloakkit.PathError{Op: "stat", Path: p, Err: err}
	}

	info := n.info(path.Base(p))
	info.Path = p
	return &info, nil
}

// ListContents implements cloakkit.FileReader. Children are listed in the
// order they were created; symlinks are reported, not followed.
func (a *Adapter) ListContents(ctx context.Context, p string) ([]cloakkit.FileInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	p = normalizePath(p)

	a.mu.RLock()
	defer a.mu.RUnlock()

	dir, key, err := a.walk(p, true, 0)
	if err != nil {
		return nil, &cloakkit.PathError{Op: "listcontents", Path: p, Err: err}
	}
	if dir.typ != cloakkit.TypeDir {
		return nil, &cloakkit.PathError{Op: "listcontents", Path: p, Err: cloakkit.ErrNotDir}
	}

	files := make([]cloakkit.FileInfo, 0, len(dir.children))
	for _, name := range dir.children {
		child := a.nodes[joinPath(key, name)]
		info := child.info(name)
		info.Path = joinPath(p, name)
		files = append(files, info)
	}

	return files, nil
}

// CreateDir implements cloakkit.FileWriter
func (a *Adapter) CreateDir(ctx context.Context, p string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	p = normalizePath(p)
	if !isValidPath(p) {
		return &cloakkit.PathError{Op: "createdir", Path: p, Err: cloakkit.ErrNotAllowed}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := a.mkdirAll(p); err != nil {
		return &cloakkit.PathError{Op: "createdir", Path: p, Err: err}
	}
	return nil
}

// Symlink creates link pointing at target. Both are paths inside the
// adapter; target does not need to exist.
func (a *Adapter) Symlink(target, link string) error {
	link = normalizePath(link)
	if link == "" || !isValidPath(link) {
		return &cloakkit.PathError{Op: "symlink", Path: link, Err: cloakkit.ErrNotAllowed}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	dir, err := a.mkdirAll(parentDir(link))
	if err != nil {
		return &cloakkit.PathError{Op: "symlink", Path: link, Err: err}
	}
	name := path.Base(link)
	if _, exists := a.nodes[joinPath(dir, name)]; exists {
		return &cloakkit.PathError{Op: "symlink", Path: link, Err: cloakkit.ErrExist}
	}

	a.addNode(dir, name, &node{typ: cloakkit.TypeSymlink, target: normalizePath(target)})
	return nil
}

// Clear removes every file and directory.
// Useful for testing cleanup
func (a *Adapter) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reset()
}

// Size returns the current total size of all stored files
func (a *Adapter) Size() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.size
}

// FileCount returns the number of regular files stored
func (a *Adapter) FileCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	count := 0
	for _, n := range a.nodes {
		if n.typ == cloakkit.TypeRegular {
			count++
		}
	}
	return count
}

func (n *node) info(name string) cloakkit.FileInfo {
	return cloakkit.FileInfo{
		Name:    name,
		Size:    int64(len(n.content)),
		ModTime: n.modTime,
		Type:    n.typ,
		ID:      cloakkit.FileID{Device: 1, Inode: n.ino},
	}
}

// addNode links n under dir. Must be called with lock held.
func (a *Adapter) addNode(dir, name string, n *node) {
	a.nextIno++
	n.ino = a.nextIno
	n.modTime = time.Now()
	a.nodes[joinPath(dir, name)] = n
	parent := a.nodes[dir]
	parent.children = append(parent.children, name)
}

// walk resolves p component by component and returns the node and its
// canonical key. Symlinks in the middle of p are always followed, the last
// component only when followLast is set. Must be called with lock held.
func (a *Adapter) walk(p string, followLast bool, hops int) (*node, string, error) {
	cur := ""
	n := a.nodes[cur]
	if p == "" {
		return n, cur, nil
	}

	parts := strings.Split(p, "/")
	for i, part := range parts {
		if n.typ != cloakkit.TypeDir {
			return nil, "", cloakkit.ErrNotDir
		}
		next := joinPath(cur, part)
		child, ok := a.nodes[next]
		if !ok {
			return nil, "", cloakkit.ErrNotExist
		}
		if child.typ == cloakkit.TypeSymlink && (followLast || i < len(parts)-1) {
			if hops >= maxSymlinkHops {
				return nil, "", cloakkit.ErrCycle
			}
			var err error
			child, next, err = a.walk(child.target, true, hops+1)
			if err != nil {
				return nil, "", err
			}
		}
		n, cur = child, next
	}
	return n, cur, nil
}

// mkdirAll creates p and its parents and returns the canonical key of p.
// Must be called with lock held.
func (a *Adapter) mkdirAll(p string) (string, error) {
	if p == "" || p == "." {
		return "", nil
	}

	cur := ""
	for _, part := range strings.Split(p, "/") {
		next := joinPath(cur, part)
		child, ok := a.nodes[next]
		if !ok {
			a.addNode(cur, part, &node{typ: cloakkit.TypeDir})
			cur = next
			continue
		}
		if child.typ == cloakkit.TypeSymlink {
			var err error
			child, next, err = a.walk(next, true, 0)
			if err != nil {
				return "", err
			}
		}
		if child.typ != cloakkit.TypeDir {
			return "", cloakkit.ErrNotDir
		}
		cur = next
	}
	return cur, nil
}

// normalizePath normalizes a file path
func normalizePath(p string) string {
	p = strings.TrimPrefix(p, "/")
	if p == "" || p == "." {
		return ""
	}
	return cleanDot(path.Clean(p))
}

func parentDir(p string) string {
	return cleanDot(path.Dir(p))
}

func cleanDot(p string) string {
	if p == "." {
		return ""
	}
	return p
}

// isValidPath checks if a path is valid (no directory traversal)
func isValidPath(p string) bool {
	return p != ".." && !strings.HasPrefix(p, "../")
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================

// Checksum implements cloakkit.CanChecksum for in-memory files.
func (a *Adapter) Checksum(ctx context.Context, p string, algorithm cloakkit.ChecksumAlgorithm) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	p = normalizePath(p)

	a.mu.RLock()
	defer a.mu.RUnlock()

	n, _, err := a.walk(p, true, 0)
	if err != nil {
		return "", &cloakkit.PathError{Op: "checksum", Path: p, Err: err}
	}
	if n.typ != cloakkit.TypeRegular {
		return "", &cloakkit.PathError{Op: "checksum", Path: p, Err: cloakkit.ErrIsDir}
	}

	checksum, err := cloakkit.CalculateChecksum(bytes.NewReader(n.content), algorithm)
	if err != nil {
		return "", &cloakkit.PathError{Op: "checksum", Path: p, Err: err}
	}

	return checksum, nil
}

// ============================================================================
// Watcher Implementation
// ============================================================================

// Watch implements cloakkit.CanWatch for in-memory file change detection.
// Supports glob patterns like "**/*.txt", "*.json", "config/*"
func (a *Adapter) Watch(ctx context.Context, pattern string) (cloakkit.ChangeToken, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	matcher, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, &cloakkit.PathError{Op: "watch", Path: pattern, Err: err}
	}

	token := cloakkit.NewCallbackChangeToken()

	a.watchMu.Lock()
	a.watches = append(a.watches, &watchEntry{
		matcher: matcher,
		token:   token,
	})
	a.watchMu.Unlock()

	// Clean up when context is cancelled
	go func() {
		<-ctx.Done()
		a.removeWatch(token)
	}()

	return token, nil
}

// notifyWatchers signals all watchers whose pattern matches the given path
func (a *Adapter) notifyWatchers(p string) {
	a.watchMu.RLock()
	defer a.watchMu.RUnlock()

	for _, entry := range a.watches {
		if entry.matcher.Match(p) {
			entry.token.SignalChange()
		}
	}
}

// removeWatch removes a watch entry by token
func (a *Adapter) removeWatch(token *cloakkit.CallbackChangeToken) {
	a.watchMu.Lock()
	defer a.watchMu.Unlock()

	for i, entry := range a.watches {
		if entry.token == token {
			// Remove by swapping with last element
			a.watches[i] = a.watches[len(a.watches)-1]
			a.watches = a.watches[:len(a.watches)-1]
			return
		}
	}
}

// Ensure Adapter implements interfaces
var (
	_ cloakkit.FileSystem  = (*Adapter)(nil)
	_ cloakkit.FileReader  = (*Adapter)(nil)
	_ cloakkit.FileWriter  = (*Adapter)(nil)
	_ cloakkit.CanChecksum = (*Adapter)(nil)
	_ cloakkit.CanWatch    = (*Adapter)(nil)
)
