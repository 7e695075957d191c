// Package zip exposes a ZIP archive as a cloakkit.FileSystem. Existing
// members are read straight from the archive; writes are staged in memory
// and the archive is rewritten on Close.
package zip

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobeaver/cloakkit"
)

// Adapter provides a ZIP archive implementation of cloakkit.FileSystem
type Adapter struct {
	mu       sync.RWMutex
	path     string
	reader   *zip.ReadCloser
	files    map[string]*entry
	dirs     map[string]struct{}
	modified bool
	closed   bool
}

// entry is either a member of the opened archive or a staged write.
type entry struct {
	member  *zip.File
	content []byte
	modTime time.Time
	perm    os.FileMode
}

func (e *entry) size() int64 {
	if e.member != nil {
		return int64(e.member.UncompressedSize64)
	}
	return int64(len(e.content))
}

// Open opens an existing archive. Writes are allowed and take effect on Close.
func Open(zipPath string) (*Adapter, error) {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}

	a := newAdapter(zipPath)
	a.reader = reader
	for _, f := range reader.File {
		name, ok := normalizePath(f.Name)
		if !ok || name == "" {
			continue
		}
		if f.FileInfo().IsDir() {
			a.addDir(name)
			continue
		}
		a.files[name] = &entry{member: f, modTime: f.Modified, perm: f.Mode().Perm()}
		a.addDir(path.Dir(name))
	}
	return a, nil
}

// Create starts an empty archive at zipPath, replacing any existing file on
// Close.
func Create(zipPath string) (*Adapter, error) {
	dir := filepath.Dir(zipPath)
	if info, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("failed to create zip: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("failed to create zip: %s is not a directory", dir)
	}

	a := newAdapter(zipPath)
	a.modified = true
	return a, nil
}

// OpenOrCreate opens an existing archive or starts a new one.
func OpenOrCreate(zipPath string) (*Adapter, error) {
	if _, err := os.Stat(zipPath); errors.Is(err, fs.ErrNotExist) {
		return Create(zipPath)
	}
	return Open(zipPath)
}

func newAdapter(zipPath string) *Adapter {
	return &Adapter{
		path:  zipPath,
		files: make(map[string]*entry),
		dirs:  map[string]struct{}{"": {}},
	}
}

func (a *Adapter) addDir(dir string) {
	for dir != "" && dir != "." {
		if _, ok := a.dirs[dir]; ok {
			return
		}
		a.dirs[dir] = struct{}{}
		dir = path.Dir(dir)
	}
}

// Close writes staged changes back to the archive and releases it.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	var errs []error
	if a.modified {
		if err := a.rewrite(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.reader != nil {
		if err := a.reader.Close(); err != nil {
			errs = append(errs, err)
		}
		a.reader = nil
	}
	return errors.Join(errs...)
}

// rewrite produces the new archive next to the old one and renames it into
// place. Unchanged members are copied without recompression.
func (a *Adapter) rewrite() (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(a.path), ".cloakkit-*.zip")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w := zip.NewWriter(tmp)

	dirs := make([]string, 0, len(a.dirs))
	for d := range a.dirs {
		if d != "" {
			dirs = append(dirs, d)
		}
	}
	sort.Strings(dirs)
	for _, d := range dirs {
		header := &zip.FileHeader{Name: d + "/", Method: zip.Store}
		header.SetMode(fs.ModeDir | 0755)
		if _, err := w.CreateHeader(header); err != nil {
			return err
		}
	}

	names := make([]string, 0, len(a.files))
	for name := range a.files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		e := a.files[name]
		if e.member != nil {
			if err := w.Copy(e.member); err != nil {
				return err
			}
			continue
		}
		header := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: e.modTime}
		header.SetMode(e.perm)
		fw, err := w.CreateHeader(header)
		if err != nil {
			return err
		}
		if _, err := fw.Write(e.content); err != nil {
			return err
		}
	}

	if err := w.Close(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), a.path)
}

func (a *Adapter) check(ctx context.Context, op, p string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, ok := normalizePath(p)
	if !ok {
		return "", &cloakkit.PathError{Op: op, Path: p, Err: cloakkit.ErrNotAllowed}
	}
	if a.closed {
		return "", &cloakkit.PathError{Op: op, Path: p, Err: fs.ErrClosed}
	}
	return name, nil
}

// Write implements cloakkit.FileWriter. Content is buffered until Close.
func (a *Adapter) Write(ctx context.Context, p string, content io.Reader, options ...cloakkit.Option) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return &cloakkit.PathError{Op: "write", Path: p, Err: err}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	name, err := a.check(ctx, "write", p)
	if err != nil {
		return err
	}
	if name == "" {
		return &cloakkit.PathError{Op: "write", Path: p, Err: cloakkit.ErrIsDir}
	}
	if _, ok := a.dirs[name]; ok {
		return &cloakkit.PathError{Op: "write", Path: p, Err: cloakkit.ErrIsDir}
	}

	opts := cloakkit.ApplyOptions(options...)
	if _, exists := a.files[name]; exists && !opts.Overwrite {
		return &cloakkit.PathError{Op: "write", Path: p, Err: cloakkit.ErrExist}
	}

	a.files[name] = &entry{content: data, modTime: time.Now(), perm: opts.Perm}
	a.addDir(path.Dir(name))
	a.modified = true
	return nil
}

// Read implements cloakkit.FileReader
func (a *Adapter) Read(ctx context.Context, p string) (io.ReadCloser, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	name, err := a.check(ctx, "read", p)
	if err != nil {
		return nil, err
	}
	e, ok := a.files[name]
	if !ok {
		if _, isDir := a.dirs[name]; isDir {
			return nil, &cloakkit.PathError{Op: "read", Path: p, Err: cloakkit.ErrIsDir}
		}
		return nil, &cloakkit.PathError{Op: "read", Path: p, Err: cloakkit.ErrNotExist}
	}

	if e.member == nil {
		return io.NopCloser(bytes.NewReader(e.content)), nil
	}
	rc, err := e.member.Open()
	if err != nil {
		return nil, &cloakkit.PathError{Op: "read", Path: p, Err: err}
	}
	return rc, nil
}

// Delete implements cloakkit.FileWriter
func (a *Adapter) Delete(ctx context.Context, p string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	name, err := a.check(ctx, "delete", p)
	if err != nil {
		return err
	}
	if _, ok := a.files[name]; !ok {
		return &cloakkit.PathError{Op: "delete", Path: p, Err: cloakkit.ErrNotExist}
	}
	delete(a.files, name)
	a.modified = true
	return nil
}

// CreateDir implements cloakkit.FileWriter
func (a *Adapter) CreateDir(ctx context.Context, p string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	name, err := a.check(ctx, "createdir", p)
	if err != nil {
		return err
	}
	if _, ok := a.files[name]; ok {
		return &cloakkit.PathError{Op: "createdir", Path: p, Err: cloakkit.ErrNotDir}
	}
	if _, ok := a.dirs[name]; !ok {
		a.addDir(name)
		a.modified = true
	}
	return nil
}

// Stat implements cloakkit.FileReader
func (a *Adapter) Stat(ctx context.Context, p string) (*cloakkit.FileInfo, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	name, err := a.check(ctx, "stat", p)
	if err != nil {
		return nil, err
	}
	if e, ok := a.files[name]; ok {
		return fileInfo(name, e), nil
	}
	if _, ok := a.dirs[name]; ok {
		return dirInfo(name), nil
	}
	return nil, &cloakkit.PathError{Op: "stat", Path: p, Err: cloakkit.ErrNotExist}
}

// ListContents implements cloakkit.FileReader. Entries are sorted by name.
func (a *Adapter) ListContents(ctx context.Context, p string) ([]cloakkit.FileInfo, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	dir, err := a.check(ctx, "listcontents", p)
	if err != nil {
		return nil, err
	}
	if _, ok := a.dirs[dir]; !ok {
		if _, isFile := a.files[dir]; isFile {
			return nil, &cloakkit.PathError{Op: "listcontents", Path: p, Err: cloakkit.ErrNotDir}
		}
		return nil, &cloakkit.PathError{Op: "listcontents", Path: p, Err: cloakkit.ErrNotExist}
	}

	var out []cloakkit.FileInfo
	for d := range a.dirs {
		if d != "" && parent(d) == dir {
			out = append(out, *dirInfo(d))
		}
	}
	for name, e := range a.files {
		if parent(name) == dir {
			out = append(out, *fileInfo(name, e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func parent(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[:i]
	}
	return ""
}

func fileInfo(name string, e *entry) *cloakkit.FileInfo {
	return &cloakkit.FileInfo{
		Name:    path.Base(name),
		Path:    name,
		Size:    e.size(),
		ModTime: e.modTime,
		Type:    cloakkit.TypeRegular,
	}
}

func dirInfo(name string) *cloakkit.FileInfo {
	return &cloakkit.FileInfo{
		Name: path.Base(name),
		Path: name,
		Type: cloakkit.TypeDir,
	}
}

// normalizePath strips leading and trailing slashes and rejects paths that
// climb out of the archive.
func normalizePath(p string) (string, bool) {
	p = strings.Trim(p, "/")
	if p == "" || p == "." {
		return "", true
	}
	p = path.Clean(p)
	if p == ".." || strings.HasPrefix(p, "../") {
		return "", false
	}
	return p, true
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================

// Checksum implements cloakkit.CanChecksum. CRC32 of an archive member comes
// from its header without decompressing; everything else streams the data.
func (a *Adapter) Checksum(ctx context.Context, p string, algorithm cloakkit.ChecksumAlgorithm) (string, error) {
	if algorithm == cloakkit.ChecksumCRC32 {
		a.mu.RLock()
		name, err := a.check(ctx, "checksum", p)
		if err != nil {
			a.mu.RUnlock()
			return "", err
		}
		e, ok := a.files[name]
		a.mu.RUnlock()
		if ok && e.member != nil {
			return cloakkit.FormatCRC32(e.member.CRC32), nil
		}
	}

	rc, err := a.Read(ctx, p)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	sum, err := cloakkit.CalculateChecksum(rc, algorithm)
	if err != nil {
		return "", &cloakkit.PathError{Op: "checksum", Path: p, Err: err}
	}
	return sum, nil
}

// Ensure Adapter implements interfaces
var (
	_ cloakkit.FileSystem  = (*Adapter)(nil)
	_ cloakkit.CanChecksum = (*Adapter)(nil)
)
