package cloakkit

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"
	"sync"
	"time"
)

func init() {
	// Register test driver
	RegisterDriver("test", newTestDriver)
}

func newTestDriver(cfg *Config) (FileSystem, error) {
	return newTestFS(), nil
}

// testEntry is one file or directory of a testFS
type testEntry struct {
	path  string
	data  []byte
	isDir bool
}

// testFS is a minimal in-memory filesystem for testing. Entries are listed in
// insertion order, IDs are left zero, and listing or reading a path can be
// made to fail through failList/failRead.
type testFS struct {
	mu       sync.Mutex
	entries  []*testEntry
	failList map[string]error
	failRead map[string]error
	writes   int
}

func newTestFS() *testFS {
	return &testFS{
		failList: make(map[string]error),
		failRead: make(map[string]error),
	}
}

// put adds files given as alternating path, content arguments.
func (fs *testFS) put(pairs ...string) *testFS {
	for i := 0; i+1 < len(pairs); i += 2 {
		fs.Write(context.Background(), pairs[i], strings.NewReader(pairs[i+1]), WithOverwrite(true))
	}
	return fs
}

func (fs *testFS) find(p string) *testEntry {
	p = cleanTestPath(p)
	if p == "" {
		return &testEntry{isDir: true}
	}
	for _, e := range fs.entries {
		if e.path == p {
			return e
		}
	}
	return nil
}

func (fs *testFS) mkdirAll(dir string) {
	dir = cleanTestPath(dir)
	if dir == "" || fs.find(dir) != nil {
		return
	}
	fs.mkdirAll(path.Dir(dir))
	fs.entries = append(fs.entries, &testEntry{path: dir, isDir: true})
}

func (fs *testFS) Write(ctx context.Context, p string, r io.Reader, options ...Option) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return &PathError{Op: "write", Path: p, Err: err}
	}
	opts := ApplyOptions(options...)

	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.writes++
	p = cleanTestPath(p)
	if e := fs.find(p); e != nil {
		if e.isDir {
			return &PathError{Op: "write", Path: p, Err: ErrIsDir}
		}
		if !opts.Overwrite {
			return &PathError{Op: "write", Path: p, Err: ErrExist}
		}
		e.data = data
		return nil
	}
	fs.mkdirAll(path.Dir(p))
	fs.entries = append(fs.entries, &testEntry{path: p, data: data})
	return nil
}

func (fs *testFS) Read(ctx context.Context, p string) (io.ReadCloser, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err, ok := fs.failRead[cleanTestPath(p)]; ok {
		return nil, &PathError{Op: "read", Path: p, Err: err}
	}
	e := fs.find(p)
	if e == nil {
		return nil, &PathError{Op: "read", Path: p, Err: ErrNotExist}
	}
	if e.isDir {
		return nil, &PathError{Op: "read", Path: p, Err: ErrIsDir}
	}
	return io.NopCloser(bytes.NewReader(e.data)), nil
}

func (fs *testFS) Stat(ctx context.Context, p string) (*FileInfo, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	e := fs.find(p)
	if e == nil {
		return nil, &PathError{Op: "stat", Path: p, Err: ErrNotExist}
	}
	info := e.info()
	info.Path = p
	return &info, nil
}

func (fs *testFS) ListContents(ctx context.Context, p string) ([]FileInfo, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dir := cleanTestPath(p)
	if err, ok := fs.failList[dir]; ok {
		return nil, &PathError{Op: "listcontents", Path: p, Err: err}
	}
	e := fs.find(dir)
	if e == nil {
		return nil, &PathError{Op: "listcontents", Path: p, Err: ErrNotExist}
	}
	if !e.isDir {
		return nil, &PathError{Op: "listcontents", Path: p, Err: ErrNotDir}
	}

	var out []FileInfo
	for _, child := range fs.entries {
		if cleanTestPath(path.Dir(child.path)) == dir {
			out = append(out, child.info())
		}
	}
	return out, nil
}

func (fs *testFS) Delete(ctx context.Context, p string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p = cleanTestPath(p)
	for i, e := range fs.entries {
		if e.path == p && !e.isDir {
			fs.entries = append(fs.entries[:i], fs.entries[i+1:]...)
			return nil
		}
	}
	return &PathError{Op: "delete", Path: p, Err: ErrNotExist}
}

func (fs *testFS) CreateDir(ctx context.Context, p string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.mkdirAll(p)
	return nil
}

// content returns the bytes stored at p, or nil.
func (fs *testFS) content(p string) []byte {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if e := fs.find(p); e != nil {
		return e.data
	}
	return nil
}

func (e *testEntry) info() FileInfo {
	typ := TypeRegular
	if e.isDir {
		typ = TypeDir
	}
	return FileInfo{
		Name:    path.Base(e.path),
		Path:    e.path,
		Size:    int64(len(e.data)),
		ModTime: time.Unix(0, 0),
		Type:    typ,
	}
}

func cleanTestPath(p string) string {
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}
