package local

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobeaver/cloakkit"
	"github.com/gobwas/glob"
)

// Adapter provides a local filesystem implementation of cloakkit.FileSystem
type Adapter struct {
	root string
}

// New creates a new local filesystem adapter rooted at root.
func New(root string) (*Adapter, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	// Ensure the root directory exists
	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, err
	}

	return &Adapter{
		root: absRoot,
	}, nil
}

// Root returns the absolute directory the adapter is confined to.
func (a *Adapter) Root() string {
	return a.root
}

func (a *Adapter) fullPath(op, path string) (string, error) {
	fullPath := filepath.Join(a.root, filepath.FromSlash(path))
	if !isPathUnderRoot(a.root, fullPath) {
		return "", &cloakkit.PathError{
			Op:   op,
			Path: path,
			Err:  cloakkit.ErrNotAllowed,
		}
	}
	return fullPath, nil
}

// Write implements cloakkit.FileWriter
func (a *Adapter) Write(ctx context.Context, path string, content io.Reader, options ...cloakkit.Option) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		// Continue
	}

	fullPath, err := a.fullPath("write", path)
	if err != nil {
		return err
	}

	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return &cloakkit.PathError{Op: "write", Path: path, Err: err}
	}

	opts := cloakkit.ApplyOptions(options...)
	flags := os.O_WRONLY | os.O_CREATE
	if opts.Overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}

	f, err := os.OpenFile(fullPath, flags, opts.Perm)
	if err != nil {
		return &cloakkit.PathError{Op: "write", Path: path, Err: mapError(err)}
	}

	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		return &cloakkit.PathError{Op: "write", Path: path, Err: err}
	}

	if err := f.Close(); err != nil {
		return &cloakkit.PathError{Op: "write", Path: path, Err: err}
	}

	return nil
}

// Read implements cloakkit.FileReader
func (a *Adapter) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		// Continue
	}

	fullPath, err := a.fullPath("read", path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		return nil, &cloakkit.PathError{Op: "read", Path: path, Err: mapError(err)}
	}

	return f, nil
}

// Delete implements cloakkit.FileWriter
func (a *Adapter) Delete(ctx context.Context, path string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		// Continue
	}

	fullPath, err := a.fullPath("delete", path)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		return &cloakkit.PathError{Op: "delete", Path: path, Err: mapError(err)}
	}

	return nil
}

// Stat implements cloakkit.FileReader. Symlinks are followed.
func (a *Adapter) Stat(ctx context.Context, path string) (*cloakkit.FileInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		// Continue
	}

	fullPath, err := a.fullPath("stat", path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, &cloakkit.PathError{Op: "stat", Path: path, Err: mapError(err)}
	}

	fi := toFileInfo(info, entryType(info.Mode()))
	fi.Name = filepath.Base(fullPath)
	fi.Path = path
	return fi, nil
}

// ListContents implements cloakkit.FileReader. Entries come back in the
// order the operating system returns them, unsorted.
func (a *Adapter) ListContents(ctx context.Context, path string) ([]cloakkit.FileInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		// Continue
	}

	fullPath, err := a.fullPath("listcontents", path)
	if err != nil {
		return nil, err
	}

	dir, err := os.Open(fullPath)
	if err != nil {
		return nil, &cloakkit.PathError{Op: "listcontents", Path: path, Err: mapError(err)}
	}
	defer dir.Close()

	entries, err := dir.ReadDir(-1)
	if err != nil {
		return nil, &cloakkit.PathError{Op: "listcontents", Path: path, Err: mapError(err)}
	}

	files := make([]cloakkit.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Lstat
			continue
		}

		fi := toFileInfo(info, entryType(entry.Type()))
		fi.Name = entry.Name()
		fi.Path = joinSlash(path, entry.Name())
		files = append(files, *fi)
	}

	return files, nil
}

// CreateDir implements cloakkit.FileWriter
func (a *Adapter) CreateDir(ctx context.Context, path string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		// Continue
	}

	fullPath, err := a.fullPath("createdir", path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(fullPath, 0755); err != nil {
		return &cloakkit.PathError{Op: "createdir", Path: path, Err: mapError(err)}
	}

	return nil
}

// isPathUnderRoot checks if a path is under a given root directory
func isPathUnderRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}

	return !filepath.IsAbs(rel) && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func entryType(mode fs.FileMode) cloakkit.EntryType {
	switch {
	case mode&fs.ModeSymlink != 0:
		return cloakkit.TypeSymlink
	case mode.IsDir():
		return cloakkit.TypeDir
	case mode.IsRegular():
		return cloakkit.TypeRegular
	default:
		return cloakkit.TypeOther
	}
}

func toFileInfo(info os.FileInfo, typ cloakkit.EntryType) *cloakkit.FileInfo {
	return &cloakkit.FileInfo{
		Name:    info.Name(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Type:    typ,
		ID:      fileID(info),
	}
}

func joinSlash(dir, name string) string {
	if dir == "" || dir == "." || dir == "/" {
		return name
	}
	return strings.TrimSuffix(dir, "/") + "/" + name
}

func mapError(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return cloakkit.ErrNotExist
	case errors.Is(err, fs.ErrExist):
		return cloakkit.ErrExist
	case errors.Is(err, fs.ErrPermission):
		return cloakkit.ErrPermission
	default:
		return err
	}
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================

// Checksum implements cloakkit.CanChecksum for local files.
func (a *Adapter) Checksum(ctx context.Context, path string, algorithm cloakkit.ChecksumAlgorithm) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	fullPath, err := a.fullPath("checksum", path)
	if err != nil {
		return "", err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		return "", &cloakkit.PathError{Op: "checksum", Path: path, Err: mapError(err)}
	}
	defer file.Close()

	checksum, err := cloakkit.CalculateChecksum(file, algorithm)
	if err != nil {
		return "", &cloakkit.PathError{Op: "checksum", Path: path, Err: err}
	}

	return checksum, nil
}

// Watch implements cloakkit.CanWatch using fsnotify for native file system events.
func (a *Adapter) Watch(ctx context.Context, pattern string) (cloakkit.ChangeToken, error) {
	matcher, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, &cloakkit.PathError{Op: "watch", Path: pattern, Err: err}
	}
	byName := !strings.Contains(pattern, "/")

	// Watch the longest directory prefix that holds no glob characters
	watchPath := a.root
	if idx := strings.IndexAny(pattern, "*?[{"); idx != 0 {
		prefix := pattern
		if idx > 0 {
			prefix = pattern[:idx]
		}
		if lastSlash := strings.LastIndex(prefix, "/"); lastSlash > 0 {
			watchPath, err = a.fullPath("watch", prefix[:lastSlash])
			if err != nil {
				return nil, err
			}
		}
	}

	watcher, err := newFSWatcher()
	if err != nil {
		return nil, &cloakkit.PathError{Op: "watch", Path: pattern, Err: err}
	}

	if err := watcher.Add(watchPath); err != nil {
		watcher.Close()
		return nil, &cloakkit.PathError{Op: "watch", Path: pattern, Err: mapError(err)}
	}

	// fsnotify is not recursive, so ** needs every subdirectory registered
	if strings.Contains(pattern, "**") {
		filepath.WalkDir(watchPath, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() && p != watchPath {
				watcher.Add(p)
			}
			return nil
		})
	}

	token := cloakkit.NewCallbackChangeToken()

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events():
				if !ok {
					return
				}

				rel, err := filepath.Rel(a.root, event.Name)
				if err != nil {
					continue
				}
				rel = filepath.ToSlash(rel)

				if matcher.Match(rel) || (byName && matcher.Match(filepath.Base(rel))) {
					token.SignalChange()
					return // Token is spent after first change
				}
			case _, ok := <-watcher.Errors():
				if !ok {
					return
				}
			}
		}
	}()

	return token, nil
}

// Ensure Adapter implements interfaces
var (
	_ cloakkit.FileSystem  = (*Adapter)(nil)
	_ cloakkit.FileReader  = (*Adapter)(nil)
	_ cloakkit.FileWriter  = (*Adapter)(nil)
	_ cloakkit.CanChecksum = (*Adapter)(nil)
	_ cloakkit.CanWatch    = (*Adapter)(nil)
)
