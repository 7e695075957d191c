// Package sftp exposes a directory on an SSH server as a cloakkit.FileSystem,
// so remote trees can be scanned, transformed and checksummed like local ones.
package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gobeaver/cloakkit"
	"github.com/gobwas/glob"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultPollInterval is how often Watch re-lists the remote tree.
const DefaultPollInterval = 30 * time.Second

// Adapter provides an SFTP implementation of cloakkit.FileSystem
type Adapter struct {
	mu       sync.Mutex
	client   *sftp.Client
	sshConn  *ssh.Client
	basePath string
	config   *Config
	interval time.Duration
}

// Config holds SFTP connection configuration
type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	PrivateKey []byte // PEM encoded private key
	BasePath   string

	// HostKeyCallback verifies the server. When nil, KnownHostsFile is
	// consulted; with neither set the connection is refused unless
	// InsecureIgnoreHostKey is true.
	HostKeyCallback       ssh.HostKeyCallback
	KnownHostsFile        string
	InsecureIgnoreHostKey bool

	Timeout time.Duration
}

// AdapterOption is a function that configures SFTP Adapter
type AdapterOption func(*Adapter)

// WithBasePath sets the base path for SFTP operations
func WithBasePath(basePath string) AdapterOption {
	return func(a *Adapter) {
		a.basePath = basePath
	}
}

// WithPollInterval sets how often Watch checks for changes.
func WithPollInterval(d time.Duration) AdapterOption {
	return func(a *Adapter) {
		if d > 0 {
			a.interval = d
		}
	}
}

// New dials the server described by cfg and returns a connected adapter.
// A dropped connection is re-established on the next operation.
func New(cfg Config, options ...AdapterOption) (*Adapter, error) {
	adapter := &Adapter{
		config:   &cfg,
		basePath: cfg.BasePath,
		interval: DefaultPollInterval,
	}
	for _, option := range options {
		option(adapter)
	}

	if err := adapter.connect(); err != nil {
		return nil, err
	}
	return adapter, nil
}

// NewFromClient wraps an already established SFTP session. The caller owns
// the underlying transport; the adapter never reconnects it.
func NewFromClient(client *sftp.Client, options ...AdapterOption) *Adapter {
	adapter := &Adapter{
		client:   client,
		interval: DefaultPollInterval,
	}
	for _, option := range options {
		option(adapter)
	}
	return adapter
}

func (c *Config) hostKeyCallback() (ssh.HostKeyCallback, error) {
	switch {
	case c.HostKeyCallback != nil:
		return c.HostKeyCallback, nil
	case c.KnownHostsFile != "":
		return knownhosts.New(c.KnownHostsFile)
	case c.InsecureIgnoreHostKey:
		return ssh.InsecureIgnoreHostKey(), nil
	default:
		return nil, errors.New("no host key verification configured")
	}
}

// connect establishes SSH and SFTP connections
func (a *Adapter) connect() error {
	cfg := a.config

	hostKey, err := cfg.hostKeyCallback()
	if err != nil {
		return fmt.Errorf("host key: %w", err)
	}

	sshConfig := &ssh.ClientConfig{
		User:            cfg.Username,
		HostKeyCallback: hostKey,
		Timeout:         cfg.Timeout,
	}

	if len(cfg.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(cfg.PrivateKey)
		if err != nil {
			return fmt.Errorf("failed to parse private key: %w", err)
		}
		sshConfig.Auth = append(sshConfig.Auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		sshConfig.Auth = append(sshConfig.Auth, ssh.Password(cfg.Password))
	}
	if len(sshConfig.Auth) == 0 {
		return errors.New("no authentication method provided")
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}

	sshConn, err := ssh.Dial("tcp", net.JoinHostPort(cfg.Host, strconv.Itoa(port)), sshConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to SSH: %w", err)
	}

	client, err := sftp.NewClient(sshConn)
	if err != nil {
		sshConn.Close()
		return fmt.Errorf("failed to create SFTP client: %w", err)
	}

	a.sshConn = sshConn
	a.client = client
	return nil
}

// Close closes the SFTP and SSH connections
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			errs = append(errs, err)
		}
		a.client = nil
	}
	if a.sshConn != nil {
		if err := a.sshConn.Close(); err != nil {
			errs = append(errs, err)
		}
		a.sshConn = nil
	}
	return errors.Join(errs...)
}

// session returns a live client, reconnecting when the adapter owns the
// connection and it has dropped.
func (a *Adapter) session(op, p string) (*sftp.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		if _, err := a.client.Getwd(); err == nil || a.config == nil {
			return a.client, nil
		}
		a.client.Close()
		if a.sshConn != nil {
			a.sshConn.Close()
		}
		a.client, a.sshConn = nil, nil
	}
	if a.config == nil {
		return nil, &cloakkit.PathError{Op: op, Path: p, Err: errors.New("sftp session closed")}
	}
	if err := a.connect(); err != nil {
		return nil, &cloakkit.PathError{Op: op, Path: p, Err: err}
	}
	return a.client, nil
}

// remotePath maps a slash-separated relative path onto the server. Paths
// that climb above the base path are refused.
func (a *Adapter) remotePath(op, p string) (string, error) {
	clean := path.Clean(strings.TrimPrefix(p, "/"))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", &cloakkit.PathError{Op: op, Path: p, Err: cloakkit.ErrNotAllowed}
	}
	base := a.basePath
	if base == "" {
		base = "."
	}
	return path.Join(base, clean), nil
}

// Write implements cloakkit.FileWriter
func (a *Adapter) Write(ctx context.Context, p string, content io.Reader, options ...cloakkit.Option) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	full, err := a.remotePath("write", p)
	if err != nil {
		return err
	}
	client, err := a.session("write", p)
	if err != nil {
		return err
	}

	opts := cloakkit.ApplyOptions(options...)
	if !opts.Overwrite {
		_, err := client.Stat(full)
		if err == nil {
			return &cloakkit.PathError{Op: "write", Path: p, Err: cloakkit.ErrExist}
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return mapError("write", p, err)
		}
	}

	if err := client.MkdirAll(path.Dir(full)); err != nil {
		return mapError("write", p, err)
	}

	file, err := client.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return mapError("write", p, err)
	}

	if _, err := io.Copy(file, content); err != nil {
		file.Close()
		return &cloakkit.PathError{Op: "write", Path: p, Err: err}
	}
	if err := file.Close(); err != nil {
		return &cloakkit.PathError{Op: "write", Path: p, Err: err}
	}

	// Servers are free to refuse SETSTAT
	_ = client.Chmod(full, opts.Perm)
	return nil
}

// Read implements cloakkit.FileReader
func (a *Adapter) Read(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := a.remotePath("read", p)
	if err != nil {
		return nil, err
	}
	client, err := a.session("read", p)
	if err != nil {
		return nil, err
	}

	file, err := client.Open(full)
	if err != nil {
		return nil, mapError("read", p, err)
	}
	return file, nil
}

// Delete implements cloakkit.FileWriter
func (a *Adapter) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	full, err := a.remotePath("delete", p)
	if err != nil {
		return err
	}
	client, err := a.session("delete", p)
	if err != nil {
		return err
	}

	if err := client.Remove(full); err != nil {
		return mapError("delete", p, err)
	}
	return nil
}

// Stat implements cloakkit.FileReader. The server resolves symlinks.
func (a *Adapter) Stat(ctx context.Context, p string) (*cloakkit.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := a.remotePath("stat", p)
	if err != nil {
		return nil, err
	}
	client, err := a.session("stat", p)
	if err != nil {
		return nil, err
	}

	info, err := client.Stat(full)
	if err != nil {
		return nil, mapError("stat", p, err)
	}

	fi := toFileInfo(info)
	fi.Name = path.Base(full)
	fi.Path = p
	return fi, nil
}

// ListContents implements cloakkit.FileReader. SFTP servers report entries
// with lstat semantics and carry no inode, so FileInfo.ID stays zero.
func (a *Adapter) ListContents(ctx context.Context, p string) ([]cloakkit.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := a.remotePath("listcontents", p)
	if err != nil {
		return nil, err
	}
	client, err := a.session("listcontents", p)
	if err != nil {
		return nil, err
	}

	entries, err := client.ReadDir(full)
	if err != nil {
		return nil, mapError("listcontents", p, err)
	}

	files := make([]cloakkit.FileInfo, 0, len(entries))
	for _, entry := range entries {
		fi := toFileInfo(entry)
		fi.Path = joinSlash(p, entry.Name())
		files = append(files, *fi)
	}
	return files, nil
}

// CreateDir implements cloakkit.FileWriter
func (a *Adapter) CreateDir(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	full, err := a.remotePath("createdir", p)
	if err != nil {
		return err
	}
	client, err := a.session("createdir", p)
	if err != nil {
		return err
	}

	if err := client.MkdirAll(full); err != nil {
		return mapError("createdir", p, err)
	}
	return nil
}

func toFileInfo(info os.FileInfo) *cloakkit.FileInfo {
	mode := info.Mode()
	typ := cloakkit.TypeOther
	switch {
	case mode&fs.ModeSymlink != 0:
		typ = cloakkit.TypeSymlink
	case mode.IsDir():
		typ = cloakkit.TypeDir
	case mode.IsRegular():
		typ = cloakkit.TypeRegular
	}
	return &cloakkit.FileInfo{
		Name:    info.Name(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Type:    typ,
	}
}

func joinSlash(dir, name string) string {
	if dir == "" || dir == "." || dir == "/" {
		return name
	}
	return strings.TrimSuffix(dir, "/") + "/" + name
}

// mapError maps SFTP errors to cloakkit errors
func mapError(op, p string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		err = cloakkit.ErrNotExist
	case errors.Is(err, fs.ErrPermission):
		err = cloakkit.ErrPermission
	case errors.Is(err, fs.ErrExist):
		err = cloakkit.ErrExist
	}
	return &cloakkit.PathError{Op: op, Path: p, Err: err}
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================

// Checksum implements cloakkit.CanChecksum by streaming the file through the
// hash. SFTP has no server-side digest in its base protocol.
func (a *Adapter) Checksum(ctx context.Context, p string, algorithm cloakkit.ChecksumAlgorithm) (string, error) {
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

// Watch implements cloakkit.CanWatch by polling. Every interval the matching
// part of the tree is listed again and compared by size and modification time.
func (a *Adapter) Watch(ctx context.Context, pattern string) (cloakkit.ChangeToken, error) {
	matcher, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, &cloakkit.PathError{Op: "watch", Path: pattern, Err: err}
	}

	initial, err := a.snapshot(ctx, matcher)
	if err != nil {
		return nil, &cloakkit.PathError{Op: "watch", Path: pattern, Err: err}
	}

	return cloakkit.NewPollingChangeToken(ctx, a.interval, func() bool {
		current, err := a.snapshot(ctx, matcher)
		if err != nil {
			// Can't tell, try again next tick
			return false
		}
		return !statesEqual(initial, current)
	}), nil
}

type fileState struct {
	modTime time.Time
	size    int64
}

// snapshot records every regular file below the base path that matches.
func (a *Adapter) snapshot(ctx context.Context, matcher glob.Glob) (map[string]fileState, error) {
	client, err := a.session("watch", "")
	if err != nil {
		return nil, err
	}
	root, err := a.remotePath("watch", "")
	if err != nil {
		return nil, err
	}

	state := make(map[string]fileState)
	walker := client.Walk(root)
	for walker.Step() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if walker.Err() != nil {
			continue
		}
		info := walker.Stat()
		if !info.Mode().IsRegular() {
			continue
		}
		rel := walker.Path()
		if root != "." {
			rel = strings.TrimPrefix(strings.TrimPrefix(rel, root), "/")
		}
		if matcher.Match(rel) {
			state[rel] = fileState{modTime: info.ModTime(), size: info.Size()}
		}
	}
	return state, nil
}

func statesEqual(a, b map[string]fileState) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok || !v.modTime.Equal(bv.modTime) || v.size != bv.size {
			return false
		}
	}
	return true
}

// Ensure Adapter implements required and optional interfaces
var (
	_ cloakkit.FileSystem  = (*Adapter)(nil)
	_ cloakkit.CanChecksum = (*Adapter)(nil)
	_ cloakkit.CanWatch    = (*Adapter)(nil)
)
