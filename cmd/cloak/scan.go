package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobeaver/cloakkit"
	"github.com/gobeaver/cloakkit/driver/local"
	"github.com/gobeaver/cloakkit/driver/zip"
	"github.com/gobeaver/cloakkit/policy"
	"github.com/spf13/cobra"
)

// walkFlags select and bound the files a command operates on.
type walkFlags struct {
	recursive bool
	max       int
	policy    string
	gitignore bool
	glob      string
	follow    bool
}

func (a *app) addWalkFlags(cmd *cobra.Command, f *walkFlags) {
	cmd.Flags().BoolVarP(&f.recursive, "recursive", "r", a.cfg.Recursive, "descend into subdirectories")
	cmd.Flags().IntVar(&f.max, "max", a.cfg.MaxFiles, "maximum number of files")
	cmd.Flags().StringVar(&f.policy, "policy", a.cfg.PolicyFile, "policy file with [WHITELIST]/[BLACKLIST] sections")
	cmd.Flags().BoolVar(&f.gitignore, "gitignore", false, "honour DIR/.gitignore")
	cmd.Flags().StringVar(&f.glob, "glob", "", "only files matching this glob pattern")
	cmd.Flags().BoolVar(&f.follow, "follow-symlinks", false, "follow symbolic links")
}

// openTree opens SRC read-only: a *.zip file as an archive, anything else
// as an existing directory. The local driver creates missing roots, so
// existence is checked first. The closer is nil for directories.
func openTree(p string) (*cloakkit.ReadOnlyFileSystem, io.Closer, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, nil, err
	}
	if !info.IsDir() {
		if !isArchive(p) || !info.Mode().IsRegular() {
			return nil, nil, &cloakkit.PathError{Op: "open", Path: p, Err: cloakkit.ErrNotDir}
		}
		archive, err := zip.Open(p)
		if err != nil {
			return nil, nil, err
		}
		return cloakkit.NewReadOnlyFileSystem(archive), archive, nil
	}

	adapter, err := local.New(p)
	if err != nil {
		return nil, nil, err
	}
	return cloakkit.NewReadOnlyFileSystem(adapter), nil, nil
}

// loadPolicy returns nil when no policy file is configured.
func (a *app) loadPolicy(path string) (*policy.Policy, error) {
	if path == "" {
		return nil, nil
	}
	p, err := policy.Load(path, policy.WithMaxPatterns(a.cfg.MaxPatterns))
	if err != nil {
		return nil, &exitError{code: 2, err: err}
	}
	a.logger.Debug("policy loaded", "path", path, "allow", len(p.Allow()), "deny", len(p.Deny()))
	return p, nil
}

// selector combines the glob and gitignore filters.
func (a *app) selector(ctx context.Context, fs cloakkit.FileReader, f *walkFlags) cloakkit.FileSelector {
	var selectors []cloakkit.FileSelector
	if f.glob != "" {
		selectors = append(selectors, cloakkit.Glob(f.glob))
	}
	if f.gitignore {
		selectors = append(selectors, cloakkit.GitIgnore(ctx, fs, ""))
	}
	if len(selectors) == 0 {
		return cloakkit.All()
	}
	return cloakkit.And(selectors...)
}

// policyFilter matches pol against root/path, with root as given on the
// command line, so patterns anchored with "/" match top-level directories.
// A nil policy allows everything.
func policyFilter(pol *policy.Policy, root string) func(path string) bool {
	prefix := strings.TrimSuffix(filepath.ToSlash(root), "/") + "/"
	return func(p string) bool { return pol.IsAllowed(prefix + p) }
}

func (a *app) walkOptions(f *walkFlags) []cloakkit.WalkOption {
	return []cloakkit.WalkOption{
		cloakkit.WithFollowSymlinks(f.follow),
		cloakkit.WithSkipHandler(func(path string, err error) {
			a.logger.Debug("skipped", "path", path, "error", err)
		}),
	}
}

func (a *app) newScanCommand() *cobra.Command {
	var f walkFlags

	cmd := &cobra.Command{
		Use:   "scan DIR",
		Short: "List the regular files below DIR (a directory or .zip archive)",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dir := args[0]

			pol, err := a.loadPolicy(f.policy)
			if err != nil {
				return err
			}

			src, closer, err := openTree(dir)
			if err != nil {
				// Unreadable roots yield an empty listing
				a.logger.Warn("cannot open directory", "path", dir, "error", err)
				return nil
			}
			if closer != nil {
				defer closer.Close()
			}

			opts := append(a.walkOptions(&f), cloakkit.WithSelector(a.selector(ctx, src, &f)))
			walker := cloakkit.NewWalker(src, opts...)

			var list *cloakkit.FileList
			if f.recursive {
				list, err = walker.ScanRecursive(ctx, "", f.max)
			} else {
				list, err = walker.Scan(ctx, "", f.max)
			}
			if err != nil {
				return err
			}

			allowed := policyFilter(pol, dir)
			out := cmd.OutOrStdout()
			printed := 0
			for _, p := range list.Paths() {
				if !allowed(p) {
					a.logger.Debug("policy skipped", "path", p)
					continue
				}
				fmt.Fprintln(out, filepath.Join(dir, filepath.FromSlash(p)))
				printed++
			}
			a.logger.Info("scan complete", "path", dir, "files", printed, "skipped", list.Len()-printed, "full", list.Full())
			return nil
		},
	}
	a.addWalkFlags(cmd, &f)
	return cmd
}
