package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gobeaver/cloakkit"
	"github.com/gobeaver/cloakkit/driver/local"
	"github.com/gobeaver/cloakkit/driver/memory"
	_ "github.com/gobeaver/cloakkit/driver/sftp"
	"github.com/gobeaver/cloakkit/driver/zip"
	"github.com/spf13/cobra"
)

// newTransformCommand builds encrypt (inverse=false) and decrypt
// (inverse=true) for a single file.
func (a *app) newTransformCommand(name string, inverse bool) *cobra.Command {
	var (
		tf        transformFlags
		overwrite bool
		verify    bool
	)

	cmd := &cobra.Command{
		Use:   name + " SRC DST",
		Short: strings.ToUpper(name[:1]) + name[1:] + " a single file into DST",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			srcPath, dstPath := args[0], args[1]

			if same, err := samePath(srcPath, dstPath); err != nil || same {
				return usageError("source and destination must differ")
			}

			t, err := a.transform(cmd, &tf)
			if err != nil {
				return err
			}
			if inverse {
				t = t.Inverse()
			}

			src, _, err := openTree(filepath.Dir(srcPath))
			if err != nil {
				return err
			}
			dst, err := local.New(filepath.Dir(dstPath))
			if err != nil {
				return err
			}

			srcName, dstName := filepath.Base(srcPath), filepath.Base(dstPath)
			if err := cloakkit.ApplyFile(ctx, src, srcName, dst, dstName, t, cloakkit.WithOverwrite(overwrite)); err != nil {
				return err
			}

			srcCRC, err := cloakkit.ChecksumFile(ctx, src, srcName)
			if err != nil {
				return err
			}
			logger := a.logger.With("transform", t.Name(), "src", srcPath, "dst", dstPath, "src_crc32", cloakkit.FormatCRC32(srcCRC))

			if !verify {
				logger.Info(name + " complete")
				return nil
			}

			restored, err := restoredCRC(ctx, dst, dstName, t)
			if err != nil {
				return err
			}
			if restored != srcCRC {
				logger.Error("round trip mismatch", "restored_crc32", cloakkit.FormatCRC32(restored))
				return &cloakkit.PathError{Op: "verify", Path: dstPath, Err: cloakkit.ErrIntegrity}
			}
			logger.Info(name+" complete", "verified", true)
			return nil
		},
	}
	a.addTransformFlags(cmd, &tf)
	cmd.Flags().BoolVarP(&overwrite, "overwrite", "f", false, "replace an existing DST")
	cmd.Flags().BoolVar(&verify, "verify", a.cfg.Verify, "check that DST restores to SRC")
	return cmd
}

// restoredCRC is the CRC32 of path read back through t's inverse.
func restoredCRC(ctx context.Context, fs cloakkit.FileReader, path string, t cloakkit.Transform) (uint32, error) {
	rc, err := fs.Read(ctx, path)
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	return cloakkit.CalculateCRC32(cloakkit.NewReader(rc, t.Inverse()))
}

func samePath(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	return absA == absB, nil
}

// within reports whether child is dir or lies below it.
func within(dir, child string) (bool, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false, err
	}
	absChild, err := filepath.Abs(child)
	if err != nil {
		return false, err
	}
	rel, err := filepath.Rel(absDir, absChild)
	if err != nil {
		return false, nil
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))), nil
}

// runFlags configure the run and watch commands.
type runFlags struct {
	walk      walkFlags
	transform transformFlags
	verify    bool
	workers   int
	suffix    string
	overwrite bool
	decrypt   bool
	dryRun    bool
}

func (a *app) addRunFlags(cmd *cobra.Command, f *runFlags) {
	a.addWalkFlags(cmd, &f.walk)
	a.addTransformFlags(cmd, &f.transform)
	cmd.Flags().BoolVar(&f.verify, "verify", a.cfg.Verify, "check every output restores to its source")
	cmd.Flags().IntVarP(&f.workers, "workers", "j", a.cfg.Workers, "files processed concurrently")
	cmd.Flags().StringVar(&f.suffix, "suffix", ".enc", "appended to outputs (stripped with --decrypt)")
	cmd.Flags().BoolVarP(&f.overwrite, "overwrite", "f", false, "replace existing outputs")
	cmd.Flags().BoolVarP(&f.decrypt, "decrypt", "d", false, "apply the inverse transform")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "write outputs to memory only")
}

// session is a pipeline bound to a source tree and a destination.
type session struct {
	pipeline *cloakkit.Pipeline
	source   *cloakkit.ReadOnlyFileSystem
	closers  []io.Closer
}

// Close flushes archive destinations and releases remote connections.
func (s *session) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// isArchive reports whether p names a ZIP archive rather than a directory.
func isArchive(p string) bool {
	return strings.EqualFold(filepath.Ext(p), ".zip")
}

// remotePath returns the base path of an sftp: destination.
func remotePath(p string) (string, bool) {
	return strings.CutPrefix(p, "sftp:")
}

// openDestination resolves DST: sftp:PATH goes to the configured SFTP
// server, *.zip to an archive, anything else to a local directory.
func (a *app) openDestination(dst string, dryRun bool) (cloakkit.FileSystem, io.Closer, error) {
	if dryRun {
		return memory.New(), nil, nil
	}
	if base, ok := remotePath(dst); ok {
		cfg := *a.cfg
		cfg.Driver = "sftp"
		cfg.SFTPBasePath = base
		fs, err := cloakkit.New(&cfg)
		if err != nil {
			return nil, nil, err
		}
		closer, _ := fs.(io.Closer)
		return fs, closer, nil
	}
	if isArchive(dst) {
		archive, err := zip.OpenOrCreate(dst)
		if err != nil {
			return nil, nil, err
		}
		return archive, archive, nil
	}
	fs, err := local.New(dst)
	return fs, nil, err
}

func (a *app) newSession(cmd *cobra.Command, srcDir, dstDir string, f *runFlags) (*session, error) {
	ctx := cmd.Context()

	if _, remote := remotePath(dstDir); !remote {
		if inside, err := within(srcDir, dstDir); err != nil || inside {
			return nil, usageError("destination must not be inside the source tree")
		}
		if inside, err := within(dstDir, srcDir); err != nil || inside {
			return nil, usageError("source must not be inside the destination tree")
		}
	}

	pol, err := a.loadPolicy(f.walk.policy)
	if err != nil {
		return nil, err
	}

	t, err := a.transform(cmd, &f.transform)
	if err != nil {
		return nil, err
	}
	if f.decrypt {
		t = t.Inverse()
	}

	src, srcCloser, err := openTree(srcDir)
	if err != nil {
		return nil, err
	}
	s := &session{source: src}
	if srcCloser != nil {
		s.closers = append(s.closers, srcCloser)
	}

	dst, closer, err := a.openDestination(dstDir, f.dryRun)
	if err != nil {
		s.Close()
		return nil, err
	}
	if closer != nil {
		s.closers = append(s.closers, closer)
	}

	opts := []cloakkit.PipelineOption{
		cloakkit.WithRecursive(f.walk.recursive),
		cloakkit.WithMaxFiles(f.walk.max),
		cloakkit.WithVerify(f.verify),
		cloakkit.WithWorkers(f.workers),
		cloakkit.WithFilter(a.selector(ctx, src, &f.walk)),
		cloakkit.WithWalkOptions(a.walkOptions(&f.walk)...),
		cloakkit.WithWriteOptions(cloakkit.WithOverwrite(f.overwrite)),
		cloakkit.WithOutputName(outputName(f.suffix, f.decrypt)),
	}
	if pol != nil {
		opts = append(opts, cloakkit.WithPathFilter(policyFilter(pol, srcDir)))
	}

	p, err := cloakkit.NewPipeline(src, dst, t, opts...)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.pipeline = p
	a.logger.Debug("pipeline ready", "src", srcDir, "dst", dstDir, "transform", t.Name(), "workers", f.workers, "dry_run", f.dryRun)
	return s, nil
}

func outputName(suffix string, decrypt bool) func(string) string {
	if decrypt {
		return func(p string) string { return strings.TrimSuffix(p, suffix) }
	}
	return func(p string) string { return p + suffix }
}

// pass runs the pipeline once and logs the report.
func (a *app) pass(ctx context.Context, s *session) error {
	report, err := s.pipeline.Run(ctx, "")
	if report != nil {
		for _, res := range report.Results {
			switch {
			case res.Skipped:
				a.logger.Debug("policy skipped", "path", res.Path)
			case res.Err != nil:
				a.logger.Error("file failed", "path", res.Path, "error", res.Err)
			default:
				a.logger.Debug("file done", "path", res.Path, "output", res.Output,
					"size", res.Size, "crc32", cloakkit.FormatCRC32(res.SourceCRC), "verified", res.Verified)
			}
		}
		a.logger.Info("run complete", "processed", report.Processed, "skipped", report.Skipped, "failed", report.Failed)
	}
	if err != nil {
		return err
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d files failed: %w", report.Failed, len(report.Results), report.Err())
	}
	return nil
}

func (a *app) newRunCommand() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run SRC DST",
		Short: "Transform every selected file below SRC into DST",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := a.newSession(cmd, args[0], args[1], &f)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := s.Close(); err == nil {
					err = closeErr
				}
			}()
			return a.pass(cmd.Context(), s)
		},
	}
	a.addRunFlags(cmd, &f)
	return cmd
}

func (a *app) newWatchCommand() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "watch SRC DST",
		Short: "Run, then re-run whenever SRC changes",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if isArchive(args[1]) {
				return usageError("watch cannot write into an archive")
			}
			// Every pass rewrites the outputs of the previous one
			f.overwrite = true
			s, err := a.newSession(cmd, args[0], args[1], &f)
			if err != nil {
				return err
			}
			defer s.Close()

			watcher, ok := s.source.Unwrap().(cloakkit.CanWatch)
			if !ok {
				return usageError("%s cannot be watched", args[0])
			}

			rerun := func() {
				if err := a.pass(ctx, s); err != nil && !errors.Is(err, context.Canceled) {
					a.logger.Error("pass failed", "error", err)
				}
			}
			rerun()

			a.logger.Info("watching", "path", args[0])
			return cloakkit.OnChange(ctx,
				func() (cloakkit.ChangeToken, error) { return watcher.Watch(ctx, "**") },
				rerun,
			)
		},
	}
	a.addRunFlags(cmd, &f)
	return cmd
}
