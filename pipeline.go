package cloakkit

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"sync"
)

// PipelineOption configures a Pipeline.
type PipelineOption func(*pipelineOptions)

type pipelineOptions struct {
	recursive  bool
	maxFiles   int
	selector   FileSelector
	pathFilter func(path string) bool
	verify     bool
	workers    int
	outputName func(path string) string
	writeOpts  []Option
	walkOpts   []WalkOption
}

// WithRecursive selects recursive (true) or flat (false) traversal.
func WithRecursive(recursive bool) PipelineOption {
	return func(o *pipelineOptions) { o.recursive = recursive }
}

// WithMaxFiles bounds the number of files discovered per run.
func WithMaxFiles(n int) PipelineOption {
	return func(o *pipelineOptions) { o.maxFiles = n }
}

// WithFilter restricts traversal with a selector (glob, gitignore, ...).
func WithFilter(selector FileSelector) PipelineOption {
	return func(o *pipelineOptions) { o.selector = selector }
}

// WithPathFilter drops discovered paths for which allow returns false.
// Dropped files are reported as skipped, not failed.
func WithPathFilter(allow func(path string) bool) PipelineOption {
	return func(o *pipelineOptions) { o.pathFilter = allow }
}

// WithVerify enables the decrypt-after-encrypt CRC32 check for every output.
func WithVerify(verify bool) PipelineOption {
	return func(o *pipelineOptions) { o.verify = verify }
}

// WithWorkers sets how many files are processed at once. Values below 1 mean 1.
func WithWorkers(n int) PipelineOption {
	return func(o *pipelineOptions) { o.workers = n }
}

// WithOutputName maps a source path to its destination path.
func WithOutputName(fn func(path string) string) PipelineOption {
	return func(o *pipelineOptions) {
		if fn != nil {
			o.outputName = fn
		}
	}
}

// WithWriteOptions passes write options to every destination Write.
func WithWriteOptions(opts ...Option) PipelineOption {
	return func(o *pipelineOptions) { o.writeOpts = append(o.writeOpts, opts...) }
}

// WithWalkOptions passes options to the underlying Walker.
func WithWalkOptions(opts ...WalkOption) PipelineOption {
	return func(o *pipelineOptions) { o.walkOpts = append(o.walkOpts, opts...) }
}

// Result describes what happened to a single discovered file.
type Result struct {
	Path      string
	Output    string
	Size      int64
	SourceCRC uint32
	OutputCRC uint32
	Verified  bool
	Skipped   bool
	Err       error
}

// Report summarises a pipeline run. Results are in discovery order.
type Report struct {
	Results   []Result
	Processed int
	Skipped   int
	Failed    int
}

// Err joins every per-file error, or returns nil when all files succeeded.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	return errors.Join(errs...)
}

// Pipeline discovers files on a source, streams each one through a
// Transform into a destination and checks the result with CRC32.
// Sources are only ever read.
type Pipeline struct {
	src       FileReader
	dst       FileSystem
	transform Transform
	opts      pipelineOptions
}

// NewPipeline creates a pipeline from src to dst.
func NewPipeline(src FileReader, dst FileSystem, t Transform, opts ...PipelineOption) (*Pipeline, error) {
	if src == nil || dst == nil {
		return nil, errors.New("source and destination are required")
	}
	if t == nil {
		return nil, fmt.Errorf("%w: nil transform", ErrNotSupported)
	}

	o := pipelineOptions{
		recursive:  true,
		maxFiles:   DefaultMaxFiles,
		verify:     true,
		workers:    1,
		outputName: func(p string) string { return p },
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxFiles < 1 {
		return nil, fmt.Errorf("max files: %w", ErrInvalidLimit)
	}
	if o.workers < 1 {
		o.workers = 1
	}
	if o.selector != nil {
		o.walkOpts = append(o.walkOpts, WithSelector(o.selector))
	}

	return &Pipeline{
		src:       NewReadOnlyFileSystem(src),
		dst:       dst,
		transform: t,
		opts:      o,
	}, nil
}

// Discover runs only the traversal step.
func (p *Pipeline) Discover(ctx context.Context, root string) (*FileList, error) {
	walker := NewWalker(p.src, p.opts.walkOpts...)
	if p.opts.recursive {
		return walker.ScanRecursive(ctx, root, p.opts.maxFiles)
	}
	return walker.Scan(ctx, root, p.opts.maxFiles)
}

// Run processes every file below root. Per-file failures are recorded in the
// report; the returned error is reserved for traversal preconditions and
// context cancellation.
func (p *Pipeline) Run(ctx context.Context, root string) (*Report, error) {
	list, err := p.Discover(ctx, root)
	if err != nil {
		return nil, err
	}

	results := make([]Result, list.Len())
	if p.opts.workers == 1 || list.Len() < 2 {
		for i := 0; i < list.Len(); i++ {
			results[i] = p.process(ctx, list.At(i))
		}
	} else {
		p.runParallel(ctx, list, results)
	}

	report := &Report{Results: results}
	for _, res := range results {
		switch {
		case res.Skipped:
			report.Skipped++
		case res.Err != nil:
			report.Failed++
		default:
			report.Processed++
		}
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (p *Pipeline) runParallel(ctx context.Context, list *FileList, results []Result) {
	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := p.opts.workers
	if workers > list.Len() {
		workers = list.Len()
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = p.process(ctx, list.At(i))
			}
		}()
	}

	for i := 0; i < list.Len(); i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

func (p *Pipeline) process(ctx context.Context, entry FileEntry) Result {
	res := Result{
		Path: entry.Path(),
		Size: entry.Info().Size,
	}

	if p.opts.pathFilter != nil && !p.opts.pathFilter(res.Path) {
		res.Skipped = true
		return res
	}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	res.Output = p.opts.outputName(res.Path)

	in, err := p.src.Read(ctx, res.Path)
	if err != nil {
		res.Err = wrapPathError("transform", res.Path, err)
		return res
	}
	defer in.Close()

	srcSum := crc32.NewIEEE()
	outSum := crc32.NewIEEE()
	transformed := io.TeeReader(NewReader(io.TeeReader(in, srcSum), p.transform), outSum)

	if err := p.dst.Write(ctx, res.Output, transformed, p.opts.writeOpts...); err != nil {
		res.Err = wrapPathError("transform", res.Output, err)
		return res
	}
	res.SourceCRC = srcSum.Sum32()
	res.OutputCRC = outSum.Sum32()

	if !p.opts.verify {
		return res
	}

	restored, err := p.restoredCRC(ctx, res.Output)
	if err != nil {
		res.Err = err
		return res
	}
	if restored != res.SourceCRC {
		res.Err = &PathError{
			Op:   "verify",
			Path: res.Output,
			Err:  fmt.Errorf("%w: restored %s, source %s", ErrIntegrity, FormatCRC32(restored), FormatCRC32(res.SourceCRC)),
		}
		return res
	}
	res.Verified = true
	return res
}

// restoredCRC reads an output back through the inverse transform.
func (p *Pipeline) restoredCRC(ctx context.Context, output string) (uint32, error) {
	rc, err := p.dst.Read(ctx, output)
	if err != nil {
		return 0, wrapPathError("verify", output, err)
	}
	defer rc.Close()

	sum, err := CalculateCRC32(NewReader(rc, p.transform.Inverse()))
	if err != nil {
		return 0, &PathError{Op: "verify", Path: output, Err: err}
	}
	return sum, nil
}
