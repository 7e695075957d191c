// Package cloakkit walks directory trees, runs the files it finds through
// reversible byte transforms (XOR, Caesar, ROT13) and checks the result with
// CRC32.
//
// Storage is abstracted the same way for every step: a read-only
// [FileReader] side and a [FileWriter] side, combined in [FileSystem].
// Sources are only ever read; transformed output always goes to a separate
// destination.
//
// # Storage Backends
//
//   - Local filesystem (github.com/gobeaver/cloakkit/driver/local)
//   - In-memory (github.com/gobeaver/cloakkit/driver/memory)
//   - SFTP (github.com/gobeaver/cloakkit/driver/sftp)
//   - ZIP archives (github.com/gobeaver/cloakkit/driver/zip)
//
// Importing a driver package registers it with [RegisterDriver], after which
// [New] can build it from a [Config].
//
// # Discovery
//
// A [Walker] lists regular files into a bounded [FileList]. Hidden names and
// names containing ".git" or ".exclude" are always skipped (see
// [ShouldExclude]); unreadable directories are reported to a skip handler
// and the walk carries on.
//
//	list, err := cloakkit.ScanRecursive(ctx, fs, "docs", 1000,
//	    cloakkit.WithSelector(cloakkit.Glob("*.txt")),
//	)
//	for _, p := range list.Paths() {
//	    fmt.Println(p)
//	}
//
// Symlinks are not followed unless [WithFollowSymlinks] is set, in which case
// directories already visited are reported with [ErrCycle].
//
// # Transforms
//
// A [Transform] produces independent [Stream] values that carry their
// position across chunks, so a file transformed in 32 KiB pieces matches the
// same file transformed in one call:
//
//	x, err := cloakkit.NewXor([]byte("key"))
//	err = cloakkit.Apply(dst, src, x)
//	err = cloakkit.Apply(restored, dst, x.Inverse())
//
// [NewTransformFS] applies a transform transparently on Write and undoes it
// on Read.
//
// # Integrity
//
// [CalculateCRC32] reads in 4 KiB chunks and keeps one running CRC register
// across them. [VerifyRoundTrip] and the [Pipeline] verify step check that
// inverse(transform(x)) hashes to the same value as x.
//
//	p, err := cloakkit.NewPipeline(src, dst, x, cloakkit.WithWorkers(4))
//	report, err := p.Run(ctx, "docs")
//	if err := report.Err(); errors.Is(err, cloakkit.ErrIntegrity) {
//	    // an output did not restore to its source
//	}
//
// # Error Handling
//
// Drivers return [*PathError] values wrapping sentinel errors:
//
//	_, err := fs.Read(ctx, "nonexistent.txt")
//	if cloakkit.IsNotExist(err) {
//	    // File does not exist
//	}
//
// Precondition failures (empty key, invalid limit, path too long) satisfy
// [IsPrecondition].
//
// # Configuration
//
// [GetConfig] loads a [Config] from BEAVER_CLOAKKIT_* environment variables:
//
//	cfg, err := cloakkit.GetConfig()
//	fs, err := cloakkit.New(cfg)
//	t, err := cloakkit.NewTransform(cfg)
//	p, err := cloakkit.NewPipeline(fs, out, t, cfg.PipelineOptions()...)
package cloakkit
