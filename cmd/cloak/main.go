// Command cloak scans directory trees, applies reversible byte transforms to
// the files it finds and verifies the results with CRC32.
//
// Usage:
//
//	cloak scan DIR [--recursive] [--max N] [--policy FILE] [--gitignore]
//	cloak encrypt SRC DST --transform xor --key K
//	cloak decrypt SRC DST --transform xor --key K
//	cloak checksum FILE... [--algorithm crc32]
//	cloak verify FILE --expected HEX
//	cloak run SRC DST [--workers N] [--suffix .enc] [--dry-run]
//	cloak watch SRC DST
//
// SRC may be a directory or a .zip archive. DST of run may also be a .zip
// archive, or sftp:PATH to write below PATH on the server configured by
// BEAVER_CLOAKKIT_SFTP_*.
//
// Defaults come from BEAVER_CLOAKKIT_* environment variables; flags
// override them. Exit status is 0 on success, 1 when an operation failed or
// a checksum did not match, and 2 for usage and precondition errors.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gobeaver/cloakkit"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := cloakkit.GetConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading configuration: %v\n", err)
		return 2
	}

	root := newRootCommand(cfg)
	root.SetArgs(os.Args[1:])
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitCode(err)
	}
	return 0
}

// exitError carries a process exit status through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageError(format string, args ...any) error {
	return &exitError{code: 2, err: fmt.Errorf(format, args...)}
}

var errMismatch = errors.New("checksum mismatch")

func exitCode(err error) int {
	var ee *exitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ee):
		return ee.code
	case cloakkit.IsPrecondition(err):
		return 2
	default:
		return 1
	}
}
