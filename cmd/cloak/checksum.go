package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobeaver/cloakkit"
	"github.com/spf13/cobra"
)

// fileChecksum hashes a single local file through the driver's CanChecksum.
func fileChecksum(ctx context.Context, file string, algorithm cloakkit.ChecksumAlgorithm) (string, error) {
	src, _, err := openTree(filepath.Dir(file))
	if err != nil {
		return "", err
	}
	return src.Checksum(ctx, filepath.Base(file), algorithm)
}

func (a *app) newChecksumCommand() *cobra.Command {
	var algorithm string

	cmd := &cobra.Command{
		Use:   "checksum FILE...",
		Short: "Print file checksums",
		Args:  minimumArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			algo := cloakkit.ChecksumAlgorithm(strings.ToLower(algorithm))

			failed := 0
			for _, file := range args {
				sum, err := fileChecksum(ctx, file, algo)
				if err != nil {
					if cloakkit.IsPrecondition(err) {
						return err
					}
					a.logger.Error("checksum failed", "path", file, "error", err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", sum, file)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files could not be read", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&algorithm, "algorithm", "a", a.cfg.Checksum, "crc32, xxhash, md5, sha1, sha256, sha512")
	return cmd
}

func (a *app) newVerifyCommand() *cobra.Command {
	var (
		algorithm string
		expected  string
	)

	cmd := &cobra.Command{
		Use:   "verify FILE",
		Short: "Check a file against an expected checksum",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if expected == "" {
				return usageError("--expected is required")
			}
			algo := cloakkit.ChecksumAlgorithm(strings.ToLower(algorithm))
			expected = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(expected)), "0x")
			if algo == cloakkit.ChecksumCRC32 {
				crc, err := cloakkit.ParseCRC32(expected)
				if err != nil {
					return usageError("invalid --expected: %v", err)
				}
				expected = cloakkit.FormatCRC32(crc)
			}

			sum, err := fileChecksum(cmd.Context(), args[0], algo)
			if err != nil {
				return err
			}

			if !strings.EqualFold(sum, expected) {
				a.logger.Error("checksum mismatch", "path", args[0], "algorithm", algo, "expected", expected, "actual", sum)
				return errMismatch
			}
			a.logger.Info("checksum ok", "path", args[0], "algorithm", algo, "sum", sum)
			return nil
		},
	}
	cmd.Flags().StringVarP(&algorithm, "algorithm", "a", a.cfg.Checksum, "crc32, xxhash, md5, sha1, sha256, sha512")
	cmd.Flags().StringVar(&expected, "expected", "", "expected checksum in hex")
	return cmd
}
