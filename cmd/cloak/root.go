package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/gobeaver/cloakkit"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// app holds state shared by every subcommand.
type app struct {
	cfg    *cloakkit.Config
	logger *slog.Logger

	logLevel  string
	logFormat string
}

func newRootCommand(cfg *cloakkit.Config) *cobra.Command {
	a := &app{cfg: cfg, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	root := &cobra.Command{
		Use:           "cloak",
		Short:         "Scan, transform and verify file trees",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), a.logLevel, a.logFormat)
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &exitError{code: 2, err: err}
	})

	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "auto", "log format: auto, text, json")

	root.AddCommand(
		a.newScanCommand(),
		a.newTransformCommand("encrypt", false),
		a.newTransformCommand("decrypt", true),
		a.newChecksumCommand(),
		a.newVerifyCommand(),
		a.newRunCommand(),
		a.newWatchCommand(),
	)
	return root
}

// newLogger builds the command logger. "auto" picks text on a terminal and
// JSON when stderr is redirected.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, usageError("invalid --log-level %q", level)
	}
	options := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, options)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, options)), nil
	case "auto", "":
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			return slog.New(slog.NewTextHandler(w, options)), nil
		}
		return slog.New(slog.NewJSONHandler(w, options)), nil
	default:
		return nil, usageError("invalid --log-format %q", format)
	}
}

// exactArgs is cobra.ExactArgs reporting a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &exitError{code: 2, err: err}
		}
		return nil
	}
}

func minimumArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MinimumNArgs(n)(cmd, args); err != nil {
			return &exitError{code: 2, err: err}
		}
		return nil
	}
}

// transformFlags are shared by every command that builds a Transform.
type transformFlags struct {
	name  string
	key   string
	shift int
}

func (a *app) addTransformFlags(cmd *cobra.Command, f *transformFlags) {
	cmd.Flags().StringVar(&f.name, "transform", a.cfg.Transform, "transform: xor, caesar, rot13")
	cmd.Flags().StringVar(&f.key, "key", a.cfg.Key, "xor key (prompted for when empty)")
	cmd.Flags().IntVar(&f.shift, "shift", a.cfg.Shift, "caesar shift")
}

// transform builds the configured Transform, prompting for an xor key on
// the terminal when none was given.
func (a *app) transform(cmd *cobra.Command, f *transformFlags) (cloakkit.Transform, error) {
	key := f.key
	if strings.EqualFold(strings.TrimSpace(f.name), "xor") && key == "" {
		prompted, err := promptKey(cmd.ErrOrStderr())
		if err != nil {
			return nil, err
		}
		key = prompted
	}
	return cloakkit.ParseTransform(f.name, []byte(key), f.shift)
}

func promptKey(w io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", usageError("no terminal available for key prompt (use --key or BEAVER_CLOAKKIT_KEY)")
	}

	fmt.Fprint(w, "Key: ")
	key, err := term.ReadPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("reading key: %w", err)
	}
	return string(key), nil
}
