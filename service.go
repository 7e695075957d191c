package cloakkit

import (
	"errors"
	"fmt"

	"github.com/gobeaver/beaver-kit/config"
)

// Builder loads configuration under a custom environment prefix
type Builder struct {
	prefix string
}

// WithPrefix creates a new Builder with the specified prefix
func WithPrefix(prefix string) *Builder {
	return &Builder{prefix: prefix}
}

// Config loads a Config using the builder's prefix
func (b *Builder) Config() (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg, config.LoadOptions{Prefix: b.prefix}); err != nil {
		return nil, err
	}
	return cfg, nil
}

// New creates a new FileSystem instance using the builder's prefix
func (b *Builder) New() (FileSystem, error) {
	cfg, err := b.Config()
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

// New creates a file system from cfg through the driver registry.
// The driver package must have been imported for its factory to be registered.
func New(cfg *Config) (FileSystem, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	fs, err := CreateDriver(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}

	return fs, nil
}

// NewFromEnv creates instance from environment variables (convenience constructor)
func NewFromEnv() (FileSystem, error) {
	cfg, err := GetConfig()
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

// NewTransform builds the transform named by cfg.Transform.
func NewTransform(cfg *Config) (Transform, error) {
	return ParseTransform(cfg.Transform, []byte(cfg.Key), cfg.Shift)
}

// PipelineOptions translates the traversal and integrity settings of cfg.
func (cfg *Config) PipelineOptions() []PipelineOption {
	return []PipelineOption{
		WithRecursive(cfg.Recursive),
		WithMaxFiles(cfg.MaxFiles),
		WithVerify(cfg.Verify),
		WithWorkers(cfg.Workers),
	}
}

// validateConfig checks configuration validity
func validateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if cfg.Driver == "" {
		return errors.New("driver is required")
	}

	switch cfg.Driver {
	case "local":
		if cfg.LocalBasePath == "" {
			return errors.New("local base path is required for local driver")
		}
	case "memory":
		if cfg.MemoryMaxSize < 0 {
			return errors.New("memory max size must not be negative")
		}
	case "sftp":
		if cfg.SFTPHost == "" {
			return errors.New("SFTP host is required for sftp driver")
		}
		if cfg.SFTPPassword == "" && cfg.SFTPPrivateKey == "" {
			return errors.New("SFTP password or private key is required")
		}
		if cfg.SFTPKnownHosts == "" && !cfg.SFTPInsecureHostKey {
			return errors.New("SFTP known hosts file is required unless host key checking is disabled")
		}
	case "zip":
		if cfg.ZipPath == "" {
			return errors.New("zip path is required for zip driver")
		}
	}

	if cfg.MaxFiles < 1 {
		return fmt.Errorf("max files: %w", ErrInvalidLimit)
	}
	if cfg.MaxPatterns < 1 {
		return fmt.Errorf("max patterns: %w", ErrInvalidLimit)
	}

	return nil
}
