package cloakkit

import "os"

// DefaultPerm is the permission used for files created by Write.
const DefaultPerm os.FileMode = 0644

// Option represents a write option
type Option func(*Options)

// Options contains all possible options for write operations
type Options struct {
	// Overwrite determines whether to replace existing files
	Overwrite bool

	// Perm is the permission applied to newly created files
	Perm os.FileMode
}

// ApplyOptions folds opts over the defaults. Drivers call this on every Write.
func ApplyOptions(opts ...Option) *Options {
	o := &Options{Perm: DefaultPerm}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithOverwrite enables or disables overwriting existing files
func WithOverwrite(overwrite bool) Option {
	return func(o *Options) {
		o.Overwrite = overwrite
	}
}

// WithPerm sets the permission of created files
func WithPerm(perm os.FileMode) Option {
	return func(o *Options) {
		o.Perm = perm
	}
}
