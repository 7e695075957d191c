package local

import "github.com/gobeaver/cloakkit"

func init() {
	cloakkit.RegisterDriver("local", func(cfg *cloakkit.Config) (cloakkit.FileSystem, error) {
		return New(cfg.LocalBasePath)
	})
}
