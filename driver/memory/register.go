package memory

import "github.com/gobeaver/cloakkit"

func init() {
	cloakkit.RegisterDriver("memory", func(cfg *cloakkit.Config) (cloakkit.FileSystem, error) {
		return New(Config{MaxSize: cfg.MemoryMaxSize}), nil
	})
}
