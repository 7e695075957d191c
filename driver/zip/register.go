package zip

import (
	"fmt"

	"github.com/gobeaver/cloakkit"
)

func init() {
	cloakkit.RegisterDriver("zip", func(cfg *cloakkit.Config) (cloakkit.FileSystem, error) {
		if cfg.ZipPath == "" {
			return nil, fmt.Errorf("zip driver requires ZipPath")
		}
		return OpenOrCreate(cfg.ZipPath)
	})
}
