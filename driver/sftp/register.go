package sftp

import (
	"fmt"
	"os"
	"time"

	"github.com/gobeaver/cloakkit"
)

func init() {
	cloakkit.RegisterDriver("sftp", func(cfg *cloakkit.Config) (cloakkit.FileSystem, error) {
		if cfg.SFTPHost == "" {
			return nil, fmt.Errorf("SFTP host is required")
		}

		sftpConfig := Config{
			Host:                  cfg.SFTPHost,
			Port:                  cfg.SFTPPort,
			Username:              cfg.SFTPUsername,
			Password:              cfg.SFTPPassword,
			BasePath:              cfg.SFTPBasePath,
			KnownHostsFile:        cfg.SFTPKnownHosts,
			InsecureIgnoreHostKey: cfg.SFTPInsecureHostKey,
		}

		// Load private key if specified
		if cfg.SFTPPrivateKey != "" {
			keyData, err := os.ReadFile(cfg.SFTPPrivateKey)
			if err != nil {
				return nil, fmt.Errorf("failed to read private key: %w", err)
			}
			sftpConfig.PrivateKey = keyData
		}

		return New(sftpConfig, WithPollInterval(time.Duration(cfg.SFTPPollSeconds)*time.Second))
	})
}
