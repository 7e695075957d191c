package cloakkit

import (
	"github.com/gobeaver/beaver-kit/config"
)

type Config struct {
	// Storage driver to use (local, memory, sftp, zip)
	Driver string `env:"CLOAKKIT_DRIVER,default:local"`

	// Local driver configuration
	LocalBasePath string `env:"CLOAKKIT_LOCAL_BASE_PATH,default:."`

	// Memory driver configuration (0 = unlimited)
	MemoryMaxSize int64 `env:"CLOAKKIT_MEMORY_MAX_SIZE,default:0"`

	// SFTP driver configuration
	SFTPHost            string `env:"CLOAKKIT_SFTP_HOST"`
	SFTPPort            int    `env:"CLOAKKIT_SFTP_PORT,default:22"`
	SFTPUsername        string `env:"CLOAKKIT_SFTP_USERNAME"`
	SFTPPassword        string `env:"CLOAKKIT_SFTP_PASSWORD"`
	SFTPPrivateKey      string `env:"CLOAKKIT_SFTP_PRIVATE_KEY"` // Path to private key file
	SFTPKnownHosts      string `env:"CLOAKKIT_SFTP_KNOWN_HOSTS"` // Path to known_hosts file
	SFTPInsecureHostKey bool   `env:"CLOAKKIT_SFTP_INSECURE_HOST_KEY,default:false"`
	SFTPBasePath        string `env:"CLOAKKIT_SFTP_BASE_PATH"`
	SFTPPollSeconds     int    `env:"CLOAKKIT_SFTP_POLL_SECONDS,default:30"`

	// Zip driver configuration
	ZipPath string `env:"CLOAKKIT_ZIP_PATH"`

	// Traversal
	MaxFiles  int  `env:"CLOAKKIT_MAX_FILES,default:10000"`
	Recursive bool `env:"CLOAKKIT_RECURSIVE,default:true"`

	// Policy file with [WHITELIST] / [BLACKLIST] sections
	PolicyFile  string `env:"CLOAKKIT_POLICY_FILE"`
	MaxPatterns int    `env:"CLOAKKIT_MAX_PATTERNS,default:100"`

	// Transform settings
	Transform string `env:"CLOAKKIT_TRANSFORM,default:xor"`
	Key       string `env:"CLOAKKIT_KEY"`
	Shift     int    `env:"CLOAKKIT_SHIFT,default:13"`

	// Integrity
	Verify   bool   `env:"CLOAKKIT_VERIFY,default:true"`
	Checksum string `env:"CLOAKKIT_CHECKSUM,default:crc32"`

	// Number of files transformed concurrently by the pipeline
	Workers int `env:"CLOAKKIT_WORKERS,default:1"`
}

// GetConfig returns config loaded from environment
func GetConfig() (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
