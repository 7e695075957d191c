//go:build unix

package local

import (
	"os"
	"syscall"

	"github.com/gobeaver/cloakkit"
)

// fileID extracts the device and inode numbers on Unix systems.
func fileID(info os.FileInfo) cloakkit.FileID {
	sys := info.Sys()
	if sys == nil {
		return cloakkit.FileID{}
	}

	stat, ok := sys.(*syscall.Stat_t)
	if !ok {
		return cloakkit.FileID{}
	}

	return cloakkit.FileID{
		Device: uint64(stat.Dev),
		Inode:  uint64(stat.Ino),
	}
}
