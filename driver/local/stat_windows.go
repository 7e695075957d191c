//go:build windows

package local

import (
	"os"

	"github.com/gobeaver/cloakkit"
)

// fileID returns a zero ID on Windows. Win32FileAttributeData carries no
// volume serial or file index.
func fileID(info os.FileInfo) cloakkit.FileID {
	return cloakkit.FileID{}
}
