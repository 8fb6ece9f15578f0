// Package realfs implements the FileSystem port with the os package.
package realfs

import (
	"os"

	"github.com/acolita/termgate/internal/ports"
)

// FS implements ports.FileSystem.
type FS struct{}

// New creates a new FS.
func New() *FS {
	return &FS{}
}

// MkdirAll creates a directory and any missing parents.
func (FS) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// OpenFile opens a file with the given flags and permissions.
func (FS) OpenFile(name string, flag int, perm os.FileMode) (ports.FileHandle, error) {
	return os.OpenFile(name, flag, perm)
}
