package ports

import (
	"io"
	"os"
)

// FileHandle is an open file that can be written and closed.
type FileHandle interface {
	io.WriteCloser
	Name() string
}

// FileSystem abstracts the filesystem operations recordings need.
type FileSystem interface {
	MkdirAll(path string, perm os.FileMode) error
	OpenFile(name string, flag int, perm os.FileMode) (FileHandle, error)
}
