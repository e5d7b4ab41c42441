// Package fsutil is the narrow filesystem surface the combiner touches:
// listing detector run directories, reading series, and publishing
// artifacts by rename. OSFileSystem backs the CLI and MemoryFileSystem
// backs the tests.
package fsutil

import (
	"io/fs"
	"os"
)

// FileSystem is implemented by OSFileSystem and MemoryFileSystem.
type FileSystem interface {
	Open(name string) (fs.File, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error

	// ReadDir returns the directory's children sorted by name.
	ReadDir(name string) ([]fs.DirEntry, error)
	Stat(name string) (fs.FileInfo, error)
	MkdirAll(path string, perm os.FileMode) error

	// Rename replaces newpath if present. Artifact publication relies on
	// this being atomic.
	Rename(oldpath, newpath string) error

	// Link makes newname another name for the file oldname. It fails with
	// an error matching fs.ErrExist if newname is already present, which
	// makes it a create-exclusive publish.
	Link(oldname, newname string) error
	Remove(name string) error

	// Exists is true for both files and directories.
	Exists(name string) bool
}

// OSFileSystem forwards to the os package.
type OSFileSystem struct{}

var _ FileSystem = OSFileSystem{}

func (OSFileSystem) Open(name string) (fs.File, error)       { return os.Open(name) }
func (OSFileSystem) ReadFile(name string) ([]byte, error)    { return os.ReadFile(name) }
func (OSFileSystem) ReadDir(n string) ([]fs.DirEntry, error) { return os.ReadDir(n) }
func (OSFileSystem) Stat(name string) (fs.FileInfo, error)   { return os.Stat(name) }
func (OSFileSystem) Rename(from, to string) error            { return os.Rename(from, to) }
func (OSFileSystem) Link(from, to string) error              { return os.Link(from, to) }
func (OSFileSystem) Remove(name string) error                { return os.Remove(name) }

func (OSFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

func (OSFileSystem) MkdirAll(dir string, perm os.FileMode) error {
	return os.MkdirAll(dir, perm)
}

func (OSFileSystem) Exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}
