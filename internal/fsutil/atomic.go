package fsutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// WriteFileAtomic writes data to a hidden temporary file beside name and
// renames it into place, so readers observe either the old file, no file, or
// the complete new contents. The temporary file is removed on failure.
func WriteFileAtomic(fsys FileSystem, name string, data []byte, perm os.FileMode) error {
	tmp, err := writeTemp(fsys, name, data, perm)
	if err != nil {
		return err
	}
	if err := fsys.Rename(tmp, name); err != nil {
		_ = fsys.Remove(tmp)
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

// WriteFileExclusive is WriteFileAtomic without replacement: the complete file
// is linked into place only if name does not exist yet. A present name yields
// an error matching fs.ErrExist and is left untouched, even when another
// process publishes it concurrently.
func WriteFileExclusive(fsys FileSystem, name string, data []byte, perm os.FileMode) error {
	tmp, err := writeTemp(fsys, name, data, perm)
	if err != nil {
		return err
	}
	defer func() { _ = fsys.Remove(tmp) }()
	if err := fsys.Link(tmp, name); err != nil {
		return fmt.Errorf("publish %s: %w", name, err)
	}
	return nil
}

func writeTemp(fsys FileSystem, name string, data []byte, perm os.FileMode) (string, error) {
	tmp := filepath.Join(filepath.Dir(name), fmt.Sprintf(".%s.%s.tmp", filepath.Base(name), uuid.NewString()))
	if err := fsys.WriteFile(tmp, data, perm); err != nil {
		_ = fsys.Remove(tmp)
		return "", fmt.Errorf("write %s: %w", tmp, err)
	}
	return tmp, nil
}
