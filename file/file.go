package file

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/mensylisir/xmwave/common"
)

// PathExists checks if a path exists.
// A "not exist" error yields (false, nil); any other stat error is returned.
func PathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// IsDir checks if the given path is a directory.
func IsDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

// EnsureFile creates path and its parent directories when missing, leaving existing files untouched.
func EnsureFile(path string, perm os.FileMode) error {
	exists, err := PathExists(path)
	if err != nil {
		return errors.Wrapf(err, "failed to stat %s", path)
	}
	if exists {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), common.FileMode0700); err != nil {
		return errors.Wrapf(err, "failed to create parent directory of %s", path)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, perm)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	return f.Close()
}

// AppendLine appends line plus a newline to path.
func AppendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, common.FileMode0600)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", path)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return f.Close()
}
