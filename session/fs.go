package session

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/pkg/sftp"
)

// FS is a thin path-oriented view of the session's SFTP client. Errors keep the
// io/fs sentinels reachable through errors.Is.
type FS struct {
	client *sftp.Client
}

// Metadata stats p, following symlinks.
func (f *FS) Metadata(p string) (os.FileInfo, error) {
	fi, err := f.client.Stat(p)
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", p)
	}
	return fi, nil
}

// SymlinkMetadata stats p without following a final symlink.
func (f *FS) SymlinkMetadata(p string) (os.FileInfo, error) {
	fi, err := f.client.Lstat(p)
	if err != nil {
		return nil, errors.Wrapf(err, "lstat %s", p)
	}
	return fi, nil
}

// Read returns the whole content of p.
func (f *FS) Read(p string) ([]byte, error) {
	r, err := f.client.Open(p)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", p)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", p)
	}
	return data, nil
}

// Write replaces the content of p, creating it when missing.
func (f *FS) Write(p string, data []byte) error {
	w, err := f.client.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return errors.Wrapf(err, "open %s", p)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return errors.Wrapf(err, "write %s", p)
	}
	return errors.Wrapf(w.Close(), "close %s", p)
}

// Create truncates or creates p and returns it open for writing.
func (f *FS) Create(p string) (*sftp.File, error) {
	file, err := f.client.Create(p)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", p)
	}
	return file, nil
}

func (f *FS) CreateDir(p string) error {
	return errors.Wrapf(f.client.Mkdir(p), "mkdir %s", p)
}

// CreateDirAll creates p and any missing parents.
func (f *FS) CreateDirAll(p string) error {
	return errors.Wrapf(f.client.MkdirAll(p), "mkdir -p %s", p)
}

func (f *FS) RemoveFile(p string) error {
	return errors.Wrapf(f.client.Remove(p), "remove %s", p)
}

// RemoveDir removes the empty directory p.
func (f *FS) RemoveDir(p string) error {
	return errors.Wrapf(f.client.RemoveDirectory(p), "rmdir %s", p)
}

func (f *FS) ReadDir(p string) ([]os.FileInfo, error) {
	entries, err := f.client.ReadDir(p)
	if err != nil {
		return nil, errors.Wrapf(err, "readdir %s", p)
	}
	return entries, nil
}

func (f *FS) Rename(from, to string) error {
	return errors.Wrapf(f.client.Rename(from, to), "rename %s to %s", from, to)
}

func (f *FS) Chmod(p string, mode os.FileMode) error {
	return errors.Wrapf(f.client.Chmod(p, mode), "chmod %s", p)
}

func (f *FS) Chown(p string, uid, gid int) error {
	return errors.Wrapf(f.client.Chown(p, uid, gid), "chown %s", p)
}

// Symlink creates link pointing at target.
func (f *FS) Symlink(target, link string) error {
	return errors.Wrapf(f.client.Symlink(target, link), "symlink %s", link)
}

func (f *FS) ReadLink(p string) (string, error) {
	target, err := f.client.ReadLink(p)
	if err != nil {
		return "", errors.Wrapf(err, "readlink %s", p)
	}
	return target, nil
}
