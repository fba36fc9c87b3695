package encfs

import (
	"golang.org/x/sys/unix"

	"github.com/onkernel/precache/lib/dirent"
)

// fsOps is the filesystem surface the resolver touches. Carved out so tests
// can model an overlay whose directory inodes coincide with the backing
// tree, which a real test filesystem cannot provide.
type fsOps interface {
	// FilesystemType returns the statfs f_type magic for path.
	FilesystemType(path string) (int64, error)
	// Lstat returns the inode and mode of path without following symlinks.
	Lstat(path string) (ino uint64, mode uint32, err error)
	// ListDir returns every directory entry of path.
	ListDir(path string) ([]dirent.Entry, error)
}

type realFS struct{}

func (realFS) FilesystemType(path string) (int64, error) {
	var sfs unix.Statfs_t
	if err := unix.Statfs(path, &sfs); err != nil {
		return 0, err
	}
	return int64(sfs.Type), nil
}

func (realFS) Lstat(path string) (uint64, uint32, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return 0, 0, err
	}
	return st.Ino, st.Mode, nil
}

func (realFS) ListDir(path string) ([]dirent.Entry, error) {
	return dirent.List(path)
}
