// Package dirent reads directory entries straight from the getdents64
// syscall, preserving the inode numbers that the portable readdir wrappers
// hide. Overlay resolution matches directory entries by inode, so the raw
// records are required.
package dirent

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Entry is a single getdents64 record.
type Entry struct {
	Ino  uint64
	Type uint8
	Name string
}

// IsDot reports whether the entry is "." or "..".
func (e Entry) IsDot() bool {
	return e.Name == "." || e.Name == ".."
}

const readBufSize = 32 * 1024

var nameOffset = int(unsafe.Offsetof(unix.Dirent{}.Name))

// Walk opens path as a directory and invokes fn for every entry, in the
// order the kernel returns them. Walking stops early when fn returns false.
func Walk(path string, fn func(Entry) bool) error {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return err
	}
	defer unix.Close(fd)

	buf := make([]byte, readBufSize)
	for {
		n, err := unix.Getdents(fd, buf)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		if n == 0 {
			return nil
		}

		if !Parse(buf[:n], fn) {
			return nil
		}
	}
}

// Parse decodes a getdents64 result buffer, invoking fn per record. Returns
// false when fn stopped the scan.
func Parse(buf []byte, fn func(Entry) bool) bool {
	pos := 0
	for pos < len(buf) {
		de := (*unix.Dirent)(unsafe.Pointer(&buf[pos]))
		if !fn(Entry{
			Ino:  de.Ino,
			Type: de.Type,
			Name: entryName(buf[pos : pos+int(de.Reclen)]),
		}) {
			return false
		}
		pos += int(de.Reclen)
	}
	return true
}

// List collects every entry of path into a slice.
func List(path string) ([]Entry, error) {
	var entries []Entry
	err := Walk(path, func(e Entry) bool {
		entries = append(entries, e)
		return true
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func entryName(rec []byte) string {
	name := rec[nameOffset:]
	for i, b := range name {
		if b == 0 {
			return string(name[:i])
		}
	}
	return string(name)
}
