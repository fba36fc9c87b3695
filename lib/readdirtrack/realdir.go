package readdirtrack

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/onkernel/precache/lib/dirent"
)

// realDirs implements genuine directory streams over getdents64, keyed by
// file descriptor.
type realDirs struct {
	mu      sync.Mutex
	streams map[Handle]*realStream
}

type realStream struct {
	fd      int
	buf     []byte
	pending []dirent.Entry
}

func newRealHooks() *Hooks {
	d := &realDirs{streams: make(map[Handle]*realStream)}
	return &Hooks{
		Opendir:   d.opendir,
		Readdir:   d.readdir,
		Closedir:  d.closedir,
		Rewinddir: d.rewinddir,
		Openat: func(atfd int, path string, flags int, mode uint32) (int, error) {
			return unix.Openat(atfd, path, flags|unix.O_CLOEXEC, mode)
		},
	}
}

func (d *realDirs) opendir(name string) (Handle, error) {
	fd, err := unix.Open(name, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return 0, err
	}
	h := Handle(fd)
	d.mu.Lock()
	d.streams[h] = &realStream{fd: fd, buf: make([]byte, 32*1024)}
	d.mu.Unlock()
	return h, nil
}

func (d *realDirs) readdir(h Handle) (dirent.Entry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.streams[h]
	if !ok {
		return dirent.Entry{}, false
	}

	for len(s.pending) == 0 {
		n, err := unix.Getdents(s.fd, s.buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil || n == 0 {
			return dirent.Entry{}, false
		}
		dirent.Parse(s.buf[:n], func(e dirent.Entry) bool {
			s.pending = append(s.pending, e)
			return true
		})
	}

	e := s.pending[0]
	s.pending = s.pending[1:]
	return e, true
}

func (d *realDirs) closedir(h Handle) error {
	d.mu.Lock()
	s, ok := d.streams[h]
	delete(d.streams, h)
	d.mu.Unlock()
	if !ok {
		return unix.EBADF
	}
	return unix.Close(s.fd)
}

func (d *realDirs) rewinddir(h Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.streams[h]
	if !ok {
		return
	}
	s.pending = nil
	unix.Seek(s.fd, 0, 0)
}
