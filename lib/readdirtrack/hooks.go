package readdirtrack

import (
	"sync"

	"github.com/onkernel/precache/lib/dirent"
)

// Handle identifies a host directory stream. The real hook table uses the
// underlying file descriptor; an interposition shim would use the host's
// DIR pointer.
type Handle = uintptr

// Hooks are the genuine implementations the tracker forwards to. The
// contract is that the table is resolved before the first intercepted call
// runs; DefaultHooks installs the syscall-backed defaults exactly once.
type Hooks struct {
	Opendir   func(name string) (Handle, error)
	Readdir   func(h Handle) (dirent.Entry, bool)
	Closedir  func(h Handle) error
	Rewinddir func(h Handle)
	Openat    func(atfd int, path string, flags int, mode uint32) (int, error)
}

var (
	defaultHooksOnce sync.Once
	defaultHooks     *Hooks
)

// DefaultHooks returns the process-wide syscall-backed hook table.
func DefaultHooks() *Hooks {
	defaultHooksOnce.Do(func() {
		defaultHooks = newRealHooks()
	})
	return defaultHooks
}
