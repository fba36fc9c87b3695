// Package paths provides centralized path construction for the proc
// pseudo-filesystem. All process-table and mount-table inspection goes
// through here so that tests can point the scanners at a fake tree.
//
// Layout:
//
//	{procRoot}/
//	  {pid}/cmdline
//	  mounts
package paths

import "path/filepath"

// Paths provides typed path construction for a proc root.
type Paths struct {
	procRoot string
}

// New creates a Paths instance rooted at procRoot.
func New(procRoot string) *Paths {
	return &Paths{procRoot: procRoot}
}

// Default returns Paths for the kernel's /proc mount.
func Default() *Paths {
	return New("/proc")
}

// Root returns the proc root directory.
func (p *Paths) Root() string {
	return p.procRoot
}

// PidCmdline returns the path to a process's NUL-separated command line.
func (p *Paths) PidCmdline(pid string) string {
	return filepath.Join(p.procRoot, pid, "cmdline")
}

// Mounts returns the path to the mount table.
func (p *Paths) Mounts() string {
	return filepath.Join(p.procRoot, "mounts")
}
