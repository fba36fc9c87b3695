package encfs

import (
	"context"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sys/unix"
)

// ForceRefreshMounts unconditionally rescans the process table for overlay
// mounts. Called once at program start.
func (r *Resolver) ForceRefreshMounts() error {
	return r.refreshMounts()
}

// RefreshMounts is the throttled variant: at most one rescan per second,
// and only when contextPath is on a FUSE filesystem. Callers pass whatever
// path they are about to work with, which keeps refresh cost proportional
// to actual overlay usage.
func (r *Resolver) RefreshMounts(contextPath string) error {
	now := r.clock()
	if now.Sub(r.lastRefresh) < time.Second {
		return nil
	}
	r.lastRefresh = now

	fsType, err := r.fs.FilesystemType(contextPath)
	if err != nil {
		// contextPath is expected to be a valid path.
		return err
	}
	if fsType != unix.FUSE_SUPER_MAGIC {
		return nil
	}
	return r.refreshMounts()
}

func (r *Resolver) refreshMounts() error {
	for _, m := range r.mounts {
		m.pendingRemoval = true
	}

	procs, err := r.procs.Processes()
	if err != nil {
		return err
	}

	for _, p := range procs {
		if len(p.Argv) == 0 || p.Argv[0] != daemonName {
			continue
		}
		// The daemon is invoked as "encfs [options] backing-dir
		// overlay-dir"; the first two non-option arguments are the roots.
		dirs := lo.Filter(p.Argv[1:], func(arg string, _ int) bool {
			return !strings.HasPrefix(arg, "-")
		})
		if len(dirs) < 2 {
			continue
		}
		back := strings.TrimRight(dirs[0], "/")
		front := strings.TrimRight(dirs[1], "/")
		r.recordMount(front, back, p.Pid)
	}

	for front, m := range r.mounts {
		if m.pendingRemoval {
			r.log.Debug("overlay mount vanished", "front", m.Front, "back", m.Back)
			r.invalidateBacking(m.Back)
			delete(r.mounts, front)
		}
	}

	if r.metrics != nil {
		r.metrics.refreshes.Add(context.Background(), 1)
	}
	return nil
}

func (r *Resolver) recordMount(front, back string, pid int) {
	if m, ok := r.mounts[front]; ok {
		if m.Pid == pid {
			// Same mount as before.
			m.pendingRemoval = false
			return
		}
		// The overlay root was remounted by another daemon instance; every
		// inode learned under the old backing root is stale.
		r.invalidateBacking(m.Back)
		delete(r.mounts, front)
	}

	r.log.Debug("overlay mount discovered", "front", front, "back", back, "pid", pid)
	r.mounts[front] = &Mount{Front: front, Back: back, Pid: pid}
}

// invalidateBacking drops every inode-cache entry whose path is back or
// lies under it.
func (r *Resolver) invalidateBacking(back string) {
	for ino, path := range r.inodes {
		if pathWithin(path, back) {
			delete(r.inodes, ino)
		}
	}
}
