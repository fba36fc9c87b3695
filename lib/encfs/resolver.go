// Package encfs maps paths on an encrypting FUSE overlay back to the
// ciphertext files on the backing filesystem. The overlay daemon passes
// inode numbers through, so a path is translated by matching inodes along
// the directory tree rather than by name. No cooperation from the daemon is
// required: mounts are discovered from the process table, and inode
// equivalences are learned from directory scans and cached.
package encfs

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sys/unix"

	"github.com/onkernel/precache/lib/procscan"
)

// daemonName is argv[0] of the overlay daemon whose mounts are recognized.
const daemonName = "encfs"

// Mount is one active overlay mount, keyed by its front (overlay) root.
// Both roots are stored with trailing slashes stripped.
type Mount struct {
	Front string
	Back  string
	Pid   int

	pendingRemoval bool
}

// ProcessLister supplies the process table for mount discovery.
type ProcessLister interface {
	Processes() ([]procscan.Process, error)
}

// Resolver owns the mount table and the inode cache.
//
// Resolver performs no locking of its own. The interposer holds one
// process-wide mutex across every intercepted call; the standalone CLIs are
// single-threaded.
type Resolver struct {
	fs      fsOps
	procs   ProcessLister
	clock   func() time.Time
	log     *slog.Logger
	metrics *Metrics

	mounts      map[string]*Mount
	inodes      map[uint64]string
	lastRefresh time.Time
}

// NewResolver creates a Resolver reading the real filesystem.
// A nil logger disables logging; a nil meter disables metrics.
func NewResolver(procs ProcessLister, log *slog.Logger, meter metric.Meter) *Resolver {
	r := newResolver(realFS{}, procs, time.Now, log)
	if meter != nil {
		if m, err := newResolverMetrics(meter); err == nil {
			r.metrics = m
		}
	}
	return r
}

func newResolver(fs fsOps, procs ProcessLister, clock func() time.Time, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Resolver{
		fs:     fs,
		procs:  procs,
		clock:  clock,
		log:    log,
		mounts: make(map[string]*Mount),
		inodes: make(map[uint64]string),
	}
}

// Resolve translates path to its backing-filesystem equivalent. When the
// path is not on a recognized overlay, is not a regular file, or the
// translation falls through, the input path is returned unchanged.
func (r *Resolver) Resolve(path string) string {
	fsType, err := r.fs.FilesystemType(path)
	if err != nil || fsType != unix.FUSE_SUPER_MAGIC {
		return path
	}

	for _, m := range r.mounts {
		if !pathWithin(path, m.Front) {
			continue
		}

		ino, mode, err := r.fs.Lstat(path)
		if err != nil || mode&unix.S_IFMT != unix.S_IFREG {
			// Only regular files are translated.
			break
		}

		if cached, ok := r.inodes[ino]; ok {
			if r.metrics != nil {
				r.metrics.cacheHits.Add(context.Background(), 1)
			}
			r.log.Debug("resolved from inode cache", "path", path, "backing", cached)
			return cached
		}
		if r.metrics != nil {
			r.metrics.cacheMisses.Add(context.Background(), 1)
		}

		trace, ok := r.traceInodes(path, m.Front)
		if !ok {
			break
		}
		if resolved := r.followTrace(trace, m.Back); resolved != "" {
			r.log.Debug("resolved via inode trace", "path", path, "backing", resolved)
			return resolved
		}
		break
	}
	return path
}

// Cleanup destroys the mount table and the inode cache.
func (r *Resolver) Cleanup() {
	r.mounts = make(map[string]*Mount)
	r.inodes = make(map[uint64]string)
}

// Mounts returns a snapshot of the mount table, sorted by front root.
func (r *Resolver) Mounts() []Mount {
	out := make([]Mount, 0, len(r.mounts))
	for _, m := range r.mounts {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Front < out[j].Front })
	return out
}

// pathWithin reports whether path equals root or lies under it, with the
// boundary falling on a path separator rather than a mere character prefix.
func pathWithin(path, root string) bool {
	if !strings.HasPrefix(path, root) {
		return false
	}
	return len(path) == len(root) || path[len(root)] == '/'
}

func joinDir(dir, name string) string {
	if strings.HasSuffix(dir, "/") {
		return dir + name
	}
	return dir + "/" + name
}
