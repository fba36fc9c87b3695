// Package readdirtrack watches a host's interleaved directory-read and
// file-open calls and decides whether the host is iterating through the
// files of a directory. When it is, the not-yet-surfaced tail of the
// listing is prefetched through the extent engine before the host asks for
// it.
package readdirtrack

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sys/unix"

	"github.com/onkernel/precache/lib/dirent"
	"github.com/onkernel/precache/lib/extents"
)

// Resolver is the overlay-translation surface the tracker needs.
type Resolver interface {
	Resolve(path string) string
	RefreshMounts(contextPath string) error
	Cleanup()
}

// Engine enumerates and reads extent segments.
type Engine interface {
	EnumerateResolved(path string, b *extents.Budget) ([]extents.Segment, error)
	ReadSegment(seg extents.Segment) (uint64, error)
}

// DiskEngine bundles the extent enumerator and reader into the Engine the
// tracker drives in production.
type DiskEngine struct {
	Enumerator *extents.Enumerator
	Reader     *extents.Reader
}

func (d DiskEngine) EnumerateResolved(path string, b *extents.Budget) ([]extents.Segment, error) {
	return d.Enumerator.EnumerateResolved(path, b)
}

func (d DiskEngine) ReadSegment(seg extents.Segment) (uint64, error) {
	return d.Reader.ReadSegment(seg)
}

// Config holds the tracker's precache policy.
type Config struct {
	// Sync flushes dirty pages system-wide before each precache burst.
	Sync bool
	// CacheLimit is the per-burst byte budget.
	CacheLimit uint64
}

// dirState is the per-handle directory state.
type dirState struct {
	handle  Handle
	dirname string
	// entries is the whole listing, materialized at open time. The host
	// sees a consistent snapshot and the tracker can preview the tail.
	entries []dirent.Entry
	// cursor indexes the next entry to surface; it never passes the end.
	cursor int
	// cachedFilesCount suppresses re-prefetching while already-prefetched
	// entries are surfaced.
	cachedFilesCount int
	fsm              state
}

// Tracker serves every intercepted call. One process-wide mutex guards the
// handle table, every FSM state, and (through call nesting) the resolver's
// tables.
type Tracker struct {
	mu       sync.Mutex
	hooks    *Hooks
	resolver Resolver
	engine   Engine
	cfg      Config
	log      *slog.Logger
	metrics  *Metrics
	syncFn   func()

	handles map[Handle]*dirState
	// order preserves handle registration order; when several handles track
	// the same directory only the first registered one advances on opens.
	order []Handle
}

// New creates a Tracker. A nil logger disables logging; a nil meter
// disables metrics.
func New(hooks *Hooks, resolver Resolver, engine Engine, cfg Config, log *slog.Logger, meter metric.Meter) *Tracker {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	t := &Tracker{
		hooks:    hooks,
		resolver: resolver,
		engine:   engine,
		cfg:      cfg,
		log:      log,
		syncFn:   func() { unix.Sync() },
		handles:  make(map[Handle]*dirState),
	}
	if meter != nil {
		if m, err := newTrackerMetrics(meter); err == nil {
			t.metrics = m
		}
	}
	return t
}

// Opendir opens the real directory stream and starts tracking it, eagerly
// materializing the whole listing.
func (t *Tracker) Opendir(name string) (Handle, error) {
	h, err := t.hooks.Opendir(name)
	if err != nil {
		return h, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.resolver.RefreshMounts(name)

	if _, ok := t.handles[h]; ok {
		// A stale record for a handle the host closed behind our back.
		t.removeLocked(h)
	}

	ds := &dirState{handle: h, dirname: name, fsm: stateStart}
	for {
		e, ok := t.hooks.Readdir(h)
		if !ok {
			break
		}
		ds.entries = append(ds.entries, e)
	}
	t.handles[h] = ds
	t.order = append(t.order, h)
	t.log.Debug("tracking directory", "dir", name, "entries", len(ds.entries))
	return h, nil
}

// Readdir surfaces the next materialized entry and advances the detector.
// Untracked handles are forwarded to the genuine implementation.
func (t *Tracker) Readdir(h Handle) (dirent.Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ds, ok := t.handles[h]
	if !ok {
		return t.hooks.Readdir(h)
	}

	if ds.cursor >= len(ds.entries) {
		return dirent.Entry{}, false
	}
	e := ds.entries[ds.cursor]

	if !e.IsDot() {
		if ds.fsm == stateDoPrecaching && ds.cachedFilesCount == 0 {
			t.precacheLocked(ds)
		}
		if ds.cachedFilesCount > 0 {
			ds.cachedFilesCount--
		}
		ds.fsm = ds.fsm.onReaddir()
	}

	ds.cursor++
	return e, true
}

// Closedir forwards to the genuine close and destroys the handle's state.
func (t *Tracker) Closedir(h Handle) error {
	err := t.hooks.Closedir(h)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(h)
	return err
}

// Rewinddir resets the detector and moves the cursor back to the start of
// the materialized snapshot. The listing is not re-read and the
// prefetch-suppression counter keeps its value.
func (t *Tracker) Rewinddir(h Handle) {
	t.hooks.Rewinddir(h)

	t.mu.Lock()
	defer t.mu.Unlock()
	if ds, ok := t.handles[h]; ok {
		ds.fsm = stateStart
		ds.cursor = 0
	}
}

// Open forwards to the genuine open and feeds the detector.
func (t *Tracker) Open(path string, flags int, mode uint32) (int, error) {
	return t.Openat(unix.AT_FDCWD, path, flags, mode)
}

// Openat forwards to the genuine openat and feeds the detector. Only
// AT_FDCWD opens are observed; the host sees the genuine return value
// either way.
func (t *Tracker) Openat(atfd int, path string, flags int, mode uint32) (int, error) {
	fd, err := t.hooks.Openat(atfd, path, flags, mode)
	t.handleOpen(atfd, path)
	return fd, err
}

// Shutdown tears down all tracker and resolver state. Called from the
// library's unload hook.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handles = make(map[Handle]*dirState)
	t.order = nil
	t.resolver.Cleanup()
}

func (t *Tracker) handleOpen(atfd int, path string) {
	if atfd != unix.AT_FDCWD {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, h := range t.order {
		ds := t.handles[h]
		if !matchingOpen(ds.dirname, path) {
			continue
		}
		ds.fsm = ds.fsm.onOpen()
		// Several simultaneously open handles may track this directory;
		// all but the first registered one are ignored.
		break
	}
}

// matchingOpen reports whether path counts as an open inside dirname: it
// must start with the directory name, be at least two bytes longer, and
// contain no separator after the byte that follows the directory name. That
// byte itself is not checked, so "/dxfile" matches "/d".
func matchingOpen(dirname, path string) bool {
	return len(path) > len(dirname)+1 &&
		strings.HasPrefix(path, dirname) &&
		!strings.Contains(path[len(dirname)+1:], "/")
}

func (t *Tracker) removeLocked(h Handle) {
	if _, ok := t.handles[h]; !ok {
		return
	}
	delete(t.handles, h)
	for i, o := range t.order {
		if o == h {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// precacheLocked prefetches the not-yet-surfaced tail of the listing: every
// remaining non-dot entry is resolved, its extents enumerated under the
// byte budget, and the combined segment list is read in physical order.
func (t *Tracker) precacheLocked(ds *dirState) {
	if t.cfg.Sync {
		t.syncFn()
	}

	budget := extents.NewBudget(t.cfg.CacheLimit)
	var segs []extents.Segment
	count := 0
	for _, e := range ds.entries[ds.cursor:] {
		if e.IsDot() {
			count++
			continue
		}

		path := ds.dirname + "/" + e.Name
		resolved := t.resolver.Resolve(path)
		fileSegs, err := t.engine.EnumerateResolved(resolved, budget)
		if err != nil {
			if errors.Is(err, extents.ErrBudgetExceeded) {
				break
			}
			// Unreadable entries are skipped but still surfaced.
			count++
			continue
		}
		segs = append(segs, fileSegs...)
		count++
	}
	ds.cachedFilesCount = count

	extents.SortSegments(segs)
	for _, seg := range segs {
		t.engine.ReadSegment(seg)
	}

	if t.metrics != nil {
		t.metrics.bursts.Add(context.Background(), 1)
		t.metrics.filesPrefetched.Add(context.Background(), int64(count))
	}
	t.log.Debug("precache burst complete", "dir", ds.dirname, "files", count, "segments", len(segs), "bytes_admitted", budget.Used())
}
