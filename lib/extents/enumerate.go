package extents

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sys/unix"
)

// PathResolver rewrites a path to the backing file that actually owns
// physical extents. A nil resolver leaves paths untouched.
type PathResolver interface {
	Resolve(path string) string
}

// Enumerator maps files to extent segments.
type Enumerator struct {
	resolver PathResolver
	log      *slog.Logger
	metrics  *Metrics
	buf      *fiemapBuf
}

// NewEnumerator creates an Enumerator. A nil logger disables logging; a nil
// meter disables metrics.
func NewEnumerator(resolver PathResolver, log *slog.Logger, meter metric.Meter) *Enumerator {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	e := &Enumerator{
		resolver: resolver,
		log:      log,
		buf:      &fiemapBuf{},
	}
	if meter != nil {
		if m, err := newExtentMetrics(meter); err == nil {
			e.metrics = m
		}
	}
	return e
}

// Enumerate resolves path to its backing file and returns one Segment per
// physical extent.
func (e *Enumerator) Enumerate(path string) ([]Segment, error) {
	resolved := path
	if e.resolver != nil {
		resolved = e.resolver.Resolve(path)
	}
	return e.EnumerateResolved(resolved, nil)
}

// EnumerateResolved enumerates an already-resolved path. A non-nil budget
// must admit the file's size before any extent is mapped;
// ErrBudgetExceeded is returned when it does not.
//
// Filesystems without FIEMAP support terminate the mapping loop early and
// silently, yielding whatever partial list was produced.
func (e *Enumerator) EnumerateResolved(path string, budget *Budget) ([]Segment, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, err
	}
	size := uint64(st.Size)

	if budget != nil && !budget.Admit(size) {
		return nil, ErrBudgetExceeded
	}

	var segs []Segment
	pos := uint64(0)
	lastExtentSeen := false
	for pos < size && !lastExtentSeen {
		batch, err := e.buf.query(fd, pos)
		if err != nil || len(batch) == 0 {
			break
		}
		for _, ext := range batch {
			pos = ext.Logical + ext.Length
			if ext.Flags&unix.FIEMAP_EXTENT_LAST != 0 {
				lastExtentSeen = true
			}

			length, ok := clipExtent(ext.Logical, ext.Length, size)
			if !ok {
				continue
			}
			segs = append(segs, Segment{
				FileName:     path,
				PhysicalPos:  ext.Physical,
				FileOffset:   ext.Logical,
				ExtentLength: length,
			})
		}
	}

	if e.metrics != nil {
		e.metrics.segmentsEnumerated.Add(context.Background(), int64(len(segs)))
	}
	e.log.Debug("enumerated extents", "path", path, "segments", len(segs), "size", size)
	return segs, nil
}

// clipExtent reduces an extent length so the segment never extends past the
// file size. Extents lying entirely beyond the end of the file (preallocated
// space) are dropped.
func clipExtent(logical, length, size uint64) (uint64, bool) {
	if logical >= size {
		return 0, false
	}
	if logical+length > size {
		return size - logical, true
	}
	return length, true
}
