package extents

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sys/unix"
)

// readBufferSize is the single reusable read buffer. Large prefetches must
// not multiply memory use.
const readBufferSize = 512 * 1024

// Reader pulls segment bytes through the page cache.
type Reader struct {
	buf     []byte
	log     *slog.Logger
	metrics *Metrics
}

// NewReader creates a Reader. A nil logger disables logging; a nil meter
// disables metrics.
func NewReader(log *slog.Logger, meter metric.Meter) *Reader {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	r := &Reader{
		buf: make([]byte, readBufferSize),
		log: log,
	}
	if meter != nil {
		if m, err := newExtentMetrics(meter); err == nil {
			r.metrics = m
		}
	}
	return r
}

// ReadSegment opens the segment's file and reads the extent at its logical
// offset. Returns the bytes actually read; an I/O error mid-extent counts
// as end of extent.
func (r *Reader) ReadSegment(seg Segment) (uint64, error) {
	fd, err := unix.Open(seg.FileName, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return 0, err
	}
	defer unix.Close(fd)
	return r.readAt(fd, seg.FileOffset, seg.ExtentLength), nil
}

// ReadSegmentRaw reads the segment from an already-open block device at the
// segment's physical position.
func (r *Reader) ReadSegmentRaw(devFd int, seg Segment) uint64 {
	return r.readAt(devFd, seg.PhysicalPos, seg.ExtentLength)
}

func (r *Reader) readAt(fd int, offset, length uint64) uint64 {
	var done uint64
	toRead := length
	ofs := int64(offset)
	for toRead > 0 {
		chunk := toRead
		if chunk > uint64(len(r.buf)) {
			chunk = uint64(len(r.buf))
		}
		n, err := unix.Pread(fd, r.buf[:chunk], ofs)
		if err == unix.EINTR {
			continue
		}
		if err != nil || n <= 0 {
			// Either an error or an EOF.
			break
		}
		toRead -= uint64(n)
		ofs += int64(n)
		done += uint64(n)
	}

	if r.metrics != nil {
		r.metrics.bytesRead.Add(context.Background(), int64(done))
	}
	return done
}
