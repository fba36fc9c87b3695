package extents

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// extentBatch sizes the ioctl buffer; files with more extents are mapped in
// several round-trips.
const extentBatch = 1000

// fiemapHdr mirrors struct fiemap from linux/fiemap.h.
type fiemapHdr struct {
	Start         uint64
	Length        uint64
	Flags         uint32
	MappedExtents uint32
	ExtentCount   uint32
	Reserved      uint32
}

// fiemapExtent mirrors struct fiemap_extent from linux/fiemap.h.
type fiemapExtent struct {
	Logical    uint64
	Physical   uint64
	Length     uint64
	Reserved64 [2]uint64
	Flags      uint32
	Reserved   [3]uint32
}

// fiemapBuf is one request buffer, reused across files.
type fiemapBuf struct {
	hdr     fiemapHdr
	extents [extentBatch]fiemapExtent
}

// query asks the kernel for the extents mapping the file range starting at
// start. The returned slice aliases the buffer and is only valid until the
// next query.
func (b *fiemapBuf) query(fd int, start uint64) ([]fiemapExtent, error) {
	b.hdr = fiemapHdr{
		Start:       start,
		Length:      unix.FIEMAP_MAX_OFFSET,
		ExtentCount: extentBatch,
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(unix.FS_IOC_FIEMAP), uintptr(unsafe.Pointer(b)))
	if errno != 0 {
		return nil, errno
	}
	return b.extents[:b.hdr.MappedExtents], nil
}
