package extents

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortSegmentsByPhysicalPos(t *testing.T) {
	segs := []Segment{
		{FileName: "f", PhysicalPos: 1000, FileOffset: 0, ExtentLength: 100},
		{FileName: "f", PhysicalPos: 200, FileOffset: 100, ExtentLength: 100},
		{FileName: "f", PhysicalPos: 700, FileOffset: 200, ExtentLength: 100},
	}
	SortSegments(segs)

	assert.Equal(t, uint64(200), segs[0].PhysicalPos)
	assert.Equal(t, uint64(700), segs[1].PhysicalPos)
	assert.Equal(t, uint64(1000), segs[2].PhysicalPos)
}

func TestSortSegmentsStable(t *testing.T) {
	segs := []Segment{
		{FileName: "a", PhysicalPos: 500},
		{FileName: "b", PhysicalPos: 500},
		{FileName: "c", PhysicalPos: 100},
	}
	SortSegments(segs)

	assert.Equal(t, "c", segs[0].FileName)
	assert.Equal(t, "a", segs[1].FileName, "equal positions keep enumeration order")
	assert.Equal(t, "b", segs[2].FileName)
}

func TestClipExtent(t *testing.T) {
	// Fully inside the file.
	length, ok := clipExtent(0, 4096, 10000)
	assert.True(t, ok)
	assert.Equal(t, uint64(4096), length)

	// Overruns the file size: clipped to the exact file length.
	length, ok = clipExtent(8192, 4096, 10000)
	assert.True(t, ok)
	assert.Equal(t, uint64(10000-8192), length)

	// Entirely past the end of the file (preallocation): dropped.
	_, ok = clipExtent(16384, 4096, 10000)
	assert.False(t, ok)

	// Ends exactly at the file size.
	length, ok = clipExtent(4096, 4096, 8192)
	assert.True(t, ok)
	assert.Equal(t, uint64(4096), length)
}

func TestBudget(t *testing.T) {
	b := NewBudget(1000)
	assert.True(t, b.Admit(400))
	assert.True(t, b.Admit(600))
	assert.Equal(t, uint64(1000), b.Used())

	assert.False(t, b.Admit(1), "the budget is a hard ceiling")
	assert.Equal(t, uint64(1000), b.Used(), "rejected files do not accumulate")
}

func TestBudgetFirstFileTooLarge(t *testing.T) {
	b := NewBudget(100)
	assert.False(t, b.Admit(101))
	assert.True(t, b.Admit(100))
}

func TestReadSegmentCountsBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data")
	content := make([]byte, 2000)
	require.NoError(t, os.WriteFile(path, content, 0644))

	r := NewReader(nil, nil)

	n, err := r.ReadSegment(Segment{FileName: path, FileOffset: 100, ExtentLength: 300})
	require.NoError(t, err)
	assert.Equal(t, uint64(300), n)
}

func TestReadSegmentShortReadIsEOF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data")
	require.NoError(t, os.WriteFile(path, make([]byte, 500), 0644))

	r := NewReader(nil, nil)

	// The extent claims more bytes than the file holds; the read stops at
	// end of file without error.
	n, err := r.ReadSegment(Segment{FileName: path, FileOffset: 200, ExtentLength: 1000})
	require.NoError(t, err)
	assert.Equal(t, uint64(300), n)
}

func TestReadSegmentMissingFile(t *testing.T) {
	r := NewReader(nil, nil)
	_, err := r.ReadSegment(Segment{FileName: filepath.Join(t.TempDir(), "nope"), ExtentLength: 10})
	assert.Error(t, err)
}

func TestEnumerateResolvedBudget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data")
	require.NoError(t, os.WriteFile(path, make([]byte, 4096), 0644))

	e := NewEnumerator(nil, nil, nil)

	_, err := e.EnumerateResolved(path, NewBudget(1000))
	assert.ErrorIs(t, err, ErrBudgetExceeded)

	b := NewBudget(1 << 20)
	_, err = e.EnumerateResolved(path, b)
	require.NoError(t, err)
	assert.Equal(t, uint64(4096), b.Used())
}

func TestEnumerateMissingFile(t *testing.T) {
	e := NewEnumerator(nil, nil, nil)
	_, err := e.Enumerate(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

// Extent layout depends on the filesystem backing the test directory, and
// tmpfs has no FIEMAP support at all, so only the universal invariant is
// checked: no emitted segment extends past the file size.
func TestEnumerateSegmentsWithinFileSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data")
	require.NoError(t, os.WriteFile(path, make([]byte, 12345), 0644))

	e := NewEnumerator(nil, nil, nil)
	segs, err := e.Enumerate(path)
	require.NoError(t, err)
	for _, seg := range segs {
		assert.LessOrEqual(t, seg.FileOffset+seg.ExtentLength, uint64(12345))
		assert.Equal(t, path, seg.FileName)
	}
}

type suffixResolver struct{ calls []string }

func (r *suffixResolver) Resolve(path string) string {
	r.calls = append(r.calls, path)
	return path + ".enc"
}

func TestEnumerateUsesResolver(t *testing.T) {
	dir := t.TempDir()
	backing := filepath.Join(dir, "file.enc")
	require.NoError(t, os.WriteFile(backing, make([]byte, 100), 0644))

	res := &suffixResolver{}
	e := NewEnumerator(res, nil, nil)

	segs, err := e.Enumerate(filepath.Join(dir, "file"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "file")}, res.calls)
	for _, seg := range segs {
		assert.Equal(t, backing, seg.FileName)
	}
}
