package procscan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onkernel/precache/lib/paths"
)

func setupFakeProc(t *testing.T) (*Scanner, string) {
	t.Helper()
	root := t.TempDir()
	return NewScanner(paths.New(root), nil), root
}

func writeCmdline(t *testing.T, root, pid string, argv ...string) {
	t.Helper()
	dir := filepath.Join(root, pid)
	require.NoError(t, os.MkdirAll(dir, 0755))
	var blob []byte
	for _, a := range argv {
		blob = append(blob, a...)
		blob = append(blob, 0)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cmdline"), blob, 0444))
}

func TestProcessesParsesCmdline(t *testing.T) {
	s, root := setupFakeProc(t)
	writeCmdline(t, root, "123", "encfs", "/b", "/m")
	writeCmdline(t, root, "456", "sleep", "100")

	procs, err := s.Processes()
	require.NoError(t, err)
	require.Len(t, procs, 2)

	byPid := map[int][]string{}
	for _, p := range procs {
		byPid[p.Pid] = p.Argv
	}
	assert.Equal(t, []string{"encfs", "/b", "/m"}, byPid[123])
	assert.Equal(t, []string{"sleep", "100"}, byPid[456])
}

func TestProcessesSkipsNonNumericAndEmpty(t *testing.T) {
	s, root := setupFakeProc(t)
	writeCmdline(t, root, "77", "init")

	// Non-numeric directory, numeric directory without cmdline, and a
	// kernel thread with an empty cmdline are all skipped.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sys"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "88"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "99"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "99", "cmdline"), nil, 0444))

	procs, err := s.Processes()
	require.NoError(t, err)
	require.Len(t, procs, 1)
	assert.Equal(t, 77, procs[0].Pid)
}

func TestReadProcFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob")
	content := make([]byte, 10000) // spans multiple pread chunks
	for i := range content {
		content[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(path, content, 0644))

	got, err := ReadProcFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	_, err = ReadProcFile(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestGuessDeviceLongestPrefix(t *testing.T) {
	s, root := setupFakeProc(t)
	mounts := "/dev/sda1 / ext4 rw 0 0\n" +
		"/dev/sda2 /mnt ext4 rw 0 0\n" +
		"proc /proc proc rw 0 0\n" +
		"/dev/sda3 /mnt/extra ext4 rw 0 0\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "mounts"), []byte(mounts), 0444))

	dev, err := s.GuessDevice("/mnt")
	require.NoError(t, err)
	assert.Equal(t, "/dev/sda2", dev)

	dev, err = s.GuessDevice("/mnt/extra/data")
	require.NoError(t, err)
	assert.Equal(t, "/dev/sda3", dev)

	// Virtual filesystems without a real device path never win.
	dev, err = s.GuessDevice("/proc/1")
	require.NoError(t, err)
	assert.Equal(t, "/dev/sda1", dev)
}

func TestGuessDeviceNoMatch(t *testing.T) {
	s, root := setupFakeProc(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "mounts"), []byte("proc /proc proc rw 0 0\n"), 0444))

	_, err := s.GuessDevice("/mnt")
	assert.ErrorIs(t, err, ErrNoDevice)
}
