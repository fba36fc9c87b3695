// Package procscan enumerates the process table and the mount table through
// the proc pseudo-filesystem. proc files report a zero size, so reads are
// done with a pread loop rather than a size-probing read.
package procscan

import (
	"bytes"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/onkernel/precache/lib/dirent"
	"github.com/onkernel/precache/lib/paths"
)

// Process is one numeric process-table entry and its parsed command line.
type Process struct {
	Pid  int
	Argv []string
}

// Scanner reads processes and mounts from a proc root.
type Scanner struct {
	paths *paths.Paths
	log   *slog.Logger
}

// NewScanner creates a Scanner. A nil logger disables logging.
func NewScanner(p *paths.Paths, log *slog.Logger) *Scanner {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Scanner{paths: p, log: log}
}

// Processes walks the process table and returns every process whose command
// line could be read. Processes that exit mid-scan are skipped.
func (s *Scanner) Processes() ([]Process, error) {
	var procs []Process
	err := dirent.Walk(s.paths.Root(), func(e dirent.Entry) bool {
		if e.Type != unix.DT_DIR || !isNumeric(e.Name) {
			return true
		}
		pid, err := strconv.Atoi(e.Name)
		if err != nil {
			return true
		}
		blob, err := ReadProcFile(s.paths.PidCmdline(e.Name))
		if err != nil {
			// The process exited between the directory scan and the
			// cmdline read.
			return true
		}
		argv := splitCmdline(blob)
		if len(argv) == 0 {
			return true
		}
		procs = append(procs, Process{Pid: pid, Argv: argv})
		return true
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("scanned process table", "processes", len(procs))
	return procs, nil
}

// ReadProcFile reads a proc pseudo-file in full. The file size is reported
// as zero, so the content is pulled with pread at increasing offsets until a
// zero-length read.
func ReadProcFile(path string) ([]byte, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	defer unix.Close(fd)

	var body []byte
	buf := make([]byte, 4096)
	pos := int64(0)
	for {
		n, err := unix.Pread(fd, buf, pos)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, err
		}
		if n == 0 {
			return body, nil
		}
		body = append(body, buf[:n]...)
		pos += int64(n)
	}
}

// splitCmdline splits a /proc/<pid>/cmdline blob on NUL separators.
func splitCmdline(blob []byte) []string {
	blob = bytes.TrimRight(blob, "\x00")
	if len(blob) == 0 {
		return nil
	}
	return strings.Split(string(blob), "\x00")
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
