package procscan

import (
	"strings"
)

// GuessDevice picks the block device backing path by scanning the mount
// table for the mount point sharing the longest common string prefix with
// path. Only mounts whose device is an absolute path are considered.
func (s *Scanner) GuessDevice(path string) (string, error) {
	body, err := ReadProcFile(s.paths.Mounts())
	if err != nil {
		return "", err
	}

	var (
		selected    string
		selectedLen int
	)
	for _, line := range strings.Split(string(body), "\n") {
		fields := strings.SplitN(line, " ", 3)
		if len(fields) < 2 {
			continue
		}
		device, mountPoint := fields[0], fields[1]
		if !strings.HasPrefix(device, "/") {
			continue
		}
		if l := commonPrefixLen(mountPoint, path); l > selectedLen {
			selectedLen = l
			selected = device
		}
	}
	if selected == "" {
		return "", ErrNoDevice
	}
	s.log.Debug("guessed raw device", "path", path, "device", selected)
	return selected, nil
}

func commonPrefixLen(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
