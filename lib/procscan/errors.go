package procscan

import "errors"

var (
	// ErrNoDevice is returned when no mount-table entry matches a path.
	ErrNoDevice = errors.New("no device found for path")
)
