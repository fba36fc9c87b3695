package extents

import "errors"

var (
	// ErrBudgetExceeded is returned when admitting a file would push a
	// precache burst past its byte budget.
	ErrBudgetExceeded = errors.New("cache budget exceeded")
)
