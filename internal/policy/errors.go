package policy

import (
	"errors"
	"fmt"
)

// ErrInvalidTable marks a table rejected by validation; the previously
// active table keeps serving.
var ErrInvalidTable = errors.New("policy: invalid table")

// ErrStaleReload marks a failed reconciliation poll. The router keeps the
// last good table; this error is logged, never propagated to callers.
var ErrStaleReload = errors.New("policy: reload failed, keeping last good table")

// InvalidTableError carries the first validation failure found in a
// candidate table.
type InvalidTableError struct {
	Reason string
}

func (e *InvalidTableError) Error() string {
	return fmt.Sprintf("policy: invalid table: %s", e.Reason)
}

// Is lets errors.Is match the ErrInvalidTable sentinel.
func (e *InvalidTableError) Is(target error) bool {
	return target == ErrInvalidTable
}
