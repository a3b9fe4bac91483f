package quota

import (
	"fmt"
	"time"
)

// QuotaExceededError reports a rejected admission with enough information
// for the caller to decide whether to retry later or fall back.
type QuotaExceededError struct {
	Reason    string
	Limit     int64
	Remaining Remaining
	ResetTime time.Time
}

func (e *QuotaExceededError) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("quota exceeded: %s (limit %d, resets %s)", e.Reason, e.Limit, e.ResetTime.Format(time.RFC3339))
	}
	return fmt.Sprintf("quota exceeded: %s (resets %s)", e.Reason, e.ResetTime.Format(time.RFC3339))
}

// Err converts a denied admission into a typed error, or nil when allowed.
func (a Admission) Err() error {
	if a.Allowed {
		return nil
	}
	return &QuotaExceededError{
		Reason:    a.Reason,
		Limit:     a.Limit,
		Remaining: a.Remaining,
		ResetTime: a.ResetTime,
	}
}
