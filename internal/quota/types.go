package quota

import (
	"context"
	"time"
)

// Task levels.
const (
	Level1 = 1
	Level2 = 2
)

// Rejection reasons, in admission check order.
const (
	ReasonLevel1Limit = "level1_request_limit"
	ReasonLevel2Limit = "level2_request_limit"
	ReasonTokenLimit  = "token_limit"
	ReasonCostLimit   = "daily_cost_limit"
)

// Limits is a tier limit snapshot. A non-positive limit means unlimited.
type Limits struct {
	Level1     int64
	Level2     int64
	Tokens     int64
	CostMicros int64
}

// DayRecord is the per-(user, day) consumption state. Counters are
// monotonically non-decreasing within a day; a new record replaces the old
// one when the date rolls over.
type DayRecord struct {
	UserID string
	Day    string // YYYY-MM-DD, UTC.
	Tier   string

	Level1Count int64
	Level2Count int64
	Tokens      int64
	CostMicros  int64

	Limits Limits

	Blocked       bool
	BlockedReason string

	ResetAt time.Time
}

// Delta is an atomic counter increment.
type Delta struct {
	Level1     int64
	Level2     int64
	Tokens     int64
	CostMicros int64
}

// Remaining is the budget left on a record at check time.
type Remaining struct {
	Level1     int64 `json:"level1"`
	Level2     int64 `json:"level2"`
	Tokens     int64 `json:"tokens"`
	CostMicros int64 `json:"cost_micros"`
}

// Admission is the answer to an admission-control question.
type Admission struct {
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason,omitempty"`
	Limit     int64     `json:"limit,omitempty"`
	Remaining Remaining `json:"remaining"`
	ResetTime time.Time `json:"reset_time"`
}

// Store is the per-user-day counter store. Implementations must make
// Increment atomic per (user, day) key: concurrent increments may never lose
// updates, and the blocked flag is recomputed inside the same operation. A
// read-modify-write sequence spread over separate calls is not an
// acceptable implementation.
type Store interface {
	// GetOrCreate returns the record for seed's (UserID, Day), creating it
	// from seed on first use. Creation is first-writer-wins: under
	// concurrent creation every caller observes the same stored record.
	GetOrCreate(ctx context.Context, seed DayRecord) (DayRecord, error)

	// Increment atomically adds delta to the record, creating it from seed
	// when absent, recomputes the blocked flag, and returns the new state.
	Increment(ctx context.Context, seed DayRecord, delta Delta) (DayRecord, error)

	// PurgeBefore drops records for days strictly before day. Used by the
	// daily reset task; correctness never depends on it because records are
	// date-partitioned.
	PurgeBefore(ctx context.Context, day string) error
}

// applyBlocked recomputes the blocked flag from counters and limits: blocked
// when both level counters have reached their limits, or when cost has
// reached the daily ceiling.
func applyBlocked(rec *DayRecord) {
	level1Full := rec.Limits.Level1 > 0 && rec.Level1Count >= rec.Limits.Level1
	level2Full := rec.Limits.Level2 > 0 && rec.Level2Count >= rec.Limits.Level2
	costFull := rec.Limits.CostMicros > 0 && rec.CostMicros >= rec.Limits.CostMicros

	switch {
	case costFull:
		rec.Blocked = true
		rec.BlockedReason = ReasonCostLimit
	case level1Full && level2Full:
		rec.Blocked = true
		rec.BlockedReason = "request_limits"
	default:
		rec.Blocked = false
		rec.BlockedReason = ""
	}
}

// remainingOf computes the remaining budget for a record against limits.
func remainingOf(rec DayRecord, limits Limits) Remaining {
	return Remaining{
		Level1:     remainingCount(limits.Level1, rec.Level1Count),
		Level2:     remainingCount(limits.Level2, rec.Level2Count),
		Tokens:     remainingCount(limits.Tokens, rec.Tokens),
		CostMicros: remainingCount(limits.CostMicros, rec.CostMicros),
	}
}

func remainingCount(limit, used int64) int64 {
	if limit <= 0 {
		return -1 // unlimited
	}
	if used >= limit {
		return 0
	}
	return limit - used
}
