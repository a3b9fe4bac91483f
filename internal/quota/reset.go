package quota

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// ResetTask purges stale ledger records once per day at a fixed UTC instant.
// Records are date-partitioned, so this task is a redundant safety net:
// admission and usage behave identically whether or not it has run.
type ResetTask struct {
	store         Store
	resetHourUTC  int
	retentionDays int
	clock         func() time.Time
}

// NewResetTask constructs the daily reset task.
func NewResetTask(store Store, resetHourUTC, retentionDays int) *ResetTask {
	if store == nil {
		return nil
	}
	if resetHourUTC < 0 || resetHourUTC > 23 {
		resetHourUTC = 0
	}
	return &ResetTask{
		store:         store,
		resetHourUTC:  resetHourUTC,
		retentionDays: retentionDays,
		clock:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the task clock. Intended for tests.
func (t *ResetTask) WithClock(clock func() time.Time) *ResetTask {
	if t != nil && clock != nil {
		t.clock = clock
	}
	return t
}

// Start launches the reset loop in a background goroutine.
func (t *ResetTask) Start(ctx context.Context) {
	if t == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go t.run(ctx)
	log.Infof("quota reset task started (reset_hour_utc=%d)", t.resetHourUTC)
}

func (t *ResetTask) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		wait := time.Until(t.nextResetInstant())
		if wait <= 0 {
			wait = time.Second
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
		t.RunOnce(ctx)
	}
}

// RunOnce performs one purge pass. Exported so tests and operator tooling
// can trigger it directly.
func (t *ResetTask) RunOnce(ctx context.Context) {
	if t == nil || t.store == nil {
		return
	}
	now := t.clock().UTC()

	cutoff := now.Format("2006-01-02")
	if t.retentionDays > 0 {
		cutoff = now.AddDate(0, 0, -t.retentionDays).Format("2006-01-02")
	}
	if errPurge := t.store.PurgeBefore(ctx, cutoff); errPurge != nil {
		log.WithError(errPurge).Warn("quota reset task: purge failed")
		return
	}
	log.Infof("quota reset task: purged records before %s", cutoff)
}

// nextResetInstant returns the next occurrence of the configured reset hour.
func (t *ResetTask) nextResetInstant() time.Time {
	now := t.clock().UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), t.resetHourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
