package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/modelgate/modelgate/internal/tier"
)

// LimitResolution controls how a record's effective limits are chosen.
type LimitResolution string

const (
	// ResolveSnapshot fixes limits at record creation: a tier change mid-day
	// does not retroactively alter an already-created record.
	ResolveSnapshot LimitResolution = "snapshot"
	// ResolvePerRequest re-resolves the user's current tier limits on every
	// admission check.
	ResolvePerRequest LimitResolution = "per-request"
)

// Ledger answers admission questions and records usage against per-user
// daily budgets.
type Ledger struct {
	store       Store
	tiers       tier.Resolver
	limits      map[string]Limits
	defaultTier string
	resolution  LimitResolution
	clock       func() time.Time
}

// NewLedger constructs a ledger. limits maps tier names to their daily
// limits; defaultTier is used when a tier has no entry.
func NewLedger(store Store, tiers tier.Resolver, limits map[string]Limits, defaultTier string, resolution LimitResolution) *Ledger {
	if resolution != ResolvePerRequest {
		resolution = ResolveSnapshot
	}
	return &Ledger{
		store:       store,
		tiers:       tiers,
		limits:      limits,
		defaultTier: defaultTier,
		resolution:  resolution,
		clock:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the ledger clock. Intended for tests.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	if clock != nil {
		l.clock = clock
	}
	return l
}

// Resolution returns the configured limit resolution mode.
func (l *Ledger) Resolution() LimitResolution { return l.resolution }

// CanAdmit answers whether a request may proceed. Checks run in a fixed
// order — request count, then tokens, then cost — and stop at the first
// violated constraint.
func (l *Ledger) CanAdmit(ctx context.Context, userID string, level int, estTokens, estCostMicros int64) (Admission, error) {
	rec, err := l.getOrCreate(ctx, userID)
	if err != nil {
		return Admission{}, err
	}

	limits := rec.Limits
	if l.resolution == ResolvePerRequest {
		limits = l.resolveLimits(ctx, userID)
	}
	remaining := remainingOf(rec, limits)
	denied := func(reason string, limit int64) Admission {
		return Admission{
			Allowed:   false,
			Reason:    reason,
			Limit:     limit,
			Remaining: remaining,
			ResetTime: rec.ResetAt,
		}
	}

	switch level {
	case Level1:
		if limits.Level1 > 0 && rec.Level1Count >= limits.Level1 {
			return denied(ReasonLevel1Limit, limits.Level1), nil
		}
	case Level2:
		if limits.Level2 > 0 && rec.Level2Count >= limits.Level2 {
			return denied(ReasonLevel2Limit, limits.Level2), nil
		}
	default:
		return Admission{}, fmt.Errorf("quota: unknown task level %d", level)
	}

	if limits.Tokens > 0 && rec.Tokens+estTokens > limits.Tokens {
		return denied(ReasonTokenLimit, limits.Tokens), nil
	}
	if limits.CostMicros > 0 && rec.CostMicros+estCostMicros > limits.CostMicros {
		return denied(ReasonCostLimit, limits.CostMicros), nil
	}

	return Admission{Allowed: true, Remaining: remaining, ResetTime: rec.ResetAt}, nil
}

// RecordUsage increments the user's counters for one completed request and
// re-evaluates the blocked flag. The store makes the increment atomic per
// user-day key, so concurrent calls never lose updates.
func (l *Ledger) RecordUsage(ctx context.Context, userID string, level int, tokens, costMicros int64) error {
	delta := Delta{Tokens: tokens, CostMicros: costMicros}
	switch level {
	case Level1:
		delta.Level1 = 1
	case Level2:
		delta.Level2 = 1
	default:
		return fmt.Errorf("quota: unknown task level %d", level)
	}

	_, err := l.store.Increment(ctx, l.seed(ctx, userID), delta)
	return err
}

// Usage returns today's record for the user, creating it lazily.
func (l *Ledger) Usage(ctx context.Context, userID string) (DayRecord, error) {
	return l.getOrCreate(ctx, userID)
}

func (l *Ledger) getOrCreate(ctx context.Context, userID string) (DayRecord, error) {
	return l.store.GetOrCreate(ctx, l.seed(ctx, userID))
}

// seed builds the record used when today's entry does not exist yet. The
// limits snapshot is taken here, at creation time.
func (l *Ledger) seed(ctx context.Context, userID string) DayRecord {
	now := l.clock().UTC()
	day := now.Format("2006-01-02")
	tierName := l.resolveTier(ctx, userID)
	return DayRecord{
		UserID:  userID,
		Day:     day,
		Tier:    tierName,
		Limits:  l.limitsFor(tierName),
		ResetAt: startOfNextDay(now),
	}
}

func (l *Ledger) resolveTier(ctx context.Context, userID string) string {
	if l.tiers == nil {
		return l.defaultTier
	}
	name := l.tiers.Resolve(ctx, userID)
	if name == "" {
		return l.defaultTier
	}
	return name
}

func (l *Ledger) resolveLimits(ctx context.Context, userID string) Limits {
	return l.limitsFor(l.resolveTier(ctx, userID))
}

func (l *Ledger) limitsFor(tierName string) Limits {
	if limits, ok := l.limits[tierName]; ok {
		return limits
	}
	if limits, ok := l.limits[l.defaultTier]; ok {
		return limits
	}
	return Limits{}
}

// startOfNextDay returns the next UTC midnight after t.
func startOfNextDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}
