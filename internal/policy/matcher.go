package policy

import (
	"sort"
	"strings"
	"time"
)

// Matcher evaluates a request context against the active policy table.
type Matcher struct {
	store    *Store
	strategy MergeStrategy
}

// NewMatcher constructs a matcher reading tables from store.
func NewMatcher(store *Store, strategy MergeStrategy) *Matcher {
	if strategy != MergeHighestWins && strategy != MergeLastWriteWins {
		strategy = MergeHighestWins
	}
	return &Matcher{store: store, strategy: strategy}
}

// Strategy returns the configured merge strategy.
func (m *Matcher) Strategy() MergeStrategy { return m.strategy }

// Decide returns the merged routing decision for ctx against the active
// table. For a fixed table, context, and time the result is deterministic.
func (m *Matcher) Decide(ctx RequestContext) Decision {
	table := m.store.Current()
	return DecideWithTable(table, ctx, m.strategy)
}

// DecideWithTable evaluates ctx against an explicit table snapshot.
func DecideWithTable(table *Table, ctx RequestContext, strategy MergeStrategy) Decision {
	now := ctx.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	decision := seedDecision(table)

	matched := make([]*Rule, 0, 4)
	for i := range table.Rules {
		rule := &table.Rules[i]
		if !rule.Enabled {
			continue
		}
		if !withinValidity(rule, now) {
			continue
		}
		if !ruleMatches(rule, ctx, now) {
			continue
		}
		matched = append(matched, rule)
	}

	// Priority descending, ties broken by ID so ordering is total.
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority > matched[j].Priority
		}
		return matched[i].ID < matched[j].ID
	})

	set := fieldSet{}
	for _, rule := range matched {
		applyActions(&decision, rule.Actions, strategy, &set)
		decision.AppliedRuleIDs = append(decision.AppliedRuleIDs, rule.ID)
	}
	return decision
}

// fieldSet tracks which action fields have already been claimed under the
// highest-wins strategy.
type fieldSet struct {
	preferred, fallback, allowed, blocked       bool
	strategy, cacheEnabled, cacheTTL, rateLimit bool
}

func seedDecision(table *Table) Decision {
	d := Decision{
		Strategy:        "balanced",
		CacheEnabled:    table.Defaults.CacheEnabled,
		CacheTTLSeconds: table.Defaults.CacheTTLSeconds,
		RetryCount:      table.Defaults.RetryCount,
		TimeoutSeconds:  table.Defaults.TimeoutSeconds,
		TableVersion:    table.Version,
	}
	if fb := strings.TrimSpace(table.Defaults.FallbackProvider); fb != "" {
		d.FallbackProviders = []string{fb}
	}
	return d
}

func applyActions(d *Decision, a Actions, strategy MergeStrategy, set *fieldSet) {
	overwrite := strategy == MergeLastWriteWins

	if len(a.PreferredProviders) > 0 && (overwrite || !set.preferred) {
		d.PreferredProviders = append([]string(nil), a.PreferredProviders...)
		set.preferred = true
	}
	if len(a.FallbackProviders) > 0 && (overwrite || !set.fallback) {
		d.FallbackProviders = append([]string(nil), a.FallbackProviders...)
		set.fallback = true
	}
	if len(a.AllowedModels) > 0 && (overwrite || !set.allowed) {
		d.AllowedModels = append([]string(nil), a.AllowedModels...)
		set.allowed = true
	}
	if len(a.BlockedModels) > 0 && (overwrite || !set.blocked) {
		d.BlockedModels = append([]string(nil), a.BlockedModels...)
		set.blocked = true
	}
	if strings.TrimSpace(a.Strategy) != "" && (overwrite || !set.strategy) {
		d.Strategy = a.Strategy
		set.strategy = true
	}
	if a.CacheEnabled != nil && (overwrite || !set.cacheEnabled) {
		d.CacheEnabled = *a.CacheEnabled
		set.cacheEnabled = true
	}
	if a.CacheTTLSeconds != nil && (overwrite || !set.cacheTTL) {
		d.CacheTTLSeconds = *a.CacheTTLSeconds
		set.cacheTTL = true
	}
	if a.RateLimitPerMinute != nil && (overwrite || !set.rateLimit) {
		d.RateLimitPerMinute = *a.RateLimitPerMinute
		set.rateLimit = true
	}
}

func withinValidity(rule *Rule, now time.Time) bool {
	if rule.ValidFrom != nil && now.Before(*rule.ValidFrom) {
		return false
	}
	if rule.ValidUntil != nil && now.After(*rule.ValidUntil) {
		return false
	}
	return true
}

func ruleMatches(rule *Rule, ctx RequestContext, now time.Time) bool {
	c := rule.Conditions

	if !stringListMatches(c.RequestTypes, ctx.RequestType) {
		return false
	}
	if !stringListMatches(c.Tiers, ctx.UserTier) {
		return false
	}
	if !stringListMatches(c.Regions, ctx.Region) {
		return false
	}
	if c.Emergency != nil && *c.Emergency != ctx.Emergency {
		return false
	}
	if c.MinAccuracy != nil && ctx.RequiredAccuracy < *c.MinAccuracy {
		return false
	}
	if c.MaxAccuracy != nil && ctx.RequiredAccuracy > *c.MaxAccuracy {
		return false
	}
	if !stringListMatches(c.PrivacyLevels, ctx.PrivacyLevel) {
		return false
	}
	if c.Sensitive != nil && *c.Sensitive != ctx.Sensitive {
		return false
	}
	if c.MaxEstimatedCost != nil && ctx.EstimatedCost > *c.MaxEstimatedCost {
		return false
	}
	if c.TimeWindow != nil && !timeWindowContains(c.TimeWindow, now) {
		return false
	}
	return true
}

func stringListMatches(values []string, candidate string) bool {
	if len(values) == 0 {
		return true
	}
	candidate = strings.ToLower(strings.TrimSpace(candidate))
	for _, v := range values {
		if strings.ToLower(strings.TrimSpace(v)) == candidate {
			return true
		}
	}
	return false
}

// timeWindowContains reports whether now falls inside the window in UTC.
func timeWindowContains(w *TimeWindow, now time.Time) bool {
	start, okStart := parseClock(w.Start)
	end, okEnd := parseClock(w.End)
	if !okStart || !okEnd {
		return false
	}
	minute := now.UTC().Hour()*60 + now.UTC().Minute()
	if start <= end {
		return minute >= start && minute <= end
	}
	// Window wraps past midnight.
	return minute >= start || minute <= end
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, bool) {
	t, errParse := time.Parse("15:04", strings.TrimSpace(s))
	if errParse != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
