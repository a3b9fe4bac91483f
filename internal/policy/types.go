package policy

import (
	"time"
)

// MergeStrategy controls how actions from multiple matched rules combine
// into a single decision.
type MergeStrategy string

const (
	// MergeHighestWins lets the highest-priority matched rule own each action
	// field; later matches only fill fields that are still unset.
	MergeHighestWins MergeStrategy = "highest-wins"
	// MergeLastWriteWins lets every matched rule overwrite the fields it
	// carries, so the lowest-priority match ends up owning contested fields.
	// Kept for deployments that relied on the historical behavior.
	MergeLastWriteWins MergeStrategy = "last-write-wins"
)

// TimeWindow restricts a rule to a daily time-of-day range. Times are "HH:MM"
// in UTC; a window whose end precedes its start wraps past midnight.
type TimeWindow struct {
	Start string `json:"start" validate:"required,len=5"`
	End   string `json:"end" validate:"required,len=5"`
}

// Conditions gate a rule. A nil or empty field matches every request.
type Conditions struct {
	RequestTypes     []string    `json:"request_types,omitempty"`
	Tiers            []string    `json:"tiers,omitempty"`
	Regions          []string    `json:"regions,omitempty"`
	Emergency        *bool       `json:"emergency,omitempty"`
	MinAccuracy      *float64    `json:"min_accuracy,omitempty" validate:"omitempty,gte=0,lte=100"`
	MaxAccuracy      *float64    `json:"max_accuracy,omitempty" validate:"omitempty,gte=0,lte=100"`
	PrivacyLevels    []string    `json:"privacy_levels,omitempty"`
	Sensitive        *bool       `json:"sensitive,omitempty"`
	TimeWindow       *TimeWindow `json:"time_window,omitempty"`
	MaxEstimatedCost *float64    `json:"max_estimated_cost,omitempty" validate:"omitempty,gte=0"`
}

// Actions are the routing directives a matched rule contributes.
type Actions struct {
	PreferredProviders []string `json:"preferred_providers,omitempty"`
	FallbackProviders  []string `json:"fallback_providers,omitempty"`
	AllowedModels      []string `json:"allowed_models,omitempty"`
	BlockedModels      []string `json:"blocked_models,omitempty"`
	Strategy           string   `json:"strategy,omitempty"`
	CacheEnabled       *bool    `json:"cache_enabled,omitempty"`
	CacheTTLSeconds    *int     `json:"cache_ttl_seconds,omitempty"`
	RateLimitPerMinute *int     `json:"rate_limit_per_minute,omitempty" validate:"omitempty,gte=0"`
}

// Rule is one priority-ordered routing directive.
type Rule struct {
	ID         string     `json:"id" validate:"required"`
	Name       string     `json:"name"`
	Priority   int        `json:"priority"`
	Conditions Conditions `json:"conditions"`
	Actions    Actions    `json:"actions"`
	Enabled    bool       `json:"enabled"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`

	LastModified time.Time `json:"last_modified"`
	ModifiedBy   string    `json:"modified_by"`
}

// Defaults seed a decision before any rule is applied.
type Defaults struct {
	FallbackProvider string `json:"fallback_provider"`
	RetryCount       int    `json:"retry_count" validate:"gte=0"`
	TimeoutSeconds   int    `json:"timeout_seconds" validate:"gte=0"`
	CacheEnabled     bool   `json:"cache_enabled"`
	CacheTTLSeconds  int    `json:"cache_ttl_seconds" validate:"gte=0"`
}

// Table is an immutable, versioned collection of rules plus global defaults.
// Tables are never mutated in place; updates build a new Table and swap it
// into the store whole.
type Table struct {
	Version  int64    `json:"version"`
	Rules    []Rule   `json:"rules" validate:"dive"`
	Defaults Defaults `json:"defaults"`
}

// RequestContext carries the request attributes the matcher evaluates.
type RequestContext struct {
	UserID           string    `json:"user_id"`
	RequestType      string    `json:"request_type"`
	UserTier         string    `json:"user_tier"`
	Region           string    `json:"region"`
	Emergency        bool      `json:"emergency"`
	RequiredAccuracy float64   `json:"required_accuracy"`
	PrivacyLevel     string    `json:"privacy_level"`
	Sensitive        bool      `json:"sensitive"`
	EstimatedCost    float64   `json:"estimated_cost"`
	EstimatedTokens  int64     `json:"estimated_tokens"`
	Now              time.Time `json:"-"`
}

// Decision is the matcher output: the merged routing directives plus the
// ordered IDs of every rule that contributed, for audit.
type Decision struct {
	PreferredProviders []string `json:"preferred_providers"`
	FallbackProviders  []string `json:"fallback_providers"`
	AllowedModels      []string `json:"allowed_models,omitempty"`
	BlockedModels      []string `json:"blocked_models,omitempty"`
	Strategy           string   `json:"strategy"`
	CacheEnabled       bool     `json:"cache_enabled"`
	CacheTTLSeconds    int      `json:"cache_ttl_seconds"`
	RateLimitPerMinute int      `json:"rate_limit_per_minute"` // 0 means no override.
	RetryCount         int      `json:"retry_count"`
	TimeoutSeconds     int      `json:"timeout_seconds"`

	AppliedRuleIDs []string `json:"applied_rule_ids"`
	TableVersion   int64    `json:"table_version"`
}

// clone returns a deep copy of the table so callers can build a successor
// without touching the live snapshot.
func (t *Table) clone() *Table {
	if t == nil {
		return &Table{}
	}
	next := &Table{
		Version:  t.Version,
		Defaults: t.Defaults,
		Rules:    make([]Rule, len(t.Rules)),
	}
	copy(next.Rules, t.Rules)
	return next
}
