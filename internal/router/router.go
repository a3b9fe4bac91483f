// Package router orchestrates the routing core: it classifies a request,
// consults the policy matcher, checks quota, selects a provider, and records
// usage.
package router

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelgate/modelgate/internal/eval"
	"github.com/modelgate/modelgate/internal/metrics"
	"github.com/modelgate/modelgate/internal/policy"
	"github.com/modelgate/modelgate/internal/quota"
	"github.com/modelgate/modelgate/internal/selector"
	log "github.com/sirupsen/logrus"
)

// State is a routing request lifecycle stage.
type State string

const (
	StateReceived         State = "RECEIVED"
	StateClassified       State = "CLASSIFIED"
	StatePolicyMatched    State = "POLICY_MATCHED"
	StateQuotaChecked     State = "QUOTA_CHECKED"
	StateProviderSelected State = "PROVIDER_SELECTED"
	StateRecorded         State = "RECORDED"
	StateDone             State = "DONE"
	StateRejected         State = "REJECTED"
	StateFailed           State = "FAILED"
)

// RoutingDecision is the sole output of the core for a request.
type RoutingDecision struct {
	RequestID string `json:"request_id"`

	Provider      string   `json:"provider"`
	Model         string   `json:"model"`
	FallbackChain []string `json:"fallback_chain"`

	Level          int      `json:"level"`
	Strategy       string   `json:"strategy"`
	AppliedRuleIDs []string `json:"applied_rule_ids"`
	TableVersion   int64    `json:"table_version"`

	CacheEnabled       bool `json:"cache_enabled"`
	CacheTTLSeconds    int  `json:"cache_ttl_seconds"`
	RateLimitPerMinute int  `json:"rate_limit_per_minute"`
	RetryCount         int  `json:"retry_count"`
	TimeoutSeconds     int  `json:"timeout_seconds"`
}

// Router wires the matcher, ledger, selector, and evaluation registry
// together behind a single Route call.
type Router struct {
	matcher  *policy.Matcher
	ledger   *quota.Ledger
	registry *eval.Registry
	catalog  []selector.Candidate

	thresholdPct          float64
	classifierMinAccuracy float64
	clock                 func() time.Time
}

// New constructs a router. registry may be nil; catalog accuracies are then
// used as configured.
func New(matcher *policy.Matcher, ledger *quota.Ledger, registry *eval.Registry, catalog []selector.Candidate, thresholdPct, classifierMinAccuracy float64) *Router {
	if thresholdPct <= 0 {
		thresholdPct = selector.DefaultThresholdPercent
	}
	if classifierMinAccuracy <= 0 {
		classifierMinAccuracy = 90
	}
	return &Router{
		matcher:               matcher,
		ledger:                ledger,
		registry:              registry,
		catalog:               catalog,
		thresholdPct:          thresholdPct,
		classifierMinAccuracy: classifierMinAccuracy,
		clock:                 func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the router clock. Intended for tests.
func (r *Router) WithClock(clock func() time.Time) *Router {
	if clock != nil {
		r.clock = clock
	}
	return r
}

// Route runs the full decision pipeline. Quota denials come back as
// *quota.QuotaExceededError; an empty candidate set comes back as
// selector.ErrNoEligibleProvider without consuming quota. Usage is recorded
// before a successful return, and never when ctx is already canceled.
func (r *Router) Route(ctx context.Context, reqCtx policy.RequestContext) (*RoutingDecision, error) {
	if reqCtx.Now.IsZero() {
		reqCtx.Now = r.clock()
	}

	// CLASSIFIED
	level := r.classify(reqCtx)

	// POLICY_MATCHED
	policyDecision := r.matcher.Decide(reqCtx)

	// QUOTA_CHECKED: a denial here prevents any provider selection or
	// usage recording.
	estCostMicros := costToMicros(reqCtx.EstimatedCost)
	admission, errAdmit := r.ledger.CanAdmit(ctx, reqCtx.UserID, level, reqCtx.EstimatedTokens, estCostMicros)
	if errAdmit != nil {
		metrics.RouteRejections.WithLabelValues("ledger_error").Inc()
		return nil, fmt.Errorf("router: admission check: %w", errAdmit)
	}
	if errQuota := admission.Err(); errQuota != nil {
		metrics.RouteRejections.WithLabelValues("quota").Inc()
		return nil, errQuota
	}

	// PROVIDER_SELECTED: failure here is reported without consuming quota.
	candidates := r.buildCandidates(ctx, policyDecision)
	chosen, errSelect := selector.Select(candidates, level, selector.Options{
		ThresholdPercent:   r.thresholdPct,
		RequireNoRetention: requiresNoRetention(reqCtx),
	})
	if errSelect != nil {
		metrics.RouteRejections.WithLabelValues("no_provider").Inc()
		return nil, errSelect
	}

	// An abandoned request must not consume quota.
	if ctx != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	// RECORDED: usage lands before the decision is returned so the two
	// stay consistent.
	if errRecord := r.ledger.RecordUsage(ctx, reqCtx.UserID, level, reqCtx.EstimatedTokens, estCostMicros); errRecord != nil {
		metrics.RouteRejections.WithLabelValues("record_error").Inc()
		return nil, fmt.Errorf("router: record usage: %w", errRecord)
	}

	metrics.RouteDecisions.WithLabelValues(chosen.Provider).Inc()

	return &RoutingDecision{
		RequestID:          uuid.NewString(),
		Provider:           chosen.Provider,
		Model:              chosen.Model,
		FallbackChain:      fallbackChain(chosen, candidates, policyDecision),
		Level:              level,
		Strategy:           policyDecision.Strategy,
		AppliedRuleIDs:     policyDecision.AppliedRuleIDs,
		TableVersion:       policyDecision.TableVersion,
		CacheEnabled:       policyDecision.CacheEnabled,
		CacheTTLSeconds:    policyDecision.CacheTTLSeconds,
		RateLimitPerMinute: policyDecision.RateLimitPerMinute,
		RetryCount:         policyDecision.RetryCount,
		TimeoutSeconds:     policyDecision.TimeoutSeconds,
	}, nil
}

// classify assigns the task level: emergency, sensitive-data, and
// high-required-accuracy requests demand maximum accuracy regardless of
// cost; everything else tolerates a bounded trade-off.
func (r *Router) classify(reqCtx policy.RequestContext) int {
	if reqCtx.Emergency || reqCtx.Sensitive {
		return quota.Level1
	}
	if reqCtx.RequiredAccuracy >= r.classifierMinAccuracy {
		return quota.Level1
	}
	return quota.Level2
}

// buildCandidates narrows the catalog to the policy's provider preference
// and model allow/block lists, overlaying the latest benchmark accuracies.
func (r *Router) buildCandidates(ctx context.Context, decision policy.Decision) []selector.Candidate {
	accuracies := map[string]float64{}
	if r.registry != nil {
		loaded, errLoad := r.registry.LatestAccuracies(ctx)
		if errLoad != nil {
			log.WithError(errLoad).Warn("router: loading benchmark accuracies failed, using configured scores")
		} else {
			accuracies = loaded
		}
	}

	pool := filterByProviders(r.catalog, decision.PreferredProviders)
	if len(pool) == 0 {
		pool = filterByProviders(r.catalog, decision.FallbackProviders)
	}
	if len(pool) == 0 && len(decision.PreferredProviders) == 0 && len(decision.FallbackProviders) == 0 {
		pool = r.catalog
	}

	out := make([]selector.Candidate, 0, len(pool))
	for _, c := range pool {
		if len(decision.AllowedModels) > 0 && !containsFold(decision.AllowedModels, c.Model) {
			continue
		}
		if containsFold(decision.BlockedModels, c.Model) {
			continue
		}
		if accuracy, ok := accuracies[c.Provider+"/"+c.Model]; ok {
			c.Accuracy = accuracy
		}
		out = append(out, c)
	}
	return out
}

func filterByProviders(catalog []selector.Candidate, providers []string) []selector.Candidate {
	if len(providers) == 0 {
		return nil
	}
	var out []selector.Candidate
	for _, c := range catalog {
		if containsFold(providers, c.Provider) {
			out = append(out, c)
		}
	}
	return out
}

func containsFold(values []string, candidate string) bool {
	for _, v := range values {
		if strings.EqualFold(v, candidate) {
			return true
		}
	}
	return false
}

// fallbackChain lists the unchosen candidates' providers in preference
// order, followed by the policy's fallback providers.
func fallbackChain(chosen selector.Candidate, candidates []selector.Candidate, decision policy.Decision) []string {
	seen := map[string]struct{}{chosen.Provider: {}}
	var chain []string
	appendProvider := func(provider string) {
		if provider == "" {
			return
		}
		if _, ok := seen[provider]; ok {
			return
		}
		seen[provider] = struct{}{}
		chain = append(chain, provider)
	}
	for _, c := range candidates {
		appendProvider(c.Provider)
	}
	for _, provider := range decision.FallbackProviders {
		appendProvider(provider)
	}
	return chain
}

func costToMicros(usd float64) int64 {
	if usd <= 0 {
		return 0
	}
	return int64(math.Round(usd * 1_000_000))
}

func requiresNoRetention(reqCtx policy.RequestContext) bool {
	return reqCtx.Sensitive || strings.EqualFold(reqCtx.PrivacyLevel, "strict") || strings.EqualFold(reqCtx.PrivacyLevel, "no-retention")
}
