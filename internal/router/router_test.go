package router

import (
	"context"
	"errors"
	"testing"

	"github.com/modelgate/modelgate/internal/policy"
	"github.com/modelgate/modelgate/internal/quota"
	"github.com/modelgate/modelgate/internal/selector"
	"github.com/modelgate/modelgate/internal/tier"
)

func testCatalog() []selector.Candidate {
	return []selector.Candidate{
		{Provider: "provider-a", Model: "large", Accuracy: 100, CostPerUnit: 0.00003, NoRetention: true},
		{Provider: "provider-b", Model: "medium", Accuracy: 98, CostPerUnit: 0.000015},
		{Provider: "provider-c", Model: "local", Accuracy: 96, CostPerUnit: 0, NoRetention: true},
	}
}

func newTestRouter(t *testing.T, table *policy.Table, limits map[string]quota.Limits) (*Router, *quota.Ledger) {
	t.Helper()
	store := policy.NewStore(nil)
	if table != nil {
		if errSwap := store.Swap(context.Background(), table, "test"); errSwap != nil {
			t.Fatalf("swap table: %v", errSwap)
		}
	}
	matcher := policy.NewMatcher(store, policy.MergeHighestWins)

	if limits == nil {
		limits = map[string]quota.Limits{
			"free": {Level1: 5, Level2: 50, Tokens: 100_000, CostMicros: 500_000},
		}
	}
	ledger := quota.NewLedger(quota.NewMemoryStore(), &tier.StaticResolver{Default: "free"}, limits, "free", quota.ResolveSnapshot)

	return New(matcher, ledger, nil, testCatalog(), 5, 90), ledger
}

func TestRouteLevel2PicksCheapWithinThreshold(t *testing.T) {
	router, ledger := newTestRouter(t, nil, nil)

	decision, errRoute := router.Route(context.Background(), policy.RequestContext{
		UserID:          "u-1",
		EstimatedTokens: 500,
		EstimatedCost:   0.001,
	})
	if errRoute != nil {
		t.Fatalf("route: %v", errRoute)
	}
	if decision.Provider != "provider-c" {
		t.Fatalf("expected free provider within threshold, got %s", decision.Provider)
	}
	if decision.Level != quota.Level2 {
		t.Fatalf("expected level 2, got %d", decision.Level)
	}
	if decision.RequestID == "" {
		t.Fatalf("expected request id assigned")
	}

	rec, errUsage := ledger.Usage(context.Background(), "u-1")
	if errUsage != nil {
		t.Fatalf("usage: %v", errUsage)
	}
	if rec.Level2Count != 1 {
		t.Fatalf("expected usage recorded, got %+v", rec)
	}
}

func TestRouteEmergencyClassifiedLevel1(t *testing.T) {
	router, _ := newTestRouter(t, nil, nil)

	decision, errRoute := router.Route(context.Background(), policy.RequestContext{
		UserID:    "u-1",
		Emergency: true,
	})
	if errRoute != nil {
		t.Fatalf("route: %v", errRoute)
	}
	if decision.Level != quota.Level1 {
		t.Fatalf("expected level 1 for emergency, got %d", decision.Level)
	}
	// The most accurate candidate wins regardless of cost.
	if decision.Provider != "provider-a" {
		t.Fatalf("expected provider-a for level 1, got %s", decision.Provider)
	}
}

func TestRouteHighRequiredAccuracyClassifiedLevel1(t *testing.T) {
	router, _ := newTestRouter(t, nil, nil)

	decision, errRoute := router.Route(context.Background(), policy.RequestContext{
		UserID:           "u-1",
		RequiredAccuracy: 95,
	})
	if errRoute != nil {
		t.Fatalf("route: %v", errRoute)
	}
	if decision.Level != quota.Level1 {
		t.Fatalf("expected level 1 for high required accuracy, got %d", decision.Level)
	}
}

func TestRouteSensitiveRequiresNoRetention(t *testing.T) {
	router, _ := newTestRouter(t, nil, nil)

	decision, errRoute := router.Route(context.Background(), policy.RequestContext{
		UserID:    "u-1",
		Sensitive: true,
	})
	if errRoute != nil {
		t.Fatalf("route: %v", errRoute)
	}
	// provider-b retains data and must be skipped even if accurate.
	if decision.Provider != "provider-a" {
		t.Fatalf("expected no-retention provider-a, got %s", decision.Provider)
	}
}

func TestRouteQuotaDenialRecordsNothing(t *testing.T) {
	limits := map[string]quota.Limits{"free": {Level2: 1}}
	router, ledger := newTestRouter(t, nil, limits)
	ctx := context.Background()

	if _, errRoute := router.Route(ctx, policy.RequestContext{UserID: "u-1"}); errRoute != nil {
		t.Fatalf("first route: %v", errRoute)
	}

	_, errRoute := router.Route(ctx, policy.RequestContext{UserID: "u-1"})
	var exceeded *quota.QuotaExceededError
	if !errors.As(errRoute, &exceeded) {
		t.Fatalf("expected quota denial, got %v", errRoute)
	}
	if exceeded.Reason != quota.ReasonLevel2Limit {
		t.Fatalf("expected level2 limit reason, got %q", exceeded.Reason)
	}

	rec, errUsage := ledger.Usage(ctx, "u-1")
	if errUsage != nil {
		t.Fatalf("usage: %v", errUsage)
	}
	if rec.Level2Count != 1 {
		t.Fatalf("expected denied request not recorded, got count %d", rec.Level2Count)
	}
}

func TestRouteNoEligibleProviderConsumesNoQuota(t *testing.T) {
	table := &policy.Table{
		Rules: []policy.Rule{
			{
				ID:       "block-everything",
				Priority: 10,
				Enabled:  true,
				Actions: policy.Actions{
					PreferredProviders: []string{"nonexistent"},
					FallbackProviders:  []string{"also-nonexistent"},
				},
			},
		},
	}
	router, ledger := newTestRouter(t, table, nil)
	ctx := context.Background()

	_, errRoute := router.Route(ctx, policy.RequestContext{UserID: "u-1"})
	if !errors.Is(errRoute, selector.ErrNoEligibleProvider) {
		t.Fatalf("expected ErrNoEligibleProvider, got %v", errRoute)
	}

	rec, errUsage := ledger.Usage(ctx, "u-1")
	if errUsage != nil {
		t.Fatalf("usage: %v", errUsage)
	}
	if rec.Level2Count != 0 {
		t.Fatalf("expected no quota consumed, got count %d", rec.Level2Count)
	}
}

func TestRouteCanceledContextConsumesNoQuota(t *testing.T) {
	router, ledger := newTestRouter(t, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, errRoute := router.Route(ctx, policy.RequestContext{UserID: "u-1"})
	if !errors.Is(errRoute, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", errRoute)
	}

	rec, errUsage := ledger.Usage(context.Background(), "u-1")
	if errUsage != nil {
		t.Fatalf("usage: %v", errUsage)
	}
	if rec.Level1Count != 0 || rec.Level2Count != 0 {
		t.Fatalf("expected no quota consumed after cancellation, got %+v", rec)
	}
}

func TestRoutePolicyPreferredProvidersNarrowSelection(t *testing.T) {
	table := &policy.Table{
		Rules: []policy.Rule{
			{
				ID:       "prefer-b",
				Priority: 10,
				Enabled:  true,
				Actions:  policy.Actions{PreferredProviders: []string{"provider-b"}},
			},
		},
	}
	router, _ := newTestRouter(t, table, nil)

	decision, errRoute := router.Route(context.Background(), policy.RequestContext{UserID: "u-1"})
	if errRoute != nil {
		t.Fatalf("route: %v", errRoute)
	}
	if decision.Provider != "provider-b" {
		t.Fatalf("expected preferred provider-b, got %s", decision.Provider)
	}
	if len(decision.AppliedRuleIDs) != 1 || decision.AppliedRuleIDs[0] != "prefer-b" {
		t.Fatalf("expected audit trail with prefer-b, got %v", decision.AppliedRuleIDs)
	}
}

func TestRouteBlockedModelsExcluded(t *testing.T) {
	table := &policy.Table{
		Rules: []policy.Rule{
			{
				ID:       "block-local",
				Priority: 10,
				Enabled:  true,
				Actions:  policy.Actions{BlockedModels: []string{"local"}},
			},
		},
	}
	router, _ := newTestRouter(t, table, nil)

	decision, errRoute := router.Route(context.Background(), policy.RequestContext{UserID: "u-1"})
	if errRoute != nil {
		t.Fatalf("route: %v", errRoute)
	}
	if decision.Model == "local" {
		t.Fatalf("expected blocked model excluded, got %s", decision.Model)
	}
	// Next cheapest within threshold of the remaining pool.
	if decision.Provider != "provider-b" {
		t.Fatalf("expected provider-b, got %s", decision.Provider)
	}
}

func TestRouteFallbackChainExcludesChosen(t *testing.T) {
	router, _ := newTestRouter(t, nil, nil)

	decision, errRoute := router.Route(context.Background(), policy.RequestContext{UserID: "u-1"})
	if errRoute != nil {
		t.Fatalf("route: %v", errRoute)
	}
	for _, provider := range decision.FallbackChain {
		if provider == decision.Provider {
			t.Fatalf("chosen provider %s appears in fallback chain %v", decision.Provider, decision.FallbackChain)
		}
	}
	if len(decision.FallbackChain) == 0 {
		t.Fatalf("expected non-empty fallback chain")
	}
}
