package selector

import (
	"errors"
	"testing"
)

func TestSelectLevel2PrefersFreeWithinThreshold(t *testing.T) {
	candidates := []Candidate{
		{Provider: "provider-a", Model: "large", Accuracy: 100, CostPerUnit: 0.00003},
		{Provider: "provider-b", Model: "medium", Accuracy: 98, CostPerUnit: 0.000015},
		{Provider: "provider-c", Model: "local", Accuracy: 96, CostPerUnit: 0},
	}

	picked, errSelect := Select(candidates, Level2, Options{ThresholdPercent: 5})
	if errSelect != nil {
		t.Fatalf("select: %v", errSelect)
	}
	if picked.Provider != "provider-c" {
		t.Fatalf("expected free provider-c within threshold, got %s", picked.Provider)
	}
}

func TestSelectLevel2ThresholdExcludesDistantCheap(t *testing.T) {
	candidates := []Candidate{
		{Provider: "provider-a", Model: "large", Accuracy: 100, CostPerUnit: 0.00003},
		{Provider: "provider-c", Model: "local", Accuracy: 90, CostPerUnit: 0},
	}

	picked, errSelect := Select(candidates, Level2, Options{ThresholdPercent: 5})
	if errSelect != nil {
		t.Fatalf("select: %v", errSelect)
	}
	// 90 is more than 5 points below 100, so the free candidate is out.
	if picked.Provider != "provider-a" {
		t.Fatalf("expected provider-a, got %s", picked.Provider)
	}

	// Widening the threshold brings it back.
	picked, errSelect = Select(candidates, Level2, Options{ThresholdPercent: 15})
	if errSelect != nil {
		t.Fatalf("select wide: %v", errSelect)
	}
	if picked.Provider != "provider-c" {
		t.Fatalf("expected provider-c at threshold 15, got %s", picked.Provider)
	}
}

func TestSelectLevel2NeverPicksBelowBar(t *testing.T) {
	candidates := []Candidate{
		{Provider: "best", Model: "m", Accuracy: 97, CostPerUnit: 0.0002},
		{Provider: "close", Model: "m", Accuracy: 93, CostPerUnit: 0.0001},
		{Provider: "far", Model: "m", Accuracy: 80, CostPerUnit: 0},
	}

	picked, errSelect := Select(candidates, Level2, Options{ThresholdPercent: 5})
	if errSelect != nil {
		t.Fatalf("select: %v", errSelect)
	}
	if picked.Accuracy < 97-5 {
		t.Fatalf("picked candidate below accuracy bar: %+v", picked)
	}
	if picked.Provider != "close" {
		t.Fatalf("expected cheapest qualified candidate, got %s", picked.Provider)
	}
}

func TestSelectLevel1TakesMostAccurateRegardlessOfCost(t *testing.T) {
	candidates := []Candidate{
		{Provider: "cheap", Model: "m", Accuracy: 96, CostPerUnit: 0},
		{Provider: "pricey", Model: "m", Accuracy: 99, CostPerUnit: 0.001},
	}

	picked, errSelect := Select(candidates, Level1, Options{})
	if errSelect != nil {
		t.Fatalf("select: %v", errSelect)
	}
	if picked.Provider != "pricey" {
		t.Fatalf("expected most accurate candidate, got %s", picked.Provider)
	}
}

func TestSelectLevel1NoRetentionFilter(t *testing.T) {
	candidates := []Candidate{
		{Provider: "retains", Model: "m", Accuracy: 99, NoRetention: false},
		{Provider: "private", Model: "m", Accuracy: 95, NoRetention: true},
	}

	picked, errSelect := Select(candidates, Level1, Options{RequireNoRetention: true})
	if errSelect != nil {
		t.Fatalf("select: %v", errSelect)
	}
	if picked.Provider != "private" {
		t.Fatalf("expected no-retention candidate, got %s", picked.Provider)
	}

	_, errSelect = Select([]Candidate{{Provider: "retains", Model: "m", Accuracy: 99}}, Level1, Options{RequireNoRetention: true})
	if !errors.Is(errSelect, ErrNoEligibleProvider) {
		t.Fatalf("expected ErrNoEligibleProvider, got %v", errSelect)
	}
}

func TestSelectEmptyCandidates(t *testing.T) {
	if _, errSelect := Select(nil, Level2, Options{}); !errors.Is(errSelect, ErrNoEligibleProvider) {
		t.Fatalf("expected ErrNoEligibleProvider, got %v", errSelect)
	}
}

func TestSelectTiesBreakDeterministically(t *testing.T) {
	candidates := []Candidate{
		{Provider: "zeta", Model: "m", Accuracy: 95, CostPerUnit: 0.0001, LatencyMS: 100},
		{Provider: "alpha", Model: "m", Accuracy: 95, CostPerUnit: 0.0001, LatencyMS: 100},
	}

	for i := 0; i < 20; i++ {
		picked, errSelect := Select(candidates, Level2, Options{})
		if errSelect != nil {
			t.Fatalf("select: %v", errSelect)
		}
		if picked.Provider != "alpha" {
			t.Fatalf("expected deterministic alpha pick, got %s", picked.Provider)
		}
	}
}

func TestSelectZeroThresholdUsesDefault(t *testing.T) {
	candidates := []Candidate{
		{Provider: "best", Model: "m", Accuracy: 100, CostPerUnit: 0.001},
		{Provider: "near", Model: "m", Accuracy: 96, CostPerUnit: 0},
	}

	picked, errSelect := Select(candidates, Level2, Options{})
	if errSelect != nil {
		t.Fatalf("select: %v", errSelect)
	}
	// Default threshold is 5 points, so 96 qualifies.
	if picked.Provider != "near" {
		t.Fatalf("expected default threshold to admit near, got %s", picked.Provider)
	}
}
