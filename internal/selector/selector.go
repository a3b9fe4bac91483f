// Package selector picks one provider from a candidate list, trading
// accuracy against cost by task level.
package selector

import (
	"errors"
	"sort"
)

// ErrNoEligibleProvider indicates an empty candidate set after filtering.
var ErrNoEligibleProvider = errors.New("selector: no eligible provider")

// DefaultThresholdPercent is the allowed accuracy gap below the best
// candidate for level-2 tasks.
const DefaultThresholdPercent = 5.0

// Task levels.
const (
	Level1 = 1
	Level2 = 2
)

// Candidate is one routable provider/model pair with its scoring inputs.
type Candidate struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Accuracy    float64 `json:"accuracy"` // 0-100.
	CostPerUnit float64 `json:"cost_per_unit"`
	LatencyMS   int64   `json:"latency_ms"`
	NoRetention bool    `json:"no_retention"`
}

// key returns a stable identifier used as the final tie breaker.
func (c Candidate) key() string { return c.Provider + "/" + c.Model }

// Options tune a selection.
type Options struct {
	// ThresholdPercent bounds the accuracy give-up for level-2 tasks.
	// Non-positive values fall back to DefaultThresholdPercent.
	ThresholdPercent float64
	// RequireNoRetention restricts level-1 selection to candidates that
	// support no-retention invocation.
	RequireNoRetention bool
}

// Select picks one candidate. Level-1 tasks take the most accurate
// candidate regardless of cost; level-2 tasks take the cheapest candidate
// whose accuracy is within ThresholdPercent points of the best available.
func Select(candidates []Candidate, level int, opts Options) (Candidate, error) {
	if len(candidates) == 0 {
		return Candidate{}, ErrNoEligibleProvider
	}

	switch level {
	case Level1:
		return selectLevel1(candidates, opts)
	default:
		return selectLevel2(candidates, opts)
	}
}

func selectLevel1(candidates []Candidate, opts Options) (Candidate, error) {
	pool := candidates
	if opts.RequireNoRetention {
		pool = nil
		for _, c := range candidates {
			if c.NoRetention {
				pool = append(pool, c)
			}
		}
		if len(pool) == 0 {
			return Candidate{}, ErrNoEligibleProvider
		}
	}

	sorted := append([]Candidate(nil), pool...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Accuracy != sorted[j].Accuracy {
			return sorted[i].Accuracy > sorted[j].Accuracy
		}
		if sorted[i].LatencyMS != sorted[j].LatencyMS {
			return sorted[i].LatencyMS < sorted[j].LatencyMS
		}
		if sorted[i].CostPerUnit != sorted[j].CostPerUnit {
			return sorted[i].CostPerUnit < sorted[j].CostPerUnit
		}
		return sorted[i].key() < sorted[j].key()
	})
	return sorted[0], nil
}

func selectLevel2(candidates []Candidate, opts Options) (Candidate, error) {
	threshold := opts.ThresholdPercent
	if threshold <= 0 {
		threshold = DefaultThresholdPercent
	}

	maxAccuracy := candidates[0].Accuracy
	for _, c := range candidates[1:] {
		if c.Accuracy > maxAccuracy {
			maxAccuracy = c.Accuracy
		}
	}
	bar := maxAccuracy - threshold

	qualified := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Accuracy >= bar {
			qualified = append(qualified, c)
		}
	}
	// The bar derives from the same list, so this can only trip on bad
	// float inputs; handled anyway.
	if len(qualified) == 0 {
		return Candidate{}, ErrNoEligibleProvider
	}

	sort.SliceStable(qualified, func(i, j int) bool {
		// Zero-cost candidates outrank any paid one regardless of magnitude.
		iFree, jFree := qualified[i].CostPerUnit == 0, qualified[j].CostPerUnit == 0
		if iFree != jFree {
			return iFree
		}
		if qualified[i].CostPerUnit != qualified[j].CostPerUnit {
			return qualified[i].CostPerUnit < qualified[j].CostPerUnit
		}
		if qualified[i].LatencyMS != qualified[j].LatencyMS {
			return qualified[i].LatencyMS < qualified[j].LatencyMS
		}
		return qualified[i].key() < qualified[j].key()
	})
	return qualified[0], nil
}
