// Package eval benchmarks providers against golden datasets and keeps the
// resulting accuracy scores for the routing path to consume.
package eval

import (
	"context"
	"time"
)

// passThreshold is the minimum per-sample score counted as a pass.
const passThreshold = 0.7

// FailureClass is a coarse classification of a failed sample.
type FailureClass string

const (
	FailureNoResponse      FailureClass = "no_response"
	FailureFormatError     FailureClass = "format_error"
	FailureContentMismatch FailureClass = "content_mismatch"
	FailureExecutionError  FailureClass = "execution_error"
)

// Sample is one golden input with its expected key points.
type Sample struct {
	Key            string   `json:"key"`
	Category       string   `json:"category"`
	Difficulty     string   `json:"difficulty"`
	Input          string   `json:"input"`
	ExpectedFormat string   `json:"expected_format,omitempty"` // e.g. "json"
	KeyPoints      []string `json:"key_points"`
}

// Dataset is a named collection of samples.
type Dataset struct {
	ID      uint64   `json:"id"`
	Name    string   `json:"name"`
	Samples []Sample `json:"samples"`
}

// SampleFailure records one sample that scored below the pass threshold.
type SampleFailure struct {
	SampleKey string       `json:"sample_key"`
	Score     float64      `json:"score"`
	Class     FailureClass `json:"class"`
	Message   string       `json:"message,omitempty"`
}

// Result is the outcome of evaluating one provider against one dataset.
// Results are persisted once and never mutated.
type Result struct {
	RunID       string             `json:"run_id"`
	DatasetID   uint64             `json:"dataset_id"`
	DatasetName string             `json:"dataset_name"`
	Provider    string             `json:"provider"`
	Model       string             `json:"model"`
	Overall     float64            `json:"overall_accuracy"` // 0-1.
	PerCategory map[string]float64 `json:"per_category"`
	Failures    []SampleFailure    `json:"failures"`
	SampleCount int                `json:"sample_count"`
	EvaluatedAt time.Time          `json:"evaluated_at"`
}

// InvokeFunc invokes a provider with a sample input and returns the
// serialized output. It is the only place evaluation touches a vendor, and
// it is expected to carry its own timeout.
type InvokeFunc func(ctx context.Context, input string) (string, error)

// DatasetStore loads benchmark datasets.
type DatasetStore interface {
	Dataset(ctx context.Context, name string) (Dataset, error)
}
