package eval

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/modelgate/modelgate/internal/db"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := db.Open(":memory:")
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func staticStore(samples []Sample) *StaticDatasetStore {
	return &StaticDatasetStore{
		Datasets: map[string]Dataset{
			"golden": {ID: 1, Name: "golden", Samples: samples},
		},
	}
}

func TestScoreSampleNormalization(t *testing.T) {
	sample := Sample{KeyPoints: []string{"Binary_Search", "TIME complexity"}}

	score := scoreSample(sample, "We use binary search here; time_complexity is O(log n).")
	if score != 1 {
		t.Fatalf("expected full score with normalized matching, got %v", score)
	}

	score = scoreSample(sample, "We sort the list first.")
	if score != 0 {
		t.Fatalf("expected zero score, got %v", score)
	}

	score = scoreSample(sample, "binary search only")
	if score != 0.5 {
		t.Fatalf("expected half score, got %v", score)
	}
}

func TestScoreSampleEmptyKeyPointsPasses(t *testing.T) {
	if score := scoreSample(Sample{}, "anything"); score != 1 {
		t.Fatalf("expected score 1 for empty key points, got %v", score)
	}
}

func TestClassifyFailure(t *testing.T) {
	cases := []struct {
		name   string
		sample Sample
		output string
		err    error
		want   FailureClass
	}{
		{"execution error", Sample{}, "", errors.New("timeout"), FailureExecutionError},
		{"no response", Sample{}, "   ", nil, FailureNoResponse},
		{"format error", Sample{ExpectedFormat: "json"}, "not json", nil, FailureFormatError},
		{"content mismatch", Sample{ExpectedFormat: "json"}, `{"ok":true}`, nil, FailureContentMismatch},
		{"plain mismatch", Sample{}, "wrong answer", nil, FailureContentMismatch},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyFailure(tc.sample, tc.output, tc.err)
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestEvaluateComputesOverallAndCategoryAccuracy(t *testing.T) {
	samples := []Sample{
		{Key: "s-1", Category: "coding", KeyPoints: []string{"loop"}},
		{Key: "s-2", Category: "coding", KeyPoints: []string{"recursion"}},
		{Key: "s-3", Category: "math", KeyPoints: []string{"prime"}},
	}
	registry := NewRegistry(nil, staticStore(samples))

	outputs := map[string]string{
		"s-1": "use a loop",
		"s-2": "no idea",
		"s-3": "check prime factors",
	}
	nextKey := 0
	keys := []string{"s-1", "s-2", "s-3"}
	invoke := func(_ context.Context, _ string) (string, error) {
		out := outputs[keys[nextKey]]
		nextKey++
		return out, nil
	}

	result, errEval := registry.Evaluate(context.Background(), "golden", "provider-a", "model-x", invoke)
	if errEval != nil {
		t.Fatalf("evaluate: %v", errEval)
	}

	if math.Abs(result.Overall-2.0/3.0) > 1e-9 {
		t.Fatalf("expected overall 2/3, got %v", result.Overall)
	}
	if math.Abs(result.PerCategory["coding"]-0.5) > 1e-9 {
		t.Fatalf("expected coding accuracy 0.5, got %v", result.PerCategory["coding"])
	}
	if result.PerCategory["math"] != 1 {
		t.Fatalf("expected math accuracy 1, got %v", result.PerCategory["math"])
	}
	if len(result.Failures) != 1 || result.Failures[0].SampleKey != "s-2" {
		t.Fatalf("expected one failure for s-2, got %+v", result.Failures)
	}
	if result.RunID == "" {
		t.Fatalf("expected run id assigned")
	}
}

func TestEvaluateContinuesPastProviderErrors(t *testing.T) {
	samples := []Sample{
		{Key: "s-1", Category: "coding", KeyPoints: []string{"loop"}},
		{Key: "s-2", Category: "coding", KeyPoints: []string{"recursion"}},
	}
	registry := NewRegistry(nil, staticStore(samples))

	calls := 0
	invoke := func(_ context.Context, _ string) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("provider unavailable")
		}
		return "use recursion", nil
	}

	result, errEval := registry.Evaluate(context.Background(), "golden", "provider-a", "model-x", invoke)
	if errEval != nil {
		t.Fatalf("evaluate: %v", errEval)
	}
	if calls != 2 {
		t.Fatalf("expected evaluation to continue past error, got %d calls", calls)
	}
	if result.Overall != 0.5 {
		t.Fatalf("expected overall 0.5, got %v", result.Overall)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("expected one failure, got %+v", result.Failures)
	}
	if result.Failures[0].Class != FailureExecutionError {
		t.Fatalf("expected execution_error class, got %q", result.Failures[0].Class)
	}
	if result.Failures[0].Message == "" {
		t.Fatalf("expected provider error message recorded")
	}
}

func TestEvaluatePersistsAndListsRuns(t *testing.T) {
	conn := openTestDB(t)
	registry := NewRegistry(conn, staticStore([]Sample{
		{Key: "s-1", Category: "coding", KeyPoints: []string{"loop"}},
	}))

	invoke := func(_ context.Context, _ string) (string, error) { return "use a loop", nil }

	first, errEval := registry.Evaluate(context.Background(), "golden", "provider-a", "model-x", invoke)
	if errEval != nil {
		t.Fatalf("evaluate: %v", errEval)
	}
	if _, errEval = registry.Evaluate(context.Background(), "golden", "provider-b", "model-y", invoke); errEval != nil {
		t.Fatalf("evaluate second: %v", errEval)
	}

	runs, errRuns := registry.Runs(context.Background(), 10)
	if errRuns != nil {
		t.Fatalf("runs: %v", errRuns)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 persisted runs, got %d", len(runs))
	}

	accuracies, errAcc := registry.LatestAccuracies(context.Background())
	if errAcc != nil {
		t.Fatalf("latest accuracies: %v", errAcc)
	}
	if accuracies["provider-a/model-x"] != first.Overall*100 {
		t.Fatalf("expected accuracy on 0-100 scale, got %v", accuracies["provider-a/model-x"])
	}
}

func TestEvaluateUnknownDatasetFails(t *testing.T) {
	registry := NewRegistry(nil, staticStore(nil))
	invoke := func(_ context.Context, _ string) (string, error) { return "", nil }

	if _, errEval := registry.Evaluate(context.Background(), "missing", "p", "m", invoke); errEval == nil {
		t.Fatalf("expected dataset load failure")
	}
}
