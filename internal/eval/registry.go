package eval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/modelgate/modelgate/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Registry runs provider benchmarks and persists their results for audit.
type Registry struct {
	db       *gorm.DB
	datasets DatasetStore
	clock    func() time.Time
}

// NewRegistry constructs a registry. db may be nil; results are then kept
// only in the returned value.
func NewRegistry(db *gorm.DB, datasets DatasetStore) *Registry {
	return &Registry{
		db:       db,
		datasets: datasets,
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate runs provider/model against the named dataset. Per-sample
// provider errors are recorded as failures and evaluation continues; only a
// dataset load failure aborts the run.
func (r *Registry) Evaluate(ctx context.Context, datasetName, provider, model string, invoke InvokeFunc) (*Result, error) {
	if r == nil || r.datasets == nil {
		return nil, errors.New("eval: registry not initialized")
	}
	if invoke == nil {
		return nil, errors.New("eval: nil invoke func")
	}

	dataset, errLoad := r.datasets.Dataset(ctx, datasetName)
	if errLoad != nil {
		return nil, fmt.Errorf("eval: load dataset %q: %w", datasetName, errLoad)
	}

	result := &Result{
		RunID:       uuid.NewString(),
		DatasetID:   dataset.ID,
		DatasetName: dataset.Name,
		Provider:    provider,
		Model:       model,
		PerCategory: map[string]float64{},
		SampleCount: len(dataset.Samples),
		EvaluatedAt: r.clock(),
	}

	categoryTotals := map[string]float64{}
	categoryCounts := map[string]int{}
	totalScore := 0.0

	for _, sample := range dataset.Samples {
		if ctx != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}

		output, errInvoke := invoke(ctx, sample.Input)
		score := 0.0
		if errInvoke == nil {
			score = scoreSample(sample, output)
		}

		totalScore += score
		categoryTotals[sample.Category] += score
		categoryCounts[sample.Category]++

		if errInvoke != nil || score < passThreshold {
			failure := SampleFailure{
				SampleKey: sample.Key,
				Score:     score,
				Class:     classifyFailure(sample, output, errInvoke),
			}
			if errInvoke != nil {
				failure.Message = errInvoke.Error()
			}
			result.Failures = append(result.Failures, failure)
		}
	}

	if len(dataset.Samples) > 0 {
		result.Overall = totalScore / float64(len(dataset.Samples))
	}
	for category, total := range categoryTotals {
		result.PerCategory[category] = total / float64(categoryCounts[category])
	}

	if errPersist := r.persist(ctx, result); errPersist != nil {
		log.WithError(errPersist).Warn("eval: failed to persist evaluation result")
	}
	return result, nil
}

// LatestAccuracies returns the most recent overall accuracy per
// provider/model pair, on the 0-100 scale the selector expects.
func (r *Registry) LatestAccuracies(ctx context.Context) (map[string]float64, error) {
	if r == nil || r.db == nil {
		return map[string]float64{}, nil
	}

	var rows []models.EvaluationRun
	if errFind := r.db.WithContext(ctx).
		Select("provider", "model", "overall_accuracy", "evaluated_at").
		Order("evaluated_at DESC").
		Find(&rows).Error; errFind != nil {
		return nil, errFind
	}

	out := make(map[string]float64)
	for _, row := range rows {
		key := row.Provider + "/" + row.Model
		if _, seen := out[key]; seen {
			continue
		}
		out[key] = row.OverallAccuracy * 100
	}
	return out, nil
}

// Runs returns persisted evaluation results, newest first.
func (r *Registry) Runs(ctx context.Context, limit int) ([]Result, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	var rows []models.EvaluationRun
	if errFind := r.db.WithContext(ctx).
		Order("evaluated_at DESC").
		Limit(limit).
		Find(&rows).Error; errFind != nil {
		return nil, errFind
	}

	out := make([]Result, 0, len(rows))
	for _, row := range rows {
		var result Result
		if errUnmarshal := json.Unmarshal(row.Result, &result); errUnmarshal != nil {
			continue
		}
		out = append(out, result)
	}
	return out, nil
}

func (r *Registry) persist(ctx context.Context, result *Result) error {
	if r.db == nil {
		return nil
	}
	payload, errMarshal := json.Marshal(result)
	if errMarshal != nil {
		return errMarshal
	}
	row := models.EvaluationRun{
		RunID:           result.RunID,
		DatasetID:       result.DatasetID,
		Provider:        result.Provider,
		Model:           result.Model,
		OverallAccuracy: result.Overall,
		Result:          datatypes.JSON(payload),
		EvaluatedAt:     result.EvaluatedAt,
	}
	return r.db.WithContext(ctx).Create(&row).Error
}
