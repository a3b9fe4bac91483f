package eval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelgate/modelgate/internal/models"
	"gorm.io/gorm"
)

// GormDatasetStore loads datasets and their samples from the database.
type GormDatasetStore struct {
	db *gorm.DB
}

// NewGormDatasetStore constructs a DB-backed dataset store.
func NewGormDatasetStore(db *gorm.DB) *GormDatasetStore {
	return &GormDatasetStore{db: db}
}

// Dataset implements DatasetStore.
func (s *GormDatasetStore) Dataset(ctx context.Context, name string) (Dataset, error) {
	if s == nil || s.db == nil {
		return Dataset{}, errors.New("eval: nil dataset store")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Dataset{}, errors.New("eval: empty dataset name")
	}

	var row models.EvaluationDataset
	if errFind := s.db.WithContext(ctx).
		Where("name = ?", name).
		Take(&row).Error; errFind != nil {
		return Dataset{}, fmt.Errorf("eval: dataset %q: %w", name, errFind)
	}

	var sampleRows []models.EvaluationSample
	if errFind := s.db.WithContext(ctx).
		Where("dataset_id = ?", row.ID).
		Order("id ASC").
		Find(&sampleRows).Error; errFind != nil {
		return Dataset{}, fmt.Errorf("eval: dataset %q samples: %w", name, errFind)
	}

	dataset := Dataset{ID: row.ID, Name: row.Name, Samples: make([]Sample, 0, len(sampleRows))}
	for _, sampleRow := range sampleRows {
		sample := Sample{
			Key:            sampleRow.SampleKey,
			Category:       sampleRow.Category,
			Difficulty:     sampleRow.Difficulty,
			Input:          sampleRow.Input,
			ExpectedFormat: sampleRow.ExpectedFormat,
		}
		if len(sampleRow.KeyPoints) > 0 {
			if errUnmarshal := json.Unmarshal(sampleRow.KeyPoints, &sample.KeyPoints); errUnmarshal != nil {
				return Dataset{}, fmt.Errorf("eval: dataset %q sample %q key points: %w", name, sampleRow.SampleKey, errUnmarshal)
			}
		}
		dataset.Samples = append(dataset.Samples, sample)
	}
	return dataset, nil
}

// StaticDatasetStore serves datasets from memory. Intended for tests.
type StaticDatasetStore struct {
	Datasets map[string]Dataset
}

// Dataset implements DatasetStore.
func (s *StaticDatasetStore) Dataset(_ context.Context, name string) (Dataset, error) {
	if s != nil {
		if dataset, ok := s.Datasets[name]; ok {
			return dataset, nil
		}
	}
	return Dataset{}, fmt.Errorf("eval: dataset %q not found", name)
}

var (
	_ DatasetStore = (*GormDatasetStore)(nil)
	_ DatasetStore = (*StaticDatasetStore)(nil)
)
