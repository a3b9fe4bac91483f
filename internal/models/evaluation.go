package models

import (
	"time"

	"gorm.io/datatypes"
)

// EvaluationDataset stores a benchmark dataset.
type EvaluationDataset struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name string `gorm:"type:varchar(128);not null;uniqueIndex"` // Dataset name.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (EvaluationDataset) TableName() string {
	return "evaluation_datasets"
}

// EvaluationSample stores one golden input/expected output pair.
type EvaluationSample struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	DatasetID uint64 `gorm:"not null;index"` // Owning dataset ID.

	SampleKey  string `gorm:"type:varchar(128);not null"` // Stable sample identifier.
	Category   string `gorm:"type:varchar(64);index"`     // Category tag.
	Difficulty string `gorm:"type:varchar(32)"`           // Difficulty tag.

	Input          string         `gorm:"type:text;not null"` // Golden input.
	ExpectedFormat string         `gorm:"type:varchar(32)"`   // Expected output format, e.g. "json".
	KeyPoints      datatypes.JSON `gorm:"type:jsonb"`         // Expected key-point list.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// TableName overrides the default table name.
func (EvaluationSample) TableName() string {
	return "evaluation_samples"
}

// EvaluationRun stores one provider benchmark result. Rows are written once
// and never mutated afterwards.
type EvaluationRun struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	RunID     string `gorm:"type:varchar(64);not null;uniqueIndex"` // External run identifier.
	DatasetID uint64 `gorm:"not null;index"`                        // Dataset evaluated.

	Provider string `gorm:"type:text;not null;index"` // Provider name.
	Model    string `gorm:"type:text;not null"`       // Model name.

	OverallAccuracy float64        `gorm:"not null;default:0"` // Mean score across samples, 0-1.
	Result          datatypes.JSON `gorm:"type:jsonb;not null"` // Full result payload.

	EvaluatedAt time.Time `gorm:"not null;index"`          // Evaluation timestamp.
	CreatedAt   time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// TableName overrides the default table name.
func (EvaluationRun) TableName() string {
	return "evaluation_runs"
}
