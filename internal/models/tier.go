package models

import "time"

// Tier defines daily limits and cost ceilings for a named user tier.
type Tier struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name string `gorm:"type:varchar(64);not null;uniqueIndex"` // Tier name.

	Level1DailyLimit int64 `gorm:"not null;default:0"` // Daily level-1 request limit.
	Level2DailyLimit int64 `gorm:"not null;default:0"` // Daily level-2 request limit.
	DailyTokenLimit  int64 `gorm:"not null;default:0"` // Daily token budget.

	DailyCostMicros   int64 `gorm:"not null;default:0"` // Daily cost ceiling in micros.
	MonthlyCostMicros int64 `gorm:"not null;default:0"` // Monthly cost ceiling in micros.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (Tier) TableName() string {
	return "tiers"
}

// User associates an external user identifier with a tier.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ExternalID string `gorm:"type:varchar(128);not null;uniqueIndex"` // Caller-facing user ID.
	TierName   string `gorm:"type:varchar(64);not null;index"`        // Assigned tier name.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (User) TableName() string {
	return "users"
}
