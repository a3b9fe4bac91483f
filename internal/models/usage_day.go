package models

import "time"

// UsageDay records per-user consumption for a single calendar day.
//
// The (user_id, day) pair is the partition key: counters only ever grow
// within a day, and a new row is created once the date rolls over. Limits are
// denormalized onto the row so a mid-day tier change cannot silently alter an
// already-created record.
type UsageDay struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID string `gorm:"type:varchar(128);not null;uniqueIndex:idx_usage_user_day"` // External user ID.
	Day    string `gorm:"type:varchar(10);not null;uniqueIndex:idx_usage_user_day"`  // Calendar day, YYYY-MM-DD (UTC).

	TierName string `gorm:"type:varchar(64);not null"` // Tier at record creation time.

	Level1Count int64 `gorm:"not null;default:0"` // Admitted level-1 requests.
	Level2Count int64 `gorm:"not null;default:0"` // Admitted level-2 requests.
	Tokens      int64 `gorm:"not null;default:0"` // Consumed tokens.
	CostMicros  int64 `gorm:"not null;default:0"` // Consumed cost in micros.

	Level1Limit     int64 `gorm:"not null;default:0"` // Limits snapshot at creation.
	Level2Limit     int64 `gorm:"not null;default:0"`
	TokenLimit      int64 `gorm:"not null;default:0"`
	CostLimitMicros int64 `gorm:"not null;default:0"`

	Blocked       bool   `gorm:"not null;default:false"` // Blocked marker.
	BlockedReason string `gorm:"type:text"`              // Why the record is blocked.

	ResetAt time.Time `gorm:"not null"` // Next UTC midnight after Day.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (UsageDay) TableName() string {
	return "usage_days"
}
