package models

import (
	"time"

	"gorm.io/datatypes"
)

// PolicyTable stores a versioned routing policy table payload.
//
// Exactly one row is active at a time; swapping in a new table inserts a new
// row and flips the active flag in one transaction so readers never observe a
// half-applied table.
type PolicyTable struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Version int64 `gorm:"not null;uniqueIndex"` // Monotonic table version.
	Active  bool  `gorm:"not null;index"`       // Active table marker.

	Payload datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"` // Serialized rules and defaults.

	ModifiedBy string    `gorm:"type:text;not null"`      // Actor that produced this version.
	CreatedAt  time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt  time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (PolicyTable) TableName() string {
	return "policy_tables"
}
