package models

import "time"

// Pipeline is a tenant's ordered set of deal stages.
type Pipeline struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TenantID  uint64 `gorm:"not null;index"`         // Owning tenant.
	Name      string `gorm:"type:text;not null"`     // Display name.
	IsDefault bool   `gorm:"not null;default:false"` // Marks the tenant's default pipeline.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// Stage is a named step inside a pipeline.
type Stage struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TenantID   uint64 `gorm:"not null;index"` // Owning tenant.
	PipelineID uint64 `gorm:"not null;index"` // Parent pipeline.

	Name      string `gorm:"type:text;not null"` // Display name.
	SortOrder int    `gorm:"not null;default:0"` // Board ordering.

	IsClosedWon  bool `gorm:"not null;default:false"` // Entering this stage marks the deal won.
	IsClosedLost bool `gorm:"not null;default:false"` // Entering this stage marks the deal lost.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
