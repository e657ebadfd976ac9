package models

import "time"

// DealStatus captures a deal's lifecycle state.
type DealStatus string

// DealStatus values.
const (
	// DealStatusOpen marks a deal still moving through the pipeline.
	DealStatusOpen DealStatus = "open"
	// DealStatusWon marks a deal closed as won.
	DealStatusWon DealStatus = "won"
	// DealStatusLost marks a deal closed as lost.
	DealStatusLost DealStatus = "lost"
)

// Deal is a pipeline opportunity moving through stages toward won/lost.
//
// UpdatedAt doubles as the freshness signal for stale-deal automation: a deal
// is stale when UpdatedAt is older than now minus the rule's StaleDays.
type Deal struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TenantID   uint64 `gorm:"not null;index"` // Owning tenant.
	PipelineID uint64 `gorm:"not null;index"` // Parent pipeline.
	StageID    uint64 `gorm:"not null;index"` // Current stage.

	Name     string  `gorm:"type:text;not null"`           // Display name.
	Amount   float64 `gorm:"type:decimal(20,4);default:0"` // Monetary value.
	Currency string  `gorm:"type:varchar(8);default:''"`   // ISO currency code.

	OwnerUserID uint64 `gorm:"not null;index"` // Deal owner.

	Status DealStatus `gorm:"type:varchar(8);not null;default:'open';index"` // Lifecycle state.
	WonAt  *time.Time // Set when the deal enters a closed-won stage.
	LostAt *time.Time // Set when the deal enters a closed-lost stage.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last activity timestamp.
}

// StageMove records one stage transition of a deal.
//
// Its primary key is the trigger-event identity used by automation dedupe
// keys, so redelivering the same transition can never emit twice.
type StageMove struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key, event identity.

	TenantID uint64 `gorm:"not null;index"` // Owning tenant.
	DealID   uint64 `gorm:"not null;index"` // Moved deal.

	FromStageID *uint64 `gorm:"index"`          // Previous stage, nil for the initial placement.
	ToStageID   uint64  `gorm:"not null;index"` // New stage.

	MovedByUserID uint64 `gorm:"not null"` // Actor who performed the move.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Transition timestamp.
}
