package models

import "time"

// Task is a to-do generated either by a user or by automation.
//
// Automation-generated tasks carry SourceRuleKind/SourceRuleID back-references
// for traceability; the automation engine never mutates a task after creation.
type Task struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TenantID uint64 `gorm:"not null;index"` // Owning tenant.
	DealID   uint64 `gorm:"not null;index"` // Related deal.

	Title     string     `gorm:"type:varchar(220);not null"` // Task title.
	DueAt     *time.Time `gorm:"index"`                      // Due date, nil when unscheduled.
	Completed bool       `gorm:"not null;default:false"`     // Completion flag.

	AssigneeUserID uint64 `gorm:"not null;index"` // Assigned user.

	SourceRuleKind string `gorm:"type:varchar(32);default:'';index"` // Originating rule variant, empty for manual tasks.
	SourceRuleID   uint64 `gorm:"default:0"`                         // Originating rule ID, 0 for manual tasks.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
