package models

import (
	"time"

	"gorm.io/datatypes"
)

// AssigneeTarget selects who receives an automation-generated task.
type AssigneeTarget string

// AssigneeTarget values.
const (
	// AssigneeTargetOwner assigns to the deal's current owner.
	AssigneeTargetOwner AssigneeTarget = "owner"
	// AssigneeTargetMover assigns to the user who triggered the event,
	// falling back to the owner for scheduler-originated events.
	AssigneeTargetMover AssigneeTarget = "mover"
	// AssigneeTargetSpecific assigns to a configured user.
	AssigneeTargetSpecific AssigneeTarget = "specific"
)

// RuleKind names an automation rule variant.
type RuleKind string

// RuleKind values.
const (
	// RuleKindStageTask is a single task created on a stage transition.
	RuleKindStageTask RuleKind = "stage_task"
	// RuleKindStageSequence is an ordered task batch created on a stage transition.
	RuleKindStageSequence RuleKind = "stage_sequence"
	// RuleKindStaleDeal is a reminder task for deals without recent activity.
	RuleKindStaleDeal RuleKind = "stale_deal"
	// RuleKindWonChecklist is a checklist created when a deal is won.
	RuleKindWonChecklist RuleKind = "won_checklist"
	// RuleKindOverdueTask is a follow-up task for deals with overdue open tasks.
	RuleKindOverdueTask RuleKind = "overdue_task"
)

// SequenceItem is one step of a stage-sequence rule, stored as JSON.
type SequenceItem struct {
	TitleTemplate string `json:"titleTemplate"` // Task title template.
	DueInDays     int    `json:"dueInDays"`     // Due offset in days from the trigger time.
}

// StageTaskRule creates one task when a deal enters a stage.
type StageTaskRule struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TenantID uint64 `gorm:"not null;index"` // Owning tenant.
	Enabled  bool   `gorm:"not null"`       // Whether the rule fires.

	FromStageID *uint64 `gorm:"index"`          // Source stage filter, nil matches any stage.
	ToStageID   uint64  `gorm:"not null;index"` // Target stage the deal must enter.

	TitleTemplate string `gorm:"type:varchar(220);not null"` // Task title template.
	DueInDays     int    `gorm:"not null"`                   // Due offset in days from the trigger time.

	AssigneeTarget AssigneeTarget `gorm:"type:varchar(16);not null"` // Assignment policy.
	AssigneeUserID *uint64        `gorm:"index"`                     // Required when the target is specific.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// StageSequenceRule creates an ordered batch of tasks when a deal enters a stage.
type StageSequenceRule struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TenantID uint64 `gorm:"not null;index"` // Owning tenant.
	Enabled  bool   `gorm:"not null"`       // Whether the rule fires.

	FromStageID *uint64 `gorm:"index"`          // Source stage filter, nil matches any stage.
	ToStageID   uint64  `gorm:"not null;index"` // Target stage the deal must enter.

	Items datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"` // Ordered SequenceItem list.

	AssigneeTarget AssigneeTarget `gorm:"type:varchar(16);not null"` // Assignment policy.
	AssigneeUserID *uint64        `gorm:"index"`                     // Required when the target is specific.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// StaleDealRule creates a reminder task for open deals without recent activity.
type StaleDealRule struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TenantID uint64 `gorm:"not null;index"` // Owning tenant.
	Enabled  bool   `gorm:"not null"`       // Whether the rule fires.

	StaleDays int     `gorm:"not null"` // Days without activity before a deal counts as stale.
	StageID   *uint64 `gorm:"index"`    // Optional stage filter, nil matches any stage.

	TitleTemplate string `gorm:"type:varchar(220);not null"` // Task title template.
	DueInDays     int    `gorm:"not null"`                   // Due offset in days from the scan time.

	AssigneeTarget AssigneeTarget `gorm:"type:varchar(16);not null"` // Assignment policy.
	AssigneeUserID *uint64        `gorm:"index"`                     // Required when the target is specific.

	// CooldownDays rate-limits re-firing for the same deal. Zero means the
	// rule fires on every scan while the deal stays stale.
	CooldownDays int `gorm:"not null"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// WonChecklistRule creates a checklist of tasks when a deal is marked won.
type WonChecklistRule struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TenantID uint64 `gorm:"not null;index"` // Owning tenant.
	Enabled  bool   `gorm:"not null"`       // Whether the rule fires.

	TitleTemplates datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"` // Ordered title template list.
	DueInDays      int            `gorm:"not null"`                         // Due offset applied to every checklist item.

	AssigneeTarget AssigneeTarget `gorm:"type:varchar(16);not null"` // Assignment policy.
	AssigneeUserID *uint64        `gorm:"index"`                     // Required when the target is specific.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// OverdueTaskRule creates a follow-up task for open deals that have an
// incomplete task past its due date.
type OverdueTaskRule struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TenantID uint64 `gorm:"not null;index"` // Owning tenant.
	Enabled  bool   `gorm:"not null"`       // Whether the rule fires.

	OverdueDays int `gorm:"not null"` // Days past due before a task counts as overdue.

	TitleTemplate string `gorm:"type:varchar(220);not null"` // Task title template.
	DueInDays     int    `gorm:"not null"`                   // Due offset in days from the scan time.

	AssigneeTarget AssigneeTarget `gorm:"type:varchar(16);not null"` // Assignment policy.
	AssigneeUserID *uint64        `gorm:"index"`                     // Required when the target is specific.

	// CooldownDays rate-limits re-firing for the same deal.
	CooldownDays int `gorm:"not null"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
