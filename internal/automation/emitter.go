package automation

import (
	"context"
	"time"

	"github.com/teamleap/crmauto/internal/models"
	"gorm.io/gorm"
)

// EmitParams is a fully resolved task ready for persistence.
type EmitParams struct {
	TenantID       uint64
	DealID         uint64
	Title          string
	DueAt          time.Time
	AssigneeUserID uint64
	RuleKind       models.RuleKind
	RuleID         uint64
}

// Emitter persists generated tasks. The engine does not own a task's
// lifecycle after creation.
type Emitter struct {
	db *gorm.DB
}

// NewEmitter constructs an emitter over the given connection.
func NewEmitter(db *gorm.DB) *Emitter {
	return &Emitter{db: db}
}

// Emit writes one task row and returns its ID.
func (e *Emitter) Emit(ctx context.Context, params EmitParams) (uint64, error) {
	dueAt := params.DueAt
	task := models.Task{
		TenantID:       params.TenantID,
		DealID:         params.DealID,
		Title:          params.Title,
		DueAt:          &dueAt,
		AssigneeUserID: params.AssigneeUserID,
		SourceRuleKind: string(params.RuleKind),
		SourceRuleID:   params.RuleID,
	}
	if errCreate := e.db.WithContext(ctx).Create(&task).Error; errCreate != nil {
		return 0, &EmissionError{
			RuleKind: params.RuleKind,
			RuleID:   params.RuleID,
			DealID:   params.DealID,
			Err:      errCreate,
		}
	}
	return task.ID, nil
}
