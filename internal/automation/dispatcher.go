package automation

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/teamleap/crmauto/internal/models"
)

// Dispatcher evaluates transition-triggered rules synchronously inside the
// pipeline operation that produced the event.
//
// Rules are evaluated independently: a failure in one rule is logged with
// rule and deal identifiers and never aborts its siblings, and no automation
// failure propagates to the business transaction. Dedupe keys make event
// redelivery safe, so partial success is acceptable.
type Dispatcher struct {
	db        *gorm.DB
	ledger    *Ledger
	emitter   *Emitter
	directory Directory
}

// NewDispatcher constructs a dispatcher with database-backed collaborators.
func NewDispatcher(db *gorm.DB) *Dispatcher {
	return &Dispatcher{
		db:        db,
		ledger:    NewLedger(db),
		emitter:   NewEmitter(db),
		directory: NewGormDirectory(db),
	}
}

// dueAt computes a step's due date from the trigger timestamp. Sequence
// steps all derive from the same trigger instant, never from each other.
func dueAt(at time.Time, days int) time.Time {
	return at.Add(time.Duration(days) * 24 * time.Hour)
}

// StageMoved evaluates stage-task and stage-sequence rules against a stage
// transition event.
func (d *Dispatcher) StageMoved(ctx context.Context, ev TriggerEvent) {
	var taskRules []models.StageTaskRule
	errTask := d.db.WithContext(ctx).
		Where("tenant_id = ? AND enabled = ? AND to_stage_id = ?", ev.TenantID, true, ev.ToStageID).
		Where("from_stage_id IS NULL OR from_stage_id = ?", ev.FromStageID).
		Find(&taskRules).Error
	if errTask != nil {
		log.WithError(errTask).WithField("deal_id", ev.Deal.DealID).Warn("automation: load stage task rules failed")
	}
	for i := range taskRules {
		if errRule := d.fireStageTask(ctx, &taskRules[i], ev); errRule != nil {
			log.WithError(errRule).WithFields(log.Fields{
				"rule_id": taskRules[i].ID,
				"deal_id": ev.Deal.DealID,
			}).Warn("automation: stage task rule failed")
		}
	}

	var seqRules []models.StageSequenceRule
	errSeq := d.db.WithContext(ctx).
		Where("tenant_id = ? AND enabled = ? AND to_stage_id = ?", ev.TenantID, true, ev.ToStageID).
		Where("from_stage_id IS NULL OR from_stage_id = ?", ev.FromStageID).
		Find(&seqRules).Error
	if errSeq != nil {
		log.WithError(errSeq).WithField("deal_id", ev.Deal.DealID).Warn("automation: load stage sequence rules failed")
	}
	for i := range seqRules {
		if errRule := d.fireStageSequence(ctx, &seqRules[i], ev); errRule != nil {
			log.WithError(errRule).WithFields(log.Fields{
				"rule_id": seqRules[i].ID,
				"deal_id": ev.Deal.DealID,
			}).Warn("automation: stage sequence rule failed")
		}
	}
}

// DealWon evaluates won-checklist rules against a win transition event.
func (d *Dispatcher) DealWon(ctx context.Context, ev TriggerEvent) {
	var rules []models.WonChecklistRule
	errFind := d.db.WithContext(ctx).
		Where("tenant_id = ? AND enabled = ?", ev.TenantID, true).
		Find(&rules).Error
	if errFind != nil {
		log.WithError(errFind).WithField("deal_id", ev.Deal.DealID).Warn("automation: load won checklist rules failed")
	}
	for i := range rules {
		if errRule := d.fireWonChecklist(ctx, &rules[i], ev); errRule != nil {
			log.WithError(errRule).WithFields(log.Fields{
				"rule_id": rules[i].ID,
				"deal_id": ev.Deal.DealID,
			}).Warn("automation: won checklist rule failed")
		}
	}
}

// fireStageTask emits the single task of a stage-task rule.
func (d *Dispatcher) fireStageTask(ctx context.Context, rule *models.StageTaskRule, ev TriggerEvent) error {
	assignee, errResolve := verifiedAssignee(ctx, d.directory, models.RuleKindStageTask, rule.ID, rule.AssigneeTarget, rule.AssigneeUserID, ev)
	if errResolve != nil {
		return errResolve
	}

	granted, errClaim := d.ledger.ClaimEvent(ctx, ev.TenantID, models.RuleKindStageTask, rule.ID, ev.Deal.DealID, ev.MoveID, ev.At)
	if errClaim != nil {
		return errClaim
	}
	if !granted {
		return nil
	}

	_, errEmit := d.emitter.Emit(ctx, EmitParams{
		TenantID:       ev.TenantID,
		DealID:         ev.Deal.DealID,
		Title:          Render(rule.TitleTemplate, renderContextFor(ev)),
		DueAt:          dueAt(ev.At, rule.DueInDays),
		AssigneeUserID: assignee,
		RuleKind:       models.RuleKindStageTask,
		RuleID:         rule.ID,
	})
	return errEmit
}

// fireStageSequence emits all steps of a sequence rule as an atomic group.
// The group shares one claim: a duplicate means the event was already
// processed, so either all steps are created or none are.
func (d *Dispatcher) fireStageSequence(ctx context.Context, rule *models.StageSequenceRule, ev TriggerEvent) error {
	var items []models.SequenceItem
	if errDecode := json.Unmarshal(rule.Items, &items); errDecode != nil {
		return errDecode
	}
	if len(items) == 0 {
		return nil
	}

	assignee, errResolve := verifiedAssignee(ctx, d.directory, models.RuleKindStageSequence, rule.ID, rule.AssigneeTarget, rule.AssigneeUserID, ev)
	if errResolve != nil {
		return errResolve
	}

	granted, errClaim := d.ledger.ClaimEvent(ctx, ev.TenantID, models.RuleKindStageSequence, rule.ID, ev.Deal.DealID, ev.MoveID, ev.At)
	if errClaim != nil {
		return errClaim
	}
	if !granted {
		return nil
	}

	renderCtx := renderContextFor(ev)
	for _, item := range items {
		_, errEmit := d.emitter.Emit(ctx, EmitParams{
			TenantID:       ev.TenantID,
			DealID:         ev.Deal.DealID,
			Title:          Render(item.TitleTemplate, renderCtx),
			DueAt:          dueAt(ev.At, item.DueInDays),
			AssigneeUserID: assignee,
			RuleKind:       models.RuleKindStageSequence,
			RuleID:         rule.ID,
		})
		if errEmit != nil {
			return errEmit
		}
	}
	return nil
}

// fireWonChecklist emits one task per checklist template.
func (d *Dispatcher) fireWonChecklist(ctx context.Context, rule *models.WonChecklistRule, ev TriggerEvent) error {
	var templates []string
	if errDecode := json.Unmarshal(rule.TitleTemplates, &templates); errDecode != nil {
		return errDecode
	}
	if len(templates) == 0 {
		return nil
	}

	assignee, errResolve := verifiedAssignee(ctx, d.directory, models.RuleKindWonChecklist, rule.ID, rule.AssigneeTarget, rule.AssigneeUserID, ev)
	if errResolve != nil {
		return errResolve
	}

	granted, errClaim := d.ledger.ClaimEvent(ctx, ev.TenantID, models.RuleKindWonChecklist, rule.ID, ev.Deal.DealID, ev.MoveID, ev.At)
	if errClaim != nil {
		return errClaim
	}
	if !granted {
		return nil
	}

	renderCtx := renderContextFor(ev)
	for _, template := range templates {
		_, errEmit := d.emitter.Emit(ctx, EmitParams{
			TenantID:       ev.TenantID,
			DealID:         ev.Deal.DealID,
			Title:          Render(template, renderCtx),
			DueAt:          dueAt(ev.At, rule.DueInDays),
			AssigneeUserID: assignee,
			RuleKind:       models.RuleKindWonChecklist,
			RuleID:         rule.ID,
		})
		if errEmit != nil {
			return errEmit
		}
	}
	return nil
}

