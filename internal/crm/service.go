package crm

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/teamleap/crmauto/internal/automation"
	"github.com/teamleap/crmauto/internal/models"
)

// Pipeline service errors.
var (
	// ErrDealNotFound indicates the deal does not exist in the tenant.
	ErrDealNotFound = errors.New("crm: deal not found")
	// ErrInvalidStage indicates the stage does not belong to the deal's pipeline.
	ErrInvalidStage = errors.New("crm: invalid stage")
)

// defaultStages seeds a new tenant's pipeline.
var defaultStages = []struct {
	Name         string
	SortOrder    int
	IsClosedWon  bool
	IsClosedLost bool
}{
	{Name: "Lead", SortOrder: 10},
	{Name: "Qualified", SortOrder: 20},
	{Name: "Proposal", SortOrder: 30},
	{Name: "Negotiation", SortOrder: 40},
	{Name: "Won", SortOrder: 90, IsClosedWon: true},
	{Name: "Lost", SortOrder: 100, IsClosedLost: true},
}

// Service implements pipeline operations and invokes the automation
// dispatcher synchronously inside stage-move and win transitions.
type Service struct {
	db         *gorm.DB
	dispatcher *automation.Dispatcher
}

// NewService constructs the pipeline service.
func NewService(db *gorm.DB, dispatcher *automation.Dispatcher) *Service {
	return &Service{db: db, dispatcher: dispatcher}
}

// BootstrapDefaultPipeline creates the tenant's default pipeline with the
// standard stage set when none exists yet.
func (s *Service) BootstrapDefaultPipeline(ctx context.Context, tenantID uint64) (*models.Pipeline, error) {
	var existing models.Pipeline
	errFind := s.db.WithContext(ctx).
		Where("tenant_id = ? AND is_default = ?", tenantID, true).
		First(&existing).Error
	if errFind == nil {
		return &existing, nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, errFind
	}

	pipeline := models.Pipeline{
		TenantID:  tenantID,
		Name:      "Default Pipeline",
		IsDefault: true,
	}
	if errCreate := s.db.WithContext(ctx).Create(&pipeline).Error; errCreate != nil {
		return nil, errCreate
	}

	stages := make([]models.Stage, 0, len(defaultStages))
	for _, spec := range defaultStages {
		stages = append(stages, models.Stage{
			TenantID:     tenantID,
			PipelineID:   pipeline.ID,
			Name:         spec.Name,
			SortOrder:    spec.SortOrder,
			IsClosedWon:  spec.IsClosedWon,
			IsClosedLost: spec.IsClosedLost,
		})
	}
	if errCreate := s.db.WithContext(ctx).Create(&stages).Error; errCreate != nil {
		return nil, errCreate
	}
	return &pipeline, nil
}

// MoveStage moves a deal into a stage, records the transition and dispatches
// the matching automation rules synchronously.
//
// Automation failures degrade to a logged warning: they never fail the stage
// move itself, and re-issuing the move is safe because dedupe keys make
// event redelivery a no-op.
func (s *Service) MoveStage(ctx context.Context, tenantID, actorUserID, dealID, toStageID uint64) (*models.Deal, error) {
	var deal models.Deal
	errDeal := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, dealID).
		First(&deal).Error
	if errDeal != nil {
		if errors.Is(errDeal, gorm.ErrRecordNotFound) {
			return nil, ErrDealNotFound
		}
		return nil, errDeal
	}

	var stage models.Stage
	errStage := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ? AND pipeline_id = ?", tenantID, toStageID, deal.PipelineID).
		First(&stage).Error
	if errStage != nil {
		if errors.Is(errStage, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidStage
		}
		return nil, errStage
	}

	now := time.Now().UTC()
	fromStageID := deal.StageID

	deal.StageID = stage.ID
	switch {
	case stage.IsClosedWon:
		deal.Status = models.DealStatusWon
		deal.WonAt = &now
		deal.LostAt = nil
	case stage.IsClosedLost:
		deal.Status = models.DealStatusLost
		deal.LostAt = &now
		deal.WonAt = nil
	default:
		deal.Status = models.DealStatusOpen
		deal.WonAt = nil
		deal.LostAt = nil
	}

	move := models.StageMove{
		TenantID:      tenantID,
		DealID:        deal.ID,
		FromStageID:   &fromStageID,
		ToStageID:     stage.ID,
		MovedByUserID: actorUserID,
		CreatedAt:     now,
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errSave := tx.Save(&deal).Error; errSave != nil {
			return errSave
		}
		return tx.Create(&move).Error
	})
	if errTx != nil {
		return nil, fmt.Errorf("crm: move stage: %w", errTx)
	}

	ev, errEvent := s.buildMoveEvent(ctx, &deal, &move, &stage, now)
	if errEvent != nil {
		log.WithError(errEvent).WithField("deal_id", deal.ID).Warn("crm: build automation event failed")
		return &deal, nil
	}

	s.dispatcher.StageMoved(ctx, ev)
	if stage.IsClosedWon {
		wonEv := ev
		wonEv.Kind = automation.EventDealWon
		s.dispatcher.DealWon(ctx, wonEv)
	}

	return &deal, nil
}

// buildMoveEvent assembles the trigger event snapshot for a stage move.
func (s *Service) buildMoveEvent(ctx context.Context, deal *models.Deal, move *models.StageMove, toStage *models.Stage, at time.Time) (automation.TriggerEvent, error) {
	var fromStageName string
	if move.FromStageID != nil {
		var fromStage models.Stage
		errFrom := s.db.WithContext(ctx).
			Select("name").
			Where("tenant_id = ? AND id = ?", deal.TenantID, *move.FromStageID).
			First(&fromStage).Error
		if errFrom == nil {
			fromStageName = fromStage.Name
		}
	}

	ownerName := s.displayName(ctx, deal.TenantID, deal.OwnerUserID)
	actorName := s.displayName(ctx, deal.TenantID, move.MovedByUserID)

	return automation.TriggerEvent{
		Kind:     automation.EventStageMoved,
		TenantID: deal.TenantID,
		Deal: automation.DealSnapshot{
			DealID:      deal.ID,
			Name:        deal.Name,
			Amount:      deal.Amount,
			Currency:    deal.Currency,
			OwnerUserID: deal.OwnerUserID,
			OwnerName:   ownerName,
		},
		MoveID:        move.ID,
		FromStageID:   move.FromStageID,
		ToStageID:     toStage.ID,
		FromStageName: fromStageName,
		ToStageName:   toStage.Name,
		ActorUserID:   move.MovedByUserID,
		ActorName:     actorName,
		At:            at,
	}, nil
}

// displayName looks up a user's display name, returning empty on miss.
func (s *Service) displayName(ctx context.Context, tenantID, userID uint64) string {
	if userID == 0 {
		return ""
	}
	var user models.User
	errFind := s.db.WithContext(ctx).
		Select("display_name").
		Where("tenant_id = ? AND id = ?", tenantID, userID).
		First(&user).Error
	if errFind != nil {
		return ""
	}
	return user.DisplayName
}
