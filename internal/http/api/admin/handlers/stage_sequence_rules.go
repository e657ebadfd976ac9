package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/teamleap/crmauto/internal/models"
)

// StageSequenceRuleHandler manages admin CRUD endpoints for stage-sequence rules.
type StageSequenceRuleHandler struct {
	db *gorm.DB // Database handle for automation rules.
}

// NewStageSequenceRuleHandler constructs a stage-sequence rule handler.
func NewStageSequenceRuleHandler(db *gorm.DB) *StageSequenceRuleHandler {
	return &StageSequenceRuleHandler{db: db}
}

// validateSequenceItems checks the ordered step list and returns its JSON
// encoding. The second return is an error message, empty when valid.
func validateSequenceItems(items []models.SequenceItem) (datatypes.JSON, string) {
	if len(items) == 0 {
		return nil, "items cannot be empty"
	}
	if len(items) > maxChecklistItems {
		return nil, "items exceeds 50 entries"
	}
	for _, item := range items {
		if msg := validateTitleTemplate(item.TitleTemplate); msg != "" {
			return nil, msg
		}
		if item.DueInDays < 0 {
			return nil, "due_in_days cannot be negative"
		}
	}
	encoded, errEncode := json.Marshal(items)
	if errEncode != nil {
		return nil, "items encoding failed"
	}
	return datatypes.JSON(encoded), ""
}

// createStageSequenceRuleRequest captures the payload for creating a rule.
type createStageSequenceRuleRequest struct {
	Enabled        *bool                 `json:"enabled"`          // Optional enabled flag, defaults to true.
	FromStageID    *uint64               `json:"from_stage_id"`    // Optional source stage filter.
	ToStageID      uint64                `json:"to_stage_id"`      // Target stage.
	Items          []models.SequenceItem `json:"items"`            // Ordered step list.
	AssigneeTarget string                `json:"assignee_target"`  // owner, mover or specific.
	AssigneeUserID *uint64               `json:"assignee_user_id"` // Required for specific.
}

// Create validates input and inserts a stage-sequence rule.
func (h *StageSequenceRuleHandler) Create(c *gin.Context) {
	tenantID := getTenantID(c)
	var body createStageSequenceRuleRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if body.ToStageID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to_stage_id is required"})
		return
	}
	itemsJSON, msg := validateSequenceItems(body.Items)
	if msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	ctx := c.Request.Context()
	if msg := validateStage(ctx, h.db, tenantID, body.ToStageID); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	if body.FromStageID != nil {
		if msg := validateStage(ctx, h.db, tenantID, *body.FromStageID); msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}
	}
	target := models.AssigneeTarget(body.AssigneeTarget)
	if body.AssigneeTarget == "" {
		target = models.AssigneeTargetOwner
	}
	if msg := validateAssignee(ctx, h.db, tenantID, target, body.AssigneeUserID); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	enabled := true
	if body.Enabled != nil {
		enabled = *body.Enabled
	}
	now := time.Now().UTC()
	rule := models.StageSequenceRule{
		TenantID:       tenantID,
		Enabled:        enabled,
		FromStageID:    body.FromStageID,
		ToStageID:      body.ToStageID,
		Items:          itemsJSON,
		AssigneeTarget: target,
		AssigneeUserID: body.AssigneeUserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if errCreate := h.db.WithContext(ctx).Create(&rule).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create rule failed"})
		return
	}
	c.JSON(http.StatusCreated, h.formatRule(&rule))
}

// List returns the tenant's stage-sequence rules filtered by query parameters.
func (h *StageSequenceRuleHandler) List(c *gin.Context) {
	tenantID := getTenantID(c)
	q := h.db.WithContext(c.Request.Context()).
		Model(&models.StageSequenceRule{}).
		Where("tenant_id = ?", tenantID)
	q = applyEnabledFilter(q, c)

	var rows []models.StageSequenceRule
	if errFind := q.Order("created_at DESC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list rules failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, h.formatRule(&row))
	}
	c.JSON(http.StatusOK, gin.H{"stage_sequence_rules": out})
}

// Get fetches a stage-sequence rule by ID.
func (h *StageSequenceRuleHandler) Get(c *gin.Context) {
	tenantID := getTenantID(c)
	id, ok := parseRuleID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var rule models.StageSequenceRule
	errFind := h.db.WithContext(c.Request.Context()).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&rule).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, h.formatRule(&rule))
}

// updateStageSequenceRuleRequest captures optional fields for rule updates.
type updateStageSequenceRuleRequest struct {
	Enabled        *bool                  `json:"enabled"`          // Optional enabled flag.
	FromStageID    *uint64                `json:"from_stage_id"`    // Optional source stage filter.
	ClearFromStage bool                   `json:"clear_from_stage"` // Clears the source stage filter.
	ToStageID      *uint64                `json:"to_stage_id"`      // Optional target stage.
	Items          *[]models.SequenceItem `json:"items"`            // Optional ordered step list.
	AssigneeTarget *string                `json:"assignee_target"`  // Optional assignment policy.
	AssigneeUserID *uint64                `json:"assignee_user_id"` // Optional specific assignee.
}

// Update validates and applies stage-sequence rule changes.
func (h *StageSequenceRuleHandler) Update(c *gin.Context) {
	tenantID := getTenantID(c)
	id, ok := parseRuleID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body updateStageSequenceRuleRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	ctx := c.Request.Context()
	var existing models.StageSequenceRule
	errFind := h.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&existing).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	newToStageID := existing.ToStageID
	if body.ToStageID != nil {
		if msg := validateStage(ctx, h.db, tenantID, *body.ToStageID); msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}
		newToStageID = *body.ToStageID
	}

	newFromStageID := existing.FromStageID
	if body.ClearFromStage {
		newFromStageID = nil
	} else if body.FromStageID != nil {
		if msg := validateStage(ctx, h.db, tenantID, *body.FromStageID); msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}
		newFromStageID = body.FromStageID
	}

	newItems := existing.Items
	if body.Items != nil {
		encoded, msg := validateSequenceItems(*body.Items)
		if msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}
		newItems = encoded
	}

	newTarget := existing.AssigneeTarget
	if body.AssigneeTarget != nil {
		newTarget = models.AssigneeTarget(*body.AssigneeTarget)
	}
	newAssigneeUserID := existing.AssigneeUserID
	if body.AssigneeUserID != nil {
		newAssigneeUserID = body.AssigneeUserID
	}
	if newTarget != models.AssigneeTargetSpecific {
		newAssigneeUserID = nil
	}
	if msg := validateAssignee(ctx, h.db, tenantID, newTarget, newAssigneeUserID); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	updates := map[string]any{
		"updated_at":       time.Now().UTC(),
		"from_stage_id":    newFromStageID,
		"to_stage_id":      newToStageID,
		"items":            newItems,
		"assignee_target":  newTarget,
		"assignee_user_id": newAssigneeUserID,
	}
	if body.Enabled != nil {
		updates["enabled"] = *body.Enabled
	}

	res := h.db.WithContext(ctx).Model(&models.StageSequenceRule{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(updates)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes a stage-sequence rule by ID.
func (h *StageSequenceRuleHandler) Delete(c *gin.Context) {
	tenantID := getTenantID(c)
	id, ok := parseRuleID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	res := h.db.WithContext(c.Request.Context()).
		Where("tenant_id = ?", tenantID).
		Delete(&models.StageSequenceRule{}, id)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// formatRule converts a stage-sequence rule into a response payload.
func (h *StageSequenceRuleHandler) formatRule(rule *models.StageSequenceRule) gin.H {
	var items []models.SequenceItem
	_ = json.Unmarshal(rule.Items, &items)
	return gin.H{
		"id":               rule.ID,
		"enabled":          rule.Enabled,
		"from_stage_id":    rule.FromStageID,
		"to_stage_id":      rule.ToStageID,
		"items":            items,
		"assignee_target":  rule.AssigneeTarget,
		"assignee_user_id": rule.AssigneeUserID,
		"created_at":       rule.CreatedAt,
		"updated_at":       rule.UpdatedAt,
	}
}
