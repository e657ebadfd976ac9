package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/teamleap/crmauto/internal/models"
)

// StageTaskRuleHandler manages admin CRUD endpoints for stage-task rules.
type StageTaskRuleHandler struct {
	db *gorm.DB // Database handle for automation rules.
}

// NewStageTaskRuleHandler constructs a stage-task rule handler.
func NewStageTaskRuleHandler(db *gorm.DB) *StageTaskRuleHandler {
	return &StageTaskRuleHandler{db: db}
}

// createStageTaskRuleRequest captures the payload for creating a rule.
type createStageTaskRuleRequest struct {
	Enabled        *bool   `json:"enabled"`          // Optional enabled flag, defaults to true.
	FromStageID    *uint64 `json:"from_stage_id"`    // Optional source stage filter.
	ToStageID      uint64  `json:"to_stage_id"`      // Target stage.
	TitleTemplate  string  `json:"title_template"`   // Task title template.
	DueInDays      int     `json:"due_in_days"`      // Due offset in days.
	AssigneeTarget string  `json:"assignee_target"`  // owner, mover or specific.
	AssigneeUserID *uint64 `json:"assignee_user_id"` // Required for specific.
}

// Create validates input and inserts a stage-task rule.
func (h *StageTaskRuleHandler) Create(c *gin.Context) {
	tenantID := getTenantID(c)
	var body createStageTaskRuleRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if body.ToStageID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to_stage_id is required"})
		return
	}
	if msg := validateTitleTemplate(body.TitleTemplate); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	if body.DueInDays < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "due_in_days cannot be negative"})
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
	rule := models.StageTaskRule{
		TenantID:       tenantID,
		Enabled:        enabled,
		FromStageID:    body.FromStageID,
		ToStageID:      body.ToStageID,
		TitleTemplate:  body.TitleTemplate,
		DueInDays:      body.DueInDays,
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

// List returns the tenant's stage-task rules filtered by query parameters.
func (h *StageTaskRuleHandler) List(c *gin.Context) {
	tenantID := getTenantID(c)
	q := h.db.WithContext(c.Request.Context()).
		Model(&models.StageTaskRule{}).
		Where("tenant_id = ?", tenantID)
	q = applyEnabledFilter(q, c)
	q = applyTitleFilter(q, h.db, c, "title_template")

	var rows []models.StageTaskRule
	if errFind := q.Order("created_at DESC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list rules failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, h.formatRule(&row))
	}
	c.JSON(http.StatusOK, gin.H{"stage_task_rules": out})
}

// Get fetches a stage-task rule by ID.
func (h *StageTaskRuleHandler) Get(c *gin.Context) {
	tenantID := getTenantID(c)
	id, ok := parseRuleID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var rule models.StageTaskRule
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

// updateStageTaskRuleRequest captures optional fields for rule updates.
type updateStageTaskRuleRequest struct {
	Enabled        *bool   `json:"enabled"`          // Optional enabled flag.
	FromStageID    *uint64 `json:"from_stage_id"`    // Optional source stage filter.
	ClearFromStage bool    `json:"clear_from_stage"` // Clears the source stage filter.
	ToStageID      *uint64 `json:"to_stage_id"`      // Optional target stage.
	TitleTemplate  *string `json:"title_template"`   // Optional title template.
	DueInDays      *int    `json:"due_in_days"`      // Optional due offset.
	AssigneeTarget *string `json:"assignee_target"`  // Optional assignment policy.
	AssigneeUserID *uint64 `json:"assignee_user_id"` // Optional specific assignee.
}

// Update validates and applies stage-task rule changes.
func (h *StageTaskRuleHandler) Update(c *gin.Context) {
	tenantID := getTenantID(c)
	id, ok := parseRuleID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body updateStageTaskRuleRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	ctx := c.Request.Context()
	var existing models.StageTaskRule
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

	newTitleTemplate := existing.TitleTemplate
	if body.TitleTemplate != nil {
		if msg := validateTitleTemplate(*body.TitleTemplate); msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}
		newTitleTemplate = *body.TitleTemplate
	}

	newDueInDays := existing.DueInDays
	if body.DueInDays != nil {
		if *body.DueInDays < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "due_in_days cannot be negative"})
			return
		}
		newDueInDays = *body.DueInDays
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
		"title_template":   newTitleTemplate,
		"due_in_days":      newDueInDays,
		"assignee_target":  newTarget,
		"assignee_user_id": newAssigneeUserID,
	}
	if body.Enabled != nil {
		updates["enabled"] = *body.Enabled
	}

	res := h.db.WithContext(ctx).Model(&models.StageTaskRule{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(updates)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes a stage-task rule by ID.
func (h *StageTaskRuleHandler) Delete(c *gin.Context) {
	tenantID := getTenantID(c)
	id, ok := parseRuleID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	res := h.db.WithContext(c.Request.Context()).
		Where("tenant_id = ?", tenantID).
		Delete(&models.StageTaskRule{}, id)
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

// formatRule converts a stage-task rule into a response payload.
func (h *StageTaskRuleHandler) formatRule(rule *models.StageTaskRule) gin.H {
	return gin.H{
		"id":               rule.ID,
		"enabled":          rule.Enabled,
		"from_stage_id":    rule.FromStageID,
		"to_stage_id":      rule.ToStageID,
		"title_template":   rule.TitleTemplate,
		"due_in_days":      rule.DueInDays,
		"assignee_target":  rule.AssigneeTarget,
		"assignee_user_id": rule.AssigneeUserID,
		"created_at":       rule.CreatedAt,
		"updated_at":       rule.UpdatedAt,
	}
}
