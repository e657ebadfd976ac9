package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/teamleap/crmauto/internal/models"
)

// StaleDealRuleHandler manages admin CRUD endpoints for stale-deal rules.
type StaleDealRuleHandler struct {
	db *gorm.DB // Database handle for automation rules.
}

// NewStaleDealRuleHandler constructs a stale-deal rule handler.
func NewStaleDealRuleHandler(db *gorm.DB) *StaleDealRuleHandler {
	return &StaleDealRuleHandler{db: db}
}

// createStaleDealRuleRequest captures the payload for creating a rule.
type createStaleDealRuleRequest struct {
	Enabled        *bool   `json:"enabled"`          // Optional enabled flag, defaults to true.
	StaleDays      int     `json:"stale_days"`       // Days without activity before a deal counts as stale.
	StageID        *uint64 `json:"stage_id"`         // Optional stage filter.
	TitleTemplate  string  `json:"title_template"`   // Task title template.
	DueInDays      int     `json:"due_in_days"`      // Due offset in days.
	CooldownDays   *int    `json:"cooldown_days"`    // Optional re-fire cooldown, defaults to 7.
	AssigneeTarget string  `json:"assignee_target"`  // owner, mover or specific.
	AssigneeUserID *uint64 `json:"assignee_user_id"` // Required for specific.
}

// Create validates input and inserts a stale-deal rule.
func (h *StaleDealRuleHandler) Create(c *gin.Context) {
	tenantID := getTenantID(c)
	var body createStaleDealRuleRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if body.StaleDays < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stale_days cannot be negative"})
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
	cooldownDays := 7
	if body.CooldownDays != nil {
		if *body.CooldownDays < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cooldown_days cannot be negative"})
			return
		}
		cooldownDays = *body.CooldownDays
	}
	ctx := c.Request.Context()
	if body.StageID != nil {
		if msg := validateStage(ctx, h.db, tenantID, *body.StageID); msg != "" {
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
	rule := models.StaleDealRule{
		TenantID:       tenantID,
		Enabled:        enabled,
		StaleDays:      body.StaleDays,
		StageID:        body.StageID,
		TitleTemplate:  body.TitleTemplate,
		DueInDays:      body.DueInDays,
		CooldownDays:   cooldownDays,
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

// List returns the tenant's stale-deal rules filtered by query parameters.
func (h *StaleDealRuleHandler) List(c *gin.Context) {
	tenantID := getTenantID(c)
	q := h.db.WithContext(c.Request.Context()).
		Model(&models.StaleDealRule{}).
		Where("tenant_id = ?", tenantID)
	q = applyEnabledFilter(q, c)
	q = applyTitleFilter(q, h.db, c, "title_template")

	var rows []models.StaleDealRule
	if errFind := q.Order("created_at DESC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list rules failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, h.formatRule(&row))
	}
	c.JSON(http.StatusOK, gin.H{"stale_deal_rules": out})
}

// Get fetches a stale-deal rule by ID.
func (h *StaleDealRuleHandler) Get(c *gin.Context) {
	tenantID := getTenantID(c)
	id, ok := parseRuleID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var rule models.StaleDealRule
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

// updateStaleDealRuleRequest captures optional fields for rule updates.
type updateStaleDealRuleRequest struct {
	Enabled        *bool   `json:"enabled"`          // Optional enabled flag.
	StaleDays      *int    `json:"stale_days"`       // Optional staleness threshold.
	StageID        *uint64 `json:"stage_id"`         // Optional stage filter.
	ClearStage     bool    `json:"clear_stage"`      // Clears the stage filter.
	TitleTemplate  *string `json:"title_template"`   // Optional title template.
	DueInDays      *int    `json:"due_in_days"`      // Optional due offset.
	CooldownDays   *int    `json:"cooldown_days"`    // Optional re-fire cooldown.
	AssigneeTarget *string `json:"assignee_target"`  // Optional assignment policy.
	AssigneeUserID *uint64 `json:"assignee_user_id"` // Optional specific assignee.
}

// Update validates and applies stale-deal rule changes.
func (h *StaleDealRuleHandler) Update(c *gin.Context) {
	tenantID := getTenantID(c)
	id, ok := parseRuleID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body updateStaleDealRuleRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	ctx := c.Request.Context()
	var existing models.StaleDealRule
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

	newStaleDays := existing.StaleDays
	if body.StaleDays != nil {
		if *body.StaleDays < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "stale_days cannot be negative"})
			return
		}
		newStaleDays = *body.StaleDays
	}

	newStageID := existing.StageID
	if body.ClearStage {
		newStageID = nil
	} else if body.StageID != nil {
		if msg := validateStage(ctx, h.db, tenantID, *body.StageID); msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}
		newStageID = body.StageID
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

	newCooldownDays := existing.CooldownDays
	if body.CooldownDays != nil {
		if *body.CooldownDays < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cooldown_days cannot be negative"})
			return
		}
		newCooldownDays = *body.CooldownDays
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
		"stale_days":       newStaleDays,
		"stage_id":         newStageID,
		"title_template":   newTitleTemplate,
		"due_in_days":      newDueInDays,
		"cooldown_days":    newCooldownDays,
		"assignee_target":  newTarget,
		"assignee_user_id": newAssigneeUserID,
	}
	if body.Enabled != nil {
		updates["enabled"] = *body.Enabled
	}

	res := h.db.WithContext(ctx).Model(&models.StaleDealRule{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(updates)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes a stale-deal rule by ID.
func (h *StaleDealRuleHandler) Delete(c *gin.Context) {
	tenantID := getTenantID(c)
	id, ok := parseRuleID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	res := h.db.WithContext(c.Request.Context()).
		Where("tenant_id = ?", tenantID).
		Delete(&models.StaleDealRule{}, id)
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

// formatRule converts a stale-deal rule into a response payload.
func (h *StaleDealRuleHandler) formatRule(rule *models.StaleDealRule) gin.H {
	return gin.H{
		"id":               rule.ID,
		"enabled":          rule.Enabled,
		"stale_days":       rule.StaleDays,
		"stage_id":         rule.StageID,
		"title_template":   rule.TitleTemplate,
		"due_in_days":      rule.DueInDays,
		"cooldown_days":    rule.CooldownDays,
		"assignee_target":  rule.AssigneeTarget,
		"assignee_user_id": rule.AssigneeUserID,
		"created_at":       rule.CreatedAt,
		"updated_at":       rule.UpdatedAt,
	}
}
