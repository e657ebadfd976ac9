package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/teamleap/crmauto/internal/models"
)

// OverdueTaskRuleHandler manages admin CRUD endpoints for overdue-task rules.
type OverdueTaskRuleHandler struct {
	db *gorm.DB // Database handle for automation rules.
}

// NewOverdueTaskRuleHandler constructs an overdue-task rule handler.
func NewOverdueTaskRuleHandler(db *gorm.DB) *OverdueTaskRuleHandler {
	return &OverdueTaskRuleHandler{db: db}
}

// createOverdueTaskRuleRequest captures the payload for creating a rule.
type createOverdueTaskRuleRequest struct {
	Enabled        *bool   `json:"enabled"`          // Optional enabled flag, defaults to true.
	OverdueDays    int     `json:"overdue_days"`     // Days past due before a task counts as overdue.
	TitleTemplate  string  `json:"title_template"`   // Task title template.
	DueInDays      int     `json:"due_in_days"`      // Due offset in days.
	CooldownDays   *int    `json:"cooldown_days"`    // Optional re-fire cooldown, defaults to 7.
	AssigneeTarget string  `json:"assignee_target"`  // owner, mover or specific.
	AssigneeUserID *uint64 `json:"assignee_user_id"` // Required for specific.
}

// Create validates input and inserts an overdue-task rule.
func (h *OverdueTaskRuleHandler) Create(c *gin.Context) {
	tenantID := getTenantID(c)
	var body createOverdueTaskRuleRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if body.OverdueDays < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "overdue_days cannot be negative"})
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
	rule := models.OverdueTaskRule{
		TenantID:       tenantID,
		Enabled:        enabled,
		OverdueDays:    body.OverdueDays,
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

// List returns the tenant's overdue-task rules filtered by query parameters.
func (h *OverdueTaskRuleHandler) List(c *gin.Context) {
	tenantID := getTenantID(c)
	q := h.db.WithContext(c.Request.Context()).
		Model(&models.OverdueTaskRule{}).
		Where("tenant_id = ?", tenantID)
	q = applyEnabledFilter(q, c)
	q = applyTitleFilter(q, h.db, c, "title_template")

	var rows []models.OverdueTaskRule
	if errFind := q.Order("created_at DESC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list rules failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, h.formatRule(&row))
	}
	c.JSON(http.StatusOK, gin.H{"overdue_task_rules": out})
}

// Get fetches an overdue-task rule by ID.
func (h *OverdueTaskRuleHandler) Get(c *gin.Context) {
	tenantID := getTenantID(c)
	id, ok := parseRuleID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var rule models.OverdueTaskRule
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

// updateOverdueTaskRuleRequest captures optional fields for rule updates.
type updateOverdueTaskRuleRequest struct {
	Enabled        *bool   `json:"enabled"`          // Optional enabled flag.
	OverdueDays    *int    `json:"overdue_days"`     // Optional overdue threshold.
	TitleTemplate  *string `json:"title_template"`   // Optional title template.
	DueInDays      *int    `json:"due_in_days"`      // Optional due offset.
	CooldownDays   *int    `json:"cooldown_days"`    // Optional re-fire cooldown.
	AssigneeTarget *string `json:"assignee_target"`  // Optional assignment policy.
	AssigneeUserID *uint64 `json:"assignee_user_id"` // Optional specific assignee.
}

// Update validates and applies overdue-task rule changes.
func (h *OverdueTaskRuleHandler) Update(c *gin.Context) {
	tenantID := getTenantID(c)
	id, ok := parseRuleID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body updateOverdueTaskRuleRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	ctx := c.Request.Context()
	var existing models.OverdueTaskRule
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

	newOverdueDays := existing.OverdueDays
	if body.OverdueDays != nil {
		if *body.OverdueDays < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "overdue_days cannot be negative"})
			return
		}
		newOverdueDays = *body.OverdueDays
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
		"overdue_days":     newOverdueDays,
		"title_template":   newTitleTemplate,
		"due_in_days":      newDueInDays,
		"cooldown_days":    newCooldownDays,
		"assignee_target":  newTarget,
		"assignee_user_id": newAssigneeUserID,
	}
	if body.Enabled != nil {
		updates["enabled"] = *body.Enabled
	}

	res := h.db.WithContext(ctx).Model(&models.OverdueTaskRule{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(updates)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes an overdue-task rule by ID.
func (h *OverdueTaskRuleHandler) Delete(c *gin.Context) {
	tenantID := getTenantID(c)
	id, ok := parseRuleID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	res := h.db.WithContext(c.Request.Context()).
		Where("tenant_id = ?", tenantID).
		Delete(&models.OverdueTaskRule{}, id)
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

// formatRule converts an overdue-task rule into a response payload.
func (h *OverdueTaskRuleHandler) formatRule(rule *models.OverdueTaskRule) gin.H {
	return gin.H{
		"id":               rule.ID,
		"enabled":          rule.Enabled,
		"overdue_days":     rule.OverdueDays,
		"title_template":   rule.TitleTemplate,
		"due_in_days":      rule.DueInDays,
		"cooldown_days":    rule.CooldownDays,
		"assignee_target":  rule.AssigneeTarget,
		"assignee_user_id": rule.AssigneeUserID,
		"created_at":       rule.CreatedAt,
		"updated_at":       rule.UpdatedAt,
	}
}
