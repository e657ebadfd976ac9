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

// WonChecklistRuleHandler manages admin CRUD endpoints for won-checklist rules.
type WonChecklistRuleHandler struct {
	db *gorm.DB // Database handle for automation rules.
}

// NewWonChecklistRuleHandler constructs a won-checklist rule handler.
func NewWonChecklistRuleHandler(db *gorm.DB) *WonChecklistRuleHandler {
	return &WonChecklistRuleHandler{db: db}
}

// validateTitleTemplates checks the checklist templates and returns their
// JSON encoding. The second return is an error message, empty when valid.
func validateTitleTemplates(templates []string) (datatypes.JSON, string) {
	if len(templates) == 0 {
		return nil, "title_templates cannot be empty"
	}
	if len(templates) > maxChecklistItems {
		return nil, "title_templates exceeds 50 entries"
	}
	for _, template := range templates {
		if msg := validateTitleTemplate(template); msg != "" {
			return nil, msg
		}
	}
	encoded, errEncode := json.Marshal(templates)
	if errEncode != nil {
		return nil, "title_templates encoding failed"
	}
	return datatypes.JSON(encoded), ""
}

// createWonChecklistRuleRequest captures the payload for creating a rule.
type createWonChecklistRuleRequest struct {
	Enabled        *bool    `json:"enabled"`          // Optional enabled flag, defaults to true.
	TitleTemplates []string `json:"title_templates"`  // Ordered checklist templates.
	DueInDays      int      `json:"due_in_days"`      // Due offset applied to every item.
	AssigneeTarget string   `json:"assignee_target"`  // owner, mover or specific.
	AssigneeUserID *uint64  `json:"assignee_user_id"` // Required for specific.
}

// Create validates input and inserts a won-checklist rule.
func (h *WonChecklistRuleHandler) Create(c *gin.Context) {
	tenantID := getTenantID(c)
	var body createWonChecklistRuleRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	templatesJSON, msg := validateTitleTemplates(body.TitleTemplates)
	if msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	if body.DueInDays < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "due_in_days cannot be negative"})
		return
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
	rule := models.WonChecklistRule{
		TenantID:       tenantID,
		Enabled:        enabled,
		TitleTemplates: templatesJSON,
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

// List returns the tenant's won-checklist rules filtered by query parameters.
func (h *WonChecklistRuleHandler) List(c *gin.Context) {
	tenantID := getTenantID(c)
	q := h.db.WithContext(c.Request.Context()).
		Model(&models.WonChecklistRule{}).
		Where("tenant_id = ?", tenantID)
	q = applyEnabledFilter(q, c)

	var rows []models.WonChecklistRule
	if errFind := q.Order("created_at DESC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list rules failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, h.formatRule(&row))
	}
	c.JSON(http.StatusOK, gin.H{"won_checklist_rules": out})
}

// Get fetches a won-checklist rule by ID.
func (h *WonChecklistRuleHandler) Get(c *gin.Context) {
	tenantID := getTenantID(c)
	id, ok := parseRuleID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var rule models.WonChecklistRule
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

// updateWonChecklistRuleRequest captures optional fields for rule updates.
type updateWonChecklistRuleRequest struct {
	Enabled        *bool     `json:"enabled"`          // Optional enabled flag.
	TitleTemplates *[]string `json:"title_templates"`  // Optional checklist templates.
	DueInDays      *int      `json:"due_in_days"`      // Optional due offset.
	AssigneeTarget *string   `json:"assignee_target"`  // Optional assignment policy.
	AssigneeUserID *uint64   `json:"assignee_user_id"` // Optional specific assignee.
}

// Update validates and applies won-checklist rule changes.
func (h *WonChecklistRuleHandler) Update(c *gin.Context) {
	tenantID := getTenantID(c)
	id, ok := parseRuleID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body updateWonChecklistRuleRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	ctx := c.Request.Context()
	var existing models.WonChecklistRule
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

	newTemplates := existing.TitleTemplates
	if body.TitleTemplates != nil {
		encoded, msg := validateTitleTemplates(*body.TitleTemplates)
		if msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}
		newTemplates = encoded
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
		"title_templates":  newTemplates,
		"due_in_days":      newDueInDays,
		"assignee_target":  newTarget,
		"assignee_user_id": newAssigneeUserID,
	}
	if body.Enabled != nil {
		updates["enabled"] = *body.Enabled
	}

	res := h.db.WithContext(ctx).Model(&models.WonChecklistRule{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(updates)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes a won-checklist rule by ID.
func (h *WonChecklistRuleHandler) Delete(c *gin.Context) {
	tenantID := getTenantID(c)
	id, ok := parseRuleID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	res := h.db.WithContext(c.Request.Context()).
		Where("tenant_id = ?", tenantID).
		Delete(&models.WonChecklistRule{}, id)
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

// formatRule converts a won-checklist rule into a response payload.
func (h *WonChecklistRuleHandler) formatRule(rule *models.WonChecklistRule) gin.H {
	var templates []string
	_ = json.Unmarshal(rule.TitleTemplates, &templates)
	return gin.H{
		"id":               rule.ID,
		"enabled":          rule.Enabled,
		"title_templates":  templates,
		"due_in_days":      rule.DueInDays,
		"assignee_target":  rule.AssigneeTarget,
		"assignee_user_id": rule.AssigneeUserID,
		"created_at":       rule.CreatedAt,
		"updated_at":       rule.UpdatedAt,
	}
}
