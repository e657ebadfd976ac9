package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/teamleap/crmauto/internal/db"
	"github.com/teamleap/crmauto/internal/models"
)

const (
	maxTitleTemplateLen = 220 // Matches the task title column width.
	maxChecklistItems   = 50  // Upper bound for sequence and checklist lists.
)

// getTenantID extracts the tenant ID from gin context.
func getTenantID(c *gin.Context) uint64 {
	val, exists := c.Get("tenantID")
	if !exists {
		return 0
	}
	if id, ok := val.(uint64); ok {
		return id
	}
	return 0
}

// parseRuleID parses the :id path parameter.
func parseRuleID(c *gin.Context) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// validateTitleTemplate checks a template against the task title limits.
// Returns an error message, empty when valid.
func validateTitleTemplate(template string) string {
	if strings.TrimSpace(template) == "" {
		return "title_template is required"
	}
	if len(template) > maxTitleTemplateLen {
		return "title_template exceeds 220 characters"
	}
	return ""
}

// validateStage checks that the stage belongs to the tenant's pipelines.
// Returns an error message, empty when valid.
func validateStage(ctx context.Context, conn *gorm.DB, tenantID, stageID uint64) string {
	var stage models.Stage
	errFind := conn.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, stageID).
		First(&stage).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return "stage not found in tenant pipeline"
		}
		return "stage lookup failed"
	}
	return ""
}

// validateAssignee checks the assignment policy. A specific target needs
// an active member of the tenant; other targets must not carry a user ID.
// Returns an error message, empty when valid.
func validateAssignee(ctx context.Context, conn *gorm.DB, tenantID uint64, target models.AssigneeTarget, assigneeUserID *uint64) string {
	switch target {
	case models.AssigneeTargetOwner, models.AssigneeTargetMover:
		if assigneeUserID != nil {
			return "assignee_user_id is only valid with the specific target"
		}
		return ""
	case models.AssigneeTargetSpecific:
		if assigneeUserID == nil || *assigneeUserID == 0 {
			return "assignee_user_id is required for the specific target"
		}
	default:
		return "assignee_target must be owner, mover or specific"
	}

	var user models.User
	errFind := conn.WithContext(ctx).
		Where("tenant_id = ? AND id = ? AND is_active = ?", tenantID, *assigneeUserID, true).
		First(&user).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return "assignee is not an active member of the tenant"
		}
		return "assignee lookup failed"
	}
	return ""
}

// applyTitleFilter narrows a rule query by a case-insensitive title
// substring taken from the q query parameter.
func applyTitleFilter(q *gorm.DB, conn *gorm.DB, c *gin.Context, column string) *gorm.DB {
	needle := strings.TrimSpace(c.Query("q"))
	if needle == "" {
		return q
	}
	expr := db.CaseInsensitiveLikeExpr(conn, column)
	return q.Where(expr, "%"+db.NormalizeLikePattern(conn, needle)+"%")
}

// applyEnabledFilter narrows a rule query by the enabled query parameter.
func applyEnabledFilter(q *gorm.DB, c *gin.Context) *gorm.DB {
	switch strings.TrimSpace(c.Query("enabled")) {
	case "true", "1":
		return q.Where("enabled = ?", true)
	case "false", "0":
		return q.Where("enabled = ?", false)
	}
	return q
}
