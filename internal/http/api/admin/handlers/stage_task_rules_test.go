package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/teamleap/crmauto/internal/models"
)

func setupRuleHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:rulehandlers_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	errMigrate := conn.AutoMigrate(
		&models.User{},
		&models.Pipeline{},
		&models.Stage{},
		&models.StageTaskRule{},
		&models.StageSequenceRule{},
		&models.StaleDealRule{},
		&models.WonChecklistRule{},
		&models.OverdueTaskRule{},
	)
	if errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

// withTenant injects the tenant the auth middleware would resolve from JWT claims.
func withTenant(tenantID uint64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("tenantID", tenantID)
		c.Next()
	}
}

func seedStage(t *testing.T, conn *gorm.DB, tenantID uint64, name string) *models.Stage {
	t.Helper()
	stage := models.Stage{TenantID: tenantID, PipelineID: 1, Name: name, SortOrder: 10}
	if errCreate := conn.Create(&stage).Error; errCreate != nil {
		t.Fatalf("create stage %s: %v", name, errCreate)
	}
	return &stage
}

func seedMember(t *testing.T, conn *gorm.DB, tenantID uint64, name string, active bool) *models.User {
	t.Helper()
	user := models.User{
		TenantID:    tenantID,
		Username:    name,
		Password:    "hash",
		DisplayName: name,
		Role:        models.UserRoleMember,
		IsActive:    active,
	}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user %s: %v", name, errCreate)
	}
	return &user
}

func stageTaskRouter(conn *gorm.DB, tenantID uint64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewStageTaskRuleHandler(conn)
	router := gin.New()
	group := router.Group("/v0/admin", withTenant(tenantID))
	group.GET("/automation/stage-task-rules", handler.List)
	group.POST("/automation/stage-task-rules", handler.Create)
	group.GET("/automation/stage-task-rules/:id", handler.Get)
	group.PATCH("/automation/stage-task-rules/:id", handler.Update)
	group.DELETE("/automation/stage-task-rules/:id", handler.Delete)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, url string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, errEncode := json.Marshal(body)
		if errEncode != nil {
			t.Fatalf("encode body: %v", errEncode)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestStageTaskRuleCreateAndList(t *testing.T) {
	conn := setupRuleHandlerDB(t)
	stage := seedStage(t, conn, 1, "Proposal")
	router := stageTaskRouter(conn, 1)

	rec := doJSON(t, router, http.MethodPost, "/v0/admin/automation/stage-task-rules", gin.H{
		"to_stage_id":    stage.ID,
		"title_template": "Follow up: {{dealName}}",
		"due_in_days":    3,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", rec.Code, rec.Body.String())
	}

	var created map[string]any
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &created); errDecode != nil {
		t.Fatalf("decode create response: %v", errDecode)
	}
	if created["assignee_target"] != string(models.AssigneeTargetOwner) {
		t.Fatalf("expected owner default target, got %v", created["assignee_target"])
	}
	if created["enabled"] != true {
		t.Fatalf("expected enabled default, got %v", created["enabled"])
	}

	rec = doJSON(t, router, http.MethodGet, "/v0/admin/automation/stage-task-rules", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status %d: %s", rec.Code, rec.Body.String())
	}
	var listed struct {
		StageTaskRules []map[string]any `json:"stage_task_rules"`
	}
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &listed); errDecode != nil {
		t.Fatalf("decode list response: %v", errDecode)
	}
	if len(listed.StageTaskRules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(listed.StageTaskRules))
	}
}

func TestStageTaskRuleCreateRejectsUnknownStage(t *testing.T) {
	conn := setupRuleHandlerDB(t)
	router := stageTaskRouter(conn, 1)

	rec := doJSON(t, router, http.MethodPost, "/v0/admin/automation/stage-task-rules", gin.H{
		"to_stage_id":    999,
		"title_template": "Follow up",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown stage, got %d: %s", rec.Code, rec.Body.String())
	}

	var count int64
	conn.Model(&models.StageTaskRule{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no rule persisted, got %d", count)
	}
}

func TestStageTaskRuleCreateRejectsForeignTenantStage(t *testing.T) {
	conn := setupRuleHandlerDB(t)
	foreign := seedStage(t, conn, 2, "Proposal")
	router := stageTaskRouter(conn, 1)

	rec := doJSON(t, router, http.MethodPost, "/v0/admin/automation/stage-task-rules", gin.H{
		"to_stage_id":    foreign.ID,
		"title_template": "Follow up",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for foreign stage, got %d", rec.Code)
	}
}

func TestStageTaskRuleCreateRejectsInactiveSpecificAssignee(t *testing.T) {
	conn := setupRuleHandlerDB(t)
	stage := seedStage(t, conn, 1, "Proposal")
	inactive := seedMember(t, conn, 1, "gone", false)
	router := stageTaskRouter(conn, 1)

	rec := doJSON(t, router, http.MethodPost, "/v0/admin/automation/stage-task-rules", gin.H{
		"to_stage_id":      stage.ID,
		"title_template":   "Handoff",
		"assignee_target":  "specific",
		"assignee_user_id": inactive.ID,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for inactive assignee, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStageTaskRuleCreateRejectsNegativeDueDays(t *testing.T) {
	conn := setupRuleHandlerDB(t)
	stage := seedStage(t, conn, 1, "Proposal")
	router := stageTaskRouter(conn, 1)

	rec := doJSON(t, router, http.MethodPost, "/v0/admin/automation/stage-task-rules", gin.H{
		"to_stage_id":    stage.ID,
		"title_template": "Follow up",
		"due_in_days":    -1,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative due days, got %d", rec.Code)
	}
}

func TestStageTaskRulePartialUpdate(t *testing.T) {
	conn := setupRuleHandlerDB(t)
	stage := seedStage(t, conn, 1, "Proposal")
	router := stageTaskRouter(conn, 1)

	rule := models.StageTaskRule{
		TenantID:       1,
		Enabled:        true,
		ToStageID:      stage.ID,
		TitleTemplate:  "Original",
		DueInDays:      3,
		AssigneeTarget: models.AssigneeTargetOwner,
	}
	if errCreate := conn.Create(&rule).Error; errCreate != nil {
		t.Fatalf("create rule: %v", errCreate)
	}

	rec := doJSON(t, router, http.MethodPatch, fmt.Sprintf("/v0/admin/automation/stage-task-rules/%d", rule.ID), gin.H{
		"enabled": false,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status %d: %s", rec.Code, rec.Body.String())
	}

	var updated models.StageTaskRule
	if errFind := conn.First(&updated, rule.ID).Error; errFind != nil {
		t.Fatalf("reload rule: %v", errFind)
	}
	if updated.Enabled {
		t.Fatal("expected rule to be disabled")
	}
	if updated.TitleTemplate != "Original" || updated.DueInDays != 3 {
		t.Fatalf("untouched fields changed: %+v", updated)
	}
}

func TestStageTaskRuleUpdateUnknownID(t *testing.T) {
	conn := setupRuleHandlerDB(t)
	router := stageTaskRouter(conn, 1)

	rec := doJSON(t, router, http.MethodPatch, "/v0/admin/automation/stage-task-rules/999", gin.H{"enabled": false})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestStageTaskRuleDeleteScopedToTenant(t *testing.T) {
	conn := setupRuleHandlerDB(t)
	stage := seedStage(t, conn, 2, "Proposal")

	rule := models.StageTaskRule{
		TenantID:       2,
		Enabled:        true,
		ToStageID:      stage.ID,
		TitleTemplate:  "Foreign",
		AssigneeTarget: models.AssigneeTargetOwner,
	}
	if errCreate := conn.Create(&rule).Error; errCreate != nil {
		t.Fatalf("create rule: %v", errCreate)
	}

	router := stageTaskRouter(conn, 1)
	rec := doJSON(t, router, http.MethodDelete, fmt.Sprintf("/v0/admin/automation/stage-task-rules/%d", rule.ID), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign tenant rule, got %d", rec.Code)
	}

	var count int64
	conn.Model(&models.StageTaskRule{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected foreign rule to survive, got %d rows", count)
	}
}

func TestStageTaskRuleListTitleFilter(t *testing.T) {
	conn := setupRuleHandlerDB(t)
	stage := seedStage(t, conn, 1, "Proposal")
	router := stageTaskRouter(conn, 1)

	rules := []models.StageTaskRule{
		{TenantID: 1, Enabled: true, ToStageID: stage.ID, TitleTemplate: "Follow up call", AssigneeTarget: models.AssigneeTargetOwner},
		{TenantID: 1, Enabled: true, ToStageID: stage.ID, TitleTemplate: "Send contract", AssigneeTarget: models.AssigneeTargetOwner},
	}
	if errCreate := conn.Create(&rules).Error; errCreate != nil {
		t.Fatalf("create rules: %v", errCreate)
	}

	rec := doJSON(t, router, http.MethodGet, "/v0/admin/automation/stage-task-rules?q=FOLLOW", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status %d", rec.Code)
	}
	var listed struct {
		StageTaskRules []map[string]any `json:"stage_task_rules"`
	}
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &listed); errDecode != nil {
		t.Fatalf("decode list response: %v", errDecode)
	}
	if len(listed.StageTaskRules) != 1 {
		t.Fatalf("expected 1 filtered rule, got %d", len(listed.StageTaskRules))
	}
	if listed.StageTaskRules[0]["title_template"] != "Follow up call" {
		t.Fatalf("unexpected rule: %v", listed.StageTaskRules[0])
	}
}

func TestStageTaskRuleCreateDisabledPersists(t *testing.T) {
	conn := setupRuleHandlerDB(t)
	stage := seedStage(t, conn, 1, "Proposal")
	router := stageTaskRouter(conn, 1)

	rec := doJSON(t, router, http.MethodPost, "/v0/admin/automation/stage-task-rules", gin.H{
		"enabled":        false,
		"to_stage_id":    stage.ID,
		"title_template": "Follow up: {{dealName}}",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", rec.Code, rec.Body.String())
	}

	var stored models.StageTaskRule
	if errFind := conn.First(&stored).Error; errFind != nil {
		t.Fatalf("load rule: %v", errFind)
	}
	if stored.Enabled {
		t.Fatal("enabled: stored true, want false")
	}
}
