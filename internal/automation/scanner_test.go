package automation

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/teamleap/crmauto/internal/models"
)

func createDeal(t *testing.T, conn *gorm.DB, tenantID, stageID, ownerID uint64, name string, updatedAt time.Time) *models.Deal {
	t.Helper()
	deal := models.Deal{
		TenantID:    tenantID,
		PipelineID:  1,
		StageID:     stageID,
		Name:        name,
		Amount:      1000,
		Currency:    "USD",
		OwnerUserID: ownerID,
		Status:      models.DealStatusOpen,
	}
	if errCreate := conn.Create(&deal).Error; errCreate != nil {
		t.Fatalf("create deal %s: %v", name, errCreate)
	}
	// Pin the freshness timestamp past the autoUpdateTime hook.
	if errUpdate := conn.Model(&models.Deal{}).Where("id = ?", deal.ID).
		UpdateColumn("updated_at", updatedAt).Error; errUpdate != nil {
		t.Fatalf("pin updated_at: %v", errUpdate)
	}
	deal.UpdatedAt = updatedAt
	return &deal
}

func TestScanTenantFiresStaleRule(t *testing.T) {
	conn := setupAutomationDB(t)
	scanner := NewScanner(conn, nil, 0)
	owner := createUser(t, conn, 1, "dana", true)

	now := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)
	createDeal(t, conn, 1, 20, owner.ID, "Stale Deal", now.Add(-40*24*time.Hour))
	createDeal(t, conn, 1, 20, owner.ID, "Fresh Deal", now.Add(-2*24*time.Hour))

	rule := models.StaleDealRule{
		TenantID:       1,
		Enabled:        true,
		StaleDays:      30,
		TitleTemplate:  "Re-engage {{dealName}}",
		DueInDays:      1,
		CooldownDays:   7,
		AssigneeTarget: models.AssigneeTargetOwner,
	}
	if errCreate := conn.Create(&rule).Error; errCreate != nil {
		t.Fatalf("create rule: %v", errCreate)
	}

	if errScan := scanner.ScanTenant(context.Background(), 1, now); errScan != nil {
		t.Fatalf("scan: %v", errScan)
	}

	var tasks []models.Task
	if errFind := conn.Find(&tasks).Error; errFind != nil {
		t.Fatalf("list tasks: %v", errFind)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].Title != "Re-engage Stale Deal" {
		t.Fatalf("unexpected title: %q", tasks[0].Title)
	}
	if tasks[0].AssigneeUserID != owner.ID {
		t.Fatalf("expected owner assignee, got %d", tasks[0].AssigneeUserID)
	}
}

func TestScanTenantRespectsCooldownAcrossScans(t *testing.T) {
	conn := setupAutomationDB(t)
	scanner := NewScanner(conn, nil, 0)
	owner := createUser(t, conn, 1, "dana", true)

	now := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)
	createDeal(t, conn, 1, 20, owner.ID, "Stale Deal", now.Add(-60*24*time.Hour))

	rule := models.StaleDealRule{
		TenantID:       1,
		Enabled:        true,
		StaleDays:      30,
		TitleTemplate:  "Re-engage {{dealName}}",
		CooldownDays:   7,
		AssigneeTarget: models.AssigneeTargetOwner,
	}
	if errCreate := conn.Create(&rule).Error; errCreate != nil {
		t.Fatalf("create rule: %v", errCreate)
	}

	ctx := context.Background()
	if errScan := scanner.ScanTenant(ctx, 1, now); errScan != nil {
		t.Fatalf("first scan: %v", errScan)
	}
	// Next day: the deal is still stale but inside the cooldown window.
	if errScan := scanner.ScanTenant(ctx, 1, now.Add(24*time.Hour)); errScan != nil {
		t.Fatalf("second scan: %v", errScan)
	}

	var count int64
	conn.Model(&models.Task{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 task inside cooldown, got %d", count)
	}

	// Past the window the rule fires again.
	if errScan := scanner.ScanTenant(ctx, 1, now.Add(8*24*time.Hour)); errScan != nil {
		t.Fatalf("third scan: %v", errScan)
	}
	conn.Model(&models.Task{}).Count(&count)
	if count != 2 {
		t.Fatalf("expected 2 tasks after cooldown elapsed, got %d", count)
	}
}

func TestScanTenantStageFilter(t *testing.T) {
	conn := setupAutomationDB(t)
	scanner := NewScanner(conn, nil, 0)
	owner := createUser(t, conn, 1, "dana", true)

	now := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)
	createDeal(t, conn, 1, 20, owner.ID, "In Qualified", now.Add(-40*24*time.Hour))
	createDeal(t, conn, 1, 30, owner.ID, "In Proposal", now.Add(-40*24*time.Hour))

	stageID := uint64(30)
	rule := models.StaleDealRule{
		TenantID:       1,
		Enabled:        true,
		StaleDays:      30,
		StageID:        &stageID,
		TitleTemplate:  "Re-engage {{dealName}}",
		CooldownDays:   7,
		AssigneeTarget: models.AssigneeTargetOwner,
	}
	if errCreate := conn.Create(&rule).Error; errCreate != nil {
		t.Fatalf("create rule: %v", errCreate)
	}

	if errScan := scanner.ScanTenant(context.Background(), 1, now); errScan != nil {
		t.Fatalf("scan: %v", errScan)
	}

	var tasks []models.Task
	if errFind := conn.Find(&tasks).Error; errFind != nil {
		t.Fatalf("list tasks: %v", errFind)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].Title != "Re-engage In Proposal" {
		t.Fatalf("unexpected title: %q", tasks[0].Title)
	}
}

func TestScanTenantSingleFlight(t *testing.T) {
	conn := setupAutomationDB(t)
	locker := NewMemoryLocker()
	scanner := NewScanner(conn, locker, 0)
	owner := createUser(t, conn, 1, "dana", true)

	now := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)
	createDeal(t, conn, 1, 20, owner.ID, "Stale Deal", now.Add(-40*24*time.Hour))

	rule := models.StaleDealRule{
		TenantID:       1,
		Enabled:        true,
		StaleDays:      30,
		TitleTemplate:  "Re-engage {{dealName}}",
		CooldownDays:   0,
		AssigneeTarget: models.AssigneeTargetOwner,
	}
	if errCreate := conn.Create(&rule).Error; errCreate != nil {
		t.Fatalf("create rule: %v", errCreate)
	}

	// Hold the tenant lock: the scan must be a silent no-op.
	acquired, release, errLock := locker.TryLock(context.Background(), 1)
	if errLock != nil || !acquired {
		t.Fatalf("pre-acquire lock: acquired=%v err=%v", acquired, errLock)
	}
	if errScan := scanner.ScanTenant(context.Background(), 1, now); errScan != nil {
		t.Fatalf("scan under held lock: %v", errScan)
	}
	var count int64
	conn.Model(&models.Task{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no tasks while lock held, got %d", count)
	}

	release()
	if errScan := scanner.ScanTenant(context.Background(), 1, now); errScan != nil {
		t.Fatalf("scan after release: %v", errScan)
	}
	conn.Model(&models.Task{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 task after release, got %d", count)
	}
}

func TestScanTenantPagesThroughLargeBatches(t *testing.T) {
	conn := setupAutomationDB(t)
	scanner := NewScanner(conn, nil, 0)
	scanner.batchSize = 10
	owner := createUser(t, conn, 1, "dana", true)

	now := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		createDeal(t, conn, 1, 20, owner.ID, "Deal", now.Add(-40*24*time.Hour))
	}

	rule := models.StaleDealRule{
		TenantID:       1,
		Enabled:        true,
		StaleDays:      30,
		TitleTemplate:  "Re-engage {{dealName}}",
		CooldownDays:   7,
		AssigneeTarget: models.AssigneeTargetOwner,
	}
	if errCreate := conn.Create(&rule).Error; errCreate != nil {
		t.Fatalf("create rule: %v", errCreate)
	}

	if errScan := scanner.ScanTenant(context.Background(), 1, now); errScan != nil {
		t.Fatalf("scan: %v", errScan)
	}

	var count int64
	conn.Model(&models.Task{}).Count(&count)
	if count != 25 {
		t.Fatalf("expected 25 tasks across batches, got %d", count)
	}
}

func TestScanTenantFiresOverdueRule(t *testing.T) {
	conn := setupAutomationDB(t)
	scanner := NewScanner(conn, nil, 0)
	owner := createUser(t, conn, 1, "dana", true)

	now := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)
	overdueDeal := createDeal(t, conn, 1, 20, owner.ID, "Has Overdue", now)
	cleanDeal := createDeal(t, conn, 1, 20, owner.ID, "All Done", now)

	pastDue := now.Add(-3 * 24 * time.Hour)
	openTask := models.Task{
		TenantID:       1,
		DealID:         overdueDeal.ID,
		Title:          "Old follow-up",
		DueAt:          &pastDue,
		Completed:      false,
		AssigneeUserID: owner.ID,
	}
	if errCreate := conn.Create(&openTask).Error; errCreate != nil {
		t.Fatalf("create overdue task: %v", errCreate)
	}
	doneTask := models.Task{
		TenantID:       1,
		DealID:         cleanDeal.ID,
		Title:          "Finished follow-up",
		DueAt:          &pastDue,
		Completed:      true,
		AssigneeUserID: owner.ID,
	}
	if errCreate := conn.Create(&doneTask).Error; errCreate != nil {
		t.Fatalf("create completed task: %v", errCreate)
	}

	rule := models.OverdueTaskRule{
		TenantID:       1,
		Enabled:        true,
		OverdueDays:    1,
		TitleTemplate:  "Chase overdue work on {{dealName}}",
		CooldownDays:   7,
		AssigneeTarget: models.AssigneeTargetOwner,
	}
	if errCreate := conn.Create(&rule).Error; errCreate != nil {
		t.Fatalf("create rule: %v", errCreate)
	}

	if errScan := scanner.ScanTenant(context.Background(), 1, now); errScan != nil {
		t.Fatalf("scan: %v", errScan)
	}

	var generated []models.Task
	errFind := conn.Where("source_rule_kind = ?", models.RuleKindOverdueTask).Find(&generated).Error
	if errFind != nil {
		t.Fatalf("list generated tasks: %v", errFind)
	}
	if len(generated) != 1 {
		t.Fatalf("expected 1 generated task, got %d", len(generated))
	}
	if generated[0].DealID != overdueDeal.ID {
		t.Fatalf("expected task on deal %d, got %d", overdueDeal.ID, generated[0].DealID)
	}
	if generated[0].Title != "Chase overdue work on Has Overdue" {
		t.Fatalf("unexpected title: %q", generated[0].Title)
	}
}

func TestTenantsWithScanRules(t *testing.T) {
	conn := setupAutomationDB(t)
	scanner := NewScanner(conn, nil, 0)

	rules := []models.StaleDealRule{
		{TenantID: 1, Enabled: true, StaleDays: 30, TitleTemplate: "a", AssigneeTarget: models.AssigneeTargetOwner},
		{TenantID: 1, Enabled: true, StaleDays: 60, TitleTemplate: "b", AssigneeTarget: models.AssigneeTargetOwner},
		{TenantID: 2, Enabled: false, StaleDays: 30, TitleTemplate: "c", AssigneeTarget: models.AssigneeTargetOwner},
	}
	if errCreate := conn.Create(&rules).Error; errCreate != nil {
		t.Fatalf("create stale rules: %v", errCreate)
	}
	overdue := models.OverdueTaskRule{TenantID: 3, Enabled: true, OverdueDays: 1, TitleTemplate: "d", AssigneeTarget: models.AssigneeTargetOwner}
	if errCreate := conn.Create(&overdue).Error; errCreate != nil {
		t.Fatalf("create overdue rule: %v", errCreate)
	}

	tenantIDs, errList := scanner.tenantsWithScanRules(context.Background())
	if errList != nil {
		t.Fatalf("list tenants: %v", errList)
	}
	if len(tenantIDs) != 2 {
		t.Fatalf("expected tenants [1 3], got %v", tenantIDs)
	}
	seen := map[uint64]bool{}
	for _, id := range tenantIDs {
		seen[id] = true
	}
	if !seen[1] || !seen[3] {
		t.Fatalf("expected tenants 1 and 3, got %v", tenantIDs)
	}
}
