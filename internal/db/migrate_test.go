package db

import (
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func TestMigrateCreatesCoreTables(t *testing.T) {
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}

	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	for _, table := range []string{
		"users", "pipelines", "stages", "deals", "stage_moves", "tasks",
		"stage_task_rules", "stage_sequence_rules", "stale_deal_rules",
		"won_checklist_rules", "overdue_task_rules", "fire_records",
	} {
		if !conn.Migrator().HasTable(table) {
			t.Fatalf("missing table %s", table)
		}
	}
}

func TestMigrateIsRepeatable(t *testing.T) {
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}

	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("first migrate: %v", errMigrate)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("second migrate: %v", errMigrate)
	}
}

func TestMigrateFireRecordDedupeKeyUnique(t *testing.T) {
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	if errExec := conn.Exec(
		"INSERT INTO fire_records (tenant_id, rule_kind, rule_id, deal_id, fired_at, dedupe_key) VALUES (1, 'stage_task', 1, 1, CURRENT_TIMESTAMP, 'k')",
	).Error; errExec != nil {
		t.Fatalf("first insert: %v", errExec)
	}
	errDup := conn.Exec(
		"INSERT INTO fire_records (tenant_id, rule_kind, rule_id, deal_id, fired_at, dedupe_key) VALUES (1, 'stage_task', 2, 2, CURRENT_TIMESTAMP, 'k')",
	).Error
	if errDup == nil {
		t.Fatal("expected duplicate dedupe_key insert to fail")
	}
}
