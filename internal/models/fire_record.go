package models

import "time"

// FireRecord is the automation dedup/cooldown ledger.
//
// One row is written per successful emission and never updated. The unique
// DedupeKey turns evaluate-then-emit into exactly-once per event for
// transition rules; cooldown rules recompute their window from the latest
// FiredAt of the (rule, deal) pair.
type FireRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TenantID uint64 `gorm:"not null;index"` // Owning tenant.

	RuleKind RuleKind `gorm:"type:varchar(32);not null;index:idx_fire_rule_deal"` // Rule variant.
	RuleID   uint64   `gorm:"not null;index:idx_fire_rule_deal"`                  // Fired rule.
	DealID   uint64   `gorm:"not null;index:idx_fire_rule_deal"`                  // Target deal.

	FiredAt time.Time `gorm:"not null;index"` // Emission instant, basis for cooldown windows.

	DedupeKey string `gorm:"type:varchar(128);not null;uniqueIndex"` // Deterministic firing identity.
}
