package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/teamleap/crmauto/internal/models"
	"gorm.io/gorm"
)

// Ledger is the persisted dedup/cooldown bookkeeping over fire records.
//
// The engine keeps no process-local firing state: every claim is decided
// against the fire_records table, so multiple stateless instances can run
// against the same database.
type Ledger struct {
	db *gorm.DB
}

// NewLedger constructs a ledger over the given connection.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// eventDedupeKey derives the exactly-once-per-event key for transition rules.
func eventDedupeKey(kind models.RuleKind, ruleID, dealID, moveID uint64) string {
	return fmt.Sprintf("%s:%d:%d:%d", kind, ruleID, dealID, moveID)
}

// cooldownDedupeKey derives a per-firing key for cooldown rules. The firing
// instant is embedded so immutable ledger rows never collide; the cooldown
// window itself is enforced by the FiredAt read in ClaimCooldown.
func cooldownDedupeKey(kind models.RuleKind, ruleID, dealID uint64, firedAt time.Time) string {
	return fmt.Sprintf("%s:%d:%d:%d", kind, ruleID, dealID, firedAt.UnixNano())
}

// ClaimEvent attempts an exactly-once claim for a transition-style firing.
// It returns false when the same event was already processed for the rule.
func (l *Ledger) ClaimEvent(ctx context.Context, tenantID uint64, kind models.RuleKind, ruleID, dealID, moveID uint64, now time.Time) (bool, error) {
	record := models.FireRecord{
		TenantID:  tenantID,
		RuleKind:  kind,
		RuleID:    ruleID,
		DealID:    dealID,
		FiredAt:   now,
		DedupeKey: eventDedupeKey(kind, ruleID, dealID, moveID),
	}
	errCreate := l.db.WithContext(ctx).Create(&record).Error
	if errCreate != nil {
		if errors.Is(errCreate, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, errCreate
	}
	return true, nil
}

// ClaimCooldown attempts a rate-limited claim for a cooldown-style firing.
// The latest FiredAt for the (rule, deal) pair decides whether the rule is
// still inside its cooldown window. A zero cooldown grants every claim.
//
// The read-then-insert sequence races only when two scans for the same
// tenant overlap, which the scanner's single-flight lock prevents.
func (l *Ledger) ClaimCooldown(ctx context.Context, tenantID uint64, kind models.RuleKind, ruleID, dealID uint64, cooldownDays int, now time.Time) (bool, error) {
	var last models.FireRecord
	errLast := l.db.WithContext(ctx).
		Where("rule_kind = ? AND rule_id = ? AND deal_id = ?", kind, ruleID, dealID).
		Order("fired_at DESC").
		First(&last).Error
	if errLast != nil && !errors.Is(errLast, gorm.ErrRecordNotFound) {
		return false, errLast
	}
	if errLast == nil {
		windowStart := now.Add(-time.Duration(cooldownDays) * 24 * time.Hour)
		if last.FiredAt.After(windowStart) {
			return false, nil
		}
	}

	record := models.FireRecord{
		TenantID:  tenantID,
		RuleKind:  kind,
		RuleID:    ruleID,
		DealID:    dealID,
		FiredAt:   now,
		DedupeKey: cooldownDedupeKey(kind, ruleID, dealID, now),
	}
	errCreate := l.db.WithContext(ctx).Create(&record).Error
	if errCreate != nil {
		if errors.Is(errCreate, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, errCreate
	}
	return true, nil
}
