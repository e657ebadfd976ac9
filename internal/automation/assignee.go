package automation

import (
	"context"

	"github.com/teamleap/crmauto/internal/models"
	"gorm.io/gorm"
)

// ResolveAssignee applies an assignment policy to a trigger event and
// returns the user the generated task belongs to.
//
// The function is pure over its inputs: owner resolves to the deal owner,
// mover to the acting user with an owner fallback for scheduler-originated
// events, and specific to the configured user. Tenant membership of a
// specific assignee is checked separately by the caller before emission.
func ResolveAssignee(target models.AssigneeTarget, specificUserID *uint64, ev TriggerEvent) uint64 {
	switch target {
	case models.AssigneeTargetMover:
		if ev.ActorUserID != 0 {
			return ev.ActorUserID
		}
		return ev.Deal.OwnerUserID
	case models.AssigneeTargetSpecific:
		if specificUserID != nil {
			return *specificUserID
		}
		// A specific rule without a user reference is rejected at write
		// time; fall back to the owner if one slips through.
		return ev.Deal.OwnerUserID
	default:
		return ev.Deal.OwnerUserID
	}
}

// Directory answers tenant membership questions for assignee validation.
type Directory interface {
	IsActiveMember(ctx context.Context, tenantID, userID uint64) (bool, error)
}

// verifiedAssignee resolves the assignment policy and, for specific
// assignees, verifies tenant membership. An unresolvable specific assignee
// aborts the firing with a ResolutionError instead of silently reassigning.
func verifiedAssignee(ctx context.Context, dir Directory, kind models.RuleKind, ruleID uint64, target models.AssigneeTarget, specificUserID *uint64, ev TriggerEvent) (uint64, error) {
	assignee := ResolveAssignee(target, specificUserID, ev)
	if target != models.AssigneeTargetSpecific {
		return assignee, nil
	}

	active, errCheck := dir.IsActiveMember(ctx, ev.TenantID, assignee)
	if errCheck != nil {
		return 0, errCheck
	}
	if !active {
		return 0, &ResolutionError{
			RuleKind: kind,
			RuleID:   ruleID,
			DealID:   ev.Deal.DealID,
			UserID:   assignee,
			Reason:   "user is no longer an active member of the tenant",
		}
	}
	return assignee, nil
}

// GormDirectory backs Directory with the users table.
type GormDirectory struct {
	db *gorm.DB
}

// NewGormDirectory constructs a directory over the given connection.
func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

// IsActiveMember reports whether the user is an active member of the tenant.
func (d *GormDirectory) IsActiveMember(ctx context.Context, tenantID, userID uint64) (bool, error) {
	var count int64
	errCount := d.db.WithContext(ctx).
		Model(&models.User{}).
		Where("tenant_id = ? AND id = ? AND is_active = ?", tenantID, userID, true).
		Count(&count).Error
	if errCount != nil {
		return false, errCount
	}
	return count > 0, nil
}
