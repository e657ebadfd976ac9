package automation

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/teamleap/crmauto/internal/models"
)

const (
	defaultScanInterval  = 24 * time.Hour
	defaultScanBatchSize = 200
)

// Scanner periodically evaluates stale-deal and overdue-task rules.
//
// One logical run per tenant per interval: a per-tenant lock makes
// concurrent runs for the same tenant a no-op rather than a queued retry.
// Deals are iterated in keyset-paged batches, never loaded wholesale.
type Scanner struct {
	db        *gorm.DB
	ledger    *Ledger
	emitter   *Emitter
	directory Directory
	locker    ScanLocker
	interval  time.Duration
	batchSize int
}

// NewScanner constructs a scanner. A nil locker falls back to an in-process
// lock, which is sufficient for single-instance deployments.
func NewScanner(db *gorm.DB, locker ScanLocker, interval time.Duration) *Scanner {
	if db == nil {
		return nil
	}
	if locker == nil {
		locker = NewMemoryLocker()
	}
	if interval <= 0 {
		interval = defaultScanInterval
	}
	return &Scanner{
		db:        db,
		ledger:    NewLedger(db),
		emitter:   NewEmitter(db),
		directory: NewGormDirectory(db),
		locker:    locker,
		interval:  interval,
		batchSize: defaultScanBatchSize,
	}
}

// Start launches the scan loop in a background goroutine.
func (s *Scanner) Start(ctx context.Context) {
	if s == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go s.run(ctx)
	log.Infof("automation scanner started (interval=%s)", s.interval)
}

func (s *Scanner) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		s.scanOnce(ctx, time.Now().UTC())
		if ctx.Err() != nil {
			return
		}
		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

// scanOnce runs one scan pass over every tenant with enabled scan rules.
func (s *Scanner) scanOnce(ctx context.Context, now time.Time) {
	tenantIDs, errTenants := s.tenantsWithScanRules(ctx)
	if errTenants != nil {
		log.WithError(errTenants).Warn("automation scanner: list tenants failed")
		return
	}
	for _, tenantID := range tenantIDs {
		if errScan := s.ScanTenant(ctx, tenantID, now); errScan != nil {
			log.WithError(errScan).WithField("tenant_id", tenantID).Warn("automation scanner: tenant scan failed")
		}
	}
}

// tenantsWithScanRules lists tenants having at least one enabled stale-deal
// or overdue-task rule.
func (s *Scanner) tenantsWithScanRules(ctx context.Context) ([]uint64, error) {
	var staleIDs []uint64
	if errStale := s.db.WithContext(ctx).
		Model(&models.StaleDealRule{}).
		Where("enabled = ?", true).
		Distinct().
		Pluck("tenant_id", &staleIDs).Error; errStale != nil {
		return nil, errStale
	}

	var overdueIDs []uint64
	if errOverdue := s.db.WithContext(ctx).
		Model(&models.OverdueTaskRule{}).
		Where("enabled = ?", true).
		Distinct().
		Pluck("tenant_id", &overdueIDs).Error; errOverdue != nil {
		return nil, errOverdue
	}

	seen := make(map[uint64]struct{}, len(staleIDs)+len(overdueIDs))
	merged := make([]uint64, 0, len(staleIDs)+len(overdueIDs))
	for _, id := range append(staleIDs, overdueIDs...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		merged = append(merged, id)
	}
	return merged, nil
}

// ScanTenant runs one scan for a single tenant under the single-flight lock.
// A scan already in progress for the tenant makes this call a no-op.
func (s *Scanner) ScanTenant(ctx context.Context, tenantID uint64, now time.Time) error {
	acquired, release, errLock := s.locker.TryLock(ctx, tenantID)
	if errLock != nil {
		return errLock
	}
	if !acquired {
		log.WithField("tenant_id", tenantID).Debug("automation scanner: scan already in progress")
		return nil
	}
	defer release()

	stageNames, errStages := s.loadStageNames(ctx, tenantID)
	if errStages != nil {
		return errStages
	}
	userNames, errUsers := s.loadUserNames(ctx, tenantID)
	if errUsers != nil {
		return errUsers
	}

	var staleRules []models.StaleDealRule
	if errFind := s.db.WithContext(ctx).
		Where("tenant_id = ? AND enabled = ?", tenantID, true).
		Find(&staleRules).Error; errFind != nil {
		return errFind
	}
	for i := range staleRules {
		s.runStaleRule(ctx, &staleRules[i], stageNames, userNames, now)
	}

	var overdueRules []models.OverdueTaskRule
	if errFind := s.db.WithContext(ctx).
		Where("tenant_id = ? AND enabled = ?", tenantID, true).
		Find(&overdueRules).Error; errFind != nil {
		return errFind
	}
	for i := range overdueRules {
		s.runOverdueRule(ctx, &overdueRules[i], stageNames, userNames, now)
	}

	return nil
}

// runStaleRule pages through the tenant's stale open deals and fires the
// rule for each candidate. Per-deal failures never abort the batch.
func (s *Scanner) runStaleRule(ctx context.Context, rule *models.StaleDealRule, stageNames, userNames map[uint64]string, now time.Time) {
	cutoff := now.Add(-time.Duration(rule.StaleDays) * 24 * time.Hour)
	lastID := uint64(0)
	for {
		q := s.db.WithContext(ctx).
			Where("tenant_id = ? AND status = ? AND updated_at < ? AND id > ?",
				rule.TenantID, models.DealStatusOpen, cutoff, lastID).
			Order("id ASC").
			Limit(s.batchSize)
		if rule.StageID != nil {
			q = q.Where("stage_id = ?", *rule.StageID)
		}

		var deals []models.Deal
		if errFind := q.Find(&deals).Error; errFind != nil {
			log.WithError(errFind).WithField("rule_id", rule.ID).Warn("automation scanner: list stale deals failed")
			return
		}
		if len(deals) == 0 {
			return
		}

		for i := range deals {
			deal := &deals[i]
			ev := scanEvent(deal, stageNames, userNames, now)
			if errFire := s.fireCooldownRule(ctx, cooldownFiring{
				kind:           models.RuleKindStaleDeal,
				ruleID:         rule.ID,
				titleTemplate:  rule.TitleTemplate,
				dueInDays:      rule.DueInDays,
				assigneeTarget: rule.AssigneeTarget,
				assigneeUserID: rule.AssigneeUserID,
				cooldownDays:   rule.CooldownDays,
			}, ev); errFire != nil {
				log.WithError(errFire).WithFields(log.Fields{
					"rule_id": rule.ID,
					"deal_id": deal.ID,
				}).Warn("automation scanner: stale deal rule failed")
			}
		}

		lastID = deals[len(deals)-1].ID
		if len(deals) < s.batchSize {
			return
		}
	}
}

// runOverdueRule pages through open deals that have an incomplete task past
// its due date and fires the rule for each.
func (s *Scanner) runOverdueRule(ctx context.Context, rule *models.OverdueTaskRule, stageNames, userNames map[uint64]string, now time.Time) {
	overdueCutoff := now.Add(-time.Duration(rule.OverdueDays) * 24 * time.Hour)
	lastID := uint64(0)
	for {
		overdueTasks := s.db.WithContext(ctx).Model(&models.Task{}).
			Select("1").
			Where("tasks.tenant_id = deals.tenant_id AND tasks.deal_id = deals.id").
			Where("tasks.completed = ? AND tasks.due_at IS NOT NULL AND tasks.due_at < ?", false, overdueCutoff)

		var deals []models.Deal
		if errFind := s.db.WithContext(ctx).
			Where("tenant_id = ? AND status = ? AND id > ?", rule.TenantID, models.DealStatusOpen, lastID).
			Where("EXISTS (?)", overdueTasks).
			Order("id ASC").
			Limit(s.batchSize).
			Find(&deals).Error; errFind != nil {
			log.WithError(errFind).WithField("rule_id", rule.ID).Warn("automation scanner: list overdue deals failed")
			return
		}
		if len(deals) == 0 {
			return
		}

		for i := range deals {
			deal := &deals[i]
			ev := scanEvent(deal, stageNames, userNames, now)
			if errFire := s.fireCooldownRule(ctx, cooldownFiring{
				kind:           models.RuleKindOverdueTask,
				ruleID:         rule.ID,
				titleTemplate:  rule.TitleTemplate,
				dueInDays:      rule.DueInDays,
				assigneeTarget: rule.AssigneeTarget,
				assigneeUserID: rule.AssigneeUserID,
				cooldownDays:   rule.CooldownDays,
			}, ev); errFire != nil {
				log.WithError(errFire).WithFields(log.Fields{
					"rule_id": rule.ID,
					"deal_id": deal.ID,
				}).Warn("automation scanner: overdue task rule failed")
			}
		}

		lastID = deals[len(deals)-1].ID
		if len(deals) < s.batchSize {
			return
		}
	}
}

// cooldownFiring is the shared shape of scanner-fired, cooldown-limited rules.
type cooldownFiring struct {
	kind           models.RuleKind
	ruleID         uint64
	titleTemplate  string
	dueInDays      int
	assigneeTarget models.AssigneeTarget
	assigneeUserID *uint64
	cooldownDays   int
}

// fireCooldownRule resolves, claims under cooldown and emits for one deal.
func (s *Scanner) fireCooldownRule(ctx context.Context, firing cooldownFiring, ev TriggerEvent) error {
	assignee, errResolve := verifiedAssignee(ctx, s.directory, firing.kind, firing.ruleID, firing.assigneeTarget, firing.assigneeUserID, ev)
	if errResolve != nil {
		return errResolve
	}

	granted, errClaim := s.ledger.ClaimCooldown(ctx, ev.TenantID, firing.kind, firing.ruleID, ev.Deal.DealID, firing.cooldownDays, ev.At)
	if errClaim != nil {
		return errClaim
	}
	if !granted {
		return nil
	}

	_, errEmit := s.emitter.Emit(ctx, EmitParams{
		TenantID:       ev.TenantID,
		DealID:         ev.Deal.DealID,
		Title:          Render(firing.titleTemplate, renderContextFor(ev)),
		DueAt:          dueAt(ev.At, firing.dueInDays),
		AssigneeUserID: assignee,
		RuleKind:       firing.kind,
		RuleID:         firing.ruleID,
	})
	return errEmit
}

// scanEvent builds the scheduler-originated trigger event for a deal. There
// is no actor: mover policies fall back to the owner.
func scanEvent(deal *models.Deal, stageNames, userNames map[uint64]string, now time.Time) TriggerEvent {
	return TriggerEvent{
		Kind:     EventStaleScanTick,
		TenantID: deal.TenantID,
		Deal: DealSnapshot{
			DealID:      deal.ID,
			Name:        deal.Name,
			Amount:      deal.Amount,
			Currency:    deal.Currency,
			OwnerUserID: deal.OwnerUserID,
			OwnerName:   userNames[deal.OwnerUserID],
		},
		ToStageID:   deal.StageID,
		ToStageName: stageNames[deal.StageID],
		At:          now,
	}
}

// loadStageNames maps the tenant's stage IDs to display names.
func (s *Scanner) loadStageNames(ctx context.Context, tenantID uint64) (map[uint64]string, error) {
	var stages []models.Stage
	if errFind := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Find(&stages).Error; errFind != nil {
		return nil, errFind
	}
	names := make(map[uint64]string, len(stages))
	for i := range stages {
		names[stages[i].ID] = stages[i].Name
	}
	return names, nil
}

// loadUserNames maps the tenant's user IDs to display names.
func (s *Scanner) loadUserNames(ctx context.Context, tenantID uint64) (map[uint64]string, error) {
	var users []models.User
	if errFind := s.db.WithContext(ctx).
		Select("id", "display_name").
		Where("tenant_id = ?", tenantID).
		Find(&users).Error; errFind != nil {
		return nil, errFind
	}
	names := make(map[uint64]string, len(users))
	for i := range users {
		names[users[i].ID] = users[i].DisplayName
	}
	return names, nil
}
